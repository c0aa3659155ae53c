package storage

import (
	"encoding/json"

	"github.com/pkg/errors"
)

func encodeJSON(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrapf(err, "marshal %T", v)
	}
	return data, nil
}

func decodeJSON(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Wrapf(err, "unmarshal %T", v)
	}
	return nil
}

// Decode unmarshals a raw value produced by Tx.Put, for use inside scans
func Decode(data []byte, v any) error {
	return decodeJSON(data, v)
}
