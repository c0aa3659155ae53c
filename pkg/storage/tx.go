package storage

import (
	"bytes"
	"encoding/binary"

	"github.com/cockroachdb/pebble"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var (
	// ErrConflict means a record read by a unit of work was changed by
	// another commit before this one could apply. The unit must be re-run.
	ErrConflict = errors.New("concurrent conflict")

	// ErrTxClosed is returned when a committed or rolled back unit is reused
	ErrTxClosed = errors.New("unit of work already closed")
)

type observed struct {
	value   []byte
	present bool
}

// Tx is a unit of work: a Pebble indexed batch plus the set of records it
// read. Reads see the unit's own writes. Commit applies every write at once
// or nothing at all.
type Tx struct {
	store  *Store
	batch  *pebble.Batch
	reads  map[string]observed
	writes map[string]struct{}
	maxSeq uint64 // highest sequence number handed to this unit
	closed bool
}

// Begin starts a new unit of work
func (s *Store) Begin() *Tx {
	return &Tx{
		store:  s,
		batch:  s.db.NewIndexedBatch(),
		reads:  make(map[string]observed),
		writes: make(map[string]struct{}),
	}
}

// NextSeq returns the store's next sequence number. Commit persists the
// highest one handed out so numbering survives a restart.
func (tx *Tx) NextSeq() uint64 {
	seq := tx.store.NextSeq()
	if seq > tx.maxSeq {
		tx.maxSeq = seq
	}
	return seq
}

// Get decodes the value at key into v and records the read for commit-time validation
func (tx *Tx) Get(key []byte, v any) (bool, error) {
	data, found, err := tx.getRaw(key)
	if err != nil || !found {
		return found, err
	}
	return true, decodeJSON(data, v)
}

// Watch records the current value of key without decoding it.
// Used for guard keys that stand in for a range read.
func (tx *Tx) Watch(key []byte) error {
	_, _, err := tx.getRaw(key)
	return err
}

// Put encodes v as JSON and stages it at key
func (tx *Tx) Put(key []byte, v any) error {
	data, err := encodeJSON(v)
	if err != nil {
		return err
	}
	return tx.setRaw(key, data)
}

// PutRaw stages raw bytes at key
func (tx *Tx) PutRaw(key, value []byte) error {
	return tx.setRaw(key, value)
}

// Delete stages removal of key
func (tx *Tx) Delete(key []byte) error {
	if tx.closed {
		return ErrTxClosed
	}
	if err := tx.batch.Delete(key, nil); err != nil {
		return errors.Wrapf(err, "delete %q", key)
	}
	tx.writes[string(key)] = struct{}{}
	return nil
}

// Bump stores a fresh random token at key. Any unit that watched key
// before this commit will fail validation.
func (tx *Tx) Bump(key []byte) error {
	return tx.setRaw(key, []byte(uuid.NewString()))
}

// Scan visits keys with prefix in ascending order, including staged writes.
// Scans are not validated at commit; protect them with a guard key.
func (tx *Tx) Scan(prefix []byte, fn func(key, value []byte) error) error {
	if tx.closed {
		return ErrTxClosed
	}
	return scan(tx.batch, prefix, false, fn)
}

// ScanReverse visits keys with prefix in descending order, including staged writes
func (tx *Tx) ScanReverse(prefix []byte, fn func(key, value []byte) error) error {
	if tx.closed {
		return ErrTxClosed
	}
	return scan(tx.batch, prefix, true, fn)
}

// Commit validates every recorded read under the record locks and writes
// the batch. Returns a wrapped ErrConflict if any read is stale.
func (tx *Tx) Commit() error {
	if tx.closed {
		return ErrTxClosed
	}
	defer tx.Close()

	keys := make([]string, 0, len(tx.reads)+len(tx.writes))
	for k := range tx.reads {
		keys = append(keys, k)
	}
	for k := range tx.writes {
		if _, ok := tx.reads[k]; !ok {
			keys = append(keys, k)
		}
	}
	seqKey := string(SeqKey())
	if tx.maxSeq > 0 {
		keys = append(keys, seqKey)
	}

	unlock := tx.store.locks.lock(keys)
	defer unlock()

	for k, obs := range tx.reads {
		cur, present, err := tx.store.getRaw([]byte(k))
		if err != nil {
			return err
		}
		if present != obs.present || !bytes.Equal(cur, obs.value) {
			return errors.Wrapf(ErrConflict, "record %q changed", k)
		}
	}

	if len(tx.writes) == 0 {
		return nil
	}
	if tx.maxSeq > 0 {
		// the mark's stripe is held, so read-max-write cannot regress it
		stored, err := tx.store.storedSeq()
		if err != nil {
			return err
		}
		if tx.maxSeq > stored {
			var buf [8]byte
			binary.BigEndian.PutUint64(buf[:], tx.maxSeq)
			if err := tx.batch.Set([]byte(seqKey), buf[:], nil); err != nil {
				return errors.Wrap(err, "set sequence mark")
			}
		}
	}
	if err := tx.batch.Commit(pebble.Sync); err != nil {
		return errors.Wrap(err, "commit batch")
	}
	return nil
}

// Close discards the unit of work. Safe to call more than once.
func (tx *Tx) Close() {
	if tx.closed {
		return
	}
	tx.closed = true
	_ = tx.batch.Close()
}

func (tx *Tx) getRaw(key []byte) ([]byte, bool, error) {
	if tx.closed {
		return nil, false, ErrTxClosed
	}
	data, found, err := getCopy(tx.batch, key)
	if err != nil {
		return nil, false, err
	}

	k := string(key)
	if _, written := tx.writes[k]; !written {
		if _, seen := tx.reads[k]; !seen {
			tx.reads[k] = observed{value: data, present: found}
		}
	}
	return data, found, nil
}

func (tx *Tx) setRaw(key, value []byte) error {
	if tx.closed {
		return ErrTxClosed
	}
	if err := tx.batch.Set(key, value, nil); err != nil {
		return errors.Wrapf(err, "set %q", key)
	}
	tx.writes[string(key)] = struct{}{}
	return nil
}
