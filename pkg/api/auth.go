package api

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/spotex/pkg/app/core/settlement"
	"github.com/uhyunpark/spotex/pkg/app/core/transaction"
)

const maxBodyBytes = 1 << 20

var errUnauthorized = errors.New("unauthorized")

func badRequest(format string, args ...any) error {
	return settlement.Classify(fmt.Errorf("%w: %s", settlement.ErrValidation, fmt.Sprintf(format, args...)))
}

// headerOwner authenticates a request in header mode
func headerOwner(r *http.Request) (common.Address, error) {
	v := r.Header.Get(HeaderOwner)
	if v == "" {
		return common.Address{}, fmt.Errorf("%w: missing %s header", errUnauthorized, HeaderOwner)
	}
	if !common.IsHexAddress(v) {
		return common.Address{}, fmt.Errorf("%w: malformed %s header", errUnauthorized, HeaderOwner)
	}
	return common.HexToAddress(v), nil
}

// signedRequest reads a signed envelope of type want from the body, verifies
// its signature and deadline, and consumes its nonce. The nonce is spent
// even if the operation it carries is later rejected.
func (s *Server) signedRequest(w http.ResponseWriter, r *http.Request, want transaction.TxType) (*transaction.SignedTransaction, common.Address, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, common.Address{}, badRequest("failed to read body: %v", err)
	}
	tx, err := transaction.ParseTransaction(body)
	if err != nil {
		return nil, common.Address{}, badRequest("%v", err)
	}
	if tx.Type != want {
		return nil, common.Address{}, badRequest("expected transaction type %q, got %q", want, tx.Type)
	}

	owner, err := s.verifier.Verify(tx)
	switch {
	case errors.Is(err, transaction.ErrExpired):
		return nil, common.Address{}, badRequest("%v", err)
	case err != nil:
		return nil, common.Address{}, fmt.Errorf("%w: %v", errUnauthorized, err)
	}

	if err := s.app.ConsumeNonce(r.Context(), owner, tx.Nonce()); err != nil {
		return nil, common.Address{}, err
	}
	return tx, owner, nil
}

// requireAPIKey guards operator endpoints
func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.FundingAPIKey == "" {
			respondError(w, http.StatusForbidden, "forbidden", "funding endpoints are disabled")
			return
		}
		key := r.Header.Get(HeaderAPIKey)
		if subtle.ConstantTimeCompare([]byte(key), []byte(s.cfg.FundingAPIKey)) != 1 {
			respondError(w, http.StatusUnauthorized, "unauthorized", "invalid api key")
			return
		}
		next.ServeHTTP(w, r)
	})
}
