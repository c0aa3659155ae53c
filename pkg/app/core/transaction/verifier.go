package transaction

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/spotex/pkg/crypto"
)

var (
	// ErrInvalidSignature is returned when the signature does not belong to the claimed owner
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrExpired is returned for orders past their deadline
	ErrExpired = errors.New("request deadline passed")
)

// Verifier authenticates signed requests. It is the identity provider for
// the submission API: the owner it returns is trusted by the engine.
type Verifier struct {
	eip712Signer *crypto.EIP712Signer
	now          func() time.Time
}

// NewVerifier creates a new transaction verifier
func NewVerifier(domain crypto.EIP712Domain) *Verifier {
	return &Verifier{
		eip712Signer: crypto.NewEIP712Signer(domain),
		now:          time.Now,
	}
}

// Signer returns the typed-data signer for the verifier's domain
func (v *Verifier) Signer() *crypto.EIP712Signer {
	return v.eip712Signer
}

// Verify checks tx's structure, signature and deadline and returns the
// authenticated owner
func (v *Verifier) Verify(tx *SignedTransaction) (common.Address, error) {
	if err := tx.Validate(); err != nil {
		return common.Address{}, err
	}

	sig, err := crypto.DecodeSignature(tx.Signature)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	var (
		owner common.Address
		valid bool
	)
	switch tx.Type {
	case TxTypeOrder:
		if tx.Order.Deadline != 0 && v.now().Unix() > int64(tx.Order.Deadline) {
			return common.Address{}, fmt.Errorf("%w: %d", ErrExpired, tx.Order.Deadline)
		}
		order := tx.Order.ToEIP712()
		owner = order.Owner
		valid, err = v.eip712Signer.VerifyOrderSignature(order, sig)
	case TxTypeCancel:
		cancel := tx.Cancel.ToEIP712()
		owner = cancel.Owner
		valid, err = v.eip712Signer.VerifyCancelSignature(cancel, sig)
	case TxTypeTransfer:
		transfer := tx.Transfer.ToEIP712()
		owner = transfer.Owner
		valid, err = v.eip712Signer.VerifyTransferSignature(transfer, sig)
	}
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if !valid {
		return common.Address{}, fmt.Errorf("%w: not signed by %s", ErrInvalidSignature, owner.Hex())
	}
	return owner, nil
}

// SignOrder builds a signed order envelope
func SignOrder(e *crypto.EIP712Signer, signer *crypto.Signer, p *OrderPayload) (*SignedTransaction, error) {
	p.Owner = signer.Address().Hex()
	sig, err := e.SignOrder(signer, p.ToEIP712())
	if err != nil {
		return nil, err
	}
	return &SignedTransaction{Type: TxTypeOrder, Order: p, Signature: crypto.EncodeSignature(sig)}, nil
}

// SignCancel builds a signed cancel envelope
func SignCancel(e *crypto.EIP712Signer, signer *crypto.Signer, p *CancelPayload) (*SignedTransaction, error) {
	p.Owner = signer.Address().Hex()
	sig, err := e.SignCancel(signer, p.ToEIP712())
	if err != nil {
		return nil, err
	}
	return &SignedTransaction{Type: TxTypeCancel, Cancel: p, Signature: crypto.EncodeSignature(sig)}, nil
}

// SignTransfer builds a signed transfer envelope
func SignTransfer(e *crypto.EIP712Signer, signer *crypto.Signer, p *TransferPayload) (*SignedTransaction, error) {
	p.Owner = signer.Address().Hex()
	sig, err := e.SignTransfer(signer, p.ToEIP712())
	if err != nil {
		return nil, err
	}
	return &SignedTransaction{Type: TxTypeTransfer, Transfer: p, Signature: crypto.EncodeSignature(sig)}, nil
}
