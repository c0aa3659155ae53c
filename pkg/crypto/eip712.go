package crypto

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// EIP712Domain represents the domain separator for EIP-712 typed data
// This prevents replay attacks across different chains/deployments
type EIP712Domain struct {
	Name    string   // Protocol name (e.g., "Spotex")
	Version string   // Protocol version (e.g., "1")
	ChainID *big.Int // Chain ID (1337 for local)
}

// DefaultDomain returns the EIP-712 domain for the given chain id
func DefaultDomain(chainID int64) EIP712Domain {
	return EIP712Domain{
		Name:    "Spotex",
		Version: "1",
		ChainID: big.NewInt(chainID),
	}
}

var domainType = []apitypes.Type{
	{Name: "name", Type: "string"},
	{Name: "version", Type: "string"},
	{Name: "chainId", Type: "uint256"},
}

// Primary types signed by clients. Amounts and prices are decimal strings
// so no precision is lost between wallet and engine.
var (
	orderType = []apitypes.Type{
		{Name: "pair", Type: "string"},
		{Name: "side", Type: "uint8"},
		{Name: "amount", Type: "string"},
		{Name: "price", Type: "string"},
		{Name: "nonce", Type: "uint256"},
		{Name: "deadline", Type: "uint256"},
		{Name: "owner", Type: "address"},
	}
	cancelType = []apitypes.Type{
		{Name: "orderId", Type: "string"},
		{Name: "nonce", Type: "uint256"},
		{Name: "owner", Type: "address"},
	}
	transferType = []apitypes.Type{
		{Name: "currency", Type: "string"},
		{Name: "to", Type: "address"},
		{Name: "amount", Type: "string"},
		{Name: "nonce", Type: "uint256"},
		{Name: "owner", Type: "address"},
	}
)

// OrderEIP712 is the order a wallet signs
type OrderEIP712 struct {
	Pair     string         // "BTC-THB"
	Side     uint8          // 1 = Buy, 2 = Sell
	Amount   string         // base amount, decimal string
	Price    string         // limit price, decimal string
	Nonce    uint64         // strictly increasing per owner
	Deadline uint64         // Unix seconds, 0 = no expiry
	Owner    common.Address // Order owner address
}

// CancelEIP712 is a signed cancel request
type CancelEIP712 struct {
	OrderID string
	Nonce   uint64
	Owner   common.Address
}

// TransferEIP712 is a signed owner-to-owner transfer
type TransferEIP712 struct {
	Currency string
	To       common.Address
	Amount   string
	Nonce    uint64
	Owner    common.Address
}

// EIP712Signer hashes, signs and verifies typed requests under one domain
type EIP712Signer struct {
	domain EIP712Domain
}

// NewEIP712Signer creates a new EIP-712 signer with given domain
func NewEIP712Signer(domain EIP712Domain) *EIP712Signer {
	return &EIP712Signer{domain: domain}
}

// Domain returns the signer's domain
func (e *EIP712Signer) Domain() EIP712Domain {
	return e.domain
}

func (o *OrderEIP712) message() apitypes.TypedDataMessage {
	return apitypes.TypedDataMessage{
		"pair":     o.Pair,
		"side":     fmt.Sprintf("%d", o.Side),
		"amount":   o.Amount,
		"price":    o.Price,
		"nonce":    fmt.Sprintf("%d", o.Nonce),
		"deadline": fmt.Sprintf("%d", o.Deadline),
		"owner":    o.Owner.Hex(),
	}
}

func (c *CancelEIP712) message() apitypes.TypedDataMessage {
	return apitypes.TypedDataMessage{
		"orderId": c.OrderID,
		"nonce":   fmt.Sprintf("%d", c.Nonce),
		"owner":   c.Owner.Hex(),
	}
}

func (t *TransferEIP712) message() apitypes.TypedDataMessage {
	return apitypes.TypedDataMessage{
		"currency": t.Currency,
		"to":       t.To.Hex(),
		"amount":   t.Amount,
		"nonce":    fmt.Sprintf("%d", t.Nonce),
		"owner":    t.Owner.Hex(),
	}
}

func (e *EIP712Signer) typedData(primary string, fields []apitypes.Type, msg apitypes.TypedDataMessage) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": domainType,
			primary:        fields,
		},
		PrimaryType: primary,
		Domain: apitypes.TypedDataDomain{
			Name:    e.domain.Name,
			Version: e.domain.Version,
			ChainId: (*math.HexOrDecimal256)(e.domain.ChainID),
		},
		Message: msg,
	}
}

// hash computes keccak256("\x19\x01" || domainSeparator || hashStruct(message))
func (e *EIP712Signer) hash(primary string, fields []apitypes.Type, msg apitypes.TypedDataMessage) ([]byte, error) {
	typedData := e.typedData(primary, fields, msg)

	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("failed to hash domain: %w", err)
	}

	typedDataHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return nil, fmt.Errorf("failed to hash %s: %w", primary, err)
	}

	rawData := []byte(fmt.Sprintf("\x19\x01%s%s", string(domainSeparator), string(typedDataHash)))
	return crypto.Keccak256Hash(rawData).Bytes(), nil
}

// HashOrder returns the digest a wallet signs for order
func (e *EIP712Signer) HashOrder(order *OrderEIP712) ([]byte, error) {
	return e.hash("Order", orderType, order.message())
}

// HashCancel returns the digest a wallet signs for cancel
func (e *EIP712Signer) HashCancel(cancel *CancelEIP712) ([]byte, error) {
	return e.hash("CancelOrder", cancelType, cancel.message())
}

// HashTransfer returns the digest a wallet signs for transfer
func (e *EIP712Signer) HashTransfer(transfer *TransferEIP712) ([]byte, error) {
	return e.hash("Transfer", transferType, transfer.message())
}

// SignOrder signs an order and returns the signature
func (e *EIP712Signer) SignOrder(signer *Signer, order *OrderEIP712) ([]byte, error) {
	return signDigest(signer, func() ([]byte, error) { return e.HashOrder(order) })
}

// SignCancel signs a cancel request
func (e *EIP712Signer) SignCancel(signer *Signer, cancel *CancelEIP712) ([]byte, error) {
	return signDigest(signer, func() ([]byte, error) { return e.HashCancel(cancel) })
}

// SignTransfer signs a transfer request
func (e *EIP712Signer) SignTransfer(signer *Signer, transfer *TransferEIP712) ([]byte, error) {
	return signDigest(signer, func() ([]byte, error) { return e.HashTransfer(transfer) })
}

func signDigest(signer *Signer, digest func() ([]byte, error)) ([]byte, error) {
	hash, err := digest()
	if err != nil {
		return nil, err
	}
	return signer.Sign(hash)
}

// VerifyOrderSignature reports whether signature over order was made by order.Owner
func (e *EIP712Signer) VerifyOrderSignature(order *OrderEIP712, signature []byte) (bool, error) {
	return verifyDigest(order.Owner, signature, func() ([]byte, error) { return e.HashOrder(order) })
}

// VerifyCancelSignature reports whether signature over cancel was made by cancel.Owner
func (e *EIP712Signer) VerifyCancelSignature(cancel *CancelEIP712, signature []byte) (bool, error) {
	return verifyDigest(cancel.Owner, signature, func() ([]byte, error) { return e.HashCancel(cancel) })
}

// VerifyTransferSignature reports whether signature over transfer was made by transfer.Owner
func (e *EIP712Signer) VerifyTransferSignature(transfer *TransferEIP712, signature []byte) (bool, error) {
	return verifyDigest(transfer.Owner, signature, func() ([]byte, error) { return e.HashTransfer(transfer) })
}

func verifyDigest(owner common.Address, signature []byte, digest func() ([]byte, error)) (bool, error) {
	hash, err := digest()
	if err != nil {
		return false, err
	}
	recovered, err := RecoverAddress(hash, signature)
	if err != nil {
		return false, fmt.Errorf("failed to recover address: %w", err)
	}
	return recovered == owner, nil
}

// OrderToJSON renders an order as eth_signTypedData_v4 input for wallets
func (e *EIP712Signer) OrderToJSON(order *OrderEIP712) (string, error) {
	jsonBytes, err := json.MarshalIndent(e.typedData("Order", orderType, order.message()), "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return string(jsonBytes), nil
}

// SideToUint8 converts "buy"/"sell" to the signed side code
func SideToUint8(side string) uint8 {
	switch side {
	case "buy", "BUY":
		return 1
	case "sell", "SELL":
		return 2
	default:
		return 0
	}
}

// Uint8ToSide converts a signed side code to "buy"/"sell"
func Uint8ToSide(side uint8) string {
	switch side {
	case 1:
		return "buy"
	case 2:
		return "sell"
	default:
		return "unknown"
	}
}
