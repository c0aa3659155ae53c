package transaction

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/spotex/pkg/crypto"
)

// TxType represents the type of signed request
type TxType string

const (
	TxTypeOrder    TxType = "order"    // Place order
	TxTypeCancel   TxType = "cancel"   // Cancel order
	TxTypeTransfer TxType = "transfer" // Owner-to-owner transfer
)

// SignedTransaction is a client request plus its EIP-712 signature
type SignedTransaction struct {
	Type      TxType           `json:"type"`
	Order     *OrderPayload    `json:"order,omitempty"`
	Cancel    *CancelPayload   `json:"cancel,omitempty"`
	Transfer  *TransferPayload `json:"transfer,omitempty"`
	Signature string           `json:"signature"` // Hex-encoded signature (0x...)
}

// OrderPayload contains order data for EIP-712 signing
type OrderPayload struct {
	Pair     string `json:"pair"`     // "BTC-THB"
	Side     uint8  `json:"side"`     // 1=Buy, 2=Sell
	Amount   string `json:"amount"`   // decimal string
	Price    string `json:"price"`    // decimal string
	Nonce    uint64 `json:"nonce"`    // strictly increasing per owner
	Deadline uint64 `json:"deadline"` // Unix timestamp (0 = no expiry)
	Owner    string `json:"owner"`    // Ethereum address (0x...)
}

// CancelPayload contains order cancellation data
type CancelPayload struct {
	OrderID string `json:"orderId"`
	Nonce   uint64 `json:"nonce"`
	Owner   string `json:"owner"`
}

// TransferPayload moves funds of one currency to another owner
type TransferPayload struct {
	Currency string `json:"currency"`
	To       string `json:"to"`
	Amount   string `json:"amount"`
	Nonce    uint64 `json:"nonce"`
	Owner    string `json:"owner"`
}

// ToEIP712 converts the payload to its typed-data form
func (o *OrderPayload) ToEIP712() *crypto.OrderEIP712 {
	return &crypto.OrderEIP712{
		Pair:     o.Pair,
		Side:     o.Side,
		Amount:   o.Amount,
		Price:    o.Price,
		Nonce:    o.Nonce,
		Deadline: o.Deadline,
		Owner:    common.HexToAddress(o.Owner),
	}
}

// ToEIP712 converts the payload to its typed-data form
func (c *CancelPayload) ToEIP712() *crypto.CancelEIP712 {
	return &crypto.CancelEIP712{
		OrderID: c.OrderID,
		Nonce:   c.Nonce,
		Owner:   common.HexToAddress(c.Owner),
	}
}

// ToEIP712 converts the payload to its typed-data form
func (t *TransferPayload) ToEIP712() *crypto.TransferEIP712 {
	return &crypto.TransferEIP712{
		Currency: t.Currency,
		To:       common.HexToAddress(t.To),
		Amount:   t.Amount,
		Nonce:    t.Nonce,
		Owner:    common.HexToAddress(t.Owner),
	}
}

// Nonce returns the nonce of whichever payload the transaction carries
func (tx *SignedTransaction) Nonce() uint64 {
	switch {
	case tx.Order != nil:
		return tx.Order.Nonce
	case tx.Cancel != nil:
		return tx.Cancel.Nonce
	case tx.Transfer != nil:
		return tx.Transfer.Nonce
	}
	return 0
}

// Serialize converts SignedTransaction to JSON bytes
func (tx *SignedTransaction) Serialize() ([]byte, error) {
	return json.Marshal(tx)
}

// Deserialize parses JSON bytes into SignedTransaction
func Deserialize(data []byte) (*SignedTransaction, error) {
	var tx SignedTransaction
	if err := json.Unmarshal(data, &tx); err != nil {
		return nil, fmt.Errorf("failed to unmarshal transaction: %w", err)
	}
	return &tx, nil
}

// Validate performs basic validation on transaction structure
func (tx *SignedTransaction) Validate() error {
	if tx.Type == "" {
		return fmt.Errorf("missing transaction type")
	}
	if tx.Signature == "" {
		return fmt.Errorf("missing signature")
	}

	switch tx.Type {
	case TxTypeOrder:
		if tx.Order == nil {
			return fmt.Errorf("order type requires order payload")
		}
		if tx.Order.Pair == "" {
			return fmt.Errorf("missing order pair")
		}
		if tx.Order.Side == 0 {
			return fmt.Errorf("invalid order side")
		}
		return checkOwner(tx.Order.Owner)

	case TxTypeCancel:
		if tx.Cancel == nil {
			return fmt.Errorf("cancel type requires cancel payload")
		}
		if tx.Cancel.OrderID == "" {
			return fmt.Errorf("missing cancel order ID")
		}
		return checkOwner(tx.Cancel.Owner)

	case TxTypeTransfer:
		if tx.Transfer == nil {
			return fmt.Errorf("transfer type requires transfer payload")
		}
		if tx.Transfer.Currency == "" {
			return fmt.Errorf("missing transfer currency")
		}
		if !common.IsHexAddress(tx.Transfer.To) {
			return fmt.Errorf("invalid transfer recipient %q", tx.Transfer.To)
		}
		return checkOwner(tx.Transfer.Owner)

	default:
		return fmt.Errorf("unknown transaction type: %s", tx.Type)
	}
}

func checkOwner(owner string) error {
	if !common.IsHexAddress(owner) {
		return fmt.Errorf("invalid owner address %q", owner)
	}
	return nil
}

// ParseTransaction decodes and structurally validates a signed request
func ParseTransaction(data []byte) (*SignedTransaction, error) {
	tx, err := Deserialize(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse transaction: %w", err)
	}
	if err := tx.Validate(); err != nil {
		return nil, fmt.Errorf("invalid transaction: %w", err)
	}
	return tx, nil
}

// Example signed order:
//   {
//     "type": "order",
//     "order": {
//       "pair": "BTC-THB",
//       "side": 1,
//       "amount": "0.25",
//       "price": "1250000",
//       "nonce": 42,
//       "deadline": 0,
//       "owner": "0x742d35Cc6634C0532925a3b844Bc9e7595f0bEb0"
//     },
//     "signature": "0x1234567890abcdef..."
//   }
