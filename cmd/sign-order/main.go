package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/uhyunpark/spotex/pkg/app/core/transaction"
	"github.com/uhyunpark/spotex/pkg/crypto"
)

func main() {
	var (
		keyHex   = flag.String("key", "", "hex private key (empty generates a new one)")
		chainID  = flag.Int64("chain-id", 1337, "EIP-712 chain id")
		kind     = flag.String("type", "order", "order, cancel or transfer")
		pair     = flag.String("pair", "BTC-THB", "order pair")
		side     = flag.String("side", "buy", "order side")
		amount   = flag.String("amount", "0.1", "order or transfer amount")
		price    = flag.String("price", "1250000", "order limit price")
		orderID  = flag.String("order-id", "", "order to cancel")
		currency = flag.String("currency", "THB", "transfer currency")
		to       = flag.String("to", "", "transfer recipient")
		nonce    = flag.Uint64("nonce", 1, "request nonce, strictly increasing per owner")
		deadline = flag.Uint64("deadline", 0, "unix deadline (0 = none)")
	)
	flag.Parse()

	signer, err := loadSigner(*keyHex)
	if err != nil {
		fail("key", err)
	}
	fmt.Fprintf(os.Stderr, "Address: %s\n", signer.Address().Hex())
	if *keyHex == "" {
		fmt.Fprintf(os.Stderr, "Private Key: %s (KEEP SECRET!)\n", signer.PrivateKeyHex())
	}

	verifier := transaction.NewVerifier(crypto.DefaultDomain(*chainID))
	eip712Signer := verifier.Signer()

	var signedTx *transaction.SignedTransaction
	switch *kind {
	case "order":
		s := crypto.SideToUint8(*side)
		if s == 0 {
			fail("side", fmt.Errorf("unknown side %q", *side))
		}
		signedTx, err = transaction.SignOrder(eip712Signer, signer, &transaction.OrderPayload{
			Pair:     *pair,
			Side:     s,
			Amount:   *amount,
			Price:    *price,
			Nonce:    *nonce,
			Deadline: *deadline,
		})
	case "cancel":
		signedTx, err = transaction.SignCancel(eip712Signer, signer, &transaction.CancelPayload{
			OrderID: *orderID,
			Nonce:   *nonce,
		})
	case "transfer":
		signedTx, err = transaction.SignTransfer(eip712Signer, signer, &transaction.TransferPayload{
			Currency: *currency,
			To:       *to,
			Amount:   *amount,
			Nonce:    *nonce,
		})
	default:
		fail("type", fmt.Errorf("unknown request type %q", *kind))
	}
	if err != nil {
		fail("signing", err)
	}

	// Verify before printing so a bad envelope never leaves the tool
	owner, err := verifier.Verify(signedTx)
	if err != nil {
		fail("verifying", err)
	}
	fmt.Fprintf(os.Stderr, "Signature valid, signer %s\n", owner.Hex())

	txJSON, err := json.MarshalIndent(signedTx, "", "  ")
	if err != nil {
		fail("marshaling JSON", err)
	}
	fmt.Println(string(txJSON))
}

func loadSigner(keyHex string) (*crypto.Signer, error) {
	if keyHex == "" {
		return crypto.GenerateKey()
	}
	return crypto.FromPrivateKeyHex(keyHex)
}

func fail(step string, err error) {
	fmt.Fprintf(os.Stderr, "Error %s: %v\n", step, err)
	os.Exit(1)
}
