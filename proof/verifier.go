// Package proof implements the challenge-response possession proof that gates
// participation.
//
// This is not a zero-knowledge proof. A successful proof shows that the caller
// controls the signing key of an address; the address itself is revealed to the
// ledger and to anyone observing the request. Only the private key stays hidden.
package proof

import (
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"election-ledger/encryption"
)

const messageTemplate = "Voting Eligibility Verification\n\nNonce: %s\n\nThis signature proves you control this wallet without revealing your private key."

var (
	ErrProofMismatch    = errors.New("recovered address does not match claimed identity")
	ErrInvalidSignature = encryption.ErrInvalidSignature
	ErrUnknownChallenge = errors.New("unknown or expired challenge")
	ErrSessionNotFound  = errors.New("session not found or expired")
)

// Message renders the text a client signs for nonce. Signer and verifier must
// produce it byte for byte.
func Message(nonce []byte) string {
	return fmt.Sprintf(messageTemplate, hexutil.Encode(nonce))
}

type Challenge struct {
	Nonce   []byte `json:"nonce"`
	Message string `json:"message"`
}

type Verifier struct {
	crypto *encryption.CryptoService
}

func NewVerifier(cs *encryption.CryptoService) *Verifier {
	return &Verifier{crypto: cs}
}

func (v *Verifier) NewChallenge() (*Challenge, error) {
	nonce, err := v.crypto.GenerateNonce()
	if err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return &Challenge{Nonce: nonce, Message: Message(nonce)}, nil
}

func (v *Verifier) Recover(message string, signature []byte) (common.Address, error) {
	return v.crypto.RecoverText([]byte(message), signature)
}

// Verify succeeds only if signature over message was produced by claimed.
func (v *Verifier) Verify(claimed common.Address, message string, signature []byte) error {
	recovered, err := v.Recover(message, signature)
	if err != nil {
		return err
	}
	if recovered != claimed {
		return fmt.Errorf("%w: recovered %s", ErrProofMismatch, recovered.Hex())
	}
	return nil
}

// Sign produces the signature a wallet would return for message.
func Sign(key *ecdsa.PrivateKey, message string) ([]byte, error) {
	return encryption.NewCryptoService().SignText([]byte(message), key)
}
