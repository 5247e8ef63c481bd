package encryption

import (
	"crypto/ecdsa"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/sha3"
)

const SignatureLength = crypto.SignatureLength

var ErrInvalidSignature = errors.New("invalid signature")

type CryptoService struct{}

func NewCryptoService() *CryptoService {
	return &CryptoService{}
}

// GenerateKeyPair generates a new secp256k1 key pair
func (cs *CryptoService) GenerateKeyPair() (*ecdsa.PrivateKey, error) {
	return crypto.GenerateKey()
}

// GenerateNonce generates a random 32-byte challenge nonce
func (cs *CryptoService) GenerateNonce() ([]byte, error) {
	nonce := make([]byte, 32)
	_, err := rand.Read(nonce)
	return nonce, err
}

// Keccak256 computes Keccak-256 hash
func (cs *CryptoService) Keccak256(data ...[]byte) []byte {
	d := sha3.NewLegacyKeccak256()
	for _, b := range data {
		d.Write(b)
	}
	return d.Sum(nil)
}

// Commitment hashes data into an identity commitment
func (cs *CryptoService) Commitment(data []byte) common.Hash {
	return common.BytesToHash(cs.Keccak256(data))
}

// SignText signs message with the personal-message prefix. V is returned as 27/28.
func (cs *CryptoService) SignText(message []byte, privateKey *ecdsa.PrivateKey) ([]byte, error) {
	sig, err := crypto.Sign(accounts.TextHash(message), privateKey)
	if err != nil {
		return nil, err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// RecoverText returns the address that signed message. Both 0/1 and 27/28
// recovery ids are accepted.
func (cs *CryptoService) RecoverText(message, signature []byte) (common.Address, error) {
	if len(signature) != SignatureLength {
		return common.Address{}, fmt.Errorf("%w: length %d", ErrInvalidSignature, len(signature))
	}

	sig := make([]byte, SignatureLength)
	copy(sig, signature)
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	if sig[crypto.RecoveryIDOffset] > 1 {
		return common.Address{}, fmt.Errorf("%w: recovery id %d", ErrInvalidSignature, signature[crypto.RecoveryIDOffset])
	}

	pub, err := crypto.SigToPub(accounts.TextHash(message), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// AddressOf derives the account address of a private key
func (cs *CryptoService) AddressOf(privateKey *ecdsa.PrivateKey) common.Address {
	return crypto.PubkeyToAddress(privateKey.PublicKey)
}

// ParsePrivateKey decodes a hex private key, with or without 0x prefix
func (cs *CryptoService) ParsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	if len(hexKey) >= 2 && hexKey[0] == '0' && (hexKey[1] == 'x' || hexKey[1] == 'X') {
		hexKey = hexKey[2:]
	}
	return crypto.HexToECDSA(hexKey)
}

// EncodePrivateKey is the inverse of ParsePrivateKey, without prefix
func (cs *CryptoService) EncodePrivateKey(privateKey *ecdsa.PrivateKey) string {
	return fmt.Sprintf("%x", crypto.FromECDSA(privateKey))
}
