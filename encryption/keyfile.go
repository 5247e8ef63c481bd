package encryption

import (
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// KeyFile is the on-disk form of a secp256k1 key.
type KeyFile struct {
	Address    string `json:"address"`
	PublicKey  string `json:"public_key"`
	PrivateKey string `json:"private_key"`
}

// LoadKey reads the key stored at path.
func LoadKey(path string) (*ecdsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	var kf KeyFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return nil, fmt.Errorf("failed to parse key file: %w", err)
	}
	privateKey, err := NewCryptoService().ParsePrivateKey(kf.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to restore private key: %w", err)
	}
	return privateKey, nil
}

// LoadOrGenerateKey reads the key at path, creating a new one there if the
// file does not exist.
func LoadOrGenerateKey(path string) (*ecdsa.PrivateKey, error) {
	privateKey, err := LoadKey(path)
	if err == nil || !errors.Is(err, os.ErrNotExist) {
		return privateKey, err
	}

	cs := NewCryptoService()
	privateKey, err = cs.GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}

	kf := KeyFile{
		Address:    cs.AddressOf(privateKey).Hex(),
		PublicKey:  hexutil.Encode(crypto.FromECDSAPub(&privateKey.PublicKey)),
		PrivateKey: hexutil.Encode(crypto.FromECDSA(privateKey)),
	}
	data, err := json.MarshalIndent(kf, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal key file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create key directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return nil, fmt.Errorf("failed to save key file: %w", err)
	}

	return privateKey, nil
}
