package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"election-ledger/encryption"
	"election-ledger/proof"
)

func runCommand(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	require.NoError(t, run(args, &out))
	return strings.TrimSpace(out.String())
}

func TestKeygenAndAddressAgree(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voter.key")

	generated := runCommand(t, "keygen", "-out", path)
	require.True(t, common.IsHexAddress(generated))

	assert.Equal(t, generated, runCommand(t, "address", "-key", path))
	assert.Equal(t, generated, runCommand(t, "keygen", "-out", path))
}

func TestSignProducesVerifiableProof(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	keyHex := hexutil.Encode(crypto.FromECDSA(key))
	nonce := bytes.Repeat([]byte{0xab}, 32)

	sigHex := runCommand(t, "sign", "-private-key", keyHex, "-nonce", hexutil.Encode(nonce))
	signature, err := hexutil.Decode(sigHex)
	require.NoError(t, err)

	verifier := proof.NewVerifier(encryption.NewCryptoService())
	assert.NoError(t, verifier.Verify(crypto.PubkeyToAddress(key.PublicKey), proof.Message(nonce), signature))
}

func TestCommit(t *testing.T) {
	got := runCommand(t, "commit", "-nin", "12345678901")
	assert.Equal(t, crypto.Keccak256Hash([]byte("12345678901")).Hex(), got)

	var out bytes.Buffer
	assert.Error(t, run([]string{"commit", "-nin", "1234"}, &out))
}

func TestRunErrors(t *testing.T) {
	t.Setenv("SIGNER_PRIVATE_KEY", "")
	var out bytes.Buffer

	assert.Error(t, run(nil, &out))
	assert.Error(t, run([]string{"bogus"}, &out))
	assert.Error(t, run([]string{"address"}, &out))
	assert.Error(t, run([]string{"address", "-key", filepath.Join(t.TempDir(), "missing.key")}, &out))
	assert.Error(t, run([]string{"sign", "-nonce", "zz"}, &out))
}
