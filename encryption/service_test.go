package encryption

import (
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeccak256MatchesGoEthereum(t *testing.T) {
	cs := NewCryptoService()
	data := []byte("12345678901")

	assert.Equal(t, crypto.Keccak256(data), cs.Keccak256(data))
	assert.Equal(t, crypto.Keccak256Hash(data), cs.Commitment(data))
	assert.Equal(t, crypto.Keccak256([]byte("ab"), []byte("cd")), cs.Keccak256([]byte("ab"), []byte("cd")))
}

func TestGenerateNonce(t *testing.T) {
	cs := NewCryptoService()
	a, err := cs.GenerateNonce()
	require.NoError(t, err)
	b, err := cs.GenerateNonce()
	require.NoError(t, err)

	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)
}

func TestSignRecoverText(t *testing.T) {
	cs := NewCryptoService()
	key, err := cs.GenerateKeyPair()
	require.NoError(t, err)
	message := []byte("hello")

	sig, err := cs.SignText(message, key)
	require.NoError(t, err)
	require.Len(t, sig, SignatureLength)
	assert.Contains(t, []byte{27, 28}, sig[64])

	t.Run("LegacyRecoveryID", func(t *testing.T) {
		addr, err := cs.RecoverText(message, sig)
		require.NoError(t, err)
		assert.Equal(t, cs.AddressOf(key), addr)
	})

	t.Run("RawRecoveryID", func(t *testing.T) {
		raw := append([]byte(nil), sig...)
		raw[64] -= 27
		addr, err := cs.RecoverText(message, raw)
		require.NoError(t, err)
		assert.Equal(t, cs.AddressOf(key), addr)
	})

	t.Run("DifferentMessage", func(t *testing.T) {
		addr, err := cs.RecoverText([]byte("hellO"), sig)
		if err == nil {
			assert.NotEqual(t, cs.AddressOf(key), addr)
		}
	})

	t.Run("BadLength", func(t *testing.T) {
		_, err := cs.RecoverText(message, sig[:64])
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("BadRecoveryID", func(t *testing.T) {
		bad := append([]byte(nil), sig...)
		bad[64] = 5
		_, err := cs.RecoverText(message, bad)
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})
}

func TestPrivateKeyEncoding(t *testing.T) {
	cs := NewCryptoService()
	key, err := cs.GenerateKeyPair()
	require.NoError(t, err)

	encoded := cs.EncodePrivateKey(key)
	assert.Len(t, encoded, 64)

	for _, in := range []string{encoded, "0x" + encoded} {
		parsed, err := cs.ParsePrivateKey(in)
		require.NoError(t, err)
		assert.Equal(t, cs.AddressOf(key), cs.AddressOf(parsed))
	}

	_, err = cs.ParsePrivateKey("zz")
	assert.Error(t, err)
}
