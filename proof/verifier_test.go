package proof

import (
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"election-ledger/encryption"
)

func newVerifier() *Verifier {
	return NewVerifier(encryption.NewCryptoService())
}

func TestMessageTemplate(t *testing.T) {
	nonce := make([]byte, 32)
	nonce[31] = 0xab

	want := "Voting Eligibility Verification\n\nNonce: 0x" +
		strings.Repeat("00", 31) + "ab" +
		"\n\nThis signature proves you control this wallet without revealing your private key."
	assert.Equal(t, want, Message(nonce))
}

func TestNewChallenge(t *testing.T) {
	v := newVerifier()
	c, err := v.NewChallenge()
	require.NoError(t, err)

	assert.Len(t, c.Nonce, 32)
	assert.Equal(t, Message(c.Nonce), c.Message)
}

func TestVerifyRoundTrip(t *testing.T) {
	v := newVerifier()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	addr := crypto.PubkeyToAddress(key.PublicKey)

	c, err := v.NewChallenge()
	require.NoError(t, err)
	sig, err := Sign(key, c.Message)
	require.NoError(t, err)

	recovered, err := v.Recover(c.Message, sig)
	require.NoError(t, err)
	assert.Equal(t, addr, recovered)
	assert.NoError(t, v.Verify(addr, c.Message, sig))

	t.Run("OtherNonce", func(t *testing.T) {
		other, err := v.NewChallenge()
		require.NoError(t, err)
		assert.ErrorIs(t, v.Verify(addr, other.Message, sig), ErrProofMismatch)
	})

	t.Run("OtherIdentity", func(t *testing.T) {
		otherKey, err := crypto.GenerateKey()
		require.NoError(t, err)
		claimed := crypto.PubkeyToAddress(otherKey.PublicKey)
		assert.ErrorIs(t, v.Verify(claimed, c.Message, sig), ErrProofMismatch)
	})

	t.Run("Garbage", func(t *testing.T) {
		assert.ErrorIs(t, v.Verify(addr, c.Message, []byte{1, 2, 3}), ErrInvalidSignature)
	})
}

func TestIssuer(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	addr := crypto.PubkeyToAddress(key.PublicKey)

	now := time.Unix(1_700_000_000, 0)
	issuer := NewIssuer(newVerifier(), 8, time.Minute)
	issuer.now = func() time.Time { return now }

	t.Run("SingleUse", func(t *testing.T) {
		c, err := issuer.Issue()
		require.NoError(t, err)
		sig, err := Sign(key, c.Message)
		require.NoError(t, err)

		require.NoError(t, issuer.Redeem(addr, c.Nonce, sig))
		assert.ErrorIs(t, issuer.Redeem(addr, c.Nonce, sig), ErrUnknownChallenge)
	})

	t.Run("UnknownNonce", func(t *testing.T) {
		assert.ErrorIs(t, issuer.Redeem(addr, []byte{1}, nil), ErrUnknownChallenge)
	})

	t.Run("Expired", func(t *testing.T) {
		c, err := issuer.Issue()
		require.NoError(t, err)
		sig, err := Sign(key, c.Message)
		require.NoError(t, err)

		now = now.Add(2 * time.Minute)
		assert.ErrorIs(t, issuer.Redeem(addr, c.Nonce, sig), ErrUnknownChallenge)
	})

	t.Run("MismatchSpendsChallenge", func(t *testing.T) {
		c, err := issuer.Issue()
		require.NoError(t, err)
		sig, err := Sign(key, c.Message)
		require.NoError(t, err)

		other, err := crypto.GenerateKey()
		require.NoError(t, err)
		assert.ErrorIs(t, issuer.Redeem(crypto.PubkeyToAddress(other.PublicKey), c.Nonce, sig), ErrProofMismatch)
		assert.ErrorIs(t, issuer.Redeem(addr, c.Nonce, sig), ErrUnknownChallenge)
	})

	t.Run("Bounded", func(t *testing.T) {
		for i := 0; i < 20; i++ {
			_, err := issuer.Issue()
			require.NoError(t, err)
		}
		assert.Equal(t, 8, issuer.Outstanding())
	})
}

func TestSessionStore(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	addr := crypto.PubkeyToAddress(key.PublicKey)

	now := time.Unix(1_700_000_000, 0)
	store := NewSessionStore(4, time.Hour)
	store.now = func() time.Time { return now }

	session := store.Open(addr)
	assert.NotEmpty(t, session.Token)

	found, err := store.Lookup(session.Token)
	require.NoError(t, err)
	assert.Equal(t, addr, found.Identity)

	_, err = store.Lookup("nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	t.Run("Close", func(t *testing.T) {
		s := store.Open(addr)
		store.Close(s.Token)
		_, err := store.Lookup(s.Token)
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})

	t.Run("Expiry", func(t *testing.T) {
		now = now.Add(2 * time.Hour)
		_, err := store.Lookup(session.Token)
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})
}
