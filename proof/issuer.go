package proof

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/lru"
)

// Issuer hands out server-side challenges and redeems each at most once.
// Outstanding challenges live in a bounded LRU; the oldest are evicted first.
type Issuer struct {
	verifier *Verifier
	pending  *lru.Cache[string, time.Time]
	ttl      time.Duration
	now      func() time.Time
}

func NewIssuer(verifier *Verifier, capacity int, ttl time.Duration) *Issuer {
	return &Issuer{
		verifier: verifier,
		pending:  lru.NewCache[string, time.Time](capacity),
		ttl:      ttl,
		now:      time.Now,
	}
}

func (i *Issuer) Issue() (*Challenge, error) {
	challenge, err := i.verifier.NewChallenge()
	if err != nil {
		return nil, err
	}
	i.pending.Add(hexutil.Encode(challenge.Nonce), i.now().Add(i.ttl))
	return challenge, nil
}

// Redeem consumes the challenge for nonce and verifies that claimed signed it.
// The challenge is spent even if verification fails.
func (i *Issuer) Redeem(claimed common.Address, nonce, signature []byte) error {
	key := hexutil.Encode(nonce)
	expiry, ok := i.pending.Get(key)
	if !ok || !i.pending.Remove(key) {
		return ErrUnknownChallenge
	}
	if i.now().After(expiry) {
		return fmt.Errorf("%w: expired at %s", ErrUnknownChallenge, expiry.Format(time.RFC3339))
	}
	return i.verifier.Verify(claimed, Message(nonce), signature)
}

func (i *Issuer) Outstanding() int {
	return i.pending.Len()
}
