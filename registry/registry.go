// Package registry records voter eligibility: a one-time identity commitment per
// identity and the vote-consumption flag that only the bound election may set.
package registry

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"election-ledger/models"
)

var (
	ErrAlreadyRegistered   = errors.New("voter already registered")
	ErrNotRegistered       = errors.New("voter not registered")
	ErrAlreadyVoted        = errors.New("voter has already voted")
	ErrNotAuthorizedCaller = errors.New("caller is not the authorized election")
)

// Notifier receives registry events after they are committed.
type Notifier interface {
	Notify(event models.Event)
}

// VoterRegistry owns every Voter record. Records are never removed.
type VoterRegistry struct {
	voters     map[common.Address]*models.Voter
	authorized common.Address
	notifier   Notifier
	now        func() time.Time
	mu         sync.RWMutex
}

// New binds the registry to the single caller allowed to consume votes.
func New(authorizedCaller common.Address, notifier Notifier) *VoterRegistry {
	return &VoterRegistry{
		voters:     make(map[common.Address]*models.Voter),
		authorized: authorizedCaller,
		notifier:   notifier,
		now:        time.Now,
	}
}

func (r *VoterRegistry) AuthorizedCaller() common.Address {
	return r.authorized
}

// SelfRegister stores the commitment for identity. The commitment is accepted as
// is: whatever bytes the client hashed are what it commits to.
func (r *VoterRegistry) SelfRegister(identity common.Address, commitment common.Hash) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if voter, exists := r.voters[identity]; exists && voter.Registered {
		return ErrAlreadyRegistered
	}

	now := r.now().Unix()
	r.voters[identity] = &models.Voter{
		Identity:     identity,
		Registered:   true,
		Commitment:   commitment,
		RegisteredAt: now,
	}

	if r.notifier != nil {
		r.notifier.Notify(models.Event{
			Type:       models.EventVoterRegistered,
			Timestamp:  now,
			Identity:   identity.Hex(),
			Commitment: commitment.Hex(),
		})
	}
	return nil
}

func (r *VoterRegistry) IsRegistered(identity common.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	voter, exists := r.voters[identity]
	return exists && voter.Registered
}

func (r *VoterRegistry) HasVoted(identity common.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	voter, exists := r.voters[identity]
	return exists && voter.HasVoted
}

func (r *VoterRegistry) Commitment(identity common.Address) (common.Hash, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	voter, exists := r.voters[identity]
	if !exists {
		return common.Hash{}, false
	}
	return voter.Commitment, true
}

// MarkVoted flips hasVoted for identity. Only the authorized caller may do so,
// and only once per identity.
func (r *VoterRegistry) MarkVoted(caller, identity common.Address) error {
	if caller != r.authorized {
		return ErrNotAuthorizedCaller
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	voter, exists := r.voters[identity]
	if !exists || !voter.Registered {
		return ErrNotRegistered
	}
	if voter.HasVoted {
		return ErrAlreadyVoted
	}
	voter.HasVoted = true
	return nil
}

func (r *VoterRegistry) Statistics() (registered, voted int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, voter := range r.voters {
		if voter.Registered {
			registered++
		}
		if voter.HasVoted {
			voted++
		}
	}
	return registered, voted
}

// Snapshot returns copies of all records ordered by identity.
func (r *VoterRegistry) Snapshot() []models.Voter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	voters := make([]models.Voter, 0, len(r.voters))
	for _, voter := range r.voters {
		voters = append(voters, *voter)
	}
	sort.Slice(voters, func(i, j int) bool {
		return bytes.Compare(voters[i].Identity[:], voters[j].Identity[:]) < 0
	})
	return voters
}

// Restore replaces the registry contents with a previously taken snapshot.
func (r *VoterRegistry) Restore(voters []models.Voter) error {
	restored := make(map[common.Address]*models.Voter, len(voters))
	for i := range voters {
		voter := voters[i]
		if _, dup := restored[voter.Identity]; dup {
			return fmt.Errorf("duplicate voter record for %s", voter.Identity.Hex())
		}
		if voter.HasVoted && !voter.Registered {
			return fmt.Errorf("voter %s marked voted without registration", voter.Identity.Hex())
		}
		restored[voter.Identity] = &voter
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.voters = restored
	return nil
}
