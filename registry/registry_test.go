package registry

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"election-ledger/models"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []models.Event
}

func (n *recordingNotifier) Notify(event models.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

var (
	electionHandle = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	voter1         = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	voter2         = common.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC")
)

func TestSelfRegister(t *testing.T) {
	notifier := &recordingNotifier{}
	reg := New(electionHandle, notifier)
	commitment := crypto.Keccak256Hash([]byte("12345678901"))

	t.Run("FirstRegistrationSucceeds", func(t *testing.T) {
		require.NoError(t, reg.SelfRegister(voter1, commitment))
		assert.True(t, reg.IsRegistered(voter1))
		assert.False(t, reg.HasVoted(voter1))

		stored, ok := reg.Commitment(voter1)
		require.True(t, ok)
		assert.Equal(t, commitment, stored)
	})

	t.Run("SecondRegistrationRejected", func(t *testing.T) {
		other := crypto.Keccak256Hash([]byte("10987654321"))
		err := reg.SelfRegister(voter1, other)
		assert.ErrorIs(t, err, ErrAlreadyRegistered)

		stored, _ := reg.Commitment(voter1)
		assert.Equal(t, commitment, stored, "commitment must be immutable")
	})

	t.Run("MalformedCommitmentAccepted", func(t *testing.T) {
		// Format checks live on the client; any hashed bytes are accepted.
		require.NoError(t, reg.SelfRegister(voter2, crypto.Keccak256Hash([]byte("not-a-nin"))))
		assert.True(t, reg.IsRegistered(voter2))
	})

	t.Run("EventsCarryCommitment", func(t *testing.T) {
		require.Len(t, notifier.events, 2)
		assert.Equal(t, models.EventVoterRegistered, notifier.events[0].Type)
		assert.Equal(t, voter1.Hex(), notifier.events[0].Identity)
		assert.Equal(t, commitment.Hex(), notifier.events[0].Commitment)
	})
}

func TestUnknownIdentityReads(t *testing.T) {
	reg := New(electionHandle, nil)
	assert.False(t, reg.IsRegistered(voter1))
	assert.False(t, reg.HasVoted(voter1))
	_, ok := reg.Commitment(voter1)
	assert.False(t, ok)
}

func TestMarkVoted(t *testing.T) {
	reg := New(electionHandle, nil)
	require.NoError(t, reg.SelfRegister(voter1, common.Hash{1}))

	t.Run("RejectsForeignCaller", func(t *testing.T) {
		err := reg.MarkVoted(voter1, voter1)
		assert.ErrorIs(t, err, ErrNotAuthorizedCaller)
		assert.False(t, reg.HasVoted(voter1))
	})

	t.Run("RejectsUnregistered", func(t *testing.T) {
		assert.ErrorIs(t, reg.MarkVoted(electionHandle, voter2), ErrNotRegistered)
	})

	t.Run("FlipsExactlyOnce", func(t *testing.T) {
		require.NoError(t, reg.MarkVoted(electionHandle, voter1))
		assert.True(t, reg.HasVoted(voter1))
		assert.ErrorIs(t, reg.MarkVoted(electionHandle, voter1), ErrAlreadyVoted)
		assert.True(t, reg.HasVoted(voter1))
	})

	t.Run("VotedVoterCannotReRegister", func(t *testing.T) {
		assert.ErrorIs(t, reg.SelfRegister(voter1, common.Hash{2}), ErrAlreadyRegistered)
	})
}

func TestMarkVotedConcurrent(t *testing.T) {
	reg := New(electionHandle, nil)
	require.NoError(t, reg.SelfRegister(voter1, common.Hash{1}))

	var succeeded atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if reg.MarkVoted(electionHandle, voter1) == nil {
				succeeded.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), succeeded.Load())
}

func TestSnapshotRestore(t *testing.T) {
	reg := New(electionHandle, nil)
	require.NoError(t, reg.SelfRegister(voter1, common.Hash{1}))
	require.NoError(t, reg.SelfRegister(voter2, common.Hash{2}))
	require.NoError(t, reg.MarkVoted(electionHandle, voter2))

	snapshot := reg.Snapshot()
	require.Len(t, snapshot, 2)

	restored := New(electionHandle, nil)
	require.NoError(t, restored.Restore(snapshot))
	assert.True(t, restored.IsRegistered(voter1))
	assert.False(t, restored.HasVoted(voter1))
	assert.True(t, restored.HasVoted(voter2))

	registered, voted := restored.Statistics()
	assert.Equal(t, 2, registered)
	assert.Equal(t, 1, voted)

	t.Run("RejectsDuplicates", func(t *testing.T) {
		err := New(electionHandle, nil).Restore(append(snapshot, snapshot[0]))
		assert.Error(t, err)
	})

	t.Run("RejectsVotedWithoutRegistration", func(t *testing.T) {
		bad := []models.Voter{{Identity: voter1, HasVoted: true}}
		assert.Error(t, New(electionHandle, nil).Restore(bad))
	})
}
