package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildChain(t *testing.T, n int, difficulty uint8) []*Block {
	t.Helper()
	blocks := []*Block{NewBlock(0, []Event{}, nil, difficulty)}
	for i := 1; i < n; i++ {
		events := []Event{{Type: EventVoteCast, CandidateID: uint64(i), Timestamp: int64(i)}}
		blocks = append(blocks, NewBlock(uint64(i), events, blocks[i-1].Hash, difficulty))
	}
	return blocks
}

func TestMineMeetsDifficulty(t *testing.T) {
	block := NewBlock(0, nil, nil, 1)
	require.Len(t, block.Hash, 32)
	assert.Zero(t, block.Hash[0])
	assert.NoError(t, block.Validate())
}

func TestValidateChain(t *testing.T) {
	blocks := buildChain(t, 4, 0)
	require.NoError(t, ValidateChain(blocks))
	assert.NoError(t, ValidateChain(nil))

	t.Run("tampered event", func(t *testing.T) {
		blocks := buildChain(t, 3, 0)
		blocks[1].Events[0].CandidateID = 99
		assert.ErrorContains(t, ValidateChain(blocks), "hash mismatch")
	})

	t.Run("broken link", func(t *testing.T) {
		blocks := buildChain(t, 3, 0)
		blocks[2].PrevHash = blocks[0].Hash
		blocks[2].Mine()
		assert.ErrorContains(t, ValidateChain(blocks), "broken link")
	})

	t.Run("index gap", func(t *testing.T) {
		blocks := buildChain(t, 2, 0)
		blocks[1].Index = 5
		blocks[1].Mine()
		assert.ErrorContains(t, ValidateChain(blocks), "expected index")
	})

	t.Run("timestamp regression", func(t *testing.T) {
		blocks := buildChain(t, 2, 0)
		blocks[1].Timestamp = blocks[0].Timestamp - 10
		blocks[1].Mine()
		assert.ErrorContains(t, ValidateChain(blocks), "timestamp")
	})
}

func TestBlockSurvivesJSON(t *testing.T) {
	blocks := buildChain(t, 2, 0)
	data, err := json.Marshal(blocks)
	require.NoError(t, err)

	var decoded []*Block
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.NoError(t, ValidateChain(decoded))
}

func TestPhaseText(t *testing.T) {
	for _, p := range []Phase{PhaseNotStarted, PhaseActive, PhaseEnded} {
		text, err := p.MarshalText()
		require.NoError(t, err)

		var decoded Phase
		require.NoError(t, decoded.UnmarshalText(text))
		assert.Equal(t, p, decoded)
	}

	var p Phase
	assert.Error(t, p.UnmarshalText([]byte("paused")))
	assert.Equal(t, "phase(9)", Phase(9).String())
}
