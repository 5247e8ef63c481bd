package models

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

type Phase uint8

const (
	PhaseNotStarted Phase = iota
	PhaseActive
	PhaseEnded
)

func (p Phase) String() string {
	switch p {
	case PhaseNotStarted:
		return "not_started"
	case PhaseActive:
		return "active"
	case PhaseEnded:
		return "ended"
	default:
		return fmt.Sprintf("phase(%d)", uint8(p))
	}
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Phase) UnmarshalText(text []byte) error {
	switch string(text) {
	case "not_started":
		*p = PhaseNotStarted
	case "active":
		*p = PhaseActive
	case "ended":
		*p = PhaseEnded
	default:
		return fmt.Errorf("unknown phase %q", text)
	}
	return nil
}

type Candidate struct {
	ID        uint64 `json:"id"`
	Name      string `json:"name"`
	VoteCount uint64 `json:"vote_count"`
}

// Winners lists tie-inclusive winners in ascending candidate id order.
type Winners struct {
	IDs        []uint64 `json:"ids"`
	Names      []string `json:"names"`
	VoteCounts []uint64 `json:"vote_counts"`
}

// ElectionState is the full persisted state of the ballot state machine.
type ElectionState struct {
	Title          string         `json:"title"`
	Description    string         `json:"description"`
	Phase          Phase          `json:"phase"`
	StartTime      int64          `json:"start_time"`
	EndTime        int64          `json:"end_time"`
	Admin          common.Address `json:"admin"`
	WinnerDeclared bool           `json:"winner_declared"`
	Winners        []uint64       `json:"winners"`
	Candidates     []Candidate    `json:"candidates"`
}

// ElectionInfo is the read-only summary exposed to clients.
type ElectionInfo struct {
	Title           string         `json:"title"`
	Description     string         `json:"description"`
	Phase           Phase          `json:"phase"`
	VotingActive    bool           `json:"voting_active"`
	StartTime       int64          `json:"start_time"`
	EndTime         int64          `json:"end_time"`
	Admin           common.Address `json:"admin"`
	WinnerDeclared  bool           `json:"winner_declared"`
	CandidatesCount int            `json:"candidates_count"`
}
