package models

import "github.com/ethereum/go-ethereum/common"

const SnapshotVersion = 1

// LedgerSnapshot is the persisted image of the registry and the election,
// together with the journal events not yet sealed into a block. Sessions and
// outstanding challenges are never part of it.
type LedgerSnapshot struct {
	Version         int            `json:"version"`
	TakenAt         int64          `json:"taken_at"`
	ElectionAddress common.Address `json:"election_address"`
	Election        ElectionState  `json:"election"`
	Voters          []Voter        `json:"voters"`
	JournalHeight   uint64         `json:"journal_height"`
	Pending         []Event        `json:"pending,omitempty"`
}
