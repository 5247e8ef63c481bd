package models

import "github.com/ethereum/go-ethereum/common"

// Voter is the registry record for one identity. Commitment is set once.
type Voter struct {
	Identity     common.Address `json:"identity"`
	Registered   bool           `json:"registered"`
	HasVoted     bool           `json:"has_voted"`
	Commitment   common.Hash    `json:"commitment"`
	RegisteredAt int64          `json:"registered_at"`
}

type VoterStatus struct {
	Identity   common.Address `json:"identity"`
	Registered bool           `json:"registered"`
	HasVoted   bool           `json:"has_voted"`
}
