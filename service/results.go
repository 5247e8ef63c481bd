package service

import (
	"errors"

	"election-ledger/election"
	"election-ledger/models"
	"election-ledger/registry"
)

// VotingResults is the read model behind the results page.
type VotingResults struct {
	Election         models.ElectionInfo `json:"election"`
	Candidates       []models.Candidate  `json:"candidates"`
	TotalVotes       uint64              `json:"total_votes"`
	RegisteredVoters int                 `json:"registered_voters"`
	VotedVoters      int                 `json:"voted_voters"`
	Winners          *models.Winners     `json:"winners,omitempty"`
}

type VoteCountingService struct {
	election *election.Election
	registry *registry.VoterRegistry
}

func NewVoteCountingService(e *election.Election, r *registry.VoterRegistry) *VoteCountingService {
	return &VoteCountingService{election: e, registry: r}
}

// CountVotes aggregates the live tallies. Winners are included only once declared.
func (vcs *VoteCountingService) CountVotes() (*VotingResults, error) {
	results := &VotingResults{
		Election:   vcs.election.Info(),
		Candidates: vcs.election.GetAllCandidates(),
	}
	for _, c := range results.Candidates {
		results.TotalVotes += c.VoteCount
	}
	results.RegisteredVoters, results.VotedVoters = vcs.registry.Statistics()

	winners, err := vcs.election.GetWinners()
	switch {
	case err == nil:
		results.Winners = &winners
	case !errors.Is(err, election.ErrWinnerNotDeclared):
		return nil, err
	}
	return results, nil
}
