package election

import "errors"

var (
	ErrVotingInProgress     = errors.New("voting is in progress")
	ErrElectionConcluded    = errors.New("election concluded, reset candidates first")
	ErrInvalidWindow        = errors.New("start time must be before end time")
	ErrVotingNotActive      = errors.New("voting is not active")
	ErrInvalidCandidate     = errors.New("invalid candidate")
	ErrInvalidCandidateName = errors.New("candidate name must not be empty")
	ErrAlreadyEnded         = errors.New("election already ended")
	ErrWinnerNotDeclared    = errors.New("winner not declared yet")
)
