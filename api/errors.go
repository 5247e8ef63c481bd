package api

import (
	"errors"
	"net/http"

	"election-ledger/admin"
	"election-ledger/election"
	"election-ledger/proof"
	"election-ledger/registry"
	"election-ledger/service"
)

type errorKind struct {
	err    error
	kind   string
	status int
}

// errorKinds maps ledger errors to the kind name and HTTP status clients see.
var errorKinds = []errorKind{
	{registry.ErrAlreadyRegistered, "AlreadyRegistered", http.StatusConflict},
	{registry.ErrNotAuthorizedCaller, "NotAuthorizedCaller", http.StatusForbidden},
	{registry.ErrAlreadyVoted, "AlreadyVoted", http.StatusConflict},
	{registry.ErrNotRegistered, "NotRegistered", http.StatusForbidden},
	{election.ErrVotingInProgress, "VotingInProgress", http.StatusConflict},
	{election.ErrElectionConcluded, "ElectionConcluded", http.StatusConflict},
	{election.ErrInvalidWindow, "InvalidWindow", http.StatusBadRequest},
	{election.ErrVotingNotActive, "VotingNotActive", http.StatusConflict},
	{election.ErrInvalidCandidate, "InvalidCandidate", http.StatusNotFound},
	{election.ErrInvalidCandidateName, "InvalidCandidateName", http.StatusBadRequest},
	{election.ErrAlreadyEnded, "AlreadyEnded", http.StatusConflict},
	{election.ErrWinnerNotDeclared, "WinnerNotDeclared", http.StatusConflict},
	{admin.ErrNotAdmin, "NotAdmin", http.StatusForbidden},
	{proof.ErrProofMismatch, "ProofMismatch", http.StatusUnauthorized},
	{proof.ErrInvalidSignature, "InvalidSignature", http.StatusBadRequest},
	{proof.ErrUnknownChallenge, "UnknownChallenge", http.StatusUnauthorized},
	{proof.ErrSessionNotFound, "SessionNotFound", http.StatusUnauthorized},
	{service.ErrQueueFull, "QueueFull", http.StatusServiceUnavailable},
	{service.ErrQueueStopped, "QueueStopped", http.StatusServiceUnavailable},
	{service.ErrNotPersisted, "NotPersisted", http.StatusInternalServerError},
}

func classify(err error) (kind string, status int) {
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.kind, k.status
		}
	}
	return "Internal", http.StatusInternalServerError
}
