// Package election implements the ballot state machine: candidate roster,
// phase transitions, exactly-once vote counting and tie-inclusive winners.
//
// Time based transitions are lazy. Every entry point first evaluates
// maybeFinalize against the current clock, so an elapsed window is closed
// by whichever call touches the election next. Nothing runs in the background.
package election

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"election-ledger/models"
	"election-ledger/registry"
)

// Guard authorizes admin-only operations.
type Guard interface {
	Admin() common.Address
	RequireAdmin(caller common.Address) error
}

// Registry is the slice of the voter registry the election depends on.
// MarkVoted must only succeed for the caller the registry was bound to.
type Registry interface {
	IsRegistered(identity common.Address) bool
	HasVoted(identity common.Address) bool
	MarkVoted(caller, identity common.Address) error
}

type Notifier interface {
	Notify(event models.Event)
}

type Option func(*Election)

// WithClock overrides the time source used for window checks.
func WithClock(now func() time.Time) Option {
	return func(e *Election) {
		e.now = now
	}
}

func WithNotifier(n Notifier) Option {
	return func(e *Election) {
		e.notifier = n
	}
}

type Election struct {
	address  common.Address
	guard    Guard
	registry Registry
	notifier Notifier
	now      func() time.Time

	state models.ElectionState
	mu    sync.Mutex
}

// New creates an election in phase NotStarted. address is the handle the
// registry recognizes as the only caller allowed to consume votes.
func New(address common.Address, guard Guard, voters Registry, opts ...Option) *Election {
	e := &Election{
		address:  address,
		guard:    guard,
		registry: voters,
		now:      time.Now,
		state: models.ElectionState{
			Phase:   models.PhaseNotStarted,
			Admin:   guard.Admin(),
			Winners: []uint64{},
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Election) Address() common.Address {
	return e.address
}

// maybeFinalize closes an Active election whose window has elapsed.
// Callers must hold e.mu.
func (e *Election) maybeFinalize(now int64) bool {
	if e.state.Phase != models.PhaseActive || e.state.WinnerDeclared {
		return false
	}
	if now <= e.state.EndTime {
		return false
	}
	e.finalize(now, true)
	return true
}

// finalize performs the Active to Ended transition. Callers must hold e.mu
// and have checked that winners are not yet declared.
func (e *Election) finalize(now int64, automatic bool) {
	e.state.Winners = tieInclusiveWinners(e.state.Candidates)
	e.state.WinnerDeclared = true
	e.state.Phase = models.PhaseEnded

	e.notify(models.Event{
		Type:      models.EventElectionEnded,
		Timestamp: now,
		Winners:   append([]uint64(nil), e.state.Winners...),
		Automatic: automatic,
	})
}

func (e *Election) notify(event models.Event) {
	if e.notifier != nil {
		e.notifier.Notify(event)
	}
}

func (e *Election) AddCandidate(caller common.Address, name string) (models.Candidate, error) {
	if err := e.guard.RequireAdmin(caller); err != nil {
		return models.Candidate{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Candidate{}, ErrInvalidCandidateName
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now().Unix()
	e.maybeFinalize(now)

	if e.state.Phase == models.PhaseActive {
		return models.Candidate{}, ErrVotingInProgress
	}
	if e.state.WinnerDeclared && len(e.state.Candidates) > 0 {
		return models.Candidate{}, ErrElectionConcluded
	}

	candidate := models.Candidate{
		ID:   uint64(len(e.state.Candidates)) + 1,
		Name: name,
	}
	e.state.Candidates = append(e.state.Candidates, candidate)

	e.notify(models.Event{
		Type:        models.EventCandidateAdded,
		Timestamp:   now,
		CandidateID: candidate.ID,
		Name:        candidate.Name,
	})
	return candidate, nil
}

// ResetCandidatesForNewElection empties the roster and returns the election to
// NotStarted. Voter records are untouched.
func (e *Election) ResetCandidatesForNewElection(caller common.Address) error {
	if err := e.guard.RequireAdmin(caller); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now().Unix()
	e.maybeFinalize(now)

	if e.state.Phase == models.PhaseActive {
		return ErrVotingInProgress
	}

	e.state.Candidates = nil
	e.state.Winners = []uint64{}
	e.state.WinnerDeclared = false
	e.state.Phase = models.PhaseNotStarted
	e.state.StartTime = 0
	e.state.EndTime = 0

	e.notify(models.Event{Type: models.EventCandidatesReset, Timestamp: now})
	return nil
}

func (e *Election) StartVoting(caller common.Address, start, end int64) error {
	if err := e.guard.RequireAdmin(caller); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now().Unix()
	e.maybeFinalize(now)

	if e.state.Phase == models.PhaseActive {
		return ErrVotingInProgress
	}
	if start >= end {
		return ErrInvalidWindow
	}
	if e.state.WinnerDeclared {
		return ErrElectionConcluded
	}

	e.state.Phase = models.PhaseActive
	e.state.StartTime = start
	e.state.EndTime = end

	e.notify(models.Event{
		Type:      models.EventVotingStarted,
		Timestamp: now,
		StartTime: start,
		EndTime:   end,
	})
	return nil
}

// Vote records one vote for candidateID. The checks, the registry update and
// the tally increment happen under a single lock so no other operation can
// observe a partially applied vote.
func (e *Election) Vote(voter common.Address, candidateID uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now().Unix()
	e.maybeFinalize(now)

	if e.state.Phase != models.PhaseActive || now < e.state.StartTime || now > e.state.EndTime {
		return ErrVotingNotActive
	}
	if !e.registry.IsRegistered(voter) {
		return fmt.Errorf("vote from %s: %w", voter.Hex(), registry.ErrNotRegistered)
	}
	if e.registry.HasVoted(voter) {
		return fmt.Errorf("vote from %s: %w", voter.Hex(), registry.ErrAlreadyVoted)
	}
	if candidateID == 0 || candidateID > uint64(len(e.state.Candidates)) {
		return ErrInvalidCandidate
	}

	if err := e.registry.MarkVoted(e.address, voter); err != nil {
		return fmt.Errorf("mark voted: %w", err)
	}
	e.state.Candidates[candidateID-1].VoteCount++

	e.notify(models.Event{
		Type:        models.EventVoteCast,
		Timestamp:   now,
		CandidateID: candidateID,
	})
	return nil
}

// EndVoting closes the election on the admin's request, whether or not the
// window has elapsed.
func (e *Election) EndVoting(caller common.Address) error {
	if err := e.guard.RequireAdmin(caller); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state.WinnerDeclared {
		return ErrAlreadyEnded
	}
	if e.state.Phase != models.PhaseActive {
		return ErrVotingNotActive
	}
	e.finalize(e.now().Unix(), false)
	return nil
}

// AutoEndElection may be called by anyone. It ends the election only once the
// window has elapsed and reports whether this call performed the transition.
func (e *Election) AutoEndElection() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.maybeFinalize(e.now().Unix())
}

func (e *Election) GetWinners() (models.Winners, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.maybeFinalize(e.now().Unix())

	if !e.state.WinnerDeclared {
		return models.Winners{}, ErrWinnerNotDeclared
	}

	winners := models.Winners{
		IDs:        make([]uint64, 0, len(e.state.Winners)),
		Names:      make([]string, 0, len(e.state.Winners)),
		VoteCounts: make([]uint64, 0, len(e.state.Winners)),
	}
	for _, id := range e.state.Winners {
		c := e.state.Candidates[id-1]
		winners.IDs = append(winners.IDs, c.ID)
		winners.Names = append(winners.Names, c.Name)
		winners.VoteCounts = append(winners.VoteCounts, c.VoteCount)
	}
	return winners, nil
}

// GetAllCandidates returns a copy of the roster in id order.
func (e *Election) GetAllCandidates() []models.Candidate {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.maybeFinalize(e.now().Unix())

	candidates := make([]models.Candidate, len(e.state.Candidates))
	copy(candidates, e.state.Candidates)
	return candidates
}

func (e *Election) GetCandidate(id uint64) (models.Candidate, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.maybeFinalize(e.now().Unix())

	if id == 0 || id > uint64(len(e.state.Candidates)) {
		return models.Candidate{}, ErrInvalidCandidate
	}
	return e.state.Candidates[id-1], nil
}

func (e *Election) SetDetails(caller common.Address, title, description string) error {
	if err := e.guard.RequireAdmin(caller); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now().Unix()
	e.maybeFinalize(now)

	if e.state.Phase == models.PhaseActive {
		return ErrVotingInProgress
	}
	e.state.Title = strings.TrimSpace(title)
	e.state.Description = strings.TrimSpace(description)

	e.notify(models.Event{
		Type:      models.EventDetailsUpdated,
		Timestamp: now,
		Name:      e.state.Title,
	})
	return nil
}

func (e *Election) Info() models.ElectionInfo {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.maybeFinalize(e.now().Unix())

	return models.ElectionInfo{
		Title:           e.state.Title,
		Description:     e.state.Description,
		Phase:           e.state.Phase,
		VotingActive:    e.state.Phase == models.PhaseActive,
		StartTime:       e.state.StartTime,
		EndTime:         e.state.EndTime,
		Admin:           e.state.Admin,
		WinnerDeclared:  e.state.WinnerDeclared,
		CandidatesCount: len(e.state.Candidates),
	}
}

// Snapshot returns a deep copy of the state. It does not finalize, so the
// copy reflects exactly what was committed.
func (e *Election) Snapshot() models.ElectionState {
	e.mu.Lock()
	defer e.mu.Unlock()

	return copyState(e.state)
}

// Restore replaces the state with a snapshot after checking its invariants.
func (e *Election) Restore(state models.ElectionState) error {
	if err := validateState(state, e.guard.Admin()); err != nil {
		return fmt.Errorf("restore election: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = copyState(state)
	return nil
}

func copyState(s models.ElectionState) models.ElectionState {
	out := s
	out.Candidates = append([]models.Candidate(nil), s.Candidates...)
	out.Winners = append([]uint64{}, s.Winners...)
	return out
}

func validateState(s models.ElectionState, admin common.Address) error {
	if s.Admin != admin {
		return fmt.Errorf("snapshot admin %s does not match %s", s.Admin.Hex(), admin.Hex())
	}
	if s.StartTime != 0 && s.EndTime != 0 && s.StartTime >= s.EndTime {
		return ErrInvalidWindow
	}
	for i, c := range s.Candidates {
		if c.ID != uint64(i)+1 {
			return fmt.Errorf("candidate %q has id %d, want %d", c.Name, c.ID, i+1)
		}
	}
	if s.WinnerDeclared != (s.Phase == models.PhaseEnded) {
		return fmt.Errorf("phase %s inconsistent with winner_declared=%t", s.Phase, s.WinnerDeclared)
	}
	for _, id := range s.Winners {
		if id == 0 || id > uint64(len(s.Candidates)) {
			return fmt.Errorf("winner %d: %w", id, ErrInvalidCandidate)
		}
	}
	return nil
}
