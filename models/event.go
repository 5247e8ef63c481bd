package models

type EventType string

const (
	EventVoterRegistered EventType = "voter_registered"
	EventCandidateAdded  EventType = "candidate_added"
	EventCandidatesReset EventType = "candidates_reset"
	EventDetailsUpdated  EventType = "details_updated"
	EventVotingStarted   EventType = "voting_started"
	EventVoteCast        EventType = "vote_cast"
	EventElectionEnded   EventType = "election_ended"
)

// Event is a notification emitted by a committed state transition.
// VoteCast events never carry the voter identity.
type Event struct {
	Type        EventType `json:"type"`
	Timestamp   int64     `json:"timestamp"`
	Identity    string    `json:"identity,omitempty"`
	Commitment  string    `json:"commitment,omitempty"`
	CandidateID uint64    `json:"candidate_id,omitempty"`
	Name        string    `json:"name,omitempty"`
	StartTime   int64     `json:"start_time,omitempty"`
	EndTime     int64     `json:"end_time,omitempty"`
	Winners     []uint64  `json:"winners,omitempty"`
	Automatic   bool      `json:"automatic,omitempty"`
}
