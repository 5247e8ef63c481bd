package service

import (
	"sort"
	"sync"
	"time"
)

// MetricsCollector tracks counts and timings per ledger operation and the
// wall-clock span of the voting phase.
type MetricsCollector struct {
	mu         sync.RWMutex
	operations map[string]*operationStats

	votingPhaseStarted   bool
	votingPhaseStartTime time.Time
	votingPhaseEndTime   time.Time
}

type operationStats struct {
	count     int
	failures  int
	totalTime time.Duration
	firstAt   time.Time
	lastAt    time.Time
}

// OperationMetrics contains timing information for an operation
type OperationMetrics struct {
	Name           string    `json:"name"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	Count          int       `json:"count"`
	Failures       int       `json:"failures"`
	ProcessingTime int64     `json:"processing_time_ms"`
}

type PhaseMetrics struct {
	PhaseStartTime time.Time `json:"phase_start_time,omitempty"`
	PhaseEndTime   time.Time `json:"phase_end_time,omitempty"`
	PhaseDuration  int64     `json:"phase_duration_ms,omitempty"`
}

// LedgerMetrics describes the in-memory caches and persisted state.
type LedgerMetrics struct {
	ActiveSessions        int    `json:"active_sessions"`
	OutstandingChallenges int    `json:"outstanding_challenges"`
	Snapshots             int    `json:"snapshots"`
	JournalHeight         uint64 `json:"journal_height"`
	JournalEvents         int    `json:"journal_events"`
	PendingEvents         int    `json:"pending_events"`
}

// MetricsResponse provides the metrics for all operations
type MetricsResponse struct {
	Operations []OperationMetrics `json:"operations"`
	Voting     PhaseMetrics       `json:"voting_phase"`
	Ledger     *LedgerMetrics     `json:"ledger,omitempty"`
}

func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{operations: make(map[string]*operationStats)}
}

// RecordOperation adds one completed call of name. A non-nil err counts as a failure.
func (mc *MetricsCollector) RecordOperation(name string, duration time.Duration, err error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	now := time.Now()
	stats, ok := mc.operations[name]
	if !ok {
		stats = &operationStats{firstAt: now}
		mc.operations[name] = stats
	}
	stats.count++
	if err != nil {
		stats.failures++
	}
	stats.totalTime += duration
	stats.lastAt = now
}

func (mc *MetricsCollector) StartVotingPhase(at time.Time) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.votingPhaseStarted = true
	mc.votingPhaseStartTime = at
	mc.votingPhaseEndTime = time.Time{}
}

func (mc *MetricsCollector) EndVotingPhase(at time.Time) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if mc.votingPhaseStarted {
		mc.votingPhaseEndTime = at
	}
}

// GetMetrics returns current metrics for all operations, sorted by name
func (mc *MetricsCollector) GetMetrics() MetricsResponse {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	response := MetricsResponse{Operations: make([]OperationMetrics, 0, len(mc.operations))}
	for name, stats := range mc.operations {
		response.Operations = append(response.Operations, OperationMetrics{
			Name:           name,
			StartTime:      stats.firstAt,
			EndTime:        stats.lastAt,
			Count:          stats.count,
			Failures:       stats.failures,
			ProcessingTime: stats.totalTime.Milliseconds(),
		})
	}
	sort.Slice(response.Operations, func(i, j int) bool {
		return response.Operations[i].Name < response.Operations[j].Name
	})

	if mc.votingPhaseStarted {
		response.Voting.PhaseStartTime = mc.votingPhaseStartTime
		if !mc.votingPhaseEndTime.IsZero() {
			response.Voting.PhaseEndTime = mc.votingPhaseEndTime
			response.Voting.PhaseDuration = mc.votingPhaseEndTime.Sub(mc.votingPhaseStartTime).Milliseconds()
		}
	}
	return response
}
