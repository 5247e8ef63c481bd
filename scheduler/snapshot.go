// Package scheduler runs the periodic ledger snapshot job.
package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Snapshotter persists the current ledger state and returns where it went.
type Snapshotter interface {
	Snapshot() (string, error)
}

// SnapshotStats summarizes the job's history.
type SnapshotStats struct {
	Runs     int64     `json:"runs"`
	Failures int64     `json:"failures"`
	LastRun  time.Time `json:"last_run"`
	LastPath string    `json:"last_path"`
	LastErr  string    `json:"last_error,omitempty"`
	NextRun  time.Time `json:"next_run"`
}

// SnapshotScheduler triggers Snapshot on a cron schedule.
type SnapshotScheduler struct {
	cron    *cron.Cron
	target  Snapshotter
	logger  *zap.Logger
	entryID cron.EntryID
	stats   SnapshotStats
	mu      sync.Mutex
}

// NewSnapshotScheduler accepts standard five-field expressions and the
// @every/@hourly descriptors.
func NewSnapshotScheduler(target Snapshotter, schedule string, logger *zap.Logger) (*SnapshotScheduler, error) {
	s := &SnapshotScheduler{
		cron:   cron.New(),
		target: target,
		logger: logger,
	}

	entryID, err := s.cron.AddFunc(schedule, func() { s.RunNow() })
	if err != nil {
		return nil, fmt.Errorf("scheduling snapshot job: %w", err)
	}
	s.entryID = entryID
	return s, nil
}

func (s *SnapshotScheduler) Start() {
	s.logger.Info("Starting snapshot scheduler")
	s.cron.Start()
}

// Stop waits for a running snapshot to complete.
func (s *SnapshotScheduler) Stop() {
	s.logger.Info("Stopping snapshot scheduler")
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// RunNow takes a snapshot immediately.
func (s *SnapshotScheduler) RunNow() {
	start := time.Now()
	path, err := s.target.Snapshot()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats.Runs++
	s.stats.LastRun = start
	if err != nil {
		s.stats.Failures++
		s.stats.LastErr = err.Error()
		s.logger.Error("Snapshot failed", zap.Error(err))
		return
	}
	s.stats.LastPath = path
	s.stats.LastErr = ""
	s.logger.Debug("Snapshot written",
		zap.String("path", path),
		zap.Duration("duration", time.Since(start)))
}

func (s *SnapshotScheduler) Stats() SnapshotStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := s.stats
	stats.NextRun = s.cron.Entry(s.entryID).Next
	return stats
}
