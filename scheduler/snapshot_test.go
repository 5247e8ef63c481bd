package scheduler

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSnapshotter struct {
	calls atomic.Int64
	err   error
}

func (f *fakeSnapshotter) Snapshot() (string, error) {
	f.calls.Add(1)
	if f.err != nil {
		return "", f.err
	}
	return "snapshot.json", nil
}

func TestNewSnapshotSchedulerRejectsBadSchedule(t *testing.T) {
	_, err := NewSnapshotScheduler(&fakeSnapshotter{}, "not a schedule", zap.NewNop())
	assert.Error(t, err)
}

func TestRunNowRecordsStats(t *testing.T) {
	target := &fakeSnapshotter{}
	s, err := NewSnapshotScheduler(target, "@every 1h", zap.NewNop())
	require.NoError(t, err)

	s.RunNow()
	stats := s.Stats()
	assert.Equal(t, int64(1), stats.Runs)
	assert.Zero(t, stats.Failures)
	assert.Equal(t, "snapshot.json", stats.LastPath)
	assert.Empty(t, stats.LastErr)

	target.err = errors.New("disk full")
	s.RunNow()
	stats = s.Stats()
	assert.Equal(t, int64(2), stats.Runs)
	assert.Equal(t, int64(1), stats.Failures)
	assert.Equal(t, "disk full", stats.LastErr)
	assert.Equal(t, "snapshot.json", stats.LastPath)
}

func TestSchedulerFiresOnSchedule(t *testing.T) {
	target := &fakeSnapshotter{}
	s, err := NewSnapshotScheduler(target, "@every 1s", zap.NewNop())
	require.NoError(t, err)

	s.Start()
	defer s.Stop()

	assert.False(t, s.Stats().NextRun.IsZero())
	assert.Eventually(t, func() bool {
		return target.calls.Load() >= 1
	}, 5*time.Second, 50*time.Millisecond)
}
