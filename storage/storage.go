package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"election-ledger/models"
)

const (
	snapshotPattern = "ledger_snapshot_*.json"
	timestampLayout = "20060102150405.000000000"
)

var ErrNoSnapshot = errors.New("no snapshot found")

// SnapshotStorage keeps a rotating set of timestamped ledger snapshots.
type SnapshotStorage struct {
	dataDir string
	keep    int
	logger  *zap.Logger
	now     func() time.Time
	last    time.Time
	mutex   sync.RWMutex
}

type snapshotFile struct {
	path      string
	timestamp time.Time
}

func NewSnapshotStorage(dataDir string, keep int, logger *zap.Logger) (*SnapshotStorage, error) {
	absPath, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}
	if err := os.MkdirAll(absPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	if keep < 1 {
		keep = 1
	}

	s := &SnapshotStorage{
		dataDir: absPath,
		keep:    keep,
		logger:  logger,
		now:     time.Now,
	}
	files, err := s.listFiles()
	if err != nil {
		return nil, err
	}
	if len(files) > 0 {
		s.last = files[len(files)-1].timestamp
	}
	return s, nil
}

// nextTimestamp keeps file names strictly increasing even if the wall clock
// stalls or steps back. Callers must hold s.mutex.
func (s *SnapshotStorage) nextTimestamp() time.Time {
	ts := s.now().UTC()
	if !ts.After(s.last) {
		ts = s.last.Add(time.Nanosecond)
	}
	s.last = ts
	return ts
}

// listFiles returns snapshot files ordered oldest first. Files whose names do
// not carry a parseable timestamp are skipped.
func (s *SnapshotStorage) listFiles() ([]snapshotFile, error) {
	paths, err := filepath.Glob(filepath.Join(s.dataDir, snapshotPattern))
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}

	files := make([]snapshotFile, 0, len(paths))
	for _, path := range paths {
		base := filepath.Base(path)
		stamp := strings.TrimSuffix(strings.TrimPrefix(base, "ledger_snapshot_"), ".json")
		ts, err := time.Parse(timestampLayout, stamp)
		if err != nil {
			s.logger.Warn("invalid timestamp in snapshot filename", zap.String("file", base), zap.Error(err))
			continue
		}
		files = append(files, snapshotFile{path: path, timestamp: ts})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].timestamp.Before(files[j].timestamp)
	})
	return files, nil
}

func (s *SnapshotStorage) Save(snapshot *models.LedgerSnapshot) (string, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	data, err := json.MarshalIndent(snapshot, "", "    ")
	if err != nil {
		return "", fmt.Errorf("failed to encode snapshot: %w", err)
	}

	filename := filepath.Join(s.dataDir, fmt.Sprintf("ledger_snapshot_%s.json", s.nextTimestamp().Format(timestampLayout)))
	if err := writeFileAtomic(filename, data); err != nil {
		return "", err
	}

	if err := s.cleanupOldFiles(); err != nil {
		s.logger.Warn("failed to cleanup old snapshots", zap.Error(err))
	}

	s.logger.Debug("saved ledger snapshot",
		zap.String("file", filename),
		zap.Int("voters", len(snapshot.Voters)),
		zap.Int("candidates", len(snapshot.Election.Candidates)))
	return filename, nil
}

// LoadLatest returns the most recent snapshot, or ErrNoSnapshot.
func (s *SnapshotStorage) LoadLatest() (*models.LedgerSnapshot, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	files, err := s.listFiles()
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, ErrNoSnapshot
	}

	latest := files[len(files)-1].path
	data, err := os.ReadFile(latest)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", latest, err)
	}

	var snapshot models.LedgerSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot from %s: %w", latest, err)
	}
	if snapshot.Version != models.SnapshotVersion {
		return nil, fmt.Errorf("snapshot %s has unsupported version %d", latest, snapshot.Version)
	}

	s.logger.Info("loaded ledger snapshot", zap.String("file", latest))
	return &snapshot, nil
}

func (s *SnapshotStorage) Count() (int, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	files, err := s.listFiles()
	return len(files), err
}

func (s *SnapshotStorage) cleanupOldFiles() error {
	files, err := s.listFiles()
	if err != nil {
		return err
	}
	if len(files) <= s.keep {
		return nil
	}

	for _, f := range files[:len(files)-s.keep] {
		if err := os.Remove(f.path); err != nil {
			s.logger.Warn("failed to remove old snapshot", zap.String("file", f.path), zap.Error(err))
			continue
		}
		s.logger.Debug("removed old snapshot", zap.String("file", f.path))
	}
	return nil
}

// writeFileAtomic writes to a temporary file and renames it into place.
func writeFileAtomic(path string, data []byte) error {
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", tempPath, err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to move %s into place: %w", path, err)
	}
	return nil
}
