// Package journal keeps an append-only, hash-chained record of every committed
// ledger event. Events are buffered and sealed into blocks of a fixed size.
package journal

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"election-ledger/models"
)

const chainName = "journal"

// BlockStore persists sealed blocks.
type BlockStore interface {
	SaveBlock(name string, block *models.Block) error
	LoadChain(name string) ([]*models.Block, error)
}

type Journal struct {
	blocks     []*models.Block
	pending    []models.Event
	store      BlockStore
	blockSize  int
	difficulty uint8
	logger     *zap.Logger
	mutex      sync.RWMutex
}

// New loads the persisted chain, validating it, or seals a genesis block when
// none exists.
func New(store BlockStore, blockSize int, difficulty uint8, logger *zap.Logger) (*Journal, error) {
	if blockSize < 1 {
		return nil, fmt.Errorf("block size must be positive, got %d", blockSize)
	}

	blocks, err := store.LoadChain(chainName)
	if err != nil {
		return nil, fmt.Errorf("failed to load journal: %w", err)
	}

	j := &Journal{
		blocks:     blocks,
		pending:    make([]models.Event, 0, blockSize),
		store:      store,
		blockSize:  blockSize,
		difficulty: difficulty,
		logger:     logger,
	}

	if len(blocks) == 0 {
		genesis := models.NewBlock(0, []models.Event{}, nil, difficulty)
		if err := store.SaveBlock(chainName, genesis); err != nil {
			return nil, fmt.Errorf("failed to save genesis block: %w", err)
		}
		j.blocks = []*models.Block{genesis}
		logger.Info("created journal genesis block", zap.Binary("hash", genesis.Hash))
		return j, nil
	}

	if err := models.ValidateChain(blocks); err != nil {
		return nil, fmt.Errorf("persisted journal is invalid: %w", err)
	}
	logger.Info("loaded journal", zap.Int("blocks", len(blocks)))
	return j, nil
}

// Notify buffers event and seals a block once the buffer is full. Sealing
// failures are logged and the events stay pending for the next attempt.
func (j *Journal) Notify(event models.Event) {
	j.mutex.Lock()
	defer j.mutex.Unlock()

	j.pending = append(j.pending, event)
	j.logger.Debug("journal event", zap.String("type", string(event.Type)), zap.Int("pending", len(j.pending)))

	if len(j.pending) >= j.blockSize {
		if err := j.seal(); err != nil {
			j.logger.Error("failed to seal journal block", zap.Error(err))
		}
	}
}

// RestorePending puts back events that were buffered but not sealed when the
// ledger was last persisted. It only applies to a journal with nothing pending.
func (j *Journal) RestorePending(events []models.Event) error {
	j.mutex.Lock()
	defer j.mutex.Unlock()

	if len(j.pending) > 0 {
		return fmt.Errorf("journal already has %d pending events", len(j.pending))
	}
	j.pending = append(j.pending, events...)
	return nil
}

// Flush seals whatever is pending, even a partial block.
func (j *Journal) Flush() error {
	j.mutex.Lock()
	defer j.mutex.Unlock()

	if len(j.pending) == 0 {
		return nil
	}
	return j.seal()
}

// seal must be called with j.mutex held.
func (j *Journal) seal() error {
	if len(j.pending) == 0 {
		return errors.New("no pending events to seal")
	}

	last := j.blocks[len(j.blocks)-1]
	events := make([]models.Event, len(j.pending))
	copy(events, j.pending)

	block := models.NewBlock(last.Index+1, events, last.Hash, j.difficulty)
	if block.Timestamp < last.Timestamp {
		block.Timestamp = last.Timestamp
		block.Mine()
	}

	if err := j.store.SaveBlock(chainName, block); err != nil {
		return fmt.Errorf("failed to save block %d: %w", block.Index, err)
	}

	j.blocks = append(j.blocks, block)
	j.pending = j.pending[:0]
	j.logger.Info("sealed journal block",
		zap.Uint64("index", block.Index),
		zap.Int("events", len(events)),
		zap.Uint64("nonce", block.Nonce))
	return nil
}

func (j *Journal) Blocks() []*models.Block {
	j.mutex.RLock()
	defer j.mutex.RUnlock()

	blocks := make([]*models.Block, len(j.blocks))
	copy(blocks, j.blocks)
	return blocks
}

func (j *Journal) Pending() []models.Event {
	j.mutex.RLock()
	defer j.mutex.RUnlock()

	pending := make([]models.Event, len(j.pending))
	copy(pending, j.pending)
	return pending
}

func (j *Journal) PendingCount() int {
	j.mutex.RLock()
	defer j.mutex.RUnlock()

	return len(j.pending)
}

// Height is the index of the last sealed block.
func (j *Journal) Height() uint64 {
	j.mutex.RLock()
	defer j.mutex.RUnlock()

	return j.blocks[len(j.blocks)-1].Index
}

// Events returns all sealed events followed by the pending ones.
func (j *Journal) Events() []models.Event {
	j.mutex.RLock()
	defer j.mutex.RUnlock()

	var events []models.Event
	for _, block := range j.blocks {
		events = append(events, block.Events...)
	}
	return append(events, j.pending...)
}

func (j *Journal) Validate() error {
	j.mutex.RLock()
	defer j.mutex.RUnlock()

	return models.ValidateChain(j.blocks)
}
