package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"election-ledger/models"
)

// Chain is the on-disk form of one journal.
type Chain struct {
	Blocks []*models.Block `json:"blocks"`
}

// JSONStore keeps named block chains, one file per chain.
type JSONStore struct {
	basePath string
	mu       sync.RWMutex
	chains   map[string]*Chain
}

func NewJSONStore(basePath string) (*JSONStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	return &JSONStore{
		basePath: basePath,
		chains:   make(map[string]*Chain),
	}, nil
}

func (s *JSONStore) chainPath(name string) string {
	return filepath.Join(s.basePath, fmt.Sprintf("%s_chain.json", name))
}

// chain returns the cached chain for name, reading it from disk on first use.
// Callers must hold s.mu for writing.
func (s *JSONStore) chain(name string) (*Chain, error) {
	if chain, ok := s.chains[name]; ok {
		return chain, nil
	}

	chain := &Chain{Blocks: make([]*models.Block, 0)}
	data, err := os.ReadFile(s.chainPath(name))
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("failed to read chain %s: %w", name, err)
	default:
		if err := json.Unmarshal(data, chain); err != nil {
			return nil, fmt.Errorf("failed to unmarshal chain %s: %w", name, err)
		}
	}

	s.chains[name] = chain
	return chain, nil
}

// SaveBlock appends block to the named chain and rewrites its file.
func (s *JSONStore) SaveBlock(name string, block *models.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	chain, err := s.chain(name)
	if err != nil {
		return err
	}

	chain.Blocks = append(chain.Blocks, block)
	if err := s.saveChainToFile(name, chain); err != nil {
		chain.Blocks = chain.Blocks[:len(chain.Blocks)-1]
		return err
	}
	return nil
}

func (s *JSONStore) LoadChain(name string) ([]*models.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chain, err := s.chain(name)
	if err != nil {
		return nil, err
	}

	blocks := make([]*models.Block, len(chain.Blocks))
	copy(blocks, chain.Blocks)
	return blocks, nil
}

func (s *JSONStore) saveChainToFile(name string, chain *Chain) error {
	data, err := json.MarshalIndent(chain, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal chain: %w", err)
	}
	return writeFileAtomic(s.chainPath(name), data)
}
