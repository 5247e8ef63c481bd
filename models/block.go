package models

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/crypto/sha3"
)

// Block is one sealed page of the ledger journal.
type Block struct {
	Index      uint64  `json:"index"`
	Timestamp  int64   `json:"timestamp"`
	Events     []Event `json:"events"`
	PrevHash   []byte  `json:"prev_hash"`
	Hash       []byte  `json:"hash"`
	Nonce      uint64  `json:"nonce"`
	Difficulty uint8   `json:"difficulty"` // Number of leading zero bytes required
}

func NewBlock(index uint64, events []Event, prevHash []byte, difficulty uint8) *Block {
	block := &Block{
		Index:      index,
		Timestamp:  time.Now().Unix(),
		Events:     events,
		PrevHash:   prevHash,
		Difficulty: difficulty,
	}

	block.Mine()
	return block
}

func (b *Block) Mine() {
	target := make([]byte, b.Difficulty)
	var nonce uint64
	for {
		b.Nonce = nonce
		b.Hash = b.calculateHash()

		if bytes.HasPrefix(b.Hash, target) {
			return
		}

		nonce++
		if nonce%1000 == 0 {
			time.Sleep(time.Microsecond) // Prevent CPU hogging
		}
	}
}

func (b *Block) calculateHash() []byte {
	buffer := new(bytes.Buffer)
	binary.Write(buffer, binary.BigEndian, b.Index)
	binary.Write(buffer, binary.BigEndian, b.Timestamp)
	// Events only hold plain fields, Marshal cannot fail here.
	payload, _ := json.Marshal(b.Events)
	buffer.Write(payload)
	buffer.Write(b.PrevHash)
	binary.Write(buffer, binary.BigEndian, b.Nonce)

	d := sha3.NewLegacyKeccak256()
	d.Write(buffer.Bytes())
	return d.Sum(nil)
}

func (b *Block) Validate() error {
	calculated := b.calculateHash()
	if !bytes.Equal(calculated, b.Hash) {
		return fmt.Errorf("block %d: hash mismatch: stored %x, calculated %x", b.Index, b.Hash, calculated)
	}

	target := make([]byte, b.Difficulty)
	if !bytes.HasPrefix(calculated, target) {
		return fmt.Errorf("block %d: hash does not meet difficulty %d", b.Index, b.Difficulty)
	}
	return nil
}

// ValidateChain checks hashes, links, indices and timestamp ordering of a journal.
func ValidateChain(blocks []*Block) error {
	for i, current := range blocks {
		if err := current.Validate(); err != nil {
			return err
		}
		if i == 0 {
			continue
		}

		previous := blocks[i-1]
		if !bytes.Equal(current.PrevHash, previous.Hash) {
			return fmt.Errorf("block %d: broken link to previous hash", current.Index)
		}
		if current.Index != previous.Index+1 {
			return fmt.Errorf("block %d: expected index %d", current.Index, previous.Index+1)
		}
		if current.Timestamp < previous.Timestamp {
			return fmt.Errorf("block %d: timestamp precedes block %d", current.Index, previous.Index)
		}
	}
	return nil
}
