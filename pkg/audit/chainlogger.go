package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Entry is one tamper-evident audit record. Each entry's hash covers the
// previous entry's hash, so rewriting history breaks the chain.
type Entry struct {
	Seq          uint64 `json:"seq"`
	Timestamp    string `json:"timestamp"`
	PreviousHash string `json:"previous_hash"`
	Payload      string `json:"payload"`
	Hash         string `json:"hash"`
}

// ChainLogger appends hash-chained audit entries. Safe for concurrent use.
type ChainLogger struct {
	mu           sync.Mutex
	seq          uint64
	previousHash string
}

// NewChainLogger creates a logger anchored on a zero hash.
func NewChainLogger() *ChainLogger {
	return &ChainLogger{
		previousHash: strings.Repeat("0", 64),
	}
}

// Append adds one entry to the chain and returns it.
func (c *ChainLogger) Append(payload string) *Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	entry := &Entry{
		Seq:          c.seq,
		Timestamp:    time.Now().UTC().Format(time.RFC3339Nano),
		PreviousHash: c.previousHash,
		Payload:      payload,
	}
	entry.Hash = hashEntry(entry.PreviousHash, entry.Timestamp, entry.Payload)

	c.previousHash = entry.Hash
	return entry
}

// VerifyChain reports whether the entries form an unbroken hash chain.
func VerifyChain(entries []*Entry) bool {
	for i, entry := range entries {
		if i > 0 && entry.PreviousHash != entries[i-1].Hash {
			return false
		}
		if hashEntry(entry.PreviousHash, entry.Timestamp, entry.Payload) != entry.Hash {
			return false
		}
	}
	return true
}

func hashEntry(previousHash, timestamp, payload string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s", previousHash, timestamp, payload)))
	return hex.EncodeToString(sum[:])
}
