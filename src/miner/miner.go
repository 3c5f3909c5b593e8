// Package miner searches for proof-of-work nonces.
//
// StopMining raises the abort flag of every running search. The flag is
// checked before every nonce, so a search stops within one hash of being asked
// to.
package miner

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chainlet/chainlet/src/ledger"
	"github.com/sirupsen/logrus"
)

// DefaultProgressInterval is the number of nonces between progress callbacks.
const DefaultProgressInterval uint64 = 10000

// ErrMiningAborted is returned when a search is stopped or its context is
// cancelled before a nonce was found.
var ErrMiningAborted = errors.New("mining aborted")

// ProgressFunc is called periodically with the block index under search and
// the number of nonces tried so far.
type ProgressFunc func(index int, nonces uint64)

// Stats are the miner's counters.
type Stats struct {
	Attempts uint64
	Mined    uint64
	Aborted  uint64
	Hashes   uint64
}

// Miner builds and seals candidate blocks.
type Miner struct {
	// ProgressInterval overrides DefaultProgressInterval when non-zero.
	ProgressInterval uint64

	// hash prefix to search for
	prefix string

	mu     sync.Mutex
	aborts map[*int32]struct{}

	mining   int32
	attempts uint64
	mined    uint64
	aborted  uint64
	hashes   uint64

	logger *logrus.Entry
}

// NewMiner returns a Miner searching for ledger.DifficultyPrefix.
func NewMiner(logger *logrus.Entry) *Miner {
	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	return &Miner{
		prefix: ledger.DifficultyPrefix,
		aborts: make(map[*int32]struct{}),
		logger: logger.WithField("component", "miner"),
	}
}

// SetTarget changes the hash prefix searched for. It is a test hook: tests
// use an unreachable target to keep a search running. The ledger only
// accepts blocks whose hash starts with ledger.DifficultyPrefix.
func (m *Miner) SetTarget(prefix string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.prefix = prefix
}

// MineBlock builds a block at tip.Index+1 containing pending, and tries nonces
// from 0 upward until the hash meets the difficulty. It returns
// ErrMiningAborted if StopMining is called or ctx is done first.
func (m *Miner) MineBlock(ctx context.Context,
	pending []ledger.Transaction,
	tip *ledger.Block,
	progress ProgressFunc) (*ledger.Block, error) {

	abort := new(int32)

	m.mu.Lock()
	m.aborts[abort] = struct{}{}
	prefix := m.prefix
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.aborts, abort)
		m.mu.Unlock()
	}()

	atomic.AddInt32(&m.mining, 1)
	defer atomic.AddInt32(&m.mining, -1)
	atomic.AddUint64(&m.attempts, 1)

	interval := m.ProgressInterval
	if interval == 0 {
		interval = DefaultProgressInterval
	}

	txs := make([]ledger.Transaction, len(pending))
	copy(txs, pending)

	block := ledger.NewBlock(tip.Index+1, tip.Hash, txs, time.Now().UnixNano())

	start := time.Now()
	var tried uint64

	for nonce := uint64(0); ; nonce++ {
		if atomic.LoadInt32(abort) == 1 || ctx.Err() != nil {
			atomic.AddUint64(&m.aborted, 1)
			atomic.AddUint64(&m.hashes, tried)
			m.logger.WithFields(logrus.Fields{
				"index":  block.Index,
				"nonces": tried,
			}).Debug("Mining aborted")
			return nil, ErrMiningAborted
		}

		block.Nonce = nonce
		hash, err := block.ComputeHash()
		if err != nil {
			return nil, err
		}
		tried++

		if strings.HasPrefix(hash, prefix) {
			block.Hash = hash
			break
		}

		if progress != nil && tried%interval == 0 {
			progress(block.Index, tried)
		}
	}

	atomic.AddUint64(&m.mined, 1)
	atomic.AddUint64(&m.hashes, tried)

	m.logger.WithFields(logrus.Fields{
		"index":    block.Index,
		"nonce":    block.Nonce,
		"hash":     block.Hash,
		"txs":      len(block.Transactions),
		"duration": time.Since(start),
	}).Info("Block mined")

	return block, nil
}

// StopMining aborts the running searches, if any. Searches started afterwards
// are not affected.
func (m *Miner) StopMining() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for abort := range m.aborts {
		atomic.StoreInt32(abort, 1)
	}
}

// Mining reports whether a search is running.
func (m *Miner) Mining() bool {
	return atomic.LoadInt32(&m.mining) > 0
}

// Stats returns a snapshot of the counters.
func (m *Miner) Stats() Stats {
	return Stats{
		Attempts: atomic.LoadUint64(&m.attempts),
		Mined:    atomic.LoadUint64(&m.mined),
		Aborted:  atomic.LoadUint64(&m.aborted),
		Hashes:   atomic.LoadUint64(&m.hashes),
	}
}
