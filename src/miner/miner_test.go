package miner

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/chainlet/chainlet/src/common"
	"github.com/chainlet/chainlet/src/ledger"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMiner(t *testing.T) *Miner {
	return NewMiner(common.NewTestEntry(t, logrus.DebugLevel))
}

func TestMineBlock(t *testing.T) {
	l := ledger.NewLedger(common.NewTestEntry(t, logrus.DebugLevel))
	m := newTestMiner(t)

	tx, err := ledger.NewTransaction(ledger.SystemAddress, "alice", decimal.NewFromInt(3))
	require.NoError(t, err)
	require.NoError(t, l.AddTransaction(tx, false))

	tip, pending := l.Candidate()

	block, err := m.MineBlock(context.Background(), pending, tip, nil)
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	assert.Equal(t, tip.Index+1, block.Index)
	assert.Equal(t, tip.Hash, block.PreviousHash)
	assert.True(t, ledger.MeetsDifficulty(block.Hash))
	assert.NoError(t, block.Verify())
	require.Len(t, block.Transactions, 1)
	assert.Equal(t, tx.ID, block.Transactions[0].ID)

	if err := l.AddBlock(block); err != nil {
		t.Fatalf("err: %v", err)
	}
	assert.Equal(t, 0, l.MempoolSize())

	stats := m.Stats()
	assert.Equal(t, uint64(1), stats.Attempts)
	assert.Equal(t, uint64(1), stats.Mined)
	assert.Equal(t, uint64(0), stats.Aborted)
	assert.True(t, stats.Hashes >= block.Nonce+1)
	assert.False(t, m.Mining())
}

func TestMineBlockProgress(t *testing.T) {
	m := newTestMiner(t)
	m.ProgressInterval = 1
	m.SetTarget("x")

	var calls int32
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	progress := func(index int, nonces uint64) {
		assert.Equal(t, 1, index)
		if atomic.AddInt32(&calls, 1) == 5 {
			cancel()
		}
	}

	_, err := m.MineBlock(ctx, nil, ledger.NewGenesisBlock(), progress)
	assert.Equal(t, ErrMiningAborted, err)
	assert.Equal(t, int32(5), atomic.LoadInt32(&calls))
}

func TestStopMining(t *testing.T) {
	m := newTestMiner(t)
	// hex hashes never contain 'x'
	m.SetTarget("x")

	errCh := make(chan error, 1)
	go func() {
		_, err := m.MineBlock(context.Background(), nil, ledger.NewGenesisBlock(), nil)
		errCh <- err
	}()

	deadline := time.Now().Add(2 * time.Second)
	for !m.Mining() {
		if time.Now().After(deadline) {
			t.Fatal("miner did not start")
		}
		time.Sleep(time.Millisecond)
	}

	m.StopMining()

	select {
	case err := <-errCh:
		assert.Equal(t, ErrMiningAborted, err)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for miner to stop")
	}

	assert.Equal(t, uint64(1), m.Stats().Aborted)
	assert.False(t, m.Mining())
}

func TestMineBlockContextCancelled(t *testing.T) {
	m := newTestMiner(t)
	m.SetTarget("x")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	block, err := m.MineBlock(ctx, nil, ledger.NewGenesisBlock(), nil)
	assert.Nil(t, block)
	assert.Equal(t, ErrMiningAborted, err)
}

func TestStopMiningIdle(t *testing.T) {
	m := newTestMiner(t)

	// no search running
	m.StopMining()

	block, err := m.MineBlock(context.Background(), nil, ledger.NewGenesisBlock(), nil)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	assert.True(t, ledger.MeetsDifficulty(block.Hash))
}

func TestStopMiningConcurrentSearches(t *testing.T) {
	m := newTestMiner(t)
	m.SetTarget("x")

	errCh := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := m.MineBlock(context.Background(), nil, ledger.NewGenesisBlock(), nil)
			errCh <- err
		}()
	}

	deadline := time.Now().Add(2 * time.Second)
	for atomic.LoadInt32(&m.mining) != 2 {
		if time.Now().After(deadline) {
			t.Fatal("searches did not start")
		}
		time.Sleep(time.Millisecond)
	}

	m.StopMining()

	for i := 0; i < 2; i++ {
		select {
		case err := <-errCh:
			assert.Equal(t, ErrMiningAborted, err)
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for miner to stop")
		}
	}
}
