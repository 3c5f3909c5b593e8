package node

import (
	"fmt"
	gonet "net"
	"sync"
	"testing"
	"time"

	"github.com/chainlet/chainlet/src/config"
	"github.com/chainlet/chainlet/src/ledger"
	"github.com/chainlet/chainlet/src/net"
	"github.com/chainlet/chainlet/src/node/state"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestNode(t *testing.T, mine bool) *Node {
	conf := config.NewTestConfig(t, logrus.DebugLevel)
	conf.Mine = mine
	conf.Discover = false

	trans, err := net.NewTCPTransport(conf.BindAddr, "", conf.TCPTimeout, conf.MaxFrameSize, conf.Logger())
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	node := NewNode(conf, trans)
	if err := node.Start(); err != nil {
		t.Fatalf("err: %v", err)
	}
	t.Cleanup(node.Stop)

	return node
}

func deadAddr(t *testing.T) string {
	l, err := gonet.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	l.Close()
	return addr
}

func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// mineLocal extends the node's chain by count blocks, each minting one coin.
func mineLocal(t *testing.T, n *Node, count int) {
	for i := 0; i < count; i++ {
		if _, err := n.CreateTransaction(ledger.SystemAddress, "miner", decimal.NewFromInt(1)); err != nil {
			t.Fatalf("err: %v", err)
		}
		if _, err := n.Mine(); err != nil {
			t.Fatalf("err: %v", err)
		}
	}
}

func sameChain(a, b *Node) bool {
	ca, cb := a.Chain(), b.Chain()
	if len(ca) != len(cb) {
		return false
	}
	for i := range ca {
		if ca[i].Hash != cb[i].Hash {
			return false
		}
	}
	return true
}

func TestSameGenesis(t *testing.T) {
	a := newTestNode(t, false)
	b := newTestNode(t, false)

	ca, cb := a.Chain(), b.Chain()
	require.Len(t, ca, 1)
	require.Len(t, cb, 1)
	assert.Equal(t, ca[0].Hash, cb[0].Hash)
}

func TestConnectToPeer(t *testing.T) {
	a := newTestNode(t, false)
	b := newTestNode(t, false)

	mineLocal(t, b, 2)

	if !a.ConnectToPeer(b.Addr()) {
		t.Fatal("ConnectToPeer should succeed")
	}

	assert.Equal(t, []string{b.Addr()}, a.Peers())
	assert.True(t, sameChain(a, b))

	// b registered a when answering REQUEST_CHAIN
	waitFor(t, time.Second, "b to register a", func() bool {
		return len(b.Peers()) == 1 && b.Peers()[0] == a.Addr()
	})

	// idempotent
	assert.True(t, a.ConnectToPeer(b.Addr()))
	assert.Len(t, a.Peers(), 1)
}

func TestConnectToPeerRefused(t *testing.T) {
	a := newTestNode(t, false)

	assert.False(t, a.ConnectToPeer(""))
	assert.False(t, a.ConnectToPeer(a.Addr()))
	assert.False(t, a.ConnectToPeer(deadAddr(t)))
	assert.Empty(t, a.Peers())
}

func TestSyncBlockchain(t *testing.T) {
	a := newTestNode(t, false)
	b := newTestNode(t, false)

	mineLocal(t, a, 2)
	mineLocal(t, b, 4)
	require.Equal(t, 3, a.Ledger().Len())
	require.Equal(t, 5, b.Ledger().Len())

	dead := deadAddr(t)
	a.peers.Merge([]string{b.Addr(), dead})
	b.peers.Add(a.Addr())

	// a's chain is shorter than b's
	assert.False(t, b.SyncBlockchain())
	assert.Equal(t, 5, b.Ledger().Len())

	assert.True(t, a.SyncBlockchain())
	assert.True(t, sameChain(a, b))
	assert.Equal(t, 0, a.Ledger().MempoolSize())

	// already in sync
	assert.False(t, a.SyncBlockchain())
	assert.False(t, a.peers.Contains(dead))
}

func TestSyncMempool(t *testing.T) {
	a := newTestNode(t, false)
	b := newTestNode(t, false)

	tx, err := a.CreateTransaction(ledger.SystemAddress, "x", decimal.NewFromInt(7))
	require.NoError(t, err)

	dead := deadAddr(t)
	b.peers.Merge([]string{a.Addr(), dead})

	res := b.SyncMempool()
	assert.Equal(t, 1, res.Added)
	assert.Equal(t, []string{dead}, res.Unreachable)
	assert.Equal(t, []string{a.Addr()}, b.Peers())

	pending := b.Mempool()
	require.Len(t, pending, 1)
	assert.Equal(t, tx.ID, pending[0].ID)

	// nothing new the second time
	res = b.SyncMempool()
	assert.Equal(t, 0, res.Added)
	assert.Empty(t, res.Unreachable)
}

func TestTransactionGossip(t *testing.T) {
	a := newTestNode(t, false)
	b := newTestNode(t, false)
	c := newTestNode(t, false)

	require.True(t, a.ConnectToPeer(b.Addr()))
	require.True(t, b.ConnectToPeer(c.Addr()))

	tx, err := a.CreateTransaction(ledger.SystemAddress, "x", decimal.NewFromInt(3))
	require.NoError(t, err)

	// a -> b -> c
	for _, n := range []*Node{b, c} {
		node := n
		waitFor(t, 3*time.Second, "transaction gossip", func() bool {
			pending := node.Mempool()
			return len(pending) == 1 && pending[0].ID == tx.ID
		})
	}
}

func TestCreateTransactionRejected(t *testing.T) {
	a := newTestNode(t, false)

	_, err := a.CreateTransaction("nobody", "x", decimal.NewFromInt(3))
	assert.True(t, ledger.IsValidation(err))

	_, err = a.CreateTransaction(ledger.SystemAddress, "x", decimal.Zero)
	assert.True(t, ledger.IsValidation(err))

	assert.Empty(t, a.Mempool())

	_, err = a.Mine()
	assert.Equal(t, ErrNothingToMine, err)
}

func TestBlockGossip(t *testing.T) {
	a := newTestNode(t, false)
	b := newTestNode(t, false)

	require.True(t, a.ConnectToPeer(b.Addr()))

	_, err := a.CreateTransaction(ledger.SystemAddress, "x", decimal.NewFromInt(10))
	require.NoError(t, err)
	waitFor(t, 3*time.Second, "transaction gossip", func() bool {
		return len(b.Mempool()) == 1
	})

	block, err := a.Mine()
	require.NoError(t, err)

	waitFor(t, 3*time.Second, "block gossip", func() bool {
		return b.Ledger().Len() == 2
	})
	assert.True(t, sameChain(a, b))
	assert.Equal(t, block.Hash, b.Ledger().Tip().Hash)
	assert.Empty(t, b.Mempool())
	assert.True(t, b.Balance("x").Equal(decimal.NewFromInt(10)))
}

func TestRejectedBlockTriggersResync(t *testing.T) {
	a := newTestNode(t, false)
	b := newTestNode(t, false)

	mineLocal(t, a, 2)
	mineLocal(t, b, 4)

	// b only announces its tip, which does not extend a's chain
	b.peers.Add(a.Addr())
	b.Broadcast(net.NewBlockMessage(b.Addr(), b.Ledger().Tip()), "")

	waitFor(t, 3*time.Second, "resync", func() bool {
		return sameChain(a, b)
	})
}

func TestMiningLoop(t *testing.T) {
	a := newTestNode(t, true)

	_, err := a.CreateTransaction(ledger.SystemAddress, "x", decimal.NewFromInt(1))
	require.NoError(t, err)

	waitFor(t, 5*time.Second, "mined block", func() bool {
		return a.Ledger().Len() == 2
	})
	assert.Empty(t, a.Mempool())
	assert.True(t, a.Balance("x").Equal(decimal.NewFromInt(1)))
	assert.Equal(t, "1", a.GetStats()["blocks_mined"])
}

func TestIncomingBlockAbortsMining(t *testing.T) {
	a := newTestNode(t, true)
	b := newTestNode(t, false)

	// a searches for a hash it will not find in the time of the test
	a.miner.SetTarget("0000000000")

	require.True(t, b.ConnectToPeer(a.Addr()))

	_, err := a.CreateTransaction(ledger.SystemAddress, "a", decimal.NewFromInt(1))
	require.NoError(t, err)

	waitFor(t, 3*time.Second, "a to start mining", a.miner.Mining)

	mineLocal(t, b, 1)

	waitFor(t, 3*time.Second, "a to accept b's block", func() bool {
		return a.Ledger().Len() == 2
	})
	waitFor(t, 3*time.Second, "a's search to abort", func() bool {
		return a.miner.Stats().Aborted >= 1
	})

	assert.True(t, sameChain(a, b))
	assert.Equal(t, uint64(0), a.miner.Stats().Mined)
}

func TestDiscovery(t *testing.T) {
	a := newTestNode(t, false)
	b := newTestNode(t, false)
	c := newTestNode(t, false)

	require.True(t, b.ConnectToPeer(c.Addr()))

	a.conf.Discover = true
	require.True(t, a.ConnectToPeer(b.Addr()))

	waitFor(t, 3*time.Second, "a to discover c", func() bool {
		return a.peers.Contains(c.Addr())
	})
	// the ping made c aware of a
	waitFor(t, 3*time.Second, "c to register a", func() bool {
		return c.peers.Contains(a.Addr())
	})
	assert.False(t, a.peers.Contains(a.Addr()))
}

func TestUnsupportedMessage(t *testing.T) {
	a := newTestNode(t, false)
	b := newTestNode(t, false)

	// a PONG nobody asked for is ignored
	require.NoError(t, b.trans.Send(a.Addr(), net.NewMessage(net.TypePong, b.Addr(), nil)))

	assert.True(t, b.ping(a.Addr()))
	waitFor(t, time.Second, "a to register b", func() bool {
		return a.peers.Contains(b.Addr())
	})
}

func TestGetStats(t *testing.T) {
	a := newTestNode(t, false)

	stats := a.GetStats()
	assert.Equal(t, a.Addr(), stats["addr"])
	assert.Equal(t, "Running", stats["state"])
	assert.Equal(t, "1", stats["chain_length"])
	assert.Equal(t, "0", stats["transaction_pool"])
	assert.Equal(t, "0", stats["num_peers"])
	assert.Equal(t, "false", stats["mining"])
}

func TestStopIsIdempotent(t *testing.T) {
	a := newTestNode(t, true)

	a.Stop()
	a.Stop()

	assert.Equal(t, "Shutdown", a.GetState().String())
	assert.False(t, a.ConnectToPeer(deadAddr(t)))
}

func newInmemNode(t *testing.T) (*Node, *net.InmemTransport) {
	conf := config.NewTestConfig(t, logrus.DebugLevel)
	conf.Mine = false
	conf.Discover = false

	_, trans := net.NewInmemTransport("")

	node := NewNode(conf, trans)
	if err := node.Start(); err != nil {
		t.Fatalf("err: %v", err)
	}
	t.Cleanup(node.Stop)

	return node, trans
}

func TestInmemGossip(t *testing.T) {
	a, ta := newInmemNode(t)
	b, tb := newInmemNode(t)
	ta.Connect(b.Addr(), tb)
	tb.Connect(a.Addr(), ta)

	require.True(t, a.ConnectToPeer(b.Addr()))

	_, err := a.CreateTransaction(ledger.SystemAddress, "x", decimal.NewFromInt(2))
	require.NoError(t, err)
	waitFor(t, 3*time.Second, "transaction gossip", func() bool {
		return len(b.Mempool()) == 1
	})

	_, err = a.Mine()
	require.NoError(t, err)
	waitFor(t, 3*time.Second, "block gossip", func() bool {
		return sameChain(a, b)
	})
	assert.True(t, b.Balance("x").Equal(decimal.NewFromInt(2)))

	// unknown routes are unreachable
	assert.False(t, a.ConnectToPeer(net.NewInmemAddr()))
}

// silentPeer accepts connections and never answers them.
func silentPeer(t *testing.T) string {
	l, err := gonet.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var (
		mu    sync.Mutex
		conns []gonet.Conn
	)
	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, conn)
			mu.Unlock()
		}
	}()

	t.Cleanup(func() {
		l.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			c.Close()
		}
	})

	return l.Addr().String()
}

func TestStopDuringSync(t *testing.T) {
	a := newTestNode(t, false)
	a.peers.Add(silentPeer(t))

	done := make(chan bool, 1)
	go func() {
		done <- a.SyncBlockchain()
	}()

	waitFor(t, time.Second, "sync to start", func() bool {
		return a.GetState() == state.Syncing
	})

	a.Stop()

	select {
	case synced := <-done:
		assert.False(t, synced)
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for sync to return")
	}

	assert.Equal(t, state.Shutdown, a.GetState())
	assert.False(t, a.GoFunc(func() {}))
	assert.Equal(t, "Shutdown", a.GetStats()["state"])
}

func TestSyncRestoresRunning(t *testing.T) {
	a := newTestNode(t, false)
	a.peers.Add(deadAddr(t))

	assert.False(t, a.SyncBlockchain())
	assert.Equal(t, state.Running, a.GetState())
}

func TestConnectToPeerAsyncReply(t *testing.T) {
	a := newTestNode(t, false)
	b := newTestNode(t, false)

	mineLocal(t, b, 2)
	chain := b.Chain()
	require.Len(t, chain, 3)

	l, err := gonet.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	peerAddr := l.Addr().String()

	// the peer closes the request connection and sends its chain on a new one
	errCh := make(chan error, 1)
	go func() {
		errCh <- func() error {
			conn, err := l.Accept()
			if err != nil {
				return err
			}
			msg, err := net.ReadFrame(conn, net.DefaultMaxFrameSize)
			conn.Close()
			if err != nil {
				return err
			}
			if msg.Type != net.TypeRequestChain {
				return fmt.Errorf("unexpected message %s", msg.Type)
			}

			back, err := gonet.Dial("tcp", msg.Sender)
			if err != nil {
				return err
			}
			defer back.Close()

			return net.WriteFrame(back, net.NewChainMessage(peerAddr, chain))
		}()
	}()

	require.True(t, a.ConnectToPeer(peerAddr))

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("err: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for peer")
	}

	waitFor(t, 3*time.Second, "chain from callback", func() bool {
		return a.Ledger().Len() == 3
	})
	assert.Equal(t, chain[2].Hash, a.Ledger().Tip().Hash)
	assert.Equal(t, []string{peerAddr}, a.Peers())
}

func TestBroadcastExcludesPeer(t *testing.T) {
	a := newTestNode(t, false)
	b := newTestNode(t, false)
	c := newTestNode(t, false)

	a.peers.Merge([]string{b.Addr(), c.Addr()})

	tx, err := ledger.NewTransaction(ledger.SystemAddress, "x", decimal.NewFromInt(1))
	require.NoError(t, err)

	a.Broadcast(net.NewTransactionMessage(a.Addr(), tx), b.Addr())

	waitFor(t, 3*time.Second, "c to receive the transaction", func() bool {
		return len(c.Mempool()) == 1
	})
	// c does not know b, so nothing reaches b through c either
	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, b.Mempool())
}
