package node

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chainlet/chainlet/src/config"
	"github.com/chainlet/chainlet/src/ledger"
	"github.com/chainlet/chainlet/src/miner"
	"github.com/chainlet/chainlet/src/net"
	"github.com/chainlet/chainlet/src/node/state"
	"github.com/chainlet/chainlet/src/peers"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Node defines a chainlet node
type Node struct {
	// Node's state is used to count and wait for background routines
	state.Manager

	conf   *config.Config
	logger *logrus.Entry

	self string

	ledger *ledger.Ledger
	miner  *miner.Miner
	peers  *peers.PeerSet

	trans net.Transport
	netCh <-chan net.RPC

	// wakes up the mining loop when the mempool changes
	mineCh chan struct{}

	ctx    context.Context
	cancel context.CancelFunc

	shutdownCh chan struct{}
	stopOnce   sync.Once

	start time.Time

	messagesIn   uint64
	syncRequests uint64
	syncErrors   uint64
}

// NewNode is a factory method that returns a Node instance. The node's
// address is the transport's advertised address.
func NewNode(conf *config.Config, trans net.Transport) *Node {
	self := trans.AdvertiseAddr()
	logger := conf.Logger().WithField("node", self)

	if conf.Moniker != "" {
		logger = logger.WithField("moniker", conf.Moniker)
	}

	m := miner.NewMiner(logger)

	ctx, cancel := context.WithCancel(context.Background())

	node := Node{
		conf:       conf,
		logger:     logger,
		self:       self,
		ledger:     ledger.NewLedger(logger),
		miner:      m,
		peers:      peers.NewPeerSet(self),
		trans:      trans,
		netCh:      trans.Consumer(),
		mineCh:     make(chan struct{}, 1),
		ctx:        ctx,
		cancel:     cancel,
		shutdownCh: make(chan struct{}),
	}

	return &node
}

// Start launches the listener, the inbound message loop and, if enabled in
// the config, the mining loop.
func (n *Node) Start() error {
	if n.GetState() != state.Starting {
		return nil
	}

	n.start = time.Now()
	n.SetState(state.Running)

	go n.trans.Listen()

	n.GoFunc(n.doBackgroundWork)

	if n.conf.Mine {
		n.GoFunc(n.miningLoop)
	}

	n.logger.WithFields(logrus.Fields{
		"genesis": n.ledger.GenesisHash(),
		"mine":    n.conf.Mine,
	}).Info("Node started")

	return nil
}

func (n *Node) doBackgroundWork() {
	for {
		select {
		case rpc := <-n.netCh:
			atomic.AddUint64(&n.messagesIn, 1)
			if !n.GoFunc(func() { n.processRPC(rpc) }) {
				// shutting down, close without a reply
				rpc.Respond(nil, nil)
			}
		case <-n.shutdownCh:
			return
		}
	}
}

// Stop shuts down the node. It aborts mining, waits for the background
// routines and closes the transport. It is safe to call more than once.
func (n *Node) Stop() {
	n.stopOnce.Do(func() {
		n.logger.Debug("Shutdown")

		n.logStats()

		//Exit any non-shutdown state immediately
		n.Manager.Stop()

		n.cancel()
		n.miner.StopMining()

		//Stop and wait for concurrent operations
		close(n.shutdownCh)

		//Closing the transport releases the routines blocked on a reply
		n.trans.Close()

		n.WaitRoutines()
	})
}

// notifyMiner wakes up the mining loop without blocking.
func (n *Node) notifyMiner() {
	select {
	case n.mineCh <- struct{}{}:
	default:
	}
}

/*******************************************************************************
Accessors
*******************************************************************************/

// Addr returns the address advertised to peers.
func (n *Node) Addr() string {
	return n.self
}

// Ledger returns the underlying ledger.
func (n *Node) Ledger() *ledger.Ledger {
	return n.ledger
}

// Chain returns a copy of the chain.
func (n *Node) Chain() []*ledger.Block {
	return n.ledger.Chain()
}

// Block returns the block at index.
func (n *Node) Block(index int) (*ledger.Block, bool) {
	return n.ledger.Block(index)
}

// Mempool returns a copy of the pending transactions.
func (n *Node) Mempool() []*ledger.Transaction {
	return n.ledger.Mempool()
}

// Balance returns the confirmed balance of address.
func (n *Node) Balance(address string) decimal.Decimal {
	return n.ledger.Balance(address)
}

// Peers returns the known peer addresses, sorted.
func (n *Node) Peers() []string {
	return n.peers.Addresses()
}

// GetStats returns stats
func (n *Node) GetStats() map[string]string {
	timeElapsed := time.Since(n.start)

	ms := n.miner.Stats()

	var hashRate float64
	if secs := timeElapsed.Seconds(); secs > 0 {
		hashRate = float64(ms.Hashes) / secs
	}

	tip := n.ledger.Tip()

	s := map[string]string{
		"addr":              n.self,
		"state":             n.GetState().String(),
		"moniker":           n.conf.Moniker,
		"chain_length":      strconv.Itoa(n.ledger.Len()),
		"last_block":        strconv.Itoa(tip.Index),
		"last_block_hash":   tip.Hash,
		"transaction_pool":  strconv.Itoa(n.ledger.MempoolSize()),
		"num_peers":         strconv.Itoa(n.peers.Len()),
		"mining":            strconv.FormatBool(n.miner.Mining()),
		"mining_attempts":   strconv.FormatUint(ms.Attempts, 10),
		"blocks_mined":      strconv.FormatUint(ms.Mined, 10),
		"mining_aborted":    strconv.FormatUint(ms.Aborted, 10),
		"hashes_per_second": strconv.FormatFloat(hashRate, 'f', 2, 64),
		"messages_in":       strconv.FormatUint(atomic.LoadUint64(&n.messagesIn), 10),
		"sync_rate":         strconv.FormatFloat(n.SyncRate(), 'f', 2, 64),
		"routines":          strconv.Itoa(n.Routines()),
		"time_elapsed":      strconv.FormatFloat(timeElapsed.Seconds(), 'f', 2, 64),
	}
	return s
}

func (n *Node) logStats() {
	stats := n.GetStats()

	n.logger.WithFields(logrus.Fields{
		"state":            stats["state"],
		"chain_length":     stats["chain_length"],
		"last_block":       stats["last_block"],
		"transaction_pool": stats["transaction_pool"],
		"num_peers":        stats["num_peers"],
		"blocks_mined":     stats["blocks_mined"],
		"mining_aborted":   stats["mining_aborted"],
		"hashes/s":         stats["hashes_per_second"],
		"sync_rate":        stats["sync_rate"],
	}).Debug("Stats")
}

// SyncRate returns the share of chain and mempool requests that got an
// answer.
func (n *Node) SyncRate() float64 {
	var syncErrorRate float64

	requests := atomic.LoadUint64(&n.syncRequests)
	if requests != 0 {
		syncErrorRate = float64(atomic.LoadUint64(&n.syncErrors)) / float64(requests)
	}

	return 1 - syncErrorRate
}
