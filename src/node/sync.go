package node

import (
	"errors"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/chainlet/chainlet/src/ledger"
	"github.com/chainlet/chainlet/src/net"
	"github.com/chainlet/chainlet/src/node/state"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// MempoolSyncResult is the outcome of SyncMempool.
type MempoolSyncResult struct {
	// Added is the number of transactions imported.
	Added int
	// Unreachable lists, sorted, the peers that could not be dialed. They
	// have been removed from the peer set.
	Unreachable []string
}

// replaceChain adopts chain if it is longer than ours and valid.
func (n *Node) replaceChain(chain []*ledger.Block, from string) bool {
	err := n.ledger.ReplaceChain(chain)
	if err != nil {
		logger := n.logger.WithFields(logrus.Fields{
			"from":   from,
			"length": len(chain),
		})
		if errors.Is(err, ledger.ErrChainNotLonger) {
			logger.Debug("Kept local chain")
		} else {
			logger.WithError(err).Warn("Invalid chain")
		}
		return false
	}

	n.miner.StopMining()
	n.notifyMiner()
	return true
}

// requestChain fetches the chain of addr.
func (n *Node) requestChain(addr string) ([]*ledger.Block, error) {
	atomic.AddUint64(&n.syncRequests, 1)

	resp, err := n.trans.Request(addr,
		net.NewMessage(net.TypeRequestChain, n.self, nil),
		n.conf.TCPTimeout)
	if err != nil {
		atomic.AddUint64(&n.syncErrors, 1)
		return nil, err
	}

	if resp.Type != net.TypeResponseChain {
		atomic.AddUint64(&n.syncErrors, 1)
		return nil, errors.New("unexpected reply " + string(resp.Type))
	}

	return resp.Chain()
}

// syncChainWith replaces our chain with the one of addr if it is longer.
func (n *Node) syncChainWith(addr string) bool {
	chain, err := n.requestChain(addr)
	if err != nil {
		n.logger.WithField("peer", addr).WithError(err).Warn("Chain request failed")
		return false
	}
	return n.replaceChain(chain, addr)
}

// SyncBlockchain asks the peers for their chain, one at a time, and stops at
// the first one that replaces ours. Peers that cannot be dialed are removed.
func (n *Node) SyncBlockchain() bool {
	// a Stop during the sync must not be undone
	if n.CompareAndSwapState(state.Running, state.Syncing) {
		defer n.CompareAndSwapState(state.Syncing, state.Running)
	}

	for _, addr := range n.peers.Addresses() {
		chain, err := n.requestChain(addr)
		if err != nil {
			if errors.Is(err, net.ErrUnreachable) {
				n.logger.WithField("peer", addr).Info("Removing unreachable peer")
				n.peers.Remove(addr)
			} else {
				n.logger.WithField("peer", addr).WithError(err).Debug("No chain from peer")
			}
			continue
		}

		if n.replaceChain(chain, addr) {
			n.logger.WithFields(logrus.Fields{
				"peer":   addr,
				"length": len(chain),
			}).Info("Synced chain")
			return true
		}
	}

	return false
}

// SyncMempool asks every peer for its pending transactions, concurrently,
// and imports them as trusted. Peers that cannot be dialed are removed.
func (n *Node) SyncMempool() MempoolSyncResult {
	var (
		g           errgroup.Group
		mu          sync.Mutex
		added       int
		unreachable = []string{}
	)

	for _, addr := range n.peers.Addresses() {
		target := addr
		g.Go(func() error {
			atomic.AddUint64(&n.syncRequests, 1)

			resp, err := n.trans.Request(target,
				net.NewMessage(net.TypeRequestMempool, n.self, nil),
				n.conf.TCPTimeout)
			if err != nil {
				atomic.AddUint64(&n.syncErrors, 1)
				if errors.Is(err, net.ErrUnreachable) {
					mu.Lock()
					unreachable = append(unreachable, target)
					mu.Unlock()
					return nil
				}
				return err
			}

			txs, err := resp.Transactions()
			if err != nil {
				return err
			}

			count := 0
			for _, tx := range txs {
				if n.ledger.AddTransaction(tx, true) == nil {
					count++
				}
			}

			mu.Lock()
			added += count
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		n.logger.WithError(err).Debug("Mempool sync incomplete")
	}

	sort.Strings(unreachable)
	for _, addr := range unreachable {
		n.peers.Remove(addr)
	}

	if added > 0 {
		n.notifyMiner()
	}

	n.logger.WithFields(logrus.Fields{
		"added":       added,
		"unreachable": len(unreachable),
	}).Info("Synced mempool")

	return MempoolSyncResult{
		Added:       added,
		Unreachable: unreachable,
	}
}
