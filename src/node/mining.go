package node

import (
	"errors"
	"time"

	"github.com/chainlet/chainlet/src/ledger"
	"github.com/chainlet/chainlet/src/miner"
	"github.com/chainlet/chainlet/src/net"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// ErrNothingToMine is returned by Mine when the mempool is empty.
var ErrNothingToMine = errors.New("no pending transactions")

// miningLoop mines the mempool for as long as the node runs. It sleeps while
// the mempool is empty and restarts on the new tip whenever a search is
// aborted.
func (n *Node) miningLoop() {
	idle := n.conf.MiningIdle
	if idle <= 0 {
		idle = time.Second
	}

	for {
		select {
		case <-n.ctx.Done():
			return
		default:
		}

		tip, pending := n.ledger.Candidate()
		if len(pending) == 0 {
			select {
			case <-n.mineCh:
			case <-time.After(idle):
			case <-n.ctx.Done():
				return
			}
			continue
		}

		n.mine(tip, pending)
	}
}

// mine runs one search over pending on top of tip. The block is broadcast
// only if the ledger accepts it.
func (n *Node) mine(tip *ledger.Block, pending []ledger.Transaction) (*ledger.Block, error) {
	progress := func(index int, nonces uint64) {
		n.logger.WithFields(logrus.Fields{
			"index":  index,
			"nonces": nonces,
		}).Debug("Mining")
	}

	block, err := n.miner.MineBlock(n.ctx, pending, tip, progress)
	if err != nil {
		if !errors.Is(err, miner.ErrMiningAborted) {
			n.logger.WithError(err).Error("Mining failed")
		}
		return nil, err
	}

	if err := n.ledger.AddBlock(block); err != nil {
		n.logger.WithFields(logrus.Fields{
			"index": block.Index,
			"error": err,
		}).Warn("Mined block rejected")
		return nil, err
	}

	n.Broadcast(net.NewBlockMessage(n.self, block), "")
	n.logStats()

	return block, nil
}

// Mine runs a single synchronous mining attempt over the current mempool.
func (n *Node) Mine() (*ledger.Block, error) {
	tip, pending := n.ledger.Candidate()
	if len(pending) == 0 {
		return nil, ErrNothingToMine
	}
	return n.mine(tip, pending)
}

// CreateTransaction creates a transaction, adds it to the mempool and
// broadcasts it. The error is a *ledger.ValidationError when the transaction
// is refused.
func (n *Node) CreateTransaction(origin, destination string, value decimal.Decimal) (*ledger.Transaction, error) {
	tx, err := ledger.NewTransaction(origin, destination, value)
	if err != nil {
		return nil, err
	}

	if err := n.ledger.AddTransaction(tx, false); err != nil {
		return nil, err
	}

	n.logger.WithFields(logrus.Fields{
		"id":          tx.ID,
		"origin":      origin,
		"destination": destination,
		"value":       value.String(),
	}).Info("Transaction created")

	n.notifyMiner()
	n.Broadcast(net.NewTransactionMessage(n.self, tx), "")

	return tx, nil
}
