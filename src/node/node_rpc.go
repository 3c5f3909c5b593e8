package node

import (
	"github.com/chainlet/chainlet/src/net"
	"github.com/sirupsen/logrus"
)

// processRPC dispatches an inbound message on its type. Every branch
// responds exactly once so that the transport can close the connection.
func (n *Node) processRPC(rpc net.RPC) {
	msg := rpc.Message

	switch msg.Type {
	case net.TypeNewTransaction:
		n.processNewTransaction(rpc)
	case net.TypeNewBlock:
		n.processNewBlock(rpc)
	case net.TypeRequestChain:
		n.processRequestChain(rpc)
	case net.TypeRequestMempool:
		n.processRequestMempool(rpc)
	case net.TypeResponseChain:
		n.processResponseChain(rpc)
	case net.TypePing:
		n.processPing(rpc)
	case net.TypeDiscoverPeers:
		n.processDiscoverPeers(rpc)
	case net.TypePeersList:
		n.processPeersList(rpc)
	default:
		n.logger.WithFields(logrus.Fields{
			"type":   msg.Type,
			"sender": msg.Sender,
			"remote": rpc.RemoteAddr,
			"known":  msg.Type.Known(),
		}).Warn("Unsupported message type")
		rpc.Respond(nil, nil)
	}
}

func (n *Node) processNewTransaction(rpc net.RPC) {
	rpc.Respond(nil, nil)

	tx, err := rpc.Message.Transaction()
	if err != nil {
		n.logger.WithError(err).Error("Decoding NEW_TRANSACTION")
		return
	}

	if err := n.ledger.AddTransaction(tx, false); err != nil {
		n.logger.WithFields(logrus.Fields{
			"id":     tx.ID,
			"sender": rpc.Message.Sender,
			"error":  err,
		}).Debug("Transaction rejected")
		return
	}

	n.notifyMiner()
	n.Broadcast(net.NewTransactionMessage(n.self, tx), rpc.Message.Sender)
}

func (n *Node) processNewBlock(rpc net.RPC) {
	rpc.Respond(nil, nil)

	sender := rpc.Message.Sender

	block, err := rpc.Message.Block()
	if err != nil {
		n.logger.WithError(err).Error("Decoding NEW_BLOCK")
		return
	}

	err = n.ledger.AddBlock(block)
	if err == nil {
		n.miner.StopMining()
		n.notifyMiner()
		n.Broadcast(net.NewBlockMessage(n.self, block), sender)
		return
	}

	if n.ledger.HasBlock(block.Hash) {
		n.logger.WithField("index", block.Index).Debug("Block already known")
		return
	}

	n.logger.WithFields(logrus.Fields{
		"index":  block.Index,
		"hash":   block.Hash,
		"sender": sender,
		"error":  err,
	}).Debug("Block rejected, resyncing with sender")

	if sender == "" || sender == n.self {
		return
	}

	n.syncChainWith(sender)
}

func (n *Node) processRequestChain(rpc net.RPC) {
	n.registerPeer(rpc.Message.Sender)

	rpc.Respond(net.NewChainMessage(n.self, n.ledger.Chain()), nil)
}

func (n *Node) processRequestMempool(rpc net.RPC) {
	rpc.Respond(net.NewMempoolMessage(n.self, n.ledger.Mempool()), nil)
}

func (n *Node) processResponseChain(rpc net.RPC) {
	rpc.Respond(nil, nil)

	chain, err := rpc.Message.Chain()
	if err != nil {
		n.logger.WithError(err).Error("Decoding RESPONSE_CHAIN")
		return
	}

	n.replaceChain(chain, rpc.Message.Sender)
	n.registerPeer(rpc.Message.Sender)
}

func (n *Node) processPing(rpc net.RPC) {
	n.registerPeer(rpc.Message.Sender)

	rpc.Respond(net.NewMessage(net.TypePong, n.self, nil), nil)
}

func (n *Node) processDiscoverPeers(rpc net.RPC) {
	rpc.Respond(net.NewPeersMessage(n.self, n.peers.Addresses()), nil)
}

func (n *Node) processPeersList(rpc net.RPC) {
	rpc.Respond(nil, nil)

	addrs, err := rpc.Message.Peers()
	if err != nil {
		n.logger.WithError(err).Error("Decoding PEERS_LIST")
		return
	}

	n.mergePeers(addrs)
}
