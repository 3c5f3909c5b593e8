package node

import (
	"errors"

	"github.com/chainlet/chainlet/src/net"
	"github.com/chainlet/chainlet/src/peers"
	"github.com/sirupsen/logrus"
)

// registerPeer adds addr to the peer set. It is idempotent and ignores our
// own address.
func (n *Node) registerPeer(addr string) {
	if n.peers.Add(addr) {
		n.logger.WithField("peer", addr).Info("Registered peer")
	}
}

// ConnectToPeer handshakes with addr by requesting its chain. It returns
// false, without registering the peer, if addr is empty, is our own address or
// cannot be dialed. A chain received in reply is adopted if it is longer than
// ours. A peer that accepts the connection but does not reply is still
// registered.
func (n *Node) ConnectToPeer(addr string) bool {
	if addr == "" || addr == n.self {
		return false
	}

	logger := n.logger.WithField("peer", addr)

	resp, err := n.trans.Request(addr,
		net.NewMessage(net.TypeRequestChain, n.self, nil),
		n.conf.HandshakeTimeout)

	switch {
	case err == nil && resp.Type == net.TypeResponseChain:
		chain, derr := resp.Chain()
		if derr != nil {
			logger.WithError(derr).Warn("Decoding handshake chain")
			break
		}
		n.replaceChain(chain, addr)
	case err == nil:
		logger.WithField("type", resp.Type).Warn("Unexpected handshake reply")
	case errors.Is(err, net.ErrUnreachable), errors.Is(err, net.ErrTransportShutdown):
		logger.WithError(err).Warn("Failed to connect to peer")
		return false
	default:
		logger.WithError(err).Debug("No handshake reply, registering anyway")
	}

	n.registerPeer(addr)

	if n.conf.Discover {
		n.GoFunc(func() { n.discover(addr) })
	}

	return true
}

// Broadcast sends msg to every peer except exclude, one goroutine per peer.
// Failed sends are logged and the peer is kept.
func (n *Node) Broadcast(msg *net.Message, exclude string) {
	_, targets := peers.ExcludePeer(n.peers.Addresses(), exclude)

	for _, addr := range targets {
		target := addr
		n.GoFunc(func() {
			if err := n.trans.Send(target, msg); err != nil {
				n.logger.WithFields(logrus.Fields{
					"peer":  target,
					"type":  msg.Type,
					"error": err,
				}).Warn("Broadcast failed")
			}
		})
	}
}

// discover asks addr for its peers and merges them.
func (n *Node) discover(addr string) {
	resp, err := n.trans.Request(addr,
		net.NewMessage(net.TypeDiscoverPeers, n.self, nil),
		n.conf.TCPTimeout)
	if err != nil {
		n.logger.WithField("peer", addr).WithError(err).Debug("Peer discovery failed")
		return
	}

	if resp.Type != net.TypePeersList {
		n.logger.WithField("type", resp.Type).Warn("Unexpected discovery reply")
		return
	}

	addrs, err := resp.Peers()
	if err != nil {
		n.logger.WithError(err).Warn("Decoding discovery reply")
		return
	}

	n.mergePeers(addrs)
}

// mergePeers adds the addresses we did not know and pings each of them, so
// that they learn about us. New peers that cannot be dialed are dropped.
func (n *Node) mergePeers(addrs []string) {
	added := n.peers.Merge(addrs)
	if len(added) == 0 {
		return
	}

	n.logger.WithField("peers", added).Info("Discovered peers")

	for _, addr := range added {
		target := addr
		n.GoFunc(func() { n.ping(target) })
	}
}

func (n *Node) ping(addr string) bool {
	resp, err := n.trans.Request(addr,
		net.NewMessage(net.TypePing, n.self, nil),
		n.conf.TCPTimeout)

	if errors.Is(err, net.ErrUnreachable) {
		n.logger.WithField("peer", addr).Debug("Ping failed, dropping peer")
		n.peers.Remove(addr)
		return false
	}

	return err == nil && resp.Type == net.TypePong
}
