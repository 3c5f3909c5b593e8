// Package node implements the reactive component of a chainlet node.
//
// A Node owns a Ledger (the chain and the mempool), a Miner, a PeerSet and a
// Transport. It reacts to inbound messages, relays gossip and runs the
// fork-choice rule: the longest valid chain sharing our genesis block wins.
//
// Inbound messages
//
// The transport accepts a connection, reads one frame and hands the message to
// the node, which dispatches it on its type:
//
//  NEW_TRANSACTION  add to the mempool; if accepted, relay to every peer but the sender
//  NEW_BLOCK        append to the chain; if accepted, abort mining and relay;
//                   if rejected, fetch the sender's chain and try to adopt it
//  REQUEST_CHAIN    register the sender, reply with RESPONSE_CHAIN
//  REQUEST_MEMPOOL  reply with RESPONSE_MEMPOOL
//  RESPONSE_CHAIN   try to adopt the chain, register the sender
//  PING             register the sender, reply with PONG
//  DISCOVER_PEERS   reply with PEERS_LIST
//  PEERS_LIST       merge the addresses and ping the new ones
//
// Anything else is logged and ignored.
//
// Mining
//
// When Config.Mine is set, a background loop waits for pending transactions,
// snapshots the tip and the mempool, and searches for a nonce. Accepting a
// block from a peer, or adopting a longer chain, aborts the search, which then
// restarts on the new tip. A mined block is broadcast only if the local ledger
// accepts it.
//
// Synchronisation
//
// ConnectToPeer handshakes with a peer by requesting its chain. SyncBlockchain
// and SyncMempool pull state from every known peer on demand; peers that
// cannot be dialed during a sync are forgotten.
package node
