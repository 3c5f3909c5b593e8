// Package peers manages the addresses a chainlet node gossips with.
//
// A PeerSet is a best-effort, unordered set of host:port strings. Addresses
// are added when a peer handshakes with us, when we connect to it, or when a
// PEERS_LIST message reveals it; they are removed when a sync attempt finds
// them unreachable. The node's own advertised address is never part of its
// PeerSet.
//
// Upon starting up, a node looks for an optional peers.json file in its data
// directory and tries to connect to every address it lists. The file is
// rewritten with the known peers when the node shuts down.
package peers
