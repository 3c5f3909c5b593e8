// Package net implements the wire protocol and the TCP transport used between
// chainlet nodes.
//
// Wire format
//
// Every message travels in a frame: a 4-byte big-endian unsigned length
// followed by that many bytes of JSON:
//
//	{"payload": ..., "sender": "host:port", "type": "NEW_BLOCK"}
//
// The type is one of the MessageType constants. The sender is the advertised
// address of the node that created the message. The payload depends on the
// type (a Transaction, a Block, a list of Blocks, a list of Transactions or a
// list of addresses) and is converted back to typed values with
// Message.DecodePayload.
//
// Exchanges
//
// A connection carries exactly one exchange. The dialer writes one frame. The
// listener hands the message to its consumer, optionally writes one reply
// frame, and closes the connection. Send is used for fire-and-forget messages
// and Request for the ones expecting a reply (REQUEST_CHAIN, REQUEST_MEMPOOL,
// PING, DISCOVER_PEERS).
//
// TCP
//
// To use a TCP transport, set the following configuration options in the
// Config object (cf config package):
//
// - BindAddr: the IP:PORT of the TCP socket that the node binds to.
//
// - AdvertiseAddr: (optional) The address that is advertised to other nodes. If
// BindAddr is a local address not reachable by other peers, it is useful to
// set AdvertiseAddr to the reachable public address.
package net
