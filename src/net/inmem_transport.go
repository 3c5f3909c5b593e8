package net

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// NewInmemAddr returns a new in-memory addr with a randomly generated UUID as
// the ID.
func NewInmemAddr() string {
	return uuid.New().String()
}

// InmemTransport implements the Transport interface, to allow chainlet nodes
// to be tested in-memory without going over a network. Messages are encoded
// and decoded on the way, so handlers see the same payloads as over TCP.
type InmemTransport struct {
	sync.RWMutex
	consumerCh chan RPC
	localAddr  string
	peers      map[string]*InmemTransport
	timeout    time.Duration
	shutdown   bool
}

// NewInmemTransport is used to initialize a new transport and generates a
// random local address if none is specified.
func NewInmemTransport(addr string) (string, *InmemTransport) {
	if addr == "" {
		addr = NewInmemAddr()
	}
	trans := &InmemTransport{
		consumerCh: make(chan RPC, 16),
		localAddr:  addr,
		peers:      make(map[string]*InmemTransport),
		timeout:    500 * time.Millisecond,
	}
	return addr, trans
}

// Consumer implements the Transport interface.
func (i *InmemTransport) Consumer() <-chan RPC {
	return i.consumerCh
}

// LocalAddr implements the Transport interface.
func (i *InmemTransport) LocalAddr() string {
	return i.localAddr
}

// AdvertiseAddr implements the Transport interface.
func (i *InmemTransport) AdvertiseAddr() string {
	return i.localAddr
}

// Send implements the Transport interface.
func (i *InmemTransport) Send(target string, msg *Message) error {
	_, err := i.makeRPC(target, msg, false, i.timeout)
	return err
}

// Request implements the Transport interface.
func (i *InmemTransport) Request(target string, msg *Message, timeout time.Duration) (*Message, error) {
	if timeout == 0 {
		timeout = i.timeout
	}

	return i.makeRPC(target, msg, true, timeout)
}

func (i *InmemTransport) makeRPC(target string, msg *Message, wait bool, timeout time.Duration) (*Message, error) {
	i.RLock()
	shutdown := i.shutdown
	peer, ok := i.peers[target]
	i.RUnlock()

	if shutdown {
		return nil, ErrTransportShutdown
	}

	if !ok || peer.isShutdown() {
		return nil, fmt.Errorf("%w: %s", ErrUnreachable, target)
	}

	copied, err := roundTrip(msg)
	if err != nil {
		return nil, err
	}

	// Send the RPC over
	respCh := make(chan RPCResponse, 1)
	select {
	case peer.consumerCh <- RPC{
		Message:    copied,
		RemoteAddr: i.localAddr,
		RespChan:   respCh,
	}:
	case <-time.After(timeout):
		return nil, fmt.Errorf("%w: %s: consumer busy", ErrUnreachable, target)
	}

	if !wait {
		return nil, nil
	}

	// Wait for a response
	select {
	case rpcResp := <-respCh:
		if rpcResp.Error != nil {
			return nil, rpcResp.Error
		}
		if rpcResp.Response == nil {
			return nil, fmt.Errorf("%w: %s", ErrNoReply, target)
		}
		return roundTrip(rpcResp.Response)
	case <-time.After(timeout):
		return nil, fmt.Errorf("%w: %s: command timed out", ErrNoReply, target)
	}
}

// roundTrip passes msg through the wire encoding.
func roundTrip(msg *Message) (*Message, error) {
	data, err := msg.Marshal()
	if err != nil {
		return nil, err
	}

	res := new(Message)
	if err := res.Unmarshal(data); err != nil {
		return nil, err
	}

	return res, nil
}

func (i *InmemTransport) isShutdown() bool {
	i.RLock()
	defer i.RUnlock()

	return i.shutdown
}

// Connect is used to connect this transport to another transport for a given
// peer name. This allows for local routing.
func (i *InmemTransport) Connect(peer string, t *InmemTransport) {
	i.Lock()
	defer i.Unlock()
	i.peers[peer] = t
}

// Disconnect is used to remove the ability to route to a given peer.
func (i *InmemTransport) Disconnect(peer string) {
	i.Lock()
	defer i.Unlock()
	delete(i.peers, peer)
}

// DisconnectAll is used to remove all routes to peers.
func (i *InmemTransport) DisconnectAll() {
	i.Lock()
	defer i.Unlock()
	i.peers = make(map[string]*InmemTransport)
}

// Close is used to permanently disable the transport.
func (i *InmemTransport) Close() error {
	i.Lock()
	defer i.Unlock()
	i.shutdown = true
	i.peers = make(map[string]*InmemTransport)
	return nil
}

// Listen is an empty function as there is no need to defer initialisation of
// the InMem service.
func (i *InmemTransport) Listen() {
}
