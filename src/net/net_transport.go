package net

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

/*******************************************************************************
ADAPTED FROM HASHICORP RAFT
*******************************************************************************/

var (
	// ErrTransportShutdown is returned when operations on a transport are
	// invoked after it's been terminated.
	ErrTransportShutdown = errors.New("transport shutdown")

	// ErrUnreachable wraps dial failures.
	ErrUnreachable = errors.New("peer unreachable")

	// ErrNoReply is returned by Request when the peer closes the connection,
	// or lets the deadline pass, without writing a reply frame.
	ErrNoReply = errors.New("no reply")
)

/*
NetworkTransport provides a network based transport that can be used to
communicate with chainlet nodes on remote machines. It requires an underlying
stream layer to provide a stream abstraction, which can be simple TCP, TLS, etc.

Every connection carries exactly one exchange: the dialer writes one frame, the
listener optionally writes one frame back, and the connection is closed. A
frame is a 4-byte big-endian length followed by a JSON encoded Message.
*/
type NetworkTransport struct {
	logger *logrus.Entry

	consumeCh chan RPC

	shutdown     bool
	shutdownCh   chan struct{}
	shutdownLock sync.Mutex

	stream StreamLayer

	timeout      time.Duration
	maxFrameSize uint32
}

// NewNetworkTransport creates a new network transport with the given stream
// layer. The timeout is used to apply I/O deadlines. maxFrameSize bounds
// inbound frames; zero means DefaultMaxFrameSize.
func NewNetworkTransport(
	stream StreamLayer,
	timeout time.Duration,
	maxFrameSize uint32,
	logger *logrus.Entry,
) *NetworkTransport {

	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	if maxFrameSize == 0 {
		maxFrameSize = DefaultMaxFrameSize
	}

	trans := &NetworkTransport{
		consumeCh:    make(chan RPC),
		logger:       logger,
		shutdownCh:   make(chan struct{}),
		stream:       stream,
		timeout:      timeout,
		maxFrameSize: maxFrameSize,
	}

	return trans
}

// Close is used to stop the network transport.
func (n *NetworkTransport) Close() error {
	n.shutdownLock.Lock()
	defer n.shutdownLock.Unlock()

	if !n.shutdown {
		close(n.shutdownCh)
		n.stream.Close()

		n.shutdown = true
	}
	return nil
}

// Consumer implements the Transport interface.
func (n *NetworkTransport) Consumer() <-chan RPC {
	return n.consumeCh
}

// LocalAddr implements the Transport interface.
func (n *NetworkTransport) LocalAddr() string {
	addr := n.stream.Addr()

	if addr != nil {
		return addr.String()
	}

	return ""
}

// AdvertiseAddr implements the Transport interface.
func (n *NetworkTransport) AdvertiseAddr() string {
	return n.stream.AdvertiseAddr()
}

// IsShutdown is used to check if the transport is shutdown.
func (n *NetworkTransport) IsShutdown() bool {
	select {
	case <-n.shutdownCh:
		return true
	default:
		return false
	}
}

func (n *NetworkTransport) dial(target string, timeout time.Duration) (net.Conn, error) {
	if n.IsShutdown() {
		return nil, ErrTransportShutdown
	}

	conn, err := n.stream.Dial(target, timeout)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnreachable, target, err)
	}

	if timeout > 0 {
		conn.SetDeadline(time.Now().Add(timeout))
	}

	return conn, nil
}

// Send implements the Transport interface. It writes msg to target and closes
// the connection without waiting for a reply.
func (n *NetworkTransport) Send(target string, msg *Message) error {
	conn, err := n.dial(target, n.timeout)
	if err != nil {
		return err
	}
	defer conn.Close()

	return WriteFrame(conn, msg)
}

// Request implements the Transport interface. It writes msg to target and
// waits up to timeout for a single reply frame on the same connection. A zero
// timeout means the transport's default.
func (n *NetworkTransport) Request(target string, msg *Message, timeout time.Duration) (*Message, error) {
	if timeout == 0 {
		timeout = n.timeout
	}

	conn, err := n.dial(target, timeout)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if err := WriteFrame(conn, msg); err != nil {
		return nil, err
	}

	resp, err := ReadFrame(conn, n.maxFrameSize)
	if err != nil {
		if isNoReply(err) {
			return nil, fmt.Errorf("%w: %s: %v", ErrNoReply, target, err)
		}
		return nil, err
	}

	return resp, nil
}

func isNoReply(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// Listen opens the stream and handles incoming connections.
func (n *NetworkTransport) Listen() {
	for {
		// Accept incoming connections
		conn, err := n.stream.Accept()
		if err != nil {
			if n.IsShutdown() {
				return
			}
			n.logger.WithField("error", err).Error("Failed to accept connection")
			continue
		}
		n.logger.WithFields(logrus.Fields{
			"node": conn.LocalAddr(),
			"from": conn.RemoteAddr(),
		}).Debug("accepted connection")

		// Handle the connection in dedicated routine
		go n.handleConn(conn)
	}
}

// handleConn reads one frame, hands it to the consumer and writes the reply,
// if any. Errors only affect this connection.
func (n *NetworkTransport) handleConn(conn net.Conn) {
	defer conn.Close()

	if err := n.handleCommand(conn); err != nil {
		switch {
		case n.IsShutdown(), errors.Is(err, io.EOF):
		default:
			n.logger.WithFields(logrus.Fields{
				"from":  conn.RemoteAddr(),
				"error": err,
			}).Error("Failed to handle incoming command")
		}
	}
}

// handleCommand is used to decode and dispatch a single command.
func (n *NetworkTransport) handleCommand(conn net.Conn) error {
	if n.timeout > 0 {
		conn.SetReadDeadline(time.Now().Add(n.timeout))
	}

	msg, err := ReadFrame(conn, n.maxFrameSize)
	if err != nil {
		return err
	}

	// Create the RPC object
	respCh := make(chan RPCResponse, 1)
	rpc := RPC{
		Message:    msg,
		RemoteAddr: conn.RemoteAddr().String(),
		RespChan:   respCh,
	}

	// Dispatch the RPC
	select {
	case n.consumeCh <- rpc:
	case <-n.shutdownCh:
		return ErrTransportShutdown
	}

	// Wait for response
	select {
	case resp := <-respCh:
		if resp.Error != nil {
			return resp.Error
		}
		if resp.Response == nil {
			return nil
		}
		if n.timeout > 0 {
			conn.SetWriteDeadline(time.Now().Add(n.timeout))
		}
		return WriteFrame(conn, resp.Response)
	case <-n.shutdownCh:
		return ErrTransportShutdown
	}
}
