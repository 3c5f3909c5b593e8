package chainlet

import (
	"fmt"

	"github.com/chainlet/chainlet/src/config"
	"github.com/chainlet/chainlet/src/net"
	"github.com/chainlet/chainlet/src/node"
	"github.com/chainlet/chainlet/src/peers"
	"github.com/chainlet/chainlet/src/service"
	"github.com/sirupsen/logrus"
)

// Chainlet is the engine that wires a Node to its transport, its peers.json
// store, and the optional HTTP service.
type Chainlet struct {
	Config    *config.Config
	Node      *node.Node
	Transport net.Transport
	PeerStore *peers.JSONPeerSet
	Service   *service.Service
	logger    *logrus.Entry
}

// NewChainlet is a factory method to produce a Chainlet instance.
func NewChainlet(c *config.Config) *Chainlet {
	engine := &Chainlet{
		Config: c,
		logger: c.Logger(),
	}

	return engine
}

func (c *Chainlet) initTransport() error {
	transport, err := net.NewTCPTransport(
		c.Config.BindAddr,
		c.Config.AdvertiseAddr,
		c.Config.TCPTimeout,
		c.Config.MaxFrameSize,
		c.logger,
	)

	if err != nil {
		return err
	}

	c.Transport = transport

	return nil
}

func (c *Chainlet) initPeerStore() {
	if c.Config.DataDir == "" {
		c.logger.Debug("No datadir, peers.json disabled")
		return
	}

	c.PeerStore = peers.NewJSONPeerSet(c.Config.DataDir)
}

func (c *Chainlet) initNode() {
	c.Node = node.NewNode(c.Config, c.Transport)
}

func (c *Chainlet) initService() {
	if !c.Config.NoService {
		c.Service = service.NewService(c.Config.ServiceAddr, c.Node, c.logger)
	}
}

// Init initialises the engine. Failing to bind the listener is the only
// fatal error.
func (c *Chainlet) Init() error {
	if err := c.initTransport(); err != nil {
		c.logger.WithError(err).Error("initTransport")
		return fmt.Errorf("failed to bind %s: %w", c.Config.BindAddr, err)
	}

	c.initPeerStore()
	c.initNode()
	c.initService()

	return nil
}

// Run starts the node and the service, then connects to the bootstrap peers.
// It does not block.
func (c *Chainlet) Run() error {
	if c.Node == nil {
		return fmt.Errorf("engine not initialised")
	}

	if err := c.Node.Start(); err != nil {
		return err
	}

	if c.Service != nil {
		if err := c.Service.Start(); err != nil {
			c.logger.WithError(err).Error("Cannot start service")
		}
	}

	c.Bootstrap()

	return nil
}

// BootstrapAddresses returns the configured bootstrap peers followed by the
// ones listed in peers.json, without duplicates.
func (c *Chainlet) BootstrapAddresses() []string {
	addrs := []string{}
	seen := make(map[string]bool)

	add := func(a string) {
		if a == "" || seen[a] {
			return
		}
		seen[a] = true
		addrs = append(addrs, a)
	}

	for _, a := range c.Config.BootstrapPeers {
		add(a)
	}

	if c.PeerStore != nil {
		stored, err := c.PeerStore.Peers()
		if err != nil {
			c.logger.WithError(err).Warn("Cannot read peers.json")
		}
		for _, a := range peers.Addresses(stored) {
			add(a)
		}
	}

	return addrs
}

// Bootstrap connects to every bootstrap peer and, if any answered, syncs the
// blockchain with them. It returns the number of peers connected.
func (c *Chainlet) Bootstrap() int {
	connected := 0

	for _, addr := range c.BootstrapAddresses() {
		if c.Node.ConnectToPeer(addr) {
			connected++
			c.logger.WithField("peer", addr).Info("Connected to bootstrap peer")
		} else {
			c.logger.WithField("peer", addr).Warn("Bootstrap peer unreachable")
		}
	}

	if len(c.Node.Peers()) > 0 {
		c.Node.SyncBlockchain()
	}

	return connected
}

// Shutdown saves the known peers to peers.json and stops the node and the
// service.
func (c *Chainlet) Shutdown() {
	if c.Node == nil {
		return
	}

	if c.PeerStore != nil {
		known := []*peers.Peer{}
		for _, addr := range c.Node.Peers() {
			known = append(known, peers.NewPeer(addr, ""))
		}

		if err := c.PeerStore.Write(known); err != nil {
			c.logger.WithError(err).Error("Cannot write peers.json")
		} else {
			c.logger.WithField("path", c.PeerStore.Path()).Debug("Saved peers")
		}
	}

	if c.Service != nil {
		c.Service.Shutdown()
	}

	c.Node.Stop()
}
