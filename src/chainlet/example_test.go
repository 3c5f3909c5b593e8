package chainlet

import (
	"os"

	"github.com/chainlet/chainlet/src/config"
)

// This example starts a mining node that joins an existing network through a
// bootstrap peer and serves the HTTP API.
func Example() {
	// Start from default configuration.
	chainletConfig := config.NewDefaultConfig()

	// Peers are also read from peers.json in the data directory.
	chainletConfig.BootstrapPeers = []string{"127.0.0.1:5001"}

	// Instantiate the engine.
	engine := NewChainlet(chainletConfig)

	// Bind the listener and build the node.
	if err := engine.Init(); err != nil {
		chainletConfig.Logger().Error("Cannot initialize chainlet:", err)
		os.Exit(1)
	}

	// Start the node and connect to the bootstrap peers.
	if err := engine.Run(); err != nil {
		chainletConfig.Logger().Error("Cannot run chainlet:", err)
		os.Exit(1)
	}

	// Save peers.json and stop.
	defer engine.Shutdown()
}
