// Package config defines the configuration for a chainlet node.
//
// Regardless of how a node is started, directly from Go code or as a
// standalone process from the command line, it uses the Config object defined
// in this package to store and forward configuration options. On top of these
// options, chainlet relies on a data directory, defined by Config.DataDir,
// where it looks for a few optional files:
//
//  chainlet.toml // configuration values, overridden by command line flags.
//  peers.json // a JSON file containing addresses to connect to on startup.
//
// The chain itself is never written to disk.
package config
