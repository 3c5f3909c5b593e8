package config

import (
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/chainlet/chainlet/src/common"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// Default filenames.
const (
	// DefaultConfigFile is the name, without extension, of the optional
	// configuration file in the data directory (chainlet.toml).
	DefaultConfigFile = "chainlet"

	// DefaultPeersFile is the name of the optional file listing bootstrap
	// peers.
	DefaultPeersFile = "peers.json"
)

// Default configuration values.
const (
	DefaultLogLevel         = "debug"
	DefaultBindAddr         = "127.0.0.1:5000"
	DefaultServiceAddr      = "127.0.0.1:8000"
	DefaultTCPTimeout       = 5000 * time.Millisecond
	DefaultHandshakeTimeout = 3000 * time.Millisecond
	DefaultMiningIdle       = 500 * time.Millisecond
	DefaultMaxFrameSize     = 32 << 20
	DefaultMine             = true
	DefaultDiscover         = true
	DefaultNoService        = false
)

// Config contains all the configuration properties of a chainlet node.
type Config struct {
	// DataDir is the top-level directory containing chainlet configuration
	// files. Nothing is written there but logs and peers.json.
	DataDir string `mapstructure:"datadir"`

	// LogLevel determines the chattiness of the log output.
	LogLevel string `mapstructure:"log"`

	// BindAddr is the local address:port where this node listens for other
	// nodes. Use AdvertiseAddr if it is not the address peers should dial.
	BindAddr string `mapstructure:"listen"`

	// AdvertiseAddr is used to change the address that we advertise to other
	// nodes. It is also the address the node excludes from its own peer set.
	AdvertiseAddr string `mapstructure:"advertise"`

	// NoService disables the HTTP API service.
	NoService bool `mapstructure:"no-service"`

	// ServiceAddr is the address:port of the optional HTTP service.
	ServiceAddr string `mapstructure:"service-listen"`

	// BootstrapPeers are addresses to connect to on startup, on top of the
	// ones listed in peers.json.
	BootstrapPeers []string `mapstructure:"bootstrap"`

	// TCPTimeout bounds inbound reads and outbound dials.
	TCPTimeout time.Duration `mapstructure:"timeout"`

	// HandshakeTimeout bounds the wait for a chain reply when connecting to a
	// peer.
	HandshakeTimeout time.Duration `mapstructure:"handshake-timeout"`

	// MaxFrameSize is the largest frame accepted from a peer.
	MaxFrameSize uint32 `mapstructure:"max-frame-size"`

	// Mine runs the background mining loop.
	Mine bool `mapstructure:"mine"`

	// MiningIdle is how long the mining loop sleeps when the mempool is
	// empty, unless it is woken up by a new transaction.
	MiningIdle time.Duration `mapstructure:"mining-idle"`

	// Discover asks every new peer for its own peers.
	Discover bool `mapstructure:"discover"`

	// Moniker defines the friendly name of this node
	Moniker string `mapstructure:"moniker"`

	logger *logrus.Logger
}

// NewDefaultConfig returns a config object with default values.
func NewDefaultConfig() *Config {
	config := &Config{
		DataDir:          DefaultDataDir(),
		LogLevel:         DefaultLogLevel,
		BindAddr:         DefaultBindAddr,
		ServiceAddr:      DefaultServiceAddr,
		NoService:        DefaultNoService,
		TCPTimeout:       DefaultTCPTimeout,
		HandshakeTimeout: DefaultHandshakeTimeout,
		MaxFrameSize:     DefaultMaxFrameSize,
		Mine:             DefaultMine,
		MiningIdle:       DefaultMiningIdle,
		Discover:         DefaultDiscover,
	}

	return config
}

// NewTestConfig returns a config object with default values and a special
// logger for debugging tests. It binds to a random local port, does not start
// the service, and uses short timeouts.
func NewTestConfig(t testing.TB, level logrus.Level) *Config {
	config := NewDefaultConfig()
	config.DataDir = ""
	config.BindAddr = "127.0.0.1:0"
	config.NoService = true
	config.TCPTimeout = time.Second
	config.HandshakeTimeout = time.Second
	config.MiningIdle = 20 * time.Millisecond
	config.logger = common.NewTestLogger(t, level)
	return config
}

// SetLogger overrides the process logger, typically to attach hooks.
func (c *Config) SetLogger(logger *logrus.Logger) {
	c.logger = logger
}

// PeersFile returns the full path of the bootstrap peers file.
func (c *Config) PeersFile() string {
	return filepath.Join(c.DataDir, DefaultPeersFile)
}

// Logger returns a formatted logrus Entry, with prefix set to "chainlet".
func (c *Config) Logger() *logrus.Entry {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Level = LogLevel(c.LogLevel)
		c.logger.Formatter = new(prefixed.TextFormatter)
	}
	return c.logger.WithField("prefix", "chainlet")
}

// DefaultDataDir return the default directory name for top-level chainlet
// config based on the underlying OS, attempting to respect conventions.
func DefaultDataDir() string {
	// Try to place the data folder in the user's home dir
	home := HomeDir()
	if home != "" {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, ".Chainlet")
		} else if runtime.GOOS == "windows" {
			return filepath.Join(home, "AppData", "Roaming", "Chainlet")
		} else {
			return filepath.Join(home, ".chainlet")
		}
	}
	// As we cannot guess a stable location, return empty and handle later
	return ""
}

// HomeDir returns the user's home directory.
func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

// LogLevel parses a string into a Logrus log level.
func LogLevel(l string) logrus.Level {
	switch l {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.DebugLevel
	}
}
