package commands

import (
	"fmt"
	"net"
	"path/filepath"

	"github.com/chainlet/chainlet/src/config"
)

//CLIConfig contains configuration for the Run command
type CLIConfig struct {
	Chainlet  config.Config `mapstructure:",squash"`
	LogFile   string        `mapstructure:"log-file"`
	NoConsole bool          `mapstructure:"no-console"`
}

//NewDefaultCLIConfig creates a CLIConfig with default values
func NewDefaultCLIConfig() *CLIConfig {
	return &CLIConfig{
		Chainlet:  *config.NewDefaultConfig(),
		LogFile:   "",
		NoConsole: false,
	}
}

// LogFilePath returns the file the node logs to. It defaults to
// node_<port>.log in the data directory.
func (c *CLIConfig) LogFilePath() string {
	if c.LogFile != "" {
		return c.LogFile
	}

	port := "0"
	if _, p, err := net.SplitHostPort(c.Chainlet.BindAddr); err == nil {
		port = p
	}

	return filepath.Join(c.Chainlet.DataDir, fmt.Sprintf("node_%s.log", port))
}
