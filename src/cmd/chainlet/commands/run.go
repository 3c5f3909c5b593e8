package commands

import (
	"fmt"
	"io/ioutil"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/chainlet/chainlet/src/chainlet"
	"github.com/chainlet/chainlet/src/config"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

//NewRunCmd returns the command that starts a chainlet node
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Run node",
		PreRunE: loadConfig,
		RunE:    runChainlet,
	}
	AddRunFlags(cmd)
	return cmd
}

/*******************************************************************************
* RUN
*******************************************************************************/

func runChainlet(cmd *cobra.Command, args []string) error {
	engine := chainlet.NewChainlet(&_config.Chainlet)

	if err := engine.Init(); err != nil {
		_config.Chainlet.Logger().Error("Cannot initialize engine:", err)
		return err
	}

	if err := engine.Run(); err != nil {
		_config.Chainlet.Logger().Error("Cannot run engine:", err)
		return err
	}
	defer engine.Shutdown()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)

	if _config.NoConsole {
		<-signalCh
		return nil
	}

	fmt.Printf("chainlet node %s\nLogs -> %s\n", engine.Node.Addr(), _config.LogFilePath())

	done := make(chan struct{})
	go func() {
		NewConsole(engine.Node, os.Stdin, os.Stdout).Run()
		close(done)
	}()

	select {
	case <-done:
	case <-signalCh:
	}

	fmt.Println("Shutting down...")

	return nil
}

/*******************************************************************************
* CONFIG
*******************************************************************************/

//AddRunFlags adds flags to the Run command
func AddRunFlags(cmd *cobra.Command) {

	cmd.Flags().String("datadir", _config.Chainlet.DataDir, "Top-level directory for configuration and logs")
	cmd.Flags().String("log", _config.Chainlet.LogLevel, "debug, info, warn, error, fatal, panic")
	cmd.Flags().String("log-file", _config.LogFile, "Log file (default [datadir]/node_<port>.log)")
	cmd.Flags().String("moniker", _config.Chainlet.Moniker, "Optional name")
	cmd.Flags().Bool("no-console", _config.NoConsole, "Do not read commands from stdin, log to stderr instead")

	// Network
	cmd.Flags().StringP("listen", "l", _config.Chainlet.BindAddr, "Listen IP:Port for chainlet node")
	cmd.Flags().StringP("advertise", "a", _config.Chainlet.AdvertiseAddr, "Advertise IP:Port for chainlet node")
	cmd.Flags().StringSliceP("bootstrap", "b", _config.Chainlet.BootstrapPeers, "IP:Port of peers to connect to on startup")
	cmd.Flags().DurationP("timeout", "t", _config.Chainlet.TCPTimeout, "TCP Timeout")
	cmd.Flags().Duration("handshake-timeout", _config.Chainlet.HandshakeTimeout, "Time to wait for a peer's chain when connecting")
	cmd.Flags().Uint32("max-frame-size", _config.Chainlet.MaxFrameSize, "Largest frame accepted from a peer")
	cmd.Flags().Bool("discover", _config.Chainlet.Discover, "Ask new peers for their peers")

	// Service
	cmd.Flags().StringP("service-listen", "s", _config.Chainlet.ServiceAddr, "Listen IP:Port for HTTP service")
	cmd.Flags().Bool("no-service", _config.Chainlet.NoService, "Disable HTTP service")

	// Mining
	cmd.Flags().Bool("mine", _config.Chainlet.Mine, "Mine pending transactions in the background")
	cmd.Flags().Duration("mining-idle", _config.Chainlet.MiningIdle, "Time between mempool checks when idle")
}

func loadConfig(cmd *cobra.Command, args []string) error {

	err := bindFlagsLoadViper(cmd)
	if err != nil {
		return err
	}

	if _config.Chainlet.DataDir != "" {
		if err := os.MkdirAll(_config.Chainlet.DataDir, 0755); err != nil {
			return err
		}
	}

	_config.Chainlet.SetLogger(newLogger(_config))

	logFields := logrus.Fields{
		"chainlet.DataDir":          _config.Chainlet.DataDir,
		"chainlet.BindAddr":         _config.Chainlet.BindAddr,
		"chainlet.AdvertiseAddr":    _config.Chainlet.AdvertiseAddr,
		"chainlet.ServiceAddr":      _config.Chainlet.ServiceAddr,
		"chainlet.NoService":        _config.Chainlet.NoService,
		"chainlet.BootstrapPeers":   _config.Chainlet.BootstrapPeers,
		"chainlet.LogLevel":         _config.Chainlet.LogLevel,
		"chainlet.Moniker":          _config.Chainlet.Moniker,
		"chainlet.TCPTimeout":       _config.Chainlet.TCPTimeout,
		"chainlet.HandshakeTimeout": _config.Chainlet.HandshakeTimeout,
		"chainlet.MaxFrameSize":     _config.Chainlet.MaxFrameSize,
		"chainlet.Mine":             _config.Chainlet.Mine,
		"chainlet.MiningIdle":       _config.Chainlet.MiningIdle,
		"chainlet.Discover":         _config.Chainlet.Discover,
		"LogFile":                   _config.LogFilePath(),
		"NoConsole":                 _config.NoConsole,
	}

	if file := viper.ConfigFileUsed(); file != "" {
		logFields["ConfigFile"] = file
	}

	_config.Chainlet.Logger().WithFields(logFields).Debug("RUN")

	return nil
}

// Bind all flags and read the config into viper
func bindFlagsLoadViper(cmd *cobra.Command) error {
	// Register flags with viper. Include flags from this command and all other
	// persistent flags from the parent
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// first unmarshal to read from CLI flags
	if err := viper.Unmarshal(_config); err != nil {
		return err
	}

	// look for config file in [datadir]/chainlet.toml (.json, .yaml also work)
	viper.SetConfigName(config.DefaultConfigFile)
	viper.AddConfigPath(_config.Chainlet.DataDir)

	// If a config file is found, read it in. The logger is not set up yet, so
	// the file used is logged by loadConfig.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
	}

	// second unmarshal to read from config file
	return viper.Unmarshal(_config)
}

// newLogger logs to the log file through an lfshook. When the console is on,
// nothing is written to the terminal.
func newLogger(c *CLIConfig) *logrus.Logger {
	logger := logrus.New()
	logger.Level = config.LogLevel(c.Chainlet.LogLevel)
	logger.Formatter = new(prefixed.TextFormatter)

	path := c.LogFilePath()

	pathMap := lfshook.PathMap{}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		logger.Infof("Failed to create %s, using default stderr", filepath.Dir(path))
		return logger
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		logger.Infof("Failed to open %s file, using default stderr", path)
		return logger
	}
	f.Close()

	for _, level := range logrus.AllLevels {
		pathMap[level] = path
	}

	if !c.NoConsole {
		logger.Out = ioutil.Discard
	}

	logger.Hooks.Add(lfshook.NewHook(
		pathMap,
		&logrus.TextFormatter{},
	))

	return logger
}
