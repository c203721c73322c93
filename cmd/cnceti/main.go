// cnceti drives a three-axis CNC machine from G-code programs stored on a
// disk or on a USB mass-storage chip.
//
// Usage:
//
//	cnceti run [--program name --device disk|usb --headless]
//	cnceti ls [--device disk|usb]
//	cnceti check
//
// Global flags:
//
//	--config string        Machine configuration file (default machine.cfg or $CNCETI_CONFIG)
//	--log-level string     DEBUG, INFO, WARN or ERROR
//	--log-file string      Write logs to a size-rotated file
//	--metrics-addr string  Serve Prometheus metrics on this address
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Banz520/CNCETI/pkg/config"
	"github.com/Banz520/CNCETI/pkg/log"
)

const version = "0.4.0"

var (
	configPath  string
	logLevel    string
	logFile     string
	metricsAddr string

	machine   *config.MachineConfig
	logCloser io.Closer
	rootCmd   *cobra.Command
)

func init() {
	rootCmd = &cobra.Command{
		Use:               "cnceti",
		Short:             "Three-axis CNC control core",
		Version:           version,
		SilenceUsage:      true,
		PersistentPreRunE: setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logCloser != nil {
				logCloser.Close()
			}
		},
	}
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "Machine configuration file (default machine.cfg or $CNCETI_CONFIG)")
	pf.StringVar(&logLevel, "log-level", "", "Log level (DEBUG, INFO, WARN, ERROR)")
	pf.StringVar(&logFile, "log-file", "", "Write logs to a size-rotated file")
	pf.StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9100)")

	rootCmd.AddCommand(newRunCmd(), newLsCmd(), newCheckCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads .env, configures logging and reads the machine file.
func setup(cmd *cobra.Command, args []string) error {
	if err := config.LoadEnvFiles(); err != nil {
		return fmt.Errorf("loading .env: %w", err)
	}

	root := log.Default()
	if logLevel != "" {
		root.SetLevel(log.ParseLevel(logLevel))
	}
	if logFile != "" {
		w, err := log.NewRotatingFileWriter(log.RotationConfig{Filename: logFile})
		if err != nil {
			return err
		}
		root.SetWriter(w)
		root.SetColorize(false)
		logCloser = w
	}
	logger := log.GetLogger("main")

	explicit := configPath != ""
	path := configPath
	if !explicit {
		path = config.ConfigPathFromEnv("machine.cfg")
		explicit = path != "machine.cfg"
	}
	var err error
	switch _, statErr := os.Stat(path); {
	case statErr == nil:
		machine, err = config.LoadMachine(path)
		if err != nil {
			return err
		}
		logger.Info("loaded %s", path)
	case explicit:
		return fmt.Errorf("config file %s: %w", path, statErr)
	default:
		machine = config.DefaultMachine()
		logger.Info("no %s, using built-in machine defaults", path)
	}
	machine.ApplyEnv()
	for _, opt := range machine.Unused {
		logger.Warn("unused config option %s", opt)
	}
	return nil
}
