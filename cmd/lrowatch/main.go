package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/zgpcy/azure-lro-poller/internal/azure"
	"github.com/zgpcy/azure-lro-poller/internal/config"
	"github.com/zgpcy/azure-lro-poller/internal/logger"
	"github.com/zgpcy/azure-lro-poller/internal/transport"
	"github.com/zgpcy/azure-lro-poller/internal/version"
)

const (
	// DefaultShutdownTimeout is the maximum time to wait for graceful shutdown
	DefaultShutdownTimeout = 30 * time.Second

	defaultConfigPath = "config.yaml"
)

// newSender builds the ARM sender; tests replace it
var newSender = func(cfg *config.Config, log *logger.Logger) (transport.Sender, error) {
	return azure.NewSender(cfg, log)
}

type rootOptions struct {
	configPath string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "lrowatch",
		Short: "Drive Azure Resource Manager long-running operations to completion",
		Long: `lrowatch starts Azure Resource Manager long-running operations, polls them
until they reach a terminal status and checkpoints their resume tokens so
polling survives restarts.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", defaultConfigPath, "Path to configuration file")

	cmd.AddCommand(
		runCmd(opts),
		beginCmd(opts),
		resumeCmd(opts),
		versionCmd(),
	)
	return cmd
}

// loadConfig reads the config file. A missing file at the default path falls
// back to defaults and environment variables.
func (o *rootOptions) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err == nil {
		return cfg, nil
	}
	if !cmd.Flags().Changed("config") && errors.Is(err, fs.ErrNotExist) {
		return config.Default()
	}
	return nil, fmt.Errorf("failed to load configuration: %w", err)
}

// newLogger writes to w so command output on stdout stays machine readable
func newLogger(cfg *config.Config, w io.Writer) *logger.Logger {
	return logger.NewWithOptions(logger.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Writer: w,
	})
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		RunE: func(cmd *cobra.Command, args []string) error {
			info := version.Info()
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "lrowatch %s (commit %s, built %s, %s)\n",
				info["version"], info["git_commit"], info["build_date"], info["go_version"])
			return err
		},
	}
}
