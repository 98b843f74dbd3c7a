package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cjeanneret/SurveyCam/internal/config"
	"github.com/cjeanneret/SurveyCam/internal/debug"
)

// rootOptions are the flags shared by every subcommand.
type rootOptions struct {
	configPath string
	debugLevel int
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "surveycam",
		Short:         "Field survey camera: geotagged capture, gallery and export",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", filepath.Join("configs", "default.yaml"), "path to config file (.yaml or .toml)")
	root.PersistentFlags().IntVar(&opts.debugLevel, "debug", -1, "override debug level 0-4 (-1 = use config)")

	root.AddCommand(
		newServeCmd(opts),
		newCaptureCmd(opts),
		newListCmd(opts),
		newExportCmd(opts),
		newImageCmd(opts),
		newCommentCmd(opts),
		newDeleteCmd(opts),
		newImportCmd(opts),
		newUsageCmd(opts),
	)
	return root
}

// loadConfig reads the config file. The default path may be absent, in
// which case built-in defaults are used; an explicit --config must exist.
func (o *rootOptions) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	explicit := cmd.Flags().Changed("config")
	if explicit {
		if err := config.ValidateConfigPath(o.configPath); err != nil {
			return nil, err
		}
	}

	var cfg *config.Config
	if _, err := os.Stat(o.configPath); !explicit && errors.Is(err, fs.ErrNotExist) {
		cfg = config.Default()
	} else {
		cfg, err = config.Load(o.configPath)
		if err != nil {
			return nil, fmt.Errorf("load config failed: %w", err)
		}
	}

	if o.debugLevel >= 0 {
		cfg.Defaults.DebugLevel = o.debugLevel
	}
	debug.Init(cfg.Defaults.DebugLevel)
	debug.Section("Initialization")
	debug.Value("Config path", o.configPath)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)
	return cfg, nil
}
