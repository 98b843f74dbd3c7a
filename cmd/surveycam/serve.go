package main

import (
	"context"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/cjeanneret/SurveyCam/internal/config"
	"github.com/cjeanneret/SurveyCam/internal/debug"
	"github.com/cjeanneret/SurveyCam/internal/hw/gpio"
	"github.com/cjeanneret/SurveyCam/internal/web"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	port := &portFlag{defaultPort: 8080}
	var watch bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API with live status stream",
		Long: `Serve starts the capture API: capture, burst and timer control, sensor and
settings updates, the photo gallery with CSV/JSON export, Prometheus metrics
and a server-sent event stream of status lines and capture events.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, port.listen(cfg.Web.Listen), opts.configPath, watch)
		},
	}
	cmd.Flags().Var(port, "port", "listen on port; --port alone uses 8080 (default: web.listen from config)")
	cmd.Flags().Lookup("port").NoOptDefVal = "8080"
	cmd.Flags().BoolVar(&watch, "watch", true, "reload capture settings when the config file changes")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, listen, configPath string, watch bool) error {
	a, err := newApp(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			debug.Error(err)
		}
	}()

	broadcaster := web.NewStatusBroadcaster()
	stop := broadcaster.Forward(a.bus)
	defer stop()
	debug.SetOutput(io.MultiWriter(os.Stdout, web.BroadcastWriter(broadcaster)))

	a.gallery.CheckUsage()

	if watch {
		if _, err := os.Stat(configPath); err == nil {
			w := config.NewWatcher(configPath, 0)
			w.OnReload(func(c *config.Config) {
				if err := a.coord.SetSettings(c.Settings, "config"); err != nil {
					debug.Warn("Config reload: settings rejected: %v", err)
				}
			})
			w.OnError(debug.Error)
			if err := w.Start(ctx); err != nil {
				debug.Warn("Config watcher disabled: %v", err)
			} else {
				defer w.Stop()
			}
		}
	}

	if pin := cfg.Camera.ButtonPin; pin > 0 {
		go func() {
			err := gpio.WatchButton(ctx, a.gpio, pin, gpio.DefaultButtonPoll, func() {
				go func() {
					if _, err := a.coord.Capture(ctx); err != nil {
						broadcaster.Broadcast("error", "Button capture failed: "+err.Error())
					}
				}()
			})
			if err != nil {
				debug.Error(err)
			}
		}()
	}

	srv := web.NewServer(listen, broadcaster, a.coord, a.gallery)
	if a.locator != nil {
		srv.SetLocator(a.locator)
	}
	return srv.Run(ctx)
}
