package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"toolgate/internal/aggregator"
	"toolgate/internal/config"
	"toolgate/pkg/logging"

	"github.com/spf13/cobra"
)

// serveDebug enables verbose logging across the application.
var serveDebug bool

// serveConfigPath specifies a custom configuration directory path.
// When unset, the per-user configuration directory is used.
var serveConfigPath string

// serveCmd defines the serve command structure. This is the main command of
// toolgate: it aggregates the configured upstream servers and exposes the
// curated catalog over a single MCP endpoint.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the toolgate aggregator server",
	Long: `Starts the toolgate aggregator server.

The server connects to every upstream MCP server in the configured registry,
merges their tool catalogs, applies the allow-list, and serves the result
over one MCP endpoint. The catalog is rebuilt on the configured refresh
interval and whenever config.yaml changes on disk.

Configuration:
  toolgate loads configuration from config.yaml in ~/.config/toolgate by
  default. Use --config-path to load from a different directory.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

// runServe is the main entry point for the serve command.
func runServe(cmd *cobra.Command, args []string) error {
	level := logging.LevelInfo
	if serveDebug {
		level = logging.LevelDebug
	}
	logging.Init(level, os.Stderr)

	configPath := serveConfigPath
	if configPath == "" {
		configPath = config.GetDefaultConfigPathOrPanic()
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	baseCtx := cmd.Context()
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(baseCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	manager := aggregator.NewManager(cfg, nil)
	if err := manager.Start(ctx); err != nil {
		return fmt.Errorf("failed to start aggregation manager: %w", err)
	}
	defer manager.Stop()

	srv := aggregator.NewServer(manager, cfg.Aggregator)
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("failed to start aggregator server: %w", err)
	}
	defer func() {
		if err := srv.Stop(context.Background()); err != nil {
			logging.Warn("Serve", "Error stopping aggregator server: %v", err)
		}
	}()

	// Hot-reload: a changed config.yaml updates the registry and triggers an
	// immediate aggregation pass. A reload that fails validation is ignored;
	// the running configuration stays in effect.
	watcher, err := config.NewWatcher(configPath, func() {
		newCfg, loadErr := config.LoadConfig(configPath)
		if loadErr != nil {
			logging.Error("Serve", loadErr, "Ignoring configuration reload")
			return
		}
		manager.UpdateConfig(newCfg)
		manager.Refresh(ctx)
	})
	if err != nil {
		logging.Warn("Serve", "Configuration hot-reload disabled: %v", err)
	} else {
		defer watcher.Stop()
	}

	logging.Info("Serve", "Aggregator endpoint ready at %s", srv.GetEndpoint())

	<-ctx.Done()
	logging.Info("Serve", "Shutting down")
	return nil
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&serveDebug, "debug", false, "Enable debug logging")
	serveCmd.Flags().StringVar(&serveConfigPath, "config-path", "", "Custom configuration directory path")
}
