package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"toolgate/internal/aggregator"
	"toolgate/internal/config"
	"toolgate/pkg/logging"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var checkDebug bool
var checkConfigPath string

// checkCmd runs a single aggregation pass against the configured registry and
// prints what an agent would see, without starting the serving endpoint.
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run one aggregation pass and report the resulting catalog",
	Long: `Connects to every configured upstream server once, builds the curated tool
catalog, and prints it together with everything an operator wants to know
before pointing an agent at the endpoint: unreachable servers, allow-listed
tools no server provides, and shadowed duplicate names.

The command fails when the resulting catalog is empty.`,
	Args: cobra.NoArgs,
	RunE: runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	level := logging.LevelInfo
	if checkDebug {
		level = logging.LevelDebug
	}
	logging.Init(level, os.Stderr)

	configPath := checkConfigPath
	if configPath == "" {
		configPath = config.GetDefaultConfigPathOrPanic()
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	manager := aggregator.NewManager(cfg, nil)
	defer manager.Stop()

	report := manager.Refresh(ctx)
	out := cmd.OutOrStdout()

	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.AppendHeader(table.Row{"Tool", "Server"})
	for _, name := range report.Catalog.Names() {
		t.AppendRow(table.Row{name, report.Catalog.SourceServer(name)})
	}
	t.Render()

	fmt.Fprintf(out, "\nPass %s finished in %s: %d of %d servers healthy, %d tools published\n",
		report.Pass, report.Duration.Round(time.Millisecond),
		len(cfg.Servers)-len(report.FailedServers)-len(report.SkippedServers), len(cfg.Servers),
		report.Catalog.Len())

	if len(report.FailedServers) > 0 {
		fmt.Fprintf(out, "Failed servers: %s\n", strings.Join(report.FailedServers, ", "))
	}
	if len(report.SkippedServers) > 0 {
		fmt.Fprintf(out, "Skipped servers (circuit breaker open): %s\n", strings.Join(report.SkippedServers, ", "))
	}
	if len(report.Missing) > 0 {
		fmt.Fprintf(out, "Allowed tools no server provides: %s\n", strings.Join(report.Missing, ", "))
	}
	for _, c := range report.Collisions {
		fmt.Fprintf(out, "Duplicate tool name %q: kept %s, shadowed %s\n", c.Tool, c.Winner, c.Loser)
	}

	if report.Catalog.Len() == 0 {
		return fmt.Errorf("no tools available: check the server registry and allow-list")
	}
	return nil
}

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().BoolVar(&checkDebug, "debug", false, "Enable debug logging")
	checkCmd.Flags().StringVar(&checkConfigPath, "config-path", "", "Custom configuration directory path")
}
