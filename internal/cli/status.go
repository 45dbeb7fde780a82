package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/KafClaw/KafMarket/internal/bus"
	"github.com/KafClaw/KafMarket/internal/config"
	"github.com/KafClaw/KafMarket/internal/store"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "Version: %s\n", version)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration and marketplace counts",
	RunE:  runStatus,
}

var statusProbe bool

func init() {
	statusCmd.Flags().BoolVar(&statusProbe, "probe", false, "Dial the event brokers and check the events topic")
}

func runStatus(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	printHeader(out, "📊 KafMarket Status")
	fmt.Fprintf(out, "Version:  %s\n", version)

	if path, err := config.ConfigPath(); err == nil {
		_, statErr := os.Stat(path)
		fmt.Fprintf(out, "Config:   %s %s\n", check(statErr == nil), path)
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	fmt.Fprintf(out, "Listen:   %s:%d\n", cfg.Gateway.Host, cfg.Gateway.Port)
	fmt.Fprintf(out, "Events:   %s kafka %v topic=%s encoding=%s\n", check(cfg.Events.Enabled), cfg.Events.Brokers, cfg.Events.Topic, cfg.Events.Encoding)
	fmt.Fprintf(out, "Slack:    %s %s\n", check(cfg.Slack.Enabled), cfg.Slack.Channel)
	if statusProbe {
		for _, c := range bus.Probe(cmd.Context(), kafkaOptions(cfg.Events), 8*time.Second) {
			fmt.Fprintf(out, "  broker %s %s %s (%s)\n", check(c.OK), c.Addr, c.Detail, c.Duration)
			if c.Hint != "" {
				fmt.Fprintf(out, "    hint: %s\n", c.Hint)
			}
		}
	}

	if _, err := os.Stat(cfg.Database.Path); err != nil {
		fmt.Fprintf(out, "Database: %s %s (not created yet, run 'kafmarket serve')\n", check(false), cfg.Database.Path)
		return nil
	}
	st, err := store.Open(cfg.Database.Driver, cfg.Database.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	var stats *store.Stats
	if err := st.InTx(ctx, func(tx *store.Tx) error {
		var err error
		stats, err = tx.Stats(ctx)
		return err
	}); err != nil {
		return err
	}
	fmt.Fprintf(out, "Database: %s %s (%s)\n", check(true), cfg.Database.Path, cfg.Database.Driver)
	fmt.Fprintf(out, "  agents=%d capabilities=%d rfps=%d proposals=%d sessions=%d messages=%d\n",
		stats.Agents, stats.Capabilities, stats.Rfps, stats.Proposals, stats.Sessions, stats.Messages)
	return nil
}

// openStore loads config and opens the marketplace database, creating its
// directory when needed.
func openStore() (*config.Config, *store.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	for _, dir := range []string{cfg.Paths.DataDir, filepath.Dir(cfg.Database.Path)} {
		if err := config.EnsureDir(dir); err != nil {
			return nil, nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	st, err := store.Open(cfg.Database.Driver, cfg.Database.Path)
	if err != nil {
		return nil, nil, err
	}
	return cfg, st, nil
}
