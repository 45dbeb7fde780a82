package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/KafClaw/KafMarket/internal/api"
	"github.com/KafClaw/KafMarket/internal/bus"
	"github.com/KafClaw/KafMarket/internal/config"
	"github.com/KafClaw/KafMarket/internal/notify"
	"github.com/spf13/cobra"
)

var serveSignalNotify = signal.NotifyContext

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the marketplace HTTP server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	printHeader(cmd.OutOrStdout(), "🌐 KafMarket Server")

	cfg, st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	logger := newLogger(cfg.Log, cmd.ErrOrStderr())
	slog.SetDefault(logger)

	ctx, stop := serveSignalNotify(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	events := bus.NewEventBus(1024)
	if cfg.Events.Enabled {
		sink, err := bus.NewKafkaSink(kafkaOptions(cfg.Events))
		if err != nil {
			return err
		}
		defer sink.Close()
		events.Subscribe(bus.AllEvents, sink.Handle)
		logger.Info("Kafka event sink enabled", "brokers", cfg.Events.Brokers, "topic", cfg.Events.Topic, "encoding", cfg.Events.Encoding)
	}
	if cfg.Slack.Enabled {
		notifier, err := notify.NewSlackNotifier(cfg.Slack, &http.Client{Timeout: 15 * time.Second})
		if err != nil {
			return fmt.Errorf("slack notifier: %w", err)
		}
		notifier.Register(events)
		logger.Info("Slack notifications enabled", "channel", cfg.Slack.Channel)
	}
	go events.Dispatch(ctx)

	srv := api.New(cfg, st, events, logger, version)
	serveErr := srv.ListenAndServe(ctx)

	drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	events.Drain(drainCtx)
	if dropped := events.Dropped(); dropped > 0 {
		logger.Warn("Events dropped during run", "count", dropped)
	}
	return serveErr
}

// newLogger builds the slog handler selected by log.level and log.format.
func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func kafkaOptions(cfg config.EventsConfig) bus.KafkaOptions {
	return bus.KafkaOptions{
		Brokers:          cfg.Brokers,
		Topic:            cfg.Topic,
		Encoding:         cfg.Encoding,
		SecurityProtocol: cfg.SecurityProtocol,
		SASLMechanism:    cfg.SASLMechanism,
		Username:         cfg.SASLUsername,
		Password:         cfg.SASLPassword,
		CAFile:           cfg.CAFile,
	}
}
