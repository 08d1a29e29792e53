// Command snyk-tag-processor consumes import-notification messages from a
// storage queue, waits for the referenced Snyk import jobs to finish, and
// applies the requested tags to the projects each import produced.
//
// Subcommands:
//
//	run           — start the consumer loop (the production mode)
//	check-config  — validate environment configuration and exit
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	// Embeds the IANA timezone database in the binary so that
	// time.LoadLocation works inside distroless containers that have no
	// /usr/share/zoneinfo.
	_ "time/tzdata"

	// Automatically sets GOMEMLIMIT from the cgroup memory limit so that
	// the Go GC triggers before the OOM killer fires in containers.
	_ "github.com/KimMachineGun/automemlimit"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/snyk-ps/snyk-tag-processor/internal/config"
	"github.com/snyk-ps/snyk-tag-processor/internal/consumer"
	"github.com/snyk-ps/snyk-tag-processor/internal/queue"
	"github.com/snyk-ps/snyk-tag-processor/internal/snyk"
)

func main() {
	root := &cobra.Command{
		Use:   "snyk-tag-processor",
		Short: "snyk-tag-processor — tags Snyk projects created by queued imports",
		// Silence default error printing; we print it ourselves with slog.
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	root.AddCommand(
		runCmd(),
		checkConfigCmd(),
	)

	if err := root.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

// ── run ───────────────────────────────────────────────────────────────────────

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the queue consumer loop",
		RunE:  runConsumer,
	}
}

func runConsumer(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	q, err := newQueue(cfg)
	if err != nil {
		return fmt.Errorf("queue: %w", err)
	}

	httpClient, err := snyk.BuildSafeClient()
	if err != nil {
		return fmt.Errorf("http client: %w", err)
	}
	api, err := snyk.New(httpClient, snyk.Options{
		Token:             cfg.SnykToken,
		RestAPIURL:        cfg.SnykRestAPIURL,
		RestAPIVersion:    cfg.SnykRestAPIVersion,
		V1APIURL:          cfg.SnykV1APIURL,
		RequestsPerSecond: cfg.SnykAPIRPS,
	})
	if err != nil {
		return fmt.Errorf("snyk client: %w", err)
	}

	proc := consumer.NewProcessor(q, api, consumer.ProcessorConfig{
		MaxAttempts:       cfg.MaxAttempts,
		BackoffBase:       cfg.MaxTimeout,
		VisibilityTimeout: cfg.VisibilityTimeout,
	})
	loop := consumer.NewLoop(q, proc, consumer.LoopConfig{
		PollInterval:      cfg.QueuePollingInterval,
		VisibilityTimeout: cfg.VisibilityTimeout,
	})

	slog.Info("consumer starting", "config", cfg.String())
	if err := loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	slog.Info("consumer stopped")
	return nil
}

// newQueue builds the transport the configuration selects.
func newQueue(cfg *config.Config) (queue.Queue, error) {
	switch cfg.QueueBackend {
	case config.BackendAzure:
		return queue.NewAzureQueue(cfg.StorageAccountName, cfg.StorageQueueName)
	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		return queue.NewRedisQueue(client, cfg.RedisQueueKey), nil
	default:
		return nil, fmt.Errorf("unknown queue backend %q", cfg.QueueBackend)
	}
}

// ── check-config ──────────────────────────────────────────────────────────────

func checkConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Validate environment configuration and exit",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			fmt.Println(cfg.String())
			return nil
		},
	}
}

// ── helpers ───────────────────────────────────────────────────────────────────

// newLogger creates a slog.Logger based on the configured log level and format.
func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
