package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"tickvault/internal/config"
	"tickvault/internal/domain"
	"tickvault/internal/feed"
	"tickvault/internal/segment"
	"tickvault/internal/store"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfgPath := flag.String("config", "", "optional path to a config file; environment variables always apply")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return 1
	}

	log := newLogger(cfg.LogLevel)
	slog.SetDefault(log)
	log.Info("starting collector",
		"bucket", cfg.RawBucket,
		"symbol", cfg.Symbol,
		"local_dir", cfg.LocalDir,
		"rot_bytes", cfg.RotBytes,
		"rot_secs", cfg.RotSecs,
		"instance_id", cfg.InstanceID,
		"kafka", cfg.Kafka.Enabled,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(cfg.LocalDir, 0o755); err != nil {
		log.Error("create local dir", "dir", cfg.LocalDir, "err", err)
		return 1
	}

	uploader, err := store.NewUploader(ctx, store.Config{
		Bucket:   cfg.RawBucket,
		Region:   cfg.AWSRegion,
		Endpoint: cfg.S3Endpoint,
	}, log)
	if err != nil {
		log.Error("init uploader", "err", err)
		return 1
	}

	src := domain.Source{
		Exchange:   "binance",
		Stream:     cfg.Feed.StreamType,
		Symbol:     cfg.Symbol,
		InstanceID: cfg.InstanceID,
	}
	if src.Stream == "" {
		src.Stream = "trade"
	}

	writer := segment.NewRotatingWriter(segment.Config{
		LocalDir: cfg.LocalDir,
		Source:   src,
		MaxBytes: cfg.RotBytes,
		MaxAge:   cfg.RotAge(),
	}, uploader, log)

	// Pick up any segments a previous process failed to commit.
	if err := segment.Replay(ctx, cfg.LocalDir, uploader, src, log); err != nil {
		log.Warn("leftover replay incomplete", "err", err)
	}

	handler := func(ev domain.Event) {
		if ctx.Err() != nil {
			return
		}
		if err := writer.Write(ctx, ev); err != nil {
			log.Error("write event", "err", err)
		}
	}

	err = runSource(ctx, cfg, log, handler)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("feed stopped", "err", err)
	}

	// Final flush: commit whatever is buffered before exit. Use a fresh
	// context, the signal context is already cancelled.
	log.Info("shutting down")
	flushCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := writer.Close(flushCtx); err != nil {
		log.Error("final flush", "err", err)
	}
	log.Info("shutdown complete")
	return 0
}

// runSource runs the configured feed until ctx is cancelled. Kafka, when
// enabled, replaces the exchange WebSocket; the segment engine is
// single-threaded and accepts events from exactly one source.
func runSource(ctx context.Context, cfg config.Config, log *slog.Logger, h feed.Handler) error {
	if cfg.Kafka.Enabled {
		src, err := feed.NewKafkaSource(feed.KafkaConfig{
			Enabled: true,
			Brokers: cfg.Kafka.Brokers,
			Topics:  cfg.Kafka.Topics,
			GroupID: cfg.Kafka.GroupID,
		}, log)
		if err != nil {
			return err
		}
		return src.Run(ctx, h)
	}

	ws := feed.NewWSClient(feed.WSConfig{
		BaseURL:        cfg.Feed.BaseURL,
		Symbol:         cfg.Symbol,
		StreamType:     cfg.Feed.StreamType,
		ReconnectDelay: cfg.ReconnectDelay(),
	}, log)
	return ws.Run(ctx, h)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "WARN", "WARNING":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
