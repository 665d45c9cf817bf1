package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/eg4monitor/eg4monitor/pkg/eg4"
	"github.com/eg4monitor/eg4monitor/pkg/exporter"
	"github.com/eg4monitor/eg4monitor/pkg/log"
	"github.com/eg4monitor/eg4monitor/pkg/server"

	_ "github.com/joho/godotenv/autoload"
	"github.com/levenlabs/go-lflag"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	cfg := eg4.Configured()
	scrapeTimeout := lflag.Duration("scrape-timeout", exporter.DefaultScrapeTimeout, "Timeout for a single scrape of the EG4 monitor")

	reg := prometheus.NewRegistry()
	srv := server.Configured(reg)

	// parse flags
	lflag.Configure()

	// lflag automatically sets llog's level, but we need to set the slog level
	level, err := log.LevelFromLLog()
	if err != nil {
		panic(err)
	}
	log.SetDefaultLogLevel(level)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	slog.Debug("logger configured", slog.String("level", level.String()))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	client, err := eg4.New(*cfg)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "invalid eg4 configuration", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := client.Close(); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to close eg4 client", slog.Any("error", err))
		}
	}()

	// fail fast on bad credentials; other errors are retried by the collector
	if err := client.Login(ctx); err != nil {
		if eg4.IsAuthError(err) {
			log.Ctx(ctx).ErrorContext(ctx, "eg4 login failed", slog.Any("error", err))
			os.Exit(1)
		}
		log.Ctx(ctx).WarnContext(ctx, "eg4 login failed, will retry on scrape", slog.Any("error", err))
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		exporter.NewCollector(client, *scrapeTimeout),
	)
	srv.SetInverters(client)

	// Run will block until context is canceled or error happens
	if err := srv.Run(ctx); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "server failed", slog.Any("error", err))
		os.Exit(1)
	}
	log.Ctx(ctx).InfoContext(ctx, "server exited cleanly")
}
