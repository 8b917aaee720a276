package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/homenavi/petfeeder/internal/cache"
	"github.com/homenavi/petfeeder/internal/cli"
	"github.com/homenavi/petfeeder/internal/config"
	"github.com/homenavi/petfeeder/internal/feederapi"
	"github.com/homenavi/petfeeder/internal/observability"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("petfeeder", flag.ContinueOnError)
	configPath := fs.String("config", os.Getenv("PETFEEDER_CONFIG"), "path to config.yaml (default ~/.petfeeder/config.yaml)")
	output := fs.String("o", "text", "output format: text or yaml")
	apiURL := fs.String("api", "", "override the feeder API base URL")
	profile := fs.String("profile", "", "override the cache profile")
	app := &cli.App{}
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, app.Usage())
		fmt.Fprintln(os.Stderr, "\nflags:")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	if *apiURL != "" {
		cfg.APIURL = strings.TrimRight(*apiURL, "/")
	}
	if *profile != "" {
		cfg.Profile = *profile
	}
	logger := setupLogging(cfg.Log)

	store, closeStore, err := cache.Open(cfg.Cache, cfg.Profile)
	if err != nil {
		logger.Error("cache open failed", "driver", cfg.Cache.Driver, "error", err)
		return 1
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Warn("cache close failed", "error", err)
		}
	}()

	metrics := observability.NewMetrics()
	if addr := strings.TrimSpace(cfg.Metrics.Addr); addr != "" {
		srv := &http.Server{Addr: addr, Handler: metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Warn("metrics server error", "error", err)
			}
		}()
		defer srv.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app.Store = store
	app.API = feederapi.New(cfg.APIURL, cache.TokenSource{Store: store}, cfg.Remote.Timeout).WithMetrics(metrics)
	app.Logger = logger
	app.Metrics = metrics
	app.Timeout = cfg.Remote.Timeout
	app.Location = cfg.Location()
	app.Output = *output

	if err := app.Run(ctx, fs.Args()); err != nil {
		if errors.Is(err, cli.ErrUsage) {
			fmt.Fprintln(os.Stderr, err)
			return 2
		}
		fmt.Fprintln(os.Stderr, "error:", cli.Describe(err))
		return 1
	}
	return 0
}

// setupLogging builds the process logger. Logs go to stderr so they never mix
// with command output.
func setupLogging(c config.Log) *slog.Logger {
	lvl := slog.LevelWarn
	switch strings.ToLower(strings.TrimSpace(c.Level)) {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "error":
		lvl = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: lvl}
	var h slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if strings.EqualFold(strings.TrimSpace(c.Format), "json") {
		h = slog.NewJSONHandler(os.Stderr, opts)
	}
	logger := slog.New(h)
	slog.SetDefault(logger)
	return logger
}
