package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/homenavi/petfeeder/internal/config"
	"github.com/homenavi/petfeeder/internal/devserver"
	"github.com/homenavi/petfeeder/internal/mqtt"
	"github.com/homenavi/petfeeder/internal/observability"
)

// seedFoodLevel is the hopper fill of freshly seeded devices, in kg.
const seedFoodLevel = 2.0

func main() {
	cfg := config.LoadServer()
	setupLogging(cfg.LogLevel)

	if cfg.DB.Driver == "postgres" && strings.TrimSpace(cfg.DB.User) == "" {
		slog.Error("missing required env", "key", "POSTGRES_USER")
		os.Exit(1)
	}

	db, err := devserver.OpenDB(cfg.DB)
	if err != nil {
		slog.Error("db connect failed", "driver", cfg.DB.Driver, "error", err)
		os.Exit(1)
	}
	repo, err := devserver.NewRepo(db)
	if err != nil {
		slog.Error("db migrate failed", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, id := range cfg.SeedDevices {
		if err := repo.EnsureDevice(ctx, id, seedFoodLevel); err != nil {
			slog.Error("seed device failed", "device_id", id, "error", err)
			os.Exit(1)
		}
	}
	slog.Info("devices seeded", "count", len(cfg.SeedDevices))

	tracer, shutdownTracing := observability.SetupTracing("feeder-devserver")
	metrics := observability.NewMetrics()

	var mq *mqtt.Client
	if cfg.MQTTBrokerURL != "" {
		mq, err = mqtt.Connect(cfg.MQTTBrokerURL, cfg.MQTTClientID)
		if err != nil {
			slog.Error("mqtt connect failed", "error", err)
			os.Exit(1)
		}
		defer mq.Close()
	} else {
		slog.Info("MQTT_BROKER_URL not set, running without device link")
	}

	var link *devserver.Link
	if mq != nil {
		link = devserver.NewLink(mq, cfg.TopicPrefix, repo)
		if err := mq.Subscribe(link.EventTopic(), func(m mqtt.Message) {
			link.HandleMessage(ctx, m, time.Now().UTC())
		}); err != nil {
			slog.Error("mqtt subscribe failed", "topic", link.EventTopic(), "error", err)
			os.Exit(1)
		}
		slog.Info("device events subscribed", "topic", link.EventTopic())
	}

	var dispenser *devserver.Dispenser
	if cfg.Dispense {
		dispenser = devserver.NewDispenser(repo, link, metrics, time.Local)
		if err := dispenser.Start(ctx); err != nil {
			slog.Error("dispenser start failed", "error", err)
			os.Exit(1)
		}
		defer dispenser.Stop()
	}

	srv := devserver.NewServer(repo, devserver.NewTokens(cfg.JWTSecret), devserver.Options{
		Link:      link,
		Dispenser: dispenser,
		Metrics:   metrics,
		Tracer:    tracer,
	})
	httpSrv := &http.Server{Addr: ":" + cfg.Port, Handler: srv.Handler(), ReadHeaderTimeout: 5 * time.Second}

	go func() {
		slog.Info("feeder-devserver listening", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("http server error", "error", err)
			cancel()
		}
	}()

	stop := make(chan os.Signal, 2)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-stop:
		slog.Info("shutdown requested")
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	if err := shutdownTracing(shutdownCtx); err != nil {
		slog.Warn("tracer shutdown failed", "error", err)
	}
	cancel()
}

func setupLogging(level string) {
	lvl := slog.LevelInfo
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	h := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(h))
}
