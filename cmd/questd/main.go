package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/coinville/questd/internal/api"
	"github.com/coinville/questd/internal/config"
	"github.com/coinville/questd/internal/conversation"
	"github.com/coinville/questd/internal/events"
	"github.com/coinville/questd/internal/exposure"
	"github.com/coinville/questd/internal/gateway"
	"github.com/coinville/questd/internal/persona"
	"github.com/coinville/questd/internal/rotation"
	"github.com/coinville/questd/internal/store"
	"github.com/coinville/questd/internal/vision"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	slog.Info("questd starting", "port", cfg.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	if cfg.DatabaseURL == "" {
		slog.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	db, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		slog.Error("failed to migrate schema", "error", err)
		os.Exit(1)
	}
	slog.Info("database connected")

	// AI gateway client
	if cfg.AIGatewayKey == "" {
		slog.Error("AI_GATEWAY_KEY is required")
		os.Exit(1)
	}
	llm := gateway.NewClient(cfg.AIGatewayKey, cfg.ChatModel)
	slog.Info("ai gateway client ready", "model", cfg.ChatModel)

	// Vision collaborator (optional — without it image turns are rejected)
	var vis *vision.Client
	if cfg.OpenAIAPIKey != "" {
		vis = vision.NewClient(cfg.OpenAIAPIKey, cfg.VisionModel)
		slog.Info("vision client ready", "model", cfg.VisionModel)
	} else {
		slog.Warn("vision not configured — image messages disabled")
	}

	// Events (optional — the core runs without a broker)
	var pub *events.Publisher
	if cfg.NatsURL != "" {
		pub, err = events.Connect(cfg.NatsURL, cfg.NatsToken, slog.Default())
		if err != nil {
			slog.Warn("NATS unavailable — running without events", "error", err)
			pub = nil
		} else {
			defer pub.Close()
			slog.Info("NATS connected", "url", cfg.NatsURL)
		}
	}

	catalog := persona.NewCatalog(db)
	scheduler := rotation.New(db, catalog, pub, slog.Default())
	engine := conversation.New(db, catalog, llm, conversation.Options{
		ReplyDelayMin: time.Duration(cfg.ReplyDelayMin) * time.Millisecond,
		ReplyDelayMax: time.Duration(cfg.ReplyDelayMax) * time.Millisecond,
	}, slog.Default())
	committer := exposure.New(db, catalog, pub, slog.Default())

	srv := api.NewServer(cfg.Port, scheduler, engine, committer, visionOrNil(vis), db, slog.Default())
	go func() {
		if err := srv.Start(); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	slog.Info("questd ready", "port", cfg.Port)

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	slog.Info("shutting down")
	cancel()
	slog.Info("questd stopped")
}

// visionOrNil keeps a typed-nil *vision.Client from masquerading as a
// non-nil api.Describer.
func visionOrNil(v *vision.Client) api.Describer {
	if v == nil {
		return nil
	}
	return v
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
