package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MikeSquared-Agency/macha/internal/api"
	"github.com/MikeSquared-Agency/macha/internal/attachments"
	"github.com/MikeSquared-Agency/macha/internal/config"
	"github.com/MikeSquared-Agency/macha/internal/flows"
	"github.com/MikeSquared-Agency/macha/internal/hermes"
	"github.com/MikeSquared-Agency/macha/internal/ops"
	"github.com/MikeSquared-Agency/macha/internal/session"
	"github.com/MikeSquared-Agency/macha/internal/slack"
	"github.com/MikeSquared-Agency/macha/internal/speech"
	"github.com/MikeSquared-Agency/macha/internal/store"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		slog.Warn("failed to load .env", "error", err)
	}
	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	slog.Info("macha starting", "port", cfg.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Flows
	invoker, runner := flows.FromConfig(cfg, slog.Default())

	// Database (optional, turns are only logged without it)
	var ledger ops.Ledger
	var stats api.StatsSource
	if cfg.DatabaseURL != "" {
		db, err := store.New(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		n, err := db.Migrate(ctx)
		if err != nil {
			slog.Error("failed to migrate database", "error", err)
			os.Exit(1)
		}
		slog.Info("database connected", "migrations_applied", n)
		ledger, stats = db, db
	} else {
		slog.Warn("DATABASE_URL not set — turn ledger disabled")
	}

	// NATS/Hermes (optional)
	var bus ops.Publisher
	if cfg.NatsURL != "" {
		hermesClient, err := hermes.NewClient(ctx, cfg.NatsURL, cfg.NatsToken, slog.Default())
		if err != nil {
			slog.Error("failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer hermesClient.Close()
		slog.Info("NATS connected", "url", cfg.NatsURL)
		bus = hermesClient

		if err := hermesClient.Publish(hermes.SubjectRegistered, map[string]any{
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"port":      cfg.Port,
			"flows":     flowNames(runner),
		}); err != nil {
			slog.Warn("failed to publish registration", "error", err)
		}
	}

	// Slack alerts (optional)
	var alerts ops.Alerter
	if cfg.SlackBotToken != "" && cfg.SlackChannel != "" {
		alerts = slack.NewPoster(cfg.SlackBotToken, cfg.SlackChannel, slog.Default())
		slog.Info("slack alerts ready", "channel", cfg.SlackChannel)
	}

	reporter := ops.NewReporter(ledger, bus, alerts, slog.Default())

	// Attachments
	var uploads attachments.Store
	var diskStore *attachments.DiskStore
	if cfg.S3.Enabled() {
		s3Store, err := attachments.NewS3Store(attachments.S3Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			PublicBaseURL:   cfg.S3.PublicBaseURL,
		})
		if err != nil {
			slog.Error("failed to configure S3 uploads", "error", err)
			os.Exit(1)
		}
		uploads = s3Store
		slog.Info("uploads go to S3", "bucket", cfg.S3.Bucket)
	} else {
		d, err := attachments.NewDiskStore(cfg.UploadDir, cfg.PublicURL)
		if err != nil {
			slog.Error("failed to configure disk uploads", "error", err)
			os.Exit(1)
		}
		uploads, diskStore = d, d
		slog.Info("uploads go to disk", "dir", cfg.UploadDir)
	}

	// Speech
	synth := speech.NewSynthesizer(cfg.GoogleAPIKey, cfg.TTSModel, cfg.TTSVoice, slog.Default())
	synth.SetBaseURL(cfg.GeminiBaseURL)
	if synth.Configured() {
		slog.Info("speech ready", "model", cfg.TTSModel, "voice", synth.Voice())
	} else {
		slog.Warn("GOOGLE_API_KEY not set — speech requests will be rejected")
	}

	topic, err := flows.ParseTopic(cfg.DefaultTopic)
	if err != nil {
		slog.Warn("invalid default topic, using tech", "topic", cfg.DefaultTopic)
		topic = flows.TopicTech
	}

	engine := session.NewEngine(session.Deps{
		Asker:    flows.NewRouter(invoker, slog.Default()),
		Store:    uploads,
		Speech:   synth,
		Observer: reporter,
	}, session.Options{
		Greeting:      cfg.Greeting,
		RequireSignIn: cfg.RequireSignIn,
		DefaultTopic:  topic,
	}, slog.Default())
	sessions := session.NewManager(engine, slog.Default())

	go sweepSessions(ctx, sessions, cfg.SessionIdle)

	// HTTP API
	opts := api.Options{
		Port:     cfg.Port,
		APIToken: cfg.APIToken,
		Stats:    stats,
	}
	if runner != nil {
		opts.Flows = runner
	}
	if diskStore != nil {
		opts.Uploads = diskStore.Handler()
	}
	srv := api.NewServer(sessions, opts, slog.Default())
	go func() {
		if err := srv.Start(); err != nil {
			slog.Error("HTTP server error", "error", err)
			cancel()
		}
	}()

	slog.Info("macha ready", "port", cfg.Port, "require_sign_in", cfg.RequireSignIn)

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case <-ctx.Done():
	}
	slog.Info("shutting down")

	shutdownCtx, stop := context.WithTimeout(context.Background(), 30*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP shutdown incomplete", "error", err)
	}
	reporter.Wait()
	cancel()
	slog.Info("macha stopped")
}

func flowNames(p *flows.PromptInvoker) []string {
	if p == nil {
		return nil
	}
	return p.Flows()
}

func sweepSessions(ctx context.Context, m *session.Manager, maxIdle time.Duration) {
	if maxIdle <= 0 {
		return
	}
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Sweep(maxIdle); n > 0 {
				slog.Info("expired idle sessions", "count", n, "remaining", m.Len())
			}
		}
	}
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
