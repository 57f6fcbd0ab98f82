package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/muilab/notigpt/internal/config"
	"github.com/muilab/notigpt/internal/digest"
	"github.com/muilab/notigpt/internal/drawer"
	"github.com/muilab/notigpt/internal/events"
	"github.com/muilab/notigpt/internal/llm"
	"github.com/muilab/notigpt/internal/logger"
	"github.com/muilab/notigpt/internal/notifications"
	"github.com/muilab/notigpt/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// App holds the long-lived services shared by the server and the CLI.
type App struct {
	Config    *config.Config
	Logger    *logger.Logger
	DB        *storage.Database
	Registry  *prometheus.Registry
	Drawer    *drawer.Service
	History   *digest.HistoryStore
	Pipeline  *digest.Pipeline
	Publisher *events.Publisher
	Tokens    *notifications.TokenStore
	Push      *notifications.Service
}

// New opens the database and builds every service from cfg.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	db, err := storage.InitDatabase(cfg.DatabaseDriver, cfg.DatabaseURL, storage.Options{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxIdleTime: time.Duration(cfg.DBConnMaxIdleTime) * time.Minute,
		ConnMaxLifetime: time.Duration(cfg.DBConnMaxLifetime) * time.Minute,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	a := &App{
		Config:   cfg,
		Logger:   log,
		DB:       db,
		Registry: prometheus.NewRegistry(),
	}
	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if err := a.build(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg := a.Config
	log := a.Logger

	a.Drawer = drawer.NewService(drawer.NewDBStore(a.DB, log), log)
	a.History = digest.NewHistoryStore(a.DB)
	a.Tokens = notifications.NewTokenStore(a.DB)

	prompts, err := digest.LoadPrompts(cfg.PromptsFile, cfg.PromptsLocale)
	if err != nil {
		return fmt.Errorf("failed to load prompts: %w", err)
	}

	measure, err := digest.MeasureFor(cfg.DigestChunkMeasure)
	if err != nil {
		return err
	}

	normalizer, err := digest.NewNormalizer(cfg.DigestScriptConverter)
	if err != nil {
		return err
	}

	a.Publisher, err = events.Connect(cfg.NatsURL, log)
	if err != nil {
		// Events are best effort; the pipeline runs without them.
		log.Warn("nats unavailable, digest events disabled", slog.String("error", err.Error()))
	}

	var sender notifications.Sender
	if cfg.PushNotificationsEnabled && cfg.FirebaseCredJSON != "" {
		client, err := notifications.NewMessagingClient(ctx, cfg.FirebaseProjectID, cfg.FirebaseCredJSON)
		if err != nil {
			return fmt.Errorf("failed to initialize firebase messaging: %w", err)
		}
		sender = client
	}
	a.Push = notifications.NewService(sender, a.Tokens, log, cfg.PushNotificationsEnabled)

	client := llm.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.LLMModel, log, llm.WithTimeout(cfg.LLMTimeout()))
	pipelineCfg := digest.Config{
		Units:        a.Drawer.Store(),
		Client:       client,
		Prompts:      prompts,
		Logger:       log,
		Workers:      cfg.DigestWorkers,
		MaxChunkSize: cfg.DigestMaxChunkSize,
		Measure:      measure,
		Normalizer:   normalizer,
		History:      a.History,
		Metrics:      digest.NewMetrics(a.Registry),
	}
	if a.Publisher != nil {
		pipelineCfg.Publisher = a.Publisher
	}
	if cfg.DigestMarkSeen {
		pipelineCfg.SeenMarker = a.Drawer
	}
	a.Pipeline = digest.NewPipeline(pipelineCfg)

	log.Info("digest pipeline ready",
		slog.String("model", client.Model()),
		slog.Int("workers", cfg.DigestWorkers),
		slog.Int("max_chunk_size", cfg.DigestMaxChunkSize),
		slog.String("chunk_measure", cfg.DigestChunkMeasure),
		slog.String("script_conversion", cfg.DigestScriptConverter),
		slog.Bool("events", a.Publisher != nil),
		slog.Bool("push", sender != nil))

	return nil
}

// Scheduler builds a scheduler with every configured schedule registered.
func (a *App) Scheduler() (*digest.Scheduler, error) {
	s := digest.NewScheduler(a.Pipeline, a.Push, a.Logger)
	for _, sc := range a.Config.Schedules {
		if err := s.Add(digest.Schedule{Spec: sc.Spec, Mode: digest.Mode(sc.Mode), Notify: sc.Notify}); err != nil {
			return nil, err
		}
	}
	if days := a.Config.DigestRetentionDays; days > 0 {
		if err := s.AddRetention("@daily", a.History, time.Duration(days)*24*time.Hour); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Close releases everything New opened.
func (a *App) Close() {
	if a.Pipeline != nil {
		a.Pipeline.Close()
	}
	if err := a.Publisher.Close(); err != nil {
		a.Logger.Warn("failed to close event publisher", slog.String("error", err.Error()))
	}
	if err := a.DB.Close(); err != nil {
		a.Logger.Warn("failed to close database", slog.String("error", err.Error()))
	}
}
