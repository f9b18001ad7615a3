// Package bootstrap wires configuration into the full application graph.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/jonesrussell/catalog-classifier/internal/aiclient"
	"github.com/jonesrussell/catalog-classifier/internal/api"
	"github.com/jonesrussell/catalog-classifier/internal/cache"
	"github.com/jonesrussell/catalog-classifier/internal/classifier"
	"github.com/jonesrussell/catalog-classifier/internal/commands"
	"github.com/jonesrussell/catalog-classifier/internal/config"
	"github.com/jonesrussell/catalog-classifier/internal/history"
	"github.com/jonesrussell/catalog-classifier/internal/jobs"
	"github.com/jonesrussell/catalog-classifier/internal/logger"
	"github.com/jonesrussell/catalog-classifier/internal/processor"
	"github.com/jonesrussell/catalog-classifier/internal/rules"
	"github.com/jonesrussell/catalog-classifier/internal/shopify"
	"github.com/jonesrussell/catalog-classifier/internal/telemetry"
)

// App holds the wired application, ready to serve.
type App struct {
	Config    *config.Config
	Logger    logger.Logger
	Telemetry *telemetry.Provider
	Shop      *shopify.Client
	Rules     *rules.Store
	Processor *processor.Processor
	Queue     *jobs.Queue
	Server    *api.Server

	cache   *cache.Cache
	history *history.Repository
}

// New builds the application graph from configuration.
func New(cfg *config.Config) (*App, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := logger.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	tp := telemetry.NewProvider()

	shop := shopify.NewClient(cfg.Shop, log, tp)

	store := rules.NewStore(cfg.Classification.RuleFile, log)
	if loadErr := store.Load(); loadErr != nil {
		return nil, fmt.Errorf("failed to load rules: %w", loadErr)
	}

	ruleClassifier := classifier.NewRuleClassifier(store, cfg.Classification.DefaultCategory, log, tp)

	var ai *aiclient.Client
	if cfg.AI.APIKey != "" {
		ai = aiclient.New(cfg.AI, log)
	} else {
		log.Warn("No AI API key configured, fallback classification and natural-language commands are disabled")
	}

	// classifier.Cache and aiclient interfaces are non-nil even when their
	// concrete pointer is nil, so assign conditionally.
	var clfCache classifier.Cache
	if redisCache := cache.New(cfg.Cache, log); redisCache != nil {
		clfCache = redisCache
	}
	var fallback classifier.Fallback
	if ai != nil {
		fallback = ai
	}

	categorizer := classifier.NewCategorizer(
		ruleClassifier, fallback, clfCache,
		cfg.Classification.FallbackThreshold, log, tp,
	)

	var hist *history.Repository
	if cfg.Service.HistoryPath != "" {
		hist, err = history.Open(cfg.Service.HistoryPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open history store: %w", err)
		}
	}

	var recorder processor.HistoryRecorder
	if hist != nil {
		recorder = hist
	}
	proc := processor.New(shop, categorizer, recorder, cfg.Classification.Language, log, tp)

	queue := jobs.NewQueue(shop, proc, cfg.Service.MaxJobRecords, log, tp)

	var translator commands.Translator
	if ai != nil {
		translator = ai
	}
	interpreter := commands.New(proc, queue, store, translator, log)

	var lister api.HistoryLister
	if hist != nil {
		lister = hist
	}
	handler := api.NewHandler(proc, interpreter, queue, store, lister, cfg.Auth.WebhookSecret, log)
	server := api.NewServer(handler, cfg, tp, log)

	app := &App{
		Config:    cfg,
		Logger:    log,
		Telemetry: tp,
		Shop:      shop,
		Rules:     store,
		Processor: proc,
		Queue:     queue,
		Server:    server,
	}
	if clfCache != nil {
		app.cache = clfCache.(*cache.Cache)
	}
	app.history = hist
	return app, nil
}

// WatchRules starts the rule-file watcher when enabled. It returns once the
// watcher goroutine is running.
func (a *App) WatchRules(ctx context.Context) {
	if !a.Config.Classification.WatchRuleFile {
		return
	}
	go func() {
		if err := a.Rules.Watch(ctx); err != nil {
			a.Logger.Error("Rule file watcher stopped", logger.Error(err))
		}
	}()
}

// Close releases held resources.
func (a *App) Close() {
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.Logger.Warn("Failed to close cache", logger.Error(err))
		}
	}
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			a.Logger.Warn("Failed to close history store", logger.Error(err))
		}
	}
	_ = a.Logger.Sync()
}
