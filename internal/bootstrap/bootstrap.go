package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/sony/gobreaker/v2"

	"github.com/GoBeromsu/My-awesome-RA/internal/config"
	"github.com/GoBeromsu/My-awesome-RA/internal/core/ports"
	"github.com/GoBeromsu/My-awesome-RA/internal/core/usecase"
	"github.com/GoBeromsu/My-awesome-RA/internal/infrastructure/bibliography"
	"github.com/GoBeromsu/My-awesome-RA/internal/infrastructure/llm/ollama"
	"github.com/GoBeromsu/My-awesome-RA/internal/infrastructure/metadata"
	"github.com/GoBeromsu/My-awesome-RA/internal/infrastructure/remoteindex"
	"github.com/GoBeromsu/My-awesome-RA/internal/infrastructure/repository/bolt"
	"github.com/GoBeromsu/My-awesome-RA/internal/infrastructure/repository/memory"
	"github.com/GoBeromsu/My-awesome-RA/internal/infrastructure/repository/postgres"
	"github.com/GoBeromsu/My-awesome-RA/internal/infrastructure/resilience"
	"github.com/GoBeromsu/My-awesome-RA/internal/infrastructure/signalbus/local"
	natsbus "github.com/GoBeromsu/My-awesome-RA/internal/infrastructure/signalbus/nats"
)

// Metrics is the observability surface the app reports to.
type Metrics interface {
	ports.IndexingMetrics
	usecase.SessionObserver
	RecordBreakerTransition(operation, state string)
}

type App struct {
	Config config.Config
	Logger *slog.Logger

	Bus      ports.SignalBus
	Remote   *remoteindex.Client
	Sessions *usecase.SessionRegistry

	closeFn func()
}

type Option func(*options)

type options struct {
	metrics Metrics
}

func WithMetrics(m Metrics) Option {
	return func(o *options) { o.metrics = m }
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if logger == nil {
		logger = slog.Default()
	}

	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var indexingMetrics ports.IndexingMetrics
	execOpts := []resilience.Option{resilience.WithLogger(logger)}
	if o.metrics != nil {
		indexingMetrics = o.metrics
		execOpts = append(execOpts, resilience.WithStateObserver(func(operation string, _, to gobreaker.State) {
			o.metrics.RecordBreakerTransition(operation, to.String())
		}))
	}
	resCfg := resilienceConfig(cfg)

	remote := remoteindex.New(cfg.RemoteIndexURL,
		remoteindex.WithHTTPClient(&http.Client{Timeout: cfg.RemoteIndexTimeout}),
		remoteindex.WithExecutors(
			resilience.NewExecutor(resCfg, execOpts...),
			resilience.NewExecutor(resCfg.SingleAttempt(), execOpts...),
		),
	)

	bus, closeBus, err := NewSignalBus(cfg, logger)
	if err != nil {
		return nil, err
	}
	closers = append(closers, closeBus)

	cache, closeCache, err := newMetadataCache(ctx, cfg)
	if err != nil {
		closeAll()
		return nil, err
	}
	closers = append(closers, closeCache)

	var searcher ports.MetadataSearcher
	if cfg.MetadataEnabled {
		searcher = metadata.New(cfg.MetadataAPIURL,
			metadata.WithAPIKey(cfg.MetadataAPIKey),
			metadata.WithRate(cfg.MetadataRatePerSec),
			metadata.WithExecutor(resilience.NewExecutor(resCfg, execOpts...)),
		)
	}
	resolver := usecase.NewMetadataResolver(searcher, cache, indexingMetrics, logger, cfg.MetadataConcurrency)

	var generator ports.AnswerGenerator
	if cfg.AskEnabled {
		client := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel,
			ollama.WithExecutor(resilience.NewExecutor(resCfg, execOpts...)),
		)
		generator = ollama.NewGenerator(client)
	}

	sessionCfg := usecase.SessionConfig{
		Indexing: usecase.IndexingConfig{
			PollInterval:    cfg.PollInterval,
			BackoffFactor:   cfg.PollBackoff,
			MaxPollFailures: cfg.MaxPollFailures,
			MaxUploadBytes:  cfg.MaxUploadBytes,
		},
		Trigger: usecase.TriggerConfig{
			MinChars: cfg.TriggerMinChars,
			MaxChars: cfg.TriggerMaxChars,
			Debounce: cfg.TriggerDebounce,
		},
		DefaultTopK: cfg.DefaultTopK,
	}

	// one project directory per session, named by the session id
	factory := func(_ context.Context, id string) (*usecase.Session, error) {
		reader := bibliography.NewReader(filepath.Join(cfg.ProjectsRoot, id),
			bibliography.WithPDFInspection(cfg.InspectPDFs),
			bibliography.WithLogger(logger),
		)
		return usecase.NewSession(id, usecase.SessionDeps{
			Remote:       remote,
			Searcher:     remote,
			Bibliography: reader,
			Metadata:     resolver,
			Generator:    generator,
			Bus:          bus,
			Metrics:      indexingMetrics,
			Logger:       logger,
		}, sessionCfg)
	}

	var registryOpts []usecase.RegistryOption
	if o.metrics != nil {
		registryOpts = append(registryOpts, usecase.WithSessionObserver(o.metrics))
	}
	sessions := usecase.NewSessionRegistry(factory, registryOpts...)

	logger.Info("app_initialized",
		"remote_index_url", cfg.RemoteIndexURL,
		"signal_bus", cfg.SignalBus,
		"metadata_cache", cfg.MetadataCache,
		"metadata_enabled", cfg.MetadataEnabled,
		"ask_enabled", cfg.AskEnabled,
	)

	return &App{
		Config:   cfg,
		Logger:   logger,
		Bus:      bus,
		Remote:   remote,
		Sessions: sessions,
		closeFn: func() {
			sessions.Close()
			closeAll()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

// NewSignalBus builds the configured signal bus and the func that releases it.
func NewSignalBus(cfg config.Config, logger *slog.Logger) (ports.SignalBus, func(), error) {
	switch strings.ToLower(strings.TrimSpace(cfg.SignalBus)) {
	case "", "local":
		return local.New(), func() {}, nil
	case "nats":
		bus, err := natsbus.New(cfg.NATSURL, natsbus.Options{
			SubjectPrefix:      cfg.NATSSubjectPrefix,
			ResilienceExecutor: resilience.NewExecutor(resilienceConfig(cfg), resilience.WithLogger(logger)),
			Logger:             logger,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("init signal bus: %w", err)
		}
		return bus, bus.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown signal bus %q", cfg.SignalBus)
	}
}

func newMetadataCache(ctx context.Context, cfg config.Config) (ports.MetadataCache, func(), error) {
	switch strings.ToLower(strings.TrimSpace(cfg.MetadataCache)) {
	case "", "memory":
		return memory.NewMetadataCache(), func() {}, nil
	case "none":
		return nil, func() {}, nil
	case "postgres":
		db, err := postgres.OpenDB(cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		repo := postgres.NewMetadataRepository(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("ensure schema: %w", err)
		}
		return repo, func() { _ = db.Close() }, nil
	case "bolt":
		store, err := bolt.Open(cfg.BoltPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open metadata store: %w", err)
		}
		return store, func() { _ = store.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown metadata cache %q", cfg.MetadataCache)
	}
}

// resilienceConfig overlays the configured knobs on the defaults; unset
// values keep the default.
func resilienceConfig(cfg config.Config) resilience.Config {
	out := resilience.DefaultConfig()
	if cfg.ResilienceRetryMaxAttempts > 0 {
		out.RetryMaxAttempts = cfg.ResilienceRetryMaxAttempts
	}
	if cfg.ResilienceRetryInitialBackoff > 0 {
		out.RetryInitialBackoff = cfg.ResilienceRetryInitialBackoff
	}
	if cfg.ResilienceRetryMaxBackoff > 0 {
		out.RetryMaxBackoff = cfg.ResilienceRetryMaxBackoff
	}
	if cfg.ResilienceBreakerOpenTimeout > 0 {
		out.BreakerOpenTimeout = cfg.ResilienceBreakerOpenTimeout
	}
	out.BreakerEnabled = cfg.ResilienceBreakerEnabled
	return out
}
