package enikki

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hirokts/enikki/internal/config"
	"github.com/hirokts/enikki/internal/logging"
	"github.com/hirokts/enikki/internal/runtime"
	boltAdapter "github.com/hirokts/enikki/pkg/adapters/bolt"
	"github.com/hirokts/enikki/pkg/adapters/discord"
	"github.com/hirokts/enikki/pkg/adapters/gemini"
	httpAdapter "github.com/hirokts/enikki/pkg/adapters/http"
	loamAdapter "github.com/hirokts/enikki/pkg/adapters/loam"
	mcpAdapter "github.com/hirokts/enikki/pkg/adapters/mcp"
	"github.com/hirokts/enikki/pkg/adapters/memory"
	redisAdapter "github.com/hirokts/enikki/pkg/adapters/redis"
	"github.com/hirokts/enikki/pkg/domain"
	"github.com/hirokts/enikki/pkg/observability"
	"github.com/hirokts/enikki/pkg/persistence/middleware"
	"github.com/hirokts/enikki/pkg/ports"
	"github.com/hirokts/enikki/pkg/runner"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Version is the release of this build. It is overridden at link time.
var Version = "0.1.0-dev"

// objectBackend is what the pipeline needs from an illustration store.
type objectBackend interface {
	ports.ObjectStore
	ports.ObjectReader
}

// App is a fully wired enikki service: stores, model client, pipeline
// engine and the background runner, ready to be exposed over HTTP or MCP.
type App struct {
	Config  *config.Config
	Store   ports.DiaryStore
	Objects objectBackend
	Engine  *runtime.Engine
	Runner  *runner.Runner
	Streams *httpAdapter.StreamManager
	Metrics *observability.Metrics

	registry *prometheus.Registry
	model    ports.ModelClient
	notifier ports.Notifier
	hooks    []domain.LifecycleHooks
	logger   *slog.Logger
	closers  []func() error
}

// Option defines a functional option for configuring the App.
type Option func(*App)

// WithLogger sets the structured logger shared by every component.
func WithLogger(logger *slog.Logger) Option {
	return func(a *App) {
		a.logger = logger
	}
}

// WithModelClient replaces the Gemini client.
func WithModelClient(m ports.ModelClient) Option {
	return func(a *App) {
		a.model = m
	}
}

// WithNotifier replaces the Discord notifier.
func WithNotifier(n ports.Notifier) Option {
	return func(a *App) {
		a.notifier = n
	}
}

// WithStore replaces the configured diary store.
func WithStore(s ports.DiaryStore) Option {
	return func(a *App) {
		a.Store = s
	}
}

// WithLifecycleHooks adds hooks next to the built-in logging, metrics and
// progress stream hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(a *App) {
		a.hooks = append(a.hooks, hooks)
	}
}

// New builds an App from cfg.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	a := &App{Config: cfg}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = logging.NewNop()
	}

	if err := a.openStore(); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.sealStore(); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.openObjects(); err != nil {
		a.Close()
		return nil, err
	}
	if a.model == nil {
		model, err := newModelClient(context.Background(), cfg.Model)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.model = model
	}
	if a.notifier == nil {
		a.notifier = discord.New(
			discord.WithFrontendURL(cfg.Notify.FrontendURL),
			discord.WithTimeout(cfg.Pipeline.NotifyTimeout),
		)
	}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.Metrics = observability.NewMetrics(a.registry)
	a.Streams = httpAdapter.NewStreamManager(a.logger)

	hooks := domain.ComposeHooks(append([]domain.LifecycleHooks{
		observability.LogHooks(a.logger),
		a.Metrics.Hooks(),
		a.Streams.Hooks(),
	}, a.hooks...)...)

	p := cfg.Pipeline
	engine, err := runtime.NewEngine(a.model, a.Objects, a.Store,
		runtime.WithLogger(a.logger),
		runtime.WithLifecycleHooks(hooks),
		runtime.WithRetryPolicy(p.RetryPolicy()),
		runtime.WithNotifier(a.notifier),
		runtime.WithTimeouts(runtime.Timeouts{
			Model:   p.ModelTimeout,
			Image:   p.ImageTimeout,
			Storage: p.StorageTimeout,
			Notify:  p.NotifyTimeout,
		}),
		runtime.WithFallbackQualityScore(p.FallbackQualityScore),
		runtime.WithPlaceholderURL(p.PlaceholderImageURL),
	)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Engine = engine

	a.Runner = runner.New(engine, a.Store,
		runner.WithLogger(a.logger),
		runner.WithLifecycleHooks(hooks),
		runner.WithMaxConcurrent(p.MaxConcurrentRuns),
		runner.WithQueueSize(p.QueueSize),
		runner.WithStorageTimeout(p.StorageTimeout),
	)

	return a, nil
}

func (a *App) openStore() error {
	if a.Store != nil {
		return nil
	}
	sc := a.Config.Store
	switch sc.Backend {
	case "redis":
		opts := []redisAdapter.Option{redisAdapter.WithTTL(sc.Redis.TTL)}
		if sc.Redis.Prefix != "" {
			opts = append(opts, redisAdapter.WithPrefix(sc.Redis.Prefix))
		}
		s := redisAdapter.New(sc.Redis.Addr, sc.Redis.Password, sc.Redis.DB, opts...)
		a.closers = append(a.closers, s.Close)
		ctx, cancel := context.WithTimeout(context.Background(), a.Config.Pipeline.StorageTimeout)
		defer cancel()
		if err := s.Ping(ctx); err != nil {
			return fmt.Errorf("redis store unavailable: %w", err)
		}
		a.Store = s
	case "loam":
		s, err := loamAdapter.New(sc.Loam.Dir)
		if err != nil {
			return fmt.Errorf("loam store: %w", err)
		}
		a.Store = s
	default:
		a.Store = memory.NewStore()
	}
	a.logger.Info("Diary store ready", "backend", sc.Backend)
	return nil
}

// sealStore wraps the diary store with body encryption when a key is set.
func (a *App) sealStore() error {
	active, fallback, err := a.Config.Store.Keys()
	if err != nil || active == nil {
		return err
	}
	mw, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
		ActiveKey:    active,
		FallbackKeys: fallback,
	})
	if err != nil {
		return err
	}
	a.Store = middleware.Chain(a.Store, mw)
	a.logger.Info("Diary encryption enabled", "fallback_keys", len(fallback))
	return nil
}

func (a *App) openObjects() error {
	base := strings.TrimRight(a.Config.Server.PublicBaseURL, "/") + "/assets"
	oc := a.Config.Objects
	switch oc.Backend {
	case "bolt":
		s, err := boltAdapter.Open(oc.Bolt.Path, base, boltAdapter.WithBucket(oc.Bolt.Bucket))
		if err != nil {
			return fmt.Errorf("bolt object store: %w", err)
		}
		a.closers = append(a.closers, s.Close)
		a.Objects = s
	default:
		a.Objects = memory.NewObjectStore(base)
	}
	return nil
}

func newModelClient(ctx context.Context, mc config.Model) (*gemini.Client, error) {
	opts := []gemini.Option{gemini.WithModels(mc.TextModel, mc.ImageModel)}
	if mc.Endpoint != "" {
		opts = append(opts, gemini.WithEndpoint(mc.Endpoint))
	}
	if mc.APIKey != "" {
		opts = append(opts, gemini.WithAPIKey(mc.APIKey))
	} else if mc.Project != "" {
		opts = append(opts, gemini.WithVertex(mc.Project, mc.Location))
	}
	return gemini.New(ctx, opts...)
}

// Handler returns the HTTP API.
func (a *App) Handler() (http.Handler, error) {
	return httpAdapter.NewHandler(a.Runner, a.Store,
		httpAdapter.WithLogger(a.logger),
		httpAdapter.WithObjects(a.Objects),
		httpAdapter.WithStreams(a.Streams),
		httpAdapter.WithMetricsHandler(promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})),
		httpAdapter.WithAPIKey(a.Config.Server.APIKey),
		httpAdapter.WithVersion(Version),
	)
}

// MCP returns the MCP server exposing the same runner.
func (a *App) MCP() *mcpAdapter.Server {
	return mcpAdapter.NewServer(a.Runner, a.Store, strings.TrimSpace(Version), mcpAdapter.WithLogger(a.logger))
}

// Close drains the runner and releases the backends.
func (a *App) Close() error {
	if a.Runner != nil {
		a.Runner.Close()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
