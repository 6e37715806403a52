package bootstrap

import (
	"context"
	"fmt"
	"os"

	"github.com/cassiomorais/cashdesk/internal/controller"
	"github.com/cassiomorais/cashdesk/internal/domain/draft"
	"github.com/cassiomorais/cashdesk/internal/identity"
	"github.com/cassiomorais/cashdesk/internal/infrastructure/adminapi"
	"github.com/cassiomorais/cashdesk/internal/infrastructure/cache"
	"github.com/cassiomorais/cashdesk/internal/infrastructure/config"
	"github.com/cassiomorais/cashdesk/internal/infrastructure/observability"
	infraRedis "github.com/cassiomorais/cashdesk/internal/infrastructure/redis"
	"github.com/cassiomorais/cashdesk/internal/repository/memory"
	"github.com/cassiomorais/cashdesk/internal/repository/postgres"
	"github.com/cassiomorais/cashdesk/internal/service"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// App holds the process-wide dependencies. Pool is set only for the
// postgres driver; Redis only when the store or the cache uses it.
type App struct {
	Config   *config.Config
	Logger   zerolog.Logger
	Metrics  *observability.Metrics
	Registry *prometheus.Registry
	Pool     *pgxpool.Pool
	Redis    *redis.Client
	Drafts   draft.Store
	Cache    cache.Cache
	API      *adminapi.Client

	tracer *sdktrace.TracerProvider
}

// Services are the wizard services built on an App.
type Services struct {
	Settings  *service.SettingsService
	Verifier  *service.VerificationService
	Drafts    *service.DraftService
	Submitter *service.SubmitService
	Poller    *service.StatusPoller
}

func New(ctx context.Context, serviceName string, metricsNamespace string) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := observability.InitLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.Info().Str("service", serviceName).Str("storage", cfg.Storage.Driver).Msg("Starting")

	app := &App{Config: cfg, Logger: logger}

	if cfg.Observability.EnableTracing {
		tp, err := observability.InitTracer(serviceName, cfg.Observability.JaegerEndpoint)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
		} else {
			app.tracer = tp
			logger.Info().Msg("Tracing enabled")
		}
	}

	app.Registry = prometheus.NewRegistry()
	app.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	app.Metrics = observability.NewMetrics(metricsNamespace, app.Registry)

	if cfg.Storage.Driver == config.StorageRedis || cfg.Cache.UseRedis {
		app.Redis, err = infraRedis.NewClient(ctx, &cfg.Redis)
		if err != nil {
			app.Close(ctx)
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		logger.Info().Msg("Connected to Redis")
	}

	switch cfg.Storage.Driver {
	case config.StoragePostgres:
		app.Pool, err = postgres.NewPool(ctx, &cfg.Database, serviceName+"-"+cfg.InstanceID)
		if err != nil {
			app.Close(ctx)
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		app.Drafts = postgres.NewDraftRepository(app.Pool, cfg.Storage.DraftTTL)
		logger.Info().Msg("Connected to PostgreSQL")
	case config.StorageRedis:
		app.Drafts = infraRedis.NewDraftStore(app.Redis, cfg.Storage.DraftTTL)
	default:
		logger.Warn().Msg("Using the in-memory draft store; drafts are lost on restart")
		app.Drafts = memory.NewDraftStore()
	}

	if cfg.Cache.UseRedis {
		app.Cache = infraRedis.NewCache(app.Redis)
	} else {
		app.Cache = cache.NewMemory()
	}

	app.API, err = adminapi.NewClient(cfg.Upstream, app.Metrics)
	if err != nil {
		app.Close(ctx)
		return nil, fmt.Errorf("admin api client: %w", err)
	}

	return app, nil
}

// Services wires the wizard services. Without Redis the submission lock is
// process-local and no events are published.
func (a *App) Services() *Services {
	cfg := a.Config

	settings := service.NewSettingsService(a.API, a.Cache, cfg.Wizard, cfg.Cache, a.Metrics)
	verifier := service.NewVerificationService(a.API, a.Drafts, cfg.Wizard.PlayerCheckBookmakers, cfg.Verification.Debounce, a.Metrics)

	var submitOpts []service.SubmitOption
	var events service.EventPublisher
	if a.Redis != nil {
		publisher := infraRedis.NewEventPublisher(a.Redis, cfg.Redis.EventStream, cfg.Redis.EventStreamMaxLen)
		events = publisher
		submitOpts = append(submitOpts,
			service.WithLocker(infraRedis.NewLocker(a.Redis, cfg.Submit.LockTTL)),
			service.WithEvents(publisher),
		)
	}

	return &Services{
		Settings:  settings,
		Verifier:  verifier,
		Drafts:    service.NewDraftService(a.Drafts, settings, verifier, a.Metrics),
		Submitter: service.NewSubmitService(a.API, a.Drafts, settings, cfg.Submit, cfg.Wizard, cfg.Deposit, a.Metrics, submitOpts...),
		Poller:    service.NewStatusPoller(a.API, a.Drafts, cfg.Poller, events, a.Metrics),
	}
}

// Identity returns the provider chain: Telegram first, then the persisted
// device identity, which also issues new ones.
func (a *App) Identity() (identity.Chain, *identity.PersistedProvider) {
	tg := a.Config.Telegram
	id := a.Config.Identity
	persisted := identity.NewPersistedProvider(id.CookieName, id.SessionSecret, id.SessionTTL, id.TrustDeviceHeader)
	chain := identity.Chain{
		identity.NewTelegramProvider(tg.BotToken, tg.ValidateInitData, tg.InitDataMaxAge),
		persisted,
	}
	return chain, persisted
}

// Pingers lists the backing stores the readiness probe checks.
func (a *App) Pingers() map[string]controller.Pinger {
	deps := make(map[string]controller.Pinger)
	if a.Pool != nil {
		deps["postgres"] = controller.PingFunc(a.Pool.Ping)
	}
	if a.Redis != nil {
		client := a.Redis
		deps["redis"] = controller.PingFunc(func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
	}
	return deps
}

// Close flushes traces and closes the connections that were opened.
func (a *App) Close(ctx context.Context) {
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			a.Logger.Warn().Err(err).Msg("Tracer shutdown failed")
		}
	}
	if mem, ok := a.Cache.(*cache.Memory); ok {
		mem.Stop()
	}
	if a.Redis != nil {
		a.Redis.Close()
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
}
