package httpapi

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"ollama_gateway/internal/auth"
	"ollama_gateway/internal/backend"
	"ollama_gateway/internal/config"
	"ollama_gateway/internal/metrics"
	"ollama_gateway/internal/middleware"
	"ollama_gateway/internal/models"
	"ollama_gateway/internal/queue"
	"ollama_gateway/internal/quota"
	"ollama_gateway/internal/ratelimit"
	"ollama_gateway/internal/storage"
	"ollama_gateway/internal/usage"
	"ollama_gateway/internal/utils"
)

// CredentialAdmin manages credentials for the admin surface.
// *storage.CredentialRepository satisfies it, as does auth.MemoryStore.
type CredentialAdmin interface {
	Create(ctx context.Context, cred *models.Credential) error
	List(ctx context.Context) ([]*models.Credential, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Credential, error)
	Deactivate(ctx context.Context, id uuid.UUID) error
}

// UsageReader reads recent usage records for the usage endpoint.
type UsageReader interface {
	Recent(ctx context.Context, apiKeyID uuid.UUID, limit int) ([]*models.UsageRecord, error)
}

// UsageRecorder schedules a usage record for background processing.
type UsageRecorder interface {
	Record(record *models.UsageRecord)
}

// Dependencies aggregates all services the HTTP layer needs.
type Dependencies struct {
	Credentials auth.CredentialStore
	Admin       CredentialAdmin
	Backend     *backend.Client
	RateLimit   ratelimit.Limiter
	Ledger      quota.Ledger
	Recorder    UsageRecorder
	Usage       UsageReader
	Metrics     metrics.Metrics
	Logger      *utils.Logger

	// DefaultModel fills in requests that omit the model field.
	DefaultModel string

	// Health probes, nil checks are skipped.
	DB            *storage.DB
	UsageWorker   *usage.Recorder
	backendsAlive func(ctx context.Context) error
}

// NewRouter creates an HTTP router with all dependencies wired up.
func NewRouter(cfg *config.Config) (*http.ServeMux, *Dependencies, error) {
	db, err := storage.NewDB(storage.DBConfig{
		DSN:                 cfg.Database.URL,
		MaxOpenConns:        cfg.Database.MaxOpenConns,
		MaxIdleConns:        cfg.Database.MaxIdleConns,
		ConnMaxLifetime:     cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime:     cfg.Database.ConnMaxIdleTime,
		CredentialCacheSize: cfg.Cache.CredentialCacheSize,
		CredentialCacheTTL:  cfg.Cache.CredentialCacheTTL,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	credentialRepo := storage.NewCredentialRepository(db)
	usageRepo := storage.NewUsageRepository(db)
	ledger := quota.NewDatabaseLedger(credentialRepo)

	backendClient := backend.NewClient(cfg.Backend.BaseURL, cfg.Backend.Timeout, cfg.Backend.PullTimeout)

	// Usage queue: Redis when configured, in-process channel otherwise
	usageQueueCfg := queue.DefaultConfig("usage")
	usageQueueCfg.BatchSize = cfg.UsageQueue.BatchSize
	usageQueueCfg.BatchTimeout = cfg.UsageQueue.BatchTimeout
	usageQueueCfg.MaxRetries = cfg.UsageQueue.MaxRetries
	usageQueueCfg.RetryBackoff = cfg.UsageQueue.RetryBackoff
	usageQueueCfg.UseRedis = cfg.UsageQueue.UseRedis && cfg.Redis.Address != ""

	var usageQueue queue.Queue
	var usageDLQ queue.DeadLetterQueue
	if usageQueueCfg.UseRedis {
		usageQueueCfg.RedisAddr = cfg.Redis.Address
		usageQueueCfg.RedisPassword = cfg.Redis.Password
		usageQueueCfg.RedisDB = cfg.Redis.DB
		usageQueue, err = queue.NewRedisQueue(usageQueueCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create usage queue: %w", err)
		}
		usageDLQ, err = queue.NewRedisDeadLetterQueue(usageQueueCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create usage DLQ: %w", err)
		}
	} else {
		usageQueue = queue.NewMemoryQueue(usageQueueCfg)
		usageDLQ = queue.NewMemoryDeadLetterQueue()
	}

	recorder := usage.NewRecorder(usageQueue, usageDLQ, ledger, usageRepo, usageQueueCfg)
	recorder.Start(context.Background())

	deps := &Dependencies{
		Credentials:   auth.NewDatabaseStore(credentialRepo),
		Admin:         credentialRepo,
		Backend:       backendClient,
		RateLimit:     ratelimit.NewSlidingWindow(),
		Ledger:        ledger,
		Recorder:      recorder,
		Usage:         usageRepo,
		Metrics:       metrics.NewPrometheusMetrics(),
		Logger:        utils.NewLogger("httpapi"),
		DefaultModel:  cfg.Backend.DefaultModel,
		DB:            db,
		UsageWorker:   recorder,
		backendsAlive: backendClient.Health,
	}

	mux := http.NewServeMux()
	registerRoutes(mux, deps, cfg)

	return mux, deps, nil
}

// Close releases resources held by the dependencies.
func (d *Dependencies) Close() error {
	if d.UsageWorker != nil {
		_ = d.UsageWorker.Stop()
	}
	if d.DB != nil {
		return d.DB.Close()
	}
	return nil
}

func registerRoutes(mux *http.ServeMux, deps *Dependencies, cfg *config.Config) {
	apiKey := middleware.APIKeyMiddleware(deps.Credentials)
	admin := middleware.AdminMiddleware(cfg.AdminSecret, cfg.JWTSecret)

	// Inference endpoints, API key protected
	mux.Handle("/v1/chat/completions", apiKey(http.HandlerFunc(deps.handleChatCompletions)))
	mux.Handle("/v1/generate", apiKey(http.HandlerFunc(deps.handleGenerate)))
	mux.Handle("/v1/models", apiKey(http.HandlerFunc(deps.handleModels)))
	mux.Handle("/v1/models/pull", apiKey(http.HandlerFunc(deps.handleModelPull)))
	mux.Handle("/v1/usage", apiKey(http.HandlerFunc(deps.handleUsage)))

	// Admin endpoints
	mux.HandleFunc("/admin/auth/token", deps.handleAdminToken(cfg))
	mux.Handle("/admin/api-keys", admin(http.HandlerFunc(deps.handleAdminKeys(cfg))))
	mux.Handle("/admin/api-keys/", admin(http.HandlerFunc(deps.handleAdminKeyByID)))

	// Public endpoints
	mux.HandleFunc("/health", deps.handleHealth)
	mux.Handle("/metrics", deps.Metrics.HTTPHandler())
}
