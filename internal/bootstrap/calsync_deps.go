// Package bootstrap wires configuration, adapters, and services.
package bootstrap

import (
	"time"

	"calsync_server/adapter/out/messaging"
	"calsync_server/adapter/out/persistence"
	"calsync_server/adapter/out/provider"
	"calsync_server/config"
	"calsync_server/core/port/in"
	"calsync_server/core/port/out"
	"calsync_server/core/service/auth"
	"calsync_server/core/service/calendar"
	"calsync_server/infra/database"
	"calsync_server/pkg/cache"
	"calsync_server/pkg/crypto"
	"calsync_server/pkg/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
)

type Dependencies struct {
	Config *config.Config
	DB     *pgxpool.Pool
	SQLDB  *sqlx.DB
	Redis  *redis.Client

	// Repositories
	IntegrationRepo out.IntegrationRepository
	EventRepo       out.EventRepository

	// Providers
	CalendarProvider *provider.GoogleCalendarAdapter

	// Messaging
	MessageProducer out.MessageProducer

	// Cache / state
	ResponseCache *cache.RedisCache
	StateStore    out.StateStore

	// Services
	TokenService       in.TokenService
	IntegrationService in.IntegrationService
	EventService       in.EventService
}

func NewDependencies(cfg *config.Config) (*Dependencies, func(), error) {
	deps := &Dependencies{Config: cfg}
	var cleanups []func()

	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	// Database (pgxpool for health checks and migrations)
	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	deps.DB = db
	cleanups = append(cleanups, func() { db.Close() })

	// Database (sqlx for the adapter layer)
	sqlDB, err := database.NewSQLX(cfg.DatabaseURL)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	deps.SQLDB = sqlDB
	cleanups = append(cleanups, func() { sqlDB.Close() })

	// Redis
	redisClient, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	deps.Redis = redisClient
	cleanups = append(cleanups, func() { redisClient.Close() })

	deps.ResponseCache = cache.NewRedisCache(redisClient)
	deps.StateStore = persistence.NewRedisStateStore(redisClient)
	deps.MessageProducer = messaging.NewRedisProducer(redisClient)

	// Token encryption at rest
	var encryptor *crypto.Encryptor
	if cfg.EncryptionKey != "" {
		encryptor, err = crypto.NewEncryptor([]byte(cfg.EncryptionKey))
		if err != nil {
			cleanup()
			return nil, nil, err
		}
	}

	// Repositories
	deps.IntegrationRepo = persistence.NewIntegrationAdapter(sqlDB, encryptor)
	deps.EventRepo = persistence.NewEventAdapter(sqlDB)

	// Google Calendar provider
	deps.CalendarProvider = provider.NewGoogleCalendarAdapter(&provider.GoogleCalendarConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
	})

	// Services
	deps.TokenService = auth.NewTokenService(deps.IntegrationRepo, deps.CalendarProvider)

	deps.IntegrationService = auth.NewIntegrationService(
		deps.IntegrationRepo,
		deps.EventRepo,
		deps.StateStore,
		deps.MessageProducer,
		auth.IntegrationServiceConfig{
			GoogleClientID:     cfg.GoogleClientID,
			GoogleClientSecret: cfg.GoogleClientSecret,
			GoogleRedirectURL:  cfg.GoogleRedirectURL,
			StateTTL:           cfg.OAuthStateTTL,
		},
	)

	deps.EventService = calendar.NewEventService(
		deps.TokenService,
		deps.CalendarProvider,
		deps.EventRepo,
		deps.IntegrationRepo,
		deps.ResponseCache,
		calendar.EventServiceConfig{
			MaxResults: cfg.SyncMaxResults,
			CacheTTL:   time.Duration(cfg.CacheEventTTLMin) * time.Minute,
		},
	)

	logger.Info("dependencies initialized")
	return deps, cleanup, nil
}
