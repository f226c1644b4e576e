package bootstrap

import (
	"strings"

	httpadapter "calsync_server/adapter/in/http"
	"calsync_server/config"
	"calsync_server/infra/middleware"
	"calsync_server/pkg/logger"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

func NewAPI(cfg *config.Config) (*fiber.App, func(), error) {
	logLevel := logger.LevelInfo
	if cfg.IsDevelopment() {
		logLevel = logger.LevelDebug
	}
	logger.Init(logger.Config{
		Level:   logLevel,
		Service: "calsync-api",
	})

	deps, cleanup, err := NewDependencies(cfg)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize dependencies")
		return nil, nil, err
	}

	app := fiber.New(fiber.Config{
		ErrorHandler:          middleware.ErrorHandler(),
		DisableStartupMessage: cfg.IsProduction(),
		ReadBufferSize:        16384,
		WriteBufferSize:       16384,

		// go-json is a drop-in replacement, noticeably faster than encoding/json
		JSONEncoder: json.Marshal,
		JSONDecoder: json.Unmarshal,

		BodyLimit: 1 * 1024 * 1024,
	})

	// Global middleware stack (order matters)
	app.Use(middleware.Recover())
	app.Use(middleware.RequestID())
	app.Use(middleware.RequestLogger())

	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	// CORS: credentials require explicit origins
	allowOrigins := strings.Join(cfg.AllowedOrigins, ",")
	allowCredentials := true
	if allowOrigins == "" || allowOrigins == "*" {
		if cfg.IsProduction() {
			allowOrigins = ""
			allowCredentials = false
		} else {
			allowOrigins = "http://localhost:3000,http://localhost:5173"
		}
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowOrigins,
		AllowMethods:     "GET,POST,PUT,DELETE,PATCH,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization,X-Request-ID",
		ExposeHeaders:    "X-Request-ID",
		AllowCredentials: allowCredentials,
		MaxAge:           86400,
	}))

	// Health check (no auth required)
	healthHandler := httpadapter.NewHealthHandler(deps.DB, deps.Redis)
	healthHandler.Register(app)

	frontendURL := ""
	if len(cfg.AllowedOrigins) > 0 {
		frontendURL = cfg.AllowedOrigins[0]
	}
	integrationHandler := httpadapter.NewIntegrationHandler(deps.IntegrationService, frontendURL)
	eventHandler := httpadapter.NewEventHandler(deps.EventService, cfg.SyncWindowPastDays, cfg.SyncWindowFutureDays)

	// OAuth callback (no auth required, Google redirects here)
	public := app.Group("/api/v1")
	integrationHandler.RegisterPublic(public)

	// Authenticated API
	api := app.Group("/api/v1", middleware.JWTAuth(cfg.JWTSecret))
	integrationHandler.Register(api)
	eventHandler.Register(api)

	return app, cleanup, nil
}
