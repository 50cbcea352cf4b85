package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"

	"lattice-backend/internal/audit"
	"lattice-backend/internal/auth"
	"lattice-backend/internal/config"
	"lattice-backend/internal/engine"
	"lattice-backend/internal/model"
	"lattice-backend/internal/schema"
	"lattice-backend/internal/store"
	"lattice-backend/internal/translate"
)

func main() {
	ctx := context.Background()

	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Logger
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
	logger.Info().Int("port", cfg.Server.Port).Str("driver", cfg.Database.Driver).Msg("config loaded")

	// 3. Connect to database
	db, err := store.New(ctx, cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()
	logger.Info().Msg("database connected")

	// 4. Bootstrap system tables
	if err := db.Bootstrap(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to bootstrap system tables")
	}

	// 5. Schema service
	loader := schema.NewLoader(cfg.Schema.Paths)
	schemas := schema.NewService(loader, translate.Noop{}, logger)
	schemas.RegisterSoftDelete()
	if cfg.Schema.Watch {
		if err := schemas.Watch(); err != nil {
			logger.Warn().Err(err).Msg("schema watcher unavailable, caching without invalidation")
		} else {
			defer schemas.StopWatch()
		}
	}

	// 6. Model factory
	models := model.NewFactory(schemas, db)

	// 7. Audit recorder
	var recorder audit.Recorder = audit.Nop{}
	if cfg.Audit.Enabled {
		buffer := audit.NewBuffer(db, logger, cfg.Audit.BufferSize,
			time.Duration(cfg.Audit.FlushIntervalMs)*time.Millisecond)
		defer buffer.Close()
		recorder = buffer
	}

	// 8. Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: engine.ErrorHandler,
	})
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))
	app.Use(requestLogger(logger))

	// 9. Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// 10. Dynamic entity routes (auth required)
	authz := auth.RoleGrants(cfg.Grants)
	handler := engine.NewHandler(schemas, models, db, authz, recorder, logger)
	engine.RegisterRoutes(app, handler, auth.Middleware(cfg.JWTSecret))

	// 11. Start server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	logger.Info().Str("addr", addr).Msg("starting server")
	if err := app.Listen(addr); err != nil {
		logger.Fatal().Err(err).Msg("server stopped")
	}
}

func requestLogger(logger zerolog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		logger.Info().
			Str("method", c.Method()).
			Str("path", c.Path()).
			Int("status", c.Response().StatusCode()).
			Dur("latency", time.Since(start)).
			Msg("request")
		return err
	}
}
