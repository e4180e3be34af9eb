package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/ecodoppler/tsa/internal/config"
	"github.com/ecodoppler/tsa/internal/domain/archive"
	"github.com/ecodoppler/tsa/internal/domain/exam"
	"github.com/ecodoppler/tsa/internal/domain/narrative"
	"github.com/ecodoppler/tsa/internal/domain/report"
	"github.com/ecodoppler/tsa/internal/platform/auth"
	"github.com/ecodoppler/tsa/internal/platform/db"
	"github.com/ecodoppler/tsa/internal/platform/inflight"
	"github.com/ecodoppler/tsa/internal/platform/middleware"
	"github.com/ecodoppler/tsa/internal/platform/websocket"
	"github.com/ecodoppler/tsa/migrations"
)

const maxBodySize = "64K"

// backends are the external dependencies of the server. Tests substitute
// in-memory versions.
type backends struct {
	archive   archive.Repository
	guard     inflight.Guard
	generator narrative.Generator
	health    *db.Health
	closers   []func()
}

func (b *backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

// openBackends connects the archive, the in-flight guard and the generator
// client described by cfg, registering a health check for each connection.
func openBackends(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*backends, error) {
	b := &backends{health: db.NewHealth()}

	repo, err := openArchive(ctx, cfg, b, logger)
	if err != nil {
		b.Close()
		return nil, err
	}
	b.archive = repo

	if cfg.RedisURL != "" {
		client, err := inflight.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.closers = append(b.closers, func() { client.Close() })
		b.health.AddCheck("redis", func(ctx context.Context) error { return client.Ping(ctx).Err() })
		// The key outlives the slowest generation call.
		b.guard = inflight.NewRedis(client, inflight.DefaultKeyPrefix, 2*cfg.GeneratorTimeout)
		logger.Info().Msg("in-flight guard: redis")
	} else {
		b.guard = inflight.NewMemory()
		logger.Info().Msg("in-flight guard: memory")
	}

	gen, err := newGenerator(cfg)
	if err != nil {
		b.Close()
		return nil, err
	}
	b.generator = gen
	return b, nil
}

func newGenerator(cfg *config.Config) (*narrative.Client, error) {
	return narrative.NewClient(narrative.ClientConfig{
		Provider: cfg.GeneratorProvider,
		URL:      cfg.GeneratorURL,
		Model:    cfg.GeneratorModel,
		APIKey:   cfg.GeneratorAPIKey,
		Timeout:  cfg.GeneratorTimeout,
	})
}

func openArchive(ctx context.Context, cfg *config.Config, b *backends, logger zerolog.Logger) (archive.Repository, error) {
	if db.IsPostgresURL(cfg.ArchiveURL) {
		pool, err := db.NewPool(ctx, db.PoolConfig{
			URL:      cfg.ArchiveURL,
			MaxConns: cfg.DBMaxConns,
			MinConns: cfg.DBMinConns,
		})
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, pool.Close)

		n, err := db.NewMigrator(pool, migrations.FS, "").Up(ctx)
		if err != nil {
			return nil, fmt.Errorf("migrate archive: %w", err)
		}
		b.health.AddPool(pool)
		logger.Info().Int("applied", n).Msg("archive: postgres")
		return archive.NewRepoPG(pool), nil
	}

	sqlDB, err := archive.OpenSQLite(ctx, cfg.ArchiveURL)
	if err != nil {
		return nil, err
	}
	b.closers = append(b.closers, func() { sqlDB.Close() })
	if err := archive.MigrateSQLite(ctx, sqlDB); err != nil {
		return nil, err
	}
	b.health.AddCheck("archive", sqliteCheck(sqlDB))
	logger.Info().Str("path", cfg.ArchiveURL).Msg("archive: sqlite")
	return archive.NewRepoSQL(sqlDB), nil
}

func sqliteCheck(sqlDB *sql.DB) db.Check {
	return func(ctx context.Context) error { return sqlDB.PingContext(ctx) }
}

// server is the assembled HTTP application.
type server struct {
	echo     *echo.Echo
	sessions *exam.Registry
	hub      *websocket.Hub
}

func newServer(cfg *config.Config, b *backends, logger zerolog.Logger) *server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	hub := websocket.NewHub(logger)
	sessions := exam.NewRegistry(cfg.SessionTTL, nil, logger)
	sessions.OnCreate(publishChanges(hub, logger))

	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete},
		AllowHeaders:     []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
		AllowCredentials: true,
	}))

	if cfg.ResolvedAuthMode() == config.AuthModeDevelopment {
		e.Use(auth.DevAuthMiddleware(auth.DefaultDevIdentity))
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			JWKSURL:    cfg.AuthJWKSURL,
			SigningKey: []byte(cfg.AuthSigningKey),
			Skipper:    auth.AuthSkipper,
		}))
	}
	e.Use(middleware.Audit(logger))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	e.GET("/health", b.health.Handler())

	api := e.Group("/api/v1",
		middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimitRPS,
			BurstSize:         cfg.RateLimitBurst,
		}),
		middleware.BodyLimit(maxBodySize))
	pages := e.Group("", middleware.BodyLimit(maxBodySize))

	exam.NewHandler(sessions, logger).RegisterRoutes(api, pages)
	report.NewHandler(sessions).RegisterRoutes(api, pages)

	gen := narrative.NewService(b.generator, b.guard, hub, cfg.GeneratorTimeout, logger)
	narrative.NewHandler(sessions, gen).RegisterRoutes(api)

	archive.NewHandler(archive.NewService(b.archive, logger), sessions).RegisterRoutes(api)

	websocket.NewHandler(hub, cfg.CORSOrigins, exam.Topic("")).RegisterRoutes(e)

	return &server{echo: e, sessions: sessions, hub: hub}
}

// publishChanges forwards every store change of a new session to the hub.
func publishChanges(hub *websocket.Hub, logger zerolog.Logger) func(*exam.Session) {
	return func(sess *exam.Session) {
		id := sess.ID
		sess.Store.Subscribe(func(ch exam.Change) {
			data, _ := json.Marshal(map[string]string{"field": ch.Field})
			err := hub.Publish(context.Background(), websocket.Event{
				Type:      exam.EventType(ch),
				Topic:     exam.Topic(id),
				SessionID: id,
				Version:   ch.Version,
				Data:      data,
			})
			if err != nil {
				logger.Warn().Err(err).Str("session_id", id).Msg("publish change")
			}
		})
	}
}

// run serves until ctx is cancelled, then shuts down gracefully.
func (s *server) run(ctx context.Context, addr string, logger zerolog.Logger) error {
	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go s.sessions.Run(sweepCtx, time.Minute)

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}
