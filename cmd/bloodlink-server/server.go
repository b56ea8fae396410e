package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/bloodlink/bloodlink/internal/config"
	"github.com/bloodlink/bloodlink/internal/domain/analytics"
	"github.com/bloodlink/bloodlink/internal/domain/bloodunit"
	"github.com/bloodlink/bloodlink/internal/domain/donor"
	"github.com/bloodlink/bloodlink/internal/domain/hospital"
	"github.com/bloodlink/bloodlink/internal/domain/patient"
	"github.com/bloodlink/bloodlink/internal/domain/staff"
	"github.com/bloodlink/bloodlink/internal/domain/user"
	"github.com/bloodlink/bloodlink/internal/platform/auth"
	"github.com/bloodlink/bloodlink/internal/platform/db"
	"github.com/bloodlink/bloodlink/internal/platform/events"
	"github.com/bloodlink/bloodlink/internal/platform/middleware"
	"github.com/bloodlink/bloodlink/internal/platform/scheduling"
	"github.com/bloodlink/bloodlink/internal/platform/telemetry"
)

const sweepJobName = "expiry-sweep"

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Env)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	tel := telemetry.NewProvider(true)

	revoked, closeRevoked := newRevocationStore(ctx, cfg, logger)
	defer closeRevoked()

	publisher := newPublisher(cfg, logger)
	defer publisher.Close()

	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTExpiresIn)
	e := newEcho(cfg, logger, tokens, revoked, tel)
	svcs := newServices(cfg, pool, logger, tokens, revoked, publisher, tel)
	registerRoutes(e, pool, svcs, tel)

	if created, err := svcs.users.SeedDefaultAdmin(ctx, cfg.DefaultAdminPassword); err != nil {
		logger.Error().Err(err).Msg("default admin seeding failed")
	} else if created {
		logger.Warn().Str("username", user.DefaultAdminUsername).Msg("created default admin; change its password")
	}

	sched := scheduling.New(logger, 5*time.Minute)
	if cfg.SweepEnabled() {
		if err := sched.Add(sweepJobName, cfg.ExpirySweepSchedule, sweepJob(svcs.units, tel, logger)); err != nil {
			logger.Fatal().Err(err).Msg("failed to schedule expiry sweep")
		}
		sched.Start()
		// catch up on anything that expired while the server was down
		if err := sched.RunNow(sweepJobName); err != nil {
			logger.Warn().Err(err).Msg("initial expiry sweep not started")
		}
		if next, ok := sched.Next(sweepJobName); ok {
			logger.Info().Time("next_run", next).Msg("expiry sweep scheduled")
		}
	}

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := sched.Stop(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("scheduler did not stop cleanly")
	}
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

// newRevocationStore uses Redis when REDIS_URL is set and falls back to an
// in-process store otherwise.
func newRevocationStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (auth.RevocationStore, func()) {
	if cfg.RedisURL != "" {
		store, err := auth.NewRedisRevocationStore(ctx, cfg.RedisURL)
		if err == nil {
			logger.Info().Msg("token revocation backed by redis")
			return store, func() { _ = store.Close() }
		}
		logger.Warn().Err(err).Msg("redis unavailable; using in-memory token revocation")
	}
	store := auth.NewMemoryRevocationStore(time.Minute)
	return store, store.Close
}

func newPublisher(cfg *config.Config, logger zerolog.Logger) events.Publisher {
	if len(cfg.KafkaBrokers) > 0 {
		logger.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaTopic).Msg("publishing blood unit events to kafka")
		return events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
	}
	return events.NewLogPublisher(logger)
}

func rateLimitConfig(cfg *config.Config) middleware.RateLimitConfig {
	rl := middleware.DefaultRateLimitConfig()
	if cfg.RateLimitRPS > 0 {
		rl.RequestsPerSecond = cfg.RateLimitRPS
	}
	if cfg.RateLimitBurst > 0 {
		rl.BurstSize = cfg.RateLimitBurst
	}
	return rl
}

func newEcho(cfg *config.Config, logger zerolog.Logger, tokens *auth.TokenManager, revoked auth.RevocationStore, tel *telemetry.Provider) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.ErrorHandler(logger)

	e.Use(middleware.RequestID())
	e.Use(tel.MetricsMiddleware())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	if cfg.RequestTimeout > 0 {
		e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	}
	e.Use(middleware.RateLimit(rateLimitConfig(cfg)))
	e.Use(auth.JWTMiddleware(tokens, revoked, logger, auth.AuthSkipper))
	e.Use(middleware.Audit(logger))
	return e
}

type services struct {
	units     *bloodunit.Service
	donors    *donor.Service
	patients  *patient.Service
	hospitals *hospital.Service
	staff     *staff.Service
	users     *user.Service
	analytics *analytics.Service
}

func newServices(cfg *config.Config, pool *pgxpool.Pool, logger zerolog.Logger, tokens *auth.TokenManager, revoked auth.RevocationStore, publisher events.Publisher, tel *telemetry.Provider) *services {
	tx := db.NewTxRunner(pool)
	seq := db.NewSequencer(pool)

	units := unitService(cfg, pool, logger)
	units.SetPublisher(publisher)
	units.SetMetrics(tel)

	donors := donor.NewService(donor.NewRepoPG(pool), tx, logger)

	return &services{
		units:     units,
		donors:    donors,
		patients:  patient.NewService(patient.NewRepoPG(pool), tx, seq, logger),
		hospitals: hospital.NewService(hospital.NewRepoPG(pool), tx, logger),
		staff:     staff.NewService(staff.NewRepoPG(pool), tx, seq, logger),
		users:     user.NewService(user.NewRepoPG(pool), tokens, revoked, logger),
		analytics: analytics.NewService(analytics.NewRepoPG(pool), units, donors, cfg.NearExpiryDays, logger),
	}
}

func registerRoutes(e *echo.Echo, pool *pgxpool.Pool, svcs *services, tel *telemetry.Provider) {
	poolStats := func() *db.PoolStats {
		s := db.GetPoolStats(pool)
		tel.SetPoolStats(s.TotalConns, s.IdleConns, s.AcquiredConns)
		return s
	}
	metrics := tel.Handler()
	e.GET("/metrics", func(c echo.Context) error {
		poolStats()
		return metrics(c)
	})
	e.GET("/health/db", db.HealthHandler(pool, poolStats))

	api := e.Group("/api")
	user.NewHandler(svcs.users).RegisterRoutes(api)
	analytics.NewHandler(svcs.analytics).RegisterRoutes(api)
	donor.NewHandler(svcs.donors).RegisterRoutes(api)
	patient.NewHandler(svcs.patients).RegisterRoutes(api)
	hospital.NewHandler(svcs.hospitals).RegisterRoutes(api)
	staff.NewHandler(svcs.staff).RegisterRoutes(api)
	bloodunit.NewHandler(svcs.units).RegisterRoutes(api)
}

type expirySweeper interface {
	ExpirePass(ctx context.Context) (*bloodunit.SweepResult, error)
}

type sweepRecorder interface {
	SweepFinished(at time.Time, err error)
}

func sweepJob(units expirySweeper, rec sweepRecorder, logger zerolog.Logger) scheduling.JobFunc {
	return func(ctx context.Context) error {
		res, err := units.ExpirePass(ctx)
		rec.SweepFinished(time.Now(), err)
		if err != nil {
			return err
		}
		if res.Expired > 0 {
			logger.Info().Int("expired", res.Expired).Msg("expiry sweep marked units expired")
		}
		return nil
	}
}
