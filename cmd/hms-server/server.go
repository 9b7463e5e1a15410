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

	"github.com/hillcrest/hms/internal/config"
	"github.com/hillcrest/hms/internal/domain/billing"
	"github.com/hillcrest/hms/internal/domain/consultation"
	"github.com/hillcrest/hms/internal/domain/lab"
	"github.com/hillcrest/hms/internal/domain/patient"
	"github.com/hillcrest/hms/internal/domain/pharmacy"
	"github.com/hillcrest/hms/internal/domain/scheduling"
	"github.com/hillcrest/hms/internal/domain/staff"
	"github.com/hillcrest/hms/internal/platform/auth"
	"github.com/hillcrest/hms/internal/platform/blobstore"
	"github.com/hillcrest/hms/internal/platform/db"
	"github.com/hillcrest/hms/internal/platform/events"
	"github.com/hillcrest/hms/internal/platform/identifier"
	"github.com/hillcrest/hms/internal/platform/metrics"
	"github.com/hillcrest/hms/internal/platform/middleware"
)

const version = "0.1.0"

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBSchema, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Str("schema", cfg.DBSchema).Msg("connected to database")

	m := metrics.New()
	m.WatchPool(func() (int32, int32) {
		stat := pool.Stat()
		return stat.TotalConns(), stat.IdleConns()
	})

	// Revocations and events go to Redis when configured, otherwise they
	// stay in process.
	var (
		revocations auth.RevocationStore
		pub         events.Publisher
		checks      []db.Check
	)
	if cfg.RedisURL != "" {
		client, err := events.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer client.Close()
		revocations = auth.NewRedisRevocationStore(client)
		pub = events.NewRedisStreamPublisher(client, cfg.EventStream)
		checks = append(checks, db.Check{
			Name: "redis",
			Ping: func(ctx context.Context) error { return client.Ping(ctx).Err() },
		})
		logger.Info().Str("stream", cfg.EventStream).Msg("connected to redis")
	} else {
		mem := auth.NewMemoryRevocationStore(time.Minute)
		defer mem.Close()
		revocations = mem
		pub = events.NewLogPublisher(logger)
		logger.Warn().Msg("REDIS_URL not set; token revocation is local to this instance")
	}

	blobs, err := blobstore.NewFileStore(cfg.MediaRoot, cfg.MaxUploadBytes())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open media store")
	}

	tokens := auth.NewTokenIssuer([]byte(cfg.JWTSigningKey), cfg.JWTIssuer, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)

	e, api := newRouter(cfg, logger, m, tokens, revocations)
	e.GET("/health/db", db.HealthHandler(pool, checks...))

	svcs := newServices(pool, blobs, tokens, revocations, pub, m, cfg, logger)
	svcs.register(api)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

// newRouter builds the echo instance with the global middleware chain and
// returns the authenticated /api group.
func newRouter(cfg *config.Config, logger zerolog.Logger, m *metrics.Metrics,
	tokens *auth.TokenIssuer, revocations auth.RevocationStore) (*echo.Echo, *echo.Group) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(m.Middleware())
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	e.Use(middleware.BodyLimit(1<<20, cfg.MaxUploadBytes()+1<<20))
	e.Use(middleware.Audit(logger, nil))

	e.GET("/", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"service": "hillcrest-hms",
			"version": version,
		})
	})
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/metrics", echo.WrapHandler(m.Handler()))

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
		IdleTTL:           10 * time.Minute,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}

	api := e.Group("/api")
	api.Use(auth.JWTMiddleware(auth.JWTConfig{
		Issuer:      tokens,
		Revocations: revocations,
		Skipper:     auth.AuthSkipper,
		Logger:      logger,
	}))
	api.Use(middleware.RateLimit(rateLimitCfg))
	return e, api
}

type services struct {
	staff        *staff.Service
	sessions     *staff.SessionService
	patients     *patient.Service
	scheduling   *scheduling.Service
	billing      *billing.Service
	lab          *lab.Service
	consultation *consultation.Service
	pharmacy     *pharmacy.Service
}

func newServices(pool *pgxpool.Pool, blobs blobstore.BlobStore, tokens *auth.TokenIssuer,
	revocations auth.RevocationStore, pub events.Publisher, m *metrics.Metrics,
	cfg *config.Config, logger zerolog.Logger) *services {
	seq := identifier.NewPGSequencer(pool)
	tx := db.NewTransactor(pool)

	users := staff.NewUserRepoPG(pool)
	patientRepo := patient.NewPatientRepoPG(pool)
	appointments := scheduling.NewAppointmentRepoPG(pool)
	labBills := billing.NewLabBillRepoPG(pool)
	labRequests := lab.NewRequestRepoPG(pool)
	consultations := consultation.NewConsultationRepoPG(pool)

	return &services{
		staff:    staff.NewService(users, staff.NewDepartmentRepoPG(pool), seq, tx),
		sessions: staff.NewSessionService(users, tokens, revocations, m, logger.With().Str("component", "session").Logger()),
		patients: patient.NewService(patientRepo, patient.NewVitalsRepoPG(pool), seq, tx, pub,
			logger.With().Str("component", "patient").Logger()),
		scheduling: scheduling.NewService(appointments, scheduling.NewDirectoryPG(pool), seq, tx, pub, m,
			logger.With().Str("component", "scheduling").Logger()),
		billing: billing.NewService(billing.NewConsultationBillRepoPG(pool), labBills, billing.NewLedgerRepoPG(pool),
			appointments, cfg.DefaultConsultationFee, pub, m, logger.With().Str("component", "billing").Logger()),
		lab: lab.NewService(lab.NewTestTypeRepoPG(pool), labRequests, lab.NewResultRepoPG(pool), labBills,
			appointments, blobs, tx, lab.Config{StrictPricing: cfg.LabStrictPricing}, pub, m,
			logger.With().Str("component", "lab").Logger()),
		consultation: consultation.NewService(consultations, consultation.NewPatientReaderPG(pool),
			appointments, labRequests, tx, pub, logger.With().Str("component", "consultation").Logger()),
		pharmacy: pharmacy.NewService(pharmacy.NewMedicineRepoPG(pool), pharmacy.NewSaleRepoPG(pool),
			consultations, patientRepo, tx, pub, m, logger.With().Str("component", "pharmacy").Logger()),
	}
}

func (s *services) register(api *echo.Group) {
	staff.NewHandler(s.staff, s.sessions).RegisterRoutes(api)
	patient.NewHandler(s.patients).RegisterRoutes(api)
	scheduling.NewHandler(s.scheduling).RegisterRoutes(api)
	billing.NewHandler(s.billing).RegisterRoutes(api)
	lab.NewHandler(s.lab).RegisterRoutes(api)
	consultation.NewHandler(s.consultation).RegisterRoutes(api)
	pharmacy.NewHandler(s.pharmacy).RegisterRoutes(api)
}
