package main

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/geocheck/attendance-server-go/internal/auth"
	"github.com/geocheck/attendance-server-go/internal/blobstore"
	"github.com/geocheck/attendance-server-go/internal/config"
	"github.com/geocheck/attendance-server-go/internal/database"
	"github.com/geocheck/attendance-server-go/internal/handler"
	"github.com/geocheck/attendance-server-go/internal/jobs"
	"github.com/geocheck/attendance-server-go/internal/middleware"
	"github.com/geocheck/attendance-server-go/internal/model"
	"github.com/geocheck/attendance-server-go/internal/redis"
	"github.com/geocheck/attendance-server-go/internal/repository"
	"github.com/geocheck/attendance-server-go/internal/service"
	"github.com/geocheck/attendance-server-go/internal/sse"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Msg("failed to read .env")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	isProduction := os.Getenv("FLY_APP_NAME") != ""
	if err := cfg.Validate(isProduction); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = redis.NewClient(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()
		log.Info().Msg("redis connected")
	}

	var db *database.DB
	if cfg.SQLBackend() {
		db, err = database.Connect(cfg.StoreBackend, cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer db.Close()

		ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
		if err := db.Ping(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to ping database")
		}
		cancel()
		log.Info().Str("driver", cfg.StoreBackend).Msg("database connected")
	}

	store, err := openStore(cfg, db, redisClient)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open store")
	}

	retry := repository.DefaultRetryConfig()
	retry.MaxAttempts = cfg.StoreMaxAttempts
	sessionRepo := repository.NewSessionRepository(store, retry)
	ledgerRepo := repository.NewLedgerRepository(store, retry)

	broker := sse.NewBroker(redisClient)
	defer broker.Close()

	sessionService := service.NewSessionService(sessionRepo, ledgerRepo, broker, cfg.Location())
	checkinService := service.NewCheckinService(sessionRepo, ledgerRepo, broker)
	approvalService := service.NewApprovalService(sessionRepo, ledgerRepo, broker)

	var limiter middleware.Limiter = middleware.NewRateLimiter()
	if redisClient != nil {
		limiter = middleware.NewRedisRateLimiter(redisClient.Client)
	}

	authMiddleware := middleware.NewAuthMiddleware(auth.NewVerifier(cfg.JWTSigningKey, cfg.JWTIssuer))
	submitRateLimit := middleware.NewRateLimitMiddleware(limiter, cfg.SubmitRateLimitPerMin)
	ipRateLimit := middleware.NewIPRateLimitMiddleware(limiter, cfg.IPRateLimitPerMin, "api")
	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(cfg.MaxBodyBytes)
	securityHeadersMiddleware := middleware.NewSecurityHeadersMiddleware(isProduction)

	sessionHandler := handler.NewSessionHandler(sessionService)
	checkinHandler := handler.NewCheckinHandler(checkinService, approvalService, submitRateLimit.Handler)
	recordsHandler := handler.NewRecordsHandler(approvalService)
	eventsHandler := handler.NewEventsHandler(broker)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(securityHeadersMiddleware.Handler)
	r.Use(bodyLimitMiddleware.Handler)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		status, code := "ok", http.StatusOK
		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), config.DBPingTimeout)
			defer cancel()
			if err := db.Ping(ctx); err != nil {
				log.Warn().Err(err).Msg("health check: database unreachable")
				status, code = "degraded", http.StatusServiceUnavailable
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(map[string]any{
			"status":    status,
			"store":     cfg.StoreBackend,
			"timestamp": time.Now().UnixMilli(),
		})
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.IPRateLimitPerMin > 0 {
			r.Use(ipRateLimit.Handler)
		}
		r.Use(authMiddleware.Handler)

		r.With(middleware.RequireRole(model.RolePresenter, model.RoleAdmin)).Get("/events", eventsHandler.ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
			r.Mount("/sessions", sessionHandler.Routes())
			r.Mount("/checkins", checkinHandler.Routes())
			r.Mount("/records", recordsHandler.Routes())
		})
	})

	sweepJob := jobs.NewSessionSweepJob(sessionService, cfg.SessionSweepInterval())
	sweepJob.Start()
	defer sweepJob.Stop()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Str("store", cfg.StoreBackend).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

// openStore builds the blob store for the configured backend. A SQL primary
// gets a Redis read-through cache when Redis is available.
func openStore(cfg *config.Config, db *database.DB, redisClient *redis.Client) (blobstore.Store, error) {
	switch cfg.StoreBackend {
	case config.BackendRedis:
		return blobstore.NewRedisStore(redisClient.Client), nil

	case config.BackendPostgres, config.BackendPgx, config.BackendSQLite:
		sqlStore := blobstore.NewSQLStore(db.DB)
		ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
		defer cancel()
		if err := sqlStore.Migrate(ctx); err != nil {
			return nil, err
		}
		if redisClient != nil && cfg.CacheTTL() > 0 {
			log.Info().Dur("ttl", cfg.CacheTTL()).Msg("redis read cache enabled")
			return blobstore.NewCached(sqlStore, redisClient.Client, cfg.CacheTTL()), nil
		}
		return sqlStore, nil

	default:
		log.Warn().Msg("using in-memory store: state is lost on restart")
		return blobstore.NewMemoryStore(), nil
	}
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
