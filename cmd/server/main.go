package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/welldanyogia/newsroom-auth/internal/auth"
	"github.com/welldanyogia/newsroom-auth/internal/config"
	"github.com/welldanyogia/newsroom-auth/internal/health"
	"github.com/welldanyogia/newsroom-auth/internal/logger"
	"github.com/welldanyogia/newsroom-auth/internal/mailer"
	"github.com/welldanyogia/newsroom-auth/internal/metrics"
	authmw "github.com/welldanyogia/newsroom-auth/internal/middleware"
	"github.com/welldanyogia/newsroom-auth/internal/otp"
	"github.com/welldanyogia/newsroom-auth/internal/repository"
	"github.com/welldanyogia/newsroom-auth/internal/session"
)

func main() {
	cfg := config.Load()

	if cfg.Auth.TokenSecret == "" {
		log.Fatal("AUTH_TOKEN_SECRET environment variable is required")
	}

	appLogger := logger.New(logger.DefaultConfig())
	slog.SetDefault(appLogger)

	dbPool, err := setupDatabase(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer dbPool.Close()

	// Repositories
	userRepo := repository.NewUserRepository(dbPool)
	sessionRepo := repository.NewSessionRepository(dbPool)
	otpRepo := repository.NewOTPRepository(dbPool)
	attemptRepo := repository.NewAttemptRepository(dbPool)
	revocationRepo := repository.NewRevocationRepository(dbPool)

	// Services
	tokenService := auth.NewTokenService(auth.TokenServiceConfig{
		Secret:        cfg.Auth.TokenSecret,
		SessionExpiry: cfg.Auth.SessionExpiry,
		Issuer:        cfg.Auth.Issuer,
	})

	passwordValidator := auth.NewPasswordValidator()
	verifier := auth.NewCredentialVerifier(userRepo, passwordValidator)

	guard := auth.NewLoginGuard(attemptRepo, auth.GuardConfig{
		MaxFailedAttempts: cfg.Auth.MaxFailedAttempts,
		LockoutWindow:     cfg.Auth.LockoutWindow,
		FailClosed:        cfg.Auth.LockoutFailClosed,
	}, appLogger)

	var sender mailer.Sender
	if cfg.SMTP.Host != "" {
		sender = mailer.NewSMTPSender(mailer.SMTPConfig{
			Addr:     cfg.SMTP.Host + ":" + cfg.SMTP.Port,
			From:     cfg.SMTP.From,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			Host:     cfg.SMTP.Host,
		}, appLogger)
	} else {
		appLogger.Warn("SMTP_HOST not set, one-time codes will be logged instead of mailed")
		sender = mailer.NewNopSender(appLogger)
	}

	otpService := otp.NewService(otpRepo, sender, cfg.OTP.TTL, appLogger)

	authService := auth.NewAuthService(
		userRepo,
		sessionRepo,
		revocationRepo,
		verifier,
		guard,
		tokenService,
		passwordValidator,
		otpService,
		appLogger,
	)

	sessionService := session.NewService(sessionRepo, revocationRepo, otpRepo, session.Config{
		MaxSessionsPerUser: cfg.Auth.MaxSessionsPerUser,
		MaxIPsPerUser:      cfg.Auth.MaxIPsPerUser,
		RevokedRetention:   cfg.Auth.RevokedRetention,
	}, appLogger)

	// Handlers
	authHandler := auth.NewAuthHandler(authService)
	otpHandler := otp.NewHandler(otpService)
	sessionHandler := session.NewHandler(sessionService)
	healthHandler := health.NewHandler(health.Config{
		DBPool: dbPool,
	})

	// Middleware
	authMiddleware := authmw.NewAuthMiddleware(authService)
	loggingMiddleware := authmw.NewLoggingMiddleware(appLogger)
	ipLimiter := authmw.NewIPRateLimiter(cfg.Auth.RateLimitMax, cfg.Auth.RateLimitWindow)

	// Database stats for /metrics
	dbStats := metrics.NewDBStatsCollector(dbPool, nil)
	dbStats.Start(15 * time.Second)
	defer dbStats.Stop()

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(loggingMiddleware.Handler)
	r.Use(metrics.Middleware)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://news.webrana.id", "http://localhost:3000"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", healthHandler.Health)
	r.Get("/health/ready", healthHandler.Readiness)
	r.Get("/health/live", healthHandler.Liveness)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// Public credential and code endpoints sit behind the IP throttle
		r.Group(func(r chi.Router) {
			r.Use(ipLimiter.Limit)
			auth.RegisterRoutes(r, authHandler, authMiddleware.Authenticate)
			otp.RegisterRoutes(r, otpHandler)
		})

		session.RegisterRoutes(r, sessionHandler,
			authMiddleware.Authenticate,
			authMiddleware.RequireRole("admin"),
		)
	})

	addr := cfg.Server.Host + ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		appLogger.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("shutting down server")
	healthHandler.SetReady(false)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	appLogger.Info("server exited")
}

// setupDatabase creates and configures the database connection pool
func setupDatabase(cfg *config.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	poolConfig.MaxConns = 50
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = 5 * time.Minute
	poolConfig.MaxConnIdleTime = 1 * time.Minute
	poolConfig.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Printf("Connected to database %s on %s:%s", cfg.Database.DBName, cfg.Database.Host, cfg.Database.Port)
	return pool, nil
}
