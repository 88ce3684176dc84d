package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/harentsoar/clinic-api/internal/config"
	"github.com/harentsoar/clinic-api/internal/db"
	"github.com/harentsoar/clinic-api/internal/handlers"
	"github.com/harentsoar/clinic-api/internal/kvstore"
	"github.com/harentsoar/clinic-api/internal/middleware"
	"github.com/harentsoar/clinic-api/internal/repository"
	"github.com/harentsoar/clinic-api/internal/services"
	"github.com/harentsoar/clinic-api/internal/utils"
)

func runServer(cfg *config.Config, logger zerolog.Logger) error {
	utils.PasswordCost = cfg.PasswordCost

	// --- Database Connection ---
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return err
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	store, closeStore, err := openKVStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()
	logger.Info().Str("backend", cfg.KVBackend).Msg("kv store ready")

	// --- Initialize Services ---
	var mailer services.Mailer
	if cfg.SMTPConfigured() {
		mailer = services.NewSMTPMailer(services.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPass,
			From:     cfg.SMTPFrom,
		})
	} else {
		logger.Warn().Msg("SMTP not configured, verification codes will only be logged")
		mailer = services.NewLogMailer(logger)
	}

	accounts := repository.NewAccountRepo(pool)
	appointments := repository.NewAppointmentRepo(pool)
	otp := services.NewOTPService(store, mailer, services.OTPConfig{
		TTL:         cfg.OTPTTL,
		MaxAttempts: cfg.OTPMaxAttempts,
		MailTimeout: cfg.MailTimeout,
		VerifiedTTL: cfg.RegistrationTTL,
	}, logger)
	stager := services.NewStager(store, cfg.RegistrationTTL)
	registration := services.NewRegistrationService(accounts, otp, stager, cfg.DBTimeout, logger)
	notificationSvc := services.NewNotificationService(mailer, cfg.TextbeltAPIKey, 2*cfg.MailTimeout, logger)
	defer notificationSvc.Wait()

	// --- Initialize Handlers ---
	h := handlers.NewHandler(accounts, appointments, registration, otp, notificationSvc,
		utils.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTTL), logger)
	h.SessionTTL = cfg.RegistrationTTL
	h.SecureCookies = cfg.IsProduction()
	h.Ping = pool.Ping

	// --- Gin Router ---
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestID(), middleware.Logger(logger))
	r.MaxMultipartMemory = 2 * services.MaxPhotoSize
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", middleware.RequestIDHeader},
		ExposeHeaders:    []string{middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	h.RegisterRoutes(r, middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-quit:
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}

// openKVStore connects the backend named by KV_BACKEND. The returned func
// releases it.
func openKVStore(ctx context.Context, cfg *config.Config) (kvstore.Store, func(), error) {
	switch cfg.KVBackend {
	case "redis":
		s, err := kvstore.NewRedisStore(ctx, cfg.RedisURL, "clinic:")
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	case "mongo":
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return nil, nil, fmt.Errorf("connect mongo: %w", err)
		}
		disconnect := func() {
			dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = client.Disconnect(dctx)
		}
		s, err := kvstore.NewMongoStore(ctx, client.Database(cfg.MongoDatabase).Collection("kv_entries"))
		if err != nil {
			disconnect()
			return nil, nil, err
		}
		return s, disconnect, nil
	default:
		return kvstore.NewMemoryStore(), func() {}, nil
	}
}
