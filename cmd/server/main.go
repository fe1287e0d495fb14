package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/AnshRaj112/krishi-advisor-backend/internal/apperr"
	"github.com/AnshRaj112/krishi-advisor-backend/internal/config"
	"github.com/AnshRaj112/krishi-advisor-backend/internal/database"
	"github.com/AnshRaj112/krishi-advisor-backend/internal/handlers"
	"github.com/AnshRaj112/krishi-advisor-backend/internal/logging"
	"github.com/AnshRaj112/krishi-advisor-backend/internal/middleware"
	"github.com/AnshRaj112/krishi-advisor-backend/internal/routes"
	"github.com/AnshRaj112/krishi-advisor-backend/internal/services"
	"github.com/AnshRaj112/krishi-advisor-backend/internal/store"
	"github.com/AnshRaj112/krishi-advisor-backend/internal/weather"
)

func main() {
	// Load env
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}
	// Load configuration
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatal("Invalid configuration: ", err)
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Redis backs sessions and is required.
	logger.Info("Connecting to Redis...")
	redisClient, err := database.ConnectRedis(cfg.RedisURI, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	defer redisClient.Close()

	documents, closeDocuments, err := openDocumentStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeDocuments()

	directory, closeDirectory, err := openUserDirectory(cfg, logger)
	if err != nil {
		return err
	}
	defer closeDirectory()

	otpStore, err := openOtpStore(cfg, redisClient, logger)
	if err != nil {
		return err
	}
	otpSecret, err := otpSecret(cfg, logger)
	if err != nil {
		return err
	}

	mailer := services.NewResendMailer(cfg.ResendAPIKey, cfg.MailFrom, cfg.MailFromName, cfg.MailTimeout)
	if cfg.ResendAPIKey == "" {
		logger.Warn("RESEND_API_KEY not set. Login codes cannot be delivered")
	}

	contexts := services.NewContextService(documents, logger)
	otp := services.NewOtpAuthenticator(otpStore, mailer, services.OtpSettings{
		TTL:         cfg.OtpTTL,
		MaxAttempts: cfg.OtpMaxAttempts,
		Secret:      otpSecret,
	}, logger)
	sessions := services.NewSessionStore(redisClient, cfg.SessionTTL)
	auth := services.NewAuthService(otp, directory, contexts, sessions, logger)

	if cfg.WeatherAPIKey == "" {
		logger.Warn("WEATHER_API_KEY not set. Weather requests will use fallback readings")
	}
	provider := weather.NewOpenWeatherProvider(cfg.WeatherAPIKey, cfg.WeatherBaseURL, &http.Client{Timeout: cfg.WeatherTimeout})
	weatherCache := weather.NewCache(provider, logger,
		weather.WithTTL(cfg.WeatherCacheTTL),
		weather.WithTimeout(cfg.WeatherTimeout),
	)
	go weatherCache.RunSweeper(ctx, cfg.WeatherCacheSweepInterval, cfg.WeatherCacheMaxAge)

	var llm services.LanguageModel
	gemini, err := services.NewGeminiModel(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	switch {
	case errors.Is(err, apperr.ErrNotConfigured):
		logger.Warn("GEMINI_API_KEY not set. Advice will be unavailable")
	case err != nil:
		logger.Warn("Failed to initialize Gemini. Advice will be unavailable", zap.Error(err))
	default:
		defer gemini.Close()
		llm = gemini
	}
	advisor := services.NewAdvisor(contexts, weatherCache, llm, logger)

	limiter := middleware.NewRedisRateLimiter(redisClient, logger)
	h := handlers.New(auth, sessions, contexts, weatherCache, advisor, limiter, logger)

	// Setup router
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	if cfg.TrustProxyHeaders {
		r.Use(chimw.RealIP)
	}
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestLogger(logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Admin-Token"},
		ExposedHeaders:   []string{"Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Production: SecurityHeaders → HostCheck → Global → OtpRoutes → Advice (in-process limiters)
	// Non-production: Redis-based rate limit only
	if cfg.IsProduction() {
		limits := middleware.NewRateLimits()
		go limits.RunCleanup(ctx)
		for _, mw := range middleware.ProductionSecurity(cfg.AllowedHost, limits) {
			r.Use(mw)
		}
		logger.Info("✅ Production security enabled (security headers, host check, per-IP rate limiting)")
	} else {
		r.Use(limiter.Middleware)
	}

	routes.SetupRoutes(r, h, routes.Guards{
		Session: middleware.RequireSession(sessions, logger),
		Admin:   middleware.RequireAdminToken(cfg.AdminToken),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Advice waits on the weather fetch and the model.
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("🚀 Krishi advisor backend running", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openDocumentStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.DocumentStore, func(), error) {
	if cfg.ContextStore == "memory" {
		logger.Warn("CONTEXT_STORE=memory. User contexts are lost on restart")
		return store.NewMemoryDocumentStore(), func() {}, nil
	}

	logger.Info("Connecting to MongoDB...")
	var (
		client *mongo.Client
		db     *mongo.Database
		err    error
	)
	if client, db, err = database.Connect(cfg.MongoURI, cfg.MongoDatabase, logger); err != nil {
		return nil, nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	closeFn := func() {
		if err := database.Disconnect(client); err != nil {
			logger.Warn("MongoDB disconnect failed", zap.Error(err))
		}
	}

	documents := store.NewMongoDocumentStore(db, logger)
	indexCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := documents.EnsureIndexes(indexCtx); err != nil {
		logger.Warn("⚠️  Failed to ensure user context indexes", zap.Error(err))
	} else {
		logger.Info("✅ User context indexes ensured")
	}
	return documents, closeFn, nil
}

// openUserDirectory uses Postgres and falls back to memory outside production.
func openUserDirectory(cfg *config.Config, logger *zap.Logger) (store.UserDirectory, func(), error) {
	logger.Info("Connecting to PostgreSQL...")
	var (
		db  *sql.DB
		err error
	)
	db, err = database.ConnectPostgres(cfg.PostgresURI, logger)
	if err == nil {
		err = database.InitPostgresTables(db)
	}
	if err != nil {
		if db != nil {
			db.Close()
		}
		if cfg.IsProduction() {
			return nil, nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		logger.Warn("PostgreSQL unavailable. Using in-memory user directory", zap.Error(err))
		return store.NewMemoryUserDirectory(), func() {}, nil
	}
	return store.NewPostgresUserDirectory(db), func() { db.Close() }, nil
}

func openOtpStore(cfg *config.Config, client *redis.Client, logger *zap.Logger) (store.OtpStore, error) {
	switch cfg.OtpStore {
	case "redis":
		return store.NewRedisOtpStore(client, logger, time.Now), nil
	case "memory":
		if cfg.IsProduction() {
			logger.Warn("OTP_STORE=memory in production. Codes are lost on restart and not shared between instances")
		}
		return store.NewMemoryOtpStore(time.Now), nil
	default:
		return nil, fmt.Errorf("unknown OTP_STORE %q", cfg.OtpStore)
	}
}

// otpSecret returns the digest key. Development gets a random per-process key.
func otpSecret(cfg *config.Config, logger *zap.Logger) ([]byte, error) {
	if cfg.OtpSecret != "" {
		return []byte(cfg.OtpSecret), nil
	}
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, err
	}
	logger.Warn("OTP_SECRET not set. Using a random key; outstanding codes will not survive a restart")
	return secret, nil
}
