package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"clubhub/internal/chat"
	"clubhub/internal/config"
	"clubhub/internal/db"
	apihttp "clubhub/internal/http"
	"clubhub/internal/repository"
	"clubhub/internal/service"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := newLogger(cfg.LogDevelopment)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer pool.Close()
	if err := db.Ping(ctx, pool); err != nil {
		logger.Fatal("db ping", zap.Error(err))
	}
	if err := db.Migrate(ctx, pool); err != nil {
		logger.Fatal("db migrate", zap.Error(err))
	}

	userRepo := repository.NewPgUserRepository(pool)
	messageRepo, closeStore, err := openMessageStore(cfg, pool, logger)
	if err != nil {
		logger.Fatal("message store", zap.Error(err))
	}
	defer closeStore()

	var (
		logins      *service.LoginThrottle
		tokenStore  service.RefreshTokenStore
		redisClient *redis.Client
	)
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer redisClient.Close()
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed, using in-memory fallbacks", zap.Error(err))
			redisClient = nil
		} else {
			logins = service.NewLoginThrottle(
				service.NewRedisRateLimiter(logger, redisClient, "clubhub:login:email:", cfg.LoginRateWindow, cfg.LoginRateMax),
				service.NewRedisRateLimiter(logger, redisClient, "clubhub:login:ip:", cfg.LoginRateWindow, cfg.LoginIPRateMax),
			)
			tokenStore = service.NewRedisRefreshTokenStore(redisClient)
		}
		cancel()
	}
	if logins == nil {
		logins = service.NewMemoryLoginThrottle(cfg.LoginRateWindow, cfg.LoginRateMax, cfg.LoginIPRateMax)
	}

	jwtSvc := service.NewJWTService(
		cfg.JWTSecret,
		time.Duration(cfg.JWTAccessTTLMinutes)*time.Minute,
		time.Duration(cfg.JWTRefreshTTLMinutes)*time.Minute,
		tokenStore,
	)
	userSvc := service.NewUserService(logger, userRepo, logins)
	messageSvc := service.NewMessageService(logger, messageRepo, userRepo)

	resolver := service.NewCachedIdentityResolver(
		logger,
		service.NewRepositoryIdentityResolver(userRepo),
		redisClient,
		cfg.IdentityCacheTTL,
	)
	registry := chat.NewRegistry(logger.Named("registry"))
	chatHandler := chat.NewHandler(logger.Named("chat"), resolver, messageRepo, registry,
		chat.WithMaxMessageLength(cfg.MaxMessageLength),
	)
	wsHandler := apihttp.NewWSHandler(logger.Named("ws"), chatHandler, cfg.WebSocket, cfg.CORSOrigin)

	router := apihttp.NewRouter(logger, apihttp.RouterDeps{
		Users:         apihttp.NewUserHandler(logger, userSvc, jwtSvc, cfg.CookieSecure),
		Messages:      apihttp.NewMessageHandler(logger, messageSvc),
		WebSocket:     wsHandler,
		Auth:          apihttp.JWTAuthMiddleware(jwtSvc, userSvc),
		CORSOrigin:    cfg.CORSOrigin,
		WSRequireAuth: cfg.WebSocket.RequireAuth,
	})

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("starting server", zap.String("port", cfg.HTTPPort), zap.String("message_store", cfg.MessageStore))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server forced to shutdown", zap.Error(err))
	}
	// Las conexiones websocket están secuestradas: server.Shutdown no las espera.
	if err := wsHandler.Shutdown(shutdownCtx); err != nil {
		logger.Warn("websocket connections did not drain in time", zap.Error(err))
	}
	registry.Shutdown()
	logger.Info("server stopped")
}

func newLogger(development bool) *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if development {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	return logger
}

// openMessageStore elige el almacén de mensajes según MESSAGE_STORE.
func openMessageStore(cfg *config.Config, pool *pgxpool.Pool, logger *zap.Logger) (repository.MessageRepository, func(), error) {
	switch cfg.MessageStore {
	case config.MessageStoreBadger:
		opts := badger.DefaultOptions(cfg.BadgerPath).WithLoggingLevel(badger.WARNING)
		bdb, err := badger.Open(opts)
		if err != nil {
			return nil, nil, err
		}
		repo, err := repository.NewBadgerMessageRepository(bdb, logger.Named("badger"))
		if err != nil {
			_ = bdb.Close()
			return nil, nil, err
		}
		return repo, func() {
			_ = repo.Close()
			if err := bdb.Close(); err != nil {
				logger.Warn("badger close failed", zap.Error(err))
			}
		}, nil
	default:
		return repository.NewPgMessageRepository(pool), func() {}, nil
	}
}
