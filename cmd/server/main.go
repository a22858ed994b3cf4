package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"

	"github.com/KickTools/ape-server/internal/config"
	"github.com/KickTools/ape-server/internal/crypto"
	"github.com/KickTools/ape-server/internal/database"
	"github.com/KickTools/ape-server/internal/flowstate"
	"github.com/KickTools/ape-server/internal/identity"
	"github.com/KickTools/ape-server/internal/logging"
	"github.com/KickTools/ape-server/internal/provider"
	"github.com/KickTools/ape-server/internal/redis"
	"github.com/KickTools/ape-server/internal/server"
	"github.com/KickTools/ape-server/internal/token"
)

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupDB(cfg *config.Config) *pgxpool.Pool {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := database.RunMigrations(ctx, db); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	return db
}

func setupRedis(cfg *config.Config) *goredis.Client {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := redis.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

func runGracefulShutdown(srv *server.Server) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	// Initialize structured logging
	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port)

	pool := setupDB(cfg)
	defer pool.Close()

	cryptoSvc, err := crypto.NewAesGcmService(cfg.EncryptionSecret)
	if err != nil {
		slog.Error("Failed to create crypto service", "error", err)
		os.Exit(1)
	}

	// Flow state: Redis for multi-instance deployments, in-memory otherwise.
	var (
		pending      flowstate.PendingStore
		verification flowstate.VerificationCache
		redisClient  *goredis.Client
	)
	if cfg.RedisURL != "" {
		redisClient = setupRedis(cfg)
		defer func() { _ = redisClient.Close() }()
		pending = flowstate.NewRedisPendingStore(redisClient, cfg.PendingAuthTTL)
		verification = flowstate.NewRedisVerificationCache(redisClient, cfg.VerificationTTL)
	} else {
		slog.Info("REDIS_URL not set, using in-memory flow stores")
		pending = flowstate.NewMemoryPendingStore(cfg.PendingAuthTTL, clock)
		cache := flowstate.NewMemoryVerificationCache(cfg.VerificationTTL, clock)
		stopEviction := cache.StartEvictionTimer(time.Minute)
		defer stopEviction()
		verification = cache
	}

	viewerRepo := database.NewViewerRepo(pool)
	tokenRepo := database.NewTokenRepo(pool, cryptoSvc)
	profileRepo := database.NewProfileRepo(pool)

	issuer := token.NewIssuer(cfg.JWTSecret, clock)

	providers := []provider.Client{
		provider.NewTwitch(cfg.Twitch()),
		provider.NewKick(cfg.Kick()),
		provider.NewX(cfg.X()),
	}

	identitySvc := identity.NewService(
		providers, pending, verification,
		viewerRepo, tokenRepo, profileRepo,
		issuer, cryptoSvc, clock,
	)

	// Pass nil explicitly when Redis is absent to avoid a typed-nil interface.
	var srv *server.Server
	if redisClient != nil {
		srv = server.NewServer(cfg, identitySvc, viewerRepo, issuer, pool, redisClient)
	} else {
		srv = server.NewServer(cfg, identitySvc, viewerRepo, issuer, pool, nil)
	}

	done := runGracefulShutdown(srv)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
