package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	goredis "github.com/redis/go-redis/v9"

	"github.com/KickTools/ape-server/internal/apperrors"
	"github.com/KickTools/ape-server/internal/config"
	"github.com/KickTools/ape-server/internal/domain"
	"github.com/KickTools/ape-server/internal/flowstate"
	"github.com/KickTools/ape-server/internal/identity"
	"github.com/KickTools/ape-server/internal/token"
)

// authService is the slice of the identity service the HTTP layer needs.
type authService interface {
	BeginAuth(ctx context.Context, platform domain.Platform, flow flowstate.Flow, viewerID *uuid.UUID) (string, error)
	HandleCallback(ctx context.Context, platform domain.Platform, code, state string, verificationID *uuid.UUID) (*identity.CallbackResult, error)
	Refresh(ctx context.Context, refreshJWT string) (*identity.SessionPair, error)
	Logout(ctx context.Context, viewerID uuid.UUID, platform domain.Platform) error
	EnsureFreshProviderToken(ctx context.Context, viewerID uuid.UUID, platform domain.Platform) (*domain.ProviderToken, error)
}

// postgresHealthChecker is a minimal interface for PostgreSQL health checks
type postgresHealthChecker interface {
	Ping(ctx context.Context) error
}

// redisHealthChecker is a minimal interface for Redis health checks
type redisHealthChecker interface {
	Ping(ctx context.Context) *goredis.StatusCmd
}

type Server struct {
	echo      *echo.Echo
	config    *config.Config
	auth      authService
	viewers   domain.ViewerRepository
	issuer    *token.Issuer
	postgres  postgresHealthChecker
	redis     redisHealthChecker
	startTime time.Time
}

// NewServer assembles the echo instance. redis may be nil when the deployment
// runs on the in-memory flow stores.
func NewServer(cfg *config.Config, auth authService, viewers domain.ViewerRepository, issuer *token.Issuer, postgres postgresHealthChecker, redis redisHealthChecker) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(apperrors.Middleware())

	srv := &Server{
		echo:      e,
		config:    cfg,
		auth:      auth,
		viewers:   viewers,
		issuer:    issuer,
		postgres:  postgres,
		redis:     redis,
		startTime: time.Now(),
	}

	srv.registerRoutes()

	return srv
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	return s.echo.Start(fmt.Sprintf(":%s", s.config.Port))
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
