package server

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) registerRoutes() {
	// Observability endpoints (no auth required)
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	s.echo.GET("/version", s.handleVersion)

	// OAuth flow entry points and callback (browser redirects, no auth)
	s.echo.GET("/auth/:provider/login", s.handleLogin)
	s.echo.GET("/auth/:provider/verify", s.handleVerify)
	s.echo.GET("/auth/:provider/callback", s.handleCallback)

	// Session lifecycle
	s.echo.POST("/auth/refresh-token", s.handleRefreshToken)
	s.echo.POST("/auth/logout", s.handleLogout, s.requireAuth)

	// Session introspection (authenticated)
	s.echo.GET("/auth/me", s.handleMe, s.requireAuth)
	s.echo.GET("/auth/check-session", s.handleCheckSession, s.requireAuth)
}
