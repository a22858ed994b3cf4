package server

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/KickTools/ape-server/internal/flowstate"
	"github.com/KickTools/ape-server/internal/token"
)

// Cookie names. Session tokens travel exclusively in httpOnly cookies; they
// never appear in URLs or response bodies.
const (
	cookieSessionToken   = "session_token"
	cookieRefreshToken   = "refresh_token"
	cookieVerificationID = "verification_id"
)

func (s *Server) newCookie(name, value string, maxAge time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   s.config.CookieDomain,
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   s.config.IsProduction(),
		SameSite: http.SameSiteLaxMode,
	}
}

func (s *Server) setSessionCookies(c echo.Context, sessionToken, refreshToken string) {
	c.SetCookie(s.newCookie(cookieSessionToken, sessionToken, token.AccessTokenTTL))
	c.SetCookie(s.newCookie(cookieRefreshToken, refreshToken, token.RefreshTokenTTL))
}

func (s *Server) setVerificationCookie(c echo.Context, verificationID string) {
	c.SetCookie(s.newCookie(cookieVerificationID, verificationID, flowstate.VerificationTTL))
}

func (s *Server) clearCookie(c echo.Context, name string) {
	c.SetCookie(s.newCookie(name, "", -1))
}

func (s *Server) clearSessionCookies(c echo.Context) {
	s.clearCookie(c, cookieSessionToken)
	s.clearCookie(c, cookieRefreshToken)
	s.clearCookie(c, cookieVerificationID)
}

// cookieValue returns the named cookie's value, or "" when absent.
func cookieValue(c echo.Context, name string) string {
	cookie, err := c.Cookie(name)
	if err != nil {
		return ""
	}
	return cookie.Value
}
