package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

// ProviderCredentials holds the OAuth2 client registration for one platform.
type ProviderCredentials struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

type Config struct {
	AppEnv      string `env:"APP_ENV" default:"development"`
	Port        string `env:"PORT" default:"9988"`
	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`
	FrontendURL string `env:"FRONTEND_URL"`

	JWTSecret        string `env:"JWT_SECRET"`
	EncryptionSecret string `env:"ENCRYPTION_SECRET"`
	CookieDomain     string `env:"COOKIE_DOMAIN"`

	TwitchClientID     string `env:"TWITCH_CLIENT_ID"`
	TwitchClientSecret string `env:"TWITCH_CLIENT_SECRET"`
	TwitchRedirectURI  string `env:"TWITCH_REDIRECT_URI"`

	KickClientID     string `env:"KICK_CLIENT_ID"`
	KickClientSecret string `env:"KICK_CLIENT_SECRET"`
	KickRedirectURI  string `env:"KICK_CALLBACK_URL"`

	XClientID     string `env:"X_CLIENT_ID"`
	XClientSecret string `env:"X_CLIENT_SECRET"`
	XRedirectURI  string `env:"X_REDIRECT_URI"`

	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	PendingAuthTTL  time.Duration `env:"PENDING_AUTH_TTL" default:"5m"`
	VerificationTTL time.Duration `env:"VERIFICATION_TTL" default:"15m"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	required := map[string]string{
		"DATABASE_URL":         cfg.DatabaseURL,
		"FRONTEND_URL":         cfg.FrontendURL,
		"JWT_SECRET":           cfg.JWTSecret,
		"ENCRYPTION_SECRET":    cfg.EncryptionSecret,
		"TWITCH_CLIENT_ID":     cfg.TwitchClientID,
		"TWITCH_CLIENT_SECRET": cfg.TwitchClientSecret,
		"TWITCH_REDIRECT_URI":  cfg.TwitchRedirectURI,
		"KICK_CLIENT_ID":       cfg.KickClientID,
		"KICK_CLIENT_SECRET":   cfg.KickClientSecret,
		"KICK_CALLBACK_URL":    cfg.KickRedirectURI,
		"X_CLIENT_ID":          cfg.XClientID,
		"X_CLIENT_SECRET":      cfg.XClientSecret,
		"X_REDIRECT_URI":       cfg.XRedirectURI,
	}
	for name, value := range required {
		if value == "" {
			return fmt.Errorf("%s is required", name)
		}
	}

	if len(cfg.EncryptionSecret) != 32 {
		return fmt.Errorf("ENCRYPTION_SECRET must be exactly 32 bytes, got %d", len(cfg.EncryptionSecret))
	}

	if len(cfg.JWTSecret) < 16 {
		return fmt.Errorf("JWT_SECRET must be at least 16 characters")
	}

	return nil
}

// IsProduction reports whether the app runs with production cookie/security settings.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// Twitch returns the Twitch OAuth credentials.
func (c *Config) Twitch() ProviderCredentials {
	return ProviderCredentials{ClientID: c.TwitchClientID, ClientSecret: c.TwitchClientSecret, RedirectURI: c.TwitchRedirectURI}
}

// Kick returns the Kick OAuth credentials.
func (c *Config) Kick() ProviderCredentials {
	return ProviderCredentials{ClientID: c.KickClientID, ClientSecret: c.KickClientSecret, RedirectURI: c.KickRedirectURI}
}

// X returns the X OAuth credentials.
func (c *Config) X() ProviderCredentials {
	return ProviderCredentials{ClientID: c.XClientID, ClientSecret: c.XClientSecret, RedirectURI: c.XRedirectURI}
}
