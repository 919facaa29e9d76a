// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string `env:"DATABASE_URL"`

	// Server
	ServerPort  string `env:"SERVER_PORT" envDefault:"8080"`
	BaseURL     string `env:"BASE_URL"`
	FrontendURL string `env:"FRONTEND_URL"`

	// Steam
	SteamAPIKey              string        `env:"STEAM_API_KEY"`
	SteamOpenIDEndpoint      string        `env:"STEAM_OPENID_ENDPOINT" envDefault:"https://steamcommunity.com/openid/login"`
	SteamWebAPIEndpoint      string        `env:"STEAM_WEB_API_ENDPOINT" envDefault:"https://api.steampowered.com/IPlayerService/GetOwnedGames/v1/"`
	SteamHTTPTimeout         time.Duration `env:"STEAM_HTTP_TIMEOUT" envDefault:"20s"`
	SteamStateTTL            time.Duration `env:"STEAM_STATE_TTL" envDefault:"10m"`
	SteamAllowAnonymousStart bool          `env:"STEAM_ALLOW_ANONYMOUS_START" envDefault:"false"`

	// Session
	SessionCookieName    string        `env:"SESSION_COOKIE_NAME" envDefault:"catalyst_session"`
	SessionTTLDays       int           `env:"SESSION_TTL_DAYS" envDefault:"30"`
	SessionSweepInterval time.Duration `env:"SESSION_SWEEP_INTERVAL" envDefault:"1h"`

	// Cookie
	// CookieSecure は未設定ならBASE_URLがhttpsかどうかで決める
	CookieSecure *bool  `env:"COOKIE_SECURE"`
	CookieDomain string `env:"COOKIE_DOMAIN"`

	// Rate Limit (req/min)
	RateLimitAuth int `env:"RATE_LIMIT_AUTH" envDefault:"20"`
	RateLimitSync int `env:"RATE_LIMIT_SYNC" envDefault:"6"`

	// CORS
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"http://localhost:1420" envSeparator:","`

	// Logging
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合は、不足しているものをすべて列挙したエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	// Required fields
	var missing []string
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}
	if cfg.FrontendURL == "" {
		missing = append(missing, "FRONTEND_URL")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	cfg.CORSAllowedOrigins = normalizeOrigins(cfg.CORSAllowedOrigins)

	if cfg.CookieSecure == nil {
		secure := strings.HasPrefix(cfg.BaseURL, "https://")
		cfg.CookieSecure = &secure
	}

	if cfg.SessionTTLDays <= 0 {
		return nil, fmt.Errorf("SESSION_TTL_DAYS must be positive, got %d", cfg.SessionTTLDays)
	}
	if cfg.RateLimitAuth <= 0 || cfg.RateLimitSync <= 0 {
		return nil, fmt.Errorf("rate limits must be positive (auth=%d, sync=%d)", cfg.RateLimitAuth, cfg.RateLimitSync)
	}

	return cfg, nil
}

// SessionTTL はセッションの有効期間を返す。
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLDays) * 24 * time.Hour
}

// CookieMaxAge はセッションCookieのMax-Age（秒）を返す。
func (c *Config) CookieMaxAge() int {
	return c.SessionTTLDays * 86400
}

// SecureCookie はセッションCookieにSecure属性を付けるかを返す。
func (c *Config) SecureCookie() bool {
	return c.CookieSecure != nil && *c.CookieSecure
}

// ListenAddr はHTTPサーバーの待ち受けアドレスを返す。
func (c *Config) ListenAddr() string {
	return ":" + c.ServerPort
}

func normalizeOrigins(raw []string) []string {
	origins := make([]string, 0, len(raw))
	for _, o := range raw {
		if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}
