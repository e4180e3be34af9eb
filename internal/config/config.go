package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Auth modes.
const (
	AuthModeDevelopment = "development"
	AuthModeJWT         = "jwt"
)

type Config struct {
	Port              string        `mapstructure:"PORT"`
	Env               string        `mapstructure:"ENV"`
	AuthMode          string        `mapstructure:"AUTH_MODE"`
	AuthIssuer        string        `mapstructure:"AUTH_ISSUER"`
	AuthAudience      string        `mapstructure:"AUTH_AUDIENCE"`
	AuthJWKSURL       string        `mapstructure:"AUTH_JWKS_URL"`
	AuthSigningKey    string        `mapstructure:"AUTH_SIGNING_KEY"`
	CORSOrigins       []string      `mapstructure:"CORS_ORIGINS"`
	ArchiveURL        string        `mapstructure:"ARCHIVE_URL"`
	DBMaxConns        int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns        int32         `mapstructure:"DB_MIN_CONNS"`
	RedisURL          string        `mapstructure:"REDIS_URL"`
	GeneratorProvider string        `mapstructure:"GENERATOR_PROVIDER"`
	GeneratorURL      string        `mapstructure:"GENERATOR_URL"`
	GeneratorModel    string        `mapstructure:"GENERATOR_MODEL"`
	GeneratorAPIKey   string        `mapstructure:"GENERATOR_API_KEY"`
	GeneratorTimeout  time.Duration `mapstructure:"GENERATOR_TIMEOUT"`
	SessionTTL        time.Duration `mapstructure:"SESSION_TTL"`
	RateLimitRPS      float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst    int           `mapstructure:"RATE_LIMIT_BURST"`
	RequestTimeout    time.Duration `mapstructure:"REQUEST_TIMEOUT"`
}

var keys = []string{
	"PORT", "ENV", "AUTH_MODE", "AUTH_ISSUER", "AUTH_AUDIENCE", "AUTH_JWKS_URL",
	"AUTH_SIGNING_KEY", "CORS_ORIGINS", "ARCHIVE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"REDIS_URL", "GENERATOR_PROVIDER", "GENERATOR_URL", "GENERATOR_MODEL",
	"GENERATOR_API_KEY", "GENERATOR_TIMEOUT", "SESSION_TTL", "RATE_LIMIT_RPS",
	"RATE_LIMIT_BURST", "REQUEST_TIMEOUT",
}

// Load reads .env (when present) and the environment, environment first.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("AUTH_MODE", "") // inferred from ENV
	v.SetDefault("CORS_ORIGINS", "http://localhost:8000")
	v.SetDefault("ARCHIVE_URL", "tsa-archive.db")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("GENERATOR_PROVIDER", "gemini")
	v.SetDefault("GENERATOR_MODEL", "gemini-3-flash-preview")
	v.SetDefault("GENERATOR_TIMEOUT", "60s")
	v.SetDefault("SESSION_TTL", "12h")
	v.SetDefault("RATE_LIMIT_RPS", 20)
	v.SetDefault("RATE_LIMIT_BURST", 40)
	v.SetDefault("REQUEST_TIMEOUT", "30s")

	for _, k := range keys {
		v.BindEnv(k)
	}

	// A missing .env file is fine.
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Environment values arrive as one comma-separated string.
	cfg.CORSOrigins = splitList(v.GetString("CORS_ORIGINS"))
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// ResolvedAuthMode returns AUTH_MODE when set; otherwise development for
// ENV=development and jwt everywhere else.
func (c *Config) ResolvedAuthMode() string {
	if c.AuthMode != "" {
		return c.AuthMode
	}
	if c.IsDev() {
		return AuthModeDevelopment
	}
	return AuthModeJWT
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	switch mode := c.ResolvedAuthMode(); mode {
	case AuthModeDevelopment:
		if c.IsProduction() {
			return fmt.Errorf("AUTH_MODE %q is not allowed when ENV=production", mode)
		}
	case AuthModeJWT:
		if c.AuthSigningKey == "" && c.AuthJWKSURL == "" {
			return fmt.Errorf("AUTH_MODE \"jwt\" needs AUTH_SIGNING_KEY or AUTH_JWKS_URL")
		}
		if c.AuthSigningKey != "" && len(c.AuthSigningKey) < 32 {
			return fmt.Errorf("AUTH_SIGNING_KEY must be at least 32 bytes, got %d", len(c.AuthSigningKey))
		}
	default:
		return fmt.Errorf("AUTH_MODE must be %q or %q, got %q", AuthModeDevelopment, AuthModeJWT, mode)
	}

	switch c.GeneratorProvider {
	case "gemini":
		if c.IsProduction() && c.GeneratorAPIKey == "" {
			return fmt.Errorf("GENERATOR_API_KEY is required for the gemini provider in production")
		}
	case "generic":
		if c.GeneratorURL == "" {
			return fmt.Errorf("GENERATOR_URL is required for the generic provider")
		}
	default:
		return fmt.Errorf("GENERATOR_PROVIDER must be \"gemini\" or \"generic\", got %q", c.GeneratorProvider)
	}

	if c.ArchiveURL == "" {
		return fmt.Errorf("ARCHIVE_URL is required")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.GeneratorTimeout <= 0 || c.SessionTTL <= 0 || c.RequestTimeout <= 0 {
		return fmt.Errorf("GENERATOR_TIMEOUT, SESSION_TTL and REQUEST_TIMEOUT must be positive")
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}
	return nil
}
