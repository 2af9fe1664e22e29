package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Log      LogConfig      `mapstructure:"log"`
	Security SecurityConfig `mapstructure:"security"`
	Cookie   CookieConfig   `mapstructure:"cookie"`
	Risk     RiskConfig     `mapstructure:"risk"`
	Alert    AlertConfig    `mapstructure:"alert"`
	CORS     CORSConfig     `mapstructure:"cors"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	// Environment is "development", "staging" or "production". Production hides
	// internal error details from response bodies.
	Environment string `mapstructure:"environment"`
	// TrustProxyHeaders makes the client IP come from X-Forwarded-For / X-Real-IP.
	// Only enable behind a proxy that overwrites these headers.
	TrustProxyHeaders bool `mapstructure:"trust_proxy_headers"`
	TLS               struct {
		Enabled  bool   `mapstructure:"enabled"`
		CertFile string `mapstructure:"cert_file"`
		KeyFile  string `mapstructure:"key_file"`
	} `mapstructure:"tls"`
}

// IsProduction reports whether the server runs in production mode
func (c ServerConfig) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Name           string `mapstructure:"name"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	SSLMode        string `mapstructure:"ssl_mode"`
	MaxConnections int    `mapstructure:"max_connections"`
}

// DSN returns the PostgreSQL connection string
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	Tokens       TokenConfig        `mapstructure:"tokens"`
	RateLimiting RateLimitingConfig `mapstructure:"rate_limiting"`
}

// TokenConfig describes how externally issued session tokens are verified
type TokenConfig struct {
	// Issuer must match the "iss" claim of every accepted token
	Issuer string `mapstructure:"issuer"`
	// HMACSecret enables HS256 verification when non-empty
	HMACSecret string `mapstructure:"hmac_secret"`
	// Ed25519PublicKeys maps key IDs to base64 (std) encoded Ed25519 public keys
	Ed25519PublicKeys map[string]string `mapstructure:"ed25519_public_keys"`
	// HybridPublicKeys maps key IDs to the Ed25519 + ML-DSA-65 key pairs used
	// for hybrid-signed tokens
	HybridPublicKeys map[string]HybridKeyConfig `mapstructure:"hybrid_public_keys"`
	// Leeway tolerates clock skew on exp/nbf/iat
	Leeway time.Duration `mapstructure:"leeway"`
}

// HybridKeyConfig holds the base64 (std) encoded halves of a hybrid public key
type HybridKeyConfig struct {
	Ed25519 string `mapstructure:"ed25519"`
	MLDSA65 string `mapstructure:"mldsa65"`
}

// RateLimitingConfig holds rate limiting configuration
type RateLimitingConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	EvaluateLimit  int           `mapstructure:"evaluate_limit"`
	EvaluateWindow time.Duration `mapstructure:"evaluate_window"`
}

// CookieConfig holds cookie configuration
type CookieConfig struct {
	// DeviceName is the name of the first-party device token cookie
	DeviceName string `mapstructure:"device_name"`
	// DeviceMaxAge is how long the device cookie lives in the browser
	DeviceMaxAge time.Duration `mapstructure:"device_max_age"`
	// SessionName is the cookie holding the session token when no Authorization header is sent
	SessionName string `mapstructure:"session_name"`
	// Domain is an optional cookie domain; empty keeps cookies host-only
	Domain string `mapstructure:"domain"`
	// Secure sets the Secure flag on cookies (should be true in production with HTTPS)
	Secure bool `mapstructure:"secure"`
	// SameSite is "lax" or "strict"; "none" is not allowed for the device cookie
	SameSite string `mapstructure:"same_site"`
}

// RiskConfig tunes the scoring engine
type RiskConfig struct {
	// SignalTimeout bounds each individual signal read
	SignalTimeout time.Duration `mapstructure:"signal_timeout"`
	// AuditTimeout bounds the asynchronous ledger append
	AuditTimeout time.Duration `mapstructure:"audit_timeout"`
	// RegistryTimeout bounds the device registry upsert done before scoring
	RegistryTimeout time.Duration `mapstructure:"registry_timeout"`
}

// AlertConfig holds the operator alert channel configuration
type AlertConfig struct {
	// Channel is the Redis pub/sub channel for alerts; empty logs them only
	Channel string `mapstructure:"channel"`
}

// CORSConfig holds allowed browser origins
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Load reads configuration from file and environment variables
func Load() (*Config, error) {
	v := viper.New()

	// Set config file name and paths
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/riskguard")

	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	// Bind environment variables
	v.SetEnvPrefix("RISKGUARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects configurations the service cannot run with
func (c *Config) Validate() error {
	t := c.Security.Tokens
	if t.HMACSecret == "" && len(t.Ed25519PublicKeys) == 0 && len(t.HybridPublicKeys) == 0 {
		return fmt.Errorf("invalid config: security.tokens needs hmac_secret, ed25519_public_keys or hybrid_public_keys")
	}
	if c.Risk.SignalTimeout <= 0 {
		return fmt.Errorf("invalid config: risk.signal_timeout must be positive")
	}
	if c.Risk.AuditTimeout <= 0 {
		return fmt.Errorf("invalid config: risk.audit_timeout must be positive")
	}
	if c.Risk.RegistryTimeout <= 0 {
		return fmt.Errorf("invalid config: risk.registry_timeout must be positive")
	}
	if c.Cookie.DeviceName == "" {
		return fmt.Errorf("invalid config: cookie.device_name is required")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.trust_proxy_headers", false)
	v.SetDefault("server.tls.enabled", false)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "riskguard")
	v.SetDefault("database.user", "riskguard")
	v.SetDefault("database.password", "")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_connections", 25)

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Security defaults
	v.SetDefault("security.tokens.issuer", "hostedid")
	v.SetDefault("security.tokens.hmac_secret", "")
	v.SetDefault("security.tokens.leeway", "30s")

	v.SetDefault("security.rate_limiting.enabled", true)
	v.SetDefault("security.rate_limiting.evaluate_limit", 120)
	v.SetDefault("security.rate_limiting.evaluate_window", "1m")

	// Cookie defaults
	v.SetDefault("cookie.device_name", "rg_device")
	v.SetDefault("cookie.device_max_age", "9600h") // 400 days, the browser cap
	v.SetDefault("cookie.session_name", "hostedid_access_token")
	v.SetDefault("cookie.domain", "")
	v.SetDefault("cookie.secure", false)
	v.SetDefault("cookie.same_site", "lax")

	// Risk engine defaults
	v.SetDefault("risk.signal_timeout", "300ms")
	v.SetDefault("risk.audit_timeout", "5s")
	v.SetDefault("risk.registry_timeout", "500ms")

	// Alert defaults
	v.SetDefault("alert.channel", "riskguard:alerts")

	v.SetDefault("cors.allowed_origins", []string{"http://localhost:3000", "http://localhost:5173"})
}
