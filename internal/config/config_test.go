package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testViper(t *testing.T) *viper.Viper {
	t.Helper()
	v := viper.New()
	v.SetConfigName("riskguard-missing")
	v.SetConfigType("yaml")
	v.AddConfigPath(t.TempDir())
	return v
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("RISKGUARD_SECURITY_TOKENS_HMAC_SECRET", "shh")

	cfg, err := load(testViper(t))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.False(t, cfg.Server.IsProduction())
	assert.False(t, cfg.Server.TrustProxyHeaders)
	assert.Equal(t, "shh", cfg.Security.Tokens.HMACSecret)
	assert.Equal(t, "hostedid", cfg.Security.Tokens.Issuer)
	assert.Equal(t, 30*time.Second, cfg.Security.Tokens.Leeway)
	assert.Equal(t, 120, cfg.Security.RateLimiting.EvaluateLimit)
	assert.Equal(t, time.Minute, cfg.Security.RateLimiting.EvaluateWindow)
	assert.Equal(t, "rg_device", cfg.Cookie.DeviceName)
	assert.Equal(t, 400*24*time.Hour, cfg.Cookie.DeviceMaxAge)
	assert.Equal(t, 300*time.Millisecond, cfg.Risk.SignalTimeout)
	assert.Equal(t, 5*time.Second, cfg.Risk.AuditTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Risk.RegistryTimeout)
	assert.Equal(t, "riskguard:alerts", cfg.Alert.Channel)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("RISKGUARD_SECURITY_TOKENS_HMAC_SECRET", "shh")
	t.Setenv("RISKGUARD_SERVER_ENVIRONMENT", "Production")
	t.Setenv("RISKGUARD_SERVER_TRUST_PROXY_HEADERS", "true")
	t.Setenv("RISKGUARD_RISK_SIGNAL_TIMEOUT", "150ms")
	t.Setenv("RISKGUARD_DATABASE_HOST", "db.internal")

	cfg, err := load(testViper(t))
	require.NoError(t, err)

	assert.True(t, cfg.Server.IsProduction())
	assert.True(t, cfg.Server.TrustProxyHeaders)
	assert.Equal(t, 150*time.Millisecond, cfg.Risk.SignalTimeout)
	assert.Contains(t, cfg.Database.DSN(), "host=db.internal")
}

func TestLoad_RequiresVerificationKeys(t *testing.T) {
	_, err := load(testViper(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "security.tokens")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Security: SecurityConfig{Tokens: TokenConfig{
				Ed25519PublicKeys: map[string]string{"k1": "AAAA"},
			}},
			Cookie: CookieConfig{DeviceName: "rg_device"},
			Risk:   RiskConfig{SignalTimeout: time.Second, AuditTimeout: time.Second, RegistryTimeout: time.Second},
		}
	}

	require.NoError(t, valid().Validate())

	cfg := valid()
	cfg.Risk.SignalTimeout = 0
	assert.ErrorContains(t, cfg.Validate(), "signal_timeout")

	cfg = valid()
	cfg.Risk.AuditTimeout = -time.Second
	assert.ErrorContains(t, cfg.Validate(), "audit_timeout")

	cfg = valid()
	cfg.Risk.RegistryTimeout = 0
	assert.ErrorContains(t, cfg.Validate(), "registry_timeout")

	cfg = valid()
	cfg.Cookie.DeviceName = ""
	assert.ErrorContains(t, cfg.Validate(), "device_name")

	cfg = valid()
	cfg.Security.Tokens.Ed25519PublicKeys = nil
	cfg.Security.Tokens.HybridPublicKeys = map[string]HybridKeyConfig{"h1": {}}
	assert.NoError(t, cfg.Validate())
}
