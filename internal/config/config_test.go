package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `
app:
  env: development
store:
  driver: memory
otp:
  delivery: console
jwt:
  access_secret: access-secret-0123456789abcdef0123456789
  refresh_secret: refresh-secret-0123456789abcdef012345678
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.OTP.ExpiryMinutes)
	assert.Equal(t, 5, cfg.OTP.MaxAttempts)
	assert.Equal(t, 1, cfg.OTP.PerMinuteLimit)
	assert.Equal(t, 15*time.Minute, cfg.JWT.AccessTTL)
	assert.Equal(t, 30*24*time.Hour, cfg.JWT.RefreshTTL)
	assert.Equal(t, 5*time.Second, cfg.App.DependencyTimeout)
	assert.Equal(t, "revoke_family", cfg.Session.ReuseDetection)
	assert.True(t, cfg.DeliveryBypass())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("SAMADHAAN_OTP_MAX_ATTEMPTS", "3")
	t.Setenv("SAMADHAAN_JWT_ACCESS_TTL", "10m")
	t.Setenv("SAMADHAAN_SERVER_PORT", "9090")

	cfg, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.OTP.MaxAttempts)
	assert.Equal(t, 10*time.Minute, cfg.JWT.AccessTTL)
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestLoad_MissingFileUsesEnvOnly(t *testing.T) {
	t.Setenv("SAMADHAAN_STORE_DRIVER", "memory")
	t.Setenv("SAMADHAAN_JWT_ACCESS_SECRET", "access-secret-0123456789abcdef0123456789")
	t.Setenv("SAMADHAAN_JWT_REFRESH_SECRET", "refresh-secret-0123456789abcdef012345678")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, StoreDriverMemory, cfg.Store.Driver)
}

func TestValidate_ProductionRejectsDeliveryBypass(t *testing.T) {
	cases := map[string]func(c *Config){
		"console delivery": func(c *Config) { c.OTP.Delivery = DeliveryConsole },
		"file delivery":    func(c *Config) { c.OTP.Delivery = DeliveryFile },
		"mobizon dry run": func(c *Config) {
			c.OTP.Delivery = DeliveryMobizon
			c.Mobizon.APIKey = "real-key"
			c.Mobizon.DryRun = true
		},
		"mobizon without key": func(c *Config) {
			c.OTP.Delivery = DeliveryMobizon
			c.Mobizon.APIKey = ""
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := productionConfig()
			mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "delivery bypass")
		})
	}
}

func TestValidate_ProductionAcceptsRealGateway(t *testing.T) {
	require.NoError(t, productionConfig().Validate())
}

func TestValidate_SecretsMustDiffer(t *testing.T) {
	cfg := productionConfig()
	cfg.JWT.RefreshSecret = cfg.JWT.AccessSecret
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must differ")
}

func TestValidate_ShortSecrets(t *testing.T) {
	cfg := productionConfig()
	cfg.JWT.AccessSecret = "short"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access_secret")
}

func productionConfig() *Config {
	cfg := &Config{}
	cfg.App.Env = EnvProduction
	cfg.Database.DSN = "postgres://localhost/samadhaan"
	cfg.OTP.Delivery = DeliveryMobizon
	cfg.Mobizon.APIKey = "live-key"
	cfg.JWT.AccessSecret = "access-secret-0123456789abcdef0123456789"
	cfg.JWT.RefreshSecret = "refresh-secret-0123456789abcdef012345678"
	cfg.ApplyDefaults()
	return cfg
}
