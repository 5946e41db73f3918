package app

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		Addr:        defaultAddr,
		DatabaseURL: "postgres://localhost/backoffice",
		Timezone:    "Europe/Brussels",
		Auth:        AuthConfig{Secret: "0123456789abcdef"},
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "no database", mutate: func(c *Config) { c.DatabaseURL = "" }, wantErr: "database URL"},
		{name: "short secret", mutate: func(c *Config) { c.Auth.Secret = "short" }, wantErr: "auth secret"},
		{name: "bad timezone", mutate: func(c *Config) { c.Timezone = "Mars/Olympus" }, wantErr: "timezone"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestApplyPlatformDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://platform/db")
	t.Setenv("PORT", "9000")

	cfg := Config{Addr: defaultAddr}
	cfg.applyPlatformDefaults()
	assert.Equal(t, "postgres://platform/db", cfg.DatabaseURL)
	assert.Equal(t, "0.0.0.0:9000", cfg.Addr)

	// Explicit settings win.
	cfg = Config{Addr: "127.0.0.1:7000", DatabaseURL: "postgres://explicit/db"}
	cfg.applyPlatformDefaults()
	assert.Equal(t, "postgres://explicit/db", cfg.DatabaseURL)
	assert.Equal(t, "127.0.0.1:7000", cfg.Addr)
}

func TestConfigLocation(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, "Europe/Brussels", cfg.Location().String())

	cfg.Timezone = "nowhere"
	assert.Equal(t, "UTC", cfg.Location().String())
}

func TestSkipRateLimit(t *testing.T) {
	for path, want := range map[string]bool{
		"/livez":            true,
		"/readyz":           true,
		"/api/events":       true,
		"/api/orders":       false,
		"/api/products/p-1": false,
		"/api/auth/admin":   false,
	} {
		r := httptest.NewRequest("GET", path, nil)
		assert.Equal(t, want, skipRateLimit(r), path)
	}
}
