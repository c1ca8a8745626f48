package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("JWT_SECRET", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "jwt", cfg.Auth.Mode)
	assert.Equal(t, 800, cfg.Pipeline.MaxWidth)
	assert.Equal(t, "whole_image", cfg.Pipeline.ColorMode)
	assert.Equal(t, int64(100), cfg.RateLimit.Quota)
	assert.Equal(t, "minio", cfg.Storage.Backend)
	assert.Empty(t, cfg.HTTP.TrustedProxies)
}

func TestLoadTrustedProxies(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("HTTP_TRUSTED_PROXIES", "10.0.0.0/8,127.0.0.1")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.0/8", "127.0.0.1"}, cfg.HTTP.TrustedProxies)

	t.Setenv("HTTP_TRUSTED_PROXIES", "load-balancer")
	_, err = Load()
	assert.Error(t, err)
}

func TestLoadRequiresSecretInJWTMode(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("AUTH_MODE", "jwt")
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRequiresRemoteURLInRemoteMode(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("AUTH_MODE", "remote")
	t.Setenv("AUTH_REMOTE_URL", "")

	_, err := Load()
	assert.Error(t, err)

	t.Setenv("AUTH_REMOTE_URL", "https://auth.example.com/auth/v1")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "remote", cfg.Auth.Mode)
}

func TestLoadRejectsUnknownColorMode(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("PIPELINE_COLOR_MODE", "average")

	_, err := Load()
	assert.Error(t, err)
}
