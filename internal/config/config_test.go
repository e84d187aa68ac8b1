package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/pantry/internal/paths"
	"github.com/mesh-intelligence/pantry/pkg/types"
)

func load(t *testing.T, dir string) (*Config, error) {
	t.Helper()
	return Load(Options{ConfigDir: dir, DataDir: filepath.Join(dir, "data"), SkipEnvFiles: true})
}

func TestLoad_WritesDefaultFile(t *testing.T) {
	dir := t.TempDir()

	cfg, err := load(t, dir)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, paths.ConfigFileName))
	require.NoError(t, err)
	assert.Equal(t, DefaultYAML(), string(data))

	assert.Equal(t, dir, cfg.ConfigDir)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, 10*time.Second, cfg.HTTP.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.HTTP.WriteTimeout)
	assert.Empty(t, cfg.HTTP.CORSOrigin)
	assert.Equal(t, types.BackendSQLite, cfg.Database.Backend)
	assert.Equal(t, filepath.Join(dir, "data"), cfg.Database.DataDir)
	assert.Equal(t, filepath.Join(dir, paths.SecretFileName), cfg.Auth.SecretFile)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, "/admin", cfg.AdminPath)
	assert.Equal(t, filepath.Join(dir, paths.ResourcesDirName), cfg.ResourcesDir)
	assert.Equal(t, "USD", cfg.Storefront.Currency)
	assert.Equal(t, 2*time.Hour, cfg.Storefront.CartTTL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestLoad_KeepsExistingFile(t *testing.T) {
	dir := t.TempDir()
	custom := `http:
  addr: "127.0.0.1:9000"
admin:
  path: /backoffice/
storefront:
  currency: eur
auth:
  secret_file: /run/secrets/jwt
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, paths.ConfigFileName), []byte(custom), 0o644))

	cfg, err := load(t, dir)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cfg.HTTP.Addr)
	assert.Equal(t, "/backoffice", cfg.AdminPath)
	assert.Equal(t, "EUR", cfg.Storefront.Currency)
	assert.Equal(t, "/run/secrets/jwt", cfg.Auth.SecretFile)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL, "unset keys keep defaults")

	data, err := os.ReadFile(filepath.Join(dir, paths.ConfigFileName))
	require.NoError(t, err)
	assert.Equal(t, custom, string(data))
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("PANTRY_HTTP_ADDR", ":9090")
	t.Setenv("PANTRY_LOG_LEVEL", "debug")
	t.Setenv("PANTRY_STOREFRONT_CART_TTL", "30m")
	t.Setenv("PANTRY_HTTP_CORS_ORIGIN", "https://shop.example.com")

	cfg, err := load(t, dir)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 30*time.Minute, cfg.Storefront.CartTTL)
	assert.Equal(t, "https://shop.example.com", cfg.HTTP.CORSOrigin)
}

func TestLoad_DataDirPrecedence(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, paths.ConfigFileName),
		[]byte("database:\n  data_dir: /from/config\n"), 0o644))

	cfg, err := Load(Options{ConfigDir: dir, SkipEnvFiles: true})
	require.NoError(t, err)
	assert.Equal(t, "/from/config", cfg.Database.DataDir)

	cfg, err = Load(Options{ConfigDir: dir, DataDir: "/from/flag", SkipEnvFiles: true})
	require.NoError(t, err)
	assert.Equal(t, "/from/flag", cfg.Database.DataDir)
}

func TestLoad_RelativePathsFollowConfigDir(t *testing.T) {
	dir := t.TempDir()
	home := t.TempDir()
	t.Setenv("HOME", home)
	require.NoError(t, os.WriteFile(filepath.Join(dir, paths.ConfigFileName), []byte(
		"database:\n  data_dir: db\nauth:\n  secret_file: ~/keys/jwt.key\nresources:\n  dir: defs\n"), 0o644))

	cfg, err := Load(Options{ConfigDir: dir, SkipEnvFiles: true})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "db"), cfg.Database.DataDir)
	assert.Equal(t, filepath.Join(home, "keys", "jwt.key"), cfg.Auth.SecretFile)
	assert.Equal(t, filepath.Join(dir, "defs"), cfg.ResourcesDir)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr error
	}{
		{"postgres without dsn", map[string]string{"PANTRY_DATABASE_BACKEND": "postgres"}, types.ErrDSNRequired},
		{"unknown backend", map[string]string{"PANTRY_DATABASE_BACKEND": "mysql"}, types.ErrBackendUnknown},
		{"admin at root", map[string]string{"PANTRY_ADMIN_PATH": "/"}, ErrAdminPath},
		{"admin under api", map[string]string{"PANTRY_ADMIN_PATH": "/api"}, ErrAdminPath},
		{"relative admin path", map[string]string{"PANTRY_ADMIN_PATH": "admin"}, ErrAdminPath},
		{"zero token ttl", map[string]string{"PANTRY_AUTH_TOKEN_TTL": "0s"}, ErrDuration},
		{"bad currency", map[string]string{"PANTRY_STOREFRONT_CURRENCY": "dollars"}, ErrCurrency},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := load(t, t.TempDir())
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
