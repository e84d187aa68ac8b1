// Package config loads pantry settings from config.yaml, .env files and
// PANTRY_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/mesh-intelligence/pantry/internal/logging"
	"github.com/mesh-intelligence/pantry/internal/paths"
	"github.com/mesh-intelligence/pantry/pkg/types"
)

const (
	configFileName = "config"
	configFileType = "yaml"
	envPrefix      = "pantry"
)

// Config keys.
const (
	KeyHTTPAddr           = "http.addr"
	KeyHTTPReadTimeout    = "http.read_timeout"
	KeyHTTPWriteTimeout   = "http.write_timeout"
	KeyHTTPCORSOrigin     = "http.cors_origin"
	KeyDatabaseBackend    = "database.backend"
	KeyDatabaseDataDir    = "database.data_dir"
	KeyDatabaseDSN        = "database.dsn"
	KeyAuthSecretFile     = "auth.secret_file"
	KeyAuthTokenTTL       = "auth.token_ttl"
	KeyAdminPath          = "admin.path"
	KeyResourcesDir       = "resources.dir"
	KeyStorefrontCurrency = "storefront.currency"
	KeyStorefrontCartTTL  = "storefront.cart_ttl"
	KeyLogLevel           = "log.level"
	KeyLogFormat          = "log.format"
)

// defaultConfigYAML is written to config.yaml on first run.
const defaultConfigYAML = `# pantry configuration
# Every key may be overridden by an environment variable, e.g.
# PANTRY_HTTP_ADDR=:9090 or PANTRY_DATABASE_DSN=postgres://...
# Relative paths below are resolved against this directory and a
# leading ~ expands to the home directory.

http:
  addr: ":8080"
  read_timeout: 10s
  write_timeout: 30s
  # origin allowed to call the REST API from a browser, e.g.
  # https://shop.example.com or *; empty disables CORS
  cors_origin: ""

database:
  # sqlite or postgres
  backend: sqlite
  # data_dir:
  # dsn:

auth:
  secret_file: jwt.key
  token_ttl: 24h

admin:
  path: /admin

resources:
  dir: resources

storefront:
  currency: USD
  cart_ttl: 2h

log:
  level: info
  # console or json
  format: console
`

// Invalid configuration values.
var (
	ErrAdminPath = errors.New("admin.path must start with / and must not be / or /api")
	ErrDuration  = errors.New("duration must be positive")
	ErrCurrency  = errors.New("storefront.currency must be a three-letter code")
)

// HTTP holds listener settings.
type HTTP struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CORSOrigin   string
}

// Auth holds token settings.
type Auth struct {
	SecretFile string
	TokenTTL   time.Duration
}

// Storefront holds shop settings.
type Storefront struct {
	Currency string
	CartTTL  time.Duration
}

// Config is the resolved pantry configuration.
type Config struct {
	ConfigDir    string
	HTTP         HTTP
	Database     types.Config
	Auth         Auth
	AdminPath    string
	ResourcesDir string
	Storefront   Storefront
	Log          logging.Config
}

// Options selects where configuration is read from. Empty fields fall back
// to the environment and platform defaults (see package paths).
type Options struct {
	ConfigDir string
	DataDir   string
	// SkipEnvFiles disables loading .env and .env.local from the working
	// directory.
	SkipEnvFiles bool
}

// Load resolves the config directory, writes a default config.yaml there on
// first run and returns the merged configuration. Precedence, highest first:
// flags (Options), PANTRY_* environment variables, config.yaml, defaults.
func Load(opts Options) (*Config, error) {
	if !opts.SkipEnvFiles {
		_ = godotenv.Load(".env")
		_ = godotenv.Load(".env.local")
	}

	configDir, err := paths.ResolveConfigDir(opts.ConfigDir)
	if err != nil {
		return nil, fmt.Errorf("resolve config dir: %w", err)
	}
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure config dir: %w", err)
	}
	if err := ensureDefaultConfigFile(configDir); err != nil {
		return nil, fmt.Errorf("ensure default config: %w", err)
	}

	v := newViper(configDir)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return fromViper(v, configDir, opts.DataDir)
}

// newViper returns a viper instance with defaults, the config file location
// and PANTRY_ environment binding.
func newViper(configDir string) *viper.Viper {
	v := viper.New()
	v.SetDefault(KeyHTTPAddr, ":8080")
	v.SetDefault(KeyHTTPReadTimeout, "10s")
	v.SetDefault(KeyHTTPWriteTimeout, "30s")
	v.SetDefault(KeyHTTPCORSOrigin, "")
	v.SetDefault(KeyDatabaseBackend, types.BackendSQLite)
	v.SetDefault(KeyDatabaseDataDir, "")
	v.SetDefault(KeyDatabaseDSN, "")
	v.SetDefault(KeyAuthSecretFile, paths.SecretFileName)
	v.SetDefault(KeyAuthTokenTTL, "24h")
	v.SetDefault(KeyAdminPath, "/admin")
	v.SetDefault(KeyResourcesDir, paths.ResourcesDirName)
	v.SetDefault(KeyStorefrontCurrency, "USD")
	v.SetDefault(KeyStorefrontCartTTL, "2h")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, logging.FormatConsole)

	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(configDir)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func fromViper(v *viper.Viper, configDir, dataDirFlag string) (*Config, error) {
	dataDir, err := paths.ResolveDataDir(dataDirFlag, v.GetString(KeyDatabaseDataDir), configDir)
	if err != nil {
		return nil, fmt.Errorf("resolve data dir: %w", err)
	}
	secretFile, err := paths.SecretFile(configDir, v.GetString(KeyAuthSecretFile))
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", KeyAuthSecretFile, err)
	}
	resourcesDir, err := paths.ResourcesDir(configDir, v.GetString(KeyResourcesDir))
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", KeyResourcesDir, err)
	}

	cfg := &Config{
		ConfigDir: configDir,
		HTTP: HTTP{
			Addr:         v.GetString(KeyHTTPAddr),
			ReadTimeout:  v.GetDuration(KeyHTTPReadTimeout),
			WriteTimeout: v.GetDuration(KeyHTTPWriteTimeout),
			CORSOrigin:   v.GetString(KeyHTTPCORSOrigin),
		},
		Database: types.Config{
			Backend: v.GetString(KeyDatabaseBackend),
			DataDir: dataDir,
			DSN:     v.GetString(KeyDatabaseDSN),
		},
		Auth: Auth{
			SecretFile: secretFile,
			TokenTTL:   v.GetDuration(KeyAuthTokenTTL),
		},
		AdminPath:    strings.TrimSuffix(v.GetString(KeyAdminPath), "/"),
		ResourcesDir: resourcesDir,
		Storefront: Storefront{
			Currency: strings.ToUpper(v.GetString(KeyStorefrontCurrency)),
			CartTTL:  v.GetDuration(KeyStorefrontCartTTL),
		},
		Log: logging.Config{
			Level:  v.GetString(KeyLogLevel),
			Format: v.GetString(KeyLogFormat),
		},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the values that have no sensible fallback.
func (c *Config) Validate() error {
	if err := c.Database.Validate(); err != nil {
		return err
	}
	if !strings.HasPrefix(c.AdminPath, "/") || c.AdminPath == "/api" || strings.HasPrefix(c.AdminPath, "/api/") {
		return fmt.Errorf("%w: %q", ErrAdminPath, c.AdminPath)
	}
	for key, d := range map[string]time.Duration{
		KeyHTTPReadTimeout:   c.HTTP.ReadTimeout,
		KeyHTTPWriteTimeout:  c.HTTP.WriteTimeout,
		KeyAuthTokenTTL:      c.Auth.TokenTTL,
		KeyStorefrontCartTTL: c.Storefront.CartTTL,
	} {
		if d <= 0 {
			return fmt.Errorf("%s: %w", key, ErrDuration)
		}
	}
	if len(c.Storefront.Currency) != 3 {
		return fmt.Errorf("%w: %q", ErrCurrency, c.Storefront.Currency)
	}
	return nil
}

// Path returns the config.yaml path inside configDir.
func Path(configDir string) string {
	return filepath.Join(configDir, paths.ConfigFileName)
}

// ensureDefaultConfigFile creates a default config.yaml if the file does not
// exist in the config directory.
func ensureDefaultConfigFile(configDir string) error {
	path := Path(configDir)

	_, err := os.Stat(path)
	if err == nil {
		return nil
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("stat config file: %w", err)
	}
	return os.WriteFile(path, []byte(defaultConfigYAML), 0o644)
}

// DefaultYAML returns the content written to a fresh config.yaml.
func DefaultYAML() string {
	return defaultConfigYAML
}
