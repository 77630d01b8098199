package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	envPrefix                = "HUBS"
	defaultHTTPAddress       = "0.0.0.0:8080"
	defaultDatabaseDriver    = "sqlite"
	defaultDatabasePath      = "hubs.db"
	defaultLogLevel          = "info"
	defaultIssuer            = "hubs-api"
	defaultTokenTTLMinutes   = 60
	defaultAPIBaseURL        = "http://localhost:8080"
	defaultAPITimeoutSeconds = 10
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress    string
	AllowedOrigins []string
	DatabaseDriver string
	DatabasePath   string
	DatabaseDSN    string
	SigningSecret  string
	Issuer         string
	TokenTTL       time.Duration
	CatalogFixture string
	LogLevel       string
}

// ClientConfig captures runtime configuration for the command line client.
type ClientConfig struct {
	BaseURL  string
	Token    string
	UserID   string
	Timeout  time.Duration
	LogLevel string
}

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process environment.
// Missing files are ignored and existing variables are never overridden.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("config: load %s: %w", path, err)
		}
	}
	return nil
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.driver", defaultDatabaseDriver)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("auth.issuer", defaultIssuer)
	configViper.SetDefault("auth.token_ttl_minutes", defaultTokenTTLMinutes)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("api.base_url", defaultAPIBaseURL)
	configViper.SetDefault("api.timeout_seconds", defaultAPITimeoutSeconds)

	// AutomaticEnv only resolves keys viper already knows about.
	for _, key := range []string{"http.allowed_origins", "database.dsn", "auth.signing_secret", "catalog.fixture", "api.token", "api.user_id"} {
		_ = configViper.BindEnv(key)
	}
}

// Load parses server configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:    strings.TrimSpace(configViper.GetString("http.address")),
		AllowedOrigins: splitOrigins(configViper.GetStringSlice("http.allowed_origins")),
		DatabaseDriver: strings.ToLower(strings.TrimSpace(configViper.GetString("database.driver"))),
		DatabasePath:   strings.TrimSpace(configViper.GetString("database.path")),
		DatabaseDSN:    strings.TrimSpace(configViper.GetString("database.dsn")),
		SigningSecret:  configViper.GetString("auth.signing_secret"),
		Issuer:         strings.TrimSpace(configViper.GetString("auth.issuer")),
		TokenTTL:       time.Duration(configViper.GetInt("auth.token_ttl_minutes")) * time.Minute,
		CatalogFixture: strings.TrimSpace(configViper.GetString("catalog.fixture")),
		LogLevel:       configViper.GetString("log.level"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

// splitOrigins accepts both list values and a single comma separated env value.
func splitOrigins(values []string) []string {
	var origins []string
	for _, value := range values {
		for _, origin := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(origin); trimmed != "" {
				origins = append(origins, trimmed)
			}
		}
	}
	return origins
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if c.Issuer == "" {
		return fmt.Errorf("auth.issuer is required")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl_minutes must be positive")
	}
	switch c.DatabaseDriver {
	case "sqlite":
		if c.DatabasePath == "" {
			return fmt.Errorf("database.path is required")
		}
	case "postgres":
		if c.DatabaseDSN == "" {
			return fmt.Errorf("database.dsn is required for postgres")
		}
	default:
		return fmt.Errorf("database.driver %q is not supported", c.DatabaseDriver)
	}
	return nil
}

// LoadClient parses client configuration from viper.
func LoadClient(configViper *viper.Viper) (ClientConfig, error) {
	cfg := ClientConfig{
		BaseURL:  strings.TrimRight(strings.TrimSpace(configViper.GetString("api.base_url")), "/"),
		Token:    strings.TrimSpace(configViper.GetString("api.token")),
		UserID:   strings.TrimSpace(configViper.GetString("api.user_id")),
		Timeout:  time.Duration(configViper.GetInt("api.timeout_seconds")) * time.Second,
		LogLevel: configViper.GetString("log.level"),
	}

	if cfg.BaseURL == "" {
		return ClientConfig{}, fmt.Errorf("api.base_url is required")
	}
	if cfg.Token == "" {
		return ClientConfig{}, fmt.Errorf("api.token is required")
	}
	if cfg.Timeout <= 0 {
		return ClientConfig{}, fmt.Errorf("api.timeout_seconds must be positive")
	}
	return cfg, nil
}
