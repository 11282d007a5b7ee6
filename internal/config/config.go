package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix                  = "FOODSHARE"
	defaultHTTPAddress         = "0.0.0.0:8080"
	defaultDatabaseDriver      = "sqlite"
	defaultDatabaseDSN         = "foodshare.db"
	defaultLogLevel            = "info"
	defaultTokenIssuer         = "foodshare-auth"
	defaultTokenAudience       = "foodshare-api"
	defaultTokenTTLMinutes     = 60
	defaultFeedBufferSize      = 64
	defaultExpirySweepInterval = 10 * time.Minute
)

// AppConfig captures runtime configuration for the API server and maintenance commands.
type AppConfig struct {
	HTTPAddress         string
	DatabaseDriver      string
	DatabaseDSN         string
	LogLevel            string
	SigningSecret       string
	TokenIssuer         string
	TokenAudience       string
	TokenTTL            time.Duration
	FeedBufferSize      int
	ExpirySweepInterval time.Duration
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
	configViper.SetDefault("database.dsn", defaultDatabaseDSN)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("auth.issuer", defaultTokenIssuer)
	configViper.SetDefault("auth.audience", defaultTokenAudience)
	configViper.SetDefault("auth.token_ttl_minutes", defaultTokenTTLMinutes)
	configViper.SetDefault("feed.buffer_size", defaultFeedBufferSize)
	configViper.SetDefault("ledger.expiry_sweep_interval", defaultExpirySweepInterval)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:         configViper.GetString("http.address"),
		DatabaseDriver:      strings.ToLower(strings.TrimSpace(configViper.GetString("database.driver"))),
		DatabaseDSN:         configViper.GetString("database.dsn"),
		LogLevel:            configViper.GetString("log.level"),
		SigningSecret:       configViper.GetString("auth.signing_secret"),
		TokenIssuer:         configViper.GetString("auth.issuer"),
		TokenAudience:       configViper.GetString("auth.audience"),
		TokenTTL:            time.Duration(configViper.GetInt("auth.token_ttl_minutes")) * time.Minute,
		FeedBufferSize:      configViper.GetInt("feed.buffer_size"),
		ExpirySweepInterval: configViper.GetDuration("ledger.expiry_sweep_interval"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.DatabaseDSN) == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.DatabaseDriver != "sqlite" && c.DatabaseDriver != "postgres" {
		return fmt.Errorf("database.driver must be sqlite or postgres, got %q", c.DatabaseDriver)
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl_minutes must be positive")
	}
	if c.FeedBufferSize <= 0 {
		return fmt.Errorf("feed.buffer_size must be positive")
	}
	if c.ExpirySweepInterval <= 0 {
		return fmt.Errorf("ledger.expiry_sweep_interval must be positive")
	}
	return nil
}
