package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	envPrefix               = "TABLETALLY"
	defaultHTTPAddress      = "0.0.0.0:8080"
	defaultDatabaseDriver   = "sqlite"
	defaultDatabaseDSN      = "tabletally.db"
	defaultLogLevel         = "info"
	defaultEnvironment      = "production"
	defaultSessionIssuer    = "tabletally-auth"
	defaultCookieName       = "app_session"
	defaultConfidenceMedium = 5
	defaultConfidenceHigh   = 15
	environmentDevelopment  = "development"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress string
	// AllowedOrigins lists the browser origins allowed to send credentialed requests.
	AllowedOrigins    []string
	DatabaseDriver    string
	DatabaseDSN       string
	LogLevel          string
	Environment       string
	AuthSigningSecret string
	AuthIssuer        string
	AuthCookieName    string
	ConfidenceMedium  int
	ConfidenceHigh    int
}

// Development reports whether contract violations should surface as errors instead of fallbacks.
func (c AppConfig) Development() bool {
	return c.Environment == environmentDevelopment
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
	configViper.SetDefault("http.allowed_origins", []string{})
	configViper.SetDefault("database.driver", defaultDatabaseDriver)
	configViper.SetDefault("database.dsn", defaultDatabaseDSN)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("app.environment", defaultEnvironment)
	configViper.SetDefault("auth.issuer", defaultSessionIssuer)
	configViper.SetDefault("auth.cookie_name", defaultCookieName)
	configViper.SetDefault("insights.confidence_medium", defaultConfidenceMedium)
	configViper.SetDefault("insights.confidence_high", defaultConfidenceHigh)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:       strings.TrimSpace(configViper.GetString("http.address")),
		AllowedOrigins:    splitOrigins(configViper.GetStringSlice("http.allowed_origins")),
		DatabaseDriver:    strings.ToLower(strings.TrimSpace(configViper.GetString("database.driver"))),
		DatabaseDSN:       strings.TrimSpace(configViper.GetString("database.dsn")),
		LogLevel:          configViper.GetString("log.level"),
		Environment:       strings.ToLower(strings.TrimSpace(configViper.GetString("app.environment"))),
		AuthSigningSecret: configViper.GetString("auth.signing_secret"),
		AuthIssuer:        strings.TrimSpace(configViper.GetString("auth.issuer")),
		AuthCookieName:    strings.TrimSpace(configViper.GetString("auth.cookie_name")),
		ConfidenceMedium:  configViper.GetInt("insights.confidence_medium"),
		ConfidenceHigh:    configViper.GetInt("insights.confidence_high"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.AuthSigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if c.AuthIssuer == "" {
		return fmt.Errorf("auth.issuer is required")
	}
	if c.AuthCookieName == "" {
		return fmt.Errorf("auth.cookie_name is required")
	}
	if c.DatabaseDSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	switch c.DatabaseDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database.driver must be sqlite or postgres, got %q", c.DatabaseDriver)
	}
	for _, origin := range c.AllowedOrigins {
		if strings.Contains(origin, "*") || (!strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://")) {
			return fmt.Errorf("http.allowed_origins entries must be exact http or https origins, got %q", origin)
		}
	}
	if c.ConfidenceMedium <= 0 || c.ConfidenceHigh <= c.ConfidenceMedium {
		return fmt.Errorf("insights confidence thresholds must satisfy 0 < medium < high, got %d and %d", c.ConfidenceMedium, c.ConfidenceHigh)
	}
	return nil
}

// splitOrigins accepts list values as well as comma separated env values.
func splitOrigins(values []string) []string {
	var origins []string
	for _, value := range values {
		for _, origin := range strings.Split(value, ",") {
			origin = strings.TrimSuffix(strings.TrimSpace(origin), "/")
			if origin != "" {
				origins = append(origins, origin)
			}
		}
	}
	return origins
}
