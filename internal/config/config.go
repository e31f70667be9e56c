// Package config loads the application configuration from file, environment,
// and defaults, in that order of increasing precedence for the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the resolved application configuration.
type Config struct {
	// DBPath is the local store location.
	DBPath string `mapstructure:"db_path"`

	// APIBaseURL is the backend REST root.
	APIBaseURL string `mapstructure:"api_base_url"`

	// WSURL is the realtime websocket endpoint.
	WSURL string `mapstructure:"ws_url"`

	// SyncInterval is the periodic sync trigger.
	SyncInterval time.Duration `mapstructure:"sync_interval"`

	// HTTPMaxTries bounds remote client retries per call.
	HTTPMaxTries uint `mapstructure:"http_max_tries"`

	// WSBackoffBase is the first realtime reconnect delay.
	WSBackoffBase time.Duration `mapstructure:"ws_backoff_base"`

	// WSBackoffCap is the maximum realtime reconnect delay.
	WSBackoffCap time.Duration `mapstructure:"ws_backoff_cap"`

	// WSMaxAttempts is the realtime reconnect ceiling.
	WSMaxAttempts int `mapstructure:"ws_max_attempts"`

	// LogFile receives daemon logs (rotated); empty means stderr only.
	LogFile string `mapstructure:"log_file"`
}

// Load reads the configuration. An explicit path wins; otherwise
// ~/.fintrack/config.yaml is used when present. Environment variables use
// the FINTRACK_ prefix (FINTRACK_API_BASE_URL, ...). A missing config file
// is fine; defaults cover everything but the endpoints.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("db_path", defaultDBPath())
	// Endpoint keys default to empty but must be registered, or Unmarshal
	// will not see their environment overrides.
	v.SetDefault("api_base_url", "")
	v.SetDefault("ws_url", "")
	v.SetDefault("log_file", "")
	v.SetDefault("sync_interval", "60s")
	v.SetDefault("http_max_tries", 3)
	v.SetDefault("ws_backoff_base", "1s")
	v.SetDefault("ws_backoff_cap", "30s")
	v.SetDefault("ws_max_attempts", 10)

	v.SetEnvPrefix("FINTRACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".fintrack"))
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "fintrack.db"
	}
	return filepath.Join(home, ".fintrack", "fintrack.db")
}
