// Package config loads daemon configuration from file, environment and
// defaults, in that order of increasing precedence for the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full daemon configuration
type Config struct {
	ListenAddr      string        `mapstructure:"listen_addr"`
	LogLevel        string        `mapstructure:"log_level"`
	LogJSON         bool          `mapstructure:"log_json"`
	DBPath          string        `mapstructure:"db_path"`
	ProfilePath     string        `mapstructure:"profile_path"`
	RateRPS         float64       `mapstructure:"rate_rps"`
	RateBurst       int           `mapstructure:"rate_burst"`
	DispatchBuffer  int           `mapstructure:"dispatch_buffer"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Load reads configuration. An empty path uses defaults and environment
// only; environment variables carry the INSTRUMENTD_ prefix.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)
	v.SetDefault("db_path", "")
	v.SetDefault("profile_path", "")
	v.SetDefault("rate_rps", 20.0)
	v.SetDefault("rate_burst", 40)
	v.SetDefault("dispatch_buffer", 64)
	v.SetDefault("shutdown_timeout", 30*time.Second)

	v.SetEnvPrefix("INSTRUMENTD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
