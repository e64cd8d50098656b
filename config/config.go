package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides, e.g. GODMART_DMART_PASSWORD
const EnvPrefix = "GODMART"

const maxRetryCount = 10

// Load loads the configuration from file and environment
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set default values
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Look for config in standard locations
		v.SetConfigName("config")
		v.SetConfigType("yaml")

		// Check current directory first
		v.AddConfigPath(".")

		// Check home directory
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".godmart"))
		}

		// Check /etc
		v.AddConfigPath("/etc/godmart/")
	}

	// Read config file. Without one, the environment has to supply everything.
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Validate configuration
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values. Every key is registered so
// AutomaticEnv can see it during Unmarshal.
func setDefaults(v *viper.Viper) {
	// Dmart defaults
	v.SetDefault("dmart.url", "")
	v.SetDefault("dmart.username", "")
	v.SetDefault("dmart.password", "")
	v.SetDefault("dmart.timeout", "30s")
	v.SetDefault("dmart.retry_count", 2)
	v.SetDefault("dmart.auto_connect", false)
	v.SetDefault("dmart.insecure_skip_verify", false)
	v.SetDefault("dmart.user_agent", "godmart")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.color", true)
}

// validate checks if the configuration is valid. The password may be empty;
// the CLI prompts for it.
func validate(cfg *Config) error {
	if cfg.Dmart.URL == "" {
		return fmt.Errorf("dmart.url is required")
	}

	if cfg.Dmart.Username == "" {
		return fmt.Errorf("dmart.username is required")
	}

	if cfg.Dmart.Timeout <= 0 {
		return fmt.Errorf("dmart.timeout must be positive, got %s", cfg.Dmart.Timeout)
	}

	if cfg.Dmart.RetryCount < 0 || cfg.Dmart.RetryCount > maxRetryCount {
		return fmt.Errorf("dmart.retry_count must be between 0 and %d, got %d", maxRetryCount, cfg.Dmart.RetryCount)
	}

	// Validate logging level
	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[cfg.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s", cfg.Logging.Level)
	}

	// Validate logging format
	validFormats := map[string]bool{
		"console": true,
		"json":    true,
	}
	if !validFormats[cfg.Logging.Format] {
		return fmt.Errorf("invalid logging format: %s", cfg.Logging.Format)
	}

	return nil
}
