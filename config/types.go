package config

import "time"

// Config represents the complete configuration structure
type Config struct {
	Dmart   DmartConfig   `mapstructure:"dmart"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// DmartConfig holds Dmart connection details and client tuning
type DmartConfig struct {
	URL                string        `mapstructure:"url"`
	Username           string        `mapstructure:"username"`
	Password           string        `mapstructure:"password"`
	Timeout            time.Duration `mapstructure:"timeout"`
	RetryCount         int           `mapstructure:"retry_count"`
	AutoConnect        bool          `mapstructure:"auto_connect"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify"`
	UserAgent          string        `mapstructure:"user_agent"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Color  bool   `mapstructure:"color"`
}
