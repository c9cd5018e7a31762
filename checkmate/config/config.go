// Package config loads service configuration from environment variables
// (CHECKMATE_* prefix) and an optional YAML config file.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all runtime settings for the CheckMate API service.
type Config struct {
	// HTTP
	ListenAddr     string   `mapstructure:"listen_addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`

	// Database: driver is "postgres" or "sqlite".
	DBDriver string `mapstructure:"db_driver"`
	DBDSN    string `mapstructure:"db_dsn"`

	// Key/value store: backend is "valkey" or "memory".
	KVBackend string `mapstructure:"kv_backend"`
	KVAddr    string `mapstructure:"kv_addr"`

	// Messaging. Empty URL disables AMQP integration.
	AMQPURL        string `mapstructure:"amqp_url"`
	ScanQueue      string `mapstructure:"scan_queue"`
	WhitelistQueue string `mapstructure:"whitelist_queue"`

	// Detection rule catalog: path to a YAML file or an http(s) URL.
	// Empty uses the embedded default catalog.
	RuleCatalog string `mapstructure:"rule_catalog"`

	// BaselinePrecision is the calibrated pre-feedback precision percentage
	// used to report improvement. It is an external input, never computed.
	BaselinePrecision float64 `mapstructure:"baseline_precision"`

	// Logging
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

// Load reads configuration from the environment and, when cfgFile is
// non-empty, from the given YAML file. Environment variables win.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("CHECKMATE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", cfgFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen_addr", ":8000")
	v.SetDefault("allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("db_driver", "sqlite")
	v.SetDefault("db_dsn", "checkmate.db")
	v.SetDefault("kv_backend", "memory")
	v.SetDefault("kv_addr", "checkmate-valkey:6379")
	v.SetDefault("amqp_url", "")
	v.SetDefault("scan_queue", "checkmate.scan")
	v.SetDefault("whitelist_queue", "checkmate.whitelist")
	v.SetDefault("rule_catalog", "")
	v.SetDefault("baseline_precision", 60.0)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
}

func (c *Config) validate() error {
	switch c.DBDriver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported db_driver %q (want postgres or sqlite)", c.DBDriver)
	}
	switch c.KVBackend {
	case "valkey", "memory":
	default:
		return fmt.Errorf("unsupported kv_backend %q (want valkey or memory)", c.KVBackend)
	}
	if c.BaselinePrecision < 0 || c.BaselinePrecision > 100 {
		return fmt.Errorf("baseline_precision %v out of range [0,100]", c.BaselinePrecision)
	}
	return nil
}
