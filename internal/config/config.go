// Package config handles configuration loading for fidcsim.
// It supports YAML config files with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration.
type Config struct {
	Engine    EngineConfig    `mapstructure:"engine"    yaml:"engine"    json:"engine"`
	Scenarios ScenariosConfig `mapstructure:"scenarios" yaml:"scenarios" json:"scenarios"`
	API       APIConfig       `mapstructure:"api"       yaml:"api"       json:"api"`
	Store     StoreConfig     `mapstructure:"store"     yaml:"store"     json:"store"`
	Logging   LoggingConfig   `mapstructure:"logging"   yaml:"logging"   json:"logging"`
}

// EngineConfig holds the waterfall rule defaults. A bundle may override
// shortfall_policy and principal_mode.
type EngineConfig struct {
	Precision       int    `mapstructure:"precision"        yaml:"precision"        json:"precision"`
	Accrual         string `mapstructure:"accrual"          yaml:"accrual"          json:"accrual"`          // "linear", "exponential"
	ShortfallPolicy string `mapstructure:"shortfall_policy" yaml:"shortfall_policy" json:"shortfall_policy"` // "oldest_first", "pro_rata"
	PrincipalMode   string `mapstructure:"principal_mode"   yaml:"principal_mode"   json:"principal_mode"`   // "sweep", "scheduled"
	Interpolation   string `mapstructure:"interpolation"    yaml:"interpolation"    json:"interpolation"`    // "flat_forward", "linear", "cubic_spline"
}

// ScenariosConfig bounds parallel scenario runs.
type ScenariosConfig struct {
	MaxParallel int `mapstructure:"max_parallel" yaml:"max_parallel" json:"max_parallel"` // 0 = CPU count
}

// APIConfig holds HTTP API server settings.
type APIConfig struct {
	Host         string   `mapstructure:"host"           yaml:"host"           json:"host"`
	Port         int      `mapstructure:"port"           yaml:"port"           json:"port"`
	CORSOrigins  []string `mapstructure:"cors_origins"   yaml:"cors_origins"   json:"cors_origins"`
	MaxBodyBytes int64    `mapstructure:"max_body_bytes" yaml:"max_body_bytes" json:"max_body_bytes"`
	RateLimit    int      `mapstructure:"rate_limit"     yaml:"rate_limit"     json:"rate_limit"` // simulation requests per second, 0 = unlimited
}

// StoreConfig selects where completed runs are kept.
type StoreConfig struct {
	Backend    string `mapstructure:"backend"     yaml:"backend"     json:"backend"` // "memory" or "redis"
	RedisURL   string `mapstructure:"redis_url"   yaml:"redis_url"   json:"redis_url"`
	TTLSeconds int    `mapstructure:"ttl_seconds" yaml:"ttl_seconds" json:"ttl_seconds"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"  json:"level"`  // "debug", "info", "warn", "error"
	Format string `mapstructure:"format" yaml:"format" json:"format"` // "console" or "json"
}

// Load reads the configuration from file and environment variables.
// Config file search order:
//  1. ./config/config.yaml (project root)
//  2. ~/.fidcsim/config.yaml (home directory)
//  3. /etc/fidcsim/config.yaml (system)
//
// Environment variables override config file values.
// Format: FIDCSIM_<SECTION>_<KEY>, e.g., FIDCSIM_STORE_REDIS_URL
func Load() (*Config, error) {
	v := newViper()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(filepath.Join(homeDir(), ".fidcsim"))
	v.AddConfigPath("/etc/fidcsim")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	return decode(v)
}

// LoadFromFile reads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}
	return decode(v)
}

// ConfigFilePath returns the file the user-level config lives in.
func ConfigFilePath() string {
	return filepath.Join(homeDir(), ".fidcsim", "config.yaml")
}

// SaveToFile writes cfg as YAML, creating the directory if needed.
func SaveToFile(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	v := viper.New()
	v.SetConfigType("yaml")
	for key, val := range flatten(cfg) {
		v.Set(key, val)
	}
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}

// Validate checks the values viper cannot type-check.
func (c *Config) Validate() error {
	var problems []string
	if c.Engine.Precision < 0 || c.Engine.Precision > 12 {
		problems = append(problems, fmt.Sprintf("engine.precision %d outside 0..12", c.Engine.Precision))
	}
	if c.API.Port <= 0 || c.API.Port > 65535 {
		problems = append(problems, fmt.Sprintf("api.port %d out of range", c.API.Port))
	}
	switch c.Store.Backend {
	case "memory":
	case "redis":
		if c.Store.RedisURL == "" {
			problems = append(problems, "store.redis_url is required for the redis backend")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown store.backend %q", c.Store.Backend))
	}
	switch c.Logging.Format {
	case "console", "json", "text":
	default:
		problems = append(problems, fmt.Sprintf("unknown logging.format %q", c.Logging.Format))
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("FIDCSIM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &cfg, nil
}

// setDefaults sets sensible defaults for all config values.
func setDefaults(v *viper.Viper) {
	for key, val := range flatten(Defaults()) {
		v.SetDefault(key, val)
	}
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Engine: EngineConfig{
			Precision:       2,
			Accrual:         "linear",
			ShortfallPolicy: "oldest_first",
			PrincipalMode:   "sweep",
			Interpolation:   "flat_forward",
		},
		API: APIConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			CORSOrigins:  []string{"http://localhost:3000"},
			MaxBodyBytes: 4 << 20,
			RateLimit:    20,
		},
		Store: StoreConfig{
			Backend:    "memory",
			RedisURL:   "redis://localhost:6379/0",
			TTLSeconds: 86400, // 1 day
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

func flatten(c *Config) map[string]any {
	return map[string]any{
		"engine.precision":        c.Engine.Precision,
		"engine.accrual":          c.Engine.Accrual,
		"engine.shortfall_policy": c.Engine.ShortfallPolicy,
		"engine.principal_mode":   c.Engine.PrincipalMode,
		"engine.interpolation":    c.Engine.Interpolation,
		"scenarios.max_parallel":  c.Scenarios.MaxParallel,
		"api.host":                c.API.Host,
		"api.port":                c.API.Port,
		"api.cors_origins":        c.API.CORSOrigins,
		"api.max_body_bytes":      c.API.MaxBodyBytes,
		"api.rate_limit":          c.API.RateLimit,
		"store.backend":           c.Store.Backend,
		"store.redis_url":         c.Store.RedisURL,
		"store.ttl_seconds":       c.Store.TTLSeconds,
		"logging.level":           c.Logging.Level,
		"logging.format":          c.Logging.Format,
	}
}

// homeDir returns the user's home directory.
func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
