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

type Cache struct {
	Driver        string `mapstructure:"driver"` // "sqlite", "redis", "memory"
	Path          string `mapstructure:"path"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
}

type Remote struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// Metrics.Addr, when set, serves the client's Prometheus metrics during
// long-running commands such as the shell.
type Metrics struct {
	Addr string `mapstructure:"addr"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Config is the client configuration.
type Config struct {
	APIURL   string  `mapstructure:"api_url"`
	Profile  string  `mapstructure:"profile"`
	Remote   Remote  `mapstructure:"remote"`
	Cache    Cache   `mapstructure:"cache"`
	Log      Log     `mapstructure:"log"`
	Metrics  Metrics `mapstructure:"metrics"`
	Timezone string  `mapstructure:"timezone"`
}

// DefaultDir is where the config file and the sqlite cache live.
func DefaultDir() string {
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		return filepath.Join(home, ".petfeeder")
	}
	return ".petfeeder"
}

// Load reads the YAML file at path (optional when empty) and applies
// PETFEEDER_* environment overrides, e.g. PETFEEDER_API_URL or
// PETFEEDER_CACHE_DRIVER.
func Load(path string) (*Config, error) {
	v := viper.New()
	dir := DefaultDir()

	v.SetDefault("api_url", "http://localhost:3000/api")
	v.SetDefault("profile", "default")
	v.SetDefault("remote.timeout", 10*time.Second)
	v.SetDefault("cache.driver", "sqlite")
	v.SetDefault("cache.path", filepath.Join(dir, "cache.db"))
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("log.level", "warn")
	v.SetDefault("log.format", "text")
	v.SetDefault("metrics.addr", "")
	v.SetDefault("timezone", "Local")

	v.SetEnvPrefix("petfeeder")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else {
		v.SetConfigFile(filepath.Join(dir, "config.yaml"))
		if err := v.ReadInConfig(); err != nil && !isNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.APIURL = strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/")
	if cfg.Remote.Timeout <= 0 {
		cfg.Remote.Timeout = 10 * time.Second
	}
	return &cfg, nil
}

func (c *Config) Location() *time.Location {
	tz := strings.TrimSpace(c.Timezone)
	if tz == "" || strings.EqualFold(tz, "local") {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.Local
	}
	return loc
}

func isNotExist(err error) bool {
	var nf viper.ConfigFileNotFoundError
	if errors.As(err, &nf) {
		return true
	}
	return errors.Is(err, os.ErrNotExist)
}
