// Package config loads ram-proxy settings from defaults, an optional
// ram-proxy.yaml, RAM_* environment variables and command line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Sternrassler/ram-browser/pkg/browser"
	"github.com/Sternrassler/ram-browser/pkg/client"
	"github.com/Sternrassler/ram-browser/pkg/logging"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable: RAM_PORT, RAM_LOG_LEVEL.
const EnvPrefix = "RAM"

// FileName is the config file looked up in the working directory.
const FileName = "ram-proxy"

// Keys.
const (
	KeyPort             = "port"
	KeyBaseURL          = "base_url"
	KeyUserAgent        = "user_agent"
	KeyRedisURL         = "redis_url"
	KeyPageSize         = "page_size"
	KeyPrefetchDistance = "prefetch_distance"
	KeyTimeout          = "timeout"
	KeyCacheTTL         = "cache_ttl"
	KeyLogLevel         = "log.level"
	KeyLogPretty        = "log.pretty"
)

// EnvKeyReplacer maps nested keys to environment names.
var EnvKeyReplacer = strings.NewReplacer(".", "_")

// Defaults holds the value of every key when nothing else sets it.
var Defaults = map[string]any{
	KeyPort:             "8080",
	KeyBaseURL:          client.DefaultBaseURL,
	KeyUserAgent:        "ram-proxy/0.1.0",
	KeyRedisURL:         "",
	KeyPageSize:         10,
	KeyPrefetchDistance: 15,
	KeyTimeout:          15 * time.Second,
	KeyCacheTTL:         5 * time.Minute,
	KeyLogLevel:         string(logging.LevelInfo),
	KeyLogPretty:        false,
}

// Config is the resolved ram-proxy configuration.
type Config struct {
	Port             string
	BaseURL          string
	UserAgent        string
	RedisURL         string
	PageSize         int
	PrefetchDistance int
	Timeout          time.Duration
	CacheTTL         time.Duration
	LogLevel         string
	LogPretty        bool
}

// Setup registers defaults and environment bindings on v and reads
// configFile, or ram-proxy.yaml from the working directory when configFile
// is empty. A missing default file is not an error.
func Setup(v *viper.Viper, configFile string) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(EnvKeyReplacer)
	v.AutomaticEnv()

	v.SetTypeByDefaultValue(true)
	for key, value := range Defaults {
		v.SetDefault(key, value)
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		if configFile == "" && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// Load resolves all keys from v and validates the result.
func Load(v *viper.Viper) (Config, error) {
	cfg := Config{
		Port:             v.GetString(KeyPort),
		BaseURL:          v.GetString(KeyBaseURL),
		UserAgent:        v.GetString(KeyUserAgent),
		RedisURL:         v.GetString(KeyRedisURL),
		PageSize:         v.GetInt(KeyPageSize),
		PrefetchDistance: v.GetInt(KeyPrefetchDistance),
		Timeout:          v.GetDuration(KeyTimeout),
		CacheTTL:         v.GetDuration(KeyCacheTTL),
		LogLevel:         v.GetString(KeyLogLevel),
		LogPretty:        v.GetBool(KeyLogPretty),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("%s is required", KeyPort)
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("%s must be > 0 (got %d)", KeyPageSize, c.PageSize)
	}
	if c.PrefetchDistance <= 0 {
		return fmt.Errorf("%s must be > 0 (got %d)", KeyPrefetchDistance, c.PrefetchDistance)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%s must be > 0 (got %s)", KeyTimeout, c.Timeout)
	}
	if c.CacheTTL < 0 {
		return fmt.Errorf("%s must be >= 0 (got %s)", KeyCacheTTL, c.CacheTTL)
	}
	if _, err := c.RedisOptions(); err != nil {
		return err
	}
	return nil
}

// RedisOptions parses RedisURL. Both redis:// URLs and bare host:port are
// accepted; nil means Redis is disabled.
func (c Config) RedisOptions() (*redis.Options, error) {
	switch {
	case c.RedisURL == "":
		return nil, nil
	case strings.Contains(c.RedisURL, "://"):
		opts, err := redis.ParseURL(c.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", KeyRedisURL, err)
		}
		return opts, nil
	default:
		return &redis.Options{Addr: c.RedisURL}, nil
	}
}

// Client returns the API client configuration. rdb may be nil.
func (c Config) Client(rdb *redis.Client) client.Config {
	return client.Config{
		BaseURL:   c.BaseURL,
		UserAgent: c.UserAgent,
		Timeout:   c.Timeout,
		Redis:     rdb,
		CacheTTL:  c.CacheTTL,
	}
}

// Browser returns the view model configuration.
func (c Config) Browser() browser.Config {
	cfg := browser.DefaultConfig()
	cfg.Pagination.PageSize = c.PageSize
	cfg.Pagination.PrefetchDistance = c.PrefetchDistance
	cfg.Pagination.Timeout = c.Timeout
	cfg.Episodes.Timeout = c.Timeout
	return cfg
}

// Logging returns the logger configuration writing to stderr.
func (c Config) Logging() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.LogLevel(c.LogLevel)
	cfg.Pretty = c.LogPretty
	return cfg
}
