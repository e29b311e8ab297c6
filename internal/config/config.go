package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

var (
	ErrMissingFeedURL = errors.New("feed.url (FEED_URL or DATA_SOURCE_URL) is required")
	ErrMissingSecret  = errors.New("auth.secret (AUTH_SECRET or SHARED_SECRET) is required")
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Websocket WebsocketConfig `mapstructure:"websocket"`
	Feed      FeedConfig      `mapstructure:"feed"`
	Diff      DiffConfig      `mapstructure:"diff"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
}

type AuthConfig struct {
	Secret          string        `mapstructure:"secret"`
	FreshnessWindow time.Duration `mapstructure:"freshness_window"`
}

type RateLimitConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	Window      time.Duration `mapstructure:"window"`
	Backend     string        `mapstructure:"backend"`
	RedisURL    string        `mapstructure:"redis_url"`
}

type WebsocketConfig struct {
	SendBuffer   int           `mapstructure:"send_buffer"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PingInterval time.Duration `mapstructure:"ping_interval"`
	ReadLimit    int64         `mapstructure:"read_limit"`
	InboundRate  float64       `mapstructure:"inbound_rate"`
	InboundBurst int           `mapstructure:"inbound_burst"`
}

type FeedConfig struct {
	URL     string `mapstructure:"url"`
	Topic   string `mapstructure:"topic"`
	Channel string `mapstructure:"channel"`
}

type DiffConfig struct {
	MaxBodyBytes int64 `mapstructure:"max_body_bytes"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads .env, an optional config.yaml and the environment, in increasing
// order of precedence. It fails when the feed URL or shared secret is absent.
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindAliases(v); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the values the process cannot start without.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Feed.URL) == "" {
		return ErrMissingFeedURL
	}
	if c.Auth.Secret == "" {
		return ErrMissingSecret
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port: %d", c.Server.Port)
	}
	if c.RateLimit.MaxAttempts <= 0 {
		return fmt.Errorf("invalid rate_limit.max_attempts: %d", c.RateLimit.MaxAttempts)
	}
	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("invalid rate_limit.window: %s", c.RateLimit.Window)
	}
	switch c.RateLimit.Backend {
	case "memory":
	case "redis":
		if c.RateLimit.RedisURL == "" {
			return errors.New("rate_limit.redis_url is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown rate_limit.backend %q", c.RateLimit.Backend)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_header_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.freshness_window", 5*time.Minute)

	v.SetDefault("rate_limit.max_attempts", 5)
	v.SetDefault("rate_limit.window", 60*time.Second)
	v.SetDefault("rate_limit.backend", "memory")
	v.SetDefault("rate_limit.redis_url", "")

	v.SetDefault("websocket.send_buffer", 256)
	v.SetDefault("websocket.write_timeout", 10*time.Second)
	v.SetDefault("websocket.ping_interval", 30*time.Second)
	v.SetDefault("websocket.read_limit", 64*1024)
	v.SetDefault("websocket.inbound_rate", 10.0)
	v.SetDefault("websocket.inbound_burst", 20)

	v.SetDefault("feed.url", "")
	v.SetDefault("feed.topic", "")
	v.SetDefault("feed.channel", "db_changes")

	v.SetDefault("diff.max_body_bytes", 1<<20)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// bindAliases maps the short environment names used by deployments onto
// their config keys.
func bindAliases(v *viper.Viper) error {
	aliases := map[string][]string{
		"feed.url":    {"FEED_URL", "DATA_SOURCE_URL"},
		"auth.secret": {"AUTH_SECRET", "SHARED_SECRET"},
		"server.port": {"SERVER_PORT", "PORT"},
	}
	for key, envs := range aliases {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}
	return nil
}
