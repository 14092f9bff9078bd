package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Limiter  LimiterConfig  `mapstructure:"limiter"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type StorageConfig struct {
	Type string `mapstructure:"type"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type PostgresConfig struct {
	DSN string `mapstructure:"dsn"`
}

type LimiterConfig struct {
	SweepInterval time.Duration     `mapstructure:"sweep_interval"`
	IdleFactor    int               `mapstructure:"idle_factor"`
	Policies      map[string]Policy `mapstructure:"policies"`
}

const (
	StorageMemory   = "memory"
	StorageRedis    = "redis"
	StoragePostgres = "postgres"
)

// Load reads .env, the optional YAML file named by CONFIG_PATH and the environment,
// in increasing order of precedence. LIMITER_POLICIES_REVIEW_POINTS style variables
// override single policy fields.
func Load(logger *slog.Logger) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path := strings.TrimSpace(os.Getenv("CONFIG_PATH")); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}

		v.OnConfigChange(func(e fsnotify.Event) {
			logger.Warn("config file changed, restart to apply", "file", e.Name, "op", e.Op.String())
		})
		v.WatchConfig()
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

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("storage.type", StorageMemory)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("postgres.dsn", "")
	v.SetDefault("limiter.sweep_interval", time.Minute)
	v.SetDefault("limiter.idle_factor", 2)

	for class, p := range DefaultPolicies {
		v.SetDefault("limiter.policies."+class+".points", p.Points)
		v.SetDefault("limiter.policies."+class+".duration", p.Duration)
	}
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server.Addr) == "" {
		return fmt.Errorf("server.addr is required")
	}

	switch c.Storage.Type {
	case StorageMemory:
	case StorageRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required when storage.type=redis")
		}
	case StoragePostgres:
		if c.Postgres.DSN == "" {
			return fmt.Errorf("postgres.dsn is required when storage.type=postgres")
		}
	default:
		return fmt.Errorf("unsupported storage type: %s", c.Storage.Type)
	}

	if c.Limiter.IdleFactor < 1 {
		return fmt.Errorf("limiter.idle_factor must be >= 1, got %d", c.Limiter.IdleFactor)
	}

	if len(c.Limiter.Policies) == 0 {
		return fmt.Errorf("at least one limiter policy is required")
	}
	for class, p := range c.Limiter.Policies {
		if !IsKnownClass(class) {
			return fmt.Errorf("unknown limiter class %q", class)
		}
		if p.Points <= 0 || p.Duration <= 0 {
			return fmt.Errorf("invalid limit configuration for class %s: points=%d duration=%s", class, p.Points, p.Duration)
		}
		// Retry-After is advertised in whole seconds
		if p.Duration%time.Second != 0 {
			return fmt.Errorf("invalid limit configuration for class %s: duration %s is not a whole number of seconds", class, p.Duration)
		}
	}

	return nil
}
