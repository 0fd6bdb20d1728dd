package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Storage backends accepted by storage.backend.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Storage  StorageConfig  `yaml:"storage"`
	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`
	Packs    PacksConfig    `yaml:"packs"`
	Auth     AuthConfig     `yaml:"auth"`
}

type ServerConfig struct {
	Port string `yaml:"port" env:"QUIZ_PORT"`
}

type LogConfig struct {
	Level string `yaml:"level" env:"QUIZ_LOG_LEVEL"`
}

type StorageConfig struct {
	Backend    string `yaml:"backend" env:"QUIZ_STORAGE_BACKEND"`
	SQLitePath string `yaml:"sqlite_path" env:"QUIZ_SQLITE_PATH"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" env:"QUIZ_REDIS_ADDR"`
	Password string `yaml:"password" env:"QUIZ_REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"QUIZ_REDIS_DB"`
}

type PostgresConfig struct {
	URL string `yaml:"url" env:"QUIZ_POSTGRES_URL"`
}

type PacksConfig struct {
	Endpoint        string `yaml:"endpoint" env:"QUIZ_PACKS_ENDPOINT"`
	DiscoverPattern string `yaml:"discover_pattern" env:"QUIZ_PACKS_DISCOVER_PATTERN"`
	CacheTTL        string `yaml:"cache_ttl" env:"QUIZ_PACKS_CACHE_TTL"`
	FetchTimeout    string `yaml:"fetch_timeout" env:"QUIZ_PACKS_FETCH_TIMEOUT"`
}

type AuthConfig struct {
	Token string `yaml:"token" env:"QUIZ_AUTH_TOKEN"`
}

// Default is the configuration used when no file is present.
func Default() Config {
	return Config{
		Server:  ServerConfig{Port: "8080"},
		Log:     LogConfig{Level: "info"},
		Storage: StorageConfig{Backend: BackendMemory, SQLitePath: "quizpack.db"},
		Packs: PacksConfig{
			DiscoverPattern: "*.json",
			CacheTTL:        "168h",
			FetchTimeout:    "15s",
		},
	}
}

// Load reads YAML config from path over the defaults, then applies QUIZ_* environment
// overrides. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return cfg, err
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parsing %s: %w", path, err)
			}
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parsing environment: %w", err)
	}
	cfg.Storage.Backend = strings.ToLower(strings.TrimSpace(cfg.Storage.Backend))
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Storage.Backend {
	case BackendMemory, BackendSQLite:
	case BackendRedis:
		if c.Redis.Addr == "" {
			return errors.New("storage backend redis needs redis.addr")
		}
	case BackendPostgres:
		if c.Postgres.URL == "" {
			return errors.New("storage backend postgres needs postgres.url")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	return nil
}

// SlogLevel maps log.level to a slog level, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
