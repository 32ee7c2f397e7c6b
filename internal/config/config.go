// Package config reads runtime settings from the environment, after loading an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Backend names a storage implementation.
type Backend string

const (
	BackendMemory   Backend = "memory"
	BackendSQLite   Backend = "sqlite"
	BackendPostgres Backend = "postgres"
	BackendRedis    Backend = "redis"
)

// Bus names a signal transport.
type Bus string

const (
	BusLocal Bus = "local"
	BusRedis Bus = "redis"
	BusWS    Bus = "ws"
)

// Config is the full runtime configuration.
type Config struct {
	Backend     Backend
	SQLitePath  string
	DatabaseURL string
	RedisAddr   string
	RedisPrefix string
	Bus         Bus
	RelayURL    string
	RelayAddr   string
	LogLevel    string
	LogFormat   string
}

// Load reads .env from the working directory when present, then the process
// environment. Variables already set in the environment win over .env.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("config: read .env: %w", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from getenv, applying defaults and checking enums.
func FromEnv(getenv func(string) string) (Config, error) {
	get := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}

	c := Config{
		Backend:     Backend(strings.ToLower(get("SCORECARD_BACKEND", string(BackendSQLite)))),
		SQLitePath:  get("SCORECARD_SQLITE_PATH", "scorecard.db"),
		DatabaseURL: get("DATABASE_URL", ""),
		RedisAddr:   get("REDIS_ADDR", "localhost:6379"),
		RedisPrefix: get("REDIS_PREFIX", "scorecard"),
		Bus:         Bus(strings.ToLower(get("SCORECARD_BUS", string(BusLocal)))),
		RelayURL:    get("SCORECARD_RELAY_URL", ""),
		RelayAddr:   get("SCORECARD_RELAY_ADDR", ":8787"),
		LogLevel:    get("LOG_LEVEL", "info"),
		LogFormat:   strings.ToLower(get("LOG_FORMAT", "text")),
	}

	switch c.Backend {
	case BackendMemory, BackendSQLite, BackendRedis:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return Config{}, errors.New("config: SCORECARD_BACKEND=postgres needs DATABASE_URL")
		}
	default:
		return Config{}, fmt.Errorf("config: unknown SCORECARD_BACKEND %q", c.Backend)
	}
	switch c.Bus {
	case BusLocal, BusRedis:
	case BusWS:
		if c.RelayURL == "" {
			return Config{}, errors.New("config: SCORECARD_BUS=ws needs SCORECARD_RELAY_URL")
		}
	default:
		return Config{}, fmt.Errorf("config: unknown SCORECARD_BUS %q", c.Bus)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return Config{}, fmt.Errorf("config: unknown LOG_FORMAT %q", c.LogFormat)
	}
	return c, nil
}
