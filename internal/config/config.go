// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// EnvPrefix is prepended to every variable name.
const EnvPrefix = "CONSOLE_"

// Storage backends.
const (
	StorageMemory   = "memory"
	StorageFile     = "file"
	StorageRedis    = "redis"
	StoragePostgres = "postgres"
)

// Realtime backends.
const (
	RealtimeWebsocket = "websocket"
	RealtimeRedis     = "redis"
	RealtimeNone      = "none"
)

type AppConfig struct {
	// Server
	HTTPAddr    string   `env:"HTTP_ADDR" envDefault:":8080"`
	HomePath    string   `env:"HOME_PATH" envDefault:"/"`
	RoutesFile  string   `env:"ROUTES_FILE"`
	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:","`

	// User service
	UserServiceURL string        `env:"USER_SERVICE_URL" envDefault:"http://localhost:8000/api/v1"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"15s"`
	RefreshTimeout time.Duration `env:"REFRESH_TIMEOUT" envDefault:"30s"`

	Log      LogConfig      `envPrefix:"LOG_"`
	Storage  StorageConfig  `envPrefix:"STORAGE_"`
	Redis    RedisConfig    `envPrefix:"REDIS_"`
	Postgres PostgresConfig `envPrefix:"DATABASE_"`
	Realtime RealtimeConfig `envPrefix:"REALTIME_"`
}

type LogConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"json"` // json | console
}

type StorageConfig struct {
	Backend    string        `env:"BACKEND" envDefault:"file"`
	Path       string        `env:"PATH" envDefault:".console/cookies.json"`
	Secret     string        `env:"SECRET"`
	RefreshTTL time.Duration `env:"REFRESH_TTL" envDefault:"168h"`
	Table      string        `env:"TABLE" envDefault:"console_storage"`
	KeyPrefix  string        `env:"KEY_PREFIX" envDefault:"backoffice:storage:"`
}

type RedisConfig struct {
	Addrs    []string `env:"ADDRS" envDefault:"localhost:6379" envSeparator:","`
	Password string   `env:"PASSWORD"`
	DB       int      `env:"DB" envDefault:"0"`
	Cluster  bool     `env:"CLUSTER" envDefault:"false"`
	PoolSize int      `env:"POOL_SIZE" envDefault:"10"`
}

type PostgresConfig struct {
	URL      string `env:"URL"`
	MaxConns int32  `env:"MAX_CONNS" envDefault:"5"`
}

type RealtimeConfig struct {
	Backend    string        `env:"BACKEND" envDefault:"websocket"`
	URL        string        `env:"URL"`
	Channel    string        `env:"CHANNEL" envDefault:"backoffice:events"`
	MinBackoff time.Duration `env:"MIN_BACKOFF" envDefault:"1s"`
	MaxBackoff time.Duration `env:"MAX_BACKOFF" envDefault:"30s"`
}

// LoadDotEnv loads the given .env files (default ".env"). Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// Load parses CONSOLE_* environment variables into AppConfig and validates it.
func Load() (AppConfig, error) {
	return parse(env.Options{Prefix: EnvPrefix})
}

// LoadFrom parses from the given variables instead of the process environment.
func LoadFrom(vars map[string]string) (AppConfig, error) {
	return parse(env.Options{Prefix: EnvPrefix, Environment: vars})
}

func parse(opts env.Options) (AppConfig, error) {
	var cfg AppConfig
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return AppConfig{}, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// Validate checks cross-field rules and fills derived defaults.
func (c *AppConfig) Validate() error {
	if _, err := url.ParseRequestURI(c.UserServiceURL); err != nil {
		return fmt.Errorf("invalid %sUSER_SERVICE_URL: %w", EnvPrefix, err)
	}

	switch c.Storage.Backend {
	case StorageMemory, StorageFile, StorageRedis:
	case StoragePostgres:
		if c.Postgres.URL == "" {
			return fmt.Errorf("%sDATABASE_URL is required for the postgres storage backend", EnvPrefix)
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}

	switch c.Realtime.Backend {
	case RealtimeWebsocket:
		if c.Realtime.URL == "" {
			derived, err := websocketURL(c.UserServiceURL)
			if err != nil {
				return err
			}
			c.Realtime.URL = derived
		}
	case RealtimeRedis, RealtimeNone:
	default:
		return fmt.Errorf("unknown realtime backend %q", c.Realtime.Backend)
	}

	if c.Storage.RefreshTTL <= 0 {
		return fmt.Errorf("%sSTORAGE_REFRESH_TTL must be positive", EnvPrefix)
	}
	return nil
}

// websocketURL maps http(s)://host/anything to ws(s)://host/ws.
func websocketURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid user service url: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/ws"
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}
