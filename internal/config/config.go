package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gookit/config/v2"
	"github.com/gookit/config/v2/yaml"
)

// ErrNoConnectionString is returned by Load when neither DATABASE_URL nor the
// config file provide a connection string, or when DATABASE_URL is set but
// blank. A blank DATABASE_URL never falls back to the file.
var ErrNoConnectionString = errors.New("no connection string found: set DATABASE_URL or connection_strings.default_connection")

const (
	DefaultPort           = "8080"
	DefaultRequestTimeout = 15 * time.Second
	DefaultServiceName    = "todo-api"
)

// Config is resolved once at startup and passed by value afterwards.
type Config struct {
	ConnectionString string
	Port             string
	LogLevel         string

	DB DBConfig

	RequestTimeout time.Duration
	RateLimitRPS   float64
	RateLimitBurst int

	TracesExporter string
	ServiceName    string
}

type DBConfig struct {
	QueryLog        bool
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Load reads the optional YAML file at path and overlays process env vars.
// Env always wins over file keys.
func Load(path string) (Config, error) {
	c := config.New("todo-api")
	c.WithOptions(func(opt *config.Options) {
		opt.ParseEnv = true
	})
	c.AddDriver(yaml.Driver)

	if path != "" {
		if err := c.LoadExists(path); err != nil {
			return Config{}, err
		}
	}

	src := source{c: c}
	cfg := Config{
		ConnectionString: src.str("DATABASE_URL", "connection_strings.default_connection", ""),
		Port:             src.str("PORT", "port", DefaultPort),
		LogLevel:         strings.ToLower(src.str("LOG_LEVEL", "log_level", "info")),
		DB: DBConfig{
			QueryLog:        src.boolean("DB_QUERY_LOG", "database.query_log"),
			MaxOpenConns:    src.integer("DB_MAX_OPEN_CONNS", "database.max_open_conns", 0),
			MaxIdleConns:    src.integer("DB_MAX_IDLE_CONNS", "database.max_idle_conns", 0),
			ConnMaxLifetime: src.duration("DB_CONN_MAX_LIFETIME", "database.conn_max_lifetime", 0),
		},
		RequestTimeout: src.duration("REQUEST_TIMEOUT", "http.request_timeout", DefaultRequestTimeout),
		RateLimitRPS:   src.float("RATE_LIMIT_RPS", "http.rate_limit_rps"),
		RateLimitBurst: src.integer("RATE_LIMIT_BURST", "http.rate_limit_burst", 1),
		TracesExporter: strings.ToLower(src.str("OTEL_TRACES_EXPORTER", "tracing.exporter", "none")),
		ServiceName:    src.str("OTEL_SERVICE_NAME", "tracing.service_name", DefaultServiceName),
	}

	if raw, ok := os.LookupEnv("DATABASE_URL"); ok && strings.TrimSpace(raw) == "" {
		return Config{}, ErrNoConnectionString
	}
	if strings.TrimSpace(cfg.ConnectionString) == "" {
		return Config{}, ErrNoConnectionString
	}
	return cfg, nil
}

// Addr is the listen address; platforms inject PORT and expect all interfaces.
func (c Config) Addr() string {
	return "0.0.0.0:" + c.Port
}

type source struct {
	c *config.Config
}

func (s source) str(env, key, def string) string {
	if v := strings.TrimSpace(os.Getenv(env)); v != "" {
		return v
	}
	return strings.TrimSpace(s.c.String(key, def))
}

func (s source) integer(env, key string, def int) int {
	raw := s.str(env, key, "")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func (s source) float(env, key string) float64 {
	raw := s.str(env, key, "")
	if raw == "" {
		return 0
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return f
}

func (s source) boolean(env, key string) bool {
	b, err := strconv.ParseBool(s.str(env, key, "false"))
	return err == nil && b
}

// duration accepts Go duration syntax ("30s") or a bare number of seconds.
func (s source) duration(env, key string, def time.Duration) time.Duration {
	raw := s.str(env, key, "")
	if raw == "" {
		return def
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if n, err := strconv.Atoi(raw); err == nil {
		return time.Duration(n) * time.Second
	}
	return def
}
