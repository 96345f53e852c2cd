// ABOUTME: Configuration loader for the novorio client
// ABOUTME: Loads settings from .env, environment variables and an optional route file

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Session storage backends
const (
	BackendFile   = "file"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// MaxQueryRetries bounds automatic retries of idempotent reads.
const MaxQueryRetries = 2

type Config struct {
	// API
	APIBaseURL     string
	RequestTimeout time.Duration
	QueryRetries   int    // retries for idempotent GETs, 0-2 (default: 2)
	AllProxy       string // optional ssh+socks5://user@host:port?private-key=/path

	// Session persistence
	StateDir       string // directory for session.json and debug.log
	SessionBackend string // file, redis, memory (default: file)
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	RedisPrefix    string

	// Resource cache
	Stale   StaleWindows
	CacheGC time.Duration // idle unobserved entries are evicted after this

	// Navigation
	Routes          Routes
	FallbackTimeout time.Duration
}

// StaleWindows groups resources by how volatile they are.
type StaleWindows struct {
	Default   time.Duration // player and farm state (players, terrains, quadrants, tools, inputs, inventory)
	Planting  time.Duration // plantings change as they grow
	Weather   time.Duration
	Reference time.Duration // tool/input type catalogs, species
}

// Routes is the static route classification consulted by the guard.
type Routes struct {
	Public         []string `yaml:"public"`
	AuthRequired   []string `yaml:"auth_required"`
	EntityRequired []string `yaml:"entity_required"`
	AuthPath       string   `yaml:"auth_path"`
	LandingPath    string   `yaml:"landing_path"`
	EntityPath     string   `yaml:"entity_path"`
}

// DefaultRoutes mirrors the web client's route table.
func DefaultRoutes() Routes {
	return Routes{
		Public:         []string{"/", "/auth", "/auth/callback", "/auth/reset-password"},
		AuthRequired:   []string{"/character", "/profile", "/settings"},
		EntityRequired: []string{"/game", "/transition"},
		AuthPath:       "/auth",
		LandingPath:    "/character",
		EntityPath:     "/character",
	}
}

func Load() (*Config, error) {
	envFile := getEnv("NOVORIO_ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading %s: %w", envFile, err)
	}

	cfg := &Config{
		APIBaseURL:     strings.TrimRight(ensureScheme(getEnv("NOVORIO_API_URL", "http://localhost:8000")), "/"),
		RequestTimeout: getEnvSeconds("NOVORIO_REQUEST_TIMEOUT", 15),
		QueryRetries:   getEnvInt("NOVORIO_QUERY_RETRIES", MaxQueryRetries),
		AllProxy:       os.Getenv("NOVORIO_ALL_PROXY"),

		StateDir:       getEnv("NOVORIO_STATE_DIR", DefaultStateDir()),
		SessionBackend: strings.ToLower(getEnv("NOVORIO_SESSION_BACKEND", BackendFile)),
		RedisAddr:      getEnv("NOVORIO_REDIS_ADDR", "localhost:6379"),
		RedisPassword:  os.Getenv("NOVORIO_REDIS_PASSWORD"),
		RedisDB:        getEnvInt("NOVORIO_REDIS_DB", 0),
		RedisPrefix:    getEnv("NOVORIO_REDIS_PREFIX", "novorio"),

		Stale: StaleWindows{
			Default:   getEnvSeconds("NOVORIO_STALE_DEFAULT", 300),
			Planting:  getEnvSeconds("NOVORIO_STALE_PLANTINGS", 60),
			Weather:   getEnvSeconds("NOVORIO_STALE_WEATHER", 900),
			Reference: getEnvSeconds("NOVORIO_STALE_REFERENCE", 3600),
		},
		CacheGC: getEnvSeconds("NOVORIO_CACHE_GC", 300),

		Routes:          DefaultRoutes(),
		FallbackTimeout: getEnvSeconds("NOVORIO_FALLBACK_TIMEOUT", 5),
	}

	if routesFile := os.Getenv("NOVORIO_ROUTES_FILE"); routesFile != "" {
		routes, err := LoadRoutes(routesFile)
		if err != nil {
			return nil, err
		}
		cfg.Routes = routes
	}
	cfg.Routes.AuthPath = getEnv("NOVORIO_AUTH_PATH", cfg.Routes.AuthPath)
	cfg.Routes.LandingPath = getEnv("NOVORIO_LANDING_PATH", cfg.Routes.LandingPath)
	cfg.Routes.EntityPath = getEnv("NOVORIO_ENTITY_PATH", cfg.Routes.EntityPath)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.QueryRetries < 0 || c.QueryRetries > MaxQueryRetries {
		return fmt.Errorf("NOVORIO_QUERY_RETRIES must be between 0 and %d, got %d", MaxQueryRetries, c.QueryRetries)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("NOVORIO_REQUEST_TIMEOUT must be positive")
	}

	switch c.SessionBackend {
	case BackendFile:
		if c.StateDir == "" {
			return fmt.Errorf("NOVORIO_STATE_DIR is required for the file session backend")
		}
	case BackendRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("NOVORIO_REDIS_ADDR is required for the redis session backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("invalid session backend: %q (must be file, redis, or memory)", c.SessionBackend)
	}

	for _, rl := range []struct {
		name  string
		value time.Duration
	}{
		{"NOVORIO_STALE_DEFAULT", c.Stale.Default},
		{"NOVORIO_STALE_PLANTINGS", c.Stale.Planting},
		{"NOVORIO_STALE_WEATHER", c.Stale.Weather},
		{"NOVORIO_STALE_REFERENCE", c.Stale.Reference},
	} {
		if rl.value <= 0 {
			return fmt.Errorf("%s must be positive", rl.name)
		}
	}

	for _, p := range []string{c.Routes.AuthPath, c.Routes.LandingPath, c.Routes.EntityPath} {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("route paths must start with '/', got %q", p)
		}
	}
	return nil
}

// LoadRoutes reads a YAML route table. Missing keys keep their defaults.
func LoadRoutes(path string) (Routes, error) {
	routes := DefaultRoutes()

	data, err := os.ReadFile(path)
	if err != nil {
		return routes, fmt.Errorf("reading route file: %w", err)
	}
	if err := yaml.Unmarshal(data, &routes); err != nil {
		return routes, fmt.Errorf("parsing route file %s: %w", path, err)
	}
	return routes, nil
}

// DefaultStateDir returns $XDG_CONFIG_HOME/novorio, falling back to ~/.config/novorio
func DefaultStateDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "novorio")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "novorio")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvSeconds(key string, defaultSeconds int) time.Duration {
	return time.Duration(getEnvInt(key, defaultSeconds)) * time.Second
}

// ensureScheme adds http:// prefix if the URL has no scheme
func ensureScheme(url string) string {
	if url == "" {
		return url
	}
	if !strings.Contains(url, "://") {
		return "http://" + url
	}
	return url
}
