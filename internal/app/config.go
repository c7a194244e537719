package app

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Translation backends.
const (
	BackendStub  = "stub"
	BackendDeepL = "deepl"
	BackendLLM   = "llm"
)

// Config holds runtime configuration for the application.
type Config struct {
	Store     StoreConfig     `yaml:"store"`
	Fetch     FetchConfig     `yaml:"fetch"`
	Cache     CacheConfig     `yaml:"cache"`
	LLM       LLMConfig       `yaml:"llm"`
	Translate TranslateConfig `yaml:"translate"`
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Reports   ReportsConfig   `yaml:"reports"`

	// CatalogPath selects a catalog file. Empty uses the built-in catalog.
	CatalogPath string `yaml:"catalog" env:"CATALOG_PATH"`
	// PolicyPath selects a difficulty policy file. Empty uses the default.
	PolicyPath string `yaml:"policy" env:"POLICY_PATH"`
}

type StoreConfig struct {
	Driver     string `yaml:"driver" env:"STORE_DRIVER" env-default:"sqlite"`
	SQLitePath string `yaml:"sqlite_path" env:"SQLITE_PATH" env-default:"data/goreader.db"`

	DSN             string        `yaml:"dsn" env:"DATABASE_DSN"`
	MaxConns        int32         `yaml:"max_conns" env:"DATABASE_MAX_CONNS" env-default:"10"`
	MinConns        int32         `yaml:"min_conns" env:"DATABASE_MIN_CONNS" env-default:"0"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime" env:"DATABASE_MAX_CONN_LIFETIME" env-default:"1h"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time" env:"DATABASE_MAX_CONN_IDLE_TIME" env-default:"30m"`
}

type FetchConfig struct {
	UserAgent         string        `yaml:"user_agent" env:"FETCH_USER_AGENT" env-default:"goreader/1.0"`
	Timeout           time.Duration `yaml:"timeout" env:"FETCH_TIMEOUT" env-default:"30s"`
	MaxAttempts       int           `yaml:"max_attempts" env:"FETCH_MAX_ATTEMPTS" env-default:"3"`
	RequestsPerSecond float64       `yaml:"requests_per_second" env:"FETCH_RPS" env-default:"1"`
}

type CacheConfig struct {
	Dir         string        `yaml:"dir" env:"CACHE_DIR" env-default:".goreader-cache"`
	MaxAge      time.Duration `yaml:"max_age" env:"CACHE_MAX_AGE"`
	MaxBytes    int64         `yaml:"max_bytes" env:"CACHE_MAX_BYTES"`
	MaxCount    int           `yaml:"max_count" env:"CACHE_MAX_COUNT"`
	Clear       bool          `yaml:"clear" env:"CACHE_CLEAR"`
	StrictPerms bool          `yaml:"strict_perms" env:"CACHE_STRICT_PERMS"`
}

type LLMConfig struct {
	BaseURL     string  `yaml:"base_url" env:"LLM_BASE_URL"`
	Model       string  `yaml:"model" env:"LLM_MODEL"`
	APIKey      string  `yaml:"api_key" env:"LLM_API_KEY"`
	Temperature float32 `yaml:"temperature" env:"LLM_TEMPERATURE" env-default:"0.2"`
}

type TranslateConfig struct {
	Backend   string        `yaml:"backend" env:"TRANSLATE_BACKEND" env-default:"stub"`
	DeepLKey  string        `yaml:"deepl_key" env:"DEEPL_API_KEY"`
	DeepLURL  string        `yaml:"deepl_url" env:"DEEPL_BASE_URL"`
	BatchSize int           `yaml:"batch_size" env:"TRANSLATE_BATCH_SIZE" env-default:"50"`
	Interval  time.Duration `yaml:"interval" env:"TRANSLATE_INTERVAL" env-default:"500ms"`
}

type ServerConfig struct {
	Addr string `yaml:"addr" env:"SERVER_ADDR" env-default:":8080"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	Pretty bool   `yaml:"pretty" env:"LOG_PRETTY" env-default:"true"`
}

type ReportsConfig struct {
	Dir string `yaml:"dir" env:"REPORTS_DIR" env-default:"reports"`
	PDF bool   `yaml:"pdf" env:"REPORTS_PDF"`
}

// LoadConfig reads path when it exists and fills the rest from the
// environment. An empty path falls back to CONFIG_PATH.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := cleanenv.ReadConfig(path, &cfg); err != nil {
				return Config{}, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("stat config %s: %w", path, err)
		} else if err := cleanenv.ReadEnv(&cfg); err != nil {
			return Config{}, fmt.Errorf("read env: %w", err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("read env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate performs minimal checks that would otherwise fail deep inside a
// run.
func (c *Config) Validate() error {
	var problems []string

	switch strings.ToLower(c.Store.Driver) {
	case DriverSQLite:
		if strings.TrimSpace(c.Store.SQLitePath) == "" {
			problems = append(problems, "store.sqlite_path is required for the sqlite driver")
		}
	case DriverPostgres:
		if strings.TrimSpace(c.Store.DSN) == "" {
			problems = append(problems, "store.dsn is required for the postgres driver")
		}
	case DriverMemory:
	default:
		problems = append(problems, fmt.Sprintf("store.driver: unknown driver %q", c.Store.Driver))
	}

	switch strings.ToLower(c.Translate.Backend) {
	case BackendStub:
	case BackendDeepL:
		if strings.TrimSpace(c.Translate.DeepLKey) == "" {
			problems = append(problems, "translate.deepl_key is required for the deepl backend")
		}
	case BackendLLM:
		if strings.TrimSpace(c.LLM.Model) == "" {
			problems = append(problems, "llm.model is required for the llm backend")
		}
	default:
		problems = append(problems, fmt.Sprintf("translate.backend: unknown backend %q", c.Translate.Backend))
	}

	if c.Translate.BatchSize < 0 {
		problems = append(problems, "translate.batch_size must be >= 0")
	}
	if c.Fetch.RequestsPerSecond < 0 {
		problems = append(problems, "fetch.requests_per_second must be >= 0")
	}
	if c.Cache.MaxAge < 0 {
		problems = append(problems, "cache.max_age must be >= 0")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}
