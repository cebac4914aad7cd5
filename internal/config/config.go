package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string
	Port        string
	Host        string

	DataDir      string
	StoreBackend string
	RedisAddr    string
	DatabaseURL  string

	OFFBaseURL       string
	OFFLanguage      string
	OFFUserAgent     string
	OFFTimeout       time.Duration
	OFFRatePerMinute int
	OFFMaxRetries    int

	ScanDebounce  time.Duration
	HistoryLimit  int
	ProductsLimit int
	FlushInterval string

	LogMode     string
	LogLevel    string
	LogFile     string
	CORSOrigins string
}

// Load reads configuration from the environment. Values come from, in
// order of precedence: process environment, .env, the YAML file named by
// CONFIG_FILE, defaults.
func Load() (*Config, error) {
	// Load .env file if exists (ignore error in production)
	_ = godotenv.Load()

	file, err := loadFile(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return nil, err
	}
	getEnv := func(key, defaultValue string) string {
		if value := os.Getenv(key); value != "" {
			return value
		}
		if value, ok := file[strings.ToLower(key)]; ok && value != "" {
			return value
		}
		return defaultValue
	}

	cfg := &Config{
		Environment:   getEnv("ENVIRONMENT", "development"),
		Port:          getEnv("PORT", "8080"),
		Host:          getEnv("HOST", "0.0.0.0"),
		DataDir:       getEnv("DATA_DIR", "./data"),
		StoreBackend:  strings.ToLower(getEnv("STORE_BACKEND", "bolt")),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		OFFBaseURL:    getEnv("OFF_BASE_URL", "https://world.openfoodfacts.org/api/v2/product/"),
		OFFLanguage:   getEnv("OFF_LANGUAGE", "fr"),
		OFFUserAgent:  getEnv("OFF_USER_AGENT", "nutriscan/1.0 (+https://github.com/nutriscan)"),
		FlushInterval: getEnv("FLUSH_INTERVAL", "@every 30s"),
		LogMode:       getEnv("LOG_MODE", ""),
		LogLevel:      getEnv("LOG_LEVEL", ""),
		LogFile:       getEnv("LOG_FILE", ""),
		CORSOrigins:   getEnv("CORS_ORIGINS", "http://localhost:5173,http://localhost:3000"),
	}
	if cfg.LogMode == "" {
		cfg.LogMode = cfg.Environment
	}

	// Parse integer values
	ints := []struct {
		key string
		def string
		dst *int
	}{
		{"OFF_RATE_PER_MINUTE", "100", &cfg.OFFRatePerMinute},
		{"OFF_MAX_RETRIES", "0", &cfg.OFFMaxRetries},
		{"HISTORY_LIMIT", "50", &cfg.HistoryLimit},
		{"PRODUCTS_LIMIT", "200", &cfg.ProductsLimit},
	}
	for _, it := range ints {
		v, err := strconv.Atoi(getEnv(it.key, it.def))
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", it.key, err)
		}
		if v < 0 {
			return nil, fmt.Errorf("invalid %s: must not be negative", it.key)
		}
		*it.dst = v
	}
	if cfg.HistoryLimit == 0 {
		return nil, fmt.Errorf("invalid HISTORY_LIMIT: must be positive")
	}

	// Parse durations
	durations := []struct {
		key string
		def string
		dst *time.Duration
	}{
		{"OFF_TIMEOUT", "10s", &cfg.OFFTimeout},
		{"SCAN_DEBOUNCE", "1s", &cfg.ScanDebounce},
	}
	for _, it := range durations {
		d, err := time.ParseDuration(getEnv(it.key, it.def))
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", it.key, err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("invalid %s: must be positive", it.key)
		}
		*it.dst = d
	}

	if cfg.StoreBackend == "postgres" && cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required for the postgres backend")
	}

	return cfg, nil
}

// IsProduction reports whether the service runs in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Addr is the HTTP listen address
func (c *Config) Addr() string {
	return c.Host + ":" + c.Port
}

// loadFile reads a flat YAML mapping. Keys are the lower-cased variable
// names, e.g. "store_backend: sqlite".
func loadFile(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	values := make(map[string]string, len(raw))
	for k, v := range raw {
		s, err := cast.ToStringE(v)
		if err != nil {
			return nil, fmt.Errorf("invalid config file value for %s: %w", k, err)
		}
		values[strings.ToLower(k)] = s
	}
	return values, nil
}
