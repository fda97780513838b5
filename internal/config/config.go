package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/maltedev/catalog-scraper/internal/models"
)

const (
	DefaultCatalogURL = "https://online.metro-cc.ru/category/chaj-kofe-kakao/kofe?from=under_search&in_stock=1&attributes=1710000248%3Arastvorimyy&page="
	DefaultUserAgent  = "Mozilla/5.0 (Windows; U; Windows NT 6.1; en-US; rv:1.9.1.5) Gecko/20091102 Firefox/3.5.5T(.NET CLR 3.5.30729)"
)

type Config struct {
	Catalog  CatalogConfig
	Report   ReportConfig
	Scraper  ScraperConfig
	Fetch    FetchConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Server   ServerConfig
	Logging  LoggingConfig
}

type CatalogConfig struct {
	// URL is the listing URL template; "{page}" is replaced by the page
	// number, otherwise the number is appended.
	URL        string
	StoresFile string
	City       string
	Stores     []models.StoreContext
}

type ReportConfig struct {
	Path  string
	Sheet string
	// Dir receives the per-run reports of the API server.
	Dir string
}

type ScraperConfig struct {
	ContextConcurrency int
	DetailConcurrency  int
	RateLimitMin       time.Duration
	RateLimitMax       time.Duration
	// RequestRPS caps requests per second across all contexts; zero disables it.
	RequestRPS float64
	UserAgent  string
}

type FetchConfig struct {
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

type DatabaseConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
}

type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	StreamMaxLen int64
}

type ServerConfig struct {
	Port            string
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	RunsFile        string
}

type LoggingConfig struct {
	Level  string
	Format string
}

// Load reads the configuration from the environment and loads the store
// contexts from STORES_FILE, or the built-in list when it is unset.
func Load() (*Config, error) {
	cfg := &Config{
		Catalog: CatalogConfig{
			URL:        getEnvOrDefault("CATALOG_URL", DefaultCatalogURL),
			StoresFile: getEnvOrDefault("STORES_FILE", ""),
			City:       getEnvOrDefault("CATALOG_CITY", ""),
		},
		Report: ReportConfig{
			Path:  getEnvOrDefault("REPORT_PATH", "result.xlsx"),
			Sheet: getEnvOrDefault("REPORT_SHEET", "Catalog"),
			Dir:   getEnvOrDefault("REPORT_DIR", "reports"),
		},
		Scraper: ScraperConfig{
			ContextConcurrency: getIntOrDefault("SCRAPER_CONTEXT_CONCURRENCY", 4),
			DetailConcurrency:  getIntOrDefault("SCRAPER_DETAIL_CONCURRENCY", 8),
			RateLimitMin:       getDurationOrDefault("SCRAPER_RATE_LIMIT_MIN", 200*time.Millisecond),
			RateLimitMax:       getDurationOrDefault("SCRAPER_RATE_LIMIT_MAX", time.Second),
			RequestRPS:         getFloatOrDefault("REQUEST_RPS", 10),
			UserAgent:          getEnvOrDefault("FETCH_USER_AGENT", DefaultUserAgent),
		},
		Fetch: FetchConfig{
			Timeout:    getDurationOrDefault("FETCH_TIMEOUT", 30*time.Second),
			MaxRetries: getIntOrDefault("FETCH_MAX_RETRIES", 2),
			RetryDelay: getDurationOrDefault("FETCH_RETRY_DELAY", time.Second),
		},
		Database: DatabaseConfig{
			Enabled:  getBoolOrDefault("DB_ENABLED", false),
			Host:     getEnvOrDefault("DB_HOST", "localhost"),
			Port:     getIntOrDefault("DB_PORT", 5432),
			User:     getEnvOrDefault("DB_USER", "postgres"),
			Password: getEnvOrDefault("DB_PASSWORD", ""),
			DBName:   getEnvOrDefault("DB_NAME", "catalog_scraper"),
			SSLMode:  getEnvOrDefault("DB_SSL_MODE", "disable"),
			MaxConns: getIntOrDefault("DB_MAX_CONNS", 10),
		},
		Redis: RedisConfig{
			Addr:         getEnvOrDefault("REDIS_ADDR", ""),
			Password:     getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:           getIntOrDefault("REDIS_DB", 0),
			StreamMaxLen: int64(getIntOrDefault("REDIS_STREAM_MAX_LEN", 10000)),
		},
		Server: ServerConfig{
			Port:            getEnvOrDefault("SERVER_PORT", "8080"),
			Host:            getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			RunsFile:        getEnvOrDefault("RUNS_FILE", "runs.json"),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.LoadStores(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadStores replaces Catalog.Stores with the contents of Catalog.StoresFile,
// or the built-in list when no file is set.
func (c *Config) LoadStores() error {
	if c.Catalog.StoresFile == "" {
		c.Catalog.Stores = DefaultStores()
		return nil
	}

	stores, err := LoadStoresFile(c.Catalog.StoresFile)
	if err != nil {
		return err
	}
	c.Catalog.Stores = stores
	return nil
}

// SelectedStores returns the stores of Catalog.City, or all of them.
func (c *Config) SelectedStores() []models.StoreContext {
	return models.FilterByCity(c.Catalog.Stores, c.Catalog.City)
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Catalog.URL) == "" {
		return fmt.Errorf("CATALOG_URL is required")
	}

	if c.Report.Path == "" {
		return fmt.Errorf("REPORT_PATH is required")
	}

	if c.Scraper.ContextConcurrency < 1 {
		return fmt.Errorf("SCRAPER_CONTEXT_CONCURRENCY must be at least 1")
	}

	if c.Scraper.DetailConcurrency < 1 {
		return fmt.Errorf("SCRAPER_DETAIL_CONCURRENCY must be at least 1")
	}

	if c.Scraper.RateLimitMin > c.Scraper.RateLimitMax {
		return fmt.Errorf("SCRAPER_RATE_LIMIT_MIN cannot be greater than SCRAPER_RATE_LIMIT_MAX")
	}

	if c.Scraper.RequestRPS < 0 {
		return fmt.Errorf("REQUEST_RPS cannot be negative")
	}

	if c.Fetch.MaxRetries < 0 {
		return fmt.Errorf("FETCH_MAX_RETRIES cannot be negative")
	}

	if len(c.SelectedStores()) == 0 {
		if c.Catalog.City != "" {
			return fmt.Errorf("no stores configured for city %q", c.Catalog.City)
		}
		return fmt.Errorf("no stores configured")
	}

	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
