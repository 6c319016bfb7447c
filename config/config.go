package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/chelsseeey/price-watcher/models"
	"github.com/chelsseeey/price-watcher/scraper"
)

// Config holds the runtime settings read from the environment
type Config struct {
	// storage
	StoreDriver  string // csv, postgres or sqlite
	DatabaseURL  string
	SQLitePath   string
	DataDir      string
	ArtifactsDir string
	CatalogPath  string

	// rendering
	OCRServiceURL string
	OCRLang       string
	BrowserBin    string
	Headless      bool
	Proxies       map[models.Region]scraper.Proxy
	StorageDir    string

	// runs
	MaxConcurrency    int
	Serial            bool
	TaskStartInterval time.Duration
	NavRetries        int
	NavBackoff        time.Duration
	NavTimeout        time.Duration
	ReadyInterval     time.Duration
	ScheduleSpec      string

	// http
	Host           string
	Port           string
	AllowedOrigins []string
	APIKey         string
	RateLimitRPS   float64
	TrustProxy     bool

	LogLevel  string
	LogFormat string

	// ItemURLs overrides the catalog URL of the first item of a site.
	ItemURLs map[string]string
	// KayakAirline keeps only flight cards naming this carrier.
	KayakAirline string
}

// Load reads the configuration from environment variables
func Load() *Config {
	cfg := &Config{
		StoreDriver:  strings.ToLower(getEnv("STORE_DRIVER", "csv")),
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		SQLitePath:   getEnv("SQLITE_PATH", "data/prices.db"),
		DataDir:      getEnv("DATA_DIR", "data"),
		ArtifactsDir: getEnv("ARTIFACTS_DIR", "artifacts"),
		CatalogPath:  getEnv("CATALOG_PATH", ""),

		OCRServiceURL: getEnv("OCR_SERVICE_URL", ""),
		OCRLang:       getEnv("OCR_LANG", scraper.DefaultOCRLang),
		BrowserBin:    getEnv("BROWSER_BIN", ""),
		Headless:      getEnvBool("BROWSER_HEADLESS", true),
		Proxies:       make(map[models.Region]scraper.Proxy),
		StorageDir:    getEnv("STORAGE_DIR", "storage"),

		MaxConcurrency:    getEnvInt("MAX_CONCURRENCY", 2),
		Serial:            getEnvBool("SERIAL", false),
		TaskStartInterval: getEnvDuration("TASK_START_INTERVAL", 0),
		NavRetries:        getEnvInt("NAV_RETRIES", 3),
		NavBackoff:        getEnvDuration("NAV_BACKOFF", 3*time.Second),
		NavTimeout:        getEnvDuration("NAV_TIMEOUT", 60*time.Second),
		ReadyInterval:     getEnvDuration("READY_INTERVAL", time.Second),
		ScheduleSpec:      getEnv("SCHEDULE_SPEC", "0 0,30 * * * *"),

		Host:           getEnv("HOST", "0.0.0.0"),
		Port:           getEnv("PORT", "8080"),
		AllowedOrigins: getEnvList("ALLOWED_ORIGINS", []string{"*"}),
		APIKey:         getEnv("API_KEY", ""),
		RateLimitRPS:   getEnvFloat("RATE_LIMIT_RPS", 5),
		TrustProxy:     getEnvBool("TRUST_PROXY", false),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		ItemURLs:     make(map[string]string),
		KayakAirline: getEnv("KAYAK_AIRLINE", ""),
	}

	for _, region := range []models.Region{models.RegionKR, models.RegionUS} {
		prefix := "PROXY_" + string(region)
		if server := getEnv(prefix, ""); server != "" {
			cfg.Proxies[region] = scraper.Proxy{
				Server:   server,
				Username: getEnv(prefix+"_USER", ""),
				Password: getEnv(prefix+"_PASS", ""),
			}
		}
	}

	for _, site := range []string{"agoda", "kayak", "amazon", "coupang"} {
		if u := getEnv(strings.ToUpper(site)+"_URL", ""); u != "" {
			cfg.ItemURLs[site] = u
		}
	}

	if cfg.MaxConcurrency < 1 {
		cfg.MaxConcurrency = 1
	}
	return cfg
}

// Retry returns the navigation retry options
func (c *Config) Retry() scraper.RetryOptions {
	opts := scraper.DefaultRetryOptions()
	opts.MaxRetries = c.NavRetries
	opts.Backoff = c.NavBackoff
	opts.Timeout = c.NavTimeout
	return opts
}

// Browser returns the settings of the live rendering sessions
func (c *Config) Browser() scraper.BrowserConfig {
	return scraper.BrowserConfig{
		Bin:        c.BrowserBin,
		Headless:   c.Headless,
		Proxies:    c.Proxies,
		StorageDir: c.StorageDir,
	}
}

// Addr returns the HTTP listen address
func (c *Config) Addr() string {
	return c.Host + ":" + c.Port
}

// Helper functions for environment variables
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
