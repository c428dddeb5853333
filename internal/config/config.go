package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultRegions is the region selector shown when REGIONS is unset. The
// first entry is the default selection.
var DefaultRegions = []string{"KR", "US", "JP", "GB", "DE", "FR", "IN", "BR", "CA", "AU"}

// MaxResultsLimit is the largest page the mostPopular chart accepts.
const MaxResultsLimit = 50

type Config struct {
	Port            int
	APIKey          string
	APIBase         string
	Regions         []string
	MaxResults      int
	CacheTTL        time.Duration
	CacheMaxEntries int

	LogDir       string
	EventBackend string // "csv" or "sqlite"
	DBDSN        string

	SessionSecret  string
	AdminUser      string
	AdminPassword  string
	GeneralPassMin int
	GeneralPassMax int
	LoginRateRPS   float64
	LoginRateBurst int

	LogLevel string
}

// ConfigError reports a missing or unusable setting. It is an operator
// problem, not a code defect, and carries the remediation text shown to
// the user.
type ConfigError struct {
	Key         string
	Remediation string
}

func (e *ConfigError) Error() string {
	return e.Key + " is not configured: " + e.Remediation
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getint(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getfloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			return n
		}
	}
	return def
}

func getlist(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return append([]string(nil), def...)
	}
	var out []string
	seen := make(map[string]bool)
	for _, part := range strings.Split(v, ",") {
		code := strings.ToUpper(strings.TrimSpace(part))
		if code == "" || seen[code] {
			continue
		}
		seen[code] = true
		out = append(out, code)
	}
	if len(out) == 0 {
		return append([]string(nil), def...)
	}
	return out
}

// Load reads .env files when present and then the process environment.
// A missing .env file is not an error.
func Load() Config {
	_ = godotenv.Load(".env", ".env.local")

	return Config{
		Port:            getint("PORT", 8080),
		APIKey:          strings.TrimSpace(os.Getenv("YOUTUBE_API_KEY")),
		APIBase:         getenv("YOUTUBE_API_BASE", "https://www.googleapis.com/youtube/v3"),
		Regions:         getlist("REGIONS", DefaultRegions),
		MaxResults:      max(1, min(getint("MAX_RESULTS", 30), MaxResultsLimit)),
		CacheTTL:        time.Duration(getint("CACHE_TTL_SECONDS", 300)) * time.Second,
		CacheMaxEntries: getint("CACHE_MAX_ENTRIES", 256),
		LogDir:          getenv("LOG_DIR", "logs"),
		EventBackend:    strings.ToLower(getenv("EVENT_BACKEND", "csv")),
		DBDSN:           getenv("DB_DSN", "file:trendboard.db?_foreign_keys=on"),
		SessionSecret:   getenv("SESSION_SECRET", ""),
		AdminUser:       getenv("ADMIN_USER", "admin"),
		AdminPassword:   getenv("ADMIN_PASSWORD", "admin"),
		GeneralPassMin:  getint("GENERAL_PASSWORD_MIN", 1000),
		GeneralPassMax:  getint("GENERAL_PASSWORD_MAX", 9999),
		LoginRateRPS:    getfloat("LOGIN_RATE_RPS", 1.0),
		LoginRateBurst:  getint("LOGIN_RATE_BURST", 5),
		LogLevel:        getenv("LOG_LEVEL", "info"),
	}
}

// Validate checks the settings that must be present before any upstream
// call is made.
func (c Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return &ConfigError{
			Key: "YOUTUBE_API_KEY",
			Remediation: "set YOUTUBE_API_KEY in the environment or in a .env file next to the binary, " +
				`for example YOUTUBE_API_KEY="YOUR_YOUTUBE_DATA_API_KEY"`,
		}
	}
	return nil
}

// DefaultRegion is the first configured region.
func (c Config) DefaultRegion() string {
	if len(c.Regions) == 0 {
		return DefaultRegions[0]
	}
	return c.Regions[0]
}

// HasRegion reports whether code is one of the configured regions.
func (c Config) HasRegion(code string) bool {
	for _, r := range c.Regions {
		if r == code {
			return true
		}
	}
	return false
}
