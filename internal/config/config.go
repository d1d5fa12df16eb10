// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultBaseURL       = "https://api.thecatapi.com/v1"
	defaultDatabasePath  = "./data/cats.db"
	defaultPageSize      = 12
	maxPageSize          = 100
	defaultRetentionDays = 30
	defaultSyncMinutes   = 360
	defaultRateLimit     = 60
)

// Config holds the application configuration.
type Config struct {
	TelegramBotToken string
	CatAPIKey        string
	CatAPIBaseURL    string
	DatabasePath     string
	LogLevel         string
	AllowedUsers     []int64

	PageSize        int
	CacheRetention  time.Duration
	SyncInterval    time.Duration // 0 disables background sync
	APIRateLimit    int           // requests per minute, 0 disables the limit
	SimulateOffline bool
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}

	baseURL := os.Getenv("CAT_API_BASE_URL")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	dbPath := os.Getenv("DATABASE_PATH")
	if dbPath == "" {
		dbPath = defaultDatabasePath
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}

	var allowedUsers []int64
	if raw := os.Getenv("ALLOWED_USERS"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			uid, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid user ID %q in ALLOWED_USERS: %w", s, err)
			}
			allowedUsers = append(allowedUsers, uid)
		}
	}

	pageSize, err := envInt("PAGE_SIZE", defaultPageSize)
	if err != nil {
		return nil, err
	}
	if pageSize < 1 || pageSize > maxPageSize {
		return nil, fmt.Errorf("PAGE_SIZE must be between 1 and %d, got %d", maxPageSize, pageSize)
	}

	retentionDays, err := envInt("CACHE_RETENTION_DAYS", defaultRetentionDays)
	if err != nil {
		return nil, err
	}
	if retentionDays < 1 {
		return nil, fmt.Errorf("CACHE_RETENTION_DAYS must be positive, got %d", retentionDays)
	}

	syncMinutes, err := envInt("SYNC_INTERVAL_MINUTES", defaultSyncMinutes)
	if err != nil {
		return nil, err
	}
	if syncMinutes < 0 {
		return nil, fmt.Errorf("SYNC_INTERVAL_MINUTES must not be negative, got %d", syncMinutes)
	}

	rateLimit, err := envInt("API_RATE_LIMIT", defaultRateLimit)
	if err != nil {
		return nil, err
	}

	simulateOffline := false
	if raw := os.Getenv("SIMULATE_OFFLINE"); raw != "" {
		simulateOffline, err = strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid SIMULATE_OFFLINE %q: %w", raw, err)
		}
	}

	return &Config{
		TelegramBotToken: token,
		CatAPIKey:        os.Getenv("CAT_API_KEY"),
		CatAPIBaseURL:    baseURL,
		DatabasePath:     dbPath,
		LogLevel:         logLevel,
		AllowedUsers:     allowedUsers,
		PageSize:         pageSize,
		CacheRetention:   time.Duration(retentionDays) * 24 * time.Hour,
		SyncInterval:     time.Duration(syncMinutes) * time.Minute,
		APIRateLimit:     max(rateLimit, 0),
		SimulateOffline:  simulateOffline,
	}, nil
}

func envInt(key string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}

// IsUserAllowed checks whether a user ID is in the allow list.
// Returns true if the allow list is empty (all users permitted).
func (c *Config) IsUserAllowed(userID int64) bool {
	if len(c.AllowedUsers) == 0 {
		return true
	}
	for _, id := range c.AllowedUsers {
		if id == userID {
			return true
		}
	}
	return false
}
