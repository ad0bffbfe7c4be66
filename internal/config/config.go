// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/hitoshi/profiletracker/internal/platform"
	"github.com/hitoshi/profiletracker/internal/platform/codechef"
	"github.com/hitoshi/profiletracker/internal/platform/codeforces"
	"github.com/hitoshi/profiletracker/internal/platform/leetcode"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Ingest
	AdapterTimeout         time.Duration
	IngestTimeout          time.Duration
	FetchMaxSize           int64
	CodeForcesFetchMaxSize int64 // user.statusは全提出を返す
	UserAgent              string

	// Upstreams
	LeetCodeEndpoint      string
	CodeChefBaseURL       string
	CodeForcesAPIBase     string
	AllowPrivateUpstreams bool

	// Refresh worker
	RefreshInterval      time.Duration
	RefreshMaxConcurrent int
	RefreshPerMinute     int

	// Rate Limit
	RateLimitTrack int

	// Logging
	LogLevel string

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合、または期限の指定が矛盾する場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("required environment variables are not set: %v", []string{"DATABASE_URL"})
	}

	// Optional fields with defaults
	cfg.AdapterTimeout = getEnvDuration("ADAPTER_TIMEOUT", platform.DefaultTimeout)
	cfg.IngestTimeout = getEnvDuration("INGEST_TIMEOUT", 30*time.Second)
	cfg.FetchMaxSize = getEnvInt64("FETCH_MAX_SIZE", 5242880)
	cfg.CodeForcesFetchMaxSize = getEnvInt64("CODEFORCES_FETCH_MAX_SIZE", 33554432)
	cfg.UserAgent = getEnvString("USER_AGENT", platform.DefaultUserAgent)
	cfg.LeetCodeEndpoint = getEnvString("LEETCODE_ENDPOINT", leetcode.DefaultEndpoint)
	cfg.CodeChefBaseURL = getEnvString("CODECHEF_BASE_URL", codechef.DefaultBaseURL)
	cfg.CodeForcesAPIBase = getEnvString("CODEFORCES_API_BASE", codeforces.DefaultAPIBase)
	cfg.AllowPrivateUpstreams = getEnvBool("ALLOW_PRIVATE_UPSTREAMS", false)
	cfg.RefreshInterval = getEnvDuration("REFRESH_INTERVAL", 6*time.Hour)
	cfg.RefreshMaxConcurrent = getEnvInt("REFRESH_MAX_CONCURRENT", 4)
	cfg.RefreshPerMinute = getEnvInt("REFRESH_PROFILES_PER_MINUTE", 30)
	cfg.RateLimitTrack = getEnvInt("RATE_LIMIT_TRACK", 30)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "*")

	if cfg.AdapterTimeout > cfg.IngestTimeout {
		return nil, fmt.Errorf("ADAPTER_TIMEOUT (%s) must not exceed INGEST_TIMEOUT (%s)", cfg.AdapterTimeout, cfg.IngestTimeout)
	}

	return cfg, nil
}

// Upstreams は設定された上流のベースURLを固定順で返す。
func (c *Config) Upstreams() []string {
	return []string{c.LeetCodeEndpoint, c.CodeChefBaseURL, c.CodeForcesAPIBase}
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
