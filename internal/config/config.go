package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Feeds
	FeedURLs     []string
	FeedInterval time.Duration // フィード間の取得スロットリング間隔
	FetchTimeout time.Duration
	FetchMaxSize int64

	// Artifacts
	DataDir string

	// LLM
	LLMEndpoint     string
	LLMModelID      string
	LLMTemperature  float64
	LLMMaxTokens    int
	LLMCallInterval time.Duration // モデル呼び出し間のスロットリング間隔

	// Tagging
	StopTerms []string

	// Server
	ServerPort string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	feedURLs := os.Getenv("FEED_URLS")
	if feedURLs == "" {
		missing = append(missing, "FEED_URLS")
	}

	cfg.LLMEndpoint = os.Getenv("LLM_ENDPOINT")
	if cfg.LLMEndpoint == "" {
		missing = append(missing, "LLM_ENDPOINT")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	cfg.FeedURLs = splitAndTrim(feedURLs)

	// Optional fields with defaults
	cfg.FeedInterval = getEnvDuration("FEED_INTERVAL", 2*time.Second)
	cfg.FetchTimeout = getEnvDuration("FETCH_TIMEOUT", 10*time.Second)
	cfg.FetchMaxSize = getEnvInt64("FETCH_MAX_SIZE", 5242880)
	cfg.DataDir = getEnvString("DATA_DIR", "./data")
	cfg.LLMModelID = getEnvString("LLM_MODEL_ID", "us.amazon.nova-micro-v1:0")
	cfg.LLMTemperature = getEnvFloat("LLM_TEMPERATURE", 0.7)
	cfg.LLMMaxTokens = getEnvInt("LLM_MAX_TOKENS", 5000)
	cfg.LLMCallInterval = getEnvDuration("LLM_CALL_INTERVAL", 3*time.Second)
	cfg.StopTerms = splitAndTrim(getEnvString("STOP_TERMS", "aws"))
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")

	return cfg, nil
}

// splitAndTrim はカンマ区切りの環境変数値を分割し、各要素の前後空白を除去する。
// 空要素は除外する。
func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
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

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
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
