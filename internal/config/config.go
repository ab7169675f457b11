package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const DefaultSystemInstruction = "You are a friendly and helpful AI assistant named PyBot, powered by Google Gemini. Keep your answers concise, engaging, and use markdown formatting."

// Transcript store backends.
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

type Config struct {
	// Server
	Port string
	Env  string

	// Gemini AI
	GeminiAPIKey         string
	GeminiModel          string
	GeminiConcurrentReqs int
	GeminiTimeout        time.Duration
	SystemInstruction    string

	// Conversation
	ChatMaxTurns    int
	TranscriptStore string
	SessionTTL      time.Duration
	SingleSession   bool

	// Redis
	RedisURL string

	// Database
	DatabaseURL string

	// Logging
	LogLevel string
	LogJSON  bool
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	cfg := &Config{
		Port:                 getEnvOrDefault("PORT", "5000"),
		Env:                  getEnvOrDefault("ENV", "development"),
		GeminiAPIKey:         os.Getenv("GEMINI_API_KEY"),
		GeminiModel:          getEnvOrDefault("GEMINI_MODEL", "gemini-2.5-flash"),
		GeminiConcurrentReqs: getEnvAsIntOrDefault("GEMINI_CONCURRENT_REQUESTS", 5),
		GeminiTimeout:        getEnvAsDurationOrDefault("GEMINI_TIMEOUT", 60*time.Second),
		SystemInstruction:    getEnvOrDefault("SYSTEM_INSTRUCTION", DefaultSystemInstruction),
		ChatMaxTurns:         getEnvAsIntOrDefault("CHAT_MAX_TURNS", 0),
		TranscriptStore:      strings.ToLower(getEnvOrDefault("TRANSCRIPT_STORE", StoreMemory)),
		SessionTTL:           getEnvAsDurationOrDefault("SESSION_TTL", 24*time.Hour),
		SingleSession:        getEnvAsBoolOrDefault("SINGLE_SESSION", false),
		RedisURL:             getEnvOrDefault("REDIS_URL", ""),
		DatabaseURL:          getEnvOrDefault("DATABASE_URL", ""),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogJSON:              strings.EqualFold(getEnvOrDefault("LOG_FORMAT", "text"), "json"),
	}

	return cfg
}

// AIConfigured reports whether a Gemini credential was supplied at startup.
func (c *Config) AIConfigured() bool {
	return c.GeminiAPIKey != ""
}

// Validate checks settings that depend on each other.
func (c *Config) Validate() error {
	switch c.TranscriptStore {
	case StoreMemory:
	case StoreRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("TRANSCRIPT_STORE=redis requires REDIS_URL")
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("TRANSCRIPT_STORE=postgres requires DATABASE_URL")
		}
	default:
		return fmt.Errorf("unknown TRANSCRIPT_STORE %q", c.TranscriptStore)
	}

	if c.GeminiConcurrentReqs < 1 {
		return fmt.Errorf("GEMINI_CONCURRENT_REQUESTS must be at least 1, got %d", c.GeminiConcurrentReqs)
	}
	if c.ChatMaxTurns < 0 {
		return fmt.Errorf("CHAT_MAX_TURNS must not be negative, got %d", c.ChatMaxTurns)
	}
	return nil
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

func getEnvAsBoolOrDefault(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvAsDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}
	return d
}
