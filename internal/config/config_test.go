package config

import (
	"testing"
	"time"
)

func TestGetEnvOrDefault(t *testing.T) {
	tests := []struct {
		name       string
		key        string
		envValue   string
		defaultVal string
		expected   string
	}{
		{"uses env value", "TEST_VAR_1", "hello", "default", "hello"},
		{"uses default when empty", "TEST_VAR_2", "", "default", "default"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.envValue)

			result := getEnvOrDefault(tc.key, tc.defaultVal)
			if result != tc.expected {
				t.Errorf("Expected %q, got %q", tc.expected, result)
			}
		})
	}
}

func TestGetEnvAsIntOrDefault(t *testing.T) {
	tests := []struct {
		name       string
		key        string
		envValue   string
		defaultVal int
		expected   int
	}{
		{"parses integer", "TEST_INT_1", "42", 10, 42},
		{"uses default for empty", "TEST_INT_2", "", 10, 10},
		{"uses default for non-numeric", "TEST_INT_3", "abc", 10, 10},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.envValue)

			result := getEnvAsIntOrDefault(tc.key, tc.defaultVal)
			if result != tc.expected {
				t.Errorf("Expected %d, got %d", tc.expected, result)
			}
		})
	}
}

func TestGetEnvAsDurationAndBool(t *testing.T) {
	t.Setenv("TEST_DUR", "90s")
	if got := getEnvAsDurationOrDefault("TEST_DUR", time.Second); got != 90*time.Second {
		t.Errorf("Expected 90s, got %s", got)
	}

	t.Setenv("TEST_DUR_BAD", "soon")
	if got := getEnvAsDurationOrDefault("TEST_DUR_BAD", time.Second); got != time.Second {
		t.Errorf("Expected fallback of 1s, got %s", got)
	}

	t.Setenv("TEST_BOOL", "true")
	if !getEnvAsBoolOrDefault("TEST_BOOL", false) {
		t.Error("Expected true")
	}

	t.Setenv("TEST_BOOL_BAD", "maybe")
	if getEnvAsBoolOrDefault("TEST_BOOL_BAD", false) {
		t.Error("Expected fallback to false")
	}
}

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"GEMINI_API_KEY", "TRANSCRIPT_STORE", "CHAT_MAX_TURNS", "SYSTEM_INSTRUCTION", "PORT"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.AIConfigured() {
		t.Error("Expected AI to be unconfigured without GEMINI_API_KEY")
	}
	if cfg.TranscriptStore != StoreMemory {
		t.Errorf("Expected memory store, got %q", cfg.TranscriptStore)
	}
	if cfg.SystemInstruction != DefaultSystemInstruction {
		t.Errorf("Unexpected system instruction %q", cfg.SystemInstruction)
	}
	if cfg.ChatMaxTurns != 0 {
		t.Errorf("Expected unbounded transcript window, got %d", cfg.ChatMaxTurns)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected defaults to validate, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"memory store", Config{TranscriptStore: StoreMemory, GeminiConcurrentReqs: 1}, false},
		{"redis without url", Config{TranscriptStore: StoreRedis, GeminiConcurrentReqs: 1}, true},
		{"redis with url", Config{TranscriptStore: StoreRedis, RedisURL: "redis://localhost:6379", GeminiConcurrentReqs: 1}, false},
		{"postgres without url", Config{TranscriptStore: StorePostgres, GeminiConcurrentReqs: 1}, true},
		{"unknown store", Config{TranscriptStore: "sqlite", GeminiConcurrentReqs: 1}, true},
		{"zero concurrency", Config{TranscriptStore: StoreMemory}, true},
		{"negative max turns", Config{TranscriptStore: StoreMemory, GeminiConcurrentReqs: 1, ChatMaxTurns: -2}, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}
