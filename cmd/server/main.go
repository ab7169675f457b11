package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"pybot-backend/internal/config"
	"pybot-backend/internal/conversation"
	"pybot-backend/internal/database"
	"pybot-backend/internal/handlers"
	"pybot-backend/internal/logger"
	"pybot-backend/internal/repository"
	"pybot-backend/internal/router"
	"pybot-backend/internal/services"
	"pybot-backend/internal/websocket"
)

func main() {
	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()
	log := logger.New(cfg.LogLevel, cfg.LogJSON)
	log.Info("🚀 Starting PyBot chat server...")

	if err := cfg.Validate(); err != nil {
		log.Fatalf("✗ Invalid configuration: %v", err)
	}
	log.Info("✓ Environment variables loaded")

	// ──── Step 2: Initialize Transcript Store ────
	store, closeStore, err := newTranscriptStore(cfg, log)
	if err != nil {
		log.Fatalf("✗ Transcript store initialization failed: %v", err)
	}
	defer closeStore()
	log.WithField("store", store.Name()).Info("✓ Transcript store ready")

	// ──── Step 3: Initialize Gemini Client ────
	var generator conversation.Generator
	if cfg.AIConfigured() {
		geminiService, err := services.NewGeminiService(
			cfg.GeminiAPIKey,
			cfg.GeminiModel,
			cfg.GeminiConcurrentReqs,
			cfg.GeminiTimeout,
			log,
		)
		if err != nil {
			log.WithError(err).Error("✗ Could not initialize Gemini client; chat requests will fail")
		} else {
			defer geminiService.Close()
			generator = geminiService
			log.WithField("model", cfg.GeminiModel).Info("✓ Gemini client initialized")
		}
	} else {
		log.Warn("✗ GEMINI_API_KEY is not set; chat requests will report the service as not configured")
	}

	// ──── Step 4: Initialize Handlers ────
	conv := conversation.NewHandler(store, generator, cfg.SystemInstruction, cfg.ChatMaxTurns, log)
	chatHandler := handlers.NewChatHandler(conv, "PyBot", log)
	wsHub := websocket.NewHub(chatHandler, log)

	// ──── Step 5: Start HTTP Server ────
	r := router.New(chatHandler, wsHub, log, router.Options{
		SingleSession: cfg.SingleSession,
		SessionTTL:    cfg.SessionTTL,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.GeminiTimeout + 15*time.Second, // model call plus slack
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info("Shutting down...")

		// Shutdown does not track hijacked connections; the hub drains those.
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			log.WithError(err).Error("Server forced to shutdown")
		}
		wsHub.Close()
	}()

	log.WithFields(logrus.Fields{
		"env":     cfg.Env,
		"api_key": apiKeyStatus(cfg),
		"store":   store.Name(),
	}).Infof("✓ PyBot ready on http://localhost:%s/", cfg.Port)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
	<-stopped
	log.Info("Server stopped gracefully.")
}

func apiKeyStatus(cfg *config.Config) string {
	if cfg.AIConfigured() {
		return "SET"
	}
	return "MISSING"
}

func newTranscriptStore(cfg *config.Config, log logrus.FieldLogger) (conversation.TranscriptStore, func(), error) {
	switch cfg.TranscriptStore {
	case config.StoreRedis:
		client, err := database.NewRedisClient(cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return repository.NewRedisTranscriptRepo(client, cfg.SessionTTL), func() { client.Close() }, nil

	case config.StorePostgres:
		pool, err := database.NewPostgresPool(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := database.RunMigrations(pool, database.Migrations(), log); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return repository.NewPostgresTranscriptRepo(pool), pool.Close, nil

	default:
		return repository.NewMemoryTranscriptRepo(cfg.SessionTTL), func() {}, nil
	}
}
