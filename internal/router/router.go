package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"pybot-backend/internal/handlers"
	"pybot-backend/internal/middleware"
	"pybot-backend/internal/websocket"
)

type Options struct {
	SingleSession bool
	SessionTTL    time.Duration
}

func New(
	chatHandler *handlers.ChatHandler,
	wsHub *websocket.Hub,
	log logrus.FieldLogger,
	opts Options,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging(log))
	r.Use(chimiddleware.Recoverer)

	// Health check
	r.Get("/health", chatHandler.Health)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Sessions(opts.SingleSession, opts.SessionTTL))

		r.With(middleware.IssueSession(opts.SingleSession, opts.SessionTTL)).Get("/", chatHandler.Index)
		r.Post("/get_response", chatHandler.GetResponse)
		r.Get("/history", chatHandler.History)
		r.Post("/reset", chatHandler.Reset)

		// ──── WebSocket ────
		r.Get("/ws", wsHub.HandleWebSocket)
	})

	return r
}
