package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"pybot-backend/internal/conversation"
	"pybot-backend/internal/middleware"
	"pybot-backend/internal/models"
	"pybot-backend/internal/web"
)

// User-facing messages. Clients only ever see these strings.
const (
	MsgNotConfigured  = "AI service is not configured. Please ensure the GEMINI_API_KEY is set in your terminal."
	MsgInvalidRequest = "Invalid request format."
	MsgMissingMessage = "Please provide a message."
	MsgUpstreamError  = "Sorry, I ran into an error communicating with the AI model."
	MsgCleared        = "Conversation cleared."
)

// maxBodySize bounds a chat request body; it matches the WebSocket frame limit.
const maxBodySize = 64 * 1024

type conversationService interface {
	Available() bool
	StoreName() string
	Submit(ctx context.Context, sessionID, userText string) (string, error)
	History(ctx context.Context, sessionID string) ([]models.Turn, error)
	Reset(ctx context.Context, sessionID string) error
}

type ChatHandler struct {
	conversation conversationService
	title        string
	log          logrus.FieldLogger
}

func NewChatHandler(conversation conversationService, title string, log logrus.FieldLogger) *ChatHandler {
	return &ChatHandler{
		conversation: conversation,
		title:        title,
		log:          log,
	}
}

// Index serves the chat page.
func (h *ChatHandler) Index(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	err := web.RenderIndex(&buf, web.IndexData{
		Title:        h.title,
		AIConfigured: h.conversation.Available(),
	})
	if err != nil {
		h.log.WithError(err).Error("Failed to render index")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// GetResponse answers POST /get_response.
func (h *ChatHandler) GetResponse(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(http.MaxBytesReader(w, r.Body, maxBodySize)); err != nil {
		h.log.WithFields(logrus.Fields{
			"session_id": middleware.GetSessionID(r.Context()),
			"error":      err,
		}).Warn("Rejected chat request body")
		writeJSON(w, http.StatusBadRequest, models.ChatResponse{Response: MsgInvalidRequest})
		return
	}

	status, text := h.Reply(r.Context(), middleware.GetSessionID(r.Context()), buf.Bytes())
	writeJSON(w, status, models.ChatResponse{Response: text})
}

// Reply runs one chat exchange for a raw JSON payload and returns the HTTP
// status and the text to show the user. It backs both the HTTP and the
// WebSocket transports.
func (h *ChatHandler) Reply(ctx context.Context, sessionID string, payload []byte) (int, string) {
	if !h.conversation.Available() {
		return http.StatusInternalServerError, MsgNotConfigured
	}

	var req *models.ChatRequest
	if err := json.Unmarshal(payload, &req); err != nil || req == nil {
		return http.StatusBadRequest, MsgInvalidRequest
	}

	if req.Message == nil || strings.TrimSpace(*req.Message) == "" {
		return http.StatusBadRequest, MsgMissingMessage
	}

	reply, err := h.conversation.Submit(ctx, sessionID, *req.Message)
	if err != nil {
		return h.statusForError(sessionID, err)
	}

	return http.StatusOK, reply
}

func (h *ChatHandler) statusForError(sessionID string, err error) (int, string) {
	var upstream *conversation.UpstreamError
	switch {
	case errors.Is(err, conversation.ErrUnavailable):
		return http.StatusInternalServerError, MsgNotConfigured
	case errors.As(err, &upstream):
		return http.StatusInternalServerError, MsgUpstreamError
	default:
		h.log.WithFields(logrus.Fields{
			"session_id": sessionID,
			"error":      err,
		}).Error("Chat request failed")
		return http.StatusInternalServerError, MsgUpstreamError
	}
}

// History returns the caller's transcript.
func (h *ChatHandler) History(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.GetSessionID(r.Context())

	turns, err := h.conversation.History(r.Context(), sessionID)
	if err != nil {
		h.log.WithFields(logrus.Fields{
			"session_id": sessionID,
			"error":      err,
		}).Error("Failed to load history")
		writeJSON(w, http.StatusInternalServerError, models.ChatResponse{Response: MsgUpstreamError})
		return
	}
	if turns == nil {
		turns = []models.Turn{}
	}

	writeJSON(w, http.StatusOK, models.HistoryResponse{SessionID: sessionID, Turns: turns})
}

// Reset clears the caller's transcript.
func (h *ChatHandler) Reset(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.GetSessionID(r.Context())

	if err := h.conversation.Reset(r.Context(), sessionID); err != nil {
		h.log.WithFields(logrus.Fields{
			"session_id": sessionID,
			"error":      err,
		}).Error("Failed to reset conversation")
		writeJSON(w, http.StatusInternalServerError, models.ChatResponse{Response: MsgUpstreamError})
		return
	}

	writeJSON(w, http.StatusOK, models.ChatResponse{Response: MsgCleared})
}

// Health reports liveness and whether the AI client is configured.
func (h *ChatHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.HealthResponse{
		Status:       "ok",
		AIConfigured: h.conversation.Available(),
		Store:        h.conversation.StoreName(),
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
