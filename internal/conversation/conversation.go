// Package conversation owns the per-session transcript and the exchange with
// the model provider: append the user turn, ask the model, then either record
// the reply or roll the transcript back to where it was.
package conversation

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"pybot-backend/internal/models"
)

// ErrUnavailable is returned for every submission when no model client was configured.
var ErrUnavailable = errors.New("ai service is not configured")

// UpstreamError wraps a failure from the model provider or from recording its reply.
type UpstreamError struct {
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream call failed: %v", e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Generator produces the model's reply to the last user turn.
type Generator interface {
	Generate(ctx context.Context, systemInstruction string, turns []models.Turn) (string, error)
}

// TranscriptStore persists ordered turns per session.
type TranscriptStore interface {
	Name() string
	Turns(ctx context.Context, sessionID string) ([]models.Turn, error)
	Append(ctx context.Context, sessionID string, turns ...models.Turn) (int, error)
	Truncate(ctx context.Context, sessionID string, length int) error
	Reset(ctx context.Context, sessionID string) error
}

type Handler struct {
	store             TranscriptStore
	generator         Generator
	systemInstruction string
	maxTurns          int
	locks             *sessionLocks
	log               logrus.FieldLogger
}

// NewHandler wires a handler. A nil generator puts the handler in unavailable
// mode for its whole lifetime. maxTurns bounds the context sent to the model
// (0 sends the whole transcript).
func NewHandler(store TranscriptStore, generator Generator, systemInstruction string, maxTurns int, log logrus.FieldLogger) *Handler {
	return &Handler{
		store:             store,
		generator:         generator,
		systemInstruction: systemInstruction,
		maxTurns:          maxTurns,
		locks:             newSessionLocks(),
		log:               log,
	}
}

// Available reports whether a model client is configured.
func (h *Handler) Available() bool {
	return h.generator != nil
}

// StoreName names the transcript backend.
func (h *Handler) StoreName() string {
	return h.store.Name()
}

// Submit records userText, asks the model and records its reply. On any
// failure the session transcript is restored to its previous length.
func (h *Handler) Submit(ctx context.Context, sessionID, userText string) (string, error) {
	if !h.Available() {
		return "", ErrUnavailable
	}

	unlock := h.locks.lock(sessionID)
	defer unlock()

	n, err := h.store.Append(ctx, sessionID, models.Turn{Role: models.RoleUser, Text: userText})
	if err != nil {
		return "", fmt.Errorf("failed to record user turn: %w", err)
	}
	mark := n - 1

	turns, err := h.store.Turns(ctx, sessionID)
	if err != nil {
		h.rollback(ctx, sessionID, mark)
		return "", fmt.Errorf("failed to load transcript: %w", err)
	}

	reply, err := h.generator.Generate(ctx, h.systemInstruction, contextWindow(turns, h.maxTurns))
	if err != nil {
		h.rollback(ctx, sessionID, mark)
		h.log.WithFields(logrus.Fields{
			"session_id": sessionID,
			"error":      err,
		}).Error("Error calling Gemini API")
		return "", &UpstreamError{Err: err}
	}

	if _, err := h.store.Append(ctx, sessionID, models.Turn{Role: models.RoleModel, Text: reply}); err != nil {
		h.rollback(ctx, sessionID, mark)
		h.log.WithFields(logrus.Fields{
			"session_id": sessionID,
			"error":      err,
		}).Error("Failed to record model turn")
		return "", &UpstreamError{Err: err}
	}

	return reply, nil
}

// History returns the session transcript in order.
func (h *Handler) History(ctx context.Context, sessionID string) ([]models.Turn, error) {
	return h.store.Turns(ctx, sessionID)
}

// Reset drops the session transcript.
func (h *Handler) Reset(ctx context.Context, sessionID string) error {
	unlock := h.locks.lock(sessionID)
	defer unlock()

	return h.store.Reset(ctx, sessionID)
}

func (h *Handler) rollback(ctx context.Context, sessionID string, length int) {
	// The request context may already be cancelled; the rollback must still land.
	if err := h.store.Truncate(context.WithoutCancel(ctx), sessionID, length); err != nil {
		h.log.WithFields(logrus.Fields{
			"session_id": sessionID,
			"length":     length,
			"error":      err,
		}).Error("Failed to roll back transcript")
	}
}
