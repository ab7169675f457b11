package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"pybot-backend/internal/models"
)

// MemoryTranscriptRepo keeps transcripts in process memory. Nothing survives a restart.
// With a positive ttl, a session idle for longer than ttl is dropped.
type MemoryTranscriptRepo struct {
	mu        sync.Mutex
	sessions  map[string]*memorySession
	ttl       time.Duration
	lastSweep time.Time
	now       func() time.Time
}

type memorySession struct {
	turns   []models.Turn
	touched time.Time
}

func NewMemoryTranscriptRepo(ttl time.Duration) *MemoryTranscriptRepo {
	return &MemoryTranscriptRepo{
		sessions: make(map[string]*memorySession),
		ttl:      ttl,
		now:      time.Now,
	}
}

func (r *MemoryTranscriptRepo) Name() string { return "memory" }

// session returns the live session, dropping it first if it has expired. Callers hold r.mu.
func (r *MemoryTranscriptRepo) session(sessionID string, now time.Time) *memorySession {
	s, ok := r.sessions[sessionID]
	if !ok {
		return nil
	}
	if r.expired(s, now) {
		delete(r.sessions, sessionID)
		return nil
	}
	return s
}

func (r *MemoryTranscriptRepo) expired(s *memorySession, now time.Time) bool {
	return r.ttl > 0 && now.Sub(s.touched) > r.ttl
}

// sweep drops every expired session, at most once per ttl. Callers hold r.mu.
func (r *MemoryTranscriptRepo) sweep(now time.Time) {
	if r.ttl <= 0 || now.Sub(r.lastSweep) < r.ttl {
		return
	}
	r.lastSweep = now
	for id, s := range r.sessions {
		if r.expired(s, now) {
			delete(r.sessions, id)
		}
	}
}

// Len returns the number of live sessions.
func (r *MemoryTranscriptRepo) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	n := 0
	for _, s := range r.sessions {
		if !r.expired(s, now) {
			n++
		}
	}
	return n
}

func (r *MemoryTranscriptRepo) Turns(ctx context.Context, sessionID string) ([]models.Turn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.session(sessionID, r.now())
	if s == nil {
		return []models.Turn{}, nil
	}
	out := make([]models.Turn, len(s.turns))
	copy(out, s.turns)
	return out, nil
}

func (r *MemoryTranscriptRepo) Append(ctx context.Context, sessionID string, turns ...models.Turn) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.sweep(now)

	s := r.session(sessionID, now)
	if s == nil {
		s = &memorySession{}
		r.sessions[sessionID] = s
	}
	s.turns = append(s.turns, turns...)
	s.touched = now
	return len(s.turns), nil
}

func (r *MemoryTranscriptRepo) Truncate(ctx context.Context, sessionID string, length int) error {
	if length < 0 {
		return fmt.Errorf("invalid transcript length %d", length)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.session(sessionID, r.now())
	if s == nil || length >= len(s.turns) {
		return nil
	}
	if length == 0 {
		delete(r.sessions, sessionID)
		return nil
	}
	s.turns = s.turns[:length:length]
	return nil
}

func (r *MemoryTranscriptRepo) Reset(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, sessionID)
	return nil
}
