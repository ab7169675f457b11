package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
)

type contextKey string

const (
	SessionIDKey contextKey = "session_id"
	RequestIDKey contextKey = "request_id"
)

// SessionCookie is the cookie that carries the chat session id.
const SessionCookie = "chat_session"

// DefaultSessionID is the shared session used when per-client sessions are
// disabled, and by any client that never received a session cookie.
const DefaultSessionID = "default"

// Sessions attaches a session id to the request context. A valid chat_session
// cookie selects its session and has its lifetime refreshed; a request without
// one uses DefaultSessionID. With shared set, every request uses DefaultSessionID.
func Sessions(shared bool, ttl time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sessionID := DefaultSessionID
			if !shared {
				if id, ok := sessionFromCookie(r); ok {
					sessionID = id
					setSessionCookie(w, id, ttl)
				}
			}

			ctx := context.WithValue(r.Context(), SessionIDKey, sessionID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IssueSession gives a request without a valid chat_session cookie a fresh
// session id and sets the cookie. It wraps the page route only, so API callers
// that never load the page never mint sessions.
func IssueSession(shared bool, ttl time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if shared {
				next.ServeHTTP(w, r)
				return
			}
			if _, ok := sessionFromCookie(r); ok {
				next.ServeHTTP(w, r)
				return
			}

			sessionID := uuid.NewString()
			setSessionCookie(w, sessionID, ttl)
			ctx := context.WithValue(r.Context(), SessionIDKey, sessionID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func sessionFromCookie(r *http.Request) (string, bool) {
	c, err := r.Cookie(SessionCookie)
	if err != nil {
		return "", false
	}
	id, err := uuid.Parse(c.Value)
	if err != nil {
		return "", false
	}
	return id.String(), true
}

func setSessionCookie(w http.ResponseWriter, sessionID string, ttl time.Duration) {
	cookie := &http.Cookie{
		Name:     SessionCookie,
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	if ttl > 0 {
		cookie.MaxAge = int(ttl.Seconds())
	}
	http.SetCookie(w, cookie)
}

// GetSessionID extracts the session id from request context
func GetSessionID(ctx context.Context) string {
	id, _ := ctx.Value(SessionIDKey).(string)
	if id == "" {
		return DefaultSessionID
	}
	return id
}
