package models

// Roles a turn can carry. Gemini names the assistant side "model".
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Turn represents a single message in a conversation.
type Turn struct {
	Role string `json:"role"` // "user" or "model"
	Text string `json:"text"`
}

// ChatRequest is the payload sent to the chat endpoint.
type ChatRequest struct {
	Message *string `json:"message"`
}

// ChatResponse is the reply from the AI chat. Errors use the same shape.
type ChatResponse struct {
	Response string `json:"response"`
}

// SocketReply is written back for every chat frame received over the WebSocket.
type SocketReply struct {
	Response string `json:"response"`
	Status   int    `json:"status"`
}

// HistoryResponse lists the turns of the caller's session.
type HistoryResponse struct {
	SessionID string `json:"session_id"`
	Turns     []Turn `json:"turns"`
}

// HealthResponse is served on /health.
type HealthResponse struct {
	Status       string `json:"status"`
	AIConfigured bool   `json:"ai_configured"`
	Store        string `json:"store"`
}
