package conversation

import "pybot-backend/internal/models"

// contextWindow keeps at most maxTurns of the most recent turns and makes sure
// the window opens on a user turn. maxTurns <= 0 keeps everything.
func contextWindow(turns []models.Turn, maxTurns int) []models.Turn {
	if maxTurns <= 0 || len(turns) <= maxTurns {
		return turns
	}

	window := turns[len(turns)-maxTurns:]
	for len(window) > 1 && window[0].Role != models.RoleUser {
		window = window[1:]
	}
	return window
}
