package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/require"

	"pybot-backend/internal/models"
)

func TestSplitTurns(t *testing.T) {
	turns := []models.Turn{
		{Role: models.RoleUser, Text: "hello"},
		{Role: models.RoleModel, Text: "hi"},
		{Role: models.RoleUser, Text: "what's up?"},
	}

	history, last, err := splitTurns(turns)
	require.NoError(t, err)
	require.Equal(t, "what's up?", last.Text)
	require.Len(t, history, 2)
	require.Equal(t, "user", history[0].Role)
	require.Equal(t, "model", history[1].Role)
	require.Equal(t, []genai.Part{genai.Text("hi")}, history[1].Parts)
}

func TestSplitTurns_Rejects(t *testing.T) {
	_, _, err := splitTurns(nil)
	require.Error(t, err)

	_, _, err = splitTurns([]models.Turn{{Role: models.RoleModel, Text: "dangling"}})
	require.Error(t, err)
}

func TestExtractText(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{Parts: []genai.Part{genai.Text("Hello, "), genai.Text("world")}}},
			{Content: nil},
		},
	}
	require.Equal(t, "Hello, world", extractText(resp))
	require.Equal(t, "", extractText(nil))
	require.Equal(t, "", extractText(&genai.GenerateContentResponse{}))
}

func TestReplyText_KeepsWhitespace(t *testing.T) {
	code := "```python\n    print('hi')\n```\n"
	resp := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{
		{Content: &genai.Content{Parts: []genai.Part{genai.Text("  Here you go:\n\n"), genai.Text(code)}}},
	}}

	text, err := replyText(resp)
	require.NoError(t, err)
	require.Equal(t, "  Here you go:\n\n"+code, text)

	blank := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{
		{Content: &genai.Content{Parts: []genai.Part{genai.Text(" \n\t ")}}},
	}}
	_, err = replyText(blank)
	require.ErrorIs(t, err, ErrEmptyReply)

	_, err = replyText(nil)
	require.ErrorIs(t, err, ErrEmptyReply)
}

func TestRateChan_BoundsConcurrency(t *testing.T) {
	s := &GeminiService{rateChan: newRateChan(1)}

	require.NoError(t, s.acquireRate(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, s.acquireRate(ctx), context.DeadlineExceeded)

	s.releaseRate()
	require.NoError(t, s.acquireRate(context.Background()))
}

func TestNewRateChan_MinimumOneSlot(t *testing.T) {
	require.Equal(t, 1, cap(newRateChan(0)))
	require.Equal(t, 3, len(newRateChan(3)))
}
