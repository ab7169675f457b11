package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"

	"pybot-backend/internal/models"
)

// ErrEmptyReply is returned when Gemini answers without any text.
var ErrEmptyReply = errors.New("gemini returned an empty reply")

type GeminiService struct {
	client    *genai.Client
	modelName string
	timeout   time.Duration
	rateChan  chan struct{} // Token bucket
	log       logrus.FieldLogger
}

func NewGeminiService(apiKey, modelName string, concurrentReqs int, timeout time.Duration, log logrus.FieldLogger) (*GeminiService, error) {
	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiService{
		client:    client,
		modelName: modelName,
		timeout:   timeout,
		rateChan:  newRateChan(concurrentReqs),
		log:       log,
	}, nil
}

func newRateChan(concurrentReqs int) chan struct{} {
	if concurrentReqs < 1 {
		concurrentReqs = 1
	}
	rateChan := make(chan struct{}, concurrentReqs)
	for i := 0; i < concurrentReqs; i++ {
		rateChan <- struct{}{}
	}
	return rateChan
}

func (s *GeminiService) Close() {
	s.client.Close()
}

// acquireRate blocks until a rate slot is available
func (s *GeminiService) acquireRate(ctx context.Context) error {
	select {
	case <-s.rateChan:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *GeminiService) releaseRate() {
	s.rateChan <- struct{}{}
}

// Generate sends the conversation to Gemini and returns the reply text.
// turns must end with the user turn being answered.
func (s *GeminiService) Generate(ctx context.Context, systemInstruction string, turns []models.Turn) (string, error) {
	history, last, err := splitTurns(turns)
	if err != nil {
		return "", err
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	if err := s.acquireRate(ctx); err != nil {
		return "", err
	}
	defer s.releaseRate()

	model := s.client.GenerativeModel(s.modelName)
	if systemInstruction != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(systemInstruction)}}
	}

	cs := model.StartChat()
	cs.History = history

	start := time.Now()
	resp, err := cs.SendMessage(ctx, genai.Text(last.Text))
	if err != nil {
		return "", fmt.Errorf("Gemini API error: %w", err)
	}

	for i, cand := range resp.Candidates {
		if cand.FinishReason != genai.FinishReasonStop {
			s.log.WithFields(logrus.Fields{
				"candidate":     i,
				"finish_reason": cand.FinishReason.String(),
			}).Warn("Gemini stopped early")
		}
	}

	reply, err := replyText(resp)
	if err != nil {
		return "", err
	}

	s.log.WithFields(logrus.Fields{
		"model":    s.modelName,
		"turns":    len(turns),
		"duration": time.Since(start).String(),
	}).Debug("Gemini reply received")

	return reply, nil
}

// splitTurns converts the transcript into chat history plus the message to send.
func splitTurns(turns []models.Turn) ([]*genai.Content, models.Turn, error) {
	if len(turns) == 0 {
		return nil, models.Turn{}, fmt.Errorf("no turns to send")
	}
	last := turns[len(turns)-1]
	if last.Role != models.RoleUser {
		return nil, models.Turn{}, fmt.Errorf("last turn must be from the user, got %q", last.Role)
	}

	history := make([]*genai.Content, 0, len(turns)-1)
	for _, t := range turns[:len(turns)-1] {
		history = append(history, &genai.Content{
			Role:  t.Role,
			Parts: []genai.Part{genai.Text(t.Text)},
		})
	}
	return history, last, nil
}

// Helper functions

// replyText returns the reply verbatim. A reply with no visible text is an error.
func replyText(resp *genai.GenerateContentResponse) (string, error) {
	text := extractText(resp)
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyReply
	}
	return text, nil
}

func extractText(resp *genai.GenerateContentResponse) string {
	var text strings.Builder
	if resp == nil {
		return ""
	}
	for _, cand := range resp.Candidates {
		if cand.Content != nil {
			for _, part := range cand.Content.Parts {
				if t, ok := part.(genai.Text); ok {
					text.WriteString(string(t))
				}
			}
		}
	}
	return text.String()
}
