package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"pybot-backend/internal/models"
)

// RedisTranscriptRepo stores each session as a Redis list of JSON encoded turns.
// The key expires after ttl without activity.
type RedisTranscriptRepo struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisTranscriptRepo(client *redis.Client, ttl time.Duration) *RedisTranscriptRepo {
	return &RedisTranscriptRepo{client: client, ttl: ttl}
}

func transcriptKey(sessionID string) string {
	return fmt.Sprintf("chat:transcript:%s", sessionID)
}

func (r *RedisTranscriptRepo) Name() string { return "redis" }

func (r *RedisTranscriptRepo) Turns(ctx context.Context, sessionID string) ([]models.Turn, error) {
	raw, err := r.client.LRange(ctx, transcriptKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read transcript: %w", err)
	}

	turns := make([]models.Turn, 0, len(raw))
	for i, item := range raw {
		var t models.Turn
		if err := json.Unmarshal([]byte(item), &t); err != nil {
			return nil, fmt.Errorf("failed to decode turn %d: %w", i, err)
		}
		turns = append(turns, t)
	}
	return turns, nil
}

func (r *RedisTranscriptRepo) Append(ctx context.Context, sessionID string, turns ...models.Turn) (int, error) {
	key := transcriptKey(sessionID)
	if len(turns) == 0 {
		n, err := r.client.LLen(ctx, key).Result()
		if err != nil {
			return 0, fmt.Errorf("failed to read transcript length: %w", err)
		}
		return int(n), nil
	}

	values := make([]interface{}, len(turns))
	for i, t := range turns {
		data, err := json.Marshal(t)
		if err != nil {
			return 0, fmt.Errorf("failed to encode turn: %w", err)
		}
		values[i] = string(data)
	}

	pipe := r.client.TxPipeline()
	push := pipe.RPush(ctx, key, values...)
	if r.ttl > 0 {
		pipe.Expire(ctx, key, r.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to append transcript: %w", err)
	}
	return int(push.Val()), nil
}

func (r *RedisTranscriptRepo) Truncate(ctx context.Context, sessionID string, length int) error {
	if length < 0 {
		return fmt.Errorf("invalid transcript length %d", length)
	}

	key := transcriptKey(sessionID)
	if length == 0 {
		if err := r.client.Del(ctx, key).Err(); err != nil {
			return fmt.Errorf("failed to clear transcript: %w", err)
		}
		return nil
	}
	if err := r.client.LTrim(ctx, key, 0, int64(length-1)).Err(); err != nil {
		return fmt.Errorf("failed to truncate transcript: %w", err)
	}
	return nil
}

func (r *RedisTranscriptRepo) Reset(ctx context.Context, sessionID string) error {
	return r.Truncate(ctx, sessionID, 0)
}
