package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"pybot-backend/internal/models"
)

// PostgresTranscriptRepo stores turns in the chat_turns table, ordered by seq (0-based per session).
type PostgresTranscriptRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresTranscriptRepo(pool *pgxpool.Pool) *PostgresTranscriptRepo {
	return &PostgresTranscriptRepo{pool: pool}
}

func (r *PostgresTranscriptRepo) Name() string { return "postgres" }

func (r *PostgresTranscriptRepo) Turns(ctx context.Context, sessionID string) ([]models.Turn, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT role, text
		FROM chat_turns
		WHERE session_id = $1
		ORDER BY seq ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transcript: %w", err)
	}
	defer rows.Close()

	turns := []models.Turn{}
	for rows.Next() {
		var t models.Turn
		if err := rows.Scan(&t.Role, &t.Text); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

func (r *PostgresTranscriptRepo) Append(ctx context.Context, sessionID string, turns ...models.Turn) (int, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var next int
	err = tx.QueryRow(ctx, `
		SELECT COALESCE(MAX(seq) + 1, 0)
		FROM chat_turns
		WHERE session_id = $1
	`, sessionID).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("failed to read transcript length: %w", err)
	}

	for _, t := range turns {
		_, err := tx.Exec(ctx, `
			INSERT INTO chat_turns (session_id, seq, role, text)
			VALUES ($1, $2, $3, $4)
		`, sessionID, next, t.Role, t.Text)
		if err != nil {
			return 0, fmt.Errorf("failed to insert turn %d: %w", next, err)
		}
		next++
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit transcript append: %w", err)
	}
	return next, nil
}

func (r *PostgresTranscriptRepo) Truncate(ctx context.Context, sessionID string, length int) error {
	if length < 0 {
		return fmt.Errorf("invalid transcript length %d", length)
	}

	_, err := r.pool.Exec(ctx, `
		DELETE FROM chat_turns
		WHERE session_id = $1
		  AND seq >= $2
	`, sessionID, length)
	if err != nil {
		return fmt.Errorf("failed to truncate transcript: %w", err)
	}
	return nil
}

func (r *PostgresTranscriptRepo) Reset(ctx context.Context, sessionID string) error {
	return r.Truncate(ctx, sessionID, 0)
}
