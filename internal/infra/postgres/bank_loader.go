package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"promptquiz-service/internal/domain"
)

// BankLoader loads question bank JSONB from Postgres.
type BankLoader struct {
	pool *pgxpool.Pool
}

func NewBankLoader(pool *pgxpool.Pool) *BankLoader {
	return &BankLoader{pool: pool}
}

func (l *BankLoader) LoadBank(ctx context.Context, topic string) ([]domain.Question, error) {
	var raw []byte
	err := l.pool.QueryRow(ctx, `SELECT data FROM question_banks WHERE topic=$1`, normalizeTopic(topic)).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTopicNotFound
		}
		return nil, fmt.Errorf("load question bank: %w", err)
	}
	var questions []domain.Question
	if err := json.Unmarshal(raw, &questions); err != nil {
		return nil, fmt.Errorf("unmarshal question bank: %w", err)
	}
	return questions, nil
}

// SeedBank upserts a topic's questions, used to load the sample banks on startup.
func (l *BankLoader) SeedBank(ctx context.Context, topic string, questions []domain.Question) error {
	raw, err := json.Marshal(questions)
	if err != nil {
		return fmt.Errorf("marshal question bank: %w", err)
	}
	_, err = l.pool.Exec(ctx, `
		INSERT INTO question_banks (topic, data) VALUES ($1, $2)
		ON CONFLICT (topic) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`,
		normalizeTopic(topic), string(raw))
	if err != nil {
		return fmt.Errorf("seed question bank: %w", err)
	}
	return nil
}

func normalizeTopic(topic string) string {
	return strings.ToLower(strings.TrimSpace(topic))
}
