package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"meeting-minutes-service/internal/models"
)

// PostgresStore persists chats in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, strings.TrimSpace(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS chats (
			id TEXT PRIMARY KEY,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE TABLE IF NOT EXISTS chat_messages (
			id TEXT PRIMARY KEY,
			chat_id TEXT NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
			seq BIGSERIAL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			trace TEXT NOT NULL DEFAULT '',
			model_id TEXT NOT NULL DEFAULT '',
			usage JSONB NULL,
			extra_data JSONB NULL,
			created_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_chat_messages_chat_seq ON chat_messages (chat_id, seq);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) CreateChatIfNotExist(ctx context.Context, chatID string) (string, error) {
	if chatID == "" {
		chatID = uuid.NewString()
	}
	_, err := s.pool.Exec(ctx, `INSERT INTO chats (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, chatID)
	if err != nil {
		return "", fmt.Errorf("create chat: %w", err)
	}
	return chatID, nil
}

func (s *PostgresStore) CreateMessages(ctx context.Context, chatID string, msgs []models.RecordedMessage) ([]models.RecordedMessage, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM chats WHERE id=$1)`, chatID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("lookup chat: %w", err)
	}
	if !exists {
		return nil, ErrChatNotFound
	}

	out := make([]models.RecordedMessage, 0, len(msgs))
	for _, m := range msgs {
		m = stamp(chatID, m)
		usage, err := jsonColumn(m.Usage, m.Usage == nil)
		if err != nil {
			return nil, err
		}
		extra, err := jsonColumn(m.ExtraData, len(m.ExtraData) == 0)
		if err != nil {
			return nil, err
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO chat_messages (id, chat_id, role, content, trace, model_id, usage, extra_data, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			m.ID, m.ChatID, string(m.Role), m.Content, m.Trace, m.ModelID, usage, extra, m.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("insert message: %w", err)
		}
		out = append(out, m)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit messages: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) ListMessages(ctx context.Context, chatID string) ([]models.RecordedMessage, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM chats WHERE id=$1)`, chatID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("lookup chat: %w", err)
	}
	if !exists {
		return nil, ErrChatNotFound
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, chat_id, role, content, trace, model_id, usage, extra_data, created_at
		 FROM chat_messages WHERE chat_id=$1 ORDER BY seq`,
		chatID,
	)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []models.RecordedMessage
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate message rows: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func scanMessage(row pgx.Row) (models.RecordedMessage, error) {
	var (
		m            models.RecordedMessage
		role         string
		usage, extra []byte
	)
	if err := row.Scan(&m.ID, &m.ChatID, &role, &m.Content, &m.Trace, &m.ModelID, &usage, &extra, &m.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return m, ErrChatNotFound
		}
		return m, fmt.Errorf("scan message row: %w", err)
	}
	m.Role = models.Role(role)
	if len(usage) > 0 {
		if err := json.Unmarshal(usage, &m.Usage); err != nil {
			return m, fmt.Errorf("decode usage: %w", err)
		}
	}
	if len(extra) > 0 {
		if err := json.Unmarshal(extra, &m.ExtraData); err != nil {
			return m, fmt.Errorf("decode extra data: %w", err)
		}
	}
	return m, nil
}

// jsonColumn encodes v for a JSONB column, or NULL when null is set.
func jsonColumn(v any, null bool) ([]byte, error) {
	if null {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode json column: %w", err)
	}
	return b, nil
}
