package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is an optional Store backend for deployments that already
// run Postgres elsewhere and would rather not manage a conversations/
// directory of JSON files. It mirrors FileStore's semantics exactly: Load
// returns (nil, nil) for an unknown session, Save is an upsert keyed by
// session id.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore returns a Store backed by pool. Call Init once before
// first use to create the backing table.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Init creates the sessions table if it doesn't already exist.
func (s *PostgresStore) Init(ctx context.Context) error {
	if s.pool == nil {
		return errors.New("postgres memory store requires a pool")
	}
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS agent_sessions (
    id                UUID PRIMARY KEY,
    transcript        JSONB NOT NULL DEFAULT '[]',
    mid_term_summary  TEXT NOT NULL DEFAULT '',
    compaction        JSONB,
    summarized_count  INTEGER NOT NULL DEFAULT 0,
    created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`)
	return err
}

func (s *PostgresStore) Load(ctx context.Context, sessionID string) (*Session, error) {
	var sess Session
	var transcript, compaction []byte
	row := s.pool.QueryRow(ctx, `
SELECT id, transcript, mid_term_summary, compaction, summarized_count, created_at, updated_at
FROM agent_sessions WHERE id = $1`, sessionID)
	if err := row.Scan(&sess.ID, &transcript, &sess.MidTermSummary, &compaction, &sess.SummarizedCount, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	if len(transcript) > 0 {
		if err := json.Unmarshal(transcript, &sess.Transcript); err != nil {
			return nil, fmt.Errorf("decode transcript: %w", err)
		}
	}
	if len(compaction) > 0 {
		if err := json.Unmarshal(compaction, &sess.Compaction); err != nil {
			return nil, fmt.Errorf("decode compaction: %w", err)
		}
	}
	return &sess, nil
}

func (s *PostgresStore) Save(ctx context.Context, session *Session) error {
	transcript, err := json.Marshal(session.Transcript)
	if err != nil {
		return fmt.Errorf("encode transcript: %w", err)
	}
	var compaction []byte
	if session.Compaction != nil {
		compaction, err = json.Marshal(session.Compaction)
		if err != nil {
			return fmt.Errorf("encode compaction: %w", err)
		}
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO agent_sessions (id, transcript, mid_term_summary, compaction, summarized_count, updated_at)
VALUES ($1, $2, $3, $4, $5, NOW())
ON CONFLICT (id) DO UPDATE SET
    transcript = EXCLUDED.transcript,
    mid_term_summary = EXCLUDED.mid_term_summary,
    compaction = EXCLUDED.compaction,
    summarized_count = EXCLUDED.summarized_count,
    updated_at = NOW()`,
		session.ID, transcript, session.MidTermSummary, compaction, session.SummarizedCount)
	if err != nil {
		return fmt.Errorf("save session %s: %w", session.ID, err)
	}
	return nil
}
