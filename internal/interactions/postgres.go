package interactions

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema creates the interactions table. Kept idempotent so startup can run
// it unconditionally.
const schema = `
CREATE TABLE IF NOT EXISTS interactions (
	id BIGSERIAL PRIMARY KEY,
	session_id VARCHAR(255) NOT NULL,
	user_question TEXT NOT NULL,
	expert_answer TEXT NOT NULL,
	expert_name VARCHAR(255),
	user_name VARCHAR(255),
	created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_interactions_session_id ON interactions (session_id);
`

const insertInteraction = `
INSERT INTO interactions (session_id, user_question, expert_answer, expert_name, user_name)
VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''))`

// PostgresLog is a [Log] backed by a PostgreSQL table.
type PostgresLog struct {
	pool *pgxpool.Pool
}

var _ Log = (*PostgresLog)(nil)

// NewPostgresLog connects to the database at dsn, verifies the connection,
// and ensures the interactions table exists.
func NewPostgresLog(ctx context.Context, dsn string) (*PostgresLog, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("interactions: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("interactions: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("interactions: ensure schema: %w", err)
	}
	return &PostgresLog{pool: pool}, nil
}

// Save implements Log.
func (l *PostgresLog) Save(ctx context.Context, in Interaction) error {
	_, err := l.pool.Exec(ctx, insertInteraction,
		in.SessionID, in.UserQuestion, in.ExpertAnswer, in.ExpertName, in.UserName)
	if err != nil {
		return fmt.Errorf("interactions: insert: %w", err)
	}
	return nil
}

// Pool exposes the underlying pool for readiness checks.
func (l *PostgresLog) Pool() *pgxpool.Pool {
	return l.pool
}

// Close releases all connections held by the pool.
func (l *PostgresLog) Close() {
	l.pool.Close()
}
