package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository creates a new PostgresRepository.
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// FindSession looks up a browser session by token hash.
func (r *PostgresRepository) FindSession(ctx context.Context, tokenHash string) (*BrowserSession, error) {
	const query = `
		SELECT token_hash, provider_state, expires_at, created_at, updated_at
		FROM browser_sessions
		WHERE token_hash = $1
	`

	var row sessionRow
	if err := r.db.GetContext(ctx, &row, query, tokenHash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return row.toSession()
}

// SaveSession inserts the session or replaces its provider state.
func (r *PostgresRepository) SaveSession(ctx context.Context, session BrowserSession) error {
	const query = `
		INSERT INTO browser_sessions (token_hash, provider_state, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (token_hash) DO UPDATE
		SET provider_state = EXCLUDED.provider_state,
			expires_at = EXCLUDED.expires_at,
			updated_at = EXCLUDED.updated_at
	`

	state, err := json.Marshal(session.ProviderState)
	if err != nil {
		return fmt.Errorf("encode provider state: %w", err)
	}

	_, err = r.db.ExecContext(ctx, query,
		session.TokenHash,
		state,
		session.ExpiresAt,
		session.CreatedAt,
		session.UpdatedAt,
	)
	return err
}

// DeleteSession removes a browser session.
func (r *PostgresRepository) DeleteSession(ctx context.Context, tokenHash string) error {
	const query = `DELETE FROM browser_sessions WHERE token_hash = $1`
	_, err := r.db.ExecContext(ctx, query, tokenHash)
	return err
}

// DeleteExpiredSessions removes all sessions that expired before now.
func (r *PostgresRepository) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	const query = `DELETE FROM browser_sessions WHERE expires_at < $1`
	result, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

type sessionRow struct {
	TokenHash     string    `db:"token_hash"`
	ProviderState []byte    `db:"provider_state"`
	ExpiresAt     time.Time `db:"expires_at"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

func (r *sessionRow) toSession() (*BrowserSession, error) {
	session := &BrowserSession{
		TokenHash: r.TokenHash,
		ExpiresAt: r.ExpiresAt,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if err := json.Unmarshal(r.ProviderState, &session.ProviderState); err != nil {
		return nil, fmt.Errorf("decode provider state: %w", err)
	}
	return session, nil
}
