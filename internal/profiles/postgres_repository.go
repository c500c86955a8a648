package profiles

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
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

const profileColumns = `id, full_name, avatar_url, bio, email, created_at, updated_at`

// Get looks up a profile by user id.
func (r *PostgresRepository) Get(ctx context.Context, id uuid.UUID) (Profile, error) {
	const query = `SELECT ` + profileColumns + ` FROM profiles WHERE id = $1`

	var row profileRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Profile{}, ErrNotFound
		}
		return Profile{}, err
	}
	return row.toProfile(), nil
}

// Insert creates the profile row, leaving an existing row untouched.
func (r *PostgresRepository) Insert(ctx context.Context, profile Profile) (Profile, error) {
	const query = `
		INSERT INTO profiles (` + profileColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`

	if _, err := r.db.ExecContext(ctx, query,
		profile.ID,
		profile.FullName,
		profile.AvatarURL,
		profile.Bio,
		profile.Email,
		profile.CreatedAt,
		profile.UpdatedAt,
	); err != nil {
		return Profile{}, err
	}
	return r.Get(ctx, profile.ID)
}

// Upsert inserts or updates the row in one statement. Columns absent from the
// patch keep their stored value.
func (r *PostgresRepository) Upsert(ctx context.Context, base Profile, patch Patch) (Profile, error) {
	const query = `
		INSERT INTO profiles (` + profileColumns + `)
		VALUES ($1, COALESCE($2, $3), COALESCE($4, ''), COALESCE($5, ''), COALESCE($6, $7), $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			full_name  = COALESCE($2, profiles.full_name),
			avatar_url = COALESCE($4, profiles.avatar_url),
			bio        = COALESCE($5, profiles.bio),
			email      = COALESCE($6, profiles.email),
			updated_at = $9
		RETURNING ` + profileColumns

	var row profileRow
	if err := r.db.GetContext(ctx, &row, query,
		base.ID,
		nullString(patch.FullName),
		base.FullName,
		nullString(patch.AvatarURL),
		nullString(patch.Bio),
		nullString(patch.Email),
		base.Email,
		base.CreatedAt,
		base.UpdatedAt,
	); err != nil {
		return Profile{}, err
	}
	return row.toProfile(), nil
}

func nullString(value *string) sql.NullString {
	if value == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *value, Valid: true}
}

// profileRow is a database row representation of Profile.
type profileRow struct {
	ID        uuid.UUID `db:"id"`
	FullName  string    `db:"full_name"`
	AvatarURL string    `db:"avatar_url"`
	Bio       string    `db:"bio"`
	Email     string    `db:"email"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r *profileRow) toProfile() Profile {
	return Profile{
		ID:        r.ID,
		FullName:  r.FullName,
		AvatarURL: r.AvatarURL,
		Bio:       r.Bio,
		Email:     r.Email,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}
