package events

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// PostgresRepository persists events to a Postgres database.
type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository constructs a repository backed by sqlx.
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const baseSelect = `
SELECT
    e.id,
    e.title,
    e.description,
    e.category,
    e.format,
    e.location,
    e.address,
    e.starts_at,
    e.ends_at,
    e.price_cents,
    e.capacity,
    e.image_url,
    e.organizer_id,
    e.organizer_name,
    e.created_at,
    e.updated_at,
    (SELECT COUNT(*) FROM event_registrations r WHERE r.event_id = e.id) AS attendee_count
FROM events e
`

// Create inserts a new row and returns the stored representation.
func (r *PostgresRepository) Create(ctx context.Context, event Event) (Event, error) {
	insert := `INSERT INTO events (id, title, description, category, format, location, address, starts_at, ends_at, price_cents, capacity, image_url, organizer_id, organizer_name, created_at, updated_at)
VALUES (:id, :title, :description, :category, :format, :location, :address, :starts_at, :ends_at, :price_cents, :capacity, :image_url, :organizer_id, :organizer_name, :created_at, :updated_at)`

	if _, err := r.db.NamedExecContext(ctx, insert, event); err != nil {
		return Event{}, fmt.Errorf("insert event: %w", err)
	}
	return r.Get(ctx, event.ID)
}

// Get retrieves a row by primary key.
func (r *PostgresRepository) Get(ctx context.Context, id uuid.UUID) (Event, error) {
	var event Event
	if err := r.db.GetContext(ctx, &event, baseSelect+" WHERE e.id = $1", id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Event{}, ErrNotFound
		}
		return Event{}, fmt.Errorf("get event: %w", err)
	}
	return event, nil
}

// List returns events filtered by the provided options.
func (r *PostgresRepository) List(ctx context.Context, opts ListOptions) ([]Event, error) {
	query := baseSelect
	clauses := []string{}
	args := []any{}

	if search := strings.TrimSpace(opts.Query); search != "" {
		n := len(args) + 1
		clauses = append(clauses, fmt.Sprintf("(e.title ILIKE $%d OR e.description ILIKE $%d OR e.location ILIKE $%d)", n, n, n))
		args = append(args, "%"+escapeLike(search)+"%")
	}
	if opts.Category != "" {
		clauses = append(clauses, fmt.Sprintf("e.category = $%d", len(args)+1))
		args = append(args, opts.Category)
	}
	if opts.Format != "" {
		clauses = append(clauses, fmt.Sprintf("e.format = $%d", len(args)+1))
		args = append(args, opts.Format)
	}
	switch opts.Price {
	case PriceFree:
		clauses = append(clauses, "e.price_cents = 0")
	case PricePaid:
		clauses = append(clauses, "e.price_cents > 0")
	}

	if len(clauses) > 0 {
		query = query + " WHERE " + strings.Join(clauses, " AND ")
	}
	query = query + " ORDER BY e.starts_at ASC, e.title ASC"

	if opts.Limit != nil && *opts.Limit > 0 {
		query = fmt.Sprintf("%s LIMIT %d", query, *opts.Limit)
	}

	return r.selectEvents(ctx, "list events", query, args...)
}

// Delete removes an event; registrations cascade.
func (r *PostgresRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM events WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete event rows: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByOrganizer returns events created by organizerID.
func (r *PostgresRepository) ListByOrganizer(ctx context.Context, organizerID uuid.UUID) ([]Event, error) {
	return r.selectEvents(ctx, "list organized events",
		baseSelect+" WHERE e.organizer_id = $1 ORDER BY e.starts_at ASC", organizerID)
}

// ListRegistered returns events userID registered for.
func (r *PostgresRepository) ListRegistered(ctx context.Context, userID uuid.UUID) ([]Event, error) {
	return r.selectEvents(ctx, "list registered events",
		baseSelect+" WHERE EXISTS (SELECT 1 FROM event_registrations r WHERE r.event_id = e.id AND r.user_id = $1) ORDER BY e.starts_at ASC", userID)
}

// Register locks the event row so concurrent registrations cannot exceed
// capacity.
func (r *PostgresRepository) Register(ctx context.Context, reg Registration) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin registration: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var capacity int
	if err := tx.GetContext(ctx, &capacity, "SELECT capacity FROM events WHERE id = $1 FOR UPDATE", reg.EventID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("lock event: %w", err)
	}

	var exists bool
	if err := tx.GetContext(ctx, &exists,
		"SELECT EXISTS (SELECT 1 FROM event_registrations WHERE event_id = $1 AND user_id = $2)",
		reg.EventID, reg.UserID); err != nil {
		return fmt.Errorf("check registration: %w", err)
	}
	if exists {
		return ErrAlreadyRegistered
	}

	if capacity > 0 {
		var count int
		if err := tx.GetContext(ctx, &count, "SELECT COUNT(*) FROM event_registrations WHERE event_id = $1", reg.EventID); err != nil {
			return fmt.Errorf("count registrations: %w", err)
		}
		if count >= capacity {
			return ErrEventFull
		}
	}

	if _, err := tx.NamedExecContext(ctx,
		"INSERT INTO event_registrations (event_id, user_id, created_at) VALUES (:event_id, :user_id, :created_at)", reg); err != nil {
		return fmt.Errorf("insert registration: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit registration: %w", err)
	}
	return nil
}

// Unregister removes userID's registration for eventID.
func (r *PostgresRepository) Unregister(ctx context.Context, eventID, userID uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM event_registrations WHERE event_id = $1 AND user_id = $2", eventID, userID)
	if err != nil {
		return fmt.Errorf("delete registration: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete registration rows: %w", err)
	}
	if rows > 0 {
		return nil
	}
	if _, err := r.Get(ctx, eventID); err != nil {
		return err
	}
	return ErrNotRegistered
}

// Registrations returns the registrations recorded for eventID.
func (r *PostgresRepository) Registrations(ctx context.Context, eventID uuid.UUID) ([]Registration, error) {
	regs := []Registration{}
	if err := r.db.SelectContext(ctx, &regs,
		"SELECT event_id, user_id, created_at FROM event_registrations WHERE event_id = $1 ORDER BY created_at ASC", eventID); err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	return regs, nil
}

func (r *PostgresRepository) selectEvents(ctx context.Context, op, query string, args ...any) ([]Event, error) {
	events := []Event{}
	if err := r.db.SelectContext(ctx, &events, query, args...); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return events, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(value string) string {
	return likeEscaper.Replace(value)
}
