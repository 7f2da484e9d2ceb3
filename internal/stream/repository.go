package stream

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/TaeDongUm/devCampHub/internal/domain"
)

var ErrNotFound = errors.New("not found")

// StreamRepository is the persisted stream record collaborator. Thin CRUD; the
// tracker and reconciler only flip ACTIVE records to ENDED.
type StreamRepository interface {
	Create(ctx context.Context, s domain.Stream) error
	End(ctx context.Context, id string) error
	FindActiveByOwner(ctx context.Context, owner domain.Identity) (domain.Stream, bool, error)
	FindActiveStartedBefore(ctx context.Context, cutoff time.Time) ([]domain.Stream, error)
}

// UserRepository resolves an identity to its persisted profile, used for
// stream classification.
type UserRepository interface {
	FindByEmail(ctx context.Context, email domain.Identity) (domain.User, bool, error)
}

type SQLRepository struct {
	db *sql.DB
}

func NewSQLRepository(db *sql.DB) *SQLRepository {
	return &SQLRepository{db: db}
}

// Migrate creates the tables this service reads and writes. The schema is
// owned by the CRUD backend; this covers standalone runs and tests.
func (r *SQLRepository) Migrate(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS users (
			email TEXT PRIMARY KEY,
			nickname TEXT NOT NULL,
			role TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS streams (
			id TEXT PRIMARY KEY,
			camp_id INTEGER,
			owner_email TEXT NOT NULL,
			title TEXT,
			type TEXT NOT NULL,
			status TEXT NOT NULL,
			started_at TIMESTAMP NOT NULL,
			ended_at TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_streams_owner_status ON streams (owner_email, status);
	`
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

func (r *SQLRepository) Create(ctx context.Context, s domain.Stream) error {
	query := `INSERT INTO streams (id, camp_id, owner_email, title, type, status, started_at) VALUES (?, ?, ?, ?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, s.ID, s.CampID, string(s.OwnerEmail), s.Title, string(s.Type), string(s.Status), s.StartedAt); err != nil {
		return fmt.Errorf("failed to insert stream %s: %w", s.ID, err)
	}
	return nil
}

func (r *SQLRepository) End(ctx context.Context, id string) error {
	query := `UPDATE streams SET status = ?, ended_at = ? WHERE id = ? AND status = ?`
	res, err := r.db.ExecContext(ctx, query, string(domain.StreamEnded), time.Now(), id, string(domain.StreamActive))
	if err != nil {
		return fmt.Errorf("failed to end stream %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLRepository) FindActiveByOwner(ctx context.Context, owner domain.Identity) (domain.Stream, bool, error) {
	query := `
		SELECT id, camp_id, owner_email, title, type, status, started_at
		FROM streams WHERE owner_email = ? AND status = ?
		ORDER BY started_at DESC LIMIT 1
	`
	var s domain.Stream
	var campID sql.NullInt64
	err := r.db.QueryRowContext(ctx, query, string(owner), string(domain.StreamActive)).
		Scan(&s.ID, &campID, &s.OwnerEmail, &s.Title, &s.Type, &s.Status, &s.StartedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Stream{}, false, nil
	}
	if err != nil {
		return domain.Stream{}, false, fmt.Errorf("failed to query active stream for %s: %w", owner, err)
	}
	s.CampID = campID.Int64
	return s, true, nil
}

func (r *SQLRepository) FindActiveStartedBefore(ctx context.Context, cutoff time.Time) ([]domain.Stream, error) {
	query := `
		SELECT id, camp_id, owner_email, title, type, status, started_at
		FROM streams WHERE status = ? AND started_at < ?
	`
	rows, err := r.db.QueryContext(ctx, query, string(domain.StreamActive), cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query stale streams: %w", err)
	}
	defer rows.Close()

	var results []domain.Stream
	for rows.Next() {
		var s domain.Stream
		var campID sql.NullInt64
		if err := rows.Scan(&s.ID, &campID, &s.OwnerEmail, &s.Title, &s.Type, &s.Status, &s.StartedAt); err != nil {
			return nil, fmt.Errorf("failed to scan stream row: %w", err)
		}
		s.CampID = campID.Int64
		results = append(results, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over streams: %w", err)
	}
	return results, nil
}

func (r *SQLRepository) FindByEmail(ctx context.Context, email domain.Identity) (domain.User, bool, error) {
	query := `SELECT email, nickname, role FROM users WHERE email = ?`
	var u domain.User
	err := r.db.QueryRowContext(ctx, query, string(email)).Scan(&u.Email, &u.Nickname, &u.Role)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, false, nil
	}
	if err != nil {
		return domain.User{}, false, fmt.Errorf("failed to query user %s: %w", email, err)
	}
	return u, true, nil
}
