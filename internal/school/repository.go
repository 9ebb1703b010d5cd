package school

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Repository defines the interface for school persistence operations.
type Repository interface {
	Create(ctx context.Context, s *School) error
	List(ctx context.Context) ([]School, error)
	Get(ctx context.Context, id string) (*School, error)
	Update(ctx context.Context, s *School) error
	Delete(ctx context.Context, id string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed school repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts a new school record.
func (r *SQLiteRepository) Create(ctx context.Context, s *School) error {
	if strings.TrimSpace(s.Name) == "" {
		return ErrNameRequired
	}
	now := time.Now().UTC()
	s.CreatedAt = now
	s.UpdatedAt = now

	const query = `INSERT INTO schools (id, name, created_at, updated_at)
		VALUES (?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		s.ID, s.Name, formatTime(now), formatTime(now))
	if err != nil {
		return fmt.Errorf("inserting school %s: %w", s.ID, err)
	}
	return nil
}

// List returns all schools ordered by name.
func (r *SQLiteRepository) List(ctx context.Context) ([]School, error) {
	const query = `SELECT id, name, created_at, updated_at
		FROM schools ORDER BY name`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying schools: %w", err)
	}
	defer rows.Close()

	var schools []School
	for rows.Next() {
		var s School
		var createdAt, updatedAt string
		if err := rows.Scan(&s.ID, &s.Name, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning school row: %w", err)
		}
		s.CreatedAt = parseTime(createdAt)
		s.UpdatedAt = parseTime(updatedAt)
		schools = append(schools, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating school rows: %w", err)
	}
	return schools, nil
}

// Get returns a single school by ID.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*School, error) {
	const query = `SELECT id, name, created_at, updated_at
		FROM schools WHERE id = ?`
	row := r.db.QueryRowContext(ctx, query, id)

	var s School
	var createdAt, updatedAt string
	err := row.Scan(&s.ID, &s.Name, &createdAt, &updatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning school: %w", err)
	}
	s.CreatedAt = parseTime(createdAt)
	s.UpdatedAt = parseTime(updatedAt)
	return &s, nil
}

// Update updates an existing school record.
func (r *SQLiteRepository) Update(ctx context.Context, s *School) error {
	if strings.TrimSpace(s.Name) == "" {
		return ErrNameRequired
	}
	const query = `UPDATE schools SET name = ?, updated_at = ? WHERE id = ?`
	result, err := r.db.ExecContext(ctx, query,
		s.Name, formatTime(time.Now().UTC()), s.ID)
	if err != nil {
		return fmt.Errorf("updating school %s: %w", s.ID, err)
	}
	n, _ := result.RowsAffected() //nolint:errcheck // SQLite always supports RowsAffected
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a single school by ID.
// Returns ErrNotFound if the school does not exist.
// Returns ErrHasDevices if controllers are still registered to it.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	// Check for registered controllers. Deleting a school would cascade
	// to its devices, and nothing would ever answer their queries again.
	var deviceCount int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM devices WHERE school_id = ?", id).Scan(&deviceCount); err != nil {
		return fmt.Errorf("counting devices for school %s: %w", id, err)
	}
	if deviceCount > 0 {
		return ErrHasDevices
	}

	result, err := r.db.ExecContext(ctx, "DELETE FROM schools WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting school %s: %w", id, err)
	}
	n, _ := result.RowsAffected() //nolint:errcheck // SQLite always supports RowsAffected
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// formatTime serializes a timestamp for storage.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// parseTime parses an RFC3339 timestamp from SQLite.
func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
