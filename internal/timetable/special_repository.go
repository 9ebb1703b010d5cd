package timetable

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SpecialDayRepository defines persistence for date-specific overrides.
type SpecialDayRepository interface {
	// Create inserts a special day. Returns ErrSpecialDayExists if the
	// school already has one for that date.
	Create(ctx context.Context, sd *SpecialDay) error

	// Get returns one special day by ID, or ErrSpecialDayNotFound.
	Get(ctx context.Context, id string) (*SpecialDay, error)

	ListBySchool(ctx context.Context, schoolID string) ([]SpecialDay, error)

	// ListUpcoming returns the school's special days dated within the
	// window starting at from. Used by the publish path for the overlay.
	ListUpcoming(ctx context.Context, schoolID string, from time.Time, window time.Duration) ([]SpecialDay, error)

	Delete(ctx context.Context, id string) error
}

// SQLiteSpecialDayRepository implements SpecialDayRepository using SQLite.
type SQLiteSpecialDayRepository struct {
	db *sql.DB
}

// NewSQLiteSpecialDayRepository creates a new SQLite-backed special day repository.
func NewSQLiteSpecialDayRepository(db *sql.DB) *SQLiteSpecialDayRepository {
	return &SQLiteSpecialDayRepository{db: db}
}

// Create inserts a special day.
func (r *SQLiteSpecialDayRepository) Create(ctx context.Context, sd *SpecialDay) error {
	if err := ValidateDate(sd.Date); err != nil {
		return err
	}
	if err := ValidateEntries(sd.Times); err != nil {
		return err
	}
	if sd.ID == "" {
		sd.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	sd.CreatedAt = now
	sd.UpdatedAt = now
	if sd.Times == nil {
		sd.Times = []TimeEntry{}
	}

	timesJSON, err := json.Marshal(sd.Times)
	if err != nil {
		return fmt.Errorf("marshalling special day times: %w", err)
	}

	const query = `INSERT INTO special_day_timetables
		(id, school_id, date, times, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err = r.db.ExecContext(ctx, query,
		sd.ID, sd.SchoolID, sd.Date, string(timesJSON),
		nullableString(sd.CreatedBy),
		now.Format(time.RFC3339), now.Format(time.RFC3339))
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrSpecialDayExists
		}
		return fmt.Errorf("inserting special day %s: %w", sd.ID, err)
	}
	return nil
}

// Get returns one special day by ID.
func (r *SQLiteSpecialDayRepository) Get(ctx context.Context, id string) (*SpecialDay, error) {
	const query = `SELECT id, school_id, date, times, created_by, created_at, updated_at
		FROM special_day_timetables WHERE id = ?`
	days, err := r.query(ctx, query, id)
	if err != nil {
		return nil, err
	}
	if len(days) == 0 {
		return nil, ErrSpecialDayNotFound
	}
	return &days[0], nil
}

// ListBySchool returns a school's special days ordered by date.
func (r *SQLiteSpecialDayRepository) ListBySchool(ctx context.Context, schoolID string) ([]SpecialDay, error) {
	const query = `SELECT id, school_id, date, times, created_by, created_at, updated_at
		FROM special_day_timetables WHERE school_id = ? ORDER BY date`
	return r.query(ctx, query, schoolID)
}

// ListUpcoming returns the school's special days within [from, from+window).
// Dates are stored as YYYY-MM-DD, which compares correctly as text.
func (r *SQLiteSpecialDayRepository) ListUpcoming(ctx context.Context, schoolID string, from time.Time, window time.Duration) ([]SpecialDay, error) {
	start := from.Format("2006-01-02")
	end := from.Add(window).Format("2006-01-02")
	const query = `SELECT id, school_id, date, times, created_by, created_at, updated_at
		FROM special_day_timetables
		WHERE school_id = ? AND date >= ? AND date < ?
		ORDER BY date`
	return r.query(ctx, query, schoolID, start, end)
}

// Delete removes a special day by ID.
func (r *SQLiteSpecialDayRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM special_day_timetables WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting special day %s: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrSpecialDayNotFound
	}
	return nil
}

// query executes a select and scans the resulting special days.
func (r *SQLiteSpecialDayRepository) query(ctx context.Context, query string, args ...any) ([]SpecialDay, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying special days: %w", err)
	}
	defer rows.Close()

	var days []SpecialDay
	for rows.Next() {
		var sd SpecialDay
		var timesJSON string
		var createdBy sql.NullString
		var createdAt, updatedAt string
		if err := rows.Scan(&sd.ID, &sd.SchoolID, &sd.Date, &timesJSON,
			&createdBy, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning special day: %w", err)
		}
		if err := json.Unmarshal([]byte(timesJSON), &sd.Times); err != nil {
			return nil, fmt.Errorf("unmarshalling special day times: %w", err)
		}
		if createdBy.Valid {
			sd.CreatedBy = &createdBy.String
		}
		sd.CreatedAt = parseTime(createdAt)
		sd.UpdatedAt = parseTime(updatedAt)
		days = append(days, sd)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating special days: %w", err)
	}
	return days, nil
}
