package timetable

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ScheduleRepository defines persistence for weekly schedules.
type ScheduleRepository interface {
	// GetBySchool returns the school's weekly schedule, creating an empty
	// seven-day schedule if none exists yet.
	GetBySchool(ctx context.Context, schoolID string) (*WeeklySchedule, error)

	// UpdateDay replaces one day's schedule.
	// Returns ErrInvalidDay for a non-canonical day name.
	UpdateDay(ctx context.Context, schoolID, day string, ds DaySchedule, updatedBy *string) (*WeeklySchedule, error)
}

// SQLiteScheduleRepository implements ScheduleRepository using SQLite.
type SQLiteScheduleRepository struct {
	db *sql.DB
}

// NewSQLiteScheduleRepository creates a new SQLite-backed schedule repository.
func NewSQLiteScheduleRepository(db *sql.DB) *SQLiteScheduleRepository {
	return &SQLiteScheduleRepository{db: db}
}

// emptyDays builds a seven-day map with no presets and no custom times.
func emptyDays() map[string]DaySchedule {
	days := make(map[string]DaySchedule, len(DayNames))
	for _, name := range DayNames {
		days[name] = DaySchedule{CustomTimes: []TimeEntry{}}
	}
	return days
}

// normalizeDays guarantees all seven day keys exist after a read, so older
// rows written before a day was touched still present a full week.
func normalizeDays(days map[string]DaySchedule) map[string]DaySchedule {
	if days == nil {
		return emptyDays()
	}
	for _, name := range DayNames {
		if _, ok := days[name]; !ok {
			days[name] = DaySchedule{CustomTimes: []TimeEntry{}}
		}
	}
	return days
}

// GetBySchool returns the school's weekly schedule, creating it when absent.
func (r *SQLiteScheduleRepository) GetBySchool(ctx context.Context, schoolID string) (*WeeklySchedule, error) {
	ws, err := r.get(ctx, schoolID)
	if err == nil {
		return ws, nil
	}
	if !errors.Is(err, ErrScheduleNotFound) {
		return nil, err
	}

	ws = &WeeklySchedule{
		ID:       uuid.NewString(),
		SchoolID: schoolID,
		Days:     emptyDays(),
	}
	if err := r.create(ctx, ws); err != nil {
		// Lost a race with a concurrent auto-create; re-read.
		if isUniqueConstraintError(err) {
			return r.get(ctx, schoolID)
		}
		return nil, err
	}
	return ws, nil
}

// UpdateDay replaces one day's schedule and bumps updated_at.
func (r *SQLiteScheduleRepository) UpdateDay(ctx context.Context, schoolID, day string, ds DaySchedule, updatedBy *string) (*WeeklySchedule, error) {
	if !IsDayName(day) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDay, day)
	}
	if err := ValidateEntries(ds.CustomTimes); err != nil {
		return nil, err
	}

	ws, err := r.GetBySchool(ctx, schoolID)
	if err != nil {
		return nil, err
	}

	if ds.CustomTimes == nil {
		ds.CustomTimes = []TimeEntry{}
	}
	ws.Days[day] = ds
	ws.UpdatedBy = updatedBy
	ws.UpdatedAt = time.Now().UTC()

	daysJSON, err := json.Marshal(ws.Days)
	if err != nil {
		return nil, fmt.Errorf("marshalling days: %w", err)
	}

	const query = `UPDATE weekly_schedules
		SET days = ?, updated_by = ?, updated_at = ?
		WHERE school_id = ?`
	result, err := r.db.ExecContext(ctx, query,
		string(daysJSON), nullableString(updatedBy),
		ws.UpdatedAt.Format(time.RFC3339), schoolID)
	if err != nil {
		return nil, fmt.Errorf("updating schedule day: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return nil, ErrScheduleNotFound
	}
	return ws, nil
}

// get reads a weekly schedule row.
func (r *SQLiteScheduleRepository) get(ctx context.Context, schoolID string) (*WeeklySchedule, error) {
	const query = `SELECT id, school_id, days, updated_by, created_at, updated_at
		FROM weekly_schedules WHERE school_id = ?`
	row := r.db.QueryRowContext(ctx, query, schoolID)

	var ws WeeklySchedule
	var daysJSON string
	var updatedBy sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&ws.ID, &ws.SchoolID, &daysJSON, &updatedBy, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrScheduleNotFound
		}
		return nil, fmt.Errorf("scanning weekly schedule: %w", err)
	}

	if err := json.Unmarshal([]byte(daysJSON), &ws.Days); err != nil {
		return nil, fmt.Errorf("unmarshalling schedule days: %w", err)
	}
	ws.Days = normalizeDays(ws.Days)
	if updatedBy.Valid {
		ws.UpdatedBy = &updatedBy.String
	}
	ws.CreatedAt = parseTime(createdAt)
	ws.UpdatedAt = parseTime(updatedAt)
	return &ws, nil
}

// create inserts a new weekly schedule row.
func (r *SQLiteScheduleRepository) create(ctx context.Context, ws *WeeklySchedule) error {
	now := time.Now().UTC()
	ws.CreatedAt = now
	ws.UpdatedAt = now

	daysJSON, err := json.Marshal(ws.Days)
	if err != nil {
		return fmt.Errorf("marshalling days: %w", err)
	}

	const query = `INSERT INTO weekly_schedules
		(id, school_id, days, updated_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`
	_, err = r.db.ExecContext(ctx, query,
		ws.ID, ws.SchoolID, string(daysJSON), nullableString(ws.UpdatedBy),
		now.Format(time.RFC3339), now.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("inserting weekly schedule: %w", err)
	}
	return nil
}
