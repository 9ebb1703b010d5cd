package timetable

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// PresetRepository defines persistence for preset timetables.
type PresetRepository interface {
	Create(ctx context.Context, p *Preset) error
	Get(ctx context.Context, id string) (*Preset, error)
	ListBySchool(ctx context.Context, schoolID string) ([]Preset, error)
	Update(ctx context.Context, p *Preset) error

	// Delete removes a preset. Returns ErrPresetInUse when the school's
	// weekly schedule still references it.
	Delete(ctx context.Context, id string) error
}

// SQLitePresetRepository implements PresetRepository using SQLite.
type SQLitePresetRepository struct {
	db *sql.DB
}

// NewSQLitePresetRepository creates a new SQLite-backed preset repository.
func NewSQLitePresetRepository(db *sql.DB) *SQLitePresetRepository {
	return &SQLitePresetRepository{db: db}
}

// Create inserts a new preset.
func (r *SQLitePresetRepository) Create(ctx context.Context, p *Preset) error {
	if err := ValidateEntries(p.Times); err != nil {
		return err
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	if p.Times == nil {
		p.Times = []TimeEntry{}
	}

	timesJSON, err := json.Marshal(p.Times)
	if err != nil {
		return fmt.Errorf("marshalling preset times: %w", err)
	}

	const query = `INSERT INTO preset_timetables
		(id, school_id, name, description, times, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err = r.db.ExecContext(ctx, query,
		p.ID, p.SchoolID, p.Name, p.Description, string(timesJSON),
		now.Format(time.RFC3339), now.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("inserting preset %s: %w", p.ID, err)
	}
	return nil
}

// Get returns a single preset by ID.
func (r *SQLitePresetRepository) Get(ctx context.Context, id string) (*Preset, error) {
	const query = `SELECT id, school_id, name, description, times, created_at, updated_at
		FROM preset_timetables WHERE id = ?`
	row := r.db.QueryRowContext(ctx, query, id)
	p, err := scanPreset(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPresetNotFound
		}
		return nil, fmt.Errorf("querying preset: %w", err)
	}
	return p, nil
}

// ListBySchool returns a school's presets ordered by name.
func (r *SQLitePresetRepository) ListBySchool(ctx context.Context, schoolID string) ([]Preset, error) {
	const query = `SELECT id, school_id, name, description, times, created_at, updated_at
		FROM preset_timetables WHERE school_id = ? ORDER BY name`
	rows, err := r.db.QueryContext(ctx, query, schoolID)
	if err != nil {
		return nil, fmt.Errorf("querying presets: %w", err)
	}
	defer rows.Close()

	var presets []Preset
	for rows.Next() {
		p, err := scanPreset(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning preset: %w", err)
		}
		presets = append(presets, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating presets: %w", err)
	}
	return presets, nil
}

// Update modifies an existing preset.
func (r *SQLitePresetRepository) Update(ctx context.Context, p *Preset) error {
	if err := ValidateEntries(p.Times); err != nil {
		return err
	}
	p.UpdatedAt = time.Now().UTC()
	if p.Times == nil {
		p.Times = []TimeEntry{}
	}

	timesJSON, err := json.Marshal(p.Times)
	if err != nil {
		return fmt.Errorf("marshalling preset times: %w", err)
	}

	const query = `UPDATE preset_timetables
		SET name = ?, description = ?, times = ?, updated_at = ?
		WHERE id = ?`
	result, err := r.db.ExecContext(ctx, query,
		p.Name, p.Description, string(timesJSON),
		p.UpdatedAt.Format(time.RFC3339), p.ID)
	if err != nil {
		return fmt.Errorf("updating preset %s: %w", p.ID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrPresetNotFound
	}
	return nil
}

// Delete removes a preset after checking the school's weekly schedule does
// not reference it. A referenced preset silently disappearing would leave
// days ringing nothing.
func (r *SQLitePresetRepository) Delete(ctx context.Context, id string) error {
	p, err := r.Get(ctx, id)
	if err != nil {
		return err
	}

	inUse, err := r.referencedBySchedule(ctx, p.SchoolID, id)
	if err != nil {
		return err
	}
	if inUse {
		return ErrPresetInUse
	}

	result, err := r.db.ExecContext(ctx, "DELETE FROM preset_timetables WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting preset %s: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrPresetNotFound
	}
	return nil
}

// referencedBySchedule reports whether any day of the school's weekly
// schedule points at the preset.
func (r *SQLitePresetRepository) referencedBySchedule(ctx context.Context, schoolID, presetID string) (bool, error) {
	const query = `SELECT days FROM weekly_schedules WHERE school_id = ?`
	var daysJSON string
	err := r.db.QueryRowContext(ctx, query, schoolID).Scan(&daysJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("reading weekly schedule: %w", err)
	}

	var days map[string]DaySchedule
	if err := json.Unmarshal([]byte(daysJSON), &days); err != nil {
		return false, fmt.Errorf("unmarshalling schedule days: %w", err)
	}
	for _, day := range days {
		if day.PresetID != nil && *day.PresetID == presetID {
			return true, nil
		}
	}
	return false, nil
}

// scanPreset scans a row or rows result into a Preset.
func scanPreset(scanner rowScanner) (*Preset, error) {
	var p Preset
	var timesJSON string
	var createdAt, updatedAt string

	err := scanner.Scan(&p.ID, &p.SchoolID, &p.Name, &p.Description,
		&timesJSON, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(timesJSON), &p.Times); err != nil {
		return nil, fmt.Errorf("unmarshalling preset times: %w", err)
	}
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return &p, nil
}
