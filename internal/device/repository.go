package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines the interface for device persistence operations.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
//
// The connectivity fields (is_online, is_silenced, current_timetable_id,
// time_synced, last_seen, last_status_check) are mutated only through the
// dedicated Update* methods, which the bellnet dispatcher calls. The admin
// fields (school, location, model) are mutated only through Update. The two
// sets are disjoint so dispatcher and API writes never clobber each other.
type Repository interface {
	// GetByID retrieves a device by its unique identifier.
	// Returns ErrNotFound if the device does not exist.
	GetByID(ctx context.Context, id string) (*Device, error)

	// GetBySerial retrieves a device by its hardware serial.
	// Returns ErrNotFound if no device with that serial is registered.
	GetBySerial(ctx context.Context, serial string) (*Device, error)

	// List retrieves all devices.
	List(ctx context.Context) ([]Device, error)

	// ListBySchool retrieves all devices registered to a school.
	ListBySchool(ctx context.Context, schoolID string) ([]Device, error)

	// Create registers a new device.
	// Returns ErrExists if the serial is already taken.
	Create(ctx context.Context, d *Device) error

	// Update modifies the admin fields of a device (school, location,
	// model). The serial is immutable after registration.
	Update(ctx context.Context, d *Device) error

	// Delete removes a device by ID. Assignments cascade.
	Delete(ctx context.Context, id string) error

	// UpdateStatusReport applies a full status answer in one write:
	// silenced flag, running timetable, liveness and the check timestamp.
	UpdateStatusReport(ctx context.Context, serial string, report StatusReport) error

	// UpdateLastSeen marks a device online and records when it was heard.
	UpdateLastSeen(ctx context.Context, serial string, seen time.Time) error

	// SetTimeSynced records whether the controller clock is trusted.
	SetTimeSynced(ctx context.Context, serial string, synced bool) error

	// SetCurrentTimetable records which timetable the controller reports
	// it is running.
	SetCurrentTimetable(ctx context.Context, serial string, timetableID string) error

	// SetSilenced records the silenced flag after a successful command.
	SetSilenced(ctx context.Context, serial string, silenced bool) error

	// Assign links a user to a device.
	Assign(ctx context.Context, deviceID, userID string) error

	// Unassign removes a user-device link.
	Unassign(ctx context.Context, deviceID, userID string) error

	// ListAssignedUsers returns the user IDs assigned to a device.
	ListAssignedUsers(ctx context.Context, deviceID string) ([]string, error)

	// ListForUser returns the devices a user is assigned to.
	ListForUser(ctx context.Context, userID string) ([]Device, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const deviceColumns = `id, serial, school_id, location, model,
	is_online, is_silenced, current_timetable_id, time_synced,
	last_seen, last_status_check, created_at, updated_at`

// GetByID retrieves a device by its unique identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE id = ?`
	row := r.db.QueryRowContext(ctx, query, id)
	d, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying device by id: %w", err)
	}
	return d, nil
}

// GetBySerial retrieves a device by its hardware serial.
func (r *SQLiteRepository) GetBySerial(ctx context.Context, serial string) (*Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE serial = ?`
	row := r.db.QueryRowContext(ctx, query, serial)
	d, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying device by serial: %w", err)
	}
	return d, nil
}

// List retrieves all devices ordered by serial.
func (r *SQLiteRepository) List(ctx context.Context) ([]Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices ORDER BY serial`
	return r.queryDevices(ctx, query)
}

// ListBySchool retrieves all devices registered to a school.
func (r *SQLiteRepository) ListBySchool(ctx context.Context, schoolID string) ([]Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE school_id = ? ORDER BY serial`
	return r.queryDevices(ctx, query, schoolID)
}

// Create registers a new device.
func (r *SQLiteRepository) Create(ctx context.Context, d *Device) error {
	if err := ValidateSerial(d.Serial); err != nil {
		return err
	}

	now := time.Now().UTC()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now
	if d.Model == "" {
		d.Model = "Standard Bell"
	}

	query := `
		INSERT INTO devices (
			id, serial, school_id, location, model,
			is_online, is_silenced, current_timetable_id, time_synced,
			last_seen, last_status_check, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		d.ID,
		d.Serial,
		d.SchoolID,
		d.Location,
		d.Model,
		boolToInt(d.IsOnline),
		boolToInt(d.IsSilenced),
		nullableString(d.CurrentTimetableID),
		boolToInt(d.TimeSynced),
		nullableTime(d.LastSeen),
		nullableTime(d.LastStatusCheck),
		d.CreatedAt.Format(time.RFC3339),
		d.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrExists
		}
		return fmt.Errorf("inserting device: %w", err)
	}
	return nil
}

// Update modifies the admin fields of a device.
// The serial and all connectivity fields are left untouched.
func (r *SQLiteRepository) Update(ctx context.Context, d *Device) error {
	d.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE devices SET
			school_id = ?, location = ?, model = ?, updated_at = ?
		WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query,
		d.SchoolID, d.Location, d.Model,
		d.UpdatedAt.Format(time.RFC3339),
		d.ID,
	)
	if err != nil {
		return fmt.Errorf("updating device: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a device by ID.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM devices WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting device: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateStatusReport applies a full status answer in one write.
// The single UPDATE keeps the report atomic: readers never observe a row
// with the new silenced flag but the old timetable.
func (r *SQLiteRepository) UpdateStatusReport(ctx context.Context, serial string, report StatusReport) error {
	now := time.Now().UTC()
	query := `
		UPDATE devices SET
			is_silenced = ?,
			current_timetable_id = ?,
			is_online = 1,
			last_seen = ?,
			last_status_check = ?,
			updated_at = ?
		WHERE serial = ?`

	result, err := r.db.ExecContext(ctx, query,
		boolToInt(report.IsSilenced),
		emptyAsNull(report.CurrentTimetableID),
		now.Format(time.RFC3339),
		now.Format(time.RFC3339),
		now.Format(time.RFC3339),
		serial,
	)
	if err != nil {
		return fmt.Errorf("updating status report: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateLastSeen marks a device online and records when it was heard.
func (r *SQLiteRepository) UpdateLastSeen(ctx context.Context, serial string, seen time.Time) error {
	return r.updateBySerial(ctx, serial,
		"is_online = 1, last_seen = ?",
		seen.UTC().Format(time.RFC3339))
}

// SetTimeSynced records whether the controller clock is trusted.
func (r *SQLiteRepository) SetTimeSynced(ctx context.Context, serial string, synced bool) error {
	return r.updateBySerial(ctx, serial, "time_synced = ?", boolToInt(synced))
}

// SetCurrentTimetable records which timetable the controller reports
// it is running.
func (r *SQLiteRepository) SetCurrentTimetable(ctx context.Context, serial string, timetableID string) error {
	return r.updateBySerial(ctx, serial,
		"current_timetable_id = ?", emptyAsNull(timetableID))
}

// SetSilenced records the silenced flag after a successful command.
func (r *SQLiteRepository) SetSilenced(ctx context.Context, serial string, silenced bool) error {
	return r.updateBySerial(ctx, serial, "is_silenced = ?", boolToInt(silenced))
}

// updateBySerial runs a partial UPDATE with the shared updated_at and
// not-found handling.
func (r *SQLiteRepository) updateBySerial(ctx context.Context, serial, set string, args ...any) error {
	query := "UPDATE devices SET " + set + ", updated_at = ? WHERE serial = ?"
	args = append(args, time.Now().UTC().Format(time.RFC3339), serial)

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating device %s: %w", serial, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Assign links a user to a device.
func (r *SQLiteRepository) Assign(ctx context.Context, deviceID, userID string) error {
	query := `INSERT INTO device_assignments (device_id, user_id, created_at)
		VALUES (?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		deviceID, userID, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrAssignmentExists
		}
		return fmt.Errorf("assigning user %s to device %s: %w", userID, deviceID, err)
	}
	return nil
}

// Unassign removes a user-device link.
func (r *SQLiteRepository) Unassign(ctx context.Context, deviceID, userID string) error {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM device_assignments WHERE device_id = ? AND user_id = ?",
		deviceID, userID)
	if err != nil {
		return fmt.Errorf("unassigning user %s from device %s: %w", userID, deviceID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrAssignmentNotFound
	}
	return nil
}

// ListAssignedUsers returns the user IDs assigned to a device.
func (r *SQLiteRepository) ListAssignedUsers(ctx context.Context, deviceID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT user_id FROM device_assignments WHERE device_id = ? ORDER BY user_id",
		deviceID)
	if err != nil {
		return nil, fmt.Errorf("querying assignments: %w", err)
	}
	defer rows.Close()

	var userIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning assignment: %w", err)
		}
		userIDs = append(userIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating assignments: %w", err)
	}
	return userIDs, nil
}

// ListForUser returns the devices a user is assigned to.
func (r *SQLiteRepository) ListForUser(ctx context.Context, userID string) ([]Device, error) {
	query := `SELECT d.id, d.serial, d.school_id, d.location, d.model,
			d.is_online, d.is_silenced, d.current_timetable_id, d.time_synced,
			d.last_seen, d.last_status_check, d.created_at, d.updated_at
		FROM devices d
		JOIN device_assignments a ON a.device_id = d.id
		WHERE a.user_id = ?
		ORDER BY d.serial`
	return r.queryDevices(ctx, query, userID)
}

// queryDevices executes a query and returns a slice of devices.
func (r *SQLiteRepository) queryDevices(ctx context.Context, query string, args ...any) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		devices = append(devices, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return devices, nil
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanDevice scans a row or rows result into a Device.
func scanDevice(scanner rowScanner) (*Device, error) {
	var d Device
	var isOnline, isSilenced, timeSynced int
	var currentTimetableID sql.NullString
	var lastSeen, lastStatusCheck sql.NullString
	var createdAt, updatedAt string

	err := scanner.Scan(
		&d.ID,
		&d.Serial,
		&d.SchoolID,
		&d.Location,
		&d.Model,
		&isOnline,
		&isSilenced,
		&currentTimetableID,
		&timeSynced,
		&lastSeen,
		&lastStatusCheck,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	d.IsOnline = isOnline != 0
	d.IsSilenced = isSilenced != 0
	d.TimeSynced = timeSynced != 0

	if currentTimetableID.Valid {
		d.CurrentTimetableID = &currentTimetableID.String
	}
	if lastSeen.Valid {
		if t, err := time.Parse(time.RFC3339, lastSeen.String); err == nil {
			d.LastSeen = &t
		}
	}
	if lastStatusCheck.Valid {
		if t, err := time.Parse(time.RFC3339, lastStatusCheck.String); err == nil {
			d.LastStatusCheck = &t
		}
	}

	var parseErr error
	d.CreatedAt, parseErr = time.Parse(time.RFC3339, createdAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing created_at: %w", parseErr)
	}
	d.UpdatedAt, parseErr = time.Parse(time.RFC3339, updatedAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", parseErr)
	}

	return &d, nil
}

// nullableString returns a sql.NullString for optional string pointers.
func nullableString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// emptyAsNull returns a sql.NullString that stores the empty string as NULL.
func emptyAsNull(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullableTime returns a sql.NullString for optional time pointers (as RFC3339 strings).
func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

// boolToInt converts a boolean to 0/1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// isUniqueConstraintError checks if an error is a SQLite unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "unique constraint")
}
