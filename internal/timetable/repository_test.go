package timetable

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// setupTestDB creates an in-memory SQLite database with the timetable tables.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	schema := `
		CREATE TABLE weekly_schedules (
			id         TEXT PRIMARY KEY,
			school_id  TEXT NOT NULL UNIQUE,
			days       TEXT NOT NULL,
			updated_by TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE TABLE preset_timetables (
			id          TEXT PRIMARY KEY,
			school_id   TEXT NOT NULL,
			name        TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			times       TEXT NOT NULL DEFAULT '[]',
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL
		);

		CREATE TABLE special_day_timetables (
			id         TEXT PRIMARY KEY,
			school_id  TEXT NOT NULL,
			date       TEXT NOT NULL,
			times      TEXT NOT NULL DEFAULT '[]',
			created_by TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			UNIQUE (school_id, date)
		);
	`

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		t.Fatalf("failed to create test schema: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

func TestGetBySchoolAutoCreates(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteScheduleRepository(db)
	ctx := context.Background()

	ws, err := repo.GetBySchool(ctx, "sch-001")
	if err != nil {
		t.Fatalf("GetBySchool: %v", err)
	}
	if ws.ID == "" {
		t.Error("auto-created schedule should have an ID")
	}
	if len(ws.Days) != 7 {
		t.Fatalf("expected 7 days, got %d", len(ws.Days))
	}
	for _, day := range DayNames {
		ds, ok := ws.Days[day]
		if !ok {
			t.Errorf("missing day %q", day)
			continue
		}
		if ds.PresetID != nil || len(ds.CustomTimes) != 0 {
			t.Errorf("day %q should start empty", day)
		}
	}

	// Second read returns the same row, not another create.
	again, err := repo.GetBySchool(ctx, "sch-001")
	if err != nil {
		t.Fatalf("GetBySchool again: %v", err)
	}
	if again.ID != ws.ID {
		t.Errorf("expected same schedule, got %q then %q", ws.ID, again.ID)
	}
}

func TestUpdateDay(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteScheduleRepository(db)
	ctx := context.Background()

	user := "user-1"
	ds := DaySchedule{
		PresetID:    strPtr("preset-std"),
		CustomTimes: entries("15:30"),
	}
	ws, err := repo.UpdateDay(ctx, "sch-001", "Monday", ds, &user)
	if err != nil {
		t.Fatalf("UpdateDay: %v", err)
	}
	if ws.Days["Monday"].PresetID == nil || *ws.Days["Monday"].PresetID != "preset-std" {
		t.Errorf("Monday preset not stored: %+v", ws.Days["Monday"])
	}

	got, err := repo.GetBySchool(ctx, "sch-001")
	if err != nil {
		t.Fatalf("GetBySchool: %v", err)
	}
	if len(got.Days["Monday"].CustomTimes) != 1 || got.Days["Monday"].CustomTimes[0].Time != "15:30" {
		t.Errorf("Monday custom times not persisted: %+v", got.Days["Monday"])
	}
	if got.UpdatedBy == nil || *got.UpdatedBy != "user-1" {
		t.Errorf("updated_by not persisted: %v", got.UpdatedBy)
	}

	// Other days untouched.
	if len(got.Days["Tuesday"].CustomTimes) != 0 {
		t.Errorf("Tuesday should be untouched: %+v", got.Days["Tuesday"])
	}
}

func TestUpdateDayRejectsBadInput(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteScheduleRepository(db)
	ctx := context.Background()

	_, err := repo.UpdateDay(ctx, "sch-001", "Funday", DaySchedule{}, nil)
	if !errors.Is(err, ErrInvalidDay) {
		t.Errorf("expected ErrInvalidDay, got %v", err)
	}

	bad := DaySchedule{CustomTimes: []TimeEntry{{Time: "8:30", Duration: 5}}}
	_, err = repo.UpdateDay(ctx, "sch-001", "Monday", bad, nil)
	if !errors.Is(err, ErrInvalidTimeEntry) {
		t.Errorf("expected ErrInvalidTimeEntry, got %v", err)
	}
}

func TestPresetCRUD(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLitePresetRepository(db)
	ctx := context.Background()

	p := &Preset{
		ID:       "preset-std",
		SchoolID: "sch-001",
		Name:     "Standard Day",
		Times:    entries("08:30", "12:00"),
	}
	if err := repo.Create(ctx, p); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := repo.Get(ctx, "preset-std")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name != "Standard Day" || len(got.Times) != 2 {
		t.Errorf("preset round-trip: %+v", got)
	}

	got.Name = "Standard"
	got.Times = entries("08:30")
	if err := repo.Update(ctx, got); err != nil {
		t.Fatalf("Update: %v", err)
	}

	list, err := repo.ListBySchool(ctx, "sch-001")
	if err != nil {
		t.Fatalf("ListBySchool: %v", err)
	}
	if len(list) != 1 || list[0].Name != "Standard" || len(list[0].Times) != 1 {
		t.Errorf("list after update: %+v", list)
	}

	if err := repo.Delete(ctx, "preset-std"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := repo.Get(ctx, "preset-std"); !errors.Is(err, ErrPresetNotFound) {
		t.Errorf("expected ErrPresetNotFound after delete, got %v", err)
	}
}

func TestPresetDeleteInUse(t *testing.T) {
	db := setupTestDB(t)
	presets := NewSQLitePresetRepository(db)
	schedules := NewSQLiteScheduleRepository(db)
	ctx := context.Background()

	p := &Preset{ID: "preset-std", SchoolID: "sch-001", Name: "Standard", Times: entries("08:30")}
	if err := presets.Create(ctx, p); err != nil {
		t.Fatalf("Create: %v", err)
	}

	pid := "preset-std"
	_, err := schedules.UpdateDay(ctx, "sch-001", "Monday", DaySchedule{PresetID: &pid}, nil)
	if err != nil {
		t.Fatalf("UpdateDay: %v", err)
	}

	if err := presets.Delete(ctx, "preset-std"); !errors.Is(err, ErrPresetInUse) {
		t.Errorf("expected ErrPresetInUse, got %v", err)
	}

	// Unreference, then delete succeeds.
	_, err = schedules.UpdateDay(ctx, "sch-001", "Monday", DaySchedule{}, nil)
	if err != nil {
		t.Fatalf("UpdateDay clear: %v", err)
	}
	if err := presets.Delete(ctx, "preset-std"); err != nil {
		t.Errorf("Delete after unreference: %v", err)
	}
}

func TestSpecialDayRepository(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteSpecialDayRepository(db)
	ctx := context.Background()

	sd := &SpecialDay{
		ID:       "sd-1",
		SchoolID: "sch-001",
		Date:     "2026-03-08",
		Times:    entries("10:00"),
	}
	if err := repo.Create(ctx, sd); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Same school, same date is rejected.
	dup := &SpecialDay{ID: "sd-2", SchoolID: "sch-001", Date: "2026-03-08"}
	if err := repo.Create(ctx, dup); !errors.Is(err, ErrSpecialDayExists) {
		t.Errorf("expected ErrSpecialDayExists, got %v", err)
	}

	// Another school may use the date.
	other := &SpecialDay{ID: "sd-3", SchoolID: "sch-002", Date: "2026-03-08"}
	if err := repo.Create(ctx, other); err != nil {
		t.Errorf("other school same date: %v", err)
	}

	if err := repo.Create(ctx, &SpecialDay{ID: "sd-4", SchoolID: "sch-001", Date: "08/03/2026"}); !errors.Is(err, ErrInvalidDate) {
		t.Error("expected ErrInvalidDate for non-ISO date")
	}

	list, err := repo.ListBySchool(ctx, "sch-001")
	if err != nil {
		t.Fatalf("ListBySchool: %v", err)
	}
	if len(list) != 1 || list[0].ID != "sd-1" {
		t.Errorf("list: %+v", list)
	}

	if err := repo.Delete(ctx, "sd-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := repo.Delete(ctx, "sd-1"); !errors.Is(err, ErrSpecialDayNotFound) {
		t.Errorf("expected ErrSpecialDayNotFound, got %v", err)
	}
}

func TestListUpcoming(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteSpecialDayRepository(db)
	ctx := context.Background()

	for i, date := range []string{"2026-03-02", "2026-03-05", "2026-03-09", "2026-04-01"} {
		sd := &SpecialDay{
			ID:       "sd-" + date,
			SchoolID: "sch-001",
			Date:     date,
			Times:    entries("10:00"),
		}
		if err := repo.Create(ctx, sd); err != nil {
			t.Fatalf("Create %d: %v", i, err)
		}
	}

	from := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	got, err := repo.ListUpcoming(ctx, "sch-001", from, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("ListUpcoming: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 upcoming days, got %d: %+v", len(got), got)
	}
	if got[0].Date != "2026-03-02" || got[1].Date != "2026-03-05" {
		t.Errorf("upcoming window wrong: %+v", got)
	}
}
