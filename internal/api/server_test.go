package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/bellbot/bellbot-core/internal/auth"
	"github.com/bellbot/bellbot-core/internal/bellnet"
	"github.com/bellbot/bellbot-core/internal/device"
	"github.com/bellbot/bellbot-core/internal/infrastructure/config"
	"github.com/bellbot/bellbot-core/internal/infrastructure/logging"
	"github.com/bellbot/bellbot-core/internal/school"
	"github.com/bellbot/bellbot-core/internal/timetable"
)

const (
	testJWTSecret = "test-secret-key-at-least-32-characters-long"
	testPassword  = "correct-horse-battery"
)

// testPasswordHash is computed once; argon2id hashing is too expensive to
// repeat for every seeded user in every test.
var (
	testHashOnce sync.Once
	testHash     string
)

func passwordHash(t *testing.T) string {
	t.Helper()
	testHashOnce.Do(func() {
		h, err := auth.HashPassword(testPassword)
		if err != nil {
			t.Fatalf("HashPassword: %v", err)
		}
		testHash = h
	})
	return testHash
}

// fakeBroker captures publishes in place of a live MQTT connection.
type fakeBroker struct {
	mu       sync.Mutex
	messages []publishedMessage
}

type publishedMessage struct {
	topic    string
	payload  []byte
	retained bool
}

func (b *fakeBroker) Publish(topic string, payload []byte, _ byte, retained bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = append(b.messages, publishedMessage{topic: topic, payload: payload, retained: retained})
	return nil
}

func (b *fakeBroker) topics() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.messages))
	for i, m := range b.messages {
		out[i] = m.topic
	}
	return out
}

func (b *fakeBroker) hasTopic(topic string) bool {
	for _, t := range b.topics() {
		if t == topic {
			return true
		}
	}
	return false
}

// testEnv is a fully wired server over in-memory SQLite and a fake broker.
type testEnv struct {
	srv      *Server
	router   http.Handler
	broker   *fakeBroker
	registry *bellnet.Registry
	devices  device.Repository
	users    auth.UserRepository

	adminToken   string
	managerToken string
	userToken    string

	schoolID      string
	otherSchoolID string
	deviceID      string // BB-1042, first school
	otherDeviceID string // BB-2000, second school
	userID        string // plain user, first school
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := setupTestDB(t)
	ctx := context.Background()

	users := auth.NewUserRepository(db)
	schools := school.NewSQLiteRepository(db)
	devices := device.NewSQLiteRepository(db)
	schedules := timetable.NewSQLiteScheduleRepository(db)
	presets := timetable.NewSQLitePresetRepository(db)
	specials := timetable.NewSQLiteSpecialDayRepository(db)

	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")

	registry := bellnet.NewRegistry(log)
	broker := &fakeBroker{}
	publisher := bellnet.NewPublisher(bellnet.PublisherDeps{
		Broker:        broker,
		Registry:      registry,
		Location:      time.UTC,
		Logger:        log,
		StatusTimeout: 100 * time.Millisecond,
		QueryTimeout:  100 * time.Millisecond,
	})
	provisioner := bellnet.NewProvisioner(bellnet.ProvisionerDeps{
		Publisher: publisher,
		Devices:   devices,
		Schools:   schools,
		Schedules: schedules,
		Presets:   presets,
		Specials:  specials,
		Location:  time.UTC,
		Logger:    log,
	})

	env := &testEnv{
		broker:        broker,
		registry:      registry,
		devices:       devices,
		users:         users,
		schoolID:      "sch-001",
		otherSchoolID: "sch-002",
	}

	for _, sch := range []school.School{
		{ID: env.schoolID, Name: "Northgate Primary"},
		{ID: env.otherSchoolID, Name: "Southvale High"},
	} {
		if err := schools.Create(ctx, &sch); err != nil {
			t.Fatalf("seeding school %s: %v", sch.ID, err)
		}
	}

	dev1 := &device.Device{ID: "dev-001", Serial: "BB-1042", SchoolID: env.schoolID, Location: "Main hall"}
	dev2 := &device.Device{ID: "dev-002", Serial: "BB-2000", SchoolID: env.otherSchoolID}
	for _, d := range []*device.Device{dev1, dev2} {
		if err := devices.Create(ctx, d); err != nil {
			t.Fatalf("seeding device %s: %v", d.Serial, err)
		}
	}
	env.deviceID = dev1.ID
	env.otherDeviceID = dev2.ID

	hash := passwordHash(t)
	admin := &auth.User{Name: "Admin", Email: "admin@test.local", PasswordHash: hash, Role: auth.RoleAdmin}
	manager := &auth.User{Name: "Manager", Email: "manager@test.local", PasswordHash: hash, Role: auth.RoleManager, SchoolID: &env.schoolID}
	plain := &auth.User{Name: "Caretaker", Email: "user@test.local", PasswordHash: hash, Role: auth.RoleUser, SchoolID: &env.schoolID}
	for _, u := range []*auth.User{admin, manager, plain} {
		if err := users.Create(ctx, u); err != nil {
			t.Fatalf("seeding user %s: %v", u.Email, err)
		}
	}
	env.userID = plain.ID

	srv, err := New(Deps{
		Config: config.APIConfig{
			Host:     "127.0.0.1",
			Port:     0,
			Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5},
		},
		WS: config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10},
		Security: config.SecurityConfig{
			JWT: config.JWTConfig{Secret: testJWTSecret, AccessTokenTTL: 15},
		},
		Logger:      log,
		Users:       users,
		Schools:     schools,
		Devices:     devices,
		Schedules:   schedules,
		Presets:     presets,
		Specials:    specials,
		Publisher:   publisher,
		Provisioner: provisioner,
		Version:     "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	for _, u := range []*auth.User{admin, manager, plain} {
		token, err := auth.GenerateToken(u, testJWTSecret, 15)
		if err != nil {
			t.Fatalf("GenerateToken for %s: %v", u.Email, err)
		}
		switch u.Role {
		case auth.RoleAdmin:
			env.adminToken = token
		case auth.RoleManager:
			env.managerToken = token
		default:
			env.userToken = token
		}
	}

	env.srv = srv
	env.router = srv.buildRouter()
	return env
}

// setupTestDB creates an in-memory SQLite database with the full schema.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	schema := `
		CREATE TABLE schools (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
		CREATE TABLE users (
			id            TEXT PRIMARY KEY,
			school_id     TEXT REFERENCES schools(id) ON DELETE SET NULL,
			name          TEXT NOT NULL,
			email         TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			role          TEXT NOT NULL DEFAULT 'user',
			created_at    TEXT NOT NULL,
			updated_at    TEXT NOT NULL
		);
		CREATE TABLE devices (
			id                   TEXT PRIMARY KEY,
			serial               TEXT NOT NULL UNIQUE,
			school_id            TEXT NOT NULL REFERENCES schools(id) ON DELETE CASCADE,
			location             TEXT NOT NULL DEFAULT '',
			model                TEXT NOT NULL DEFAULT 'Standard Bell',
			is_online            INTEGER NOT NULL DEFAULT 0,
			is_silenced          INTEGER NOT NULL DEFAULT 0,
			current_timetable_id TEXT,
			time_synced          INTEGER NOT NULL DEFAULT 0,
			last_seen            TEXT,
			last_status_check    TEXT,
			created_at           TEXT NOT NULL,
			updated_at           TEXT NOT NULL
		);
		CREATE TABLE device_assignments (
			device_id  TEXT NOT NULL REFERENCES devices(id) ON DELETE CASCADE,
			user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			created_at TEXT NOT NULL,
			PRIMARY KEY (device_id, user_id)
		);
		CREATE TABLE weekly_schedules (
			id         TEXT PRIMARY KEY,
			school_id  TEXT NOT NULL UNIQUE REFERENCES schools(id) ON DELETE CASCADE,
			days       TEXT NOT NULL,
			updated_by TEXT REFERENCES users(id) ON DELETE SET NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
		CREATE TABLE preset_timetables (
			id          TEXT PRIMARY KEY,
			school_id   TEXT NOT NULL REFERENCES schools(id) ON DELETE CASCADE,
			name        TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			times       TEXT NOT NULL DEFAULT '[]',
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL
		);
		CREATE TABLE special_day_timetables (
			id         TEXT PRIMARY KEY,
			school_id  TEXT NOT NULL REFERENCES schools(id) ON DELETE CASCADE,
			date       TEXT NOT NULL,
			times      TEXT NOT NULL DEFAULT '[]',
			created_by TEXT REFERENCES users(id) ON DELETE SET NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			UNIQUE (school_id, date)
		);
	`

	if _, execErr := db.Exec(schema); execErr != nil {
		db.Close()
		t.Fatalf("failed to create test schema: %v", execErr)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

// do performs a request against the router, optionally authenticated.
func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("unmarshal response %q: %v", w.Body.String(), err)
	}
}

// ─── Health and middleware ─────────────────────────────────────────

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp map[string]any
	decodeBody(t, w, &resp)
	if resp["status"] != "ok" {
		t.Errorf("status = %v, want ok", resp["status"])
	}
	if resp["version"] != "test" {
		t.Errorf("version = %v, want test", resp["version"])
	}
}

func TestRequestID_Generated(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/health", "", nil)
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header to be set")
	}
}

func TestNotFound(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/nonexistent", env.adminToken, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown route status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

// ─── Authentication ────────────────────────────────────────────────

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/devices", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no token status = %d, want %d", w.Code, http.StatusUnauthorized)
	}

	w = env.do(t, http.MethodGet, "/api/v1/devices", "not-a-jwt", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("garbage token status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/auth/login", "", loginRequest{
		Email:    "manager@test.local",
		Password: testPassword,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d, body: %s", w.Code, w.Body.String())
	}

	var resp loginResponse
	decodeBody(t, w, &resp)
	if resp.AccessToken == "" {
		t.Error("expected access token")
	}
	if resp.TokenType != "Bearer" {
		t.Errorf("token type = %q, want Bearer", resp.TokenType)
	}
	if resp.User == nil || resp.User.Email != "manager@test.local" {
		t.Errorf("user = %+v, want manager", resp.User)
	}

	// Returned token works against a protected endpoint
	me := env.do(t, http.MethodGet, "/api/v1/auth/me", resp.AccessToken, nil)
	if me.Code != http.StatusOK {
		t.Fatalf("me status = %d, body: %s", me.Code, me.Body.String())
	}
	var user auth.User
	decodeBody(t, me, &user)
	if user.Role != auth.RoleManager {
		t.Errorf("role = %q, want manager", user.Role)
	}
	if user.SchoolID == nil || *user.SchoolID != env.schoolID {
		t.Errorf("school_id = %v, want %s", user.SchoolID, env.schoolID)
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	env := newTestEnv(t)

	for _, body := range []loginRequest{
		{Email: "manager@test.local", Password: "wrong"},
		{Email: "nobody@test.local", Password: testPassword},
	} {
		w := env.do(t, http.MethodPost, "/api/v1/auth/login", "", body)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("login %s status = %d, want %d", body.Email, w.Code, http.StatusUnauthorized)
		}
	}
}

func TestChangePassword(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPut, "/api/v1/auth/password", env.userToken, changePasswordRequest{
		CurrentPassword: testPassword,
		NewPassword:     "a-brand-new-password",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("change password status = %d, body: %s", w.Code, w.Body.String())
	}

	// Old password no longer works, new one does
	old := env.do(t, http.MethodPost, "/api/v1/auth/login", "", loginRequest{
		Email: "user@test.local", Password: testPassword,
	})
	if old.Code != http.StatusUnauthorized {
		t.Errorf("old password login status = %d, want %d", old.Code, http.StatusUnauthorized)
	}
	fresh := env.do(t, http.MethodPost, "/api/v1/auth/login", "", loginRequest{
		Email: "user@test.local", Password: "a-brand-new-password",
	})
	if fresh.Code != http.StatusOK {
		t.Errorf("new password login status = %d, want %d", fresh.Code, http.StatusOK)
	}
}

func TestChangePassword_WrongCurrent(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPut, "/api/v1/auth/password", env.userToken, changePasswordRequest{
		CurrentPassword: "wrong",
		NewPassword:     "a-brand-new-password",
	})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestWSTicket_SingleUse(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/auth/ws-ticket", env.userToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("ticket status = %d, body: %s", w.Code, w.Body.String())
	}

	var resp map[string]any
	decodeBody(t, w, &resp)
	ticket, _ := resp["ticket"].(string)
	if ticket == "" {
		t.Fatal("expected ticket in response")
	}

	entry, ok := env.srv.tickets.consume(ticket)
	if !ok {
		t.Fatal("first consume failed")
	}
	if entry.userID != env.userID {
		t.Errorf("ticket userID = %q, want %q", entry.userID, env.userID)
	}
	if _, ok := env.srv.tickets.consume(ticket); ok {
		t.Error("second consume succeeded, tickets must be single-use")
	}
}

// ─── Permission gating ─────────────────────────────────────────────

func TestPermission_UserCannotManageSchools(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/schools", env.userToken, map[string]string{"name": "New School"})
	if w.Code != http.StatusForbidden {
		t.Errorf("user create school status = %d, want %d", w.Code, http.StatusForbidden)
	}

	w = env.do(t, http.MethodPost, "/api/v1/schools", env.managerToken, map[string]string{"name": "New School"})
	if w.Code != http.StatusForbidden {
		t.Errorf("manager create school status = %d, want %d", w.Code, http.StatusForbidden)
	}

	w = env.do(t, http.MethodPost, "/api/v1/schools", env.adminToken, map[string]string{"name": "New School"})
	if w.Code != http.StatusCreated {
		t.Errorf("admin create school status = %d, want %d, body: %s", w.Code, http.StatusCreated, w.Body.String())
	}
}

func TestPermission_UsersEndpointAdminOnly(t *testing.T) {
	env := newTestEnv(t)

	for name, token := range map[string]string{"user": env.userToken, "manager": env.managerToken} {
		w := env.do(t, http.MethodGet, "/api/v1/users", token, nil)
		if w.Code != http.StatusForbidden {
			t.Errorf("%s list users status = %d, want %d", name, w.Code, http.StatusForbidden)
		}
	}

	w := env.do(t, http.MethodGet, "/api/v1/users", env.adminToken, nil)
	if w.Code != http.StatusOK {
		t.Errorf("admin list users status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestSchoolScoping_ManagerSeesOwnSchoolOnly(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/schools", env.managerToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list schools status = %d", w.Code)
	}

	var schools []map[string]any
	decodeBody(t, w, &schools)
	if len(schools) != 1 {
		t.Fatalf("manager sees %d schools, want 1", len(schools))
	}
	if schools[0]["id"] != env.schoolID {
		t.Errorf("school id = %v, want %s", schools[0]["id"], env.schoolID)
	}

	// Direct fetch of the other school is forbidden
	blocked := env.do(t, http.MethodGet, "/api/v1/schools/"+env.otherSchoolID, env.managerToken, nil)
	if blocked.Code != http.StatusForbidden {
		t.Errorf("other school status = %d, want %d", blocked.Code, http.StatusForbidden)
	}
}
