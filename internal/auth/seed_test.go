package auth

import (
	"context"
	"testing"

	"github.com/bellbot/bellbot-core/internal/infrastructure/logging"
)

func TestSeedAdminOnEmptyDatabase(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db)

	password, err := SeedAdmin(context.Background(), repo, "", "", logging.Default())
	if err != nil {
		t.Fatalf("SeedAdmin: %v", err)
	}
	if password == "" {
		t.Fatal("expected a generated password")
	}

	admin, err := repo.GetByEmail(context.Background(), "admin@bellbot.local")
	if err != nil {
		t.Fatalf("seeded admin missing: %v", err)
	}
	if admin.Role != RoleAdmin {
		t.Errorf("role: %q", admin.Role)
	}

	ok, err := VerifyPassword(password, admin.PasswordHash)
	if err != nil || !ok {
		t.Errorf("seeded password must verify: ok=%v err=%v", ok, err)
	}
}

func TestSeedAdminUsesConfiguredCredentials(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db)

	password, err := SeedAdmin(context.Background(), repo,
		"head@school.example", "opening-day", logging.Default())
	if err != nil {
		t.Fatalf("SeedAdmin: %v", err)
	}
	if password != "opening-day" {
		t.Errorf("password: %q", password)
	}

	if _, err := repo.GetByEmail(context.Background(), "head@school.example"); err != nil {
		t.Errorf("configured admin missing: %v", err)
	}
}

func TestSeedAdminSkippedWhenUsersExist(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db)

	if err := repo.Create(context.Background(), testUser("existing@example.com", RoleUser)); err != nil {
		t.Fatalf("Create: %v", err)
	}

	password, err := SeedAdmin(context.Background(), repo, "", "", logging.Default())
	if err != nil {
		t.Fatalf("SeedAdmin: %v", err)
	}
	if password != "" {
		t.Error("seed must be skipped when any user exists")
	}

	n, _ := repo.Count(context.Background())
	if n != 1 {
		t.Errorf("user count: %d", n)
	}
}
