package auth

import (
	"errors"
	"strings"
	"testing"
)

const testSecret = "test-secret-at-least-32-characters-long"

func TestGenerateAndParseToken(t *testing.T) {
	sch := "sch-001"
	u := &User{
		ID:       "usr-1",
		Email:    "manager@example.com",
		Role:     RoleManager,
		SchoolID: &sch,
	}

	token, err := GenerateToken(u, testSecret, 60)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	claims, err := ParseToken(token, testSecret)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if claims.Subject != "usr-1" {
		t.Errorf("subject: %q", claims.Subject)
	}
	if claims.Role != RoleManager {
		t.Errorf("role: %q", claims.Role)
	}
	if claims.SchoolID != "sch-001" {
		t.Errorf("school: %q", claims.SchoolID)
	}
}

func TestAdminTokenHasNoSchool(t *testing.T) {
	u := &User{ID: "usr-2", Email: "admin@example.com", Role: RoleAdmin}

	token, err := GenerateToken(u, testSecret, 60)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	claims, err := ParseToken(token, testSecret)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if claims.SchoolID != "" {
		t.Errorf("admin token should carry no school, got %q", claims.SchoolID)
	}
}

func TestParseTokenWrongSecret(t *testing.T) {
	u := &User{ID: "usr-1", Role: RoleUser}
	token, err := GenerateToken(u, testSecret, 60)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	_, err = ParseToken(token, "a-completely-different-secret-string")
	if !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestParseTokenTampered(t *testing.T) {
	u := &User{ID: "usr-1", Role: RoleUser}
	token, err := GenerateToken(u, testSecret, 60)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	tampered := token[:len(token)-6] + "XXXXXX"
	if _, err := ParseToken(tampered, testSecret); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestParseTokenGarbage(t *testing.T) {
	for _, tok := range []string{"", "not.a.jwt", strings.Repeat("x", 512)} {
		if _, err := ParseToken(tok, testSecret); !errors.Is(err, ErrTokenInvalid) {
			t.Errorf("token %q: expected ErrTokenInvalid, got %v", tok, err)
		}
	}
}
