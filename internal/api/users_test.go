package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/bellbot/bellbot-core/internal/auth"
)

func (e *testEnv) userByEmail(t *testing.T, email string) *auth.User {
	t.Helper()
	u, err := e.users.GetByEmail(context.Background(), email)
	if err != nil {
		t.Fatalf("GetByEmail(%s): %v", email, err)
	}
	return u
}

func TestCreateUser(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/users", env.adminToken, userRequest{
		Name:     "New Manager",
		Email:    "NEW.manager@Test.Local",
		Password: "long-enough-password",
		Role:     "manager",
		SchoolID: &env.schoolID,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body: %s", w.Code, w.Body.String())
	}

	var user auth.User
	decodeBody(t, w, &user)
	if user.Email != "new.manager@test.local" {
		t.Errorf("email = %q, want lowercased", user.Email)
	}
	if user.Role != auth.RoleManager {
		t.Errorf("role = %q, want manager", user.Role)
	}

	// New account can log in
	login := env.do(t, http.MethodPost, "/api/v1/auth/login", "", loginRequest{
		Email: "new.manager@test.local", Password: "long-enough-password",
	})
	if login.Code != http.StatusOK {
		t.Errorf("login status = %d, body: %s", login.Code, login.Body.String())
	}
}

func TestCreateUser_Errors(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body userRequest
		want int
	}{
		{"short password", userRequest{Name: "X", Email: "x@test.local", Password: "short", Role: "user"}, http.StatusBadRequest},
		{"bad email", userRequest{Name: "X", Email: "not-an-email", Password: "long-enough-pw", Role: "user"}, http.StatusBadRequest},
		{"bad role", userRequest{Name: "X", Email: "x@test.local", Password: "long-enough-pw", Role: "superuser"}, http.StatusBadRequest},
		{"duplicate email", userRequest{Name: "X", Email: "admin@test.local", Password: "long-enough-pw", Role: "user"}, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/v1/users", env.adminToken, tt.body)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d, body: %s", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestUpdateUser_CannotChangeOwnRole(t *testing.T) {
	env := newTestEnv(t)
	admin := env.userByEmail(t, "admin@test.local")

	w := env.do(t, http.MethodPatch, "/api/v1/users/"+admin.ID, env.adminToken, userRequest{Role: "user"})
	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
	}

	// Changing someone else's role is fine
	plain := env.userByEmail(t, "user@test.local")
	w = env.do(t, http.MethodPatch, "/api/v1/users/"+plain.ID, env.adminToken, userRequest{Role: "manager"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", w.Code, w.Body.String())
	}
	var updated auth.User
	decodeBody(t, w, &updated)
	if updated.Role != auth.RoleManager {
		t.Errorf("role = %q, want manager", updated.Role)
	}
}

func TestDeleteUser_CannotDeleteSelf(t *testing.T) {
	env := newTestEnv(t)
	admin := env.userByEmail(t, "admin@test.local")

	w := env.do(t, http.MethodDelete, "/api/v1/users/"+admin.ID, env.adminToken, nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("self delete status = %d, want %d", w.Code, http.StatusForbidden)
	}

	plain := env.userByEmail(t, "user@test.local")
	w = env.do(t, http.MethodDelete, "/api/v1/users/"+plain.ID, env.adminToken, nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("delete status = %d, want %d", w.Code, http.StatusNoContent)
	}
}

func TestResetPassword(t *testing.T) {
	env := newTestEnv(t)
	plain := env.userByEmail(t, "user@test.local")

	w := env.do(t, http.MethodPut, "/api/v1/users/"+plain.ID+"/password", env.adminToken, resetPasswordRequest{
		Password: "admin-chose-this-one",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", w.Code, w.Body.String())
	}

	login := env.do(t, http.MethodPost, "/api/v1/auth/login", "", loginRequest{
		Email: "user@test.local", Password: "admin-chose-this-one",
	})
	if login.Code != http.StatusOK {
		t.Errorf("login with reset password status = %d", login.Code)
	}
}
