package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bellbot/bellbot-core/internal/auth"
)

// userRequest is the request body for creating or updating an account.
type userRequest struct {
	Name     string  `json:"name"`
	Email    string  `json:"email"`
	Password string  `json:"password"`
	Role     string  `json:"role"`
	SchoolID *string `json:"school_id"`
}

// handleListUsers returns all accounts.
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.users.List(r.Context())
	if err != nil {
		s.logger.Error("listing users failed", "error", err)
		writeInternalError(w, "failed to list users")
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// handleCreateUser creates an account.
func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if len(req.Password) < minPasswordLength {
		writeBadRequest(w, "password must be at least 8 characters")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeInternalError(w, "failed to hash password")
		return
	}

	user := &auth.User{
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: hash,
		Role:         auth.Role(req.Role),
		SchoolID:     req.SchoolID,
	}
	err = s.users.Create(r.Context(), user)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, user)
	case errors.Is(err, auth.ErrInvalidEmail):
		writeBadRequest(w, "invalid email address")
	case errors.Is(err, auth.ErrInvalidRole):
		writeBadRequest(w, "role must be user, manager or admin")
	case errors.Is(err, auth.ErrEmailExists):
		writeConflict(w, "email already registered")
	default:
		s.logger.Error("creating user failed", "error", err)
		writeInternalError(w, "failed to create user")
	}
}

// handleGetUser returns one account.
func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.users.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			writeNotFound(w, "user not found")
			return
		}
		writeInternalError(w, "failed to load user")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// handleUpdateUser modifies an account's name, school and role. Callers
// cannot change their own role.
func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	claims := claimsFrom(r.Context())

	user, err := s.users.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			writeNotFound(w, "user not found")
			return
		}
		writeInternalError(w, "failed to load user")
		return
	}

	var req userRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if req.Name != "" {
		user.Name = req.Name
	}
	if req.SchoolID != nil {
		user.SchoolID = req.SchoolID
	}
	if req.Role != "" {
		if id == claims.Subject && auth.Role(req.Role) != claims.Role {
			writeForbidden(w, "cannot change your own role")
			return
		}
		user.Role = auth.Role(req.Role)
	}

	err = s.users.Update(r.Context(), user)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, user)
	case errors.Is(err, auth.ErrInvalidRole):
		writeBadRequest(w, "role must be user, manager or admin")
	default:
		writeInternalError(w, "failed to update user")
	}
}

// handleDeleteUser removes an account.
func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == claimsFrom(r.Context()).Subject {
		writeForbidden(w, "cannot delete your own account")
		return
	}

	err := s.users.Delete(r.Context(), id)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, auth.ErrUserNotFound):
		writeNotFound(w, "user not found")
	default:
		writeInternalError(w, "failed to delete user")
	}
}

// resetPasswordRequest is the request body for PUT /users/{id}/password.
type resetPasswordRequest struct {
	Password string `json:"password"`
}

// handleResetPassword sets a new password for an account without knowing
// the old one. Admin-gated by the router.
func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if len(req.Password) < minPasswordLength {
		writeBadRequest(w, "password must be at least 8 characters")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeInternalError(w, "failed to hash password")
		return
	}

	err = s.users.UpdatePassword(r.Context(), chi.URLParam(r, "id"), hash)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"status": "password reset"})
	case errors.Is(err, auth.ErrUserNotFound):
		writeNotFound(w, "user not found")
	default:
		writeInternalError(w, "failed to reset password")
	}
}
