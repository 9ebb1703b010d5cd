package auth

import (
	"errors"
	"regexp"
	"time"
)

// emailPattern is deliberately loose: one @, no whitespace, something on
// both sides. Deliverability is the mail system's problem.
var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// maxEmailLength is the maximum allowed email length.
const maxEmailLength = 254

// IsValidEmail checks whether an address can be used as a login identifier.
func IsValidEmail(email string) bool {
	return len(email) <= maxEmailLength && emailPattern.MatchString(email)
}

// Role represents an authorisation tier in the system.
type Role string

const (
	// RoleUser can view and ring the devices assigned to them. No
	// timetable or account management.
	RoleUser Role = "user"

	// RoleManager runs one school: timetables, presets, special days and
	// device operations for that school only.
	RoleManager Role = "manager"

	// RoleAdmin has full control: schools, devices, users, timetables
	// across every school.
	RoleAdmin Role = "admin"
)

// ValidRoles is the set of assignable account roles.
var ValidRoles = []Role{RoleUser, RoleManager, RoleAdmin}

// IsValidRole returns true if the role is assignable to an account.
func IsValidRole(r Role) bool {
	for _, v := range ValidRoles {
		if r == v {
			return true
		}
	}
	return false
}

// User represents an account that can log in to the admin API.
// Managers and users carry the school they belong to; admins have no
// school and see everything.
type User struct {
	ID           string    `json:"id"`
	SchoolID     *string   `json:"school_id,omitempty"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // never serialised
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Sentinel errors for auth operations.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailExists        = errors.New("email already registered")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrInvalidRole        = errors.New("invalid role")
	ErrTokenInvalid       = errors.New("invalid token")
	ErrForbidden          = errors.New("insufficient permissions")
	ErrSelfModification   = errors.New("cannot modify own account in this way")
)
