// Package auth provides account persistence, Argon2id password hashing,
// and JWT access tokens for the admin API.
//
// Three roles exist: admin (everything, every school), manager (one
// school's timetables and devices) and user (the devices assigned to
// them). The school claim is embedded in the token so middleware can
// scope requests without a lookup.
package auth
