// Package auth holds the login users, session handling and the token-based
// request authentication shared by every handler.
package auth

import "errors"

const (
	RoleAdmin   = "Admin"
	RolePatient = "Patient"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrNotAuthenticated   = errors.New("not authenticated")
)

// User is a login record. Password holds a bcrypt hash; records written by
// hand may still carry a plaintext password, which Login accepts once and
// upgrades in place.
type User struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	PatientID string `json:"patientId,omitempty"`
}

// SessionUser is the credential-free view of a user persisted as the session
// pointer and returned to clients.
type SessionUser struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	Email     string `json:"email"`
	PatientID string `json:"patientId,omitempty"`
}

// Session pairs the session user with its bearer token.
type Session struct {
	User  SessionUser `json:"user"`
	Token string      `json:"token"`
}

func (u User) SessionUser() SessionUser {
	return SessionUser{ID: u.ID, Role: u.Role, Email: u.Email, PatientID: u.PatientID}
}
