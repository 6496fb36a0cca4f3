package models

import (
	"strings"
	"time"
)

// Role defines what a user may do
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// User represents a user in the system
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	PasswordHash string    `json:"-"` // Not serialized
	Role         Role      `json:"role"`
	Enabled      bool      `json:"enabled"`
	CreatedAt    time.Time `json:"created_at"`
}

// FullName joins first and last name for display
func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// IsAdmin reports whether the user holds elevated privilege
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Caller is the resolved identity of whoever invokes a core operation.
// It is supplied by the authentication layer and never read from ambient state.
type Caller struct {
	UserID  int64
	IsAdmin bool
}

// CanAccess reports whether the caller owns the resource or is an admin
func (c Caller) CanAccess(ownerID int64) bool {
	return c.IsAdmin || c.UserID == ownerID
}
