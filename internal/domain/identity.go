// Package domain contains entity without logic, just meta-data
package domain

import "errors"

const (
	MaxIdentityLen = 254
	MaxNicknameLen = 36
)

var (
	ErrIdentityEmpty   = errors.New("identity empty")
	ErrIdentityTooLong = errors.New("identity too long")
)

// SessionID is assigned by the transport layer, one per live connection.
type SessionID string

// Identity is the authenticated principal bound to a connection.
type Identity string

type Role string

const (
	RoleAdmin   Role = "ADMIN"
	RoleStudent Role = "STUDENT"
)

type User struct {
	Email    Identity `json:"email"`
	Nickname string   `json:"nickname"`
	Role     Role     `json:"role"`
}

// NewIdentity is a tiny helper to avoid ad-hoc casts in adapters.
func NewIdentity(raw string) (Identity, error) {
	if len(raw) == 0 {
		return "", ErrIdentityEmpty
	}
	if len(raw) > MaxIdentityLen {
		return "", ErrIdentityTooLong
	}
	return Identity(raw), nil
}
