package types

import (
	"strings"

	"github.com/google/uuid"
)

// Principal identifies who is acting: a signed-in user or a guest device.
type Principal struct {
	UserID     *uuid.UUID
	Email      string
	GuestID    string
	GuestEmail string
}

// IsGuest reports whether no authenticated user is attached.
func (p Principal) IsGuest() bool {
	return p.UserID == nil || *p.UserID == uuid.Nil
}

// Key is a stable identifier for per-principal storage.
func (p Principal) Key() string {
	if !p.IsGuest() {
		return "user:" + p.UserID.String()
	}
	guest := strings.TrimSpace(p.GuestID)
	if guest == "" {
		return ""
	}
	return "guest:" + guest
}

// ContactEmail returns the account email for users and the checkout email for guests.
func (p Principal) ContactEmail() string {
	if !p.IsGuest() && strings.TrimSpace(p.Email) != "" {
		return strings.ToLower(strings.TrimSpace(p.Email))
	}
	return strings.ToLower(strings.TrimSpace(p.GuestEmail))
}
