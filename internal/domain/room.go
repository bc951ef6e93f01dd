package domain

import (
	"errors"
	"strings"
	"time"
)

const MaxRoomIDLen = 64

var (
	ErrRoomIDEmpty   = errors.New("room id empty")
	ErrRoomIDTooLong = errors.New("room id too long")
	ErrRoomIDInvalid = errors.New("room id contains invalid characters")
)

type RoomID string

// ParseRoomID validates a room identifier taken from a route or command line.
func ParseRoomID(raw string) (RoomID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrRoomIDEmpty
	}
	if len(raw) > MaxRoomIDLen {
		return "", ErrRoomIDTooLong
	}
	for _, r := range raw {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return "", ErrRoomIDInvalid
		}
	}
	return RoomID(raw), nil
}

// RoomInfo is the backend's description of a room.
type RoomInfo struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Description      *string   `json:"description,omitempty"`
	CreatedByID      string    `json:"created_by_id"`
	CreatedByName    string    `json:"created_by_name"`
	IsActive         bool      `json:"is_active"`
	MaxParticipants  *int      `json:"max_participants,omitempty"`
	ParticipantCount int64     `json:"participant_count"`
	CreatedAt        time.Time `json:"created_at"`
}

// Credential is the short-lived room credential issued by the backend.
// Identity, Name and ExpiresAt are decoded from the token claims when present.
type Credential struct {
	Token     string    `json:"-"`
	URL       string    `json:"url"`
	Room      RoomInfo  `json:"room"`
	Identity  string    `json:"identity,omitempty"`
	Name      string    `json:"name,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

func (c Credential) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}
