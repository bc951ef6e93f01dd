package core

import (
	"context"

	"github.com/dkeye/VoiceRoom/internal/domain"
)

type ConnectionState string

const (
	StateIdle         ConnectionState = "idle"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateDisconnected ConnectionState = "disconnected"
	StateError        ConnectionState = "error"
)

// JoinState is the single-flight guard of one session lifecycle.
type JoinState int

const (
	JoinIdle JoinState = iota
	Joining
	Joined
)

func (s JoinState) String() string {
	switch s {
	case Joining:
		return "joining"
	case Joined:
		return "joined"
	default:
		return "idle"
	}
}

// CredentialSource is the backend room API as seen by a session.
type CredentialSource interface {
	// Join requests a short-lived transport credential for the room.
	Join(ctx context.Context, room domain.RoomID) (domain.Credential, error)
	// Leave notifies the backend of departure.
	Leave(ctx context.Context, room domain.RoomID) error
}
