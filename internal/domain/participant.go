package domain

import (
	"errors"
)

const MaxIdentityLen = 128

var (
	ErrIdentityEmpty   = errors.New("identity empty")
	ErrIdentityTooLong = errors.New("identity too long")
)

func ValidateIdentity(identity string) error {
	if len(identity) == 0 {
		return ErrIdentityEmpty
	}
	if len(identity) > MaxIdentityLen {
		return ErrIdentityTooLong
	}
	return nil
}

// TrackState is the per-kind view of one remote publication.
type TrackState struct {
	Subscribed bool `json:"subscribed"`
	Muted      bool `json:"muted"`
}

// Participant represents a remote identity present in the session.
// No transport or lifecycle logic here.
type Participant struct {
	Identity string                     `json:"identity"`
	Tracks   map[TrackSource]TrackState `json:"tracks"`
}

func NewParticipant(identity string) *Participant {
	return &Participant{Identity: identity, Tracks: make(map[TrackSource]TrackState)}
}

// MicMuted is true unless a microphone track is subscribed and unmuted.
func (p *Participant) MicMuted() bool {
	st, ok := p.Tracks[SourceMicrophone]
	return !ok || !st.Subscribed || st.Muted
}

// VideoOff is true unless a camera track is subscribed and unmuted.
func (p *Participant) VideoOff() bool {
	st, ok := p.Tracks[SourceCamera]
	return !ok || !st.Subscribed || st.Muted
}

func (p *Participant) Sharing() bool {
	st, ok := p.Tracks[SourceScreenShare]
	return ok && st.Subscribed
}

func (p *Participant) Clone() *Participant {
	out := NewParticipant(p.Identity)
	for k, v := range p.Tracks {
		out.Tracks[k] = v
	}
	return out
}
