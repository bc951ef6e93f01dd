package tracks

import (
	"sync/atomic"

	"github.com/dkeye/VoiceRoom/internal/domain"
)

type AttachState int32

const (
	AttachOk AttachState = iota
	AttachMuted
	AttachDetached
)

func (s AttachState) String() string {
	switch s {
	case AttachMuted:
		return "muted"
	case AttachDetached:
		return "detached"
	default:
		return "ok"
	}
}

// Key identifies an attachment: one surface per (identity, source).
type Key struct {
	Identity string
	Source   domain.TrackSource
}

func (k Key) String() string { return k.Identity + "/" + string(k.Source) }

// Surface renders one track. Close releases it; it is called once.
type Surface interface {
	SetMuted(muted bool)
	Close() error
}

// Attachment binds a track to its rendering surface.
type Attachment struct {
	Key
	TrackID string
	Surface Surface
	state   atomic.Int32 // Zero by default (AttachOk)
}

func newAttachment(key Key, trackID string, s Surface) *Attachment {
	return &Attachment{Key: key, TrackID: trackID, Surface: s}
}

func (a *Attachment) GetState() AttachState {
	return AttachState(a.state.Load())
}

func (a *Attachment) MarkOk() {
	a.state.Store(int32(AttachOk))
}

func (a *Attachment) MarkMuted() {
	a.state.Store(int32(AttachMuted))
}

func (a *Attachment) MarkDetached() {
	a.state.Store(int32(AttachDetached))
}
