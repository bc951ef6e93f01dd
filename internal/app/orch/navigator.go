package orch

import (
	"context"
	"sync"

	"github.com/dkeye/VoiceRoom/internal/core"
	"github.com/dkeye/VoiceRoom/internal/domain"
	"github.com/rs/zerolog/log"
)

// Navigator owns at most one Session at a time, the way a page owns the
// room it shows. Opening another room leaves the previous one.
type Navigator struct {
	deps Deps
	opts Options

	onChange func(View)
	onNotice func(domain.Notice)

	mu      sync.Mutex
	current *Session
}

func NewNavigator(deps Deps, opts Options) *Navigator {
	return &Navigator{deps: deps, opts: opts}
}

// Observe installs observers on every session opened afterwards.
func (n *Navigator) Observe(onChange func(View), onNotice func(domain.Notice)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.onChange = onChange
	n.onNotice = onNotice
}

// Open returns the session for roomID. A session for the same room that is
// joining or joined is reused; anything else is left and replaced.
func (n *Navigator) Open(ctx context.Context, roomID domain.RoomID, creds core.CredentialSource) *Session {
	n.mu.Lock()
	prev := n.current
	if prev != nil && prev.RoomID() == roomID && prev.JoinState() != core.JoinIdle {
		n.mu.Unlock()
		return prev
	}
	s := NewSession(roomID, creds, n.deps, n.opts)
	if n.onChange != nil {
		s.OnChange(n.onChange)
	}
	if n.onNotice != nil {
		s.OnNotice(n.onNotice)
	}
	n.current = s
	n.mu.Unlock()

	if prev != nil {
		log.Info().
			Str("module", "navigator").
			Str("from_room", string(prev.RoomID())).
			Str("room", string(roomID)).
			Msg("leaving previous room")
		prev.Leave(ctx)
	}
	return s
}

func (n *Navigator) Current() (*Session, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.current, n.current != nil
}

// Close leaves the current session and forgets it.
func (n *Navigator) Close(ctx context.Context) {
	n.mu.Lock()
	s := n.current
	n.current = nil
	n.mu.Unlock()
	if s != nil {
		s.Leave(ctx)
	}
}
