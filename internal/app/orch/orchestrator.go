package orch

import (
	"context"
	"errors"

	"github.com/dkeye/VoiceRoom/internal/app/tracks"
	"github.com/dkeye/VoiceRoom/internal/core"
	"github.com/dkeye/VoiceRoom/internal/domain"
	"github.com/rs/zerolog/log"
)

// DeviceOp names a UI device control.
type DeviceOp string

const (
	OpToggleMic         DeviceOp = "toggle_mic"
	OpToggleCamera      DeviceOp = "toggle_camera"
	OpSwitchCamera      DeviceOp = "switch_camera"
	OpToggleScreenShare DeviceOp = "toggle_screen_share"
)

var ErrUnknownOp = errors.New("unknown device operation")

// CredentialsFor builds the backend client of one visit from the caller's
// access token.
type CredentialsFor func(accessToken string) core.CredentialSource

// Orchestrator is the entry point of the UI surfaces. It forwards
// commands to the navigator's current session.
type Orchestrator struct {
	Nav   *Navigator
	creds CredentialsFor
}

func NewOrchestrator(nav *Navigator, creds CredentialsFor) *Orchestrator {
	return &Orchestrator{Nav: nav, creds: creds}
}

func (o *Orchestrator) Observe(onChange func(View), onNotice func(domain.Notice)) {
	o.Nav.Observe(onChange, onNotice)
}

// Join opens roomID and joins it. The view is returned even on failure
// so callers can render the error state.
func (o *Orchestrator) Join(ctx context.Context, roomID domain.RoomID, accessToken string) (View, error) {
	s := o.Nav.Open(ctx, roomID, o.creds(accessToken))
	err := s.Join(ctx)
	if err != nil {
		log.Info().Str("module", "orchestrator").Str("room", string(roomID)).Err(err).Msg("join rejected")
	}
	return s.Snapshot(), err
}

// Leave leaves the current session, if any. The session stays current
// so its final state can still be shown.
func (o *Orchestrator) Leave(ctx context.Context) View {
	s, ok := o.Nav.Current()
	if !ok {
		return o.idleView()
	}
	s.Leave(ctx)
	return s.Snapshot()
}

func (o *Orchestrator) Device(ctx context.Context, op DeviceOp) error {
	s, ok := o.Nav.Current()
	if !ok {
		return core.ErrNotConnected
	}
	switch op {
	case OpToggleMic:
		return s.ToggleMic(ctx)
	case OpToggleCamera:
		return s.ToggleCamera(ctx)
	case OpSwitchCamera:
		return s.SwitchCamera(ctx)
	case OpToggleScreenShare:
		return s.ToggleScreenShare(ctx)
	default:
		return ErrUnknownOp
	}
}

func (o *Orchestrator) View() View {
	if s, ok := o.Nav.Current(); ok {
		return s.Snapshot()
	}
	return o.idleView()
}

func (o *Orchestrator) Close(ctx context.Context) {
	o.Nav.Close(ctx)
}

func (o *Orchestrator) idleView() View {
	return View{
		State:        core.StateIdle,
		Join:         core.JoinIdle.String(),
		Devices:      domain.DeviceFlags{Facing: o.Nav.opts.withDefaults().Facing},
		Participants: []ParticipantView{},
		Attachments:  []tracks.View{},
	}
}
