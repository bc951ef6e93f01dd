// Package orch coordinates one room visit: credential, connection, devices,
// participants and rendering surfaces.
package orch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/VoiceRoom/internal/app"
	"github.com/dkeye/VoiceRoom/internal/app/device"
	"github.com/dkeye/VoiceRoom/internal/app/media"
	"github.com/dkeye/VoiceRoom/internal/app/tracks"
	"github.com/dkeye/VoiceRoom/internal/core"
	"github.com/dkeye/VoiceRoom/internal/domain"
	"github.com/dkeye/VoiceRoom/internal/metrics"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
)

// Deps are the collaborators shared by every visit.
type Deps struct {
	Transport core.Transport
	Capturer  core.Capturer
	Surfaces  tracks.SurfaceFactory
	Policy    app.Policy
}

type Options struct {
	AutoEnableCamera     bool
	AutoEnableMicrophone bool
	ScreenShareAudio     bool
	Facing               domain.Facing
	ReconcileInterval    time.Duration
	EventBuffer          int
}

func (o Options) withDefaults() Options {
	if o.Facing == "" {
		o.Facing = domain.FacingUser
	}
	if o.ReconcileInterval <= 0 {
		o.ReconcileInterval = device.DefaultReconcileInterval
	}
	if o.EventBuffer <= 0 {
		o.EventBuffer = 64
	}
	return o
}

// visit is the live part of a joined session.
type visit struct {
	room    core.Room
	handle  *media.Handle
	devices *device.Machine
	cancel  context.CancelFunc
	stop    chan struct{}
	wg      *conc.WaitGroup
}

// Session is one room visit. Join and Leave may be called any number of
// times; at most one connection attempt is in flight.
type Session struct {
	roomID domain.RoomID
	creds  core.CredentialSource
	deps   Deps
	opts   Options
	logger zerolog.Logger

	Registry *app.Registry
	Tracks   *tracks.Reconciler

	// opMu is held shared by device operations and exclusively by teardown.
	opMu sync.RWMutex

	mu         sync.Mutex
	state      core.ConnectionState
	join       core.JoinState
	gen        uint64
	lastErr    string
	cred       domain.Credential
	cancelJoin context.CancelFunc
	live       *visit

	obsMu    sync.RWMutex
	onChange []func(View)
	onNotice []func(domain.Notice)
}

func NewSession(roomID domain.RoomID, creds core.CredentialSource, deps Deps, opts Options) *Session {
	if deps.Policy == nil {
		deps.Policy = app.SimplePolicy{}
	}
	return &Session{
		roomID:   roomID,
		creds:    creds,
		deps:     deps,
		opts:     opts.withDefaults(),
		logger:   log.With().Str("module", "session").Str("room", string(roomID)).Logger(),
		Registry: app.NewRegistry(),
		Tracks:   tracks.NewReconciler(deps.Surfaces),
		state:    core.StateIdle,
	}
}

func (s *Session) RoomID() domain.RoomID { return s.roomID }

// OnChange registers an observer called after every state change.
func (s *Session) OnChange(fn func(View)) {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	s.onChange = append(s.onChange, fn)
}

func (s *Session) OnNotice(fn func(domain.Notice)) {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	s.onNotice = append(s.onNotice, fn)
}

func (s *Session) JoinState() core.JoinState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.join
}

// Join requests a credential, connects and enables the configured devices.
// It fails fast while another join is in flight or after a completed join.
// Failures leave the session in StateError; nothing is retried.
func (s *Session) Join(ctx context.Context) error {
	s.mu.Lock()
	switch s.join {
	case core.Joining:
		s.mu.Unlock()
		return core.ErrJoinInProgress
	case core.Joined:
		s.mu.Unlock()
		return core.ErrAlreadyJoined
	}
	s.join = core.Joining
	s.state = core.StateConnecting
	s.lastErr = ""
	s.gen++
	gen := s.gen
	joinCtx, cancel := context.WithCancel(ctx)
	s.cancelJoin = cancel
	s.mu.Unlock()
	defer cancel()
	s.changed()

	s.logger.Info().Msg("joining")
	cred, err := s.creds.Join(joinCtx, s.roomID)
	if err != nil {
		return s.failJoin(gen, fmt.Errorf("request credential: %w", err))
	}

	events := make(chan core.Event, s.opts.EventBuffer)
	stop := make(chan struct{})
	sink := func(ev core.Event) {
		select {
		case events <- ev:
		case <-stop:
		}
	}
	room, err := s.deps.Transport.Connect(joinCtx, cred.URL, cred.Token, sink)
	if err != nil {
		close(stop)
		return s.failJoin(gen, fmt.Errorf("connect: %w", err))
	}

	handle := media.NewHandle(room, s.deps.Capturer, sink, media.Options{ScreenShareAudio: s.opts.ScreenShareAudio})
	machine := device.New(handle, s.opts.Facing, func(domain.DeviceFlags) { s.changed() })
	runCtx, runCancel := context.WithCancel(context.Background())
	v := &visit{
		room:    room,
		handle:  handle,
		devices: machine,
		cancel:  runCancel,
		stop:    stop,
		wg:      conc.NewWaitGroup(),
	}

	s.mu.Lock()
	if s.gen != gen || s.join != core.Joining {
		s.mu.Unlock()
		s.logger.Info().Msg("left while connecting, closing connection")
		runCancel()
		close(stop)
		room.Disconnect()
		return core.ErrLeftDuringJoin
	}
	s.join = core.Joined
	s.state = core.StateConnected
	s.cred = cred
	s.cancelJoin = nil
	s.live = v
	s.mu.Unlock()

	v.wg.Go(func() { s.loop(runCtx, v, events) })
	metrics.JoinsTotal.WithLabelValues("ok").Inc()
	s.logger.Info().Str("identity", room.LocalIdentity()).Msg("joined")
	s.changed()

	if s.opts.AutoEnableCamera {
		_ = s.deviceOp(runCtx, domain.SourceCamera, func(m *device.Machine, ctx context.Context) error {
			return m.SetCamera(ctx, true)
		})
	}
	if s.opts.AutoEnableMicrophone {
		_ = s.deviceOp(runCtx, domain.SourceMicrophone, func(m *device.Machine, ctx context.Context) error {
			return m.SetMic(ctx, true)
		})
	}
	return nil
}

func (s *Session) failJoin(gen uint64, err error) error {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return core.ErrLeftDuringJoin
	}
	s.state = core.StateError
	s.join = core.JoinIdle
	s.lastErr = err.Error()
	s.cancelJoin = nil
	s.mu.Unlock()

	metrics.JoinsTotal.WithLabelValues("error").Inc()
	s.logger.Error().Err(err).Msg("join failed")
	s.report("", err)
	s.changed()
	return err
}

// Leave is idempotent. It cancels a join in flight, unpublishes and stops
// every local device, disposes every surface and disconnects. The backend
// is notified afterwards; a failed notification is only reported.
func (s *Session) Leave(ctx context.Context) {
	s.mu.Lock()
	wasActive := s.join != core.JoinIdle
	cancelJoin := s.cancelJoin
	v := s.live
	s.cancelJoin = nil
	s.live = nil
	s.join = core.JoinIdle
	s.gen++
	if wasActive {
		s.state = core.StateDisconnected
	}
	s.mu.Unlock()

	if cancelJoin != nil {
		cancelJoin()
	}
	if v != nil {
		s.teardown(ctx, v)
	}

	if err := s.creds.Leave(ctx, s.roomID); err != nil {
		s.logger.Warn().Err(err).Msg("backend leave notification failed")
	}
	if wasActive {
		s.logger.Info().Msg("left")
		s.changed()
	}
}

func (s *Session) teardown(ctx context.Context, v *visit) {
	v.cancel()
	close(v.stop)
	v.wg.Wait()

	s.opMu.Lock()
	defer s.opMu.Unlock()
	if err := v.handle.UnpublishAll(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("unpublish on leave")
	}
	v.handle.Close()
	s.Tracks.DetachAll()
	s.Registry.Clear()
	metrics.ParticipantsActive.Set(0)
}

func (s *Session) current() *visit {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live
}

func (s *Session) report(src domain.TrackSource, err error) {
	n, ok := s.deps.Policy.OnError(src, err)
	if !ok {
		return
	}
	metrics.NoticesTotal.WithLabelValues(string(n.Severity)).Inc()
	s.obsMu.RLock()
	obs := s.onNotice
	s.obsMu.RUnlock()
	for _, fn := range obs {
		fn(n)
	}
}

func (s *Session) changed() {
	s.obsMu.RLock()
	obs := s.onChange
	s.obsMu.RUnlock()
	if len(obs) == 0 {
		return
	}
	view := s.Snapshot()
	for _, fn := range obs {
		fn(view)
	}
}
