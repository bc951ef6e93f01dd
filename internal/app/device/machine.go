// Package device serializes local device operations and keeps the UI's
// device flags in step with what the transport actually publishes.
package device

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dkeye/VoiceRoom/internal/core"
	"github.com/dkeye/VoiceRoom/internal/domain"
	"github.com/dkeye/VoiceRoom/internal/metrics"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const DefaultReconcileInterval = 500 * time.Millisecond

// Media is the part of the connection handle the machine drives.
type Media interface {
	IsEnabled(src domain.TrackSource) bool
	IsSharing() bool
	SetMicrophoneEnabled(ctx context.Context, on bool) error
	SetCameraEnabled(ctx context.Context, on bool, facing domain.Facing) error
	CaptureCamera(ctx context.Context, c core.Constraints) (core.CaptureStream, error)
	ReplaceCamera(ctx context.Context, stream core.CaptureStream) error
	StartScreenShare(ctx context.Context) error
	StopScreenShare(ctx context.Context) (bool, error)
}

// Machine holds one single-flight guard per device. Camera toggle and
// camera switch share a guard.
type Machine struct {
	media    Media
	onChange func(domain.DeviceFlags)
	logger   zerolog.Logger

	micGuard    sync.Mutex
	cameraGuard sync.Mutex
	screenGuard sync.Mutex

	mu    sync.RWMutex
	flags domain.DeviceFlags
}

func New(media Media, facing domain.Facing, onChange func(domain.DeviceFlags)) *Machine {
	if facing == "" {
		facing = domain.FacingUser
	}
	if onChange == nil {
		onChange = func(domain.DeviceFlags) {}
	}
	return &Machine{
		media:    media,
		onChange: onChange,
		logger:   log.With().Str("module", "device").Logger(),
		flags:    domain.DeviceFlags{Facing: facing},
	}
}

func (m *Machine) Flags() domain.DeviceFlags {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.flags
}

func (m *Machine) ToggleMic(ctx context.Context) error {
	return m.setMic(ctx, nil)
}

func (m *Machine) SetMic(ctx context.Context, on bool) error {
	return m.setMic(ctx, &on)
}

// setMic flips the microphone when want is nil. The current state is read
// from the transport first and the flag is taken from a re-read after.
func (m *Machine) setMic(ctx context.Context, want *bool) error {
	if !m.micGuard.TryLock() {
		return core.ErrDeviceBusy
	}
	defer m.micGuard.Unlock()

	cur := m.media.IsEnabled(domain.SourceMicrophone)
	target := !cur
	if want != nil {
		target = *want
	}
	var err error
	if target != cur {
		err = m.media.SetMicrophoneEnabled(ctx, target)
	}
	now := m.media.IsEnabled(domain.SourceMicrophone)
	m.update(func(f *domain.DeviceFlags) { f.MicEnabled = now })
	m.record("microphone", err)
	return err
}

func (m *Machine) ToggleCamera(ctx context.Context) error {
	return m.setCamera(ctx, nil)
}

func (m *Machine) SetCamera(ctx context.Context, on bool) error {
	return m.setCamera(ctx, &on)
}

func (m *Machine) setCamera(ctx context.Context, want *bool) error {
	if !m.cameraGuard.TryLock() {
		return core.ErrDeviceBusy
	}
	defer m.cameraGuard.Unlock()

	cur := m.media.IsEnabled(domain.SourceCamera)
	target := !cur
	if want != nil {
		target = *want
	}
	var err error
	if target != cur {
		err = m.media.SetCameraEnabled(ctx, target, m.Flags().Facing)
	}
	now := m.media.IsEnabled(domain.SourceCamera)
	m.update(func(f *domain.DeviceFlags) { f.CameraEnabled = now })
	m.record("camera", err)
	return err
}

// SwitchCamera moves the camera to the opposite facing. The exact facing
// is tried first, then once without the exact constraint. On failure the
// previous camera stays published.
func (m *Machine) SwitchCamera(ctx context.Context) error {
	if !m.cameraGuard.TryLock() {
		return core.ErrDeviceBusy
	}
	defer m.cameraGuard.Unlock()

	err := m.switchCamera(ctx)
	now := m.media.IsEnabled(domain.SourceCamera)
	m.update(func(f *domain.DeviceFlags) { f.CameraEnabled = now })
	m.record("camera_switch", err)
	return err
}

func (m *Machine) switchCamera(ctx context.Context) error {
	if !m.media.IsEnabled(domain.SourceCamera) {
		return core.ErrCameraOff
	}
	target := m.Flags().Facing.Opposite()
	logger := m.logger.With().Str("facing", string(target)).Logger()

	stream, err := m.media.CaptureCamera(ctx, core.Constraints{Facing: target, Exact: true})
	if errors.Is(err, core.ErrOverconstrained) {
		logger.Info().Msg("exact facing unavailable, retrying relaxed")
		stream, err = m.media.CaptureCamera(ctx, core.Constraints{Facing: target})
	}
	if err != nil {
		logger.Warn().Err(err).Msg("camera switch failed, keeping previous camera")
		return err
	}
	if err := m.media.ReplaceCamera(ctx, stream); err != nil {
		logger.Warn().Err(err).Msg("camera replace failed")
		return err
	}
	m.update(func(f *domain.DeviceFlags) { f.Facing = target })
	logger.Info().Msg("camera switched")
	return nil
}

// ToggleScreenShare starts a share or stops the running one.
func (m *Machine) ToggleScreenShare(ctx context.Context) error {
	if !m.screenGuard.TryLock() {
		return core.ErrDeviceBusy
	}
	defer m.screenGuard.Unlock()

	var err error
	if m.media.IsSharing() {
		_, err = m.media.StopScreenShare(ctx)
	} else {
		err = m.media.StartScreenShare(ctx)
	}
	now := m.media.IsSharing()
	m.update(func(f *domain.DeviceFlags) { f.ScreenSharing = now })
	m.record("screen_share", err)
	return err
}

// Reconcile re-reads device state and corrects the flags. Devices with an
// operation in flight are left to that operation. It reports whether any
// flag changed.
func (m *Machine) Reconcile() bool {
	changed := false
	check := func(guard *sync.Mutex, device string, read func() bool, field func(*domain.DeviceFlags) *bool) {
		if !guard.TryLock() {
			return
		}
		defer guard.Unlock()
		now := read()
		m.mu.Lock()
		p := field(&m.flags)
		if *p != now {
			*p = now
			changed = true
			metrics.ReconcileCorrections.WithLabelValues(device).Inc()
			m.logger.Debug().Str("device", device).Bool("enabled", now).Msg("flag corrected")
		}
		m.mu.Unlock()
	}
	check(&m.micGuard, "microphone",
		func() bool { return m.media.IsEnabled(domain.SourceMicrophone) },
		func(f *domain.DeviceFlags) *bool { return &f.MicEnabled })
	check(&m.cameraGuard, "camera",
		func() bool { return m.media.IsEnabled(domain.SourceCamera) },
		func(f *domain.DeviceFlags) *bool { return &f.CameraEnabled })
	check(&m.screenGuard, "screen_share",
		m.media.IsSharing,
		func(f *domain.DeviceFlags) *bool { return &f.ScreenSharing })

	if changed {
		m.onChange(m.Flags())
	}
	return changed
}

func (m *Machine) update(fn func(*domain.DeviceFlags)) {
	m.mu.Lock()
	before := m.flags
	fn(&m.flags)
	after := m.flags
	m.mu.Unlock()
	if before != after {
		m.onChange(after)
	}
}

func (m *Machine) record(device string, err error) {
	metrics.DeviceOpsTotal.WithLabelValues(device, metrics.Result(err)).Inc()
	if err != nil {
		m.logger.Info().Err(err).Str("device", device).Msg("device operation failed")
	}
}
