// Package media wraps one transport room connection and the local devices
// published into it.
package media

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/dkeye/VoiceRoom/internal/core"
	"github.com/dkeye/VoiceRoom/internal/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Options struct {
	// ScreenShareAudio publishes the display capture's audio track.
	ScreenShareAudio bool
}

// local is one published capture stream and the publications made from it.
type local struct {
	stream core.CaptureStream
	pubs   []core.Publication
}

type share struct {
	local
	done chan struct{}
}

// Handle owns the local participant's devices inside one connected room.
// Enabled state is always read back from the room's publications.
type Handle struct {
	room     core.Room
	capturer core.Capturer
	emit     core.EventSink
	opts     Options
	logger   zerolog.Logger

	mu     sync.Mutex
	camera *local
	mic    *local
	screen *share
}

func NewHandle(room core.Room, capturer core.Capturer, emit core.EventSink, opts Options) *Handle {
	if emit == nil {
		emit = func(core.Event) {}
	}
	return &Handle{
		room:     room,
		capturer: capturer,
		emit:     emit,
		opts:     opts,
		logger: log.With().
			Str("module", "media").
			Str("identity", room.LocalIdentity()).
			Logger(),
	}
}

func (h *Handle) State() core.ConnectionState { return h.room.State() }

func (h *Handle) LocalIdentity() string { return h.room.LocalIdentity() }

// IsEnabled reports whether src is published and not muted.
func (h *Handle) IsEnabled(src domain.TrackSource) bool {
	return slices.ContainsFunc(h.room.LocalPublications(), func(p core.Publication) bool {
		return p.Source == src && !p.Muted
	})
}

// CameraFacing returns the facing of the camera currently published.
func (h *Handle) CameraFacing() (domain.Facing, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.camera == nil {
		return "", false
	}
	return h.camera.stream.Facing(), true
}

func (h *Handle) SetMicrophoneEnabled(ctx context.Context, on bool) error {
	if !on {
		h.mu.Lock()
		prev := h.mic
		h.mic = nil
		h.mu.Unlock()
		return h.release(ctx, domain.SourceMicrophone, prev)
	}
	if h.IsEnabled(domain.SourceMicrophone) {
		return nil
	}
	h.mu.Lock()
	stale := h.mic
	h.mic = nil
	h.mu.Unlock()
	if stale != nil {
		_ = h.retire(ctx, stale)
	}
	stream, err := h.capturer.Microphone(ctx)
	if err != nil {
		return fmt.Errorf("capture microphone: %w", err)
	}
	l, err := h.publish(ctx, stream, nil)
	if err != nil {
		return fmt.Errorf("publish microphone: %w", err)
	}
	h.mu.Lock()
	h.mic = l
	h.mu.Unlock()
	return nil
}

// SetCameraEnabled turns the camera on with a relaxed facing preference,
// or unpublishes it and stops capture.
func (h *Handle) SetCameraEnabled(ctx context.Context, on bool, facing domain.Facing) error {
	if !on {
		h.mu.Lock()
		prev := h.camera
		h.camera = nil
		h.mu.Unlock()
		return h.release(ctx, domain.SourceCamera, prev)
	}
	if h.IsEnabled(domain.SourceCamera) {
		return nil
	}
	stream, err := h.CaptureCamera(ctx, core.Constraints{Facing: facing})
	if err != nil {
		return err
	}
	return h.ReplaceCamera(ctx, stream)
}

func (h *Handle) CaptureCamera(ctx context.Context, c core.Constraints) (core.CaptureStream, error) {
	stream, err := h.capturer.Camera(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("capture camera (%s, exact=%t): %w", c.Facing, c.Exact, err)
	}
	return stream, nil
}

// ReplaceCamera publishes stream as the camera and then retires the
// previous camera. If publishing fails the previous camera stays live.
func (h *Handle) ReplaceCamera(ctx context.Context, stream core.CaptureStream) error {
	l, err := h.publish(ctx, stream, nil)
	if err != nil {
		return fmt.Errorf("publish camera: %w", err)
	}
	h.mu.Lock()
	prev := h.camera
	h.camera = l
	h.mu.Unlock()
	if prev == nil {
		return nil
	}
	return h.retire(ctx, prev)
}

// StartScreenShare publishes a display capture. Its out-of-band end runs
// the same path as StopScreenShare.
func (h *Handle) StartScreenShare(ctx context.Context) error {
	h.mu.Lock()
	busy := h.screen != nil
	h.mu.Unlock()
	if busy {
		return core.ErrAlreadySharing
	}

	stream, err := h.capturer.Display(ctx)
	if err != nil {
		return fmt.Errorf("capture display: %w", err)
	}
	keep := func(t core.LocalTrack) bool {
		return t.Source == domain.SourceScreenShare ||
			(h.opts.ScreenShareAudio && t.Source == domain.SourceScreenShareAudio)
	}
	l, err := h.publish(ctx, stream, keep)
	if err != nil {
		return fmt.Errorf("publish screen share: %w", err)
	}

	s := &share{local: *l, done: make(chan struct{})}
	h.mu.Lock()
	if h.screen != nil {
		h.mu.Unlock()
		_ = h.retire(ctx, l)
		return core.ErrAlreadySharing
	}
	h.screen = s
	h.mu.Unlock()

	go h.watchShare(s)
	return nil
}

func (h *Handle) watchShare(s *share) {
	select {
	case <-s.stream.Ended():
		h.logger.Info().Str("stream", s.stream.ID()).Msg("screen share ended out of band")
		if _, err := h.stopShare(context.Background(), s); err != nil {
			h.logger.Warn().Err(err).Msg("screen share cleanup failed")
		}
	case <-s.done:
	}
}

// StopScreenShare is idempotent; it reports whether a share was stopped.
func (h *Handle) StopScreenShare(ctx context.Context) (bool, error) {
	h.mu.Lock()
	s := h.screen
	h.mu.Unlock()
	if s == nil {
		return false, nil
	}
	return h.stopShare(ctx, s)
}

func (h *Handle) IsSharing() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.screen != nil
}

// stopShare runs at most once per share.
func (h *Handle) stopShare(ctx context.Context, s *share) (bool, error) {
	h.mu.Lock()
	if h.screen != s {
		h.mu.Unlock()
		return false, nil
	}
	h.screen = nil
	h.mu.Unlock()

	close(s.done)
	return true, h.retire(ctx, &s.local)
}

// UnpublishAll stops the screen share and every device, then removes any
// local publication the transport still reports.
func (h *Handle) UnpublishAll(ctx context.Context) error {
	var errs []error
	if _, err := h.StopScreenShare(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := h.SetCameraEnabled(ctx, false, ""); err != nil {
		errs = append(errs, err)
	}
	if err := h.SetMicrophoneEnabled(ctx, false); err != nil {
		errs = append(errs, err)
	}
	for _, p := range h.room.LocalPublications() {
		if err := h.room.Unpublish(ctx, p.SID); err != nil {
			errs = append(errs, fmt.Errorf("unpublish %s: %w", p.SID, err))
			continue
		}
		h.emitLocal(core.EventLocalTrackUnpublished, p, nil)
	}
	return errors.Join(errs...)
}

// Close disconnects from the room. Devices are not released; call
// UnpublishAll first.
func (h *Handle) Close() {
	h.room.Disconnect()
}

// publish publishes the tracks of stream accepted by keep. On failure the
// tracks already published are removed and the stream is stopped.
func (h *Handle) publish(ctx context.Context, stream core.CaptureStream, keep func(core.LocalTrack) bool) (*local, error) {
	l := &local{stream: stream}
	for _, t := range stream.Tracks() {
		if keep != nil && !keep(t) {
			continue
		}
		p, err := h.room.Publish(ctx, t)
		if err != nil {
			_ = h.retire(ctx, l)
			return nil, err
		}
		l.pubs = append(l.pubs, p)
	}
	for _, p := range l.pubs {
		h.logger.Info().Str("source", string(p.Source)).Str("sid", p.SID).Msg("track published")
		h.emitLocal(core.EventLocalTrackPublished, p, stream)
	}
	return l, nil
}

// release retires prev, or every publication of src when the handle does
// not know of one.
func (h *Handle) release(ctx context.Context, src domain.TrackSource, prev *local) error {
	if prev != nil {
		return h.retire(ctx, prev)
	}
	var errs []error
	for _, p := range h.room.LocalPublications() {
		if p.Source != src {
			continue
		}
		if err := h.room.Unpublish(ctx, p.SID); err != nil {
			errs = append(errs, fmt.Errorf("unpublish %s: %w", p.SID, err))
			continue
		}
		h.emitLocal(core.EventLocalTrackUnpublished, p, nil)
	}
	return errors.Join(errs...)
}

// retire unpublishes the publications of l and stops its stream.
// Publications the transport no longer reports are skipped.
func (h *Handle) retire(ctx context.Context, l *local) error {
	live := h.room.LocalPublications()
	var errs []error
	for _, p := range l.pubs {
		if !slices.ContainsFunc(live, func(q core.Publication) bool { return q.SID == p.SID }) {
			h.emitLocal(core.EventLocalTrackUnpublished, p, l.stream)
			continue
		}
		if err := h.room.Unpublish(ctx, p.SID); err != nil {
			errs = append(errs, fmt.Errorf("unpublish %s: %w", p.SID, err))
			continue
		}
		h.logger.Info().Str("source", string(p.Source)).Str("sid", p.SID).Msg("track unpublished")
		h.emitLocal(core.EventLocalTrackUnpublished, p, l.stream)
	}
	l.stream.Stop()
	return errors.Join(errs...)
}

func (h *Handle) emitLocal(kind core.EventKind, p core.Publication, stream core.CaptureStream) {
	h.emit(core.Event{
		Kind:     kind,
		Identity: h.room.LocalIdentity(),
		Source:   p.Source,
		TrackID:  p.SID,
		Stream:   stream,
	})
}
