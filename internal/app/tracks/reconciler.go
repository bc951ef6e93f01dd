// Package tracks maps subscribed and local tracks onto rendering surfaces.
package tracks

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/dkeye/VoiceRoom/internal/core"
	"github.com/dkeye/VoiceRoom/internal/domain"
	"github.com/dkeye/VoiceRoom/internal/metrics"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var ErrUnknownSource = errors.New("track source cannot be determined")

// SurfaceFactory creates surfaces for remote tracks and local previews.
type SurfaceFactory interface {
	Remote(key Key, t core.RemoteTrack) (Surface, error)
	Local(key Key, s core.CaptureStream) (Surface, error)
}

// View is the UI description of one attachment.
type View struct {
	Identity string             `json:"identity"`
	Source   domain.TrackSource `json:"source"`
	TrackID  string             `json:"track_id"`
	State    string             `json:"state"`
}

// Reconciler keeps at most one attachment per (identity, source).
// Attachments live in per-source maps keyed by identity.
type Reconciler struct {
	factory SurfaceFactory
	logger  zerolog.Logger

	mu       sync.RWMutex
	bySource map[domain.TrackSource]map[string]*Attachment
}

func NewReconciler(factory SurfaceFactory) *Reconciler {
	r := &Reconciler{
		factory:  factory,
		logger:   log.With().Str("module", "tracks").Logger(),
		bySource: make(map[domain.TrackSource]map[string]*Attachment, len(domain.Sources)),
	}
	for _, src := range domain.Sources {
		r.bySource[src] = make(map[string]*Attachment)
	}
	return r
}

// Classify decides the source of a track. The declared source wins; the
// codec kind is only consulted when the declaration is missing.
func Classify(declared domain.TrackSource, kind webrtc.RTPCodecType) domain.TrackSource {
	if declared != "" && declared != domain.SourceUnknown {
		return declared
	}
	switch kind {
	case webrtc.RTPCodecTypeVideo:
		return domain.SourceCamera
	case webrtc.RTPCodecTypeAudio:
		return domain.SourceMicrophone
	default:
		return domain.SourceUnknown
	}
}

// Attach renders a subscribed remote track. Attaching the track that is
// already attached is a no-op; a different track replaces and disposes
// the previous surface.
func (r *Reconciler) Attach(identity string, declared domain.TrackSource, t core.RemoteTrack) (*Attachment, error) {
	src := Classify(declared, t.Kind())
	if src == domain.SourceUnknown {
		return nil, ErrUnknownSource
	}
	key := Key{Identity: identity, Source: src}

	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.bySource[src][identity]; ok {
		if old.TrackID == t.ID() {
			return old, nil
		}
		r.logger.Info().Str("key", key.String()).Msg("replacing existing attachment")
		r.dispose(old)
	}
	s, err := r.factory.Remote(key, t)
	if err != nil {
		return nil, fmt.Errorf("create surface %s: %w", key, err)
	}
	return r.store(newAttachment(key, t.ID(), s)), nil
}

// AttachLocal renders a local capture stream as a preview.
func (r *Reconciler) AttachLocal(identity string, src domain.TrackSource, stream core.CaptureStream) (*Attachment, error) {
	key := Key{Identity: identity, Source: src}

	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.bySource[src][identity]; ok {
		if old.TrackID == stream.ID() {
			return old, nil
		}
		r.dispose(old)
	}
	s, err := r.factory.Local(key, stream)
	if err != nil {
		return nil, fmt.Errorf("create preview %s: %w", key, err)
	}
	return r.store(newAttachment(key, stream.ID(), s)), nil
}

// Detach disposes the attachment of (identity, src), if any.
func (r *Reconciler) Detach(identity string, src domain.TrackSource) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.bySource[src][identity]
	if !ok {
		return false
	}
	r.dispose(a)
	return true
}

// DetachTrack disposes the attachment of (identity, src) only while it
// still renders trackID.
func (r *Reconciler) DetachTrack(identity string, src domain.TrackSource, trackID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.bySource[src][identity]
	if !ok || (trackID != "" && a.TrackID != trackID) {
		return false
	}
	r.dispose(a)
	return true
}

// DetachParticipant disposes every attachment of identity.
func (r *Reconciler) DetachParticipant(identity string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.bySource {
		if a, ok := m[identity]; ok {
			r.dispose(a)
			n++
		}
	}
	return n
}

func (r *Reconciler) DetachAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.bySource {
		for _, a := range m {
			r.dispose(a)
		}
	}
}

func (r *Reconciler) SetMuted(identity string, src domain.TrackSource, muted bool) bool {
	r.mu.RLock()
	a, ok := r.bySource[src][identity]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if muted {
		a.MarkMuted()
	} else {
		a.MarkOk()
	}
	a.Surface.SetMuted(muted)
	return true
}

func (r *Reconciler) Get(identity string, src domain.TrackSource) (*Attachment, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.bySource[src][identity]
	return a, ok
}

func (r *Reconciler) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, m := range r.bySource {
		n += len(m)
	}
	return n
}

// Snapshot lists attachments ordered by identity, then source.
func (r *Reconciler) Snapshot() []View {
	r.mu.RLock()
	out := make([]View, 0, len(r.bySource))
	for _, m := range r.bySource {
		for _, a := range m {
			out = append(out, View{
				Identity: a.Identity,
				Source:   a.Source,
				TrackID:  a.TrackID,
				State:    a.GetState().String(),
			})
		}
	}
	r.mu.RUnlock()
	slices.SortFunc(out, func(a, b View) int {
		return cmp.Or(cmp.Compare(a.Identity, b.Identity), cmp.Compare(a.Source, b.Source))
	})
	return out
}

func (r *Reconciler) store(a *Attachment) *Attachment {
	m, ok := r.bySource[a.Source]
	if !ok {
		m = make(map[string]*Attachment)
		r.bySource[a.Source] = m
	}
	m[a.Identity] = a
	metrics.SurfacesActive.WithLabelValues(string(a.Source)).Inc()
	r.logger.Debug().Str("key", a.Key.String()).Str("track", a.TrackID).Msg("attached")
	return a
}

// dispose must be called with mu held.
func (r *Reconciler) dispose(a *Attachment) {
	a.MarkDetached()
	delete(r.bySource[a.Source], a.Identity)
	metrics.SurfacesActive.WithLabelValues(string(a.Source)).Dec()
	if err := a.Surface.Close(); err != nil {
		r.logger.Warn().Err(err).Str("key", a.Key.String()).Msg("surface close failed")
	}
}
