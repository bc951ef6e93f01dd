package orch

import (
	"context"
	"time"

	"github.com/dkeye/VoiceRoom/internal/app/tracks"
	"github.com/dkeye/VoiceRoom/internal/core"
	"github.com/dkeye/VoiceRoom/internal/domain"
	"github.com/dkeye/VoiceRoom/internal/metrics"
)

// loop is the session's event loop. Transport events are handled one at a
// time in emission order; the reconciliation tick runs on the same loop.
func (s *Session) loop(ctx context.Context, v *visit, events <-chan core.Event) {
	s.seed(v.room.RemoteParticipants())
	s.changed()

	ticker := time.NewTicker(s.opts.ReconcileInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			s.handleEvent(v, ev)
			s.changed()
		case <-ticker.C:
			if s.reconcile(v) {
				s.changed()
			}
		}
	}
}

// seed attaches participants and subscribed tracks already present when
// the connection opened.
func (s *Session) seed(remote []core.RemoteParticipantInfo) {
	for _, rp := range remote {
		s.Registry.Upsert(rp.Identity)
		for _, t := range rp.Tracks {
			if t.Track == nil {
				continue
			}
			s.subscribed(rp.Identity, t.Source, t.Track)
			if t.Muted {
				s.muted(rp.Identity, tracks.Classify(t.Source, t.Track.Kind()), true)
			}
		}
	}
	metrics.ParticipantsActive.Set(float64(s.Registry.Len()))
}

func (s *Session) handleEvent(v *visit, ev core.Event) {
	logger := s.logger.With().
		Str("event", ev.Kind.String()).
		Str("identity", ev.Identity).
		Str("source", string(ev.Source)).
		Logger()
	logger.Debug().Msg("transport event")

	switch ev.Kind {
	case core.EventParticipantConnected:
		s.Registry.Upsert(ev.Identity)
	case core.EventParticipantDisconnected:
		s.Registry.Remove(ev.Identity)
		s.Tracks.DetachParticipant(ev.Identity)
	case core.EventTrackSubscribed:
		if ev.Track == nil {
			return
		}
		s.subscribed(ev.Identity, ev.Source, ev.Track)
	case core.EventTrackUnsubscribed:
		src := s.sourceOf(ev)
		s.Registry.SetSubscribed(ev.Identity, src, false)
		s.Tracks.DetachTrack(ev.Identity, src, ev.TrackID)
	case core.EventTrackMuted, core.EventTrackUnmuted:
		s.muted(ev.Identity, s.sourceOf(ev), ev.Kind == core.EventTrackMuted)
	case core.EventLocalTrackPublished:
		if ev.Source.IsVideo() && ev.Stream != nil {
			if _, err := s.Tracks.AttachLocal(ev.Identity, ev.Source, ev.Stream); err != nil {
				logger.Warn().Err(err).Msg("local preview failed")
			}
		}
	case core.EventLocalTrackUnpublished:
		if ev.Stream != nil {
			s.Tracks.DetachTrack(ev.Identity, ev.Source, ev.Stream.ID())
		} else {
			s.Tracks.Detach(ev.Identity, ev.Source)
		}
		// An out-of-band end shows up here first.
		v.devices.Reconcile()
	case core.EventDisconnected:
		logger.Info().Msg("disconnected by transport")
		go s.Leave(context.Background())
	}
	metrics.ParticipantsActive.Set(float64(s.Registry.Len()))
}

func (s *Session) subscribed(identity string, declared domain.TrackSource, t core.RemoteTrack) {
	src := tracks.Classify(declared, t.Kind())
	s.Registry.SetSubscribed(identity, src, true)
	if _, err := s.Tracks.Attach(identity, src, t); err != nil {
		s.logger.Warn().Err(err).Str("identity", identity).Str("source", string(src)).Msg("attach failed")
	}
}

func (s *Session) muted(identity string, src domain.TrackSource, muted bool) {
	s.Registry.SetMuted(identity, src, muted)
	s.Tracks.SetMuted(identity, src, muted)
}

// sourceOf classifies the source of an event that may not carry a track.
func (s *Session) sourceOf(ev core.Event) domain.TrackSource {
	if ev.Track != nil {
		return tracks.Classify(ev.Source, ev.Track.Kind())
	}
	return ev.Source
}

// reconcile corrects device flags, participant membership and attachments
// against the transport. It reports whether anything changed.
func (s *Session) reconcile(v *visit) bool {
	changed := v.devices.Reconcile()

	remote := classified(v.room.RemoteParticipants())
	added, removed := s.Registry.Reconcile(remote)
	for _, id := range removed {
		s.Tracks.DetachParticipant(id)
	}
	for _, rp := range remote {
		if s.syncAttachments(rp) {
			changed = true
		}
	}
	metrics.ParticipantsActive.Set(float64(s.Registry.Len()))
	return changed || len(added) > 0 || len(removed) > 0
}

// classified copies remote with every subscribed track keyed by the source
// the event path would give it.
func classified(remote []core.RemoteParticipantInfo) []core.RemoteParticipantInfo {
	out := make([]core.RemoteParticipantInfo, len(remote))
	for i, rp := range remote {
		ts := make([]core.RemoteTrackInfo, len(rp.Tracks))
		for j, t := range rp.Tracks {
			if t.Track != nil {
				t.Source = tracks.Classify(t.Source, t.Track.Kind())
			}
			ts[j] = t
		}
		out[i] = core.RemoteParticipantInfo{Identity: rp.Identity, Tracks: ts}
	}
	return out
}

// syncAttachments makes the attachments of one remote participant match
// its subscribed tracks: missing or stale ones are attached, ones without
// a subscribed track are detached, mute state follows the transport.
func (s *Session) syncAttachments(rp core.RemoteParticipantInfo) bool {
	changed := false
	want := make(map[domain.TrackSource]bool, len(rp.Tracks))
	for _, t := range rp.Tracks {
		if t.Track == nil || t.Source == domain.SourceUnknown {
			continue
		}
		want[t.Source] = true
		a, ok := s.Tracks.Get(rp.Identity, t.Source)
		if !ok || a.TrackID != t.Track.ID() {
			s.subscribed(rp.Identity, t.Source, t.Track)
			changed = true
			a, ok = s.Tracks.Get(rp.Identity, t.Source)
		}
		if ok && (a.GetState() == tracks.AttachMuted) != t.Muted {
			s.Tracks.SetMuted(rp.Identity, t.Source, t.Muted)
			changed = true
		}
	}
	for _, src := range domain.Sources {
		if want[src] {
			continue
		}
		if s.Tracks.Detach(rp.Identity, src) {
			changed = true
		}
	}
	return changed
}
