package core

import "github.com/dkeye/VoiceRoom/internal/domain"

type EventKind int

const (
	EventParticipantConnected EventKind = iota
	EventParticipantDisconnected
	EventTrackSubscribed
	EventTrackUnsubscribed
	EventTrackMuted
	EventTrackUnmuted
	EventLocalTrackPublished
	EventLocalTrackUnpublished
	EventDisconnected
)

var eventNames = map[EventKind]string{
	EventParticipantConnected:    "participant_connected",
	EventParticipantDisconnected: "participant_disconnected",
	EventTrackSubscribed:         "track_subscribed",
	EventTrackUnsubscribed:       "track_unsubscribed",
	EventTrackMuted:              "track_muted",
	EventTrackUnmuted:            "track_unmuted",
	EventLocalTrackPublished:     "local_track_published",
	EventLocalTrackUnpublished:   "local_track_unpublished",
	EventDisconnected:            "disconnected",
}

func (k EventKind) String() string {
	if n, ok := eventNames[k]; ok {
		return n
	}
	return "unknown"
}

// Event is one participant or track lifecycle notification.
// Track is set on EventTrackSubscribed; Stream on local publish events.
type Event struct {
	Kind     EventKind
	Identity string
	Source   domain.TrackSource
	TrackID  string
	Track    RemoteTrack
	Stream   CaptureStream
}

type EventSink func(Event)
