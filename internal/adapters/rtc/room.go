package rtc

import (
	"context"
	"fmt"

	"github.com/dkeye/VoiceRoom/internal/core"
	lksdk "github.com/livekit/server-sdk-go/v2"
	"github.com/rs/zerolog/log"
)

// Room adapts a joined lksdk.Room to core.Room.
type Room struct {
	room *lksdk.Room
}

func (r *Room) State() core.ConnectionState {
	switch r.room.ConnectionState() {
	case lksdk.ConnectionStateConnected:
		return core.StateConnected
	case lksdk.ConnectionStateReconnecting:
		return core.StateConnecting
	default:
		return core.StateDisconnected
	}
}

func (r *Room) LocalIdentity() string { return r.room.LocalParticipant.Identity() }

func (r *Room) Publish(_ context.Context, t core.LocalTrack) (core.Publication, error) {
	pub, err := r.room.LocalParticipant.PublishTrack(t.Track, &lksdk.TrackPublicationOptions{
		Name:   string(t.Source),
		Source: toProto(t.Source),
	})
	if err != nil {
		return core.Publication{}, fmt.Errorf("publish %s: %w", t.Source, err)
	}
	return core.Publication{SID: pub.SID(), Source: t.Source, Muted: pub.IsMuted()}, nil
}

func (r *Room) Unpublish(_ context.Context, sid string) error {
	return r.room.LocalParticipant.UnpublishTrack(sid)
}

func (r *Room) LocalPublications() []core.Publication {
	pubs := r.room.LocalParticipant.TrackPublications()
	out := make([]core.Publication, 0, len(pubs))
	for _, p := range pubs {
		out = append(out, core.Publication{SID: p.SID(), Source: fromProto(p.Source()), Muted: p.IsMuted()})
	}
	return out
}

func (r *Room) RemoteParticipants() []core.RemoteParticipantInfo {
	rps := r.room.GetRemoteParticipants()
	out := make([]core.RemoteParticipantInfo, 0, len(rps))
	for _, rp := range rps {
		info := core.RemoteParticipantInfo{Identity: rp.Identity()}
		for _, p := range rp.TrackPublications() {
			rpub, ok := p.(*lksdk.RemoteTrackPublication)
			if !ok {
				continue
			}
			ti := core.RemoteTrackInfo{SID: rpub.SID(), Source: fromProto(rpub.Source()), Muted: rpub.IsMuted()}
			// Keep the interface nil for unsubscribed publications.
			if tr := rpub.TrackRemote(); tr != nil {
				ti.Track = tr
			}
			info.Tracks = append(info.Tracks, ti)
		}
		out = append(out, info)
	}
	return out
}

func (r *Room) Disconnect() {
	r.room.Disconnect()
	log.Info().Str("module", "rtc").Str("room", r.room.Name()).Msg("disconnected")
}
