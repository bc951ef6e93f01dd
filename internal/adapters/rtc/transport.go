// Package rtc connects sessions to a LiveKit room.
package rtc

import (
	"context"
	"fmt"

	"github.com/dkeye/VoiceRoom/internal/core"
	lksdk "github.com/livekit/server-sdk-go/v2"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// Transport joins LiveKit rooms with a pre-issued access token.
type Transport struct {
	AutoSubscribe bool
}

func NewTransport() *Transport {
	return &Transport{AutoSubscribe: true}
}

func (t *Transport) Connect(ctx context.Context, url, token string, sink core.EventSink) (core.Room, error) {
	room := lksdk.NewRoom(callbacks(sink))

	joined := make(chan error, 1)
	go func() { joined <- room.JoinWithToken(url, token, lksdk.WithAutoSubscribe(t.AutoSubscribe)) }()

	select {
	case err := <-joined:
		if err != nil {
			return nil, fmt.Errorf("join %s: %w", url, err)
		}
	case <-ctx.Done():
		// The SDK join cannot be interrupted; drop the room once it lands.
		go func() {
			if err := <-joined; err == nil {
				room.Disconnect()
			}
		}()
		return nil, ctx.Err()
	}

	log.Info().
		Str("module", "rtc").
		Str("room", room.Name()).
		Str("identity", room.LocalParticipant.Identity()).
		Msg("connected")
	return &Room{room: room}, nil
}

// callbacks translates SDK callbacks into session events. The SDK invokes
// several of them from their own goroutines.
func callbacks(sink core.EventSink) *lksdk.RoomCallback {
	cb := lksdk.NewRoomCallback()
	cb.OnParticipantConnected = func(rp *lksdk.RemoteParticipant) {
		sink(core.Event{Kind: core.EventParticipantConnected, Identity: rp.Identity()})
	}
	cb.OnParticipantDisconnected = func(rp *lksdk.RemoteParticipant) {
		sink(core.Event{Kind: core.EventParticipantDisconnected, Identity: rp.Identity()})
	}
	cb.OnDisconnected = func() {
		sink(core.Event{Kind: core.EventDisconnected})
	}
	cb.OnTrackSubscribed = func(track *webrtc.TrackRemote, pub *lksdk.RemoteTrackPublication, rp *lksdk.RemoteParticipant) {
		if track == nil {
			return
		}
		sink(core.Event{
			Kind:     core.EventTrackSubscribed,
			Identity: rp.Identity(),
			Source:   fromProto(pub.Source()),
			TrackID:  pub.SID(),
			Track:    track,
		})
	}
	cb.OnTrackUnsubscribed = func(_ *webrtc.TrackRemote, pub *lksdk.RemoteTrackPublication, rp *lksdk.RemoteParticipant) {
		sink(core.Event{
			Kind:     core.EventTrackUnsubscribed,
			Identity: rp.Identity(),
			Source:   fromProto(pub.Source()),
			TrackID:  pub.SID(),
		})
	}
	cb.OnTrackMuted = func(pub lksdk.TrackPublication, p lksdk.Participant) {
		if rp, ok := p.(*lksdk.RemoteParticipant); ok {
			sink(core.Event{Kind: core.EventTrackMuted, Identity: rp.Identity(), Source: fromProto(pub.Source()), TrackID: pub.SID()})
		}
	}
	cb.OnTrackUnmuted = func(pub lksdk.TrackPublication, p lksdk.Participant) {
		if rp, ok := p.(*lksdk.RemoteParticipant); ok {
			sink(core.Event{Kind: core.EventTrackUnmuted, Identity: rp.Identity(), Source: fromProto(pub.Source()), TrackID: pub.SID()})
		}
	}
	return cb
}
