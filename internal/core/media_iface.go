package core

import (
	"context"

	"github.com/dkeye/VoiceRoom/internal/domain"
	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

// RemoteTrack is a subscribed track coming from the transport.
type RemoteTrack interface {
	ID() string
	Kind() webrtc.RTPCodecType
	Codec() webrtc.RTPCodecParameters
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
}

// LocalTrack is one captured track ready to be published.
type LocalTrack struct {
	Source domain.TrackSource
	Track  webrtc.TrackLocal
}

// Constraints select a capture device.
type Constraints struct {
	Facing domain.Facing
	// Exact rejects devices that do not report the requested facing.
	Exact bool
}

// CaptureStream is a native capture handle. Stop releases the device;
// Ended is closed when capture stops for any reason, including out-of-band.
type CaptureStream interface {
	ID() string
	Facing() domain.Facing
	Tracks() []LocalTrack
	Ended() <-chan struct{}
	Stop()
}

// Capturer acquires capture streams from the platform.
type Capturer interface {
	Camera(ctx context.Context, c Constraints) (CaptureStream, error)
	Microphone(ctx context.Context) (CaptureStream, error)
	Display(ctx context.Context) (CaptureStream, error)
}

// Publication is a locally published track as the transport reports it.
type Publication struct {
	SID    string
	Source domain.TrackSource
	Muted  bool
}

// RemoteTrackInfo describes one publication of a remote participant.
// Track is nil while the publication is not subscribed.
type RemoteTrackInfo struct {
	SID    string
	Source domain.TrackSource
	Muted  bool
	Track  RemoteTrack
}

type RemoteParticipantInfo struct {
	Identity string
	Tracks   []RemoteTrackInfo
}

// Room is a connected transport room. It is an external collaborator;
// its wire protocol lives behind this interface.
type Room interface {
	State() ConnectionState
	LocalIdentity() string
	Publish(ctx context.Context, t LocalTrack) (Publication, error)
	Unpublish(ctx context.Context, sid string) error
	// LocalPublications is the authoritative list of local publications.
	LocalPublications() []Publication
	RemoteParticipants() []RemoteParticipantInfo
	Disconnect()
}

// Transport opens rooms. Events are delivered to sink until Disconnect.
type Transport interface {
	Connect(ctx context.Context, url, token string, sink EventSink) (Room, error)
}
