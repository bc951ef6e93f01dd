package rtc

import (
	"github.com/dkeye/VoiceRoom/internal/domain"
	"github.com/livekit/protocol/livekit"
)

func fromProto(s livekit.TrackSource) domain.TrackSource {
	switch s {
	case livekit.TrackSource_CAMERA:
		return domain.SourceCamera
	case livekit.TrackSource_MICROPHONE:
		return domain.SourceMicrophone
	case livekit.TrackSource_SCREEN_SHARE:
		return domain.SourceScreenShare
	case livekit.TrackSource_SCREEN_SHARE_AUDIO:
		return domain.SourceScreenShareAudio
	default:
		return domain.SourceUnknown
	}
}

func toProto(s domain.TrackSource) livekit.TrackSource {
	switch s {
	case domain.SourceCamera:
		return livekit.TrackSource_CAMERA
	case domain.SourceMicrophone:
		return livekit.TrackSource_MICROPHONE
	case domain.SourceScreenShare:
		return livekit.TrackSource_SCREEN_SHARE
	case domain.SourceScreenShareAudio:
		return livekit.TrackSource_SCREEN_SHARE_AUDIO
	default:
		return livekit.TrackSource_UNKNOWN
	}
}
