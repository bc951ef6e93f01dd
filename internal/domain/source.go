// Package domain contains entity without logic, just meta-data
package domain

// TrackSource is the declared origin of a media track. Camera and
// screen-share are both video but render to different surfaces.
type TrackSource string

const (
	SourceUnknown          TrackSource = "unknown"
	SourceCamera           TrackSource = "camera"
	SourceMicrophone       TrackSource = "microphone"
	SourceScreenShare      TrackSource = "screen_share"
	SourceScreenShareAudio TrackSource = "screen_share_audio"
)

// Sources lists every known source, in display order.
var Sources = []TrackSource{SourceCamera, SourceMicrophone, SourceScreenShare, SourceScreenShareAudio}

func (s TrackSource) IsVideo() bool {
	return s == SourceCamera || s == SourceScreenShare
}

func (s TrackSource) IsScreen() bool {
	return s == SourceScreenShare || s == SourceScreenShareAudio
}

// Facing is the camera facing mode.
type Facing string

const (
	FacingUser        Facing = "user"
	FacingEnvironment Facing = "environment"
)

func (f Facing) Opposite() Facing {
	if f == FacingEnvironment {
		return FacingUser
	}
	return FacingEnvironment
}

// DeviceFlags is what the UI shows for the local participant.
type DeviceFlags struct {
	MicEnabled    bool   `json:"mic_enabled"`
	CameraEnabled bool   `json:"camera_enabled"`
	Facing        Facing `json:"camera_facing"`
	ScreenSharing bool   `json:"screen_sharing"`
}
