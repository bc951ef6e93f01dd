package orch

import (
	"github.com/dkeye/VoiceRoom/internal/app/tracks"
	"github.com/dkeye/VoiceRoom/internal/core"
	"github.com/dkeye/VoiceRoom/internal/domain"
)

// ParticipantView is one row of the UI participant list.
type ParticipantView struct {
	Identity string `json:"identity"`
	MicMuted bool   `json:"mic_muted"`
	VideoOff bool   `json:"video_off"`
	Sharing  bool   `json:"sharing"`
}

// View is what the UI renders for a session.
type View struct {
	Room             domain.RoomID        `json:"room"`
	State            core.ConnectionState `json:"state"`
	Join             string               `json:"join"`
	Error            string               `json:"error,omitempty"`
	Identity         string               `json:"identity,omitempty"`
	Devices          domain.DeviceFlags   `json:"devices"`
	Participants     []ParticipantView    `json:"participants"`
	Attachments      []tracks.View        `json:"attachments"`
	ParticipantCount int                  `json:"participant_count"`
}

func (s *Session) Snapshot() View {
	s.mu.Lock()
	view := View{
		Room:    s.roomID,
		State:   s.state,
		Join:    s.join.String(),
		Error:   s.lastErr,
		Devices: domain.DeviceFlags{Facing: s.opts.Facing},
	}
	v := s.live
	s.mu.Unlock()

	if v != nil {
		view.Identity = v.room.LocalIdentity()
		view.Devices = v.devices.Flags()
	}
	ps := s.Registry.Snapshot()
	view.Participants = make([]ParticipantView, 0, len(ps))
	for _, p := range ps {
		view.Participants = append(view.Participants, ParticipantView{
			Identity: p.Identity,
			MicMuted: p.MicMuted(),
			VideoOff: p.VideoOff(),
			Sharing:  p.Sharing(),
		})
	}
	view.Attachments = s.Tracks.Snapshot()
	if v != nil {
		view.ParticipantCount = len(ps) + 1
	}
	return view
}
