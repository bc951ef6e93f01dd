package app

import (
	"context"
	"errors"

	"github.com/dkeye/VoiceRoom/internal/core"
	"github.com/dkeye/VoiceRoom/internal/domain"
)

// Policy turns an operation failure into a user notice. An empty source
// means a session-level operation (join, connect).
type Policy interface {
	OnError(src domain.TrackSource, err error) (domain.Notice, bool)
}

type SimplePolicy struct{}

func (SimplePolicy) OnError(src domain.TrackSource, err error) (domain.Notice, bool) {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, core.ErrLeftDuringJoin) {
		return domain.Notice{}, false
	}
	n := domain.Notice{Source: src, Message: err.Error()}
	switch {
	case errors.Is(err, core.ErrPermissionDenied):
		n.Severity = domain.SeverityInfo
		n.Message = "permission to use the " + deviceName(src) + " was denied"
	case errors.Is(err, core.ErrOverconstrained):
		n.Severity = domain.SeverityWarning
		n.Message = "no camera matches the requested facing"
	case errors.Is(err, core.ErrDeviceBusy),
		errors.Is(err, core.ErrCameraOff),
		errors.Is(err, core.ErrAlreadySharing),
		errors.Is(err, core.ErrJoinInProgress),
		errors.Is(err, core.ErrAlreadyJoined),
		errors.Is(err, core.ErrNotConnected):
		n.Severity = domain.SeverityInfo
	case src == "":
		n.Severity = domain.SeverityError
	default:
		n.Severity = domain.SeverityWarning
	}
	return n, true
}

func deviceName(src domain.TrackSource) string {
	switch src {
	case domain.SourceCamera:
		return "camera"
	case domain.SourceMicrophone:
		return "microphone"
	case domain.SourceScreenShare, domain.SourceScreenShareAudio:
		return "screen"
	default:
		return "device"
	}
}
