package orch

import (
	"context"

	"github.com/dkeye/VoiceRoom/internal/app/device"
	"github.com/dkeye/VoiceRoom/internal/core"
	"github.com/dkeye/VoiceRoom/internal/domain"
)

func (s *Session) ToggleMic(ctx context.Context) error {
	return s.deviceOp(ctx, domain.SourceMicrophone, (*device.Machine).ToggleMic)
}

func (s *Session) ToggleCamera(ctx context.Context) error {
	return s.deviceOp(ctx, domain.SourceCamera, (*device.Machine).ToggleCamera)
}

func (s *Session) SwitchCamera(ctx context.Context) error {
	return s.deviceOp(ctx, domain.SourceCamera, (*device.Machine).SwitchCamera)
}

func (s *Session) ToggleScreenShare(ctx context.Context) error {
	return s.deviceOp(ctx, domain.SourceScreenShare, (*device.Machine).ToggleScreenShare)
}

// deviceOp runs op against the live visit. Failures are reported as
// notices and returned; they never tear the session down.
func (s *Session) deviceOp(ctx context.Context, src domain.TrackSource, op func(*device.Machine, context.Context) error) error {
	s.opMu.RLock()
	defer s.opMu.RUnlock()

	v := s.current()
	if v == nil {
		s.report(src, core.ErrNotConnected)
		return core.ErrNotConnected
	}
	err := op(v.devices, ctx)
	if err != nil {
		s.report(src, err)
	}
	s.changed()
	return err
}
