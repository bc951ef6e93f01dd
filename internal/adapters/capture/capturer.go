// Package capture provides file-backed capture devices: IVF files stand in
// for cameras and displays, Ogg/Opus files for microphones.
package capture

import (
	"context"
	"fmt"
	"slices"

	"github.com/dkeye/VoiceRoom/internal/core"
	"github.com/dkeye/VoiceRoom/internal/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Device is a camera backed by an IVF file.
type Device struct {
	Label  string
	Path   string
	Facing domain.Facing
}

type Config struct {
	Cameras      []Device
	Microphone   string
	Display      string
	DisplayAudio string
	// Loop replays files forever. When off a stream ends at EOF the way a
	// platform capture ends out-of-band.
	Loop bool
	Deny []domain.TrackSource
}

type Capturer struct {
	cfg    Config
	logger zerolog.Logger
}

func NewCapturer(cfg Config) *Capturer {
	return &Capturer{cfg: cfg, logger: log.With().Str("module", "capture").Logger()}
}

func (c *Capturer) Camera(ctx context.Context, cons core.Constraints) (core.CaptureStream, error) {
	if err := c.allowed(domain.SourceCamera); err != nil {
		return nil, err
	}
	dev, err := c.pick(cons)
	if err != nil {
		return nil, err
	}
	facing := dev.Facing
	if facing == "" {
		facing = cons.Facing
	}
	s := newStream(facing, c.cfg.Loop)
	if err := s.addVideo(domain.SourceCamera, dev.Path); err != nil {
		return nil, err
	}
	c.logger.Info().Str("device", dev.Label).Str("facing", string(facing)).Bool("exact", cons.Exact).Msg("camera opened")
	return s.start(ctx, c.logger), nil
}

func (c *Capturer) Microphone(ctx context.Context) (core.CaptureStream, error) {
	if err := c.allowed(domain.SourceMicrophone); err != nil {
		return nil, err
	}
	s := newStream("", c.cfg.Loop)
	if err := s.addAudio(domain.SourceMicrophone, c.cfg.Microphone); err != nil {
		return nil, err
	}
	return s.start(ctx, c.logger), nil
}

func (c *Capturer) Display(ctx context.Context) (core.CaptureStream, error) {
	if err := c.allowed(domain.SourceScreenShare); err != nil {
		return nil, err
	}
	s := newStream("", c.cfg.Loop)
	if err := s.addVideo(domain.SourceScreenShare, c.cfg.Display); err != nil {
		return nil, err
	}
	if err := s.addAudio(domain.SourceScreenShareAudio, c.cfg.DisplayAudio); err != nil {
		return nil, err
	}
	return s.start(ctx, c.logger), nil
}

func (c *Capturer) allowed(src domain.TrackSource) error {
	if slices.Contains(c.cfg.Deny, src) {
		return fmt.Errorf("%s: %w", src, core.ErrPermissionDenied)
	}
	return nil
}

// pick prefers a camera with the requested facing. Without Exact any
// camera will do.
func (c *Capturer) pick(cons core.Constraints) (Device, error) {
	for _, d := range c.cfg.Cameras {
		if d.Facing == cons.Facing {
			return d, nil
		}
	}
	if cons.Exact || len(c.cfg.Cameras) == 0 {
		return Device{}, fmt.Errorf("camera facing %q: %w", cons.Facing, core.ErrOverconstrained)
	}
	return c.cfg.Cameras[0], nil
}
