// Package coretest provides in-memory fakes of the core collaborators.
package coretest

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/dkeye/VoiceRoom/internal/core"
	"github.com/dkeye/VoiceRoom/internal/domain"
	"github.com/pion/webrtc/v4"
)

var streamSeq atomic.Int64

// Stream is a fake capture stream.
type Stream struct {
	id      string
	facing  domain.Facing
	tracks  []core.LocalTrack
	ended   chan struct{}
	endOnce sync.Once
	stopped atomic.Bool
}

func NewStream(facing domain.Facing, sources ...domain.TrackSource) *Stream {
	s := &Stream{
		id:     fmt.Sprintf("stream-%d", streamSeq.Add(1)),
		facing: facing,
		ended:  make(chan struct{}),
	}
	for _, src := range sources {
		codec := webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}
		if !src.IsVideo() {
			codec = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}
		}
		t, err := webrtc.NewTrackLocalStaticSample(codec, string(src), s.id)
		if err != nil {
			panic(err)
		}
		s.tracks = append(s.tracks, core.LocalTrack{Source: src, Track: t})
	}
	return s
}

func (s *Stream) ID() string                { return s.id }
func (s *Stream) Facing() domain.Facing     { return s.facing }
func (s *Stream) Tracks() []core.LocalTrack { return s.tracks }
func (s *Stream) Ended() <-chan struct{}    { return s.ended }
func (s *Stream) Stopped() bool             { return s.stopped.Load() }

// EndOutOfBand simulates the platform ending capture without Stop.
func (s *Stream) EndOutOfBand() { s.end() }

func (s *Stream) Stop() {
	s.stopped.Store(true)
	s.end()
}

func (s *Stream) end() {
	s.endOnce.Do(func() { close(s.ended) })
}

// Capturer is a fake device capturer.
type Capturer struct {
	mu sync.Mutex
	// Deny makes capture of a source fail with core.ErrPermissionDenied.
	Deny map[domain.TrackSource]bool
	// Facings lists the facings cameras report for exact constraints.
	Facings []domain.Facing

	CameraCalls []core.Constraints
	streams     []*Stream
}

func NewCapturer() *Capturer {
	return &Capturer{
		Deny:    make(map[domain.TrackSource]bool),
		Facings: []domain.Facing{domain.FacingUser, domain.FacingEnvironment},
	}
}

func (c *Capturer) SetDeny(src domain.TrackSource, deny bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Deny[src] = deny
}

func (c *Capturer) SetFacings(f ...domain.Facing) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Facings = f
}

func (c *Capturer) Camera(_ context.Context, cons core.Constraints) (core.CaptureStream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CameraCalls = append(c.CameraCalls, cons)
	if c.Deny[domain.SourceCamera] {
		return nil, core.ErrPermissionDenied
	}
	facing := cons.Facing
	if !slices.Contains(c.Facings, facing) {
		if cons.Exact || len(c.Facings) == 0 {
			return nil, core.ErrOverconstrained
		}
		facing = c.Facings[0]
	}
	s := NewStream(facing, domain.SourceCamera)
	c.streams = append(c.streams, s)
	return s, nil
}

func (c *Capturer) Microphone(context.Context) (core.CaptureStream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Deny[domain.SourceMicrophone] {
		return nil, core.ErrPermissionDenied
	}
	s := NewStream("", domain.SourceMicrophone)
	c.streams = append(c.streams, s)
	return s, nil
}

func (c *Capturer) Display(context.Context) (core.CaptureStream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Deny[domain.SourceScreenShare] {
		return nil, core.ErrPermissionDenied
	}
	s := NewStream("", domain.SourceScreenShare, domain.SourceScreenShareAudio)
	c.streams = append(c.streams, s)
	return s, nil
}

// Streams returns every stream captured so far, oldest first.
func (c *Capturer) Streams() []*Stream {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.streams)
}

// Last returns the most recent stream carrying src.
func (c *Capturer) Last(src domain.TrackSource) *Stream {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.streams) - 1; i >= 0; i-- {
		for _, t := range c.streams[i].tracks {
			if t.Source == src {
				return c.streams[i]
			}
		}
	}
	return nil
}
