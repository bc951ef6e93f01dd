package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dkeye/VoiceRoom/internal/core"
	"github.com/dkeye/VoiceRoom/internal/domain"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
)

type player func(ctx context.Context) error

// feed plays one file into one track.
type feed struct {
	src  domain.TrackSource
	path string
	play player
}

// stream is one capture: a set of sample tracks each fed by a file player.
type stream struct {
	id     string
	facing domain.Facing
	loop   bool
	tracks []core.LocalTrack
	feeds  []feed

	ended   chan struct{}
	endOnce sync.Once
	cancel  context.CancelFunc
}

func newStream(facing domain.Facing, loop bool) *stream {
	return &stream{
		id:     uuid.NewString(),
		facing: facing,
		loop:   loop,
		ended:  make(chan struct{}),
	}
}

func (s *stream) ID() string                { return s.id }
func (s *stream) Facing() domain.Facing     { return s.facing }
func (s *stream) Tracks() []core.LocalTrack { return s.tracks }
func (s *stream) Ended() <-chan struct{}    { return s.ended }

func (s *stream) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.end()
}

func (s *stream) end() {
	s.endOnce.Do(func() { close(s.ended) })
}

func (s *stream) addVideo(src domain.TrackSource, path string) error {
	t, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, string(src), s.id)
	if err != nil {
		return fmt.Errorf("create %s track: %w", src, err)
	}
	s.tracks = append(s.tracks, core.LocalTrack{Source: src, Track: t})
	s.feeds = append(s.feeds, feed{src: src, path: path, play: func(ctx context.Context) error { return playIVF(ctx, t, path) }})
	return nil
}

func (s *stream) addAudio(src domain.TrackSource, path string) error {
	t, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}, string(src), s.id)
	if err != nil {
		return fmt.Errorf("create %s track: %w", src, err)
	}
	s.tracks = append(s.tracks, core.LocalTrack{Source: src, Track: t})
	s.feeds = append(s.feeds, feed{src: src, path: path, play: func(ctx context.Context) error { return playOgg(ctx, t, path) }})
	return nil
}

// run plays f once, or until ctx is done when looping.
func (s *stream) run(ctx context.Context, f feed) error {
	for {
		if err := f.play(ctx); err != nil {
			return err
		}
		if !s.loop {
			return nil
		}
	}
}

// start runs the file feeds. Tracks without a file stay silent. When
// every file feed finishes on its own the stream ends as if the platform
// stopped it; a stream without files ends only on Stop.
func (s *stream) start(ctx context.Context, logger zerolog.Logger) *stream {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	logger = logger.With().Str("stream", s.id).Logger()

	files := make([]feed, 0, len(s.feeds))
	for _, f := range s.feeds {
		if f.path != "" {
			files = append(files, f)
		}
	}
	if len(files) == 0 {
		return s
	}

	go func() {
		var wg conc.WaitGroup
		for _, f := range files {
			wg.Go(func() {
				err := s.run(runCtx, f)
				if err != nil && !errors.Is(err, context.Canceled) {
					logger.Warn().Err(err).Str("source", string(f.src)).Msg("capture feed failed")
				}
			})
		}
		wg.Wait()
		if runCtx.Err() == nil {
			logger.Info().Msg("capture ended")
		}
		s.end()
	}()
	return s
}
