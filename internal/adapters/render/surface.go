package render

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/dkeye/VoiceRoom/internal/app/tracks"
	"github.com/dkeye/VoiceRoom/internal/core"
	"github.com/dkeye/VoiceRoom/internal/metrics"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/rs/zerolog"
)

// Remote drains one subscribed track into a media writer. Muted surfaces
// keep reading so the transport does not back up, but write nothing.
type Remote struct {
	key    tracks.Key
	src    core.RemoteTrack
	writer media.Writer

	muted    atomic.Bool
	received atomic.Uint64
	written  atomic.Uint64

	cancel context.CancelFunc
	done   chan struct{}
}

func startRemote(key tracks.Key, src core.RemoteTrack, w media.Writer, logger zerolog.Logger) *Remote {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Remote{
		key:    key,
		src:    src,
		writer: w,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go r.loop(ctx, &logger)
	return r
}

// loop reads RTP packets from the track until the track ends or the
// surface is closed. It owns the writer and closes it on exit.
func (r *Remote) loop(ctx context.Context, logger *zerolog.Logger) {
	defer close(r.done)
	defer func() {
		if err := r.writer.Close(); err != nil {
			logger.Warn().Err(err).Msg("writer close failed")
		}
	}()
	for {
		select {
		case <-ctx.Done():
			logger.Debug().Msg("surface closed, stopping drain")
			return
		default:
		}
		pkt, _, err := r.src.ReadRTP()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logger.Warn().Err(err).Msg("read RTP error, stopping")
			}
			return
		}
		if err := r.forward(pkt); err != nil {
			logger.Error().Err(err).Msg("write RTP error, stopping")
			return
		}
	}
}

func (r *Remote) forward(pkt *rtp.Packet) error {
	r.received.Add(1)
	if r.muted.Load() {
		return nil
	}
	if err := r.writer.WriteRTP(pkt); err != nil {
		return err
	}
	r.written.Add(1)
	metrics.SurfacePackets.WithLabelValues(string(r.key.Source)).Inc()
	return nil
}

func (r *Remote) SetMuted(muted bool) { r.muted.Store(muted) }

// Close stops the drain. The loop exits on its next packet or when the
// transport ends the track; Done reports when it has.
func (r *Remote) Close() error {
	r.cancel()
	return nil
}

func (r *Remote) Done() <-chan struct{} { return r.done }

// Received counts packets read from the track, Written those rendered.
func (r *Remote) Received() uint64 { return r.received.Load() }
func (r *Remote) Written() uint64  { return r.written.Load() }

// Preview is the local rendering of a capture stream. The stream itself
// belongs to the media handle; the preview only reflects it.
type Preview struct {
	key      tracks.Key
	streamID string
	muted    atomic.Bool

	closeOnce sync.Once
	closed    chan struct{}
}

func newPreview(key tracks.Key, s core.CaptureStream) *Preview {
	return &Preview{key: key, streamID: s.ID(), closed: make(chan struct{})}
}

func (p *Preview) SetMuted(muted bool) { p.muted.Store(muted) }
func (p *Preview) Muted() bool         { return p.muted.Load() }
func (p *Preview) StreamID() string    { return p.streamID }

func (p *Preview) Close() error {
	p.closeOnce.Do(func() { close(p.closed) })
	return nil
}

func (p *Preview) Closed() bool {
	select {
	case <-p.closed:
		return true
	default:
		return false
	}
}

// discard counts what would have been rendered.
type discard struct {
	bytes atomic.Uint64
}

func (d *discard) WriteRTP(pkt *rtp.Packet) error {
	d.bytes.Add(uint64(len(pkt.Payload)))
	return nil
}

func (d *discard) Close() error { return nil }
