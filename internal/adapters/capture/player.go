package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
)

const (
	defaultFrameDuration = 33 * time.Millisecond
	oggPageDuration      = 20 * time.Millisecond
	opusClockRate        = 48000
)

// playIVF writes every frame of an IVF file to track, paced by the file's
// timebase. It returns nil at EOF.
func playIVF(ctx context.Context, track *webrtc.TrackLocalStaticSample, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	reader, header, err := ivfreader.NewWith(f)
	if err != nil {
		return fmt.Errorf("read ivf header %s: %w", path, err)
	}
	frameDuration := defaultFrameDuration
	if header.TimebaseDenominator > 0 && header.TimebaseNumerator > 0 {
		frameDuration = time.Duration(float64(time.Second) *
			float64(header.TimebaseNumerator) / float64(header.TimebaseDenominator))
	}

	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()
	for {
		frame, _, err := reader.ParseNextFrame()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read ivf frame: %w", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		if err := track.WriteSample(media.Sample{Data: frame, Duration: frameDuration}); err != nil {
			return fmt.Errorf("write sample: %w", err)
		}
	}
}

// playOgg writes every Opus page of an Ogg file to track. Page durations
// come from the granule positions.
func playOgg(ctx context.Context, track *webrtc.TrackLocalStaticSample, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	reader, _, err := oggreader.NewWith(f)
	if err != nil {
		return fmt.Errorf("read ogg header %s: %w", path, err)
	}

	ticker := time.NewTicker(oggPageDuration)
	defer ticker.Stop()
	var lastGranule uint64
	for {
		page, pageHeader, err := reader.ParseNextPage()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read ogg page: %w", err)
		}
		samples := pageHeader.GranulePosition - lastGranule
		lastGranule = pageHeader.GranulePosition
		d := time.Duration(float64(samples) / opusClockRate * float64(time.Second))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		if err := track.WriteSample(media.Sample{Data: page, Duration: d}); err != nil {
			return fmt.Errorf("write sample: %w", err)
		}
	}
}
