// Package render provides rendering surfaces for a headless agent: remote
// tracks are drained into recordings or a counting sink, local streams get
// a preview handle.
package render

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dkeye/VoiceRoom/internal/app/tracks"
	"github.com/dkeye/VoiceRoom/internal/core"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/ivfwriter"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
	"github.com/rs/zerolog/log"
)

const (
	opusSampleRate = 48000
	opusChannels   = 2
)

// Factory implements tracks.SurfaceFactory. With an empty RecordDir remote
// media is counted and dropped.
type Factory struct {
	RecordDir string
}

func NewFactory(recordDir string) *Factory {
	return &Factory{RecordDir: recordDir}
}

func (f *Factory) Remote(key tracks.Key, t core.RemoteTrack) (tracks.Surface, error) {
	w, path, err := f.writer(key, t)
	if err != nil {
		return nil, err
	}
	logger := log.With().
		Str("module", "render").
		Str("key", key.String()).
		Str("track", t.ID()).
		Logger()
	if path != "" {
		logger.Info().Str("file", path).Msg("recording track")
	}
	return startRemote(key, t, w, logger), nil
}

func (f *Factory) Local(key tracks.Key, s core.CaptureStream) (tracks.Surface, error) {
	return newPreview(key, s), nil
}

// writer picks a media writer for the track codec.
func (f *Factory) writer(key tracks.Key, t core.RemoteTrack) (media.Writer, string, error) {
	if f.RecordDir == "" {
		return &discard{}, "", nil
	}
	if err := os.MkdirAll(f.RecordDir, 0o755); err != nil {
		return nil, "", fmt.Errorf("create record dir: %w", err)
	}

	mime := t.Codec().MimeType
	base := filepath.Join(f.RecordDir, fileName(key, t.ID()))
	switch {
	case strings.EqualFold(mime, webrtc.MimeTypeVP8),
		strings.EqualFold(mime, webrtc.MimeTypeVP9),
		strings.EqualFold(mime, webrtc.MimeTypeAV1):
		path := base + ".ivf"
		w, err := ivfwriter.New(path, ivfwriter.WithCodec(mime))
		if err != nil {
			return nil, "", fmt.Errorf("open ivf writer: %w", err)
		}
		return w, path, nil
	case strings.EqualFold(mime, webrtc.MimeTypeOpus):
		path := base + ".ogg"
		w, err := oggwriter.New(path, opusSampleRate, opusChannels)
		if err != nil {
			return nil, "", fmt.Errorf("open ogg writer: %w", err)
		}
		return w, path, nil
	default:
		log.Warn().Str("module", "render").Str("mime", mime).Msg("codec not recordable, discarding")
		return &discard{}, "", nil
	}
}

func fileName(key tracks.Key, trackID string) string {
	clean := strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace
	return clean(key.Identity) + "_" + string(key.Source) + "_" + clean(trackID)
}
