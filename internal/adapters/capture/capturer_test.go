package capture

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dkeye/VoiceRoom/internal/core"
	"github.com/dkeye/VoiceRoom/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeIVF writes a tiny VP8 IVF file with the given number of frames at
// one frame per millisecond.
func writeIVF(t *testing.T, frames int) string {
	t.Helper()
	header := make([]byte, 32)
	copy(header[0:], "DKIF")
	binary.LittleEndian.PutUint16(header[4:], 0)
	binary.LittleEndian.PutUint16(header[6:], 32)
	copy(header[8:], "VP80")
	binary.LittleEndian.PutUint16(header[12:], 64)
	binary.LittleEndian.PutUint16(header[14:], 48)
	binary.LittleEndian.PutUint32(header[16:], 1000)
	binary.LittleEndian.PutUint32(header[20:], 1)
	binary.LittleEndian.PutUint32(header[24:], uint32(frames))

	data := header
	for i := 0; i < frames; i++ {
		frame := make([]byte, 12+3)
		binary.LittleEndian.PutUint32(frame[0:], 3)
		binary.LittleEndian.PutUint64(frame[4:], uint64(i))
		copy(frame[12:], []byte{0x10, 0x02, 0x00})
		data = append(data, frame...)
	}

	path := filepath.Join(t.TempDir(), "clip.ivf")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func isEnded(s core.CaptureStream) bool {
	select {
	case <-s.Ended():
		return true
	default:
		return false
	}
}

func TestCapturer_DenyReturnsPermissionDenied(t *testing.T) {
	c := NewCapturer(Config{Deny: []domain.TrackSource{domain.SourceMicrophone, domain.SourceScreenShare}})

	_, err := c.Microphone(context.Background())
	assert.ErrorIs(t, err, core.ErrPermissionDenied)

	_, err = c.Display(context.Background())
	assert.ErrorIs(t, err, core.ErrPermissionDenied)
}

func TestCapturer_CameraFacing(t *testing.T) {
	c := NewCapturer(Config{Cameras: []Device{{Label: "front", Facing: domain.FacingUser}}})

	_, err := c.Camera(context.Background(), core.Constraints{Facing: domain.FacingEnvironment, Exact: true})
	require.ErrorIs(t, err, core.ErrOverconstrained)

	s, err := c.Camera(context.Background(), core.Constraints{Facing: domain.FacingEnvironment})
	require.NoError(t, err)
	defer s.Stop()
	assert.Equal(t, domain.FacingUser, s.Facing())
	require.Len(t, s.Tracks(), 1)
	assert.Equal(t, domain.SourceCamera, s.Tracks()[0].Source)
}

func TestCapturer_NoCameras(t *testing.T) {
	c := NewCapturer(Config{})

	_, err := c.Camera(context.Background(), core.Constraints{Facing: domain.FacingUser})
	assert.ErrorIs(t, err, core.ErrOverconstrained)
}

func TestCapturer_DisplayTracks(t *testing.T) {
	c := NewCapturer(Config{})

	s, err := c.Display(context.Background())
	require.NoError(t, err)
	defer s.Stop()

	require.Len(t, s.Tracks(), 2)
	assert.Equal(t, domain.SourceScreenShare, s.Tracks()[0].Source)
	assert.Equal(t, domain.SourceScreenShareAudio, s.Tracks()[1].Source)
	assert.NotEmpty(t, s.ID())
	// Silent tracks never end on their own.
	assert.Never(t, func() bool { return isEnded(s) }, 50*time.Millisecond, 10*time.Millisecond)
}

func TestCapturer_DisplayEndsAtEOF(t *testing.T) {
	c := NewCapturer(Config{Display: writeIVF(t, 3)})

	s, err := c.Display(context.Background())
	require.NoError(t, err)

	require.Eventually(t, func() bool { return isEnded(s) }, 2*time.Second, 5*time.Millisecond)
	s.Stop()
	s.Stop()
}

func TestCapturer_LoopRunsUntilStop(t *testing.T) {
	c := NewCapturer(Config{Display: writeIVF(t, 2), Loop: true})

	s, err := c.Display(context.Background())
	require.NoError(t, err)
	assert.Never(t, func() bool { return isEnded(s) }, 50*time.Millisecond, 10*time.Millisecond)

	s.Stop()
	assert.True(t, isEnded(s))
}

func TestCapturer_StreamOutlivesRequestContext(t *testing.T) {
	c := NewCapturer(Config{Display: writeIVF(t, 2), Loop: true})

	ctx, cancel := context.WithCancel(context.Background())
	s, err := c.Display(ctx)
	require.NoError(t, err)
	cancel()

	assert.Never(t, func() bool { return isEnded(s) }, 50*time.Millisecond, 10*time.Millisecond)
	s.Stop()
}

func TestCapturer_MissingFileEndsStream(t *testing.T) {
	c := NewCapturer(Config{Display: filepath.Join(t.TempDir(), "missing.ivf")})

	s, err := c.Display(context.Background())
	require.NoError(t, err)
	require.Eventually(t, func() bool { return isEnded(s) }, time.Second, 5*time.Millisecond)
}
