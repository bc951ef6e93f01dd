package media

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/VoiceRoom/internal/core"
	"github.com/dkeye/VoiceRoom/internal/core/coretest"
	"github.com/dkeye/VoiceRoom/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []core.Event
}

func (r *recorder) sink(ev core.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) kinds(src domain.TrackSource) []core.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []core.EventKind
	for _, ev := range r.events {
		if ev.Source == src {
			out = append(out, ev.Kind)
		}
	}
	return out
}

func setupHandle(t *testing.T, opts Options) (*Handle, *coretest.Room, *coretest.Capturer, *recorder) {
	t.Helper()
	room := coretest.NewRoom("me")
	capt := coretest.NewCapturer()
	rec := &recorder{}
	return NewHandle(room, capt, rec.sink, opts), room, capt, rec
}

func TestMicrophone_EnableDisable(t *testing.T) {
	h, room, capt, rec := setupHandle(t, Options{})
	ctx := context.Background()

	require.NoError(t, h.SetMicrophoneEnabled(ctx, true))
	assert.True(t, h.IsEnabled(domain.SourceMicrophone))
	require.Len(t, room.LocalPublications(), 1)

	// Already on: no second capture.
	require.NoError(t, h.SetMicrophoneEnabled(ctx, true))
	assert.Len(t, capt.Streams(), 1)

	require.NoError(t, h.SetMicrophoneEnabled(ctx, false))
	assert.False(t, h.IsEnabled(domain.SourceMicrophone))
	assert.Empty(t, room.LocalPublications())
	assert.True(t, capt.Last(domain.SourceMicrophone).Stopped())
	assert.Equal(t,
		[]core.EventKind{core.EventLocalTrackPublished, core.EventLocalTrackUnpublished},
		rec.kinds(domain.SourceMicrophone))
}

func TestMicrophone_PermissionDenied(t *testing.T) {
	h, room, capt, _ := setupHandle(t, Options{})
	capt.SetDeny(domain.SourceMicrophone, true)

	err := h.SetMicrophoneEnabled(context.Background(), true)
	require.ErrorIs(t, err, core.ErrPermissionDenied)
	assert.False(t, h.IsEnabled(domain.SourceMicrophone))
	assert.Empty(t, room.LocalPublications())
}

func TestMicrophone_DriftReplacesStaleStream(t *testing.T) {
	h, room, capt, _ := setupHandle(t, Options{})
	ctx := context.Background()
	require.NoError(t, h.SetMicrophoneEnabled(ctx, true))
	first := capt.Last(domain.SourceMicrophone)

	room.DropPublication(domain.SourceMicrophone)
	require.False(t, h.IsEnabled(domain.SourceMicrophone))

	require.NoError(t, h.SetMicrophoneEnabled(ctx, true))
	assert.True(t, first.Stopped())
	assert.True(t, h.IsEnabled(domain.SourceMicrophone))
	assert.Len(t, room.LocalPublications(), 1)
}

func TestMicrophone_DisableWithoutHandleState(t *testing.T) {
	h, room, _, _ := setupHandle(t, Options{})
	ctx := context.Background()
	_, err := room.Publish(ctx, core.LocalTrack{Source: domain.SourceMicrophone})
	require.NoError(t, err)

	require.NoError(t, h.SetMicrophoneEnabled(ctx, false))
	assert.Empty(t, room.LocalPublications())
}

func TestCamera_ReplaceStopsPrevious(t *testing.T) {
	h, room, capt, _ := setupHandle(t, Options{})
	ctx := context.Background()

	require.NoError(t, h.SetCameraEnabled(ctx, true, domain.FacingUser))
	first := capt.Last(domain.SourceCamera)
	facing, ok := h.CameraFacing()
	require.True(t, ok)
	assert.Equal(t, domain.FacingUser, facing)

	next, err := h.CaptureCamera(ctx, core.Constraints{Facing: domain.FacingEnvironment, Exact: true})
	require.NoError(t, err)
	require.NoError(t, h.ReplaceCamera(ctx, next))

	assert.True(t, first.Stopped())
	pubs := room.LocalPublications()
	require.Len(t, pubs, 1)
	assert.Equal(t, domain.SourceCamera, pubs[0].Source)
	facing, _ = h.CameraFacing()
	assert.Equal(t, domain.FacingEnvironment, facing)
}

func TestCamera_ReplacePublishFailureKeepsPrevious(t *testing.T) {
	h, room, capt, _ := setupHandle(t, Options{})
	ctx := context.Background()
	require.NoError(t, h.SetCameraEnabled(ctx, true, domain.FacingUser))
	first := capt.Last(domain.SourceCamera)

	next, err := h.CaptureCamera(ctx, core.Constraints{Facing: domain.FacingEnvironment})
	require.NoError(t, err)
	room.PublishErr = errors.New("publish rejected")

	require.Error(t, h.ReplaceCamera(ctx, next))
	assert.False(t, first.Stopped())
	assert.True(t, next.(*coretest.Stream).Stopped())
	assert.True(t, h.IsEnabled(domain.SourceCamera))
	facing, _ := h.CameraFacing()
	assert.Equal(t, domain.FacingUser, facing)
}

func TestCamera_ExactFacingUnavailable(t *testing.T) {
	h, _, capt, _ := setupHandle(t, Options{})
	capt.SetFacings(domain.FacingUser)

	_, err := h.CaptureCamera(context.Background(), core.Constraints{Facing: domain.FacingEnvironment, Exact: true})
	assert.ErrorIs(t, err, core.ErrOverconstrained)
}

func TestScreenShare_PublishesVideoOnlyByDefault(t *testing.T) {
	h, room, _, _ := setupHandle(t, Options{})
	require.NoError(t, h.StartScreenShare(context.Background()))

	pubs := room.LocalPublications()
	require.Len(t, pubs, 1)
	assert.Equal(t, domain.SourceScreenShare, pubs[0].Source)
	assert.True(t, h.IsSharing())
}

func TestScreenShare_WithAudio(t *testing.T) {
	h, room, _, _ := setupHandle(t, Options{ScreenShareAudio: true})
	require.NoError(t, h.StartScreenShare(context.Background()))

	assert.Len(t, room.LocalPublications(), 2)
	assert.True(t, h.IsEnabled(domain.SourceScreenShareAudio))
}

func TestScreenShare_AlreadySharing(t *testing.T) {
	h, _, _, _ := setupHandle(t, Options{})
	ctx := context.Background()
	require.NoError(t, h.StartScreenShare(ctx))
	assert.ErrorIs(t, h.StartScreenShare(ctx), core.ErrAlreadySharing)
}

func TestScreenShare_StopIsIdempotent(t *testing.T) {
	h, room, capt, rec := setupHandle(t, Options{})
	ctx := context.Background()
	require.NoError(t, h.StartScreenShare(ctx))

	stopped, err := h.StopScreenShare(ctx)
	require.NoError(t, err)
	assert.True(t, stopped)

	stopped, err = h.StopScreenShare(ctx)
	require.NoError(t, err)
	assert.False(t, stopped)

	assert.False(t, h.IsSharing())
	assert.Empty(t, room.LocalPublications())
	assert.True(t, capt.Last(domain.SourceScreenShare).Stopped())
	assert.Equal(t, int32(1), room.Unpublishes.Load())
	assert.Equal(t,
		[]core.EventKind{core.EventLocalTrackPublished, core.EventLocalTrackUnpublished},
		rec.kinds(domain.SourceScreenShare))
}

func TestScreenShare_OutOfBandEndRunsStopPath(t *testing.T) {
	h, room, capt, rec := setupHandle(t, Options{})
	require.NoError(t, h.StartScreenShare(context.Background()))

	capt.Last(domain.SourceScreenShare).EndOutOfBand()

	require.Eventually(t, func() bool { return !h.IsSharing() }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return len(room.LocalPublications()) == 0 }, time.Second, 5*time.Millisecond)
	assert.True(t, capt.Last(domain.SourceScreenShare).Stopped())

	stopped, err := h.StopScreenShare(context.Background())
	require.NoError(t, err)
	assert.False(t, stopped)
	assert.Equal(t,
		[]core.EventKind{core.EventLocalTrackPublished, core.EventLocalTrackUnpublished},
		rec.kinds(domain.SourceScreenShare))
}

func TestUnpublishAll(t *testing.T) {
	h, room, capt, _ := setupHandle(t, Options{ScreenShareAudio: true})
	ctx := context.Background()
	require.NoError(t, h.SetMicrophoneEnabled(ctx, true))
	require.NoError(t, h.SetCameraEnabled(ctx, true, domain.FacingUser))
	require.NoError(t, h.StartScreenShare(ctx))
	require.Len(t, room.LocalPublications(), 4)

	require.NoError(t, h.UnpublishAll(ctx))
	assert.Empty(t, room.LocalPublications())
	for _, s := range capt.Streams() {
		assert.True(t, s.Stopped(), s.ID())
	}

	// Nothing left to do.
	require.NoError(t, h.UnpublishAll(ctx))

	h.Close()
	assert.Equal(t, int32(1), room.Disconnects.Load())
	assert.Equal(t, core.StateDisconnected, h.State())
}
