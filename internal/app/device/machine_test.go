package device

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/VoiceRoom/internal/app/media"
	"github.com/dkeye/VoiceRoom/internal/core"
	"github.com/dkeye/VoiceRoom/internal/core/coretest"
	"github.com/dkeye/VoiceRoom/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMachine(t *testing.T) (*Machine, *coretest.Room, *coretest.Capturer) {
	t.Helper()
	room := coretest.NewRoom("me")
	capt := coretest.NewCapturer()
	h := media.NewHandle(room, capt, nil, media.Options{})
	return New(h, domain.FacingUser, nil), room, capt
}

// gatedMedia blocks every mutating call until release is closed.
type gatedMedia struct {
	Media
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGated(inner Media) *gatedMedia {
	return &gatedMedia{Media: inner, entered: make(chan struct{}), release: make(chan struct{})}
}

func (g *gatedMedia) wait() {
	g.once.Do(func() { close(g.entered) })
	<-g.release
}

func (g *gatedMedia) SetMicrophoneEnabled(ctx context.Context, on bool) error {
	g.wait()
	return g.Media.SetMicrophoneEnabled(ctx, on)
}

func (g *gatedMedia) CaptureCamera(ctx context.Context, c core.Constraints) (core.CaptureStream, error) {
	g.wait()
	return g.Media.CaptureCamera(ctx, c)
}

func TestToggleMic_FollowsTransport(t *testing.T) {
	m, room, _ := setupMachine(t)
	ctx := context.Background()

	require.NoError(t, m.ToggleMic(ctx))
	assert.True(t, m.Flags().MicEnabled)
	assert.Len(t, room.LocalPublications(), 1)

	require.NoError(t, m.ToggleMic(ctx))
	assert.False(t, m.Flags().MicEnabled)
	assert.Empty(t, room.LocalPublications())
}

func TestToggleMic_PermissionDeniedStaysOff(t *testing.T) {
	m, _, capt := setupMachine(t)
	capt.SetDeny(domain.SourceMicrophone, true)

	err := m.ToggleMic(context.Background())
	require.ErrorIs(t, err, core.ErrPermissionDenied)
	assert.False(t, m.Flags().MicEnabled)
}

func TestToggleMic_SecondCallWhileInFlightIsRejected(t *testing.T) {
	room := coretest.NewRoom("me")
	capt := coretest.NewCapturer()
	gated := newGated(media.NewHandle(room, capt, nil, media.Options{}))
	m := New(gated, domain.FacingUser, nil)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- m.ToggleMic(ctx) }()
	<-gated.entered

	assert.ErrorIs(t, m.ToggleMic(ctx), core.ErrDeviceBusy)
	// Other devices are independent.
	require.NoError(t, m.ToggleCamera(ctx))
	assert.True(t, m.Flags().CameraEnabled)

	close(gated.release)
	require.NoError(t, <-done)
	assert.True(t, m.Flags().MicEnabled)
	assert.Len(t, capt.Streams(), 2)
}

func TestSetMic_NoOpWhenAlreadyInState(t *testing.T) {
	m, _, capt := setupMachine(t)
	ctx := context.Background()
	require.NoError(t, m.SetMic(ctx, true))
	require.NoError(t, m.SetMic(ctx, true))
	assert.Len(t, capt.Streams(), 1)
	assert.True(t, m.Flags().MicEnabled)
}

func TestSwitchCamera_RequiresCameraOn(t *testing.T) {
	m, _, _ := setupMachine(t)
	assert.ErrorIs(t, m.SwitchCamera(context.Background()), core.ErrCameraOff)
}

func TestSwitchCamera_OverconstrainedRetriesRelaxed(t *testing.T) {
	m, room, capt := setupMachine(t)
	ctx := context.Background()
	capt.SetFacings(domain.FacingUser)
	require.NoError(t, m.ToggleCamera(ctx))

	require.NoError(t, m.SwitchCamera(ctx))

	flags := m.Flags()
	assert.True(t, flags.CameraEnabled)
	assert.Equal(t, domain.FacingEnvironment, flags.Facing)
	require.Len(t, capt.CameraCalls, 3)
	assert.Equal(t, core.Constraints{Facing: domain.FacingEnvironment, Exact: true}, capt.CameraCalls[1])
	assert.Equal(t, core.Constraints{Facing: domain.FacingEnvironment}, capt.CameraCalls[2])
	assert.Len(t, room.LocalPublications(), 1)
}

func TestSwitchCamera_FailureKeepsPreviousCamera(t *testing.T) {
	m, room, capt := setupMachine(t)
	ctx := context.Background()
	require.NoError(t, m.ToggleCamera(ctx))
	prev := capt.Last(domain.SourceCamera)

	capt.SetDeny(domain.SourceCamera, true)
	require.ErrorIs(t, m.SwitchCamera(ctx), core.ErrPermissionDenied)

	flags := m.Flags()
	assert.True(t, flags.CameraEnabled)
	assert.Equal(t, domain.FacingUser, flags.Facing)
	assert.False(t, prev.Stopped())
	assert.Len(t, room.LocalPublications(), 1)
}

func TestSwitchCamera_SharesGuardWithToggle(t *testing.T) {
	room := coretest.NewRoom("me")
	capt := coretest.NewCapturer()
	h := media.NewHandle(room, capt, nil, media.Options{})
	require.NoError(t, h.SetCameraEnabled(context.Background(), true, domain.FacingUser))
	gated := newGated(h)
	m := New(gated, domain.FacingUser, nil)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- m.SwitchCamera(ctx) }()
	<-gated.entered

	assert.ErrorIs(t, m.SwitchCamera(ctx), core.ErrDeviceBusy)
	assert.ErrorIs(t, m.ToggleCamera(ctx), core.ErrDeviceBusy)

	close(gated.release)
	require.NoError(t, <-done)
	assert.Equal(t, domain.FacingEnvironment, m.Flags().Facing)
}

func TestToggleScreenShare_StartStop(t *testing.T) {
	m, room, _ := setupMachine(t)
	ctx := context.Background()

	require.NoError(t, m.ToggleScreenShare(ctx))
	assert.True(t, m.Flags().ScreenSharing)

	require.NoError(t, m.ToggleScreenShare(ctx))
	assert.False(t, m.Flags().ScreenSharing)
	assert.Empty(t, room.LocalPublications())
}

func TestReconcile_OutOfBandShareEnd(t *testing.T) {
	m, _, capt := setupMachine(t)
	require.NoError(t, m.ToggleScreenShare(context.Background()))
	stream := capt.Last(domain.SourceScreenShare)

	stream.EndOutOfBand()

	require.Eventually(t, func() bool {
		m.Reconcile()
		return !m.Flags().ScreenSharing
	}, time.Second, 10*time.Millisecond)
	assert.True(t, stream.Stopped())
}

func TestReconcile_CorrectsDriftAfterInterleavedDenials(t *testing.T) {
	m, room, capt := setupMachine(t)
	ctx := context.Background()

	_ = m.ToggleMic(ctx)
	capt.SetDeny(domain.SourceCamera, true)
	_ = m.ToggleCamera(ctx)
	capt.SetDeny(domain.SourceCamera, false)
	_ = m.ToggleCamera(ctx)
	capt.SetDeny(domain.SourceMicrophone, true)
	_ = m.ToggleMic(ctx)
	_ = m.ToggleMic(ctx)

	// The transport drops the camera without telling anyone.
	room.DropPublication(domain.SourceCamera)
	m.Reconcile()

	h := m.media
	flags := m.Flags()
	assert.Equal(t, h.IsEnabled(domain.SourceMicrophone), flags.MicEnabled)
	assert.Equal(t, h.IsEnabled(domain.SourceCamera), flags.CameraEnabled)
	assert.False(t, flags.CameraEnabled)
	assert.False(t, m.Reconcile())
}
