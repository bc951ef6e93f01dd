package tracks

import (
	"errors"
	"sync"
	"testing"

	"github.com/dkeye/VoiceRoom/internal/core"
	"github.com/dkeye/VoiceRoom/internal/core/coretest"
	"github.com/dkeye/VoiceRoom/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSurface struct {
	key    Key
	mu     sync.Mutex
	muted  bool
	closes int
}

func (s *fakeSurface) SetMuted(m bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.muted = m
}

func (s *fakeSurface) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return nil
}

func (s *fakeSurface) closed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

type fakeFactory struct {
	mu      sync.Mutex
	created []*fakeSurface
	err     error
}

func (f *fakeFactory) Remote(key Key, _ core.RemoteTrack) (Surface, error) {
	return f.make(key)
}

func (f *fakeFactory) Local(key Key, _ core.CaptureStream) (Surface, error) {
	return f.make(key)
}

func (f *fakeFactory) make(key Key) (Surface, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	s := &fakeSurface{key: key}
	f.created = append(f.created, s)
	return s, nil
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name     string
		declared domain.TrackSource
		kind     webrtc.RTPCodecType
		want     domain.TrackSource
	}{
		{"declared camera", domain.SourceCamera, webrtc.RTPCodecTypeVideo, domain.SourceCamera},
		{"declared screen wins over video kind", domain.SourceScreenShare, webrtc.RTPCodecTypeVideo, domain.SourceScreenShare},
		{"declared screen audio", domain.SourceScreenShareAudio, webrtc.RTPCodecTypeAudio, domain.SourceScreenShareAudio},
		{"unknown video falls back to camera", domain.SourceUnknown, webrtc.RTPCodecTypeVideo, domain.SourceCamera},
		{"empty audio falls back to microphone", "", webrtc.RTPCodecTypeAudio, domain.SourceMicrophone},
		{"nothing known", domain.SourceUnknown, 0, domain.SourceUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.declared, tc.kind))
		})
	}
}

func TestAttach_CreatesOnceAndIsIdempotent(t *testing.T) {
	f := &fakeFactory{}
	r := NewReconciler(f)
	tr := coretest.NewRemoteTrack("TR_1", webrtc.RTPCodecTypeVideo)

	a1, err := r.Attach("alice", domain.SourceCamera, tr)
	require.NoError(t, err)
	a2, err := r.Attach("alice", domain.SourceCamera, tr)
	require.NoError(t, err)

	assert.Same(t, a1, a2)
	assert.Equal(t, 1, f.count())
	assert.Equal(t, 1, r.Count())
	assert.Equal(t, AttachOk, a1.GetState())
}

func TestAttach_ResubscribeDisposesPrevious(t *testing.T) {
	f := &fakeFactory{}
	r := NewReconciler(f)

	old, err := r.Attach("alice", domain.SourceCamera, coretest.NewRemoteTrack("TR_1", webrtc.RTPCodecTypeVideo))
	require.NoError(t, err)
	fresh, err := r.Attach("alice", domain.SourceCamera, coretest.NewRemoteTrack("TR_2", webrtc.RTPCodecTypeVideo))
	require.NoError(t, err)

	assert.Equal(t, AttachDetached, old.GetState())
	assert.Equal(t, 1, old.Surface.(*fakeSurface).closed())
	assert.Equal(t, 0, fresh.Surface.(*fakeSurface).closed())
	assert.Equal(t, 1, r.Count())

	got, ok := r.Get("alice", domain.SourceCamera)
	require.True(t, ok)
	assert.Equal(t, "TR_2", got.TrackID)
}

func TestAttach_CameraAndScreenShareAreSeparate(t *testing.T) {
	r := NewReconciler(&fakeFactory{})

	_, err := r.Attach("bob", domain.SourceCamera, coretest.NewRemoteTrack("cam", webrtc.RTPCodecTypeVideo))
	require.NoError(t, err)
	_, err = r.Attach("bob", domain.SourceScreenShare, coretest.NewRemoteTrack("scr", webrtc.RTPCodecTypeVideo))
	require.NoError(t, err)
	_, err = r.Attach("bob", domain.SourceMicrophone, coretest.NewRemoteTrack("mic", webrtc.RTPCodecTypeAudio))
	require.NoError(t, err)

	assert.Equal(t, 3, r.Count())
	views := r.Snapshot()
	require.Len(t, views, 3)
	assert.Equal(t, domain.SourceCamera, views[0].Source)
	assert.Equal(t, domain.SourceMicrophone, views[1].Source)
	assert.Equal(t, domain.SourceScreenShare, views[2].Source)
}

func TestAttach_FactoryErrorLeavesNoAttachment(t *testing.T) {
	f := &fakeFactory{err: errors.New("no decoder")}
	r := NewReconciler(f)

	_, err := r.Attach("alice", domain.SourceCamera, coretest.NewRemoteTrack("TR_1", webrtc.RTPCodecTypeVideo))
	require.Error(t, err)
	assert.Equal(t, 0, r.Count())
}

func TestAttach_UnknownSource(t *testing.T) {
	r := NewReconciler(&fakeFactory{})
	_, err := r.Attach("alice", domain.SourceUnknown, coretest.NewRemoteTrack("TR_1", 0))
	assert.ErrorIs(t, err, ErrUnknownSource)
}

func TestDetachParticipant_DisposesAllSources(t *testing.T) {
	r := NewReconciler(&fakeFactory{})
	cam, _ := r.Attach("bob", domain.SourceCamera, coretest.NewRemoteTrack("cam", webrtc.RTPCodecTypeVideo))
	scr, _ := r.Attach("bob", domain.SourceScreenShare, coretest.NewRemoteTrack("scr", webrtc.RTPCodecTypeVideo))
	_, _ = r.Attach("carol", domain.SourceCamera, coretest.NewRemoteTrack("cam2", webrtc.RTPCodecTypeVideo))

	assert.Equal(t, 2, r.DetachParticipant("bob"))
	assert.Equal(t, 1, cam.Surface.(*fakeSurface).closed())
	assert.Equal(t, 1, scr.Surface.(*fakeSurface).closed())
	assert.Equal(t, 1, r.Count())

	assert.Equal(t, 0, r.DetachParticipant("bob"))
}

func TestDetachTrack_IgnoresStaleTrackID(t *testing.T) {
	r := NewReconciler(&fakeFactory{})
	_, _ = r.Attach("bob", domain.SourceCamera, coretest.NewRemoteTrack("new", webrtc.RTPCodecTypeVideo))

	assert.False(t, r.DetachTrack("bob", domain.SourceCamera, "old"))
	assert.True(t, r.DetachTrack("bob", domain.SourceCamera, "new"))
	assert.Equal(t, 0, r.Count())
}

func TestSetMuted(t *testing.T) {
	r := NewReconciler(&fakeFactory{})
	a, _ := r.Attach("bob", domain.SourceCamera, coretest.NewRemoteTrack("cam", webrtc.RTPCodecTypeVideo))

	require.True(t, r.SetMuted("bob", domain.SourceCamera, true))
	assert.Equal(t, AttachMuted, a.GetState())
	assert.True(t, a.Surface.(*fakeSurface).muted)

	require.True(t, r.SetMuted("bob", domain.SourceCamera, false))
	assert.Equal(t, AttachOk, a.GetState())

	assert.False(t, r.SetMuted("nobody", domain.SourceCamera, true))
}

func TestAttachLocal_AndDetachAll(t *testing.T) {
	r := NewReconciler(&fakeFactory{})
	stream := coretest.NewStream(domain.FacingUser, domain.SourceCamera)

	a1, err := r.AttachLocal("me", domain.SourceCamera, stream)
	require.NoError(t, err)
	a2, err := r.AttachLocal("me", domain.SourceCamera, stream)
	require.NoError(t, err)
	assert.Same(t, a1, a2)

	_, _ = r.Attach("bob", domain.SourceMicrophone, coretest.NewRemoteTrack("mic", webrtc.RTPCodecTypeAudio))
	r.DetachAll()
	assert.Equal(t, 0, r.Count())
	assert.Equal(t, AttachDetached, a1.GetState())
	assert.Empty(t, r.Snapshot())
}
