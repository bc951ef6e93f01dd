package coretest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/dkeye/VoiceRoom/internal/core"
	"github.com/dkeye/VoiceRoom/internal/domain"
	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/mock"
)

// Room is a fake transport room.
type Room struct {
	identity string

	mu           sync.Mutex
	state        core.ConnectionState
	pubs         []core.Publication
	remote       []core.RemoteParticipantInfo
	sink         core.EventSink
	seq          int
	PublishErr   error
	UnpublishErr error

	Disconnects atomic.Int32
	Unpublishes atomic.Int32
}

func NewRoom(identity string) *Room {
	return &Room{identity: identity, state: core.StateConnected}
}

func (r *Room) State() core.ConnectionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Room) LocalIdentity() string { return r.identity }

func (r *Room) Publish(_ context.Context, t core.LocalTrack) (core.Publication, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.PublishErr != nil {
		return core.Publication{}, r.PublishErr
	}
	r.seq++
	p := core.Publication{SID: fmt.Sprintf("TR_%d", r.seq), Source: t.Source}
	r.pubs = append(r.pubs, p)
	return p, nil
}

func (r *Room) Unpublish(_ context.Context, sid string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Unpublishes.Add(1)
	if r.UnpublishErr != nil {
		return r.UnpublishErr
	}
	i := slices.IndexFunc(r.pubs, func(p core.Publication) bool { return p.SID == sid })
	if i < 0 {
		return errors.New("track not published")
	}
	r.pubs = slices.Delete(r.pubs, i, i+1)
	return nil
}

func (r *Room) LocalPublications() []core.Publication {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.pubs)
}

func (r *Room) RemoteParticipants() []core.RemoteParticipantInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.remote)
}

func (r *Room) Disconnect() {
	r.Disconnects.Add(1)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = core.StateDisconnected
}

// DropPublication removes the publication of src behind the handle's back.
func (r *Room) DropPublication(src domain.TrackSource) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pubs = slices.DeleteFunc(r.pubs, func(p core.Publication) bool { return p.Source == src })
}

// SetRemote replaces the transport's view of remote participants.
func (r *Room) SetRemote(ps ...core.RemoteParticipantInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.remote = ps
}

// Emit delivers ev as if the transport raised it.
func (r *Room) Emit(ev core.Event) {
	r.mu.Lock()
	sink := r.sink
	r.mu.Unlock()
	if sink != nil {
		sink(ev)
	}
}

// Transport is a fake transport handing out Room.
type Transport struct {
	Room *Room
	Err  error
	// Gate, when set, blocks Connect until it is closed.
	Gate chan struct{}

	Connects atomic.Int32
}

func (t *Transport) Connect(ctx context.Context, _, _ string, sink core.EventSink) (core.Room, error) {
	t.Connects.Add(1)
	if t.Gate != nil {
		select {
		case <-t.Gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if t.Err != nil {
		return nil, t.Err
	}
	t.Room.mu.Lock()
	t.Room.sink = sink
	t.Room.state = core.StateConnected
	t.Room.mu.Unlock()
	return t.Room, nil
}

// RemoteTrack is a fake subscribed track. ReadRTP returns queued packets
// and io.EOF once closed.
type RemoteTrack struct {
	id    string
	kind  webrtc.RTPCodecType
	codec webrtc.RTPCodecParameters

	packets chan *rtp.Packet
	done    chan struct{}
	once    sync.Once
}

func NewRemoteTrack(id string, kind webrtc.RTPCodecType) *RemoteTrack {
	mime := webrtc.MimeTypeVP8
	if kind == webrtc.RTPCodecTypeAudio {
		mime = webrtc.MimeTypeOpus
	}
	return &RemoteTrack{
		id:      id,
		kind:    kind,
		codec:   webrtc.RTPCodecParameters{RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: mime, ClockRate: 90000}},
		packets: make(chan *rtp.Packet, 16),
		done:    make(chan struct{}),
	}
}

func (t *RemoteTrack) ID() string                       { return t.id }
func (t *RemoteTrack) Kind() webrtc.RTPCodecType        { return t.kind }
func (t *RemoteTrack) Codec() webrtc.RTPCodecParameters { return t.codec }

func (t *RemoteTrack) ReadRTP() (*rtp.Packet, interceptor.Attributes, error) {
	select {
	case p := <-t.packets:
		return p, nil, nil
	case <-t.done:
		return nil, nil, io.EOF
	}
}

func (t *RemoteTrack) Push(p *rtp.Packet) { t.packets <- p }

func (t *RemoteTrack) Close() {
	t.once.Do(func() { close(t.done) })
}

// Credentials is a testify mock of core.CredentialSource.
type Credentials struct {
	mock.Mock
}

func (m *Credentials) Join(ctx context.Context, room domain.RoomID) (domain.Credential, error) {
	args := m.Called(ctx, room)
	return args.Get(0).(domain.Credential), args.Error(1)
}

func (m *Credentials) Leave(ctx context.Context, room domain.RoomID) error {
	args := m.Called(ctx, room)
	return args.Error(0)
}
