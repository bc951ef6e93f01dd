package devbackend

import (
	"errors"
	"sync"
	"time"

	"github.com/dkeye/VoiceRoom/internal/domain"
)

var (
	ErrRoomNotFound = errors.New("room not found")
	ErrRoomInactive = errors.New("room is not active")
	ErrRoomFull     = errors.New("room is full")
	ErrNotInRoom    = errors.New("not a participant of this room")
)

type room struct {
	info         domain.RoomInfo
	participants map[string]struct{}
}

// Rooms is the in-memory room store. Unknown rooms are created on first
// join when AutoCreate is set.
type Rooms struct {
	AutoCreate      bool
	MaxParticipants int

	mu    sync.Mutex
	rooms map[string]*room
	now   func() time.Time
}

func NewRooms(autoCreate bool, maxParticipants int) *Rooms {
	return &Rooms{
		AutoCreate:      autoCreate,
		MaxParticipants: maxParticipants,
		rooms:           make(map[string]*room),
		now:             time.Now,
	}
}

// Create registers a room owned by creator.
func (s *Rooms) Create(id, name, creator string) domain.RoomInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.create(id, name, creator).snapshot()
}

func (s *Rooms) create(id, name, creator string) *room {
	info := domain.RoomInfo{
		ID:            id,
		Name:          name,
		CreatedByID:   creator,
		CreatedByName: creator,
		IsActive:      true,
		CreatedAt:     s.now().UTC(),
	}
	if s.MaxParticipants > 0 {
		limit := s.MaxParticipants
		info.MaxParticipants = &limit
	}
	r := &room{info: info, participants: make(map[string]struct{})}
	s.rooms[id] = r
	return r
}

func (s *Rooms) Get(id string) (domain.RoomInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[id]
	if !ok {
		return domain.RoomInfo{}, ErrRoomNotFound
	}
	return r.snapshot(), nil
}

// Join adds user to the room. Joining twice is not an error.
func (s *Rooms) Join(id, user string) (domain.RoomInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[id]
	if !ok {
		if !s.AutoCreate {
			return domain.RoomInfo{}, ErrRoomNotFound
		}
		r = s.create(id, id, user)
	}
	if !r.info.IsActive {
		return domain.RoomInfo{}, ErrRoomInactive
	}
	if _, in := r.participants[user]; !in {
		if limit := r.info.MaxParticipants; limit != nil && len(r.participants) >= *limit {
			return domain.RoomInfo{}, ErrRoomFull
		}
		r.participants[user] = struct{}{}
	}
	return r.snapshot(), nil
}

func (s *Rooms) Leave(id, user string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[id]
	if !ok {
		return ErrRoomNotFound
	}
	if _, in := r.participants[user]; !in {
		return ErrNotInRoom
	}
	delete(r.participants, user)
	return nil
}

func (r *room) snapshot() domain.RoomInfo {
	info := r.info
	info.ParticipantCount = int64(len(r.participants))
	return info
}
