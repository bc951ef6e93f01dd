package app

import (
	"cmp"
	"slices"
	"sync"

	"github.com/dkeye/VoiceRoom/internal/core"
	"github.com/dkeye/VoiceRoom/internal/domain"
	"github.com/rs/zerolog/log"
)

// Registry holds the remote participants of one session, keyed by identity.
// An entry exists iff the transport reports the participant connected.
type Registry struct {
	mu           sync.RWMutex
	participants map[string]*domain.Participant
}

func NewRegistry() *Registry {
	return &Registry{participants: make(map[string]*domain.Participant)}
}

// Upsert adds identity if missing and reports whether it was created.
func (r *Registry) Upsert(identity string) bool {
	if err := domain.ValidateIdentity(identity); err != nil {
		log.Warn().Str("module", "app.registry").Err(err).Msg("rejected participant")
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.participants[identity]; ok {
		return false
	}
	r.participants[identity] = domain.NewParticipant(identity)
	log.Info().Str("module", "app.registry").Str("identity", identity).Msg("participant added")
	return true
}

func (r *Registry) Remove(identity string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.participants[identity]; !ok {
		return false
	}
	delete(r.participants, identity)
	log.Info().Str("module", "app.registry").Str("identity", identity).Msg("participant removed")
	return true
}

// SetSubscribed records a subscribe or unsubscribe of src. A subscribe for
// an unknown identity creates the entry; an unsubscribe never does, so a
// late event cannot bring back a participant that already left.
func (r *Registry) SetSubscribed(identity string, src domain.TrackSource, subscribed bool) {
	if subscribed {
		r.Upsert(identity)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.participants[identity]
	if !ok {
		return
	}
	if !subscribed {
		delete(p.Tracks, src)
		return
	}
	st := p.Tracks[src]
	st.Subscribed = true
	p.Tracks[src] = st
}

func (r *Registry) SetMuted(identity string, src domain.TrackSource, muted bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.participants[identity]
	if !ok {
		return
	}
	st := p.Tracks[src]
	st.Muted = muted
	p.Tracks[src] = st
}

// Get returns a copy of the participant.
func (r *Registry) Get(identity string) (*domain.Participant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.participants[identity]
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.participants)
}

// Snapshot returns copies ordered by identity.
func (r *Registry) Snapshot() []*domain.Participant {
	r.mu.RLock()
	out := make([]*domain.Participant, 0, len(r.participants))
	for _, p := range r.participants {
		out = append(out, p.Clone())
	}
	r.mu.RUnlock()
	slices.SortFunc(out, func(a, b *domain.Participant) int { return cmp.Compare(a.Identity, b.Identity) })
	return out
}

func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.participants)
}

// Reconcile makes membership and per-source flags match the transport's
// remote participant list. It returns the identities added and removed.
func (r *Registry) Reconcile(remote []core.RemoteParticipantInfo) (added, removed []string) {
	seen := make(map[string]bool, len(remote))
	for _, rp := range remote {
		seen[rp.Identity] = true
		if r.Upsert(rp.Identity) {
			added = append(added, rp.Identity)
		}
		r.mu.Lock()
		if p, ok := r.participants[rp.Identity]; ok {
			clear(p.Tracks)
			for _, t := range rp.Tracks {
				if t.Track == nil {
					continue
				}
				p.Tracks[t.Source] = domain.TrackState{Subscribed: true, Muted: t.Muted}
			}
		}
		r.mu.Unlock()
	}

	r.mu.Lock()
	for id := range r.participants {
		if !seen[id] {
			delete(r.participants, id)
			removed = append(removed, id)
		}
	}
	r.mu.Unlock()
	if len(added) > 0 || len(removed) > 0 {
		log.Info().
			Str("module", "app.registry").
			Strs("added", added).
			Strs("removed", removed).
			Msg("participants reconciled")
	}
	slices.Sort(removed)
	return added, removed
}
