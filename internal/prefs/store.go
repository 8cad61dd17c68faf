// Package prefs persists the local, per-user mute lists and interaction flags.
//
// Every set only grows: there is no unmute and no unlike. Each set is stored as
// an unordered string collection under a key namespaced by the current user id.
package prefs

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// Kind names one of the four persisted sets.
type Kind string

// Persisted sets.
const (
	KindMutedUsers         Kind = "muted_users"
	KindMutedTracks        Kind = "muted_tracks"
	KindLikedBroadcasts    Kind = "liked_broadcasts"
	KindMessagedBroadcasts Kind = "messaged_broadcasts"
)

// Kinds lists every persisted set in load order.
var Kinds = []Kind{KindMutedUsers, KindMutedTracks, KindLikedBroadcasts, KindMessagedBroadcasts}

// ErrEmptyKey is returned by stores when the key is empty.
var ErrEmptyKey = errors.New("preference key cannot be empty")

// Key returns the storage key of kind for userID, e.g. "u1.muted_users".
func Key(userID string, kind Kind) string {
	return userID + "." + string(kind)
}

// Store is a key-value persistence of string sets.
// A missing key loads as an empty set.
type Store interface {
	LoadSet(ctx context.Context, key string) ([]string, error)
	SaveSet(ctx context.Context, key string, members []string) error
}

// MemoryStore is an in-memory Store. Used for testing and development.
type MemoryStore struct {
	mu   sync.RWMutex
	sets map[string][]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sets: make(map[string][]string)}
}

// LoadSet returns a copy of the stored members.
func (s *MemoryStore) LoadSet(ctx context.Context, key string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if key == "" {
		return nil, ErrEmptyKey
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.sets[key]...), nil
}

// SaveSet replaces the stored members.
func (s *MemoryStore) SaveSet(ctx context.Context, key string, members []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if key == "" {
		return ErrEmptyKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sets[key] = append([]string(nil), members...)
	return nil
}

// Set is an immutable snapshot of a string set.
type Set map[string]struct{}

// NewSet builds a set from members, skipping empty strings.
func NewSet(members ...string) Set {
	s := make(Set, len(members))
	for _, m := range members {
		if m != "" {
			s[m] = struct{}{}
		}
	}
	return s
}

// Contains reports whether id is in the set.
func (s Set) Contains(id string) bool {
	_, ok := s[id]
	return ok
}

// Sorted returns the members in ascending order.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for m := range s {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

func (s Set) clone() Set {
	out := make(Set, len(s))
	for m := range s {
		out[m] = struct{}{}
	}
	return out
}
