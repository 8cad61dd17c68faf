package prefs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/TimBasler1996/Melora-sub001/internal/auth"
)

// Mutes is a snapshot of the current user's mute lists.
type Mutes struct {
	Users  Set
	Tracks Set
}

// Excludes reports whether a broadcast by userID playing trackID is muted.
func (m Mutes) Excludes(userID, trackID string) bool {
	return m.Users.Contains(userID) || m.Tracks.Contains(trackID)
}

// Manager holds the current user's preference sets in memory and writes every
// addition through to a Store. Thread-safe.
type Manager struct {
	store  Store
	logger *slog.Logger

	// writeMu serializes persistence so stored sets are written in mutation order.
	writeMu sync.Mutex

	mu     sync.RWMutex
	userID string
	sets   map[Kind]Set
}

// NewManager creates a Manager persisting to store.
func NewManager(store Store, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:  store,
		logger: logger,
		sets:   emptySets(),
	}
}

func emptySets() map[Kind]Set {
	sets := make(map[Kind]Set, len(Kinds))
	for _, k := range Kinds {
		sets[k] = Set{}
	}
	return sets
}

// Load reads all four sets of userID, replacing whatever was loaded before.
// An empty userID returns auth.ErrUnauthenticated.
func (m *Manager) Load(ctx context.Context, userID string) error {
	if userID == "" {
		return auth.ErrUnauthenticated
	}

	sets := emptySets()
	for _, kind := range Kinds {
		members, err := m.store.LoadSet(ctx, Key(userID, kind))
		if err != nil {
			return fmt.Errorf("load preferences for %s: %w", userID, err)
		}
		sets[kind] = NewSet(members...)
	}

	m.mu.Lock()
	m.userID = userID
	m.sets = sets
	m.mu.Unlock()

	m.logger.Debug("preferences loaded",
		"user_id", userID,
		"muted_users", len(sets[KindMutedUsers]),
		"muted_tracks", len(sets[KindMutedTracks]),
		"liked", len(sets[KindLikedBroadcasts]),
		"messaged", len(sets[KindMessagedBroadcasts]),
	)
	return nil
}

// UserID returns the loaded user id, or "" before Load.
func (m *Manager) UserID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.userID
}

// MuteUser adds id to the muted users and persists it.
func (m *Manager) MuteUser(ctx context.Context, id string) error {
	return m.add(ctx, KindMutedUsers, id)
}

// MuteTrack adds id to the muted tracks and persists it.
func (m *Manager) MuteTrack(ctx context.Context, id string) error {
	return m.add(ctx, KindMutedTracks, id)
}

// MarkLiked records that the current user liked broadcastID.
func (m *Manager) MarkLiked(ctx context.Context, broadcastID string) error {
	return m.add(ctx, KindLikedBroadcasts, broadcastID)
}

// MarkMessaged records that the current user messaged broadcastID's author.
func (m *Manager) MarkMessaged(ctx context.Context, broadcastID string) error {
	return m.add(ctx, KindMessagedBroadcasts, broadcastID)
}

// IsUserMuted reports whether id is muted.
func (m *Manager) IsUserMuted(id string) bool { return m.contains(KindMutedUsers, id) }

// IsTrackMuted reports whether id is muted.
func (m *Manager) IsTrackMuted(id string) bool { return m.contains(KindMutedTracks, id) }

// IsLiked reports whether broadcastID was liked.
func (m *Manager) IsLiked(broadcastID string) bool { return m.contains(KindLikedBroadcasts, broadcastID) }

// HasMessage reports whether a message was sent for broadcastID.
func (m *Manager) HasMessage(broadcastID string) bool {
	return m.contains(KindMessagedBroadcasts, broadcastID)
}

// Mutes returns a snapshot of both mute lists.
func (m *Manager) Mutes() Mutes {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Mutes{
		Users:  m.sets[KindMutedUsers].clone(),
		Tracks: m.sets[KindMutedTracks].clone(),
	}
}

func (m *Manager) contains(kind Kind, id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sets[kind].Contains(id)
}

// add inserts id into kind and writes the whole set through to the store.
// Adding an existing member is a no-op. A failed write keeps the in-memory
// membership and returns the error.
func (m *Manager) add(ctx context.Context, kind Kind, id string) error {
	if id == "" {
		return fmt.Errorf("%s: empty id", kind)
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.Lock()
	if m.userID == "" {
		m.mu.Unlock()
		return auth.ErrUnauthenticated
	}
	set := m.sets[kind]
	if set.Contains(id) {
		m.mu.Unlock()
		return nil
	}
	next := set.clone()
	next[id] = struct{}{}
	m.sets[kind] = next
	userID := m.userID
	m.mu.Unlock()

	if err := m.store.SaveSet(ctx, Key(userID, kind), next.Sorted()); err != nil {
		m.logger.Error("failed to persist preference",
			"user_id", userID,
			"kind", string(kind),
			"id", id,
			"error", err,
		)
		return fmt.Errorf("persist %s: %w", kind, err)
	}
	return nil
}
