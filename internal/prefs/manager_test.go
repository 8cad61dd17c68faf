package prefs

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/TimBasler1996/Melora-sub001/internal/auth"
)

type failingStore struct {
	*MemoryStore
	saveErr error
	loadErr error
}

func (s *failingStore) LoadSet(ctx context.Context, key string) ([]string, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return s.MemoryStore.LoadSet(ctx, key)
}

func (s *failingStore) SaveSet(ctx context.Context, key string, members []string) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	return s.MemoryStore.SaveSet(ctx, key, members)
}

func loaded(t *testing.T, store Store, userID string) *Manager {
	t.Helper()
	m := NewManager(store, nil)
	if err := m.Load(context.Background(), userID); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return m
}

func TestKey(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{KindMutedUsers, "u1.muted_users"},
		{KindMutedTracks, "u1.muted_tracks"},
		{KindLikedBroadcasts, "u1.liked_broadcasts"},
		{KindMessagedBroadcasts, "u1.messaged_broadcasts"},
	}
	for _, tt := range tests {
		if got := Key("u1", tt.kind); got != tt.want {
			t.Errorf("Key(u1, %s) = %q, want %q", tt.kind, got, tt.want)
		}
	}
}

func TestManager_RequiresUser(t *testing.T) {
	m := NewManager(NewMemoryStore(), nil)
	ctx := context.Background()

	if err := m.Load(ctx, ""); !errors.Is(err, auth.ErrUnauthenticated) {
		t.Errorf("Load(\"\") error = %v, want ErrUnauthenticated", err)
	}
	if err := m.MuteUser(ctx, "u2"); !errors.Is(err, auth.ErrUnauthenticated) {
		t.Errorf("MuteUser before Load error = %v, want ErrUnauthenticated", err)
	}
	if m.IsUserMuted("u2") {
		t.Error("expected no mute to be recorded without a user")
	}
}

func TestManager_MuteIsIdempotent(t *testing.T) {
	store := NewMemoryStore()
	m := loaded(t, store, "me")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := m.MuteUser(ctx, "u2"); err != nil {
			t.Fatalf("MuteUser() error = %v", err)
		}
	}

	once := loaded(t, NewMemoryStore(), "me")
	_ = once.MuteUser(ctx, "u2")

	if !reflect.DeepEqual(m.Mutes(), once.Mutes()) {
		t.Errorf("muting twice = %v, muting once = %v", m.Mutes(), once.Mutes())
	}

	stored, _ := store.LoadSet(ctx, Key("me", KindMutedUsers))
	if !reflect.DeepEqual(stored, []string{"u2"}) {
		t.Errorf("expected stored set [u2], got %v", stored)
	}
}

func TestManager_RoundTrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	m := loaded(t, store, "me")
	_ = m.MuteUser(ctx, "u2")
	_ = m.MuteUser(ctx, "u3")
	_ = m.MuteTrack(ctx, "t9")
	_ = m.MarkLiked(ctx, "b1")
	_ = m.MarkMessaged(ctx, "b1")

	reloaded := loaded(t, store, "me")
	for _, kind := range Kinds {
		if !reflect.DeepEqual(m.sets[kind].Sorted(), reloaded.sets[kind].Sorted()) {
			t.Errorf("%s: persisted %v, reloaded %v", kind, m.sets[kind].Sorted(), reloaded.sets[kind].Sorted())
		}
	}
	if !reloaded.IsLiked("b1") || !reloaded.HasMessage("b1") {
		t.Error("expected interaction flags to survive reload")
	}
}

func TestManager_NamespacedByUser(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	alice := loaded(t, store, "alice")
	_ = alice.MuteTrack(ctx, "t1")

	bob := loaded(t, store, "bob")
	if bob.IsTrackMuted("t1") {
		t.Error("expected bob not to see alice's mutes")
	}

	if err := alice.Load(ctx, "bob"); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if alice.IsTrackMuted("t1") {
		t.Error("expected switching user to replace loaded sets")
	}
}

func TestManager_PersistFailure(t *testing.T) {
	boom := errors.New("disk full")
	store := &failingStore{MemoryStore: NewMemoryStore()}
	m := loaded(t, store, "me")
	ctx := context.Background()

	store.saveErr = boom
	err := m.MarkLiked(ctx, "b1")
	if !errors.Is(err, boom) {
		t.Fatalf("MarkLiked() error = %v, want %v", err, boom)
	}
	if !m.IsLiked("b1") {
		t.Error("expected in-memory membership to survive a failed write")
	}
}

func TestManager_LoadFailure(t *testing.T) {
	boom := errors.New("corrupt")
	store := &failingStore{MemoryStore: NewMemoryStore(), loadErr: boom}
	m := NewManager(store, nil)

	if err := m.Load(context.Background(), "me"); !errors.Is(err, boom) {
		t.Fatalf("Load() error = %v, want %v", err, boom)
	}
	if m.UserID() != "" {
		t.Error("expected failed load to leave the manager unloaded")
	}
}

func TestManager_EmptyID(t *testing.T) {
	m := loaded(t, NewMemoryStore(), "me")
	if err := m.MuteTrack(context.Background(), ""); err == nil {
		t.Error("expected error for empty id")
	}
}

func TestMutes_Excludes(t *testing.T) {
	mutes := Mutes{Users: NewSet("u2"), Tracks: NewSet("t9")}

	tests := []struct {
		name    string
		userID  string
		trackID string
		want    bool
	}{
		{"muted user", "u2", "t1", true},
		{"muted track", "u3", "t9", true},
		{"neither", "u3", "t1", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mutes.Excludes(tt.userID, tt.trackID); got != tt.want {
				t.Errorf("Excludes(%s, %s) = %v, want %v", tt.userID, tt.trackID, got, tt.want)
			}
		})
	}
}

func TestMutes_SnapshotIsolated(t *testing.T) {
	m := loaded(t, NewMemoryStore(), "me")
	snap := m.Mutes()
	_ = m.MuteUser(context.Background(), "u2")

	if snap.Users.Contains("u2") {
		t.Error("expected earlier snapshot to be unaffected by later mutes")
	}
}
