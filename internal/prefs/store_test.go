package prefs

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"sort"
	"testing"
)

// exerciseStore runs the behavior every Store must share.
func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("missing key loads empty", func(t *testing.T) {
		got, err := store.LoadSet(ctx, "nobody.muted_users")
		if err != nil {
			t.Fatalf("LoadSet() error = %v", err)
		}
		if len(got) != 0 {
			t.Errorf("expected empty set, got %v", got)
		}
	})

	t.Run("save then load", func(t *testing.T) {
		want := []string{"a", "b", "c"}
		if err := store.SaveSet(ctx, "me.muted_tracks", want); err != nil {
			t.Fatalf("SaveSet() error = %v", err)
		}
		got, err := store.LoadSet(ctx, "me.muted_tracks")
		if err != nil {
			t.Fatalf("LoadSet() error = %v", err)
		}
		sort.Strings(got)
		if !reflect.DeepEqual(got, want) {
			t.Errorf("LoadSet() = %v, want %v", got, want)
		}
	})

	t.Run("save replaces", func(t *testing.T) {
		_ = store.SaveSet(ctx, "me.liked_broadcasts", []string{"b1", "b2"})
		_ = store.SaveSet(ctx, "me.liked_broadcasts", []string{"b3"})
		got, _ := store.LoadSet(ctx, "me.liked_broadcasts")
		if !reflect.DeepEqual(got, []string{"b3"}) {
			t.Errorf("expected [b3], got %v", got)
		}
	})

	t.Run("save empty", func(t *testing.T) {
		_ = store.SaveSet(ctx, "me.messaged_broadcasts", []string{"b1"})
		if err := store.SaveSet(ctx, "me.messaged_broadcasts", nil); err != nil {
			t.Fatalf("SaveSet(nil) error = %v", err)
		}
		got, _ := store.LoadSet(ctx, "me.messaged_broadcasts")
		if len(got) != 0 {
			t.Errorf("expected empty set, got %v", got)
		}
	})

	t.Run("empty key", func(t *testing.T) {
		if _, err := store.LoadSet(ctx, ""); !errors.Is(err, ErrEmptyKey) {
			t.Errorf("LoadSet(\"\") error = %v", err)
		}
		if err := store.SaveSet(ctx, "", nil); !errors.Is(err, ErrEmptyKey) {
			t.Errorf("SaveSet(\"\") error = %v", err)
		}
	})
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestMemoryStore_CopiesMembers(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	members := []string{"a"}
	_ = store.SaveSet(ctx, "k", members)
	members[0] = "mutated"

	got, _ := store.LoadSet(ctx, "k")
	if got[0] != "a" {
		t.Errorf("expected stored copy, got %v", got)
	}
}

func TestSQLiteStore(t *testing.T) {
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "prefs", "prefs.db"))
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	defer store.Close()

	exerciseStore(t, store)
}

func TestSQLiteStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.db")
	ctx := context.Background()

	store, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	m := NewManager(store, nil)
	if err := m.Load(ctx, "me"); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	_ = m.MuteUser(ctx, "u2")
	_ = m.MarkLiked(ctx, "b1")
	store.Close()

	reopened, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite() reopen error = %v", err)
	}
	defer reopened.Close()

	m2 := NewManager(reopened, nil)
	if err := m2.Load(ctx, "me"); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !m2.IsUserMuted("u2") || !m2.IsLiked("b1") {
		t.Error("expected preferences to survive reopening the database")
	}
}
