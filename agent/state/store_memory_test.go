package state

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore(MemoryStoreConfig{})
	defer store.Close()
	ctx := context.Background()
	now := time.Now().UTC()

	if _, err := store.Load(ctx, "missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("load missing err = %v, want ErrSessionNotFound", err)
	}

	s := NewSession("s-1", now)
	s.AppendTurn(Turn{Role: RoleUser, Content: "hi", CreatedAt: now})
	if err := store.Save(ctx, s); err != nil {
		t.Fatalf("save: %v", err)
	}

	// Mutating what was saved or loaded must not leak into the store.
	s.Turns[0].Content = "mutated"

	loaded, err := store.Load(ctx, "s-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Turns[0].Content != "hi" {
		t.Fatalf("stored turn = %q, want hi", loaded.Turns[0].Content)
	}
	loaded.Turns[0].Content = "also mutated"

	again, err := store.Load(ctx, "s-1")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if again.Turns[0].Content != "hi" {
		t.Fatalf("stored turn after mutation = %q, want hi", again.Turns[0].Content)
	}

	if err := store.Delete(ctx, "s-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Load(ctx, "s-1"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("load after delete err = %v, want ErrSessionNotFound", err)
	}
}

func TestMemoryStoreRejectsInvalidSession(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore(MemoryStoreConfig{})
	defer store.Close()

	if err := store.Save(context.Background(), NewSession("", time.Now())); err == nil {
		t.Fatal("saved session without id")
	}
}

func TestMemoryStoreIdleEviction(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore(MemoryStoreConfig{IdleTTL: time.Hour})
	defer store.Close()
	ctx := context.Background()

	base := time.Now().UTC()
	store.now = func() time.Time { return base }

	s := NewSession("s-1", base)
	s.Touch(base)
	if err := store.Save(ctx, s); err != nil {
		t.Fatalf("save: %v", err)
	}

	if _, err := store.Load(ctx, "s-1"); err != nil {
		t.Fatalf("load fresh: %v", err)
	}

	store.now = func() time.Time { return base.Add(2 * time.Hour) }
	if _, err := store.Load(ctx, "s-1"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("load idle err = %v, want ErrSessionNotFound", err)
	}
}

func TestMemoryStoreConcurrentAccess(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore(MemoryStoreConfig{})
	defer store.Close()
	ctx := context.Background()
	now := time.Now().UTC()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := "s-" + string(rune('a'+i%4))
			s := NewSession(id, now)
			s.AppendTurn(Turn{Role: RoleUser, Content: "hi", CreatedAt: now})
			if err := store.Save(ctx, s); err != nil {
				t.Errorf("save %s: %v", id, err)
				return
			}
			if _, err := store.Load(ctx, id); err != nil {
				t.Errorf("load %s: %v", id, err)
			}
		}(i)
	}
	wg.Wait()
}
