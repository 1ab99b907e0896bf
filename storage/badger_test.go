package storage

import (
	"sort"
	"testing"
)

func openTestBadger(t *testing.T) *BadgerStore {
	t.Helper()
	s, err := OpenBadgerStore(t.TempDir())
	if err != nil {
		t.Fatalf("OpenBadgerStore: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return s
}

func TestBadgerStoreRoundTrip(t *testing.T) {
	s := openTestBadger(t)

	if _, ok, err := s.Get("missing"); err != nil || ok {
		t.Fatalf("Get(missing) = ok=%v err=%v, want absent without error", ok, err)
	}

	if err := s.Set(KeyFallbackMode, "pointer-look"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, ok, err := s.Get(KeyFallbackMode)
	if err != nil || !ok || v != "pointer-look" {
		t.Fatalf("Get = (%q, %v, %v), want (pointer-look, true, nil)", v, ok, err)
	}

	if err := s.Delete(KeyFallbackMode); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := s.Get(KeyFallbackMode); ok {
		t.Error("key still present after Delete")
	}
	if err := s.Delete(KeyFallbackMode); err != nil {
		t.Errorf("Delete of absent key: %v, want nil", err)
	}
}

func TestBadgerStoreKeysStripPrefix(t *testing.T) {
	s := openTestBadger(t)
	s.Set("a", "1")
	s.Set("b", "2")

	keys, err := s.Keys()
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	sort.Strings(keys)
	if len(keys) != 2 || keys[0] != "a" || keys[1] != "b" {
		t.Errorf("Keys = %v, want [a b]", keys)
	}
}

func TestBadgerStoreDeleteMatching(t *testing.T) {
	s := openTestBadger(t)
	s.Set(KeyDisabled, "1")
	s.Set("panorama-last-scene", "scene-1")
	s.Set("host-theme", "dark")

	removed, err := s.DeleteMatching(SweepTokens...)
	if err != nil {
		t.Fatalf("DeleteMatching: %v", err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}
	if _, ok, _ := s.Get("host-theme"); !ok {
		t.Error("unrelated key swept")
	}
}

func TestBadgerStoreCloseNonOwning(t *testing.T) {
	owning := openTestBadger(t)
	wrapped := NewBadgerStore(owning.db)

	if err := wrapped.Close(); err != nil {
		t.Fatalf("Close on non-owning store: %v", err)
	}
	// The shared database must still be usable.
	if err := owning.Set("k", "v"); err != nil {
		t.Errorf("Set after non-owning Close: %v", err)
	}
}
