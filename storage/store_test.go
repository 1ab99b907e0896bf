package storage

import (
	"sort"
	"testing"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	s := NewMemoryStore()

	if _, ok, err := s.Get("missing"); err != nil || ok {
		t.Fatalf("Get(missing) = ok=%v err=%v, want absent without error", ok, err)
	}

	if err := s.Set(KeyPluginState, "stereo-active"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, ok, err := s.Get(KeyPluginState)
	if err != nil || !ok || v != "stereo-active" {
		t.Fatalf("Get = (%q, %v, %v), want (stereo-active, true, nil)", v, ok, err)
	}

	if err := s.Set(KeyPluginState, "stereo-off"); err != nil {
		t.Fatalf("Set overwrite: %v", err)
	}
	if v, _, _ := s.Get(KeyPluginState); v != "stereo-off" {
		t.Errorf("overwrite: Get = %q, want stereo-off", v)
	}

	if err := s.Delete(KeyPluginState); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := s.Get(KeyPluginState); ok {
		t.Error("key still present after Delete")
	}
	if err := s.Delete(KeyPluginState); err != nil {
		t.Errorf("Delete of absent key: %v, want nil", err)
	}
}

func TestMemoryStoreKeys(t *testing.T) {
	s := NewMemoryStore()
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

func TestMemoryStoreDeleteMatching(t *testing.T) {
	s := NewMemoryStore()
	s.Set(KeyGyroscopePermission, "granted")
	s.Set("panorama-scene", "scene-1")
	s.Set("STEREO-calibration", "0.6")
	s.Set("host-theme", "dark")

	removed, err := s.DeleteMatching(SweepTokens...)
	if err != nil {
		t.Fatalf("DeleteMatching: %v", err)
	}
	if removed != 3 {
		t.Errorf("removed = %d, want 3", removed)
	}
	if _, ok, _ := s.Get("host-theme"); !ok {
		t.Error("unrelated key swept")
	}
	if _, ok, _ := s.Get("STEREO-calibration"); ok {
		t.Error("matching is not case-insensitive")
	}
}

func TestKeyMatchesIgnoresEmptyTokens(t *testing.T) {
	if keyMatches("host-theme", []string{""}) {
		t.Error("empty token must not match every key")
	}
}
