// Package storage provides the flag store used to persist small advisory
// string flags across viewer sessions (degraded-mode markers, cached
// permission hints, plugin state). It is the Go analog of the browser's
// localStorage surface: string keys, string values, absence always means
// "not set".
//
// Two implementations are provided: MemoryStore for browser-bridged hosts
// and tests, and BadgerStore for kiosk/embedded hosts that survive restarts.
package storage

import (
	"strings"
	"sync"
)

// Well-known flag keys written by the recovery engine and the VR manager.
const (
	KeyGyroscopePermission    = "vr-gyroscope-permission"
	KeyDeviceMotionPermission = "vr-device-motion-permission"
	KeyPluginState            = "vr-plugin-state"
	KeyFallbackMode           = "vr-fallback-mode"
	KeyFallbackReason         = "vr-fallback-reason"
	KeyDisabled               = "vr-disabled"
)

// SweepTokens are the substrings matched by the generic-reset sweep. Any key
// containing one of these tokens is removed when a full state reset is
// performed.
var SweepTokens = []string{"vr", "panorama", "gyroscope", "stereo"}

// FlagStore is the persistence surface for advisory string flags.
// Implementations must treat a missing key as "not set" rather than an error.
type FlagStore interface {
	// Get returns the value for key and whether it was present.
	Get(key string) (string, bool, error)

	// Set stores value under key, overwriting any previous value.
	Set(key, value string) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(key string) error

	// Keys returns all stored keys in unspecified order.
	Keys() ([]string, error)

	// DeleteMatching removes every key containing any of the given
	// substrings and returns the number of keys removed.
	DeleteMatching(tokens ...string) (int, error)
}

// MemoryStore is an in-memory FlagStore. It is safe for concurrent use.
// Hosts that bridge to a real browser localStorage keep the flags on their
// side and hand the core a MemoryStore mirror.
type MemoryStore struct {
	mu    sync.RWMutex
	flags map[string]string
}

// NewMemoryStore creates an empty in-memory flag store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{flags: make(map[string]string)}
}

// Get returns the value for key and whether it was present.
func (s *MemoryStore) Get(key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.flags[key]
	return v, ok, nil
}

// Set stores value under key.
func (s *MemoryStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flags[key] = value
	return nil
}

// Delete removes key.
func (s *MemoryStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.flags, key)
	return nil
}

// Keys returns all stored keys.
func (s *MemoryStore) Keys() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.flags))
	for k := range s.flags {
		keys = append(keys, k)
	}
	return keys, nil
}

// DeleteMatching removes every key containing any of the given substrings.
func (s *MemoryStore) DeleteMatching(tokens ...string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for k := range s.flags {
		if keyMatches(k, tokens) {
			delete(s.flags, k)
			removed++
		}
	}
	return removed, nil
}

// keyMatches reports whether key contains any of the tokens,
// case-insensitively.
func keyMatches(key string, tokens []string) bool {
	lower := strings.ToLower(key)
	for _, t := range tokens {
		if t == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(t)) {
			return true
		}
	}
	return false
}
