package logging

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
)

// testClock provides a controllable clock for deterministic tests.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestLevelThreshold(t *testing.T) {
	log := New(Config{MinLevel: LevelWarn})

	log.Debug("test", "dropped debug", nil)
	log.Info("test", "dropped info", nil)
	log.Warn("test", "kept warn", nil)
	log.Error("test", "kept error", nil)

	if got := log.Len(); got != 2 {
		t.Fatalf("Len() = %d, want 2", got)
	}
	if entries := log.LogsByLevel(LevelWarn); len(entries) != 1 || entries[0].Message != "kept warn" {
		t.Errorf("LogsByLevel(LevelWarn) = %+v, want one 'kept warn' entry", entries)
	}
}

func TestRotationEvictsOldestFirst(t *testing.T) {
	log := New(Config{MaxEntries: 3})

	for _, msg := range []string{"one", "two", "three", "four", "five"} {
		log.Info("test", msg, nil)
	}

	entries := log.Logs()
	if len(entries) != 3 {
		t.Fatalf("Logs() returned %d entries, want 3", len(entries))
	}
	want := []string{"three", "four", "five"}
	for i, w := range want {
		if entries[i].Message != w {
			t.Errorf("entries[%d].Message = %q, want %q", i, entries[i].Message, w)
		}
	}
}

func TestQueries(t *testing.T) {
	clock := newTestClock()
	log := New(Config{})
	log.setClockForTesting(clock.Now)

	log.Info("permission", "prompt shown", nil)
	clock.Advance(time.Minute)
	log.Warn("plugin", "stereo Toggle slow", map[string]any{"ms": 900})
	clock.Advance(time.Minute)
	log.Error("plugin", "stereo toggle failed", nil)

	if got := log.LogsByCategory("plugin"); len(got) != 2 {
		t.Errorf("LogsByCategory(plugin) returned %d entries, want 2", len(got))
	}
	if got := log.Search("STEREO"); len(got) != 2 {
		t.Errorf("Search is not case-insensitive: got %d entries, want 2", len(got))
	}
	if got := log.Search("prompt"); len(got) != 1 {
		t.Errorf("Search(prompt) returned %d entries, want 1", len(got))
	}

	from := clock.Now().Add(-90 * time.Second)
	if got := log.LogsByTimeRange(from, clock.Now()); len(got) != 2 {
		t.Errorf("LogsByTimeRange returned %d entries, want 2", len(got))
	}
	if got := log.Recent(30 * time.Second); len(got) != 1 {
		t.Errorf("Recent(30s) returned %d entries, want 1", len(got))
	}
}

func TestStats(t *testing.T) {
	clock := newTestClock()
	log := New(Config{})
	log.setClockForTesting(clock.Now)

	log.Info("manager", "a", nil)
	clock.Advance(time.Second)
	log.Info("plugin", "b", nil)
	clock.Advance(time.Second)
	log.Error("plugin", "c", nil)

	st := log.Stats()
	if st.Total != 3 {
		t.Errorf("Total = %d, want 3", st.Total)
	}
	if st.ByLevel["info"] != 2 || st.ByLevel["error"] != 1 {
		t.Errorf("ByLevel = %v", st.ByLevel)
	}
	if st.ByCategory["plugin"] != 2 {
		t.Errorf("ByCategory = %v", st.ByCategory)
	}
	if !st.Newest.After(st.Oldest) {
		t.Errorf("Newest %v not after Oldest %v", st.Newest, st.Oldest)
	}
}

func TestContextAndChild(t *testing.T) {
	log := New(Config{})
	log.SetContext(map[string]string{"session_id": "s-1"})

	child := log.Child(map[string]string{"component": "recovery"})
	log.SetContext(map[string]string{"session_id": "s-2"})

	child.Info("test", "from child", nil)
	log.Info("test", "from parent", nil)

	centries := child.Logs()
	if len(centries) != 1 {
		t.Fatalf("child has %d entries, want 1 (buffers must be independent)", len(centries))
	}
	if centries[0].Context["session_id"] != "s-1" || centries[0].Context["component"] != "recovery" {
		t.Errorf("child context = %v, want snapshot union", centries[0].Context)
	}

	pentries := log.Logs()
	if len(pentries) != 1 {
		t.Fatalf("parent has %d entries, want 1", len(pentries))
	}
	if pentries[0].Context["session_id"] != "s-2" {
		t.Errorf("parent context = %v", pentries[0].Context)
	}

	log.ClearContext()
	log.Info("test", "no ctx", nil)
	if got := log.Logs()[1].Context; got != nil {
		t.Errorf("context after ClearContext = %v, want nil", got)
	}
}

func TestExport(t *testing.T) {
	log := New(Config{})
	log.Info("manager", "exported", map[string]any{"n": 1})

	out, err := log.Export()
	if err != nil {
		t.Fatalf("Export() error: %v", err)
	}

	var entries []Entry
	if err := json.Unmarshal([]byte(out), &entries); err != nil {
		t.Fatalf("Export() output is not valid JSON: %v", err)
	}
	if len(entries) != 1 || entries[0].Message != "exported" {
		t.Errorf("exported entries = %+v", entries)
	}
}

func TestSinkMirroring(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Sink: &buf})

	log.Warn("plugin", "mirrored", nil)

	out := buf.String()
	if !strings.Contains(out, `"mirrored"`) || !strings.Contains(out, `"plugin"`) {
		t.Errorf("sink output missing fields: %s", out)
	}
	if !strings.Contains(out, `"warn"`) {
		t.Errorf("sink output missing level: %s", out)
	}
}

func TestClear(t *testing.T) {
	log := New(Config{})
	log.Info("test", "a", nil)
	log.Clear()
	if log.Len() != 0 {
		t.Errorf("Len() after Clear = %d, want 0", log.Len())
	}
}
