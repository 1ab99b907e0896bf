// Package logging provides the structured, queryable log store backing VR
// diagnostics. Entries are kept in a bounded in-memory buffer (oldest
// evicted first) that supports level/category/time/text queries and
// aggregate statistics, and every accepted entry is mirrored to a zerolog
// sink so hosts get ordinary structured log output as well.
package logging

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// Level is the log level of an entry.
type Level int8

// Log levels, lowest to highest.
const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the lower-case level name.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return fmt.Sprintf("level(%d)", int8(l))
	}
}

// MarshalJSON encodes the level as its name.
func (l Level) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

// UnmarshalJSON decodes a level name.
func (l *Level) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	switch name {
	case "debug":
		*l = LevelDebug
	case "info":
		*l = LevelInfo
	case "warn":
		*l = LevelWarn
	case "error":
		*l = LevelError
	default:
		return fmt.Errorf("unknown log level %q", name)
	}
	return nil
}

// zerologLevel maps a Level onto the corresponding zerolog level.
func (l Level) zerologLevel() zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelInfo:
		return zerolog.InfoLevel
	case LevelWarn:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}

// Entry is a single stored log record.
type Entry struct {
	Timestamp time.Time         `json:"timestamp"`
	Level     Level             `json:"level"`
	Category  string            `json:"category"`
	Message   string            `json:"message"`
	Data      map[string]any    `json:"data,omitempty"`
	Context   map[string]string `json:"context,omitempty"`
}

// Stats summarizes the current buffer contents.
type Stats struct {
	Total      int            `json:"total"`
	ByLevel    map[string]int `json:"by_level"`
	ByCategory map[string]int `json:"by_category"`
	Oldest     time.Time      `json:"oldest"`
	Newest     time.Time      `json:"newest"`
}

// DefaultMaxEntries is the buffer bound used when Config.MaxEntries is zero.
const DefaultMaxEntries = 500

// Config holds logger settings.
type Config struct {
	// MinLevel is the threshold below which calls are dropped.
	MinLevel Level

	// MaxEntries bounds the in-memory buffer. When exceeded, the oldest
	// entries are evicted first. Defaults to DefaultMaxEntries.
	MaxEntries int

	// Sink receives a structured mirror of every accepted entry.
	// Defaults to io.Discard.
	Sink io.Writer
}

// clockFunc returns the current time. Tests inject a controllable clock.
type clockFunc func() time.Time

// Logger is a bounded, queryable log store. It is safe for concurrent use.
type Logger struct {
	mu      sync.Mutex
	entries []Entry
	context map[string]string

	minLevel   Level
	maxEntries int
	sink       zerolog.Logger
	clock      clockFunc
}

// New creates a Logger with the given configuration.
func New(cfg Config) *Logger {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultMaxEntries
	}
	sink := cfg.Sink
	if sink == nil {
		sink = io.Discard
	}
	return &Logger{
		context:    make(map[string]string),
		minLevel:   cfg.MinLevel,
		maxEntries: cfg.MaxEntries,
		sink:       zerolog.New(sink).With().Timestamp().Logger(),
		clock:      time.Now,
	}
}

// Debug appends a debug-level entry.
func (l *Logger) Debug(category, message string, data map[string]any) {
	l.append(LevelDebug, category, message, data)
}

// Info appends an info-level entry.
func (l *Logger) Info(category, message string, data map[string]any) {
	l.append(LevelInfo, category, message, data)
}

// Warn appends a warn-level entry.
func (l *Logger) Warn(category, message string, data map[string]any) {
	l.append(LevelWarn, category, message, data)
}

// Error appends an error-level entry.
func (l *Logger) Error(category, message string, data map[string]any) {
	l.append(LevelError, category, message, data)
}

// SetLevel changes the minimum accepted level.
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.minLevel = level
}

// SetContext merges fields into the context attached to every subsequent
// entry. Existing keys are overwritten.
func (l *Logger) SetContext(fields map[string]string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, v := range fields {
		l.context[k] = v
	}
}

// ClearContext removes all context fields.
func (l *Logger) ClearContext() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.context = make(map[string]string)
}

// Child returns an independent logger whose context is the union of this
// logger's current context and extra. The context is a snapshot: later
// changes to the parent do not affect the child, and the child keeps its
// own entry buffer.
func (l *Logger) Child(extra map[string]string) *Logger {
	l.mu.Lock()
	defer l.mu.Unlock()

	child := &Logger{
		context:    make(map[string]string, len(l.context)+len(extra)),
		minLevel:   l.minLevel,
		maxEntries: l.maxEntries,
		sink:       l.sink,
		clock:      l.clock,
	}
	for k, v := range l.context {
		child.context[k] = v
	}
	for k, v := range extra {
		child.context[k] = v
	}
	return child
}

// Len returns the number of stored entries.
func (l *Logger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Logs returns a copy of all stored entries, oldest first.
func (l *Logger) Logs() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Entry(nil), l.entries...)
}

// LogsByLevel returns stored entries with exactly the given level.
func (l *Logger) LogsByLevel(level Level) []Entry {
	return l.filter(func(e Entry) bool { return e.Level == level })
}

// LogsByCategory returns stored entries with the given category.
func (l *Logger) LogsByCategory(category string) []Entry {
	return l.filter(func(e Entry) bool { return e.Category == category })
}

// LogsByTimeRange returns stored entries with from <= Timestamp <= to.
func (l *Logger) LogsByTimeRange(from, to time.Time) []Entry {
	return l.filter(func(e Entry) bool {
		return !e.Timestamp.Before(from) && !e.Timestamp.After(to)
	})
}

// Search returns stored entries whose message or category contains text,
// case-insensitively.
func (l *Logger) Search(text string) []Entry {
	needle := strings.ToLower(text)
	return l.filter(func(e Entry) bool {
		return strings.Contains(strings.ToLower(e.Message), needle) ||
			strings.Contains(strings.ToLower(e.Category), needle)
	})
}

// Recent returns stored entries newer than the given age.
func (l *Logger) Recent(age time.Duration) []Entry {
	cutoff := l.now().Add(-age)
	return l.filter(func(e Entry) bool { return e.Timestamp.After(cutoff) })
}

// Stats returns aggregate counts over the stored entries.
func (l *Logger) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	st := Stats{
		Total:      len(l.entries),
		ByLevel:    make(map[string]int),
		ByCategory: make(map[string]int),
	}
	for _, e := range l.entries {
		st.ByLevel[e.Level.String()]++
		st.ByCategory[e.Category]++
	}
	if len(l.entries) > 0 {
		st.Oldest = l.entries[0].Timestamp
		st.Newest = l.entries[len(l.entries)-1].Timestamp
	}
	return st
}

// Export serializes all stored entries to indented JSON for diagnostics
// transport.
func (l *Logger) Export() (string, error) {
	entries := l.Logs()
	out, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return "", fmt.Errorf("export logs: %w", err)
	}
	return string(out), nil
}

// Clear drops all stored entries. Context and level are unchanged.
func (l *Logger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
}

// append stores an entry if it passes the level threshold, evicting the
// oldest entries when the buffer bound is exceeded, and mirrors it to the
// sink.
func (l *Logger) append(level Level, category, message string, data map[string]any) {
	l.mu.Lock()

	if level < l.minLevel {
		l.mu.Unlock()
		return
	}

	entry := Entry{
		Timestamp: l.clock(),
		Level:     level,
		Category:  category,
		Message:   message,
		Data:      data,
	}
	if len(l.context) > 0 {
		entry.Context = make(map[string]string, len(l.context))
		for k, v := range l.context {
			entry.Context[k] = v
		}
	}

	l.entries = append(l.entries, entry)
	if over := len(l.entries) - l.maxEntries; over > 0 {
		l.entries = append(l.entries[:0:0], l.entries[over:]...)
	}
	sink := l.sink
	l.mu.Unlock()

	ev := sink.WithLevel(level.zerologLevel()).Str("category", category)
	for k, v := range entry.Context {
		ev = ev.Str(k, v)
	}
	for k, v := range data {
		ev = ev.Interface(k, v)
	}
	ev.Msg(message)
}

// filter returns a copy of the entries matching keep, oldest first.
func (l *Logger) filter(keep func(Entry) bool) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []Entry
	for _, e := range l.entries {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

// now returns the logger's current time.
func (l *Logger) now() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.clock()
}

// setClockForTesting replaces the clock for deterministic tests.
func (l *Logger) setClockForTesting(clock clockFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.clock = clock
}
