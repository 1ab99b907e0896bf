// Package faults defines the VR error taxonomy and the machinery that turns
// raw failures into typed errors with a severity, a user-facing message and
// a recovery strategy, plus the recovery engine that executes those
// strategies against a bounded per-signature retry budget.
package faults

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Category identifies what kind of failure occurred. Each category has a
// materially different recovery action and user message.
type Category string

// Error categories.
const (
	CategoryPermission    Category = "permission"
	CategoryPlugin        Category = "plugin"
	CategoryTimeout       Category = "timeout"
	CategoryCompatibility Category = "compatibility"
)

// Severity indicates how serious a classified error is.
type Severity string

// Severities.
const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Strategy names the remediation action associated with an error.
type Strategy string

// Recovery strategies.
const (
	StrategyRetry              Strategy = "retry"
	StrategyResetPermissions   Strategy = "reset_permissions"
	StrategyReinitializePlugin Strategy = "reinitialize_plugin"
	StrategyFallbackMode       Strategy = "fallback_mode"
	StrategyUserIntervention   Strategy = "user_intervention"
	StrategyNone               Strategy = "none"
)

// VRError is an immutable classified failure. It is created exclusively by
// a Classifier and never mutated afterwards.
type VRError struct {
	ID          string         `json:"id"`
	Category    Category       `json:"category"`
	Severity    Severity       `json:"severity"`
	Message     string         `json:"message"`
	UserMessage string         `json:"user_message"`
	Strategy    Strategy       `json:"recovery_strategy"`
	Err         error          `json:"-"`
	Context     map[string]any `json:"context,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}

// Error implements the error interface using the technical message.
func (e *VRError) Error() string {
	return string(e.Category) + ": " + e.Message
}

// Unwrap returns the original error, if any.
func (e *VRError) Unwrap() error {
	return e.Err
}

// traits is the fixed per-category derivation of severity, strategy and
// user-facing message.
type traits struct {
	severity    Severity
	strategy    Strategy
	userMessage string
}

var categoryTraits = map[Category]traits{
	CategoryPermission: {
		severity:    SeverityMedium,
		strategy:    StrategyResetPermissions,
		userMessage: "Motion access was not granted. Tap the VR button again to allow it.",
	},
	CategoryPlugin: {
		severity:    SeverityHigh,
		strategy:    StrategyReinitializePlugin,
		userMessage: "The VR view could not start. Please try again.",
	},
	CategoryTimeout: {
		severity:    SeverityMedium,
		strategy:    StrategyRetry,
		userMessage: "Starting VR took too long. Please try again.",
	},
	CategoryCompatibility: {
		severity:    SeverityLow,
		strategy:    StrategyFallbackMode,
		userMessage: "VR mode is not fully supported on this device. A simplified view will be used.",
	},
}

// keywordRule maps lower-cased message/stack keywords to a category.
// Rules are checked in order; the first rule with a matching keyword wins.
type keywordRule struct {
	category Category
	keywords []string
}

// keywordRules is the auditable classification table for raw failures.
// Keywords are matched against the lower-cased error text.
var keywordRules = []keywordRule{
	{CategoryPermission, []string{"permission", "gyroscope", "devicemotion"}},
	{CategoryPlugin, []string{"stereo", "plugin"}},
	{CategoryTimeout, []string{"timeout"}},
	{CategoryCompatibility, []string{"webxr", "fullscreen", "unsupported"}},
}

// CategorizeText maps raw failure text onto a Category using the keyword
// table. Unmatched text defaults to CategoryCompatibility. The function is
// pure; it is the single place free-text classification happens.
func CategorizeText(text string) Category {
	lower := strings.ToLower(text)
	for _, rule := range keywordRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.category
			}
		}
	}
	return CategoryCompatibility
}

// signatureMessageLen bounds how much of the message participates in the
// retry signature, so messages that differ only in volatile detail (IDs,
// durations) collapse to one budget.
const signatureMessageLen = 50

// Signature derives the retry-budget key shared by the classifier and the
// recovery engine.
func Signature(category Category, message string) string {
	if len(message) > signatureMessageLen {
		message = message[:signatureMessageLen]
	}
	return string(category) + ":" + message
}

// recentWindow is the lookback used for the "recent errors" statistic.
const recentWindow = 5 * time.Minute

// DefaultMaxHistory bounds the classifier's retained error window.
const DefaultMaxHistory = 50

// ErrorStats aggregates what the classifier has observed.
type ErrorStats struct {
	Total      int            `json:"total"`
	ByCategory map[string]int `json:"by_category"`
	BySeverity map[string]int `json:"by_severity"`
	Recent     int            `json:"recent"`
}

// clockFunc returns the current time. Tests inject a controllable clock.
type clockFunc func() time.Time

// Classifier creates VRError values and keeps a bounded window of recent
// errors with per-category and per-severity counters. It is safe for
// concurrent use.
type Classifier struct {
	mu         sync.Mutex
	history    []*VRError
	byCategory map[Category]int
	bySeverity map[Severity]int
	total      int

	maxHistory int
	clock      clockFunc
}

// NewClassifier creates a Classifier retaining up to maxHistory recent
// errors. A non-positive maxHistory uses DefaultMaxHistory.
func NewClassifier(maxHistory int) *Classifier {
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistory
	}
	return &Classifier{
		byCategory: make(map[Category]int),
		bySeverity: make(map[Severity]int),
		maxHistory: maxHistory,
		clock:      time.Now,
	}
}

// New creates a classified error for an explicitly known category. Severity,
// strategy and user message are derived solely from the category.
func (c *Classifier) New(category Category, message string, original error, context map[string]any) *VRError {
	tr, ok := categoryTraits[category]
	if !ok {
		category = CategoryCompatibility
		tr = categoryTraits[CategoryCompatibility]
	}

	vrErr := &VRError{
		ID:          uuid.New().String(),
		Category:    category,
		Severity:    tr.severity,
		Message:     message,
		UserMessage: tr.userMessage,
		Strategy:    tr.strategy,
		Err:         original,
		Context:     context,
		Timestamp:   c.now(),
	}

	c.record(vrErr)
	return vrErr
}

// FromError classifies a raw error by scanning its text against the keyword
// table, then creates the typed error for the matched category.
func (c *Classifier) FromError(err error, context map[string]any) *VRError {
	if vrErr, ok := err.(*VRError); ok {
		// Already classified; record without re-deriving.
		c.record(vrErr)
		return vrErr
	}
	return c.New(CategorizeText(err.Error()), err.Error(), err, context)
}

// Stats returns aggregate counters, including errors observed within the
// last five minutes.
func (c *Classifier) Stats() ErrorStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := ErrorStats{
		Total:      c.total,
		ByCategory: make(map[string]int, len(c.byCategory)),
		BySeverity: make(map[string]int, len(c.bySeverity)),
	}
	for cat, n := range c.byCategory {
		st.ByCategory[string(cat)] = n
	}
	for sev, n := range c.bySeverity {
		st.BySeverity[string(sev)] = n
	}

	cutoff := c.clock().Add(-recentWindow)
	for _, e := range c.history {
		if e.Timestamp.After(cutoff) {
			st.Recent++
		}
	}
	return st
}

// History returns a copy of the retained error window, oldest first.
func (c *Classifier) History() []*VRError {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*VRError(nil), c.history...)
}

// Reset clears history and counters.
func (c *Classifier) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = nil
	c.byCategory = make(map[Category]int)
	c.bySeverity = make(map[Severity]int)
	c.total = 0
}

// record appends an error to the bounded history and bumps counters.
func (c *Classifier) record(vrErr *VRError) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.history = append(c.history, vrErr)
	if len(c.history) > c.maxHistory {
		c.history = append(c.history[:0:0], c.history[len(c.history)-c.maxHistory:]...)
	}
	c.byCategory[vrErr.Category]++
	c.bySeverity[vrErr.Severity]++
	c.total++
}

// now returns the classifier's current time.
func (c *Classifier) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clock()
}

// setClockForTesting replaces the clock for deterministic tests.
func (c *Classifier) setClockForTesting(clock clockFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clock = clock
}
