package faults

import (
	"context"
	"sync"
	"time"

	"github.com/panovr/vrcore/logging"
	"github.com/panovr/vrcore/storage"
)

// Action tells the caller what to do after a recovery attempt.
type Action string

// Recovery actions.
const (
	// ActionRetry means the failed operation can be re-attempted.
	ActionRetry Action = "retry"
	// ActionUserIntervention means nothing can proceed without a new user
	// gesture (e.g. re-triggering a permission prompt).
	ActionUserIntervention Action = "user_intervention"
	// ActionFallback means a degraded mode has been recorded and should be
	// activated instead of full VR.
	ActionFallback Action = "fallback"
	// ActionDisabled means VR has been disabled for the session.
	ActionDisabled Action = "disabled"
	// ActionReload means the host should perform a full reload.
	ActionReload Action = "reload"
)

// Result is the outcome of a recovery attempt. Strategy handlers always
// produce a Result; their own side-effect failures are absorbed into it.
type Result struct {
	Success  bool     `json:"success"`
	Action   Action   `json:"action"`
	Strategy Strategy `json:"strategy"`
	Message  string   `json:"message"`

	// Terminal is set when the retry budget was exhausted and the fallback
	// policy ran; no further automatic recovery will happen for this
	// signature.
	Terminal bool `json:"terminal"`
}

// FallbackPolicy is the escalation performed once a signature's retry
// budget is exhausted.
type FallbackPolicy string

// Fallback policies.
const (
	// PolicyDisableVR marks VR permanently disabled for the session.
	PolicyDisableVR FallbackPolicy = "disable_vr"
	// PolicyReload asks the host to perform a full reload.
	PolicyReload FallbackPolicy = "reload"
	// PolicyClearState purges all VR/panorama-prefixed persisted flags.
	PolicyClearState FallbackPolicy = "clear_state"
)

// Default engine settings.
const (
	DefaultMaxRetries = 3
	DefaultRetryDelay = 1 * time.Second
)

// EngineConfig holds recovery engine settings.
type EngineConfig struct {
	// MaxRetries is the per-signature attempt ceiling. Defaults to
	// DefaultMaxRetries.
	MaxRetries int

	// RetryDelay is the pause before signaling a plain retry. Defaults to
	// DefaultRetryDelay.
	RetryDelay time.Duration

	// Policy is the escalation once the ceiling is exceeded. Defaults to
	// PolicyDisableVR.
	Policy FallbackPolicy

	// Store persists recovery side effects (fallback markers, disabled
	// flag). Defaults to an in-memory store.
	Store storage.FlagStore

	// Logger records recovery activity. Defaults to a discard logger.
	Logger *logging.Logger

	// Reload is invoked for PolicyReload. The core cannot reload a page;
	// the host can. Optional.
	Reload func()
}

// Engine executes recovery strategies for classified errors, tracking
// per-signature attempt counts with a ceiling and escalating to the
// configured fallback policy once the ceiling is exceeded. It is safe for
// concurrent use.
type Engine struct {
	mu        sync.Mutex
	attempts  map[string]int
	successes map[Strategy]int

	maxRetries int
	retryDelay time.Duration
	policy     FallbackPolicy
	store      storage.FlagStore
	log        *logging.Logger
	reload     func()
}

// RecoveryStats reports the engine's bookkeeping.
type RecoveryStats struct {
	// OutstandingAttempts is the sum of attempt counts across all tracked
	// signatures.
	OutstandingAttempts int `json:"outstanding_attempts"`
	// TrackedSignatures is the number of signatures currently tracked.
	TrackedSignatures int `json:"tracked_signatures"`
	// SuccessesByStrategy counts successful recoveries per strategy.
	SuccessesByStrategy map[string]int `json:"successes_by_strategy"`
}

// NewEngine creates a recovery engine.
func NewEngine(cfg EngineConfig) *Engine {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = 0
	} else if cfg.RetryDelay == 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.Policy == "" {
		cfg.Policy = PolicyDisableVR
	}
	if cfg.Store == nil {
		cfg.Store = storage.NewMemoryStore()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.New(logging.Config{})
	}
	return &Engine{
		attempts:   make(map[string]int),
		successes:  make(map[Strategy]int),
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		policy:     cfg.Policy,
		store:      cfg.Store,
		log:        cfg.Logger,
		reload:     cfg.Reload,
	}
}

// Attempt runs the recovery strategy for vrErr. If the signature's attempt
// count has reached the ceiling, the fallback policy runs instead and the
// result is terminal. A successful strategy clears the signature's counter
// so a future unrelated failure starts fresh.
//
// Strategy handlers tolerate their own storage failures: a failed side
// effect is logged and absorbed, never returned as an error.
func (e *Engine) Attempt(ctx context.Context, vrErr *VRError) Result {
	sig := Signature(vrErr.Category, vrErr.Message)

	e.mu.Lock()
	count := e.attempts[sig]
	if count >= e.maxRetries {
		e.mu.Unlock()
		e.log.Warn("recovery", "retry budget exhausted, escalating to fallback policy", map[string]any{
			"signature": sig,
			"attempts":  count,
			"policy":    string(e.policy),
		})
		return e.performFallbackPolicy(vrErr)
	}
	e.attempts[sig] = count + 1
	e.mu.Unlock()

	e.log.Info("recovery", "attempting recovery", map[string]any{
		"signature": sig,
		"attempt":   count + 1,
		"strategy":  string(vrErr.Strategy),
	})

	res := e.dispatch(ctx, vrErr)

	if res.Success {
		e.mu.Lock()
		delete(e.attempts, sig)
		e.successes[res.Strategy]++
		e.mu.Unlock()
	}
	return res
}

// ShouldRetry reports whether the signature for (category, message) still
// has retry budget, and how many attempts remain.
func (e *Engine) ShouldRetry(category Category, message string) (bool, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	remaining := e.maxRetries - e.attempts[Signature(category, message)]
	if remaining < 0 {
		remaining = 0
	}
	return remaining > 0, remaining
}

// Stats reports outstanding attempts, successes per strategy, and tracked
// signature count.
func (e *Engine) Stats() RecoveryStats {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := RecoveryStats{
		TrackedSignatures:   len(e.attempts),
		SuccessesByStrategy: make(map[string]int, len(e.successes)),
	}
	for _, n := range e.attempts {
		st.OutstandingAttempts += n
	}
	for s, n := range e.successes {
		st.SuccessesByStrategy[string(s)] = n
	}
	return st
}

// Reset clears all attempt tracking and success counters.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.attempts = make(map[string]int)
	e.successes = make(map[Strategy]int)
}

// dispatch runs the handler for the error's strategy.
func (e *Engine) dispatch(ctx context.Context, vrErr *VRError) Result {
	switch vrErr.Strategy {
	case StrategyRetry:
		return e.recoverRetry(ctx)
	case StrategyResetPermissions:
		return e.recoverResetPermissions()
	case StrategyReinitializePlugin:
		return e.recoverReinitializePlugin()
	case StrategyFallbackMode:
		return e.recoverFallbackMode(vrErr)
	case StrategyUserIntervention:
		return Result{
			Success:  false,
			Action:   ActionUserIntervention,
			Strategy: StrategyUserIntervention,
			Message:  "user action required",
		}
	default:
		return e.recoverGenericReset(vrErr.Strategy)
	}
}

// recoverRetry waits the configured delay, then signals a plain retry.
func (e *Engine) recoverRetry(ctx context.Context) Result {
	if e.retryDelay > 0 {
		t := time.NewTimer(e.retryDelay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return Result{
				Success:  false,
				Action:   ActionRetry,
				Strategy: StrategyRetry,
				Message:  "retry delay interrupted: " + ctx.Err().Error(),
			}
		}
	}
	return Result{
		Success:  true,
		Action:   ActionRetry,
		Strategy: StrategyRetry,
		Message:  "ready to retry",
	}
}

// recoverResetPermissions clears cached permission flags. The user must
// re-trigger the prompt: platforms only show it on a fresh gesture.
func (e *Engine) recoverResetPermissions() Result {
	e.deleteFlag(storage.KeyGyroscopePermission)
	e.deleteFlag(storage.KeyDeviceMotionPermission)
	return Result{
		Success:  true,
		Action:   ActionUserIntervention,
		Strategy: StrategyResetPermissions,
		Message:  "cached permissions cleared, user gesture required",
	}
}

// recoverReinitializePlugin clears the cached plugin-state flag.
func (e *Engine) recoverReinitializePlugin() Result {
	e.deleteFlag(storage.KeyPluginState)
	return Result{
		Success:  true,
		Action:   ActionRetry,
		Strategy: StrategyReinitializePlugin,
		Message:  "plugin state cleared, ready to retry",
	}
}

// recoverFallbackMode records the degraded mode and its reason.
func (e *Engine) recoverFallbackMode(vrErr *VRError) Result {
	e.setFlag(storage.KeyFallbackMode, "true")
	e.setFlag(storage.KeyFallbackReason, vrErr.Message)
	return Result{
		Success:  true,
		Action:   ActionFallback,
		Strategy: StrategyFallbackMode,
		Message:  "fallback mode recorded",
	}
}

// recoverGenericReset purges all VR-prefixed persisted state as a generic
// reset for unrecognized strategies.
func (e *Engine) recoverGenericReset(s Strategy) Result {
	if n, err := e.store.DeleteMatching(storage.SweepTokens...); err != nil {
		e.log.Warn("recovery", "state sweep failed", map[string]any{"error": err.Error()})
	} else {
		e.log.Info("recovery", "generic state reset", map[string]any{"removed": n})
	}
	return Result{
		Success:  true,
		Action:   ActionRetry,
		Strategy: s,
		Message:  "state reset, ready to retry",
	}
}

// performFallbackPolicy executes the configured escalation. Always terminal.
func (e *Engine) performFallbackPolicy(vrErr *VRError) Result {
	res := Result{
		Success:  false,
		Strategy: vrErr.Strategy,
		Terminal: true,
	}

	switch e.policy {
	case PolicyReload:
		res.Action = ActionReload
		res.Message = "retry budget exhausted, reload requested"
		if e.reload != nil {
			e.reload()
		}
	case PolicyClearState:
		res.Action = ActionRetry
		res.Message = "retry budget exhausted, persisted state cleared"
		if _, err := e.store.DeleteMatching(storage.SweepTokens...); err != nil {
			e.log.Warn("recovery", "state sweep failed", map[string]any{"error": err.Error()})
		}
	default: // PolicyDisableVR
		res.Action = ActionDisabled
		res.Message = "retry budget exhausted, VR disabled for this session"
		e.setFlag(storage.KeyDisabled, "true")
	}
	return res
}

// setFlag writes a flag, absorbing storage failures.
func (e *Engine) setFlag(key, value string) {
	if err := e.store.Set(key, value); err != nil {
		e.log.Warn("recovery", "flag write failed", map[string]any{
			"key":   key,
			"error": err.Error(),
		})
	}
}

// deleteFlag removes a flag, absorbing storage failures.
func (e *Engine) deleteFlag(key string) {
	if err := e.store.Delete(key); err != nil {
		e.log.Warn("recovery", "flag delete failed", map[string]any{
			"key":   key,
			"error": err.Error(),
		})
	}
}
