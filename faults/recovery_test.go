package faults

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/panovr/vrcore/storage"
)

// failingStore fails every mutation while reporting reads as absent.
type failingStore struct{}

func (failingStore) Get(string) (string, bool, error)      { return "", false, nil }
func (failingStore) Set(string, string) error              { return errors.New("disk full") }
func (failingStore) Delete(string) error                   { return errors.New("disk full") }
func (failingStore) Keys() ([]string, error)               { return nil, nil }
func (failingStore) DeleteMatching(...string) (int, error) { return 0, errors.New("disk full") }

func testEngine(t *testing.T, cfg EngineConfig) (*Engine, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	if cfg.Store == nil {
		cfg.Store = store
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Millisecond
	}
	return NewEngine(cfg), store
}

func classified(category Category, message string) *VRError {
	return NewClassifier(0).New(category, message, nil, nil)
}

func TestAttemptStrategyActions(t *testing.T) {
	cases := []struct {
		name        string
		category    Category
		wantAction  Action
		wantSuccess bool
	}{
		{"timeout retries", CategoryTimeout, ActionRetry, true},
		{"permission needs gesture", CategoryPermission, ActionUserIntervention, true},
		{"plugin reinitializes", CategoryPlugin, ActionRetry, true},
		{"compatibility falls back", CategoryCompatibility, ActionFallback, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e, _ := testEngine(t, EngineConfig{})
			res := e.Attempt(context.Background(), classified(tc.category, "boom"))
			if res.Action != tc.wantAction || res.Success != tc.wantSuccess {
				t.Errorf("Attempt = {Action:%s Success:%v}, want {%s %v}",
					res.Action, res.Success, tc.wantAction, tc.wantSuccess)
			}
			if res.Terminal {
				t.Error("first attempt must not be terminal")
			}
		})
	}
}

func TestResetPermissionsClearsFlags(t *testing.T) {
	e, store := testEngine(t, EngineConfig{})
	store.Set(storage.KeyGyroscopePermission, "granted")
	store.Set(storage.KeyDeviceMotionPermission, "granted")

	res := e.Attempt(context.Background(), classified(CategoryPermission, "permission denied"))
	if !res.Success || res.Action != ActionUserIntervention {
		t.Fatalf("Attempt = %+v", res)
	}
	if _, ok, _ := store.Get(storage.KeyGyroscopePermission); ok {
		t.Error("gyroscope permission flag not cleared")
	}
	if _, ok, _ := store.Get(storage.KeyDeviceMotionPermission); ok {
		t.Error("device motion permission flag not cleared")
	}
}

func TestFallbackModeRecordsReason(t *testing.T) {
	e, store := testEngine(t, EngineConfig{})

	e.Attempt(context.Background(), classified(CategoryCompatibility, "webxr unavailable"))

	if v, _, _ := store.Get(storage.KeyFallbackMode); v != "true" {
		t.Errorf("fallback mode flag = %q, want true", v)
	}
	if v, _, _ := store.Get(storage.KeyFallbackReason); v != "webxr unavailable" {
		t.Errorf("fallback reason = %q", v)
	}
}

func TestReinitializePluginClearsState(t *testing.T) {
	e, store := testEngine(t, EngineConfig{})
	store.Set(storage.KeyPluginState, "stereo-active")

	res := e.Attempt(context.Background(), classified(CategoryPlugin, "stereo toggle failed"))
	if !res.Success || res.Action != ActionRetry {
		t.Fatalf("Attempt = %+v", res)
	}
	if _, ok, _ := store.Get(storage.KeyPluginState); ok {
		t.Error("plugin state flag not cleared")
	}
}

func TestRetryBudgetExhaustionDisablesVR(t *testing.T) {
	e, store := testEngine(t, EngineConfig{MaxRetries: 2})
	// StrategyUserIntervention never succeeds, so the counter keeps growing.
	vrErr := classified(CategoryPermission, "permission denied")
	vrErr.Strategy = StrategyUserIntervention

	for i := 0; i < 2; i++ {
		res := e.Attempt(context.Background(), vrErr)
		if res.Terminal {
			t.Fatalf("attempt %d already terminal", i+1)
		}
	}

	res := e.Attempt(context.Background(), vrErr)
	if !res.Terminal || res.Action != ActionDisabled || res.Success {
		t.Fatalf("exhausted Attempt = %+v, want terminal ActionDisabled", res)
	}
	if v, _, _ := store.Get(storage.KeyDisabled); v != "true" {
		t.Errorf("disabled flag = %q, want true", v)
	}
}

func TestPolicyReloadInvokesCallback(t *testing.T) {
	reloads := 0
	e, _ := testEngine(t, EngineConfig{MaxRetries: 1, Policy: PolicyReload, Reload: func() { reloads++ }})
	vrErr := classified(CategoryPermission, "permission denied")
	vrErr.Strategy = StrategyUserIntervention

	e.Attempt(context.Background(), vrErr)
	res := e.Attempt(context.Background(), vrErr)
	if !res.Terminal || res.Action != ActionReload {
		t.Fatalf("Attempt = %+v", res)
	}
	if reloads != 1 {
		t.Errorf("reload called %d times, want 1", reloads)
	}
}

func TestPolicyClearStateSweeps(t *testing.T) {
	e, store := testEngine(t, EngineConfig{MaxRetries: 1, Policy: PolicyClearState})
	store.Set("vr-something", "x")
	store.Set("host-theme", "dark")
	vrErr := classified(CategoryPermission, "permission denied")
	vrErr.Strategy = StrategyUserIntervention

	e.Attempt(context.Background(), vrErr)
	res := e.Attempt(context.Background(), vrErr)
	if !res.Terminal || res.Action != ActionRetry {
		t.Fatalf("Attempt = %+v", res)
	}
	if _, ok, _ := store.Get("vr-something"); ok {
		t.Error("vr-prefixed key survived clear_state")
	}
	if _, ok, _ := store.Get("host-theme"); !ok {
		t.Error("unrelated key swept by clear_state")
	}
}

func TestSuccessClearsSignatureBudget(t *testing.T) {
	e, _ := testEngine(t, EngineConfig{MaxRetries: 2})
	vrErr := classified(CategoryTimeout, "timeout waiting for stereo")

	for i := 0; i < 5; i++ {
		res := e.Attempt(context.Background(), vrErr)
		if !res.Success || res.Terminal {
			t.Fatalf("attempt %d: %+v, success must reset the budget", i+1, res)
		}
	}
	if ok, remaining := e.ShouldRetry(vrErr.Category, vrErr.Message); !ok || remaining != 2 {
		t.Errorf("ShouldRetry = (%v, %d), want full budget after successes", ok, remaining)
	}
}

func TestShouldRetry(t *testing.T) {
	e, _ := testEngine(t, EngineConfig{MaxRetries: 2})
	vrErr := classified(CategoryPermission, "permission denied")
	vrErr.Strategy = StrategyUserIntervention

	if ok, remaining := e.ShouldRetry(vrErr.Category, vrErr.Message); !ok || remaining != 2 {
		t.Fatalf("ShouldRetry before attempts = (%v, %d)", ok, remaining)
	}
	e.Attempt(context.Background(), vrErr)
	if ok, remaining := e.ShouldRetry(vrErr.Category, vrErr.Message); !ok || remaining != 1 {
		t.Fatalf("ShouldRetry after one attempt = (%v, %d)", ok, remaining)
	}
	e.Attempt(context.Background(), vrErr)
	if ok, remaining := e.ShouldRetry(vrErr.Category, vrErr.Message); ok || remaining != 0 {
		t.Fatalf("ShouldRetry at ceiling = (%v, %d)", ok, remaining)
	}
}

func TestRetryRespectsContext(t *testing.T) {
	e, _ := testEngine(t, EngineConfig{RetryDelay: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := e.Attempt(ctx, classified(CategoryTimeout, "timeout"))
	if res.Success {
		t.Fatalf("Attempt = %+v, want interrupted retry", res)
	}
	if res.Action != ActionRetry {
		t.Errorf("Action = %s, want retry", res.Action)
	}
}

func TestStorageFailuresAbsorbed(t *testing.T) {
	e := NewEngine(EngineConfig{Store: failingStore{}, RetryDelay: time.Millisecond})

	for _, cat := range []Category{CategoryPermission, CategoryPlugin, CategoryCompatibility} {
		res := e.Attempt(context.Background(), classified(cat, "boom "+string(cat)))
		if !res.Success {
			t.Errorf("%s: Attempt = %+v, storage failure must be absorbed", cat, res)
		}
	}
}

func TestStatsAndReset(t *testing.T) {
	e, _ := testEngine(t, EngineConfig{})
	vrErr := classified(CategoryPermission, "permission denied")
	vrErr.Strategy = StrategyUserIntervention
	e.Attempt(context.Background(), vrErr)
	e.Attempt(context.Background(), classified(CategoryTimeout, "timeout"))

	st := e.Stats()
	if st.TrackedSignatures != 1 || st.OutstandingAttempts != 1 {
		t.Errorf("Stats = %+v, want one outstanding signature", st)
	}
	if st.SuccessesByStrategy["retry"] != 1 {
		t.Errorf("SuccessesByStrategy = %v", st.SuccessesByStrategy)
	}

	e.Reset()
	st = e.Stats()
	if st.TrackedSignatures != 0 || st.OutstandingAttempts != 0 || len(st.SuccessesByStrategy) != 0 {
		t.Errorf("Stats after Reset = %+v", st)
	}
}
