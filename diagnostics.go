package vrcore

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/panovr/vrcore/compat"
	"github.com/panovr/vrcore/fallback"
	"github.com/panovr/vrcore/faults"
	"github.com/panovr/vrcore/logging"
)

// diagnosticsWindow is the lookback for recent logs in the snapshot.
const diagnosticsWindow = 5 * time.Minute

// Diagnostics is a read-only snapshot for support and debugging tooling.
// It never participates in control flow.
type Diagnostics struct {
	SessionID       string                `json:"session_id"`
	GeneratedAt     time.Time             `json:"generated_at"`
	State           State                 `json:"state"`
	Compatibility   compat.Report         `json:"compatibility"`
	ErrorStats      faults.ErrorStats     `json:"error_stats"`
	RecoveryStats   faults.RecoveryStats  `json:"recovery_stats"`
	LogStats        logging.Stats         `json:"log_stats"`
	RecentLogs      []logging.Entry       `json:"recent_logs"`
	RecentErrors    []errorDetail         `json:"recent_errors"`
	ActiveFallbacks []fallback.Capability `json:"active_fallbacks"`
}

// errorDetail is a recent error as exposed in diagnostics. Technical detail
// (raw message, category, id) is present only when the manager is
// configured with ShowDetails; the user-facing message is always present.
type errorDetail struct {
	UserMessage string    `json:"user_message"`
	Timestamp   time.Time `json:"timestamp"`
	ID          string    `json:"id,omitempty"`
	Category    string    `json:"category,omitempty"`
	Severity    string    `json:"severity,omitempty"`
	Message     string    `json:"message,omitempty"`
}

// ExportDiagnostics serializes the current diagnostics snapshot to JSON.
func (m *Manager) ExportDiagnostics() (string, error) {
	if err := m.alive(); err != nil {
		return "", err
	}

	d := Diagnostics{
		SessionID:       m.sessionID,
		GeneratedAt:     time.Now(),
		State:           m.State(),
		Compatibility:   m.oracle.Report(),
		ErrorStats:      m.classifier.Stats(),
		RecoveryStats:   m.recovery.Stats(),
		LogStats:        m.log.Stats(),
		RecentLogs:      m.log.Recent(diagnosticsWindow),
		ActiveFallbacks: m.fallbacks.Active(),
	}
	for _, e := range m.classifier.History() {
		detail := errorDetail{
			UserMessage: e.UserMessage,
			Timestamp:   e.Timestamp,
		}
		if m.cfg.ShowDetails {
			detail.ID = e.ID
			detail.Category = string(e.Category)
			detail.Severity = string(e.Severity)
			detail.Message = e.Message
		}
		d.RecentErrors = append(d.RecentErrors, detail)
	}

	out, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return "", fmt.Errorf("export diagnostics: %w", err)
	}
	return string(out), nil
}
