// Package audit records terminal doorbell outcomes to an external sink for
// later review. Recording is strictly fire-and-forget: the orchestrator logs
// and discards recorder errors, so a broken sink can never affect an access
// decision.
//
// The matched secret itself is deliberately not part of an [Entry]; the audit
// trail stores whether access was granted, never which passphrase did it.
package audit

import (
	"context"
	"time"
)

// Entry describes one terminal doorbell outcome.
type Entry struct {
	// DeviceID is the doorbell device the event happened on.
	DeviceID string

	// Status is the terminal outcome: "success", "denied", or "error".
	Status string

	// Attempts is the number of counted passphrase attempts.
	Attempts int

	// BestScore is the highest match score observed across all attempts.
	BestScore float64

	// Reason is the denial reason code, if any.
	Reason string

	// Duration is how long the session ran.
	Duration time.Duration

	// OccurredAt is when the session started.
	OccurredAt time.Time
}

// Recorder is a sink for terminal outcome entries.
//
// Implementations must be safe for concurrent use.
type Recorder interface {
	// Record delivers one entry to the sink. Errors indicate delivery
	// failure only; callers treat them as non-fatal.
	Record(ctx context.Context, e Entry) error
}

// Noop is a Recorder that discards every entry. Used when no audit sink is
// configured.
type Noop struct{}

// Record discards e and returns nil.
func (Noop) Record(context.Context, Entry) error { return nil }

// Compile-time interface assertion.
var _ Recorder = Noop{}
