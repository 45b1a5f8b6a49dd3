package doorbell

import "time"

// Session holds the mutable state of one visitor interaction: how many
// counted attempts were made, what was transcribed, and how each attempt
// scored. A Session is created when a doorbell event starts, owned exclusively
// by the [Orchestrator] for the event's lifetime, and discarded when the event
// reaches a terminal outcome. It is never persisted.
//
// Invariant: len(Transcriptions) == len(Scores) <= Attempts.
type Session struct {
	// DeviceID is the doorbell device this session belongs to.
	DeviceID string

	// Attempts is the number of counted record→transcribe→match cycles so
	// far. Recording rounds that captured no audio do not count.
	Attempts int

	// MaxAttempts is the attempt budget, read once at session creation and
	// never changed afterwards, even if configuration changes concurrently.
	MaxAttempts int

	// StartedAt is when the doorbell event began.
	StartedAt time.Time

	// Transcriptions holds the transcription text of every counted attempt,
	// in order, including empty transcriptions.
	Transcriptions []string

	// Scores holds the match score of every counted attempt, in order.
	Scores []float64
}

// NewSession creates a Session for one doorbell event on the given device.
func NewSession(deviceID string, maxAttempts int) *Session {
	return &Session{
		DeviceID:    deviceID,
		MaxAttempts: maxAttempts,
		StartedAt:   time.Now(),
	}
}

// Remaining reports how many counted attempts are left in the budget.
func (s *Session) Remaining() int {
	return s.MaxAttempts - s.Attempts
}

// Snapshot returns an immutable copy of the session state for inclusion in a
// terminal [Outcome] and in API responses.
func (s *Session) Snapshot() Snapshot {
	return Snapshot{
		DeviceID:       s.DeviceID,
		Attempts:       s.Attempts,
		MaxAttempts:    s.MaxAttempts,
		Duration:       time.Since(s.StartedAt),
		Transcriptions: append([]string(nil), s.Transcriptions...),
		Scores:         append([]float64(nil), s.Scores...),
	}
}

// Snapshot is a read-only copy of a [Session], taken when the session reaches
// a terminal state. It exists for observability; it carries no live state.
type Snapshot struct {
	DeviceID       string        `json:"device_id"`
	Attempts       int           `json:"attempts"`
	MaxAttempts    int           `json:"max_attempts"`
	Duration       time.Duration `json:"duration"`
	Transcriptions []string      `json:"transcriptions"`
	Scores         []float64     `json:"scores"`
}
