package doorbell

// Status is the terminal result category of one doorbell event.
type Status string

const (
	// StatusSuccess means a transcription matched a configured secret and
	// access was granted.
	StatusSuccess Status = "success"

	// StatusDenied means the attempt budget was exhausted without a match.
	StatusDenied Status = "denied"

	// StatusError means a collaborator failed and the session was abandoned.
	StatusError Status = "error"
)

// ReasonMaxAttempts is the denial reason reported when the attempt budget is
// exhausted. It is the only denial reason the flow produces.
const ReasonMaxAttempts = "max_attempts_exceeded"

// Outcome is the terminal result of one doorbell event. Exactly one Outcome
// is produced per event. The Status field selects which of the optional
// fields are meaningful: Secret and Score on success, Reason on denial, Err
// on error. Session is always populated.
type Outcome struct {
	// Status is the terminal result category.
	Status Status `json:"status"`

	// Secret is the configured secret that matched. Set only on success.
	Secret string `json:"matched_secret,omitempty"`

	// Score is the similarity score of the accepted match. Set only on success.
	Score float64 `json:"score,omitempty"`

	// Attempts is the number of counted attempts the session used.
	Attempts int `json:"attempts"`

	// Reason is the denial reason code. Set only on denial.
	Reason string `json:"reason,omitempty"`

	// Err is the causing error's message. Set only on error.
	Err string `json:"error,omitempty"`

	// Session is a snapshot of the session state at termination.
	Session Snapshot `json:"session"`
}
