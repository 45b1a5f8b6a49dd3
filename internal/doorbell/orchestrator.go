// Package doorbell implements the voice authentication flow for a single
// doorbell event: greet the visitor, record a spoken passphrase, transcribe
// it, match it against the configured secrets, and retry until the attempt
// budget runs out.
//
// The [Orchestrator] owns the state machine
//
//	Greeting → Listening → Transcribing → Deciding →
//	    {Granting | Retrying | Denying | Failing}
//
// and drives one [Session] per event through it. A recording round that
// captures no usable audio re-enters Listening without consuming an attempt;
// every other collaborator failure is caught once at the top of
// [Orchestrator.HandleEvent] and converted into a terminal error [Outcome] —
// it never escapes to the caller, since an unreported failure would leave a
// visitor standing at the door with no feedback.
//
// Concurrency: events for different devices run independently. A second event
// for a device whose session is still live is rejected with
// [ErrSessionActive] rather than queued — a doorbell is a physical
// interaction and two interleaved conversations on one speaker would be
// gibberish. The live-session registry is the only shared mutable state and
// is released on every exit path.
package doorbell

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/doorwarden/internal/audit"
	"github.com/MrWong99/doorwarden/internal/match"
	"github.com/MrWong99/doorwarden/internal/observe"
	"github.com/MrWong99/doorwarden/pkg/device"
	"github.com/MrWong99/doorwarden/pkg/provider/stt"
)

// ErrSessionActive is returned by [Orchestrator.HandleEvent] when a session
// for the same device is still running.
var ErrSessionActive = errors.New("doorbell: session already active for device")

// Prompts holds the audio references the orchestrator plays at each stage of
// the flow. An empty reference skips that playback.
type Prompts struct {
	// Greeting asks the visitor for the passphrase.
	Greeting string

	// Welcome confirms access was granted.
	Welcome string

	// Wrong tells the visitor the passphrase was not accepted.
	Wrong string

	// Retry asks the visitor to speak again. Also played after a recording
	// round that captured no usable audio.
	Retry string

	// Denied tells the visitor access was refused.
	Denied string

	// Error is played best-effort when the session fails.
	Error string
}

// Config holds the per-session parameters of the flow. All values are read
// once at session creation; changing the source configuration mid-session has
// no effect on running sessions.
type Config struct {
	// Secrets is the ordered passphrase list. Must be non-empty.
	Secrets []string

	// Threshold is the minimum similarity score (0–100) for accepting a
	// fuzzy or phonetic match.
	Threshold float64

	// MaxAttempts is the attempt budget per session. Must be > 0.
	MaxAttempts int

	// RecordDuration is how long each recording round captures audio.
	// Must be > 0.
	RecordDuration time.Duration

	// CallTimeout bounds each collaborator call (play, record, transcribe).
	// Zero disables the bound. A timeout fails the session — an unbounded
	// block on audio hardware would hold the device registry slot forever.
	CallTimeout time.Duration

	// Prompts are the audio clips played during the flow.
	Prompts Prompts
}

// Option is a functional option for [New].
type Option func(*Orchestrator)

// WithMetrics injects a metrics instance instead of the package default.
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithAuditRecorder injects an audit sink for terminal outcomes.
// Default: [audit.Noop].
func WithAuditRecorder(r audit.Recorder) Option {
	return func(o *Orchestrator) { o.audit = r }
}

// Orchestrator drives doorbell events through the authentication flow. All
// exported methods are safe for concurrent use.
type Orchestrator struct {
	cfg         Config
	platform    device.Platform
	transcriber stt.Transcriber
	matcher     *match.Matcher
	metrics     *observe.Metrics
	audit       audit.Recorder

	mu     sync.Mutex
	active map[string]struct{}
}

// New creates an Orchestrator with the given configuration and collaborators.
// Returns an error when the configuration is incoherent.
func New(cfg Config, platform device.Platform, transcriber stt.Transcriber, opts ...Option) (*Orchestrator, error) {
	var errs []error
	if len(cfg.Secrets) == 0 {
		errs = append(errs, errors.New("secrets must not be empty"))
	}
	if cfg.Threshold < 0 || cfg.Threshold > 100 {
		errs = append(errs, fmt.Errorf("threshold %v is out of range [0, 100]", cfg.Threshold))
	}
	if cfg.MaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("max attempts %d must be > 0", cfg.MaxAttempts))
	}
	if cfg.RecordDuration <= 0 {
		errs = append(errs, fmt.Errorf("record duration %v must be > 0", cfg.RecordDuration))
	}
	if platform == nil {
		errs = append(errs, errors.New("device platform is required"))
	}
	if transcriber == nil {
		errs = append(errs, errors.New("transcriber is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("doorbell: %w", err)
	}

	o := &Orchestrator{
		cfg:         cfg,
		platform:    platform,
		transcriber: transcriber,
		matcher:     match.New(cfg.Secrets, match.WithThreshold(cfg.Threshold)),
		audit:       audit.Noop{},
		active:      make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.metrics == nil {
		o.metrics = observe.DefaultMetrics()
	}
	return o, nil
}

// Matcher returns the passphrase matcher bound to this orchestrator's
// configuration. Used by the HTTP check endpoint.
func (o *Orchestrator) Matcher() *match.Matcher { return o.matcher }

// ActiveSessions returns the number of currently running sessions.
func (o *Orchestrator) ActiveSessions() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.active)
}

// HandleEvent runs the full authentication flow for one doorbell press on
// deviceID and returns its terminal [Outcome]. It blocks until the session
// reaches a terminal state.
//
// Collaborator failures do not surface as errors — they are folded into an
// error-status Outcome. The only error HandleEvent returns is
// [ErrSessionActive], when a session for the same device is still live.
// Calling HandleEvent again after a session concluded starts an unrelated
// fresh session; no state carries over.
func (o *Orchestrator) HandleEvent(ctx context.Context, deviceID string) (Outcome, error) {
	if err := o.reserve(deviceID); err != nil {
		return Outcome{}, err
	}
	o.metrics.ActiveSessions.Add(ctx, 1)
	defer func() {
		// Guaranteed registry cleanup on every exit path.
		o.release(deviceID)
		o.metrics.ActiveSessions.Add(ctx, -1)
	}()

	ctx, span := observe.StartSpan(ctx, "doorbell.event",
		trace.WithAttributes(attribute.String("device", deviceID)),
	)
	defer span.End()

	logger := observe.Logger(ctx).With("device", deviceID)
	logger.Info("doorbell event started")

	sess := NewSession(deviceID, o.cfg.MaxAttempts)

	outcome, err := o.run(ctx, sess)
	if err != nil {
		logger.Error("doorbell flow failed", "err", err)
		o.playErrorPrompt(ctx, deviceID)
		outcome = Outcome{
			Status:   StatusError,
			Err:      err.Error(),
			Attempts: sess.Attempts,
			Session:  sess.Snapshot(),
		}
	}

	span.SetAttributes(
		attribute.String("status", string(outcome.Status)),
		attribute.Int("attempts", outcome.Attempts),
	)
	o.metrics.RecordOutcome(ctx, deviceID, string(outcome.Status))
	o.metrics.SessionDuration.Record(ctx, outcome.Session.Duration.Seconds(),
		metric.WithAttributes(attribute.String("device", deviceID)),
	)
	o.recordAudit(ctx, outcome)

	logger.Info("doorbell event finished",
		"status", outcome.Status,
		"attempts", outcome.Attempts,
		"duration", outcome.Session.Duration,
	)
	return outcome, nil
}

// run executes the state machine for one session. It returns a terminal
// Outcome for the expected endings (success, denial) and an error for
// collaborator faults, which HandleEvent converts into the error Outcome.
func (o *Orchestrator) run(ctx context.Context, sess *Session) (Outcome, error) {
	logger := observe.Logger(ctx).With("device", sess.DeviceID)

	// Greeting.
	if err := o.play(ctx, sess.DeviceID, o.cfg.Prompts.Greeting); err != nil {
		return Outcome{}, fmt.Errorf("play greeting: %w", err)
	}

	for sess.Attempts < sess.MaxAttempts {
		if err := ctx.Err(); err != nil {
			return Outcome{}, fmt.Errorf("session cancelled: %w", err)
		}

		// Listening.
		ref, ok, err := o.record(ctx, sess.DeviceID)
		if err != nil {
			return Outcome{}, fmt.Errorf("record: %w", err)
		}
		if !ok {
			// No usable audio. Re-prompt and listen again; a silent
			// round is not a wrong-password attempt.
			logger.Info("no audio captured, re-prompting")
			o.metrics.NoAudioRounds.Add(ctx, 1,
				metric.WithAttributes(attribute.String("device", sess.DeviceID)),
			)
			if err := o.play(ctx, sess.DeviceID, o.cfg.Prompts.Retry); err != nil {
				return Outcome{}, fmt.Errorf("play retry prompt: %w", err)
			}
			continue
		}

		// Transcribing. The attempt is committed before transcription:
		// once the visitor has spoken, the attempt counts even if the
		// transcription turns out empty.
		sess.Attempts++
		logger.Info("attempt started", "attempt", sess.Attempts, "max_attempts", sess.MaxAttempts)

		transcript, err := o.transcribe(ctx, ref)
		if err != nil {
			return Outcome{}, fmt.Errorf("transcribe: %w", err)
		}
		sess.Transcriptions = append(sess.Transcriptions, transcript.Text)

		// Deciding.
		res := o.check(ctx, transcript.Text)
		sess.Scores = append(sess.Scores, res.Score)
		o.metrics.RecordAttempt(ctx, sess.DeviceID, res.Matched)
		logger.Info("attempt decided",
			"attempt", sess.Attempts,
			"matched", res.Matched,
			"score", res.Score,
			"strategy", res.Strategy,
		)

		if res.Matched {
			// Granting.
			if err := o.play(ctx, sess.DeviceID, o.cfg.Prompts.Welcome); err != nil {
				return Outcome{}, fmt.Errorf("play welcome: %w", err)
			}
			return Outcome{
				Status:   StatusSuccess,
				Secret:   res.Secret,
				Score:    res.Score,
				Attempts: sess.Attempts,
				Session:  sess.Snapshot(),
			}, nil
		}

		// Retrying.
		if sess.Remaining() > 0 {
			if err := o.play(ctx, sess.DeviceID, o.cfg.Prompts.Wrong); err != nil {
				return Outcome{}, fmt.Errorf("play wrong prompt: %w", err)
			}
			if err := o.play(ctx, sess.DeviceID, o.cfg.Prompts.Retry); err != nil {
				return Outcome{}, fmt.Errorf("play retry prompt: %w", err)
			}
		}
	}

	// Denying.
	if err := o.play(ctx, sess.DeviceID, o.cfg.Prompts.Denied); err != nil {
		return Outcome{}, fmt.Errorf("play denied prompt: %w", err)
	}
	return Outcome{
		Status:   StatusDenied,
		Reason:   ReasonMaxAttempts,
		Attempts: sess.Attempts,
		Session:  sess.Snapshot(),
	}, nil
}

// reserve claims the registry slot for deviceID.
func (o *Orchestrator) reserve(deviceID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, taken := o.active[deviceID]; taken {
		return fmt.Errorf("%w: %s", ErrSessionActive, deviceID)
	}
	o.active[deviceID] = struct{}{}
	return nil
}

// release frees the registry slot for deviceID.
func (o *Orchestrator) release(deviceID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.active, deviceID)
}

// callCtx derives a context with the configured per-call timeout.
func (o *Orchestrator) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.cfg.CallTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.cfg.CallTimeout)
}

// play plays one prompt clip on the device. An empty ref is skipped.
func (o *Orchestrator) play(ctx context.Context, deviceID, ref string) error {
	if ref == "" {
		return nil
	}
	ctx, cancel := o.callCtx(ctx)
	defer cancel()

	ctx, span := observe.StartSpan(ctx, "device.play",
		trace.WithAttributes(attribute.String("audio_ref", ref)),
	)
	defer span.End()

	start := time.Now()
	err := o.platform.Play(ctx, deviceID, ref)
	o.metrics.PlaybackDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("device", deviceID)),
	)
	return err
}

// record captures one recording round from the device.
func (o *Orchestrator) record(ctx context.Context, deviceID string) (string, bool, error) {
	ctx, cancel := o.callCtx(ctx)
	defer cancel()

	ctx, span := observe.StartSpan(ctx, "device.record")
	defer span.End()

	start := time.Now()
	ref, ok, err := o.platform.Record(ctx, deviceID, o.cfg.RecordDuration)
	o.metrics.RecordDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("device", deviceID)),
	)
	return ref, ok, err
}

// transcribe converts one recorded clip into text.
func (o *Orchestrator) transcribe(ctx context.Context, ref string) (stt.Transcript, error) {
	ctx, cancel := o.callCtx(ctx)
	defer cancel()

	ctx, span := observe.StartSpan(ctx, "stt.transcribe")
	defer span.End()

	start := time.Now()
	transcript, err := o.transcriber.Transcribe(ctx, ref)
	o.metrics.STTDuration.Record(ctx, time.Since(start).Seconds())
	return transcript, err
}

// check runs the matcher over one transcription.
func (o *Orchestrator) check(ctx context.Context, text string) match.Result {
	ctx, span := observe.StartSpan(ctx, "match.check")
	defer span.End()

	start := time.Now()
	res := o.matcher.Check(text)
	o.metrics.MatchDuration.Record(ctx, time.Since(start).Seconds())
	return res
}

// playErrorPrompt plays the generic failure prompt best-effort. Playback
// failure is swallowed to avoid an error loop; the session context may
// already be cancelled, so the call runs detached with its own bound.
func (o *Orchestrator) playErrorPrompt(ctx context.Context, deviceID string) {
	if o.cfg.Prompts.Error == "" {
		return
	}
	detached := context.WithoutCancel(ctx)
	if err := o.play(detached, deviceID, o.cfg.Prompts.Error); err != nil {
		observe.Logger(ctx).Warn("error prompt playback failed", "device", deviceID, "err", err)
	}
}

// recordAudit delivers the outcome to the audit sink, fire-and-forget.
func (o *Orchestrator) recordAudit(ctx context.Context, outcome Outcome) {
	var best float64
	for _, s := range outcome.Session.Scores {
		if s > best {
			best = s
		}
	}
	entry := audit.Entry{
		DeviceID:   outcome.Session.DeviceID,
		Status:     string(outcome.Status),
		Attempts:   outcome.Attempts,
		BestScore:  best,
		Reason:     outcome.Reason,
		Duration:   outcome.Session.Duration,
		OccurredAt: time.Now().Add(-outcome.Session.Duration),
	}
	if err := o.audit.Record(context.WithoutCancel(ctx), entry); err != nil {
		observe.Logger(ctx).Warn("audit record failed", "device", entry.DeviceID, "err", err)
	}
}
