package doorbell_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/doorwarden/internal/audit"
	"github.com/MrWong99/doorwarden/internal/doorbell"
	devicemock "github.com/MrWong99/doorwarden/pkg/device/mock"
	"github.com/MrWong99/doorwarden/pkg/provider/stt"
	sttmock "github.com/MrWong99/doorwarden/pkg/provider/stt/mock"
)

func testConfig() doorbell.Config {
	return doorbell.Config{
		Secrets:        []string{"alohomora", "mellon", "open sesame"},
		Threshold:      80,
		MaxAttempts:    3,
		RecordDuration: 8 * time.Second,
		Prompts: doorbell.Prompts{
			Greeting: "prompts/greeting.mp3",
			Welcome:  "prompts/welcome.mp3",
			Wrong:    "prompts/wrong.mp3",
			Retry:    "prompts/retry.mp3",
			Denied:   "prompts/denied.mp3",
			Error:    "prompts/error.mp3",
		},
	}
}

func newOrchestrator(t *testing.T, platform *devicemock.Platform, transcriber stt.Transcriber, opts ...doorbell.Option) *doorbell.Orchestrator {
	t.Helper()
	o, err := doorbell.New(testConfig(), platform, transcriber, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return o
}

func TestNew_ValidatesConfig(t *testing.T) {
	t.Parallel()

	platform := &devicemock.Platform{}
	transcriber := &sttmock.Transcriber{}

	bad := testConfig()
	bad.Secrets = nil
	bad.MaxAttempts = 0
	if _, err := doorbell.New(bad, platform, transcriber); err == nil {
		t.Fatal("New with empty secrets and zero attempts should fail")
	}

	if _, err := doorbell.New(testConfig(), nil, transcriber); err == nil {
		t.Fatal("New without a device platform should fail")
	}
}

func TestHandleEvent_FirstAttemptSuccess(t *testing.T) {
	t.Parallel()

	platform := &devicemock.Platform{}
	transcriber := &sttmock.Transcriber{}
	transcriber.QueueText("alohomora")

	o := newOrchestrator(t, platform, transcriber)
	outcome, err := o.HandleEvent(context.Background(), "front-door")
	if err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}

	if outcome.Status != doorbell.StatusSuccess {
		t.Fatalf("status = %q, want success (err=%q)", outcome.Status, outcome.Err)
	}
	if outcome.Secret != "alohomora" {
		t.Errorf("secret = %q, want alohomora", outcome.Secret)
	}
	if outcome.Score != 100 {
		t.Errorf("score = %v, want 100", outcome.Score)
	}
	if outcome.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", outcome.Attempts)
	}

	// Greeting then welcome, no wrong/retry prompts.
	if len(platform.PlayCalls) != 2 {
		t.Fatalf("play calls = %d, want 2 (%v)", len(platform.PlayCalls), platform.PlayCalls)
	}
	if platform.PlayCalls[0].AudioRef != "prompts/greeting.mp3" {
		t.Errorf("first play = %q, want greeting", platform.PlayCalls[0].AudioRef)
	}
	if platform.PlayCalls[1].AudioRef != "prompts/welcome.mp3" {
		t.Errorf("second play = %q, want welcome", platform.PlayCalls[1].AudioRef)
	}
}

func TestHandleEvent_SuccessOnThirdAttempt(t *testing.T) {
	t.Parallel()

	platform := &devicemock.Platform{}
	transcriber := &sttmock.Transcriber{}
	transcriber.QueueText("wrong guess")
	transcriber.QueueText("another wrong guess")
	transcriber.QueueText("mellon")

	o := newOrchestrator(t, platform, transcriber)
	outcome, err := o.HandleEvent(context.Background(), "front-door")
	if err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}

	if outcome.Status != doorbell.StatusSuccess {
		t.Fatalf("status = %q, want success", outcome.Status)
	}
	if outcome.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", outcome.Attempts)
	}
	if outcome.Secret != "mellon" {
		t.Errorf("secret = %q, want mellon", outcome.Secret)
	}

	snap := outcome.Session
	if len(snap.Transcriptions) != 3 || len(snap.Scores) != 3 {
		t.Fatalf("session log: %d transcriptions, %d scores, want 3 each", len(snap.Transcriptions), len(snap.Scores))
	}
	if snap.Transcriptions[2] != "mellon" {
		t.Errorf("third transcription = %q, want mellon", snap.Transcriptions[2])
	}
}

func TestHandleEvent_DeniedAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	platform := &devicemock.Platform{}
	transcriber := &sttmock.Transcriber{
		Result: stt.Transcript{Text: "random nonsense", Confidence: 0.9},
	}

	o := newOrchestrator(t, platform, transcriber)
	outcome, err := o.HandleEvent(context.Background(), "front-door")
	if err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}

	if outcome.Status != doorbell.StatusDenied {
		t.Fatalf("status = %q, want denied", outcome.Status)
	}
	if outcome.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", outcome.Attempts)
	}
	if outcome.Reason != doorbell.ReasonMaxAttempts {
		t.Errorf("reason = %q, want %q", outcome.Reason, doorbell.ReasonMaxAttempts)
	}

	// Last play must be the denial prompt.
	last := platform.PlayCalls[len(platform.PlayCalls)-1]
	if last.AudioRef != "prompts/denied.mp3" {
		t.Errorf("last play = %q, want denied prompt", last.AudioRef)
	}
}

func TestHandleEvent_NoAudioDoesNotConsumeAttempt(t *testing.T) {
	t.Parallel()

	platform := &devicemock.Platform{}
	platform.QueueRecording("", false, nil) // silent round
	platform.QueueRecording("clip-1.wav", true, nil)

	transcriber := &sttmock.Transcriber{}
	transcriber.QueueText("open sesame")

	o := newOrchestrator(t, platform, transcriber)
	outcome, err := o.HandleEvent(context.Background(), "front-door")
	if err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}

	if outcome.Status != doorbell.StatusSuccess {
		t.Fatalf("status = %q, want success", outcome.Status)
	}
	if outcome.Attempts != 1 {
		t.Errorf("attempts = %d, want 1 (silent round must not count)", outcome.Attempts)
	}
	if len(platform.RecordCalls) != 2 {
		t.Errorf("record calls = %d, want 2", len(platform.RecordCalls))
	}
	if len(transcriber.TranscribeCalls) != 1 {
		t.Errorf("transcribe calls = %d, want 1 (nothing to transcribe on a silent round)", len(transcriber.TranscribeCalls))
	}
}

func TestHandleEvent_EmptyTranscriptionConsumesAttempt(t *testing.T) {
	t.Parallel()

	platform := &devicemock.Platform{}
	transcriber := &sttmock.Transcriber{}
	transcriber.QueueResult(stt.Transcript{Text: ""}, nil)
	transcriber.QueueText("alohomora")

	o := newOrchestrator(t, platform, transcriber)
	outcome, err := o.HandleEvent(context.Background(), "front-door")
	if err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}

	if outcome.Status != doorbell.StatusSuccess {
		t.Fatalf("status = %q, want success", outcome.Status)
	}
	if outcome.Attempts != 2 {
		t.Errorf("attempts = %d, want 2 (empty transcription consumes an attempt)", outcome.Attempts)
	}
	snap := outcome.Session
	if len(snap.Transcriptions) != 2 || snap.Transcriptions[0] != "" {
		t.Errorf("transcription log = %v, want empty first entry recorded", snap.Transcriptions)
	}
	if len(snap.Scores) != 2 || snap.Scores[0] != 0 {
		t.Errorf("score log = %v, want 0 for the empty transcription", snap.Scores)
	}
}

func TestHandleEvent_TranscriberFailureIsErrorOutcome(t *testing.T) {
	t.Parallel()

	platform := &devicemock.Platform{}
	transcriber := &sttmock.Transcriber{Err: errors.New("stt backend down")}

	o := newOrchestrator(t, platform, transcriber)
	outcome, err := o.HandleEvent(context.Background(), "front-door")
	if err != nil {
		t.Fatalf("HandleEvent must not return collaborator errors, got %v", err)
	}

	if outcome.Status != doorbell.StatusError {
		t.Fatalf("status = %q, want error", outcome.Status)
	}
	if outcome.Err == "" {
		t.Error("error outcome must carry the causing message")
	}

	// Best-effort error prompt was played.
	last := platform.PlayCalls[len(platform.PlayCalls)-1]
	if last.AudioRef != "prompts/error.mp3" {
		t.Errorf("last play = %q, want error prompt", last.AudioRef)
	}
}

func TestHandleEvent_PlaybackFailureOnErrorPromptIsSwallowed(t *testing.T) {
	t.Parallel()

	platform := &devicemock.Platform{PlayErr: errors.New("speaker offline")}
	transcriber := &sttmock.Transcriber{}

	o := newOrchestrator(t, platform, transcriber)
	outcome, err := o.HandleEvent(context.Background(), "front-door")
	if err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if outcome.Status != doorbell.StatusError {
		t.Fatalf("status = %q, want error (greeting playback failed)", outcome.Status)
	}
}

func TestHandleEvent_RecorderFaultIsErrorOutcome(t *testing.T) {
	t.Parallel()

	platform := &devicemock.Platform{}
	platform.QueueRecording("", false, errors.New("microphone fault"))
	transcriber := &sttmock.Transcriber{}

	o := newOrchestrator(t, platform, transcriber)
	outcome, err := o.HandleEvent(context.Background(), "front-door")
	if err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if outcome.Status != doorbell.StatusError {
		t.Fatalf("status = %q, want error", outcome.Status)
	}
	if len(transcriber.TranscribeCalls) != 0 {
		t.Error("transcriber must not be called after a recorder fault")
	}
}

func TestHandleEvent_RejectsConcurrentSessionForSameDevice(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	platform := &devicemock.Platform{}
	transcriber := &blockingTranscriber{release: block}

	o := newOrchestrator(t, platform, transcriber)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = o.HandleEvent(context.Background(), "front-door")
	}()

	// Wait for the first session to reach the transcriber.
	transcriber.waitUntilCalled(t)

	if _, err := o.HandleEvent(context.Background(), "front-door"); !errors.Is(err, doorbell.ErrSessionActive) {
		t.Fatalf("second trigger: err = %v, want ErrSessionActive", err)
	}

	close(block)
	<-done

	// After the first session concluded, the device slot is free again.
	if got := o.ActiveSessions(); got != 0 {
		t.Fatalf("active sessions = %d, want 0 after completion", got)
	}
	if _, err := o.HandleEvent(context.Background(), "front-door"); err != nil {
		t.Fatalf("third trigger after completion: %v", err)
	}
}

func TestHandleEvent_IndependentDevicesRunConcurrently(t *testing.T) {
	t.Parallel()

	platform := &devicemock.Platform{}
	transcriber := &sttmock.Transcriber{
		Result: stt.Transcript{Text: "alohomora"},
	}

	o := newOrchestrator(t, platform, transcriber)

	var wg sync.WaitGroup
	for _, dev := range []string{"front-door", "back-door", "garage"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome, err := o.HandleEvent(context.Background(), dev)
			if err != nil {
				t.Errorf("HandleEvent(%s): %v", dev, err)
				return
			}
			if outcome.Status != doorbell.StatusSuccess {
				t.Errorf("HandleEvent(%s): status %q", dev, outcome.Status)
			}
		}()
	}
	wg.Wait()

	if got := o.ActiveSessions(); got != 0 {
		t.Fatalf("active sessions = %d, want 0", got)
	}
}

func TestHandleEvent_CancelledContextFailsSession(t *testing.T) {
	t.Parallel()

	platform := &devicemock.Platform{}
	transcriber := &sttmock.Transcriber{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := newOrchestrator(t, platform, transcriber)
	outcome, err := o.HandleEvent(ctx, "front-door")
	if err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if outcome.Status != doorbell.StatusError {
		t.Fatalf("status = %q, want error for cancelled context", outcome.Status)
	}
	if got := o.ActiveSessions(); got != 0 {
		t.Fatalf("active sessions = %d, want 0 (no dangling registry entry)", got)
	}
}

func TestHandleEvent_RecordsAuditEntry(t *testing.T) {
	t.Parallel()

	platform := &devicemock.Platform{}
	transcriber := &sttmock.Transcriber{}
	transcriber.QueueText("alohomora")
	recorder := &captureRecorder{}

	o := newOrchestrator(t, platform, transcriber, doorbell.WithAuditRecorder(recorder))
	if _, err := o.HandleEvent(context.Background(), "front-door"); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}

	entries := recorder.snapshot()
	if len(entries) != 1 {
		t.Fatalf("audit entries = %d, want 1", len(entries))
	}
	e := entries[0]
	if e.DeviceID != "front-door" || e.Status != "success" || e.Attempts != 1 {
		t.Errorf("audit entry = %+v", e)
	}
	if e.BestScore != 100 {
		t.Errorf("audit best score = %v, want 100", e.BestScore)
	}
}

func TestHandleEvent_AuditFailureDoesNotAffectOutcome(t *testing.T) {
	t.Parallel()

	platform := &devicemock.Platform{}
	transcriber := &sttmock.Transcriber{}
	transcriber.QueueText("alohomora")
	recorder := &captureRecorder{err: errors.New("sink down")}

	o := newOrchestrator(t, platform, transcriber, doorbell.WithAuditRecorder(recorder))
	outcome, err := o.HandleEvent(context.Background(), "front-door")
	if err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if outcome.Status != doorbell.StatusSuccess {
		t.Fatalf("status = %q, want success despite audit failure", outcome.Status)
	}
}

// blockingTranscriber blocks inside Transcribe until release is closed, so a
// test can hold a session open at a known point.
type blockingTranscriber struct {
	mu      sync.Mutex
	called  bool
	release chan struct{}
}

func (b *blockingTranscriber) Transcribe(ctx context.Context, audioRef string) (stt.Transcript, error) {
	b.mu.Lock()
	b.called = true
	b.mu.Unlock()
	select {
	case <-b.release:
	case <-ctx.Done():
		return stt.Transcript{}, ctx.Err()
	}
	return stt.Transcript{Text: "alohomora"}, nil
}

func (b *blockingTranscriber) waitUntilCalled(t *testing.T) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		b.mu.Lock()
		called := b.called
		b.mu.Unlock()
		if called {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("transcriber was never reached")
}

// captureRecorder stores audit entries for inspection.
type captureRecorder struct {
	mu      sync.Mutex
	entries []audit.Entry
	err     error
}

func (c *captureRecorder) Record(_ context.Context, e audit.Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, e)
	return c.err
}

func (c *captureRecorder) snapshot() []audit.Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]audit.Entry(nil), c.entries...)
}
