// Package mock provides a test double for the [stt.Transcriber] interface.
//
// Queue Transcript values with [Transcriber.QueueResult] and inspect the
// recorded calls afterwards. When the queue is empty the Result field is
// returned, so simple tests can set a single fixed transcription.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/doorwarden/pkg/provider/stt"
)

// TranscribeCall records a single invocation of [Transcriber.Transcribe].
type TranscribeCall struct {
	AudioRef string
}

// queued pairs a scripted Transcript with an optional error.
type queued struct {
	transcript stt.Transcript
	err        error
}

// Transcriber is a mock implementation of [stt.Transcriber]. The zero value
// returns an empty Transcript from every call. Safe for concurrent use.
type Transcriber struct {
	mu sync.Mutex

	// Result is returned by Transcribe when no queued result is pending.
	Result stt.Transcript

	// Err, if non-nil, is returned by Transcribe when no queued result is
	// pending.
	Err error

	// TranscribeCalls records every Transcribe invocation in order.
	TranscribeCalls []TranscribeCall

	queue []queued
}

// Compile-time interface assertion.
var _ stt.Transcriber = (*Transcriber)(nil)

// QueueResult appends a scripted result. Results are consumed in FIFO order.
func (t *Transcriber) QueueResult(tr stt.Transcript, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.queue = append(t.queue, queued{transcript: tr, err: err})
}

// QueueText is shorthand for queueing a successful transcription of text.
func (t *Transcriber) QueueText(text string) {
	t.QueueResult(stt.Transcript{Text: text, Confidence: 0.95}, nil)
}

// Transcribe records the call and returns the next queued result, falling
// back to (Result, Err) when the queue is empty.
func (t *Transcriber) Transcribe(ctx context.Context, audioRef string) (stt.Transcript, error) {
	if err := ctx.Err(); err != nil {
		return stt.Transcript{}, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.TranscribeCalls = append(t.TranscribeCalls, TranscribeCall{AudioRef: audioRef})

	if len(t.queue) > 0 {
		q := t.queue[0]
		t.queue = t.queue[1:]
		return q.transcript, q.err
	}
	return t.Result, t.Err
}

// Reset clears all recorded calls and queued results.
func (t *Transcriber) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.TranscribeCalls = nil
	t.queue = nil
}
