// Package mock provides an in-memory test double for the [device.Platform]
// interface. It also serves as the development-mode backend when no physical
// doorbell is available.
//
// The mock records every call so tests can assert on call counts and
// arguments, and exposes exported fields that control return values.
//
// Typical usage:
//
//	p := &mock.Platform{}
//	p.QueueRecording("clip-1.wav", true, nil)
//	ref, ok, err := p.Record(ctx, "front-door", 8*time.Second)
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/doorwarden/pkg/device"
)

// PlayCall records a single invocation of [Platform.Play].
type PlayCall struct {
	DeviceID string
	AudioRef string
}

// RecordCall records a single invocation of [Platform.Record].
type RecordCall struct {
	DeviceID string
	Duration time.Duration
}

// RecordResult is one scripted return value for [Platform.Record].
type RecordResult struct {
	Ref string
	OK  bool
	Err error
}

// Platform is a mock implementation of [device.Platform]. The zero value is
// ready to use: Play succeeds and Record reports a captured clip named
// "mock-recording.wav". All methods are safe for concurrent use.
type Platform struct {
	mu sync.Mutex

	// PlayErr, if non-nil, is returned by every Play call.
	PlayErr error

	// RecordErr, if non-nil, is returned by every Record call that has no
	// queued result.
	RecordErr error

	// PlayCalls records every Play invocation in order.
	PlayCalls []PlayCall

	// RecordCalls records every Record invocation in order.
	RecordCalls []RecordCall

	recordQueue []RecordResult
}

// Compile-time interface assertion.
var _ device.Platform = (*Platform)(nil)

// QueueRecording appends a scripted result for the next Record call. Results
// are consumed in FIFO order; once the queue is empty, Record falls back to
// the default behaviour.
func (p *Platform) QueueRecording(ref string, ok bool, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recordQueue = append(p.recordQueue, RecordResult{Ref: ref, OK: ok, Err: err})
}

// Play records the call and returns PlayErr.
func (p *Platform) Play(ctx context.Context, deviceID, audioRef string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.PlayCalls = append(p.PlayCalls, PlayCall{DeviceID: deviceID, AudioRef: audioRef})
	return p.PlayErr
}

// Record records the call and returns the next queued result, or the default
// ("mock-recording.wav", true, RecordErr) when the queue is empty.
func (p *Platform) Record(ctx context.Context, deviceID string, duration time.Duration) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.RecordCalls = append(p.RecordCalls, RecordCall{DeviceID: deviceID, Duration: duration})

	if len(p.recordQueue) > 0 {
		res := p.recordQueue[0]
		p.recordQueue = p.recordQueue[1:]
		return res.Ref, res.OK, res.Err
	}
	if p.RecordErr != nil {
		return "", false, p.RecordErr
	}
	return "mock-recording.wav", true, nil
}

// Reset clears all recorded calls and queued results.
func (p *Platform) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.PlayCalls = nil
	p.RecordCalls = nil
	p.recordQueue = nil
}
