package resilience

import (
	"context"

	"github.com/MrWong99/doorwarden/pkg/provider/stt"
)

// TranscriberFallback implements [stt.Transcriber] with automatic failover
// across multiple speech-to-text backends. Each backend has its own circuit
// breaker, so a cloud API outage degrades to the local fallback instead of
// failing every doorbell session.
type TranscriberFallback struct {
	group *FallbackGroup[stt.Transcriber]
}

// Compile-time interface assertion.
var _ stt.Transcriber = (*TranscriberFallback)(nil)

// NewTranscriberFallback creates a [TranscriberFallback] with primary as the
// preferred backend.
func NewTranscriberFallback(primary stt.Transcriber, primaryName string, cfg FallbackConfig) *TranscriberFallback {
	return &TranscriberFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional transcriber as a fallback.
func (f *TranscriberFallback) AddFallback(name string, t stt.Transcriber) {
	f.group.AddFallback(name, t)
}

// Transcribe runs the transcription against the first healthy backend. If the
// primary fails or its circuit is open, subsequent fallbacks are tried.
func (f *TranscriberFallback) Transcribe(ctx context.Context, audioRef string) (stt.Transcript, error) {
	return ExecuteWithResult(f.group, func(t stt.Transcriber) (stt.Transcript, error) {
		return t.Transcribe(ctx, audioRef)
	})
}
