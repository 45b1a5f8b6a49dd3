// Package stt defines the Transcriber interface for speech-to-text backends.
//
// A Transcriber converts one recorded audio clip into text. Unlike streaming
// transcription, the doorbell flow records a bounded clip first and
// transcribes it whole, so the interface is a single blocking call.
//
// Implementations must be safe for concurrent use; sessions for different
// devices may transcribe at the same time.
package stt

import "context"

// Transcript is the result of transcribing one audio clip.
type Transcript struct {
	// Text is the transcribed speech content. May be empty when the clip
	// contained no recognisable speech.
	Text string

	// Confidence is the backend's overall confidence (0.0–1.0). Zero when
	// the backend does not report confidence.
	Confidence float64

	// Language is the BCP-47 tag of the recognised (or requested) language.
	Language string
}

// Transcriber is the abstraction over any speech-to-text backend.
type Transcriber interface {
	// Transcribe converts the audio clip identified by audioRef (a file
	// path or backend-specific reference) into text. An unintelligible clip
	// yields an empty-text Transcript, not an error; errors are reserved
	// for backend faults.
	Transcribe(ctx context.Context, audioRef string) (Transcript, error)
}
