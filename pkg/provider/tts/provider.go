// Package tts defines the Provider interface for Text-to-Speech backends.
//
// Doorwarden uses TTS offline: the promptgen tool renders the spoken prompts
// (greeting, welcome, wrong, retry, denied, error) into audio clips once, and
// the server only ever plays those pre-rendered clips. Synthesis is therefore
// a whole-clip operation, not a streaming one.
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// VoiceProfile describes a synthesis voice.
type VoiceProfile struct {
	// ID is the provider-specific voice identifier.
	ID string

	// Name is the human-readable voice name.
	Name string

	// Provider identifies which TTS provider this voice belongs to.
	Provider string

	// Metadata holds provider-specific voice attributes (gender, age,
	// accent, etc.).
	Metadata map[string]string
}

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize renders text into one complete audio clip using the given
	// voice and returns the raw audio bytes. The encoding is provider
	// specific; implementations document their output format.
	//
	// Providers should return an error if the requested voice is not
	// available or if ctx is cancelled before synthesis completes.
	Synthesize(ctx context.Context, text string, voice VoiceProfile) ([]byte, error)

	// ListVoices returns all voice profiles available from this provider.
	// The list reflects the provider's current catalogue and may change
	// between calls if the underlying service adds or removes voices.
	ListVoices(ctx context.Context) ([]VoiceProfile, error)
}
