// Package whisper provides a local speech-to-text transcriber backed by the
// whisper.cpp CGO bindings. The whisper.cpp static library (libwhisper.a)
// and headers (whisper.h) must be available at link time via LIBRARY_PATH
// and C_INCLUDE_PATH environment variables.
//
// Running inference locally keeps passphrase audio off the network entirely,
// which makes this the natural fallback (or primary, on capable hardware) for
// the cloud transcriber.
package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/MrWong99/doorwarden/pkg/provider/stt"
)

const defaultLanguage = "en"

// modelSampleRate is the sample rate whisper.cpp models are trained on.
// Feeding a clip at any other rate would not fail, it would transcribe
// time-stretched gibberish, so the rate is validated instead of assumed.
const modelSampleRate = 16000

// Transcriber implements stt.Transcriber using whisper.cpp Go bindings (CGO),
// eliminating network overhead entirely. The model is loaded once at startup
// and shared across all transcriptions.
type Transcriber struct {
	model    whisperlib.Model
	language string

	// mu serialises inference. Each whisper context is single-use and not
	// thread-safe; one doorbell speaks at a time anyway.
	mu sync.Mutex
}

// Compile-time interface assertion.
var _ stt.Transcriber = (*Transcriber)(nil)

// Option is a functional option for configuring a Transcriber.
type Option func(*Transcriber)

// WithLanguage sets the BCP-47 language code for transcription
// (e.g., "en", "de", "fr"). Defaults to "en".
func WithLanguage(lang string) Option {
	return func(t *Transcriber) { t.language = lang }
}

// New creates a Transcriber that loads the whisper.cpp model from the given
// file path. The caller must call Close when the transcriber is no longer
// needed.
func New(modelPath string, opts ...Option) (*Transcriber, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	t := &Transcriber{
		model:    model,
		language: defaultLanguage,
	}
	for _, o := range opts {
		o(t)
	}
	return t, nil
}

// Close releases the whisper model. Must be called when the transcriber is no
// longer needed.
func (t *Transcriber) Close() error {
	if t.model != nil {
		return t.model.Close()
	}
	return nil
}

// Transcribe reads the referenced WAV recording and runs local inference.
func (t *Transcriber) Transcribe(ctx context.Context, audioRef string) (stt.Transcript, error) {
	if err := ctx.Err(); err != nil {
		return stt.Transcript{}, err
	}

	data, err := os.ReadFile(audioRef)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: read recording %q: %w", audioRef, err)
	}
	audio, err := parseWAV(data)
	if err != nil {
		return stt.Transcript{}, err
	}
	if audio.sampleRate != modelSampleRate {
		return stt.Transcript{}, fmt.Errorf("whisper: recording %q has sample rate %d Hz, need %d Hz", audioRef, audio.sampleRate, modelSampleRate)
	}
	samples := pcmToFloat32Mono(audio.pcm, audio.channels)

	text, err := t.infer(samples)
	if err != nil {
		return stt.Transcript{}, err
	}
	return stt.Transcript{
		Text:     text,
		Language: t.language,
	}, nil
}

// infer runs whisper.cpp inference using a fresh context and returns the
// concatenated segment text. Each context is NOT thread-safe, but the model
// can be shared across goroutines.
func (t *Transcriber) infer(samples []float32) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	wctx, err := t.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: create context: %w", err)
	}

	if err := wctx.SetLanguage(t.language); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", t.language, "error", err)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: read segment: %w", err)
		}
		parts = append(parts, strings.TrimSpace(segment.Text))
	}
	return strings.TrimSpace(strings.Join(parts, " ")), nil
}
