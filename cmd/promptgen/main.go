// Command promptgen renders the Doorwarden prompt clips using the configured
// text-to-speech provider. The server never synthesizes speech at the door;
// it plays the clips this tool generates ahead of time.
//
// Typical usage:
//
//	promptgen -config config.yaml -list-voices
//	promptgen -config config.yaml -voice 21m00Tcm4TlvDq8ikWAM -out prompts/
//
// The default texts can be overridden per prompt, e.g.:
//
//	promptgen -config config.yaml -voice ... -greeting "Hi! What's the magic word?"
package main

import (
	"context"
	"encoding/binary"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/MrWong99/doorwarden/internal/config"
	"github.com/MrWong99/doorwarden/pkg/provider/tts"
	"github.com/MrWong99/doorwarden/pkg/provider/tts/elevenlabs"
	ttsmock "github.com/MrWong99/doorwarden/pkg/provider/tts/mock"
)

// promptTexts holds the spoken text for each clip, keyed by clip name. The
// keys double as output file base names.
type promptTexts struct {
	greeting string
	welcome  string
	wrong    string
	retry    string
	denied   string
	errorMsg string
}

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	voiceID := flag.String("voice", "", "TTS voice ID to synthesize with")
	outDir := flag.String("out", "prompts", "directory to write the generated clips into")
	listVoices := flag.Bool("list-voices", false, "list available voices and exit")

	texts := promptTexts{
		greeting: "Hello! Please say the passphrase to come in.",
		welcome:  "Welcome! Come on in.",
		wrong:    "Sorry, that was not the passphrase.",
		retry:    "Please try again.",
		denied:   "Access denied. Goodbye.",
		errorMsg: "Something went wrong. Please ring again.",
	}
	flag.StringVar(&texts.greeting, "greeting", texts.greeting, "text of the greeting prompt")
	flag.StringVar(&texts.welcome, "welcome", texts.welcome, "text of the welcome prompt")
	flag.StringVar(&texts.wrong, "wrong", texts.wrong, "text of the wrong-passphrase prompt")
	flag.StringVar(&texts.retry, "retry", texts.retry, "text of the retry prompt")
	flag.StringVar(&texts.denied, "denied", texts.denied, "text of the denied prompt")
	flag.StringVar(&texts.errorMsg, "error", texts.errorMsg, "text of the error prompt")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "promptgen: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "promptgen: %v\n", err)
		}
		return 1
	}

	provider, err := newTTSProvider(cfg.Providers.TTS)
	if err != nil {
		fmt.Fprintf(os.Stderr, "promptgen: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *listVoices {
		return printVoices(ctx, provider)
	}

	if *voiceID == "" {
		fmt.Fprintln(os.Stderr, "promptgen: -voice is required (use -list-voices to see what is available)")
		return 1
	}
	voice := tts.VoiceProfile{ID: *voiceID, Provider: cfg.Providers.TTS.Name}

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "promptgen: create output dir: %v\n", err)
		return 1
	}

	outputFormat := ttsOutputFormat(cfg.Providers.TTS)
	clips := []struct {
		name string
		text string
	}{
		{"greeting", texts.greeting},
		{"welcome", texts.welcome},
		{"wrong", texts.wrong},
		{"retry", texts.retry},
		{"denied", texts.denied},
		{"error", texts.errorMsg},
	}

	for _, clip := range clips {
		path, err := renderClip(ctx, provider, voice, clip.text, *outDir, clip.name, outputFormat)
		if err != nil {
			slog.Error("clip generation failed", "clip", clip.name, "err", err)
			return 1
		}
		slog.Info("clip written", "clip", clip.name, "path", path)
	}

	fmt.Printf("All prompt clips written to %s — point the prompts section of your config at them.\n", *outDir)
	return 0
}

// newTTSProvider constructs the provider named in entry. Only the providers
// useful for clip generation are supported here.
func newTTSProvider(entry config.ProviderEntry) (tts.Provider, error) {
	switch entry.Name {
	case "elevenlabs":
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if f, ok := entry.Options["output_format"].(string); ok && f != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(f))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	case "mock":
		return &ttsmock.Provider{SynthesizeResult: make([]byte, 3200)}, nil
	case "":
		return nil, errors.New("providers.tts.name is not configured")
	default:
		return nil, fmt.Errorf("unknown tts provider %q", entry.Name)
	}
}

// renderClip synthesizes one clip and writes it under dir. Raw PCM output is
// wrapped into a WAV container so the clips are playable everywhere; other
// formats are written verbatim.
func renderClip(ctx context.Context, p tts.Provider, voice tts.VoiceProfile, text, dir, name, outputFormat string) (string, error) {
	audio, err := p.Synthesize(ctx, text, voice)
	if err != nil {
		return "", err
	}

	if rate, ok := pcmSampleRate(outputFormat); ok {
		path := filepath.Join(dir, name+".wav")
		return path, os.WriteFile(path, wrapWAV(audio, rate), 0o644)
	}

	path := filepath.Join(dir, name+"."+formatExtension(outputFormat))
	return path, os.WriteFile(path, audio, 0o644)
}

// pcmSampleRate extracts the sample rate from a raw PCM format name such as
// "pcm_16000". ok is false for container formats (mp3, opus, ...).
func pcmSampleRate(format string) (int, bool) {
	rest, found := strings.CutPrefix(format, "pcm_")
	if !found {
		return 0, false
	}
	rate, err := strconv.Atoi(rest)
	if err != nil || rate <= 0 {
		return 0, false
	}
	return rate, true
}

// formatExtension maps an output format name like "mp3_44100_128" to a file
// extension.
func formatExtension(format string) string {
	if idx := strings.IndexByte(format, '_'); idx > 0 {
		return format[:idx]
	}
	if format == "" {
		return "bin"
	}
	return format
}

// wrapWAV prepends a canonical RIFF/WAVE header for 16-bit mono PCM at the
// given sample rate.
func wrapWAV(pcm []byte, sampleRate int) []byte {
	const (
		channels  = 1
		bitsDepth = 16
	)
	byteRate := sampleRate * channels * bitsDepth / 8
	blockAlign := channels * bitsDepth / 8

	buf := make([]byte, 0, 44+len(pcm))
	u16 := func(v int) []byte {
		b := make([]byte, 2)
		binary.LittleEndian.PutUint16(b, uint16(v))
		return b
	}
	u32 := func(v int) []byte {
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, uint32(v))
		return b
	}

	buf = append(buf, []byte("RIFF")...)
	buf = append(buf, u32(36+len(pcm))...)
	buf = append(buf, []byte("WAVE")...)
	buf = append(buf, []byte("fmt ")...)
	buf = append(buf, u32(16)...)
	buf = append(buf, u16(1)...)
	buf = append(buf, u16(channels)...)
	buf = append(buf, u32(sampleRate)...)
	buf = append(buf, u32(byteRate)...)
	buf = append(buf, u16(blockAlign)...)
	buf = append(buf, u16(bitsDepth)...)
	buf = append(buf, []byte("data")...)
	buf = append(buf, u32(len(pcm))...)
	buf = append(buf, pcm...)
	return buf
}

// ttsOutputFormat resolves the effective output format of the TTS entry.
func ttsOutputFormat(entry config.ProviderEntry) string {
	if f, ok := entry.Options["output_format"].(string); ok && f != "" {
		return f
	}
	return "pcm_16000"
}

// printVoices lists the provider's voice catalogue on stdout.
func printVoices(ctx context.Context, p tts.Provider) int {
	voices, err := p.ListVoices(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "promptgen: list voices: %v\n", err)
		return 1
	}
	if len(voices) == 0 {
		fmt.Println("No voices available.")
		return 0
	}
	for _, v := range voices {
		line := v.ID + "\t" + v.Name
		if acc := v.Metadata["accent"]; acc != "" {
			line += "\t(" + acc + ")"
		}
		fmt.Println(line)
	}
	return 0
}
