package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt":    {"openai", "whisper-native", "mock"},
	"tts":    {"elevenlabs", "mock"},
	"device": {"ringbridge", "mock"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values and fills in
// defaults for unset fields. It returns a joined error listing all validation
// failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	// Auth
	if len(cfg.Auth.Secrets) == 0 {
		errs = append(errs, errors.New("auth.secrets must contain at least one passphrase"))
	}
	for i, secret := range cfg.Auth.Secrets {
		if strings.TrimSpace(secret) == "" {
			errs = append(errs, fmt.Errorf("auth.secrets[%d] is empty", i))
		}
	}
	switch {
	case cfg.Auth.Threshold == 0:
		cfg.Auth.Threshold = DefaultThreshold
	case cfg.Auth.Threshold < 0 || cfg.Auth.Threshold > 100:
		errs = append(errs, fmt.Errorf("auth.threshold %.1f is out of range [0, 100]", cfg.Auth.Threshold))
	}
	switch {
	case cfg.Auth.MaxAttempts == 0:
		cfg.Auth.MaxAttempts = DefaultMaxAttempts
	case cfg.Auth.MaxAttempts < 0:
		errs = append(errs, fmt.Errorf("auth.max_attempts %d must be > 0", cfg.Auth.MaxAttempts))
	}
	switch {
	case cfg.Auth.RecordSeconds == 0:
		cfg.Auth.RecordSeconds = DefaultRecordSeconds
	case cfg.Auth.RecordSeconds < 0:
		errs = append(errs, fmt.Errorf("auth.record_seconds %d must be > 0", cfg.Auth.RecordSeconds))
	}
	if cfg.Auth.CallTimeoutSeconds == 0 {
		cfg.Auth.CallTimeoutSeconds = DefaultCallTimeoutSeconds
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("stt", cfg.Providers.STTFallback.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	validateProviderName("device", cfg.Providers.Device.Name)

	if cfg.Providers.STT.Name == "" {
		errs = append(errs, errors.New("providers.stt.name is required"))
	}
	if cfg.Providers.Device.Name == "" {
		errs = append(errs, errors.New("providers.device.name is required"))
	}
	if cfg.Providers.STTFallback.Name != "" && cfg.Providers.STTFallback.Name == cfg.Providers.STT.Name {
		slog.Warn("providers.stt_fallback names the same provider as providers.stt; the fallback adds nothing",
			"name", cfg.Providers.STT.Name,
		)
	}

	// Prompts
	if cfg.Prompts.Greeting == "" {
		slog.Warn("prompts.greeting is empty; visitors will not be asked for the passphrase")
	}

	// Audit availability
	if cfg.Audit.PostgresDSN == "" {
		slog.Warn("audit.postgres_dsn is empty; doorbell outcomes will not be persisted")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
