package config_test

import (
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/doorwarden/internal/config"
)

const validYAML = `
server:
  listen_addr: ":8080"
  log_level: info
auth:
  secrets:
    - alohomora
    - mellon
    - open sesame
  threshold: 80
  max_attempts: 3
  record_seconds: 8
providers:
  stt:
    name: openai
    api_key: sk-test
    model: whisper-1
  device:
    name: ringbridge
    base_url: http://bridge.local:9000
prompts:
  greeting: prompts/greeting.mp3
  welcome: prompts/welcome.mp3
  wrong: prompts/wrong.mp3
  retry: prompts/retry.mp3
  denied: prompts/denied.mp3
  error: prompts/error.mp3
`

func TestLoadFromReader_Valid(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Auth.Secrets) != 3 || cfg.Auth.Secrets[0] != "alohomora" {
		t.Errorf("secrets = %v", cfg.Auth.Secrets)
	}
	if cfg.Providers.STT.Name != "openai" || cfg.Providers.STT.Model != "whisper-1" {
		t.Errorf("stt entry = %+v", cfg.Providers.STT)
	}
	if cfg.Auth.RecordDuration() != 8*time.Second {
		t.Errorf("record duration = %v, want 8s", cfg.Auth.RecordDuration())
	}
}

func TestLoadFromReader_UnknownFieldRejected(t *testing.T) {
	t.Parallel()
	yaml := validYAML + "\nbogus_section:\n  key: value\n"
	if _, err := config.LoadFromReader(strings.NewReader(yaml)); err == nil {
		t.Fatal("expected error for unknown top-level field, got nil")
	}
}

func TestValidate_EmptySecrets(t *testing.T) {
	t.Parallel()
	yaml := `
providers:
  stt:
    name: openai
  device:
    name: ringbridge
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for empty secrets, got nil")
	}
	if !strings.Contains(err.Error(), "auth.secrets") {
		t.Errorf("error should mention auth.secrets, got: %v", err)
	}
}

func TestValidate_BlankSecretEntry(t *testing.T) {
	t.Parallel()
	yaml := `
auth:
  secrets:
    - alohomora
    - "   "
providers:
  stt:
    name: openai
  device:
    name: ringbridge
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for blank secret entry, got nil")
	}
	if !strings.Contains(err.Error(), "auth.secrets[1]") {
		t.Errorf("error should name the offending entry, got: %v", err)
	}
}

func TestValidate_ThresholdOutOfRange(t *testing.T) {
	t.Parallel()
	yaml := `
auth:
  secrets: [alohomora]
  threshold: 150
providers:
  stt:
    name: openai
  device:
    name: ringbridge
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for threshold out of range, got nil")
	}
	if !strings.Contains(err.Error(), "auth.threshold") {
		t.Errorf("error should mention auth.threshold, got: %v", err)
	}
}

func TestValidate_MissingProviders(t *testing.T) {
	t.Parallel()
	yaml := `
auth:
  secrets: [alohomora]
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for missing providers, got nil")
	}
	if !strings.Contains(err.Error(), "providers.stt.name") {
		t.Errorf("error should mention providers.stt.name, got: %v", err)
	}
	if !strings.Contains(err.Error(), "providers.device.name") {
		t.Errorf("error should mention providers.device.name, got: %v", err)
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: loud
auth:
  secrets: [alohomora]
providers:
  stt:
    name: openai
  device:
    name: ringbridge
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for invalid log level, got nil")
	}
	if !strings.Contains(err.Error(), "server.log_level") {
		t.Errorf("error should mention server.log_level, got: %v", err)
	}
}

func TestValidate_TLSRequiresBothFiles(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  tls:
    cert_file: /etc/doorwarden/tls.crt
auth:
  secrets: [alohomora]
providers:
  stt:
    name: openai
  device:
    name: ringbridge
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for TLS without key file, got nil")
	}
	if !strings.Contains(err.Error(), "server.tls") {
		t.Errorf("error should mention server.tls, got: %v", err)
	}
}

func TestValidate_AppliesDefaults(t *testing.T) {
	t.Parallel()
	yaml := `
auth:
  secrets: [alohomora]
providers:
  stt:
    name: openai
  device:
    name: ringbridge
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.ListenAddr != config.DefaultListenAddr {
		t.Errorf("listen_addr = %q, want default %q", cfg.Server.ListenAddr, config.DefaultListenAddr)
	}
	if cfg.Auth.Threshold != config.DefaultThreshold {
		t.Errorf("threshold = %v, want default %v", cfg.Auth.Threshold, config.DefaultThreshold)
	}
	if cfg.Auth.MaxAttempts != config.DefaultMaxAttempts {
		t.Errorf("max_attempts = %d, want default %d", cfg.Auth.MaxAttempts, config.DefaultMaxAttempts)
	}
	if cfg.Auth.RecordSeconds != config.DefaultRecordSeconds {
		t.Errorf("record_seconds = %d, want default %d", cfg.Auth.RecordSeconds, config.DefaultRecordSeconds)
	}
	if cfg.Auth.CallTimeout() != time.Duration(config.DefaultCallTimeoutSeconds)*time.Second {
		t.Errorf("call timeout = %v, want default", cfg.Auth.CallTimeout())
	}
}

func TestAuthConfig_NegativeCallTimeoutDisablesBound(t *testing.T) {
	t.Parallel()
	a := config.AuthConfig{CallTimeoutSeconds: -1}
	if got := a.CallTimeout(); got != 0 {
		t.Errorf("CallTimeout() = %v, want 0", got)
	}
}
