// Package ringbridge implements the device.Platform interface against a
// doorbell hardware bridge speaking plain HTTP.
//
// The bridge is a small daemon colocated with the doorbell hardware (or a
// vendor cloud shim) that exposes two endpoints per device:
//
//	POST {base}/v1/devices/{device_id}/play    {"audio_ref": "..."}
//	POST {base}/v1/devices/{device_id}/record  {"duration_ms": 8000}
//
// A record response of 200 carries {"recording_ref": "..."}; 204 No Content
// means the round captured no usable audio (silence, or the visitor walked
// away), which is a normal outcome rather than an error.
package ringbridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MrWong99/doorwarden/pkg/device"
)

// Option is a functional option for configuring the bridge client.
type Option func(*Platform)

// WithHTTPClient overrides the HTTP client used for bridge calls.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Platform) {
		p.httpClient = c
	}
}

// Platform is a device.Platform backed by an HTTP doorbell bridge.
type Platform struct {
	baseURL    string
	httpClient *http.Client
}

// Compile-time interface assertion.
var _ device.Platform = (*Platform)(nil)

// New creates a bridge client for the daemon at baseURL.
func New(baseURL string, opts ...Option) (*Platform, error) {
	if baseURL == "" {
		return nil, errors.New("ringbridge: baseURL must not be empty")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("ringbridge: invalid baseURL: %w", err)
	}
	p := &Platform{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// playRequest is the body of the play endpoint.
type playRequest struct {
	AudioRef string `json:"audio_ref"`
}

// recordRequest is the body of the record endpoint.
type recordRequest struct {
	DurationMS int64 `json:"duration_ms"`
}

// recordResponse is the 200 body of the record endpoint.
type recordResponse struct {
	RecordingRef string `json:"recording_ref"`
}

// Play asks the bridge to play the referenced clip on the device's speaker.
// It blocks until the bridge acknowledges playback completion.
func (p *Platform) Play(ctx context.Context, deviceID, audioRef string) error {
	endpoint := p.deviceURL(deviceID, "play")
	body, _ := json.Marshal(playRequest{AudioRef: audioRef})

	resp, err := p.post(ctx, endpoint, body)
	if err != nil {
		return fmt.Errorf("ringbridge: play: %w", err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("ringbridge: play: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// Record asks the bridge to capture audio from the device's microphone for the
// given duration. A 204 response reports a round with no usable audio.
func (p *Platform) Record(ctx context.Context, deviceID string, duration time.Duration) (string, bool, error) {
	endpoint := p.deviceURL(deviceID, "record")
	body, _ := json.Marshal(recordRequest{DurationMS: duration.Milliseconds()})

	resp, err := p.post(ctx, endpoint, body)
	if err != nil {
		return "", false, fmt.Errorf("ringbridge: record: %w", err)
	}
	defer drainAndClose(resp.Body)

	switch resp.StatusCode {
	case http.StatusNoContent:
		return "", false, nil
	case http.StatusOK:
		var rr recordResponse
		if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
			return "", false, fmt.Errorf("ringbridge: record decode: %w", err)
		}
		if rr.RecordingRef == "" {
			return "", false, errors.New("ringbridge: record: empty recording_ref in 200 response")
		}
		return rr.RecordingRef, true, nil
	default:
		return "", false, fmt.Errorf("ringbridge: record: unexpected status %d", resp.StatusCode)
	}
}

// Ping probes the bridge root endpoint. Used as a readiness check.
func (p *Platform) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/v1/ping", nil)
	if err != nil {
		return fmt.Errorf("ringbridge: ping: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ringbridge: ping: %w", err)
	}
	defer drainAndClose(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ringbridge: ping: unexpected status %d", resp.StatusCode)
	}
	return nil
}

func (p *Platform) deviceURL(deviceID, action string) string {
	return p.baseURL + "/v1/devices/" + url.PathEscape(deviceID) + "/" + action
}

func (p *Platform) post(ctx context.Context, endpoint string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return p.httpClient.Do(req)
}

// drainAndClose consumes the rest of the body so the connection can be reused.
func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, body)
	_ = body.Close()
}
