// Package device defines the Platform interface for doorbell audio I/O
// backends: playing prompt clips through a device's speaker and recording the
// visitor's spoken response from its microphone.
//
// The interface is a capability contract, not a wire format. Implementations
// wrap whatever transport the physical device needs (an HTTP bridge, a vendor
// SDK) or simulate one for tests and development; see the mock and ringbridge
// subpackages.
//
// Implementations must be safe for concurrent use — the orchestrator may run
// sessions for several devices at once.
package device

import (
	"context"
	"time"
)

// Platform is the abstraction over a doorbell audio backend.
type Platform interface {
	// Play plays the audio clip identified by audioRef (a file path or
	// backend-specific reference) through the device's speaker. It blocks
	// until playback has been accepted by the backend or ctx is done.
	Play(ctx context.Context, deviceID, audioRef string) error

	// Record captures audio from the device's microphone for the given
	// duration and returns a reference to the captured clip. ok is false
	// when no usable audio was captured, which is a normal outcome (nobody
	// spoke), not an error. err is reserved for backend faults.
	Record(ctx context.Context, deviceID string, duration time.Duration) (ref string, ok bool, err error)
}
