// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package framepipe

// State is the phase of the frame pipeline.
type State uint8

// Pipeline states. A frame moves Idle -> Recording -> Submitted -> Presented
// and back to Idle. A failed frame returns straight to Idle.
const (
	StateIdle State = iota
	StateRecording
	StateSubmitted
	StatePresented
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateRecording:
		return "Recording"
	case StateSubmitted:
		return "Submitted"
	case StatePresented:
		return "Presented"
	default:
		return "Unknown"
	}
}

// Stats are cumulative renderer counters.
type Stats struct {
	// Frames is the number of frames presented.
	Frames uint64

	// BlockedWaits counts frames whose slot was still in flight when the
	// frame started.
	BlockedWaits uint64

	// Timeouts counts renders that returned ErrWaitTimeout.
	Timeouts uint64

	// Resizes counts successful resizes.
	Resizes uint64

	// LastFence is the most recently signalled fence value.
	LastFence uint64

	// CompletedFence is the last fence value known to be reached.
	CompletedFence uint64
}
