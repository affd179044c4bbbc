// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package framepipe

import (
	"errors"

	"github.com/gogpu/framepipe/platform"
)

// Renderer errors. Use errors.Is to classify a returned error.
var (
	// ErrSetup is returned when construction fails. Nothing created during
	// the failed construction is left alive.
	ErrSetup = errors.New("framepipe: setup failed")

	// ErrDeviceLost is returned when the backend reports the device is gone.
	// It is terminal for the renderer.
	ErrDeviceLost = platform.ErrDeviceLost

	// ErrWaitTimeout is returned when a frame slot's fence value was not
	// reached within Config.WaitTimeout. The renderer is unchanged.
	ErrWaitTimeout = errors.New("framepipe: timed out waiting for frame slot")

	// ErrRecord is returned when recording a frame fails.
	ErrRecord = errors.New("framepipe: record failed")

	// ErrSubmit is returned when executing or signalling a frame fails.
	ErrSubmit = errors.New("framepipe: submit failed")

	// ErrPresent is returned when presentation fails for a reason other
	// than device loss.
	ErrPresent = errors.New("framepipe: present failed")

	// ErrResize is returned when a resize fails. Render fails with it until
	// a later Resize succeeds.
	ErrResize = errors.New("framepipe: resize failed")

	// ErrClosed is returned by calls on a closed renderer.
	ErrClosed = errors.New("framepipe: renderer closed")

	// ErrInvalidConfig is returned by Config.Validate.
	ErrInvalidConfig = errors.New("framepipe: invalid config")
)

// Protocol errors raised by the pipeline building blocks.
var (
	// ErrListNotClosed is returned by Recorder.Begin while the list is
	// still recording.
	ErrListNotClosed = errors.New("framepipe: command list not closed")

	// ErrListClosed is returned by Recorder.End when no frame is being
	// recorded.
	ErrListClosed = errors.New("framepipe: command list closed")

	// ErrUnbalancedTransitions is returned by Recorder.End when a resource
	// left the Present state without returning to it.
	ErrUnbalancedTransitions = errors.New("framepipe: unbalanced resource transitions")

	// ErrSlotInFlight is returned when a slot would be reused before the GPU
	// reached its fence value.
	ErrSlotInFlight = errors.New("framepipe: frame slot still in flight")

	// ErrSlotOrder is returned when a slot's submitted fence value would not
	// increase.
	ErrSlotOrder = errors.New("framepipe: fence value out of order")

	// ErrSlotIndex is returned for a back-buffer index outside the pool.
	ErrSlotIndex = errors.New("framepipe: frame slot index out of range")

	// ErrBufferCount is returned when a buffer set does not match the pool.
	ErrBufferCount = errors.New("framepipe: back buffer count mismatch")
)

// isDeviceLost reports whether err wraps platform.ErrDeviceLost.
func isDeviceLost(err error) bool {
	return errors.Is(err, platform.ErrDeviceLost)
}
