// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package backend

import (
	"errors"
	"log/slog"
	"time"

	"github.com/gogpu/framepipe/platform"
	"github.com/gogpu/gputypes"
)

// Common backend errors.
var (
	// ErrBackendNotAvailable is returned when a requested backend is not
	// registered or cannot be opened.
	ErrBackendNotAvailable = errors.New("backend: not available")
)

// Backend name constants.
const (
	// BackendSoft is the name of the software GPU backend.
	BackendSoft = "soft"
	// BackendNoop is the name of the no-op HAL backend.
	BackendNoop = "noop"
	// BackendVulkan is the name of the Vulkan HAL backend.
	BackendVulkan = "vulkan"
)

// Options configures a backend when it is opened. Backends ignore the
// fields that do not apply to them.
type Options struct {
	// Logger receives backend diagnostics. Nil discards them.
	Logger *slog.Logger

	// Latency is the simulated execution time per command list (soft).
	Latency time.Duration

	// VBlank is the simulated vertical blank interval (soft).
	VBlank time.Duration
}

// Device is an opened backend.
type Device interface {
	// Name returns the backend identifier (e.g., "soft", "vulkan").
	Name() string

	// Platform returns the device, queue and presenter for framepipe.New.
	Platform() platform.Backend

	// PreferredFormat returns the back-buffer format the device presents
	// best.
	PreferredFormat() gputypes.TextureFormat

	// Lose simulates device removal.
	Lose()

	// Close releases the device. Renderers using it must be closed first.
	Close()
}

// Factory opens a backend.
type Factory func(Options) (Device, error)
