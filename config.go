// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package framepipe

import (
	"fmt"
	"time"

	"github.com/gogpu/framepipe/platform"
	"github.com/gogpu/gputypes"
)

// Buffer count limits.
const (
	MinBufferCount = 2
	MaxBufferCount = 16
)

// MaxSyncInterval is the largest accepted present sync interval.
const MaxSyncInterval = 4

// Infinite is the wait timeout that never expires.
const Infinite = platform.Infinite

// Config describes a frame pipeline.
type Config struct {
	// BufferCount is the number of swap-chain back buffers and frame slots.
	BufferCount int

	// Width and Height are the initial back-buffer size in pixels.
	Width  int
	Height int

	// SyncInterval is passed to every present: 0 presents immediately,
	// N waits for N vertical blanks.
	SyncInterval int

	// Format is the back-buffer format, preserved across resizes.
	Format gputypes.TextureFormat

	// Flags are backend swap-chain flags, preserved across resizes.
	Flags platform.SwapChainFlags

	// ClearColor is the RGBA color each frame's back buffer is cleared to.
	ClearColor [4]float32

	// WaitTimeout bounds the wait for a frame slot. Zero means Infinite.
	WaitTimeout time.Duration
}

// DefaultConfig returns a triple-buffered 1280x720 pipeline that presents on
// every vertical blank.
func DefaultConfig() Config {
	return Config{
		BufferCount:  3,
		Width:        1280,
		Height:       720,
		SyncInterval: 1,
		Format:       gputypes.TextureFormatRGBA8Unorm,
		ClearColor:   [4]float32{0.4, 0.6, 0.9, 1.0},
		WaitTimeout:  Infinite,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch {
	case c.BufferCount < MinBufferCount || c.BufferCount > MaxBufferCount:
		return fmt.Errorf("%w: buffer count %d outside [%d, %d]",
			ErrInvalidConfig, c.BufferCount, MinBufferCount, MaxBufferCount)
	case c.Width <= 0 || c.Height <= 0:
		return fmt.Errorf("%w: size %dx%d", ErrInvalidConfig, c.Width, c.Height)
	case c.SyncInterval < 0 || c.SyncInterval > MaxSyncInterval:
		return fmt.Errorf("%w: sync interval %d outside [0, %d]",
			ErrInvalidConfig, c.SyncInterval, MaxSyncInterval)
	case c.Format == gputypes.TextureFormatUndefined:
		return fmt.Errorf("%w: undefined back-buffer format", ErrInvalidConfig)
	case c.WaitTimeout < 0:
		return fmt.Errorf("%w: negative wait timeout %v", ErrInvalidConfig, c.WaitTimeout)
	}
	return nil
}

// timeout returns the effective slot wait timeout.
func (c Config) timeout() time.Duration {
	if c.WaitTimeout == 0 {
		return Infinite
	}
	return c.WaitTimeout
}

func (c Config) swapChainDesc() platform.SwapChainDesc {
	return platform.SwapChainDesc{
		Width:       uint32(c.Width),
		Height:      uint32(c.Height),
		Format:      c.Format,
		BufferCount: c.BufferCount,
		Flags:       c.Flags,
	}
}
