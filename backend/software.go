// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package backend

import (
	"github.com/gogpu/framepipe/backend/soft"
	"github.com/gogpu/framepipe/backend/wgpu"
	"github.com/gogpu/gputypes"
)

// init registers the built-in backends on package import.
func init() {
	Register(BackendSoft, openSoft)
	Register(BackendNoop, func(opts Options) (Device, error) {
		g, err := wgpu.OpenNoop(wgpu.WithLogger(opts.Logger))
		if err != nil {
			return nil, err
		}
		return &halDevice{GPU: g, name: BackendNoop}, nil
	})
	Register(BackendVulkan, func(opts Options) (Device, error) {
		g, err := wgpu.Open(gputypes.BackendVulkan, wgpu.WithLogger(opts.Logger))
		if err != nil {
			return nil, err
		}
		return &halDevice{GPU: g, name: BackendVulkan}, nil
	})
}

func openSoft(opts Options) (Device, error) {
	return &SoftDevice{GPU: soft.New(soft.Config{
		Latency: opts.Latency,
		VBlank:  opts.VBlank,
		Logger:  opts.Logger,
	})}, nil
}

// SoftDevice is the software GPU as a Device. The embedded GPU exposes
// LastPresented and DebugErrors.
type SoftDevice struct {
	*soft.GPU
}

// Name returns the backend identifier.
func (d *SoftDevice) Name() string { return BackendSoft }

// PreferredFormat returns RGBA8Unorm.
func (d *SoftDevice) PreferredFormat() gputypes.TextureFormat {
	return gputypes.TextureFormatRGBA8Unorm
}

// halDevice is a wgpu HAL device as a Device.
type halDevice struct {
	*wgpu.GPU
	name string
}

func (d *halDevice) Name() string { return d.name }
