// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package wgpu implements the framepipe platform on gogpu/wgpu's hardware
// abstraction layer.
//
// A GPU wraps a hal.Device and its hal.Queue. Command allocators own a
// hal.CommandEncoder that Reset rewinds with ResetAll. Fence values are
// bound to HAL submission indices and complete when Queue.PollCompleted
// passes them. The swap chain is a ring of render-attachment textures that
// Present rotates through. A PresentFunc can be supplied to copy or scan
// out each presented texture.
//
// # Opening a device
//
//	g, err := wgpu.Open(gputypes.BackendVulkan)
//	if err != nil {
//		return err
//	}
//	defer g.Close()
//	r, err := framepipe.New(g.Platform(), framepipe.DefaultConfig())
//
// OpenNoop opens the no-op HAL backend, which accepts every call and
// completes fences on submit. FromProvider shares a device owned by a
// gogpu application.
//
// # Resource states
//
// HAL textures track usages rather than states:
//
//	Present, CopySource  -> TextureUsageCopySrc
//	RenderTarget         -> TextureUsageRenderAttachment
//	CopyDest             -> TextureUsageCopyDst
//	ShaderResource       -> TextureUsageTextureBinding
//
// # Device loss
//
// Submit errors matching hal.ErrDeviceLost are wrapped with
// platform.ErrDeviceLost. Lose marks the GPU lost explicitly.
package wgpu
