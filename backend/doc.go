// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package backend provides a registry of named platform backends.
//
// Every backend produces a platform.Backend for framepipe.New. Three are
// registered on import:
//
//   - "soft": the software GPU from backend/soft (always available)
//   - "noop": gogpu/wgpu's no-op HAL device
//   - "vulkan": a Vulkan HAL device; the program must also import
//     github.com/gogpu/wgpu/hal/vulkan
//
// # Selection
//
// Use Open to request a backend by name, or OpenDefault to get the first
// one in priority order that opens:
//
//	dev, err := backend.OpenDefault(backend.Options{})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer dev.Close()
//
//	r, err := framepipe.New(dev.Platform(), cfg)
package backend
