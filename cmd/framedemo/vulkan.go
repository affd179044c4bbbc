// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package main

// Links the Vulkan HAL backend so "-backend vulkan" can open a device.
import _ "github.com/gogpu/wgpu/hal/vulkan"
