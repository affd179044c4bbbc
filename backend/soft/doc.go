// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package soft implements platform interfaces with a software GPU.
//
// A GPU owns one goroutine that consumes the direct queue in FIFO order:
// executed command lists, fence signals and presents. Commands are applied to
// image.RGBA back buffers, so the CPU and the simulated GPU run in parallel
// exactly as they would with real hardware, and fences are the only way the
// CPU learns about progress.
//
// The package doubles as a debug layer. Protocol errors that a real driver
// would turn into corruption are reported instead:
//
//   - CommandAllocator.Reset fails with ErrAllocatorBusy while lists recorded
//     from it have not finished executing.
//   - SwapChain.ResizeBuffers fails with ErrBuffersReferenced while any
//     back-buffer reference is held, and with ErrQueueBusy while work is
//     queued.
//   - Barriers whose before state does not match the resource, and clears of
//     resources not in the RenderTarget state, are collected and returned by
//     GPU.DebugErrors.
//
// Device loss can be simulated with GPU.Lose.
//
// Basic usage:
//
//	gpu := soft.New(soft.Config{Latency: time.Millisecond})
//	defer gpu.Close()
//
//	r, err := framepipe.New(gpu.Platform(), framepipe.DefaultConfig())
package soft
