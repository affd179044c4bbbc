// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package framepipe implements a multi-buffered frame pipeline: the protocol
// that keeps a CPU command producer and an asynchronous GPU consumer ordered
// while a small fixed pool of command allocators and swap-chain back buffers
// is reused frame after frame.
//
// # Overview
//
// A [Renderer] owns one timeline [Fence], a [FramePool] with one slot per back
// buffer, a single reusable [Recorder], a [SwapChain] adapter and the
// [ViewTable] of render-target views. Each call to [Renderer.Render] runs one
// frame:
//
//	slot := pool.Acquire(swapChain.CurrentIndex())
//	pool.BeginReuse(slot)          // wait for the slot's previous fence value
//	recorder.Begin(slot allocator) // Present -> RenderTarget, clear, workload
//	recorder.End()                 // RenderTarget -> Present, close
//	queue.Execute(list)
//	value := fence.Signal(queue)
//	pool.MarkSubmitted(slot, value)
//	swapChain.Present(syncInterval) // refreshes CurrentIndex
//
// [Renderer.Resize] flushes the queue, releases every back-buffer reference,
// resizes the swap chain and rebuilds the view table.
//
// # Quick Start
//
//	b := soft.New(soft.Config{})
//	r, err := framepipe.New(b.Platform(), framepipe.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer r.Close()
//
//	for running {
//	    if err := r.Render(); err != nil {
//	        if errors.Is(err, framepipe.ErrDeviceLost) {
//	            break
//	        }
//	        log.Print(err)
//	    }
//	}
//
// # Errors
//
// Failures are classified with [errors.Is]:
//
//   - [ErrSetup]: construction failed; nothing was created.
//   - [ErrDeviceLost]: terminal; every later call fails with it.
//   - [ErrRecord], [ErrSubmit], [ErrPresent], [ErrResize]: the frame or
//     resize was abandoned and the renderer can be called again.
//   - [ErrWaitTimeout]: the slot's fence was not reached in time; nothing
//     changed and the next Render retries the same wait.
//
// # Backends
//
// The GPU is reached only through the interfaces in package platform.
// backend/soft runs a software GPU on its own goroutine and backend/wgpu
// adapts gogpu/wgpu HAL devices.
//
// # Logging
//
// framepipe is silent by default. Call [SetLogger] or pass [WithLogger] to
// enable structured logging via log/slog.
package framepipe
