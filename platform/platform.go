// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package platform defines the capability contract a graphics backend must
// satisfy to drive a framepipe.Renderer.
//
// The interfaces model an explicit, D3D12-style API: a single direct queue
// that executes closed command lists in FIFO order, timeline fences that the
// queue signals after prior work completes, command allocators that back the
// memory of recorded lists, and a swap chain whose current back-buffer index
// is owned by the presentation subsystem.
//
// Handles are opaque. Every handle that owns backend memory implements
// [Releaser]; callers release what they create and nothing else.
//
// Implementations live in backend/soft (a software GPU running on its own
// goroutine) and backend/wgpu (gogpu/wgpu HAL devices).
package platform

import (
	"errors"
	"time"

	"github.com/gogpu/gputypes"
)

// ErrDeviceLost is wrapped by backends when the device has been removed or
// reset. It is terminal: no later call on the same device will succeed.
var ErrDeviceLost = errors.New("platform: device lost")

// Infinite is the timeout that never expires.
const Infinite time.Duration = 1<<63 - 1

// Releaser is implemented by every handle that owns backend memory.
type Releaser interface {
	Release()
}

// Fence is a GPU-signalable 64-bit counter.
type Fence interface {
	Releaser

	// CompletedValue returns the last value the GPU reached.
	// It never decreases.
	CompletedValue() uint64

	// Wait blocks until CompletedValue() >= value or the timeout expires.
	// It reports whether the value was reached.
	Wait(value uint64, timeout time.Duration) (bool, error)
}

// Queue executes closed command lists in submission order.
type Queue interface {
	// Execute submits closed lists for execution after all earlier work.
	Execute(lists ...CommandList) error

	// Signal asks the queue to set f to value once every batch submitted
	// before this call has completed.
	Signal(f Fence, value uint64) error
}

// CommandAllocator backs the memory of command lists recorded against it.
// Reset reclaims that memory and is only legal once the GPU has finished
// executing every list recorded from it.
type CommandAllocator interface {
	Releaser
	Reset() error
}

// CommandList records GPU commands. Lists are created closed.
type CommandList interface {
	Releaser

	// Reset reopens the list for recording against a.
	Reset(a CommandAllocator) error

	// Barrier records a resource state transition.
	Barrier(res Resource, before, after ResourceState)

	// ClearRenderTarget clears the target behind the view.
	ClearRenderTarget(view Descriptor, color [4]float32)

	// Close ends recording.
	Close() error
}

// Resource is a GPU resource such as a back buffer.
type Resource interface {
	Releaser
}

// Descriptor addresses one slot in a DescriptorHeap.
type Descriptor uint64

// DescriptorHeap is a fixed-size, fixed-stride array of view slots.
type DescriptorHeap interface {
	Releaser
	Start() Descriptor
	Stride() uint64
	Len() int
}

// ResourceState is the usage state a resource is in from the GPU's view.
type ResourceState uint8

// Resource states.
const (
	StatePresent ResourceState = iota
	StateRenderTarget
	StateCopySource
	StateCopyDest
	StateShaderResource
)

// String returns the state name.
func (s ResourceState) String() string {
	switch s {
	case StatePresent:
		return "Present"
	case StateRenderTarget:
		return "RenderTarget"
	case StateCopySource:
		return "CopySource"
	case StateCopyDest:
		return "CopyDest"
	case StateShaderResource:
		return "ShaderResource"
	default:
		return "Unknown"
	}
}

// Device creates GPU objects.
type Device interface {
	// CreateFence creates a fence whose completed value starts at initial.
	CreateFence(initial uint64) (Fence, error)

	CreateCommandAllocator() (CommandAllocator, error)

	// CreateCommandList creates a list bound to a. The list is returned
	// closed and must be Reset before recording.
	CreateCommandList(a CommandAllocator) (CommandList, error)

	CreateDescriptorHeap(n int) (DescriptorHeap, error)

	// CreateRenderTargetView writes a render-target view of res into the
	// heap slot addressed by view.
	CreateRenderTargetView(res Resource, view Descriptor) error
}

// SwapChainFlags are backend specific creation flags preserved across
// resizes.
type SwapChainFlags uint32

// SwapChainDesc describes a swap chain.
type SwapChainDesc struct {
	Width       uint32
	Height      uint32
	Format      gputypes.TextureFormat
	BufferCount int
	Flags       SwapChainFlags
}

// SwapChain owns the presentable back buffers.
type SwapChain interface {
	Releaser

	Desc() SwapChainDesc

	// Buffer returns a new reference to back buffer i. The caller must
	// release it before ResizeBuffers.
	Buffer(i int) (Resource, error)

	// CurrentIndex returns the buffer the next frame must render into.
	// The order is decided by the presentation subsystem and need not be
	// sequential.
	CurrentIndex() int

	// Present queues the current back buffer for display. syncInterval is
	// the number of vertical blanks to wait; 0 presents immediately.
	Present(syncInterval int) error

	// ResizeBuffers recreates all back buffers. It fails while any
	// reference returned by Buffer is still held.
	ResizeBuffers(count int, width, height uint32, format gputypes.TextureFormat, flags SwapChainFlags) error
}

// Presenter creates swap chains bound to a queue.
type Presenter interface {
	CreateSwapChain(q Queue, desc SwapChainDesc) (SwapChain, error)
}

// Backend bundles the collaborators a renderer needs.
type Backend struct {
	Device    Device
	Queue     Queue
	Presenter Presenter
}

// Validate reports whether every collaborator is set.
func (b Backend) Validate() error {
	switch {
	case b.Device == nil:
		return errors.New("platform: nil device")
	case b.Queue == nil:
		return errors.New("platform: nil queue")
	case b.Presenter == nil:
		return errors.New("platform: nil presenter")
	}
	return nil
}
