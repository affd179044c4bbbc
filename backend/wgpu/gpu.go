// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gogpu/framepipe/platform"
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
)

// Package errors.
var (
	// ErrBackendUnavailable is returned by Open when the requested HAL
	// backend is not compiled in.
	ErrBackendUnavailable = errors.New("wgpu: backend not available")

	// ErrNoAdapter is returned by Open when the instance exposes no adapter.
	ErrNoAdapter = errors.New("wgpu: no GPU adapter found")

	// ErrNotHAL is returned by FromProvider when the provider does not
	// expose HAL objects.
	ErrNotHAL = errors.New("wgpu: provider does not expose HAL types")

	// ErrBuffersReferenced is returned by ResizeBuffers while a back-buffer
	// reference is held.
	ErrBuffersReferenced = errors.New("wgpu: back buffers still referenced")

	// ErrListState is returned for Reset of an open list, Close of a closed
	// list and Execute of an open or empty list.
	ErrListState = errors.New("wgpu: invalid command list state")

	// ErrForeignObject is returned when an object from another backend is
	// passed in.
	ErrForeignObject = errors.New("wgpu: object not created by this gpu")
)

// PresentFunc is called by Present with the back buffer being presented.
// It runs on the caller's goroutine before the index advances.
type PresentFunc func(index int, tex hal.Texture) error

// Option configures a GPU.
type Option func(*GPU)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(g *GPU) {
		if l != nil {
			g.log = l
		}
	}
}

// WithPresentFunc sets the hook Present calls for every presented texture.
func WithPresentFunc(fn PresentFunc) Option {
	return func(g *GPU) { g.onPresent = fn }
}

// GPU is a HAL device and queue exposed as a platform.Backend.
type GPU struct {
	device hal.Device
	queue  hal.Queue
	log    *slog.Logger

	onPresent PresentFunc

	// Set when the GPU opened the device itself.
	instance hal.Instance
	owned    bool
	info     string

	preferred gputypes.TextureFormat

	mu    sync.Mutex
	views map[platform.Descriptor]viewEntry
	heaps uint64

	subMu   sync.Mutex
	lastSub uint64 // highest index returned by Queue.Submit

	lost      atomic.Bool
	presented atomic.Uint64
	closeOnce sync.Once
}

// New wraps an open HAL device. The caller keeps ownership of device and
// queue.
func New(device hal.Device, queue hal.Queue, opts ...Option) *GPU {
	g := &GPU{
		device:    device,
		queue:     queue,
		log:       slog.New(slog.DiscardHandler),
		views:     make(map[platform.Descriptor]viewEntry),
		preferred: gputypes.TextureFormatRGBA8Unorm,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Open creates an instance of the given HAL backend and opens its first
// hardware adapter, preferring discrete and integrated GPUs. The backend
// must be linked in, for example with
//
//	import _ "github.com/gogpu/wgpu/hal/vulkan"
func Open(api gputypes.Backend, opts ...Option) (*GPU, error) {
	backend, ok := hal.GetBackend(api)
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, api)
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create instance: %w", err)
	}
	return openInstance(instance, opts)
}

// OpenNoop opens the no-op HAL backend.
func OpenNoop(opts ...Option) (*GPU, error) {
	instance, err := noop.API{}.CreateInstance(nil)
	if err != nil {
		return nil, fmt.Errorf("wgpu: create noop instance: %w", err)
	}
	return openInstance(instance, opts)
}

func openInstance(instance hal.Instance, opts []Option) (*GPU, error) {
	adapter, ok := pickAdapter(instance.EnumerateAdapters(nil))
	if !ok {
		instance.Destroy()
		return nil, ErrNoAdapter
	}
	openDev, err := adapter.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("wgpu: open device: %w", err)
	}

	g := New(openDev.Device, openDev.Queue, opts...)
	g.instance = instance
	g.owned = true
	g.info = adapter.Info.Name
	g.log.Info("wgpu: device opened", "adapter", adapter.Info.Name, "type", adapter.Info.DeviceType)
	return g, nil
}

// pickAdapter prefers a hardware GPU and falls back to the first adapter.
func pickAdapter(adapters []hal.ExposedAdapter) (*hal.ExposedAdapter, bool) {
	if len(adapters) == 0 {
		return nil, false
	}
	for i := range adapters {
		switch adapters[i].Info.DeviceType {
		case gputypes.DeviceTypeDiscreteGPU, gputypes.DeviceTypeIntegratedGPU:
			return &adapters[i], true
		}
	}
	return &adapters[0], true
}

// FromProvider wraps the device of a gogpu application. The provider must
// also implement HalDevice() any and HalQueue() any returning hal.Device and
// hal.Queue. The provider's surface format becomes PreferredFormat.
func FromProvider(provider gpucontext.DeviceProvider, opts ...Option) (*GPU, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, ErrNotHAL
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok {
		return nil, fmt.Errorf("%w: device is %T", ErrNotHAL, hp.HalDevice())
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok {
		return nil, fmt.Errorf("%w: queue is %T", ErrNotHAL, hp.HalQueue())
	}
	g := New(device, queue, opts...)
	if f := provider.SurfaceFormat(); f != gputypes.TextureFormatUndefined {
		g.preferred = f
	}
	return g, nil
}

// Platform returns the GPU as a platform.Backend.
func (g *GPU) Platform() platform.Backend {
	return platform.Backend{
		Device:    (*Device)(g),
		Queue:     (*Queue)(g),
		Presenter: (*Presenter)(g),
	}
}

// AdapterName returns the adapter name when the GPU opened the device
// itself, or "".
func (g *GPU) AdapterName() string { return g.info }

// PreferredFormat returns the back-buffer format the device presents best.
func (g *GPU) PreferredFormat() gputypes.TextureFormat { return g.preferred }

// Presented returns the number of successful presents.
func (g *GPU) Presented() uint64 { return g.presented.Load() }

// Lose marks the device lost. Every later queue, wait and present call
// returns an error wrapping platform.ErrDeviceLost.
func (g *GPU) Lose() {
	if !g.lost.Swap(true) {
		g.log.Warn("wgpu: device lost")
	}
}

// Lost reports whether the device was lost.
func (g *GPU) Lost() bool { return g.lost.Load() }

// Close waits for the device to go idle and destroys it when the GPU opened
// it. Objects created from the GPU must be released first.
func (g *GPU) Close() {
	g.closeOnce.Do(func() {
		if !g.owned {
			return
		}
		g.device.Destroy()
		g.instance.Destroy()
		g.log.Info("wgpu: device closed")
	})
}

func (g *GPU) lostErr(op string) error {
	if g.lost.Load() {
		return fmt.Errorf("wgpu: %s: %w", op, platform.ErrDeviceLost)
	}
	return nil
}

// classify wraps a HAL error. hal.ErrDeviceLost marks the GPU lost and is
// wrapped with platform.ErrDeviceLost.
func (g *GPU) classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, hal.ErrDeviceLost) {
		g.Lose()
		return fmt.Errorf("wgpu: %s: %w: %w", op, platform.ErrDeviceLost, err)
	}
	return fmt.Errorf("wgpu: %s: %w", op, err)
}
