// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gogpu/framepipe/platform"
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// openNoop opens a GPU on the no-op HAL backend for testing.
func openNoop(t *testing.T, opts ...Option) *GPU {
	t.Helper()
	g, err := OpenNoop(opts...)
	if err != nil {
		t.Fatalf("OpenNoop failed: %v", err)
	}
	t.Cleanup(g.Close)
	return g
}

func testDesc() platform.SwapChainDesc {
	return platform.SwapChainDesc{
		Width:       16,
		Height:      8,
		Format:      gputypes.TextureFormatRGBA8Unorm,
		BufferCount: 3,
	}
}

func TestPlatformValid(t *testing.T) {
	g := openNoop(t)
	if err := g.Platform().Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
	if g.PreferredFormat() != gputypes.TextureFormatRGBA8Unorm {
		t.Errorf("PreferredFormat() = %v", g.PreferredFormat())
	}
}

func TestFenceSignalAndWait(t *testing.T) {
	g := openNoop(t)
	b := g.Platform()
	f, err := b.Device.CreateFence(0)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Release()

	if v := f.CompletedValue(); v != 0 {
		t.Errorf("CompletedValue() = %d, want 0", v)
	}
	ok, err := f.Wait(0, 0)
	if err != nil || !ok {
		t.Errorf("Wait(0) = %v, %v; want true", ok, err)
	}

	for v := uint64(1); v <= 3; v++ {
		if err := b.Queue.Signal(f, v); err != nil {
			t.Fatalf("Signal(%d) error = %v", v, err)
		}
	}
	ok, err = f.Wait(3, time.Second)
	if err != nil || !ok {
		t.Fatalf("Wait(3) = %v, %v", ok, err)
	}
	if v := f.CompletedValue(); v != 3 {
		t.Errorf("CompletedValue() = %d, want 3", v)
	}
}

func TestFenceInitialValue(t *testing.T) {
	g := openNoop(t)
	f, err := g.Platform().Device.CreateFence(5)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Release()
	if v := f.CompletedValue(); v != 5 {
		t.Errorf("CompletedValue() = %d, want 5", v)
	}
}

func TestListState(t *testing.T) {
	g := openNoop(t)
	b := g.Platform()
	a, _ := b.Device.CreateCommandAllocator()
	defer a.Release()
	l, _ := b.Device.CreateCommandList(a)
	defer l.Release()

	if err := l.Close(); !errors.Is(err, ErrListState) {
		t.Errorf("Close() of new list error = %v, want ErrListState", err)
	}
	if err := b.Queue.Execute(l); !errors.Is(err, ErrListState) {
		t.Errorf("Execute() of empty list error = %v, want ErrListState", err)
	}
	if err := l.Reset(a); err != nil {
		t.Fatal(err)
	}
	if err := l.Reset(a); !errors.Is(err, ErrListState) {
		t.Errorf("Reset() of open list error = %v, want ErrListState", err)
	}
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}
	if err := b.Queue.Execute(l); err != nil {
		t.Errorf("Execute() error = %v", err)
	}
	if err := b.Queue.Execute(l); !errors.Is(err, ErrListState) {
		t.Errorf("second Execute() error = %v, want ErrListState", err)
	}
}

func TestForeignObjects(t *testing.T) {
	g := openNoop(t)
	other := openNoop(t)
	b := g.Platform()

	f, _ := other.Platform().Device.CreateFence(0)
	defer f.Release()
	if err := b.Queue.Signal(f, 1); !errors.Is(err, ErrForeignObject) {
		t.Errorf("Signal() with foreign fence error = %v, want ErrForeignObject", err)
	}
	if _, err := b.Presenter.CreateSwapChain(other.Platform().Queue, testDesc()); !errors.Is(err, ErrForeignObject) {
		t.Errorf("CreateSwapChain() with foreign queue error = %v, want ErrForeignObject", err)
	}
}

func TestSwapChainPresentAndResize(t *testing.T) {
	var presented []int
	g := openNoop(t, WithPresentFunc(func(index int, tex hal.Texture) error {
		if tex == nil {
			t.Error("present hook got nil texture")
		}
		presented = append(presented, index)
		return nil
	}))
	b := g.Platform()
	sc, err := b.Presenter.CreateSwapChain(b.Queue, testDesc())
	if err != nil {
		t.Fatal(err)
	}
	defer sc.Release()

	for range 4 {
		if err := sc.Present(1); err != nil {
			t.Fatal(err)
		}
	}
	if want := []int{0, 1, 2, 0}; len(presented) != 4 || presented[3] != want[3] || presented[1] != want[1] {
		t.Errorf("presented = %v, want %v", presented, want)
	}
	if sc.CurrentIndex() != 1 || g.Presented() != 4 {
		t.Errorf("CurrentIndex() = %d, Presented() = %d", sc.CurrentIndex(), g.Presented())
	}

	buf, _ := sc.Buffer(2)
	if err := sc.ResizeBuffers(0, 32, 32, gputypes.TextureFormatRGBA8Unorm, 0); !errors.Is(err, ErrBuffersReferenced) {
		t.Fatalf("ResizeBuffers() with reference error = %v, want ErrBuffersReferenced", err)
	}
	buf.Release()
	if err := sc.ResizeBuffers(0, 32, 32, gputypes.TextureFormatRGBA8Unorm, 0); err != nil {
		t.Fatal(err)
	}
	if d := sc.Desc(); d.Width != 32 || d.BufferCount != 3 || sc.CurrentIndex() != 0 {
		t.Errorf("after resize Desc() = %+v, CurrentIndex() = %d", d, sc.CurrentIndex())
	}
}

func TestRenderTargetViews(t *testing.T) {
	g := openNoop(t)
	b := g.Platform()
	sc, _ := b.Presenter.CreateSwapChain(b.Queue, testDesc())
	defer sc.Release()
	heap, err := b.Device.CreateDescriptorHeap(3)
	if err != nil {
		t.Fatal(err)
	}

	for i := range 3 {
		buf, _ := sc.Buffer(i)
		at := heap.Start() + platform.Descriptor(uint64(i)*heap.Stride())
		if err := b.Device.CreateRenderTargetView(buf, at); err != nil {
			t.Fatal(err)
		}
		buf.Release()
	}
	if n := len(g.views); n != 3 {
		t.Errorf("views = %d, want 3", n)
	}
	heap.Release()
	if n := len(g.views); n != 0 {
		t.Errorf("views after heap release = %d, want 0", n)
	}
	if err := b.Device.CreateRenderTargetView(nil, heap.Start()); !errors.Is(err, ErrForeignObject) {
		t.Errorf("CreateRenderTargetView(nil) error = %v, want ErrForeignObject", err)
	}
}

func TestLose(t *testing.T) {
	g := openNoop(t)
	b := g.Platform()
	sc, _ := b.Presenter.CreateSwapChain(b.Queue, testDesc())
	defer sc.Release()
	f, _ := b.Device.CreateFence(0)
	defer f.Release()

	g.Lose()
	if !g.Lost() {
		t.Fatal("Lost() = false")
	}
	if err := sc.Present(0); !errors.Is(err, platform.ErrDeviceLost) {
		t.Errorf("Present() error = %v, want ErrDeviceLost", err)
	}
	if err := b.Queue.Signal(f, 1); !errors.Is(err, platform.ErrDeviceLost) {
		t.Errorf("Signal() error = %v, want ErrDeviceLost", err)
	}
	if _, err := f.Wait(1, time.Second); !errors.Is(err, platform.ErrDeviceLost) {
		t.Errorf("Wait() error = %v, want ErrDeviceLost", err)
	}
}

func TestClassify(t *testing.T) {
	g := New(nil, nil)
	if err := g.classify("submit", nil); err != nil {
		t.Errorf("classify(nil) = %v", err)
	}
	err := g.classify("submit", errors.New("out of memory"))
	if err == nil || errors.Is(err, platform.ErrDeviceLost) || g.Lost() {
		t.Errorf("classify(oom) = %v, lost = %v", err, g.Lost())
	}
	err = g.classify("submit", errors.New("vulkan: device lost while mapping"))
	if errors.Is(err, platform.ErrDeviceLost) || g.Lost() {
		t.Errorf("classify(text only) = %v, lost = %v", err, g.Lost())
	}
	err = g.classify("submit", fmt.Errorf("vkQueueSubmit: VK_ERROR_DEVICE_LOST: %w", hal.ErrDeviceLost))
	if !errors.Is(err, platform.ErrDeviceLost) || !errors.Is(err, hal.ErrDeviceLost) || !g.Lost() {
		t.Errorf("classify(hal.ErrDeviceLost) = %v, lost = %v", err, g.Lost())
	}
}

func TestUsageOf(t *testing.T) {
	tests := []struct {
		state platform.ResourceState
		want  gputypes.TextureUsage
	}{
		{platform.StatePresent, gputypes.TextureUsageCopySrc},
		{platform.StateRenderTarget, gputypes.TextureUsageRenderAttachment},
		{platform.StateCopySource, gputypes.TextureUsageCopySrc},
		{platform.StateCopyDest, gputypes.TextureUsageCopyDst},
		{platform.StateShaderResource, gputypes.TextureUsageTextureBinding},
	}
	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			if got := usageOf(tt.state); got != tt.want {
				t.Errorf("usageOf(%v) = %v, want %v", tt.state, got, tt.want)
			}
		})
	}
}

// laggingQueue is a HAL queue whose submissions complete only when the test
// says so.
type laggingQueue struct {
	hal.Queue
	submitted atomic.Uint64
	done      atomic.Uint64
	err       error
}

func (q *laggingQueue) Submit([]hal.CommandBuffer) (uint64, error) {
	if q.err != nil {
		return 0, q.err
	}
	return q.submitted.Add(1), nil
}

func (q *laggingQueue) PollCompleted() uint64 { return q.done.Load() }

// recordFrame records and executes one empty frame.
func recordFrame(t *testing.T, b platform.Backend, a platform.CommandAllocator, l platform.CommandList) {
	t.Helper()
	if err := l.Reset(a); err != nil {
		t.Fatal(err)
	}
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}
	if err := b.Queue.Execute(l); err != nil {
		t.Fatal(err)
	}
}

func TestFenceFollowsSubmissions(t *testing.T) {
	dev := openNoop(t)
	q := &laggingQueue{Queue: dev.queue}
	g := New(dev.device, q)
	b := g.Platform()

	f, _ := b.Device.CreateFence(0)
	defer f.Release()
	a, _ := b.Device.CreateCommandAllocator()
	defer a.Release()
	l, _ := b.Device.CreateCommandList(a)
	defer l.Release()

	recordFrame(t, b, a, l) // submission 1
	if err := b.Queue.Signal(f, 1); err != nil {
		t.Fatal(err)
	}
	recordFrame(t, b, a, l) // submission 2
	if err := b.Queue.Signal(f, 2); err != nil {
		t.Fatal(err)
	}

	if v := f.CompletedValue(); v != 0 {
		t.Errorf("CompletedValue() before completion = %d, want 0", v)
	}
	if ok, err := f.Wait(1, 0); ok || err != nil {
		t.Errorf("Wait(1, 0) = %v, %v; want false, nil", ok, err)
	}
	start := time.Now()
	if ok, err := f.Wait(1, 5*time.Millisecond); ok || err != nil {
		t.Errorf("Wait(1, 5ms) = %v, %v; want false, nil", ok, err)
	}
	if d := time.Since(start); d < 5*time.Millisecond {
		t.Errorf("Wait(1, 5ms) returned after %v", d)
	}

	q.done.Store(1)
	if v := f.CompletedValue(); v != 1 {
		t.Errorf("CompletedValue() after submission 1 = %d, want 1", v)
	}

	go func() {
		time.Sleep(2 * time.Millisecond)
		q.done.Store(2)
	}()
	ok, err := f.Wait(2, platform.Infinite)
	if !ok || err != nil {
		t.Fatalf("Wait(2, Infinite) = %v, %v", ok, err)
	}
	if v := f.CompletedValue(); v != 2 {
		t.Errorf("CompletedValue() = %d, want 2", v)
	}

	// Nothing submitted since value 2: value 3 rides on submission 2.
	if err := b.Queue.Signal(f, 3); err != nil {
		t.Fatal(err)
	}
	if v := f.CompletedValue(); v != 3 {
		t.Errorf("CompletedValue() after idle signal = %d, want 3", v)
	}
}

func TestSubmitDeviceLost(t *testing.T) {
	dev := openNoop(t)
	q := &laggingQueue{Queue: dev.queue, err: fmt.Errorf("submit: %w", hal.ErrDeviceLost)}
	g := New(dev.device, q)
	b := g.Platform()
	a, _ := b.Device.CreateCommandAllocator()
	defer a.Release()
	l, _ := b.Device.CreateCommandList(a)
	defer l.Release()

	if err := l.Reset(a); err != nil {
		t.Fatal(err)
	}
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}
	if err := b.Queue.Execute(l); !errors.Is(err, platform.ErrDeviceLost) {
		t.Errorf("Execute() error = %v, want ErrDeviceLost", err)
	}
	if !g.Lost() {
		t.Error("Lost() = false after device-lost submit")
	}
}

// lifecycleEncoder enforces the HAL encoder lifecycle: an encoder closed by
// EndEncoding needs ResetAll before it can begin again.
type lifecycleEncoder struct {
	hal.CommandEncoder
	recording bool
	closed    bool
	reset     [][]hal.CommandBuffer
	destroyed bool
}

func (e *lifecycleEncoder) BeginEncoding(label string) error {
	switch {
	case e.destroyed:
		return errors.New("begin on destroyed encoder")
	case e.recording:
		return errors.New("begin while recording")
	case e.closed:
		return errors.New("begin without ResetAll")
	}
	e.recording = true
	return e.CommandEncoder.BeginEncoding(label)
}

func (e *lifecycleEncoder) EndEncoding() (hal.CommandBuffer, error) {
	if !e.recording {
		return nil, errors.New("end without begin")
	}
	e.recording = false
	e.closed = true
	return e.CommandEncoder.EndEncoding()
}

func (e *lifecycleEncoder) ResetAll(bufs []hal.CommandBuffer) {
	e.closed = false
	e.reset = append(e.reset, bufs)
	e.CommandEncoder.ResetAll(bufs)
}

func (e *lifecycleEncoder) Destroy() {
	e.destroyed = true
	e.CommandEncoder.Destroy()
}

type lifecycleDevice struct {
	hal.Device
	encoders []*lifecycleEncoder
}

func (d *lifecycleDevice) CreateCommandEncoder(desc *hal.CommandEncoderDescriptor) (hal.CommandEncoder, error) {
	enc, err := d.Device.CreateCommandEncoder(desc)
	if err != nil {
		return nil, err
	}
	e := &lifecycleEncoder{CommandEncoder: enc}
	d.encoders = append(d.encoders, e)
	return e, nil
}

func TestAllocatorReuseCycles(t *testing.T) {
	dev := openNoop(t)
	ld := &lifecycleDevice{Device: dev.device}
	g := New(ld, dev.queue)
	b := g.Platform()

	a, err := b.Device.CreateCommandAllocator()
	if err != nil {
		t.Fatal(err)
	}
	l, _ := b.Device.CreateCommandList(a)
	for cycle := range 2 {
		if err := a.Reset(); err != nil {
			t.Fatalf("cycle %d: allocator Reset() error = %v", cycle, err)
		}
		if err := l.Reset(a); err != nil {
			t.Fatalf("cycle %d: list Reset() error = %v", cycle, err)
		}
		if err := l.Close(); err != nil {
			t.Fatalf("cycle %d: Close() error = %v", cycle, err)
		}
		if err := b.Queue.Execute(l); err != nil {
			t.Fatalf("cycle %d: Execute() error = %v", cycle, err)
		}
	}

	enc := ld.encoders[0]
	if len(enc.reset) != 2 || len(enc.reset[0]) != 0 || len(enc.reset[1]) != 1 {
		t.Errorf("ResetAll calls = %v, want [] then one buffer", enc.reset)
	}
	l.Release()
	a.Release()
	if !enc.destroyed {
		t.Error("encoder not destroyed by allocator Release")
	}
}

// halProvider is a gpucontext.DeviceProvider that also exposes HAL objects.
type halProvider struct {
	basicProvider
	device, queue any
}

func (p halProvider) HalDevice() any { return p.device }
func (p halProvider) HalQueue() any  { return p.queue }

type basicProvider struct {
	format gputypes.TextureFormat
}

func (basicProvider) Device() gpucontext.Device               { return nil }
func (basicProvider) Queue() gpucontext.Queue                 { return nil }
func (p basicProvider) SurfaceFormat() gputypes.TextureFormat { return p.format }
func (basicProvider) Adapter() gpucontext.Adapter             { return nil }
func (basicProvider) AdapterInfo() gpucontext.AdapterInfo     { return gpucontext.AdapterInfo{} }

func TestFromProvider(t *testing.T) {
	dev := openNoop(t)

	t.Run("hal", func(t *testing.T) {
		p := halProvider{
			basicProvider: basicProvider{format: gputypes.TextureFormatBGRA8Unorm},
			device:        dev.device,
			queue:         dev.queue,
		}
		g, err := FromProvider(p)
		if err != nil {
			t.Fatalf("FromProvider() error = %v", err)
		}
		defer g.Close()
		if g.PreferredFormat() != gputypes.TextureFormatBGRA8Unorm {
			t.Errorf("PreferredFormat() = %v, want BGRA8Unorm", g.PreferredFormat())
		}
		if err := g.Platform().Validate(); err != nil {
			t.Errorf("Validate() error = %v", err)
		}
		f, _ := g.Platform().Device.CreateFence(0)
		defer f.Release()
		if err := g.Platform().Queue.Signal(f, 1); err != nil {
			t.Errorf("Signal() error = %v", err)
		}
	})

	t.Run("headless format", func(t *testing.T) {
		g, err := FromProvider(halProvider{device: dev.device, queue: dev.queue})
		if err != nil {
			t.Fatal(err)
		}
		if g.PreferredFormat() != gputypes.TextureFormatRGBA8Unorm {
			t.Errorf("PreferredFormat() = %v, want RGBA8Unorm", g.PreferredFormat())
		}
	})

	rejects := []struct {
		name     string
		provider gpucontext.DeviceProvider
	}{
		{"no hal methods", basicProvider{}},
		{"wrong device type", halProvider{device: "device", queue: dev.queue}},
		{"wrong queue type", halProvider{device: dev.device, queue: 42}},
		{"nil objects", halProvider{}},
	}
	for _, tt := range rejects {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := FromProvider(tt.provider); !errors.Is(err, ErrNotHAL) {
				t.Errorf("FromProvider() error = %v, want ErrNotHAL", err)
			}
		})
	}
}
