// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/framepipe/platform"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// heapStride is the distance between descriptors in a heap.
const heapStride = 256

// viewEntry is a render-target view stored at a descriptor.
type viewEntry struct {
	view hal.TextureView
	buf  *backBuffer
}

// Device implements platform.Device.
type Device GPU

func (d *Device) gpu() *GPU { return (*GPU)(d) }

// CreateFence implements platform.Device. The fence starts completed at
// initial.
func (d *Device) CreateFence(initial uint64) (platform.Fence, error) {
	return &Fence{g: d.gpu(), completed: initial}, nil
}

// CreateCommandAllocator implements platform.Device.
func (d *Device) CreateCommandAllocator() (platform.CommandAllocator, error) {
	g := d.gpu()
	enc, err := g.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: "framepipe_allocator",
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create command encoder: %w", err)
	}
	return &Allocator{g: g, enc: enc}, nil
}

// CreateCommandList implements platform.Device. The list is returned closed.
func (d *Device) CreateCommandList(a platform.CommandAllocator) (platform.CommandList, error) {
	alloc, ok := a.(*Allocator)
	if !ok {
		return nil, fmt.Errorf("%w: allocator %T", ErrForeignObject, a)
	}
	return &List{g: d.gpu(), alloc: alloc}, nil
}

// CreateDescriptorHeap implements platform.Device.
func (d *Device) CreateDescriptorHeap(n int) (platform.DescriptorHeap, error) {
	if n <= 0 {
		return nil, fmt.Errorf("wgpu: descriptor heap size %d", n)
	}
	g := d.gpu()
	g.mu.Lock()
	defer g.mu.Unlock()
	g.heaps++
	return &Heap{g: g, start: platform.Descriptor(g.heaps << 24), n: n}, nil
}

// CreateRenderTargetView implements platform.Device. A view already stored
// at the descriptor is destroyed.
func (d *Device) CreateRenderTargetView(res platform.Resource, at platform.Descriptor) error {
	ref, ok := res.(*BufferRef)
	if !ok || ref == nil {
		return fmt.Errorf("%w: resource %T", ErrForeignObject, res)
	}
	g := d.gpu()
	view, err := g.device.CreateTextureView(ref.buf.tex, &hal.TextureViewDescriptor{
		Label: fmt.Sprintf("framepipe_rtv_%d", ref.buf.index),
	})
	if err != nil {
		return fmt.Errorf("wgpu: create texture view: %w", err)
	}

	g.mu.Lock()
	old, had := g.views[at]
	g.views[at] = viewEntry{view: view, buf: ref.buf}
	g.mu.Unlock()
	if had {
		g.device.DestroyTextureView(old.view)
	}
	return nil
}

func (g *GPU) lookup(at platform.Descriptor) (viewEntry, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.views[at]
	return e, ok
}

// dropViews destroys every view of the given back buffers.
func (g *GPU) dropViews(bufs []*backBuffer) {
	set := make(map[*backBuffer]bool, len(bufs))
	for _, b := range bufs {
		set[b] = true
	}
	g.mu.Lock()
	var doomed []hal.TextureView
	for at, e := range g.views {
		if set[e.buf] {
			doomed = append(doomed, e.view)
			delete(g.views, at)
		}
	}
	g.mu.Unlock()
	for _, v := range doomed {
		g.device.DestroyTextureView(v)
	}
}

// Heap implements platform.DescriptorHeap.
type Heap struct {
	g     *GPU
	start platform.Descriptor
	n     int
}

// Start implements platform.DescriptorHeap.
func (h *Heap) Start() platform.Descriptor { return h.start }

// Stride implements platform.DescriptorHeap.
func (h *Heap) Stride() uint64 { return heapStride }

// Len implements platform.DescriptorHeap.
func (h *Heap) Len() int { return h.n }

// Release implements platform.Releaser. Views in the heap are destroyed.
func (h *Heap) Release() {
	end := h.start + platform.Descriptor(uint64(h.n)*heapStride)
	h.g.mu.Lock()
	var doomed []hal.TextureView
	for at, e := range h.g.views {
		if at >= h.start && at < end {
			doomed = append(doomed, e.view)
			delete(h.g.views, at)
		}
	}
	h.g.mu.Unlock()
	for _, v := range doomed {
		h.g.device.DestroyTextureView(v)
	}
}

// Fence.Wait polls starting at minPollInterval, doubling up to
// maxPollInterval.
const (
	minPollInterval = 50 * time.Microsecond
	maxPollInterval = 2 * time.Millisecond
)

// Fence implements platform.Fence on HAL submission indices. Each signaled
// value is bound to the last submission made before it and completes when
// Queue.PollCompleted reaches that submission.
type Fence struct {
	g *GPU

	mu        sync.Mutex
	completed uint64
	marks     []fenceMark // signaled, not yet complete; ascending submission
}

type fenceMark struct {
	value      uint64
	submission uint64
}

func (f *Fence) signal(value, submission uint64) {
	f.mu.Lock()
	f.marks = append(f.marks, fenceMark{value: value, submission: submission})
	f.mu.Unlock()
}

// advance completes every mark covered by the finished submission done and
// returns the completed value.
func (f *Fence) advance(done uint64) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := 0
	for ; i < len(f.marks) && f.marks[i].submission <= done; i++ {
		if v := f.marks[i].value; v > f.completed {
			f.completed = v
		}
	}
	f.marks = f.marks[i:]
	return f.completed
}

// CompletedValue implements platform.Fence.
func (f *Fence) CompletedValue() uint64 {
	return f.advance(f.g.pollCompleted())
}

// Wait implements platform.Fence. It polls the queue until the value
// completes or the timeout expires.
func (f *Fence) Wait(value uint64, timeout time.Duration) (bool, error) {
	if f.CompletedValue() >= value {
		return true, nil
	}
	if err := f.g.lostErr("wait"); err != nil {
		return false, err
	}
	if timeout <= 0 {
		return false, nil
	}

	var deadline time.Time
	if timeout != platform.Infinite {
		deadline = time.Now().Add(timeout)
	}
	interval := minPollInterval
	for {
		sleep := interval
		if !deadline.IsZero() {
			left := time.Until(deadline)
			if left <= 0 {
				return false, nil
			}
			sleep = min(sleep, left)
		}
		time.Sleep(sleep)
		interval = min(2*interval, maxPollInterval)

		if f.CompletedValue() >= value {
			return true, nil
		}
		if err := f.g.lostErr("wait"); err != nil {
			return false, err
		}
	}
}

// Release implements platform.Releaser.
func (f *Fence) Release() {
	f.mu.Lock()
	f.marks = nil
	f.mu.Unlock()
}

// Allocator implements platform.CommandAllocator. It owns a command encoder
// and the command buffers recorded with it.
type Allocator struct {
	g   *GPU
	enc hal.CommandEncoder

	mu   sync.Mutex
	bufs []hal.CommandBuffer
}

func (a *Allocator) keep(buf hal.CommandBuffer) {
	a.mu.Lock()
	a.bufs = append(a.bufs, buf)
	a.mu.Unlock()
}

// Reset implements platform.CommandAllocator. It resets the encoder and the
// command buffers recorded since the last reset so the next BeginEncoding
// can reuse them. The caller guarantees the GPU is done with them.
func (a *Allocator) Reset() error {
	a.mu.Lock()
	bufs := a.bufs
	a.bufs = nil
	a.mu.Unlock()
	a.enc.ResetAll(bufs)
	return nil
}

// Release implements platform.Releaser. The encoder is destroyed.
func (a *Allocator) Release() {
	_ = a.Reset()
	a.enc.Destroy()
}

// List implements platform.CommandList on its allocator's encoder.
type List struct {
	g     *GPU
	alloc *Allocator
	open  bool
	cmd   hal.CommandBuffer // closed, not yet executed
}

// Reset implements platform.CommandList.
func (l *List) Reset(a platform.CommandAllocator) error {
	if l.open {
		return fmt.Errorf("%w: reset of open list", ErrListState)
	}
	alloc, ok := a.(*Allocator)
	if !ok {
		return fmt.Errorf("%w: allocator %T", ErrForeignObject, a)
	}
	if err := alloc.enc.BeginEncoding("framepipe_frame"); err != nil {
		return fmt.Errorf("wgpu: begin encoding: %w", err)
	}
	l.alloc = alloc
	l.cmd = nil
	l.open = true
	return nil
}

// Barrier implements platform.CommandList.
func (l *List) Barrier(res platform.Resource, before, after platform.ResourceState) {
	ref, ok := res.(*BufferRef)
	if !l.open || !ok || ref == nil {
		l.g.log.Warn("wgpu: barrier dropped", "open", l.open, "resource", fmt.Sprintf("%T", res))
		return
	}
	l.alloc.enc.TransitionTextures([]hal.TextureBarrier{{
		Texture: ref.buf.tex,
		Usage: hal.TextureUsageTransition{
			OldUsage: usageOf(before),
			NewUsage: usageOf(after),
		},
	}})
}

// ClearRenderTarget implements platform.CommandList with an empty render
// pass that clears and stores.
func (l *List) ClearRenderTarget(at platform.Descriptor, c [4]float32) {
	e, ok := l.g.lookup(at)
	if !l.open || !ok {
		l.g.log.Warn("wgpu: clear dropped", "open", l.open, "view", uint64(at))
		return
	}
	rp := l.alloc.enc.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: "framepipe_clear",
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:       e.view,
			LoadOp:     gputypes.LoadOpClear,
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: gputypes.Color{R: float64(c[0]), G: float64(c[1]), B: float64(c[2]), A: float64(c[3])},
		}},
	})
	rp.End()
}

// Close implements platform.CommandList.
func (l *List) Close() error {
	if !l.open {
		return fmt.Errorf("%w: close of closed list", ErrListState)
	}
	l.open = false
	buf, err := l.alloc.enc.EndEncoding()
	if err != nil {
		return fmt.Errorf("wgpu: end encoding: %w", err)
	}
	l.alloc.keep(buf)
	l.cmd = buf
	return nil
}

// Release implements platform.Releaser.
func (l *List) Release() {
	if l.open {
		l.alloc.enc.DiscardEncoding()
		l.open = false
	}
}

// usageOf maps a resource state to the HAL texture usage it corresponds to.
func usageOf(s platform.ResourceState) gputypes.TextureUsage {
	switch s {
	case platform.StateRenderTarget:
		return gputypes.TextureUsageRenderAttachment
	case platform.StateCopyDest:
		return gputypes.TextureUsageCopyDst
	case platform.StateShaderResource:
		return gputypes.TextureUsageTextureBinding
	default:
		return gputypes.TextureUsageCopySrc
	}
}
