// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package soft

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/framepipe/platform"
)

// heapStride is the distance between descriptors in a heap.
const heapStride = 64

// Device implements platform.Device.
type Device GPU

func (d *Device) gpu() *GPU { return (*GPU)(d) }

// CreateFence implements platform.Device.
func (d *Device) CreateFence(initial uint64) (platform.Fence, error) {
	return &Fence{g: d.gpu(), completed: initial, changed: make(chan struct{})}, nil
}

// CreateCommandAllocator implements platform.Device.
func (d *Device) CreateCommandAllocator() (platform.CommandAllocator, error) {
	return &Allocator{g: d.gpu()}, nil
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
	g := d.gpu()
	if n <= 0 {
		return nil, fmt.Errorf("soft: descriptor heap size %d", n)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.heaps++
	return &Heap{g: g, start: platform.Descriptor(g.heaps << 20), n: n}, nil
}

// CreateRenderTargetView implements platform.Device.
func (d *Device) CreateRenderTargetView(res platform.Resource, view platform.Descriptor) error {
	img, ok := imageOf(res)
	if !ok {
		return fmt.Errorf("%w: resource %T", ErrForeignObject, res)
	}
	g := d.gpu()
	g.mu.Lock()
	defer g.mu.Unlock()
	g.views[view] = img
	return nil
}

// lookup resolves a render-target view.
func (g *GPU) lookup(view platform.Descriptor) (*Image, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	img, ok := g.views[view]
	return img, ok
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

// Release implements platform.Releaser. Views in the heap become invalid.
func (h *Heap) Release() {
	h.g.mu.Lock()
	defer h.g.mu.Unlock()
	end := h.start + platform.Descriptor(uint64(h.n)*heapStride)
	for d := range h.g.views {
		if d >= h.start && d < end {
			delete(h.g.views, d)
		}
	}
}

// Fence implements platform.Fence. Only the GPU goroutine advances it.
type Fence struct {
	g *GPU

	mu        sync.Mutex
	completed uint64
	changed   chan struct{}
}

func (f *Fence) set(v uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v <= f.completed {
		return
	}
	f.completed = v
	close(f.changed)
	f.changed = make(chan struct{})
}

// CompletedValue implements platform.Fence.
func (f *Fence) CompletedValue() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.completed
}

// Wait implements platform.Fence.
func (f *Fence) Wait(value uint64, timeout time.Duration) (bool, error) {
	var expired <-chan time.Time
	if timeout < platform.Infinite {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}
	for {
		f.mu.Lock()
		if f.completed >= value {
			f.mu.Unlock()
			return true, nil
		}
		ch := f.changed
		f.mu.Unlock()

		select {
		case <-ch:
		case <-expired:
			return false, nil
		case <-f.g.lostCh:
			return false, f.g.lostErr("wait")
		}
	}
}

// Release implements platform.Releaser.
func (f *Fence) Release() {}

// Allocator implements platform.CommandAllocator. It counts lists recorded
// from it that the GPU has not finished.
type Allocator struct {
	g        *GPU
	inflight atomic.Int64
}

// Reset implements platform.CommandAllocator.
func (a *Allocator) Reset() error {
	if n := a.inflight.Load(); n > 0 {
		a.g.debugf("%w: %d lists in flight", ErrAllocatorBusy, n)
		return fmt.Errorf("%w: %d lists in flight", ErrAllocatorBusy, n)
	}
	return nil
}

// Release implements platform.Releaser.
func (a *Allocator) Release() {}

// command is one recorded GPU command.
type command interface {
	run(g *GPU)
}

// List implements platform.CommandList.
type List struct {
	g     *GPU
	alloc *Allocator
	open  bool
	cmds  []command
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
	l.alloc = alloc
	// The previous slice may still be read by the GPU goroutine.
	l.cmds = nil
	l.open = true
	return nil
}

// Barrier implements platform.CommandList.
func (l *List) Barrier(res platform.Resource, before, after platform.ResourceState) {
	if !l.open {
		l.g.debugf("soft: barrier recorded into closed list")
		return
	}
	img, ok := imageOf(res)
	if !ok {
		l.g.debugf("%w: barrier on %T", ErrForeignObject, res)
		return
	}
	l.cmds = append(l.cmds, barrierCmd{img: img, before: before, after: after})
}

// ClearRenderTarget implements platform.CommandList.
func (l *List) ClearRenderTarget(view platform.Descriptor, color [4]float32) {
	if !l.open {
		l.g.debugf("soft: clear recorded into closed list")
		return
	}
	img, ok := l.g.lookup(view)
	if !ok {
		l.g.debugf("soft: clear through unknown view %#x", uint64(view))
		return
	}
	l.cmds = append(l.cmds, clearCmd{img: img, color: color})
}

// Close implements platform.CommandList.
func (l *List) Close() error {
	if !l.open {
		return fmt.Errorf("%w: close of closed list", ErrListState)
	}
	l.open = false
	return nil
}

// Release implements platform.Releaser.
func (l *List) Release() {}

type barrierCmd struct {
	img           *Image
	before, after platform.ResourceState
}

func (c barrierCmd) run(g *GPU) {
	c.img.mu.Lock()
	defer c.img.mu.Unlock()
	if c.img.state != c.before {
		g.debugf("soft: buffer %d barrier %s->%s but state is %s",
			c.img.index, c.before, c.after, c.img.state)
	}
	c.img.state = c.after
}

type clearCmd struct {
	img   *Image
	color [4]float32
}

func (c clearCmd) run(g *GPU) {
	c.img.mu.Lock()
	defer c.img.mu.Unlock()
	if c.img.state != platform.StateRenderTarget {
		g.debugf("soft: clear of buffer %d in state %s", c.img.index, c.img.state)
	}
	c.img.fill(c.color)
}
