// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gputest

import (
	"fmt"

	"github.com/gogpu/framepipe/platform"
)

// Device implements platform.Device.
type Device Platform

// CreateFence implements platform.Device.
func (d *Device) CreateFence(initial uint64) (platform.Fence, error) {
	p := (*Platform)(d)
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.take(OpCreateFence); err != nil {
		return nil, err
	}
	f := &Fence{p: p, completed: initial, signaled: initial, changed: make(chan struct{})}
	p.fences = append(p.fences, f)
	p.record("fence create %d", initial)
	return f, nil
}

// CreateCommandAllocator implements platform.Device.
func (d *Device) CreateCommandAllocator() (platform.CommandAllocator, error) {
	p := (*Platform)(d)
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.take(OpCreateAllocator); err != nil {
		return nil, err
	}
	p.allocs++
	a := &Allocator{p: p, id: p.allocs - 1}
	p.record("alloc %d create", a.id)
	return a, nil
}

// CreateCommandList implements platform.Device. The list starts closed.
func (d *Device) CreateCommandList(a platform.CommandAllocator) (platform.CommandList, error) {
	p := (*Platform)(d)
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.take(OpCreateList); err != nil {
		return nil, err
	}
	alloc, ok := a.(*Allocator)
	if !ok {
		return nil, fmt.Errorf("gputest: foreign allocator %T", a)
	}
	p.record("list create alloc %d", alloc.id)
	return &List{p: p, alloc: alloc}, nil
}

// CreateDescriptorHeap implements platform.Device.
func (d *Device) CreateDescriptorHeap(n int) (platform.DescriptorHeap, error) {
	p := (*Platform)(d)
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.take(OpCreateHeap); err != nil {
		return nil, err
	}
	p.record("heap create %d", n)
	return &Heap{p: p, n: n}, nil
}

// CreateRenderTargetView implements platform.Device.
func (d *Device) CreateRenderTargetView(res platform.Resource, view platform.Descriptor) error {
	p := (*Platform)(d)
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.take(OpCreateView); err != nil {
		return err
	}
	ref, ok := res.(*BufferRef)
	if !ok {
		return fmt.Errorf("gputest: view of foreign resource %T", res)
	}
	if view < heapStart || (uint64(view-heapStart))%heapStride != 0 {
		p.violate("view %#x not on heap stride", uint64(view))
	}
	p.views[view] = ref
	p.record("view %#x buf %d", uint64(view), ref.buf.index)
	return nil
}

// Heap implements platform.DescriptorHeap.
type Heap struct {
	p *Platform
	n int
}

// Start implements platform.DescriptorHeap.
func (h *Heap) Start() platform.Descriptor { return heapStart }

// Stride implements platform.DescriptorHeap.
func (h *Heap) Stride() uint64 { return heapStride }

// Len implements platform.DescriptorHeap.
func (h *Heap) Len() int { return h.n }

// Release implements platform.Releaser.
func (h *Heap) Release() {
	h.p.mu.Lock()
	defer h.p.mu.Unlock()
	h.p.record("heap release")
}

// Allocator implements platform.CommandAllocator.
type Allocator struct {
	p  *Platform
	id int
}

// ID returns the allocator's creation index.
func (a *Allocator) ID() int { return a.id }

// Reset implements platform.CommandAllocator. Resetting while a list
// recorded from the allocator is still executing is a violation.
func (a *Allocator) Reset() error {
	p := a.p
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.take(OpResetAllocator); err != nil {
		return err
	}
	for _, s := range p.pending {
		if s.alloc == a {
			p.violate("alloc %d reset with unsignalled work", a.id)
		}
	}
	for _, s := range p.inflight {
		if s.alloc == a {
			p.violate("alloc %d reset with work in flight until fence %d", a.id, s.value)
		}
	}
	p.record("alloc %d reset", a.id)
	return nil
}

// Release implements platform.Releaser.
func (a *Allocator) Release() {
	a.p.mu.Lock()
	defer a.p.mu.Unlock()
	a.p.record("alloc %d release", a.id)
}

// List implements platform.CommandList. Barriers are checked against the
// state the buffer will be in when the list executes; the states are
// committed to the buffers on Execute.
type List struct {
	p      *Platform
	alloc  *Allocator
	open   bool
	states map[*Buffer]platform.ResourceState
}

// state returns the buffer state as seen by commands recorded so far.
// Caller holds p.mu.
func (l *List) state(b *Buffer) platform.ResourceState {
	if s, ok := l.states[b]; ok {
		return s
	}
	return b.state
}

// Reset implements platform.CommandList.
func (l *List) Reset(a platform.CommandAllocator) error {
	p := l.p
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.take(OpResetList); err != nil {
		return err
	}
	if l.open {
		p.violate("list reset while open")
	}
	alloc, ok := a.(*Allocator)
	if !ok {
		return fmt.Errorf("gputest: foreign allocator %T", a)
	}
	l.alloc = alloc
	l.open = true
	l.states = make(map[*Buffer]platform.ResourceState)
	p.record("list reset alloc %d", alloc.id)
	return nil
}

// Barrier implements platform.CommandList.
func (l *List) Barrier(res platform.Resource, before, after platform.ResourceState) {
	p := l.p
	p.mu.Lock()
	defer p.mu.Unlock()
	if !l.open {
		p.violate("barrier on closed list")
		return
	}
	ref, ok := res.(*BufferRef)
	if !ok {
		p.record("barrier %v %s->%s", res, before, after)
		return
	}
	if ref.released {
		p.violate("barrier on released buffer %d", ref.buf.index)
	}
	if st := l.state(ref.buf); st != before {
		p.violate("buf %d barrier from %s but state is %s", ref.buf.index, before, st)
	}
	l.states[ref.buf] = after
	p.record("barrier buf %d %s->%s", ref.buf.index, before, after)
}

// ClearRenderTarget implements platform.CommandList.
func (l *List) ClearRenderTarget(view platform.Descriptor, _ [4]float32) {
	p := l.p
	p.mu.Lock()
	defer p.mu.Unlock()
	if !l.open {
		p.violate("clear on closed list")
		return
	}
	ref, ok := p.views[view]
	if !ok {
		p.violate("clear through unknown view %#x", uint64(view))
		return
	}
	if st := l.state(ref.buf); st != platform.StateRenderTarget {
		p.violate("clear of buf %d in state %s", ref.buf.index, st)
	}
	p.record("clear buf %d", ref.buf.index)
}

// Close implements platform.CommandList.
func (l *List) Close() error {
	p := l.p
	p.mu.Lock()
	defer p.mu.Unlock()
	l.open = false
	if err := p.take(OpCloseList); err != nil {
		return err
	}
	p.record("list close")
	return nil
}

// Release implements platform.Releaser.
func (l *List) Release() {
	l.p.mu.Lock()
	defer l.p.mu.Unlock()
	l.p.record("list release")
}
