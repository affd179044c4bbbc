// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package framepipe

import (
	"fmt"
	"time"

	"github.com/gogpu/framepipe/platform"
)

// FrameSlot is the per-back-buffer set of recording resources.
//
// The allocator belongs to this slot only. The back buffer is replaced on
// every resize. FenceValue is the value the GPU must reach before the
// allocator may be reset.
type FrameSlot struct {
	index      int
	allocator  platform.CommandAllocator
	backBuffer platform.Resource
	fenceValue uint64
}

// Index returns the slot's back-buffer index.
func (s *FrameSlot) Index() int { return s.index }

// Allocator returns the slot's command allocator.
func (s *FrameSlot) Allocator() platform.CommandAllocator { return s.allocator }

// BackBuffer returns the slot's back buffer, or nil while none is bound.
func (s *FrameSlot) BackBuffer() platform.Resource { return s.backBuffer }

// FenceValue returns the fence value of the slot's last submission.
func (s *FrameSlot) FenceValue() uint64 { return s.fenceValue }

// FramePool is a fixed arena of frame slots indexed by back-buffer index.
type FramePool struct {
	fence *Fence
	slots []*FrameSlot
}

// NewFramePool creates n slots, each with its own command allocator.
func NewFramePool(dev platform.Device, fence *Fence, n int) (*FramePool, error) {
	p := &FramePool{fence: fence, slots: make([]*FrameSlot, 0, n)}
	for i := range n {
		a, err := dev.CreateCommandAllocator()
		if err != nil {
			p.Release()
			return nil, fmt.Errorf("create command allocator %d: %w", i, err)
		}
		p.slots = append(p.slots, &FrameSlot{index: i, allocator: a})
	}
	return p, nil
}

// Len returns the number of slots.
func (p *FramePool) Len() int { return len(p.slots) }

// Acquire returns the slot for back-buffer index i.
func (p *FramePool) Acquire(i int) (*FrameSlot, error) {
	if i < 0 || i >= len(p.slots) {
		return nil, fmt.Errorf("%w: %d of %d", ErrSlotIndex, i, len(p.slots))
	}
	return p.slots[i], nil
}

// BeginReuse waits until the GPU has finished the slot's last submission and
// then resets the slot's allocator. On timeout it returns (false, nil) and
// leaves the allocator untouched.
func (p *FramePool) BeginReuse(s *FrameSlot, timeout time.Duration) (bool, error) {
	ok, err := p.fence.WaitUntil(s.fenceValue, timeout)
	if err != nil || !ok {
		return false, err
	}
	if c := p.fence.Completed(); c < s.fenceValue {
		return false, fmt.Errorf("%w: slot %d needs fence %d, completed %d",
			ErrSlotInFlight, s.index, s.fenceValue, c)
	}
	if err := s.allocator.Reset(); err != nil {
		return false, fmt.Errorf("reset allocator %d: %w", s.index, err)
	}
	return true, nil
}

// MarkSubmitted records the fence value that covers the slot's latest
// submission. Values per slot must strictly increase.
func (p *FramePool) MarkSubmitted(s *FrameSlot, value uint64) error {
	if value <= s.fenceValue {
		return fmt.Errorf("%w: slot %d at %d, got %d", ErrSlotOrder, s.index, s.fenceValue, value)
	}
	s.fenceValue = value
	return nil
}

// Propagate raises every slot's fence value to at least value. After a flush
// to value, it makes every slot immediately reusable while keeping the
// per-slot values monotonic.
func (p *FramePool) Propagate(value uint64) {
	for _, s := range p.slots {
		if value > s.fenceValue {
			s.fenceValue = value
		}
	}
}

// Bind attaches a new set of back buffers, one per slot, in index order.
func (p *FramePool) Bind(buffers []platform.Resource) error {
	if len(buffers) != len(p.slots) {
		return fmt.Errorf("%w: %d buffers for %d slots", ErrBufferCount, len(buffers), len(p.slots))
	}
	for i, s := range p.slots {
		s.backBuffer = buffers[i]
	}
	return nil
}

// ReleaseBackBuffers drops every slot's back-buffer reference.
func (p *FramePool) ReleaseBackBuffers() {
	for _, s := range p.slots {
		if s.backBuffer != nil {
			s.backBuffer.Release()
			s.backBuffer = nil
		}
	}
}

// Release releases back buffers and allocators.
func (p *FramePool) Release() {
	p.ReleaseBackBuffers()
	for _, s := range p.slots {
		if s.allocator != nil {
			s.allocator.Release()
			s.allocator = nil
		}
	}
}
