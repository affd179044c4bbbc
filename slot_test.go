// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package framepipe

import (
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/gogpu/framepipe/internal/gputest"
	"github.com/gogpu/framepipe/platform"
)

func newTestPool(t *testing.T, n int) (*FramePool, *Fence, *gputest.Platform) {
	t.Helper()
	f, p := newTestFence(t)
	pool, err := NewFramePool(p.Backend().Device, f, n)
	if err != nil {
		t.Fatalf("NewFramePool() error = %v", err)
	}
	return pool, f, p
}

func TestFramePoolAcquire(t *testing.T) {
	pool, _, _ := newTestPool(t, 3)

	if pool.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", pool.Len())
	}
	for i := range 3 {
		s, err := pool.Acquire(i)
		if err != nil {
			t.Fatalf("Acquire(%d) error = %v", i, err)
		}
		if s.Index() != i {
			t.Errorf("Acquire(%d).Index() = %d", i, s.Index())
		}
	}
	for _, i := range []int{-1, 3} {
		if _, err := pool.Acquire(i); !errors.Is(err, ErrSlotIndex) {
			t.Errorf("Acquire(%d) error = %v, want ErrSlotIndex", i, err)
		}
	}
}

func TestFramePoolAllocatorsAreDistinct(t *testing.T) {
	pool, _, _ := newTestPool(t, 4)

	seen := make(map[platform.CommandAllocator]bool)
	for i := range pool.Len() {
		s, _ := pool.Acquire(i)
		if seen[s.Allocator()] {
			t.Fatalf("slot %d shares an allocator", i)
		}
		seen[s.Allocator()] = true
	}
}

func TestFramePoolBeginReuseTimeout(t *testing.T) {
	pool, f, p := newTestPool(t, 2)
	s, _ := pool.Acquire(0)

	v, _ := f.Signal(p.Backend().Queue)
	if err := pool.MarkSubmitted(s, v); err != nil {
		t.Fatal(err)
	}
	p.ResetEvents()

	ok, err := pool.BeginReuse(s, 5*time.Millisecond)
	if err != nil || ok {
		t.Fatalf("BeginReuse() = %v, %v; want false, nil", ok, err)
	}
	if slices.Contains(p.Events(), "alloc 0 reset") {
		t.Error("allocator reset after timeout")
	}

	p.Complete(v)
	ok, err = pool.BeginReuse(s, 0)
	if err != nil || !ok {
		t.Fatalf("BeginReuse() after completion = %v, %v", ok, err)
	}
	if !slices.Contains(p.Events(), "alloc 0 reset") {
		t.Error("allocator not reset")
	}
}

func TestFramePoolBeginReuseAssertsCompletion(t *testing.T) {
	// The platform claims the wait succeeded but the fence never moved.
	f := &Fence{f: &stubFence{completed: []uint64{0}, waitOK: true}, next: 1}
	p := gputest.New()
	pool, err := NewFramePool(p.Backend().Device, f, 2)
	if err != nil {
		t.Fatal(err)
	}
	s, _ := pool.Acquire(1)
	_ = pool.MarkSubmitted(s, 4)

	if _, err := pool.BeginReuse(s, time.Second); !errors.Is(err, ErrSlotInFlight) {
		t.Errorf("BeginReuse() error = %v, want ErrSlotInFlight", err)
	}
}

func TestFramePoolMarkSubmitted(t *testing.T) {
	pool, _, _ := newTestPool(t, 2)
	s, _ := pool.Acquire(0)

	tests := []struct {
		value   uint64
		wantErr bool
	}{
		{1, false},
		{4, false},
		{4, true},
		{3, true},
		{5, false},
	}
	for _, tt := range tests {
		err := pool.MarkSubmitted(s, tt.value)
		if (err != nil) != tt.wantErr {
			t.Errorf("MarkSubmitted(%d) error = %v, wantErr %v", tt.value, err, tt.wantErr)
		}
		if tt.wantErr && !errors.Is(err, ErrSlotOrder) {
			t.Errorf("MarkSubmitted(%d) error = %v, want ErrSlotOrder", tt.value, err)
		}
	}
	if s.FenceValue() != 5 {
		t.Errorf("FenceValue() = %d, want 5", s.FenceValue())
	}
}

func TestFramePoolPropagate(t *testing.T) {
	pool, _, _ := newTestPool(t, 3)
	s0, _ := pool.Acquire(0)
	s2, _ := pool.Acquire(2)
	_ = pool.MarkSubmitted(s0, 2)
	_ = pool.MarkSubmitted(s2, 9)

	pool.Propagate(7)

	want := []uint64{7, 7, 9}
	for i, w := range want {
		s, _ := pool.Acquire(i)
		if s.FenceValue() != w {
			t.Errorf("slot %d FenceValue() = %d, want %d", i, s.FenceValue(), w)
		}
	}
}

func TestFramePoolBind(t *testing.T) {
	pool, _, p := newTestPool(t, 2)
	sc, err := NewSwapChain(p.Backend().Presenter, p.Backend().Queue, platform.SwapChainDesc{
		Width: 4, Height: 4, Format: DefaultConfig().Format, BufferCount: 2,
	})
	if err != nil {
		t.Fatal(err)
	}

	b0, _ := sc.Buffer(0)
	if err := pool.Bind([]platform.Resource{b0}); !errors.Is(err, ErrBufferCount) {
		t.Fatalf("Bind() with one buffer error = %v, want ErrBufferCount", err)
	}
	b1, _ := sc.Buffer(1)
	if err := pool.Bind([]platform.Resource{b0, b1}); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	if s, _ := pool.Acquire(1); s.BackBuffer() != b1 {
		t.Error("slot 1 not bound to buffer 1")
	}

	pool.ReleaseBackBuffers()
	if n := p.LiveBufferRefs(); n != 0 {
		t.Errorf("LiveBufferRefs() = %d after ReleaseBackBuffers", n)
	}
	if s, _ := pool.Acquire(0); s.BackBuffer() != nil {
		t.Error("slot 0 still holds a back buffer")
	}
}

func TestNewFramePoolFailure(t *testing.T) {
	f, p := newTestFence(t)
	p.FailNext(gputest.OpCreateAllocator, nil)

	if _, err := NewFramePool(p.Backend().Device, f, 3); !errors.Is(err, gputest.ErrInjected) {
		t.Fatalf("NewFramePool() error = %v, want ErrInjected", err)
	}
}
