// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gputest

import (
	"fmt"

	"github.com/gogpu/framepipe/platform"
	"github.com/gogpu/gputypes"
)

// Presenter implements platform.Presenter.
type Presenter Platform

// CreateSwapChain implements platform.Presenter.
func (pr *Presenter) CreateSwapChain(_ platform.Queue, desc platform.SwapChainDesc) (platform.SwapChain, error) {
	p := (*Platform)(pr)
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.take(OpCreateSwapChain); err != nil {
		return nil, err
	}
	sc := &SwapChain{p: p, desc: desc}
	sc.allocate()
	p.swapChain = sc
	p.record("swapchain create %dx%d x%d", desc.Width, desc.Height, desc.BufferCount)
	return sc, nil
}

// Buffer is one back buffer generation.
type Buffer struct {
	index int
	gen   int
	state platform.ResourceState
	refs  int
}

// BufferRef is a reference to a back buffer returned by SwapChain.Buffer.
type BufferRef struct {
	p        *Platform
	buf      *Buffer
	released bool
}

// Index returns the referenced back-buffer index.
func (r *BufferRef) Index() int { return r.buf.index }

// Release implements platform.Releaser. Releasing a buffer while executed
// work has not completed is a violation.
func (r *BufferRef) Release() {
	p := r.p
	p.mu.Lock()
	defer p.mu.Unlock()
	if r.released {
		p.violate("double release of buf %d", r.buf.index)
		return
	}
	if !p.drained() {
		p.violate("buf %d released with GPU work outstanding", r.buf.index)
	}
	r.released = true
	r.buf.refs--
	p.record("buf %d release", r.buf.index)
}

func (r *BufferRef) String() string { return fmt.Sprintf("buf %d", r.buf.index) }

// SwapChain implements platform.SwapChain.
type SwapChain struct {
	p       *Platform
	desc    platform.SwapChainDesc
	buffers []*Buffer
	current int
}

// allocate creates a fresh generation of buffers. Caller holds p.mu.
func (s *SwapChain) allocate() {
	s.p.gen++
	s.buffers = make([]*Buffer, s.desc.BufferCount)
	for i := range s.buffers {
		s.buffers[i] = &Buffer{index: i, gen: s.p.gen, state: platform.StatePresent}
	}
	s.p.buffers = append(s.p.buffers, s.buffers...)
	s.current = 0
	s.p.presents = 0
}

// Desc implements platform.SwapChain.
func (s *SwapChain) Desc() platform.SwapChainDesc {
	s.p.mu.Lock()
	defer s.p.mu.Unlock()
	return s.desc
}

// Buffer implements platform.SwapChain.
func (s *SwapChain) Buffer(i int) (platform.Resource, error) {
	p := s.p
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.take(OpBuffer); err != nil {
		return nil, err
	}
	if i < 0 || i >= len(s.buffers) {
		return nil, fmt.Errorf("gputest: buffer %d out of range", i)
	}
	b := s.buffers[i]
	b.refs++
	return &BufferRef{p: p, buf: b}, nil
}

// CurrentIndex implements platform.SwapChain.
func (s *SwapChain) CurrentIndex() int {
	s.p.mu.Lock()
	defer s.p.mu.Unlock()
	return s.current
}

// Present implements platform.SwapChain.
func (s *SwapChain) Present(syncInterval int) error {
	p := s.p
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.lostErr("present"); err != nil {
		return err
	}
	if err := p.take(OpPresent); err != nil {
		return err
	}
	if st := s.buffers[s.current].state; st != platform.StatePresent {
		p.violate("present of buf %d in state %s", s.current, st)
	}
	p.record("present buf %d sync %d", s.current, syncInterval)
	if len(p.order) > 0 {
		s.current = p.order[p.presents%len(p.order)]
	} else {
		s.current = (s.current + 1) % len(s.buffers)
	}
	p.presents++
	return nil
}

// ResizeBuffers implements platform.SwapChain.
func (s *SwapChain) ResizeBuffers(count int, width, height uint32, format gputypes.TextureFormat, flags platform.SwapChainFlags) error {
	p := s.p
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.lostErr("resize"); err != nil {
		return err
	}
	if err := p.take(OpResize); err != nil {
		return err
	}
	for _, b := range s.buffers {
		if b.refs > 0 {
			p.violate("resize with %d references to buf %d", b.refs, b.index)
			return fmt.Errorf("gputest: buffer %d still referenced", b.index)
		}
	}
	if format != s.desc.Format || flags != s.desc.Flags {
		p.violate("resize changed format or flags")
	}
	s.desc.BufferCount = count
	s.desc.Width, s.desc.Height = width, height
	s.desc.Format, s.desc.Flags = format, flags
	s.allocate()
	p.record("resize %dx%d", width, height)
	return nil
}

// Release implements platform.Releaser.
func (s *SwapChain) Release() {
	s.p.mu.Lock()
	defer s.p.mu.Unlock()
	s.p.record("swapchain release")
}
