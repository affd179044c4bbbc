// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package framepipe

import (
	"fmt"

	"github.com/gogpu/framepipe/platform"
)

// SwapChain adapts a platform swap chain. It caches the current back-buffer
// index and refreshes it from the presentation subsystem after every present
// and resize; the index is never computed locally.
type SwapChain struct {
	sc    platform.SwapChain
	desc  platform.SwapChainDesc
	index int
}

// NewSwapChain creates a swap chain for q.
func NewSwapChain(p platform.Presenter, q platform.Queue, desc platform.SwapChainDesc) (*SwapChain, error) {
	sc, err := p.CreateSwapChain(q, desc)
	if err != nil {
		return nil, fmt.Errorf("create swap chain: %w", err)
	}
	return &SwapChain{sc: sc, desc: sc.Desc(), index: sc.CurrentIndex()}, nil
}

// CurrentIndex returns the back buffer the next frame renders into.
func (s *SwapChain) CurrentIndex() int { return s.index }

// Desc returns the swap chain description after the last resize.
func (s *SwapChain) Desc() platform.SwapChainDesc { return s.desc }

// BufferCount returns the number of back buffers.
func (s *SwapChain) BufferCount() int { return s.desc.BufferCount }

// Buffer returns a new reference to back buffer i.
func (s *SwapChain) Buffer(i int) (platform.Resource, error) {
	res, err := s.sc.Buffer(i)
	if err != nil {
		return nil, fmt.Errorf("get back buffer %d: %w", i, err)
	}
	return res, nil
}

// Present presents the current back buffer and refreshes the index.
// Device loss is returned wrapping ErrDeviceLost; any other failure wraps
// ErrPresent and leaves the index unchanged.
func (s *SwapChain) Present(syncInterval int) error {
	if err := s.sc.Present(syncInterval); err != nil {
		if isDeviceLost(err) {
			return fmt.Errorf("present: %w", err)
		}
		return fmt.Errorf("%w: %w", ErrPresent, err)
	}
	s.index = s.sc.CurrentIndex()
	return nil
}

// Resize recreates the back buffers at width x height, keeping the buffer
// count, format and flags. Every reference returned by Buffer must have been
// released and all GPU work using them must have completed.
func (s *SwapChain) Resize(width, height uint32) error {
	live := s.sc.Desc()
	err := s.sc.ResizeBuffers(s.desc.BufferCount, width, height, live.Format, live.Flags)
	if err != nil {
		return fmt.Errorf("resize buffers to %dx%d: %w", width, height, err)
	}
	s.desc = s.sc.Desc()
	s.index = s.sc.CurrentIndex()
	return nil
}

// Release releases the platform swap chain.
func (s *SwapChain) Release() {
	s.sc.Release()
}
