// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gogpu/framepipe/platform"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// backBuffer is one swap-chain texture.
type backBuffer struct {
	index int
	tex   hal.Texture
	refs  atomic.Int32
}

// BufferRef is a reference to a back buffer handed out by SwapChain.Buffer.
type BufferRef struct {
	buf  *backBuffer
	once sync.Once
}

// Index returns the back-buffer index.
func (r *BufferRef) Index() int { return r.buf.index }

// Texture returns the HAL texture.
func (r *BufferRef) Texture() hal.Texture { return r.buf.tex }

// Release implements platform.Releaser.
func (r *BufferRef) Release() {
	r.once.Do(func() { r.buf.refs.Add(-1) })
}

// Presenter implements platform.Presenter.
type Presenter GPU

// CreateSwapChain implements platform.Presenter.
func (p *Presenter) CreateSwapChain(q platform.Queue, desc platform.SwapChainDesc) (platform.SwapChain, error) {
	g := (*GPU)(p)
	if qq, ok := q.(*Queue); !ok || (*GPU)(qq) != g {
		return nil, fmt.Errorf("%w: queue %T", ErrForeignObject, q)
	}
	sc := &SwapChain{g: g}
	if err := sc.allocate(desc); err != nil {
		return nil, err
	}
	return sc, nil
}

// SwapChain implements platform.SwapChain as a ring of offscreen textures.
type SwapChain struct {
	g *GPU

	mu      sync.Mutex
	desc    platform.SwapChainDesc
	bufs    []*backBuffer
	current int
}

func (s *SwapChain) allocate(desc platform.SwapChainDesc) error {
	if desc.BufferCount < 1 || desc.Width == 0 || desc.Height == 0 {
		return fmt.Errorf("wgpu: invalid swap chain %dx%d x%d", desc.Width, desc.Height, desc.BufferCount)
	}
	bufs := make([]*backBuffer, 0, desc.BufferCount)
	for i := range desc.BufferCount {
		tex, err := s.g.device.CreateTexture(&hal.TextureDescriptor{
			Label: fmt.Sprintf("framepipe_backbuffer_%d", i),
			Size: hal.Extent3D{
				Width:              desc.Width,
				Height:             desc.Height,
				DepthOrArrayLayers: 1,
			},
			MipLevelCount: 1,
			SampleCount:   1,
			Dimension:     gputypes.TextureDimension2D,
			Format:        desc.Format,
			Usage:         gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopySrc,
		})
		if err != nil {
			for _, b := range bufs {
				s.g.device.DestroyTexture(b.tex)
			}
			return fmt.Errorf("wgpu: create back buffer %d: %w", i, err)
		}
		bufs = append(bufs, &backBuffer{index: i, tex: tex})
	}
	s.desc = desc
	s.bufs = bufs
	s.current = 0
	return nil
}

func (s *SwapChain) destroyBuffers() {
	s.g.dropViews(s.bufs)
	for _, b := range s.bufs {
		s.g.device.DestroyTexture(b.tex)
	}
	s.bufs = nil
}

// Desc implements platform.SwapChain.
func (s *SwapChain) Desc() platform.SwapChainDesc {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.desc
}

// Buffer implements platform.SwapChain.
func (s *SwapChain) Buffer(i int) (platform.Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.bufs) {
		return nil, fmt.Errorf("wgpu: back buffer %d out of range", i)
	}
	b := s.bufs[i]
	b.refs.Add(1)
	return &BufferRef{buf: b}, nil
}

// CurrentIndex implements platform.SwapChain.
func (s *SwapChain) CurrentIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Present implements platform.SwapChain. The sync interval is validated but
// offscreen presents never wait for a vertical blank.
func (s *SwapChain) Present(syncInterval int) error {
	g := s.g
	if err := g.lostErr("present"); err != nil {
		return err
	}
	if syncInterval < 0 {
		return fmt.Errorf("wgpu: sync interval %d", syncInterval)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.bufs) == 0 {
		return fmt.Errorf("wgpu: present without back buffers")
	}
	b := s.bufs[s.current]
	if g.onPresent != nil {
		if err := g.onPresent(b.index, b.tex); err != nil {
			return g.classify("present", err)
		}
	}
	s.current = (s.current + 1) % len(s.bufs)
	g.presented.Add(1)
	return nil
}

// ResizeBuffers implements platform.SwapChain. A zero count keeps the
// current count.
func (s *SwapChain) ResizeBuffers(count int, width, height uint32, format gputypes.TextureFormat, flags platform.SwapChainFlags) error {
	if err := s.g.lostErr("resize buffers"); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.bufs {
		if n := b.refs.Load(); n > 0 {
			return fmt.Errorf("%w: buffer %d has %d references", ErrBuffersReferenced, b.index, n)
		}
	}
	if count == 0 {
		count = s.desc.BufferCount
	}
	old := s.desc
	s.destroyBuffers()
	err := s.allocate(platform.SwapChainDesc{
		Width:       width,
		Height:      height,
		Format:      format,
		BufferCount: count,
		Flags:       flags,
	})
	if err != nil {
		if rerr := s.allocate(old); rerr != nil {
			s.g.log.Error("wgpu: swap chain lost its buffers", "err", rerr)
		}
		return err
	}
	return nil
}

// Release implements platform.Releaser.
func (s *SwapChain) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.destroyBuffers()
}
