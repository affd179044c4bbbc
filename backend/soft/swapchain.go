// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package soft

import (
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/framepipe/platform"
	"github.com/gogpu/gputypes"
)

// Image is a back buffer.
type Image struct {
	index int

	mu    sync.Mutex
	pix   *image.RGBA
	bgra  bool
	state platform.ResourceState

	refs atomic.Int32
}

func newImage(index int, w, h uint32, bgra bool) *Image {
	return &Image{
		index: index,
		pix:   image.NewRGBA(image.Rect(0, 0, int(w), int(h))),
		bgra:  bgra,
		state: platform.StatePresent,
	}
}

// fill clears the image. Caller holds img.mu.
func (img *Image) fill(c [4]float32) {
	r, g, b, a := toByte(c[0]), toByte(c[1]), toByte(c[2]), toByte(c[3])
	if img.bgra {
		r, b = b, r
	}
	px := img.pix.Pix
	for i := 0; i+3 < len(px); i += 4 {
		px[i], px[i+1], px[i+2], px[i+3] = r, g, b, a
	}
}

// snapshot returns an RGBA copy. Caller holds img.mu.
func (img *Image) snapshot() *image.RGBA {
	out := image.NewRGBA(img.pix.Rect)
	copy(out.Pix, img.pix.Pix)
	if img.bgra {
		for i := 0; i+3 < len(out.Pix); i += 4 {
			out.Pix[i], out.Pix[i+2] = out.Pix[i+2], out.Pix[i]
		}
	}
	return out
}

func toByte(v float32) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 1:
		return 255
	}
	return uint8(v*255 + 0.5)
}

// BufferRef is a reference to a back buffer handed out by SwapChain.Buffer.
type BufferRef struct {
	img  *Image
	once sync.Once
}

// Index returns the back-buffer index.
func (r *BufferRef) Index() int { return r.img.index }

// Release implements platform.Releaser.
func (r *BufferRef) Release() {
	r.once.Do(func() { r.img.refs.Add(-1) })
}

func imageOf(res platform.Resource) (*Image, bool) {
	if r, ok := res.(*BufferRef); ok && r != nil {
		return r.img, true
	}
	return nil, false
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

// SwapChain implements platform.SwapChain with a flip model. The buffer
// after a present follows Config.PresentOrder, or the next index without
// one.
type SwapChain struct {
	g *GPU

	mu       sync.Mutex
	desc     platform.SwapChainDesc
	images   []*Image
	current  int
	presents int // since the last allocation
}

func (s *SwapChain) allocate(desc platform.SwapChainDesc) error {
	var bgra bool
	switch desc.Format {
	case gputypes.TextureFormatRGBA8Unorm:
	case gputypes.TextureFormatBGRA8Unorm:
		bgra = true
	default:
		return fmt.Errorf("%w: %v", ErrUnsupportedFormat, desc.Format)
	}
	if desc.BufferCount < 1 || desc.Width == 0 || desc.Height == 0 {
		return fmt.Errorf("soft: invalid swap chain %dx%d x%d", desc.Width, desc.Height, desc.BufferCount)
	}
	images := make([]*Image, desc.BufferCount)
	for i := range images {
		images[i] = newImage(i, desc.Width, desc.Height, bgra)
	}
	s.desc = desc
	s.images = images
	s.current = 0
	s.presents = 0
	return nil
}

// next returns the buffer that becomes current after a present of
// s.current. Caller holds s.mu.
func (s *SwapChain) next() int {
	order := s.g.cfg.PresentOrder
	rr := (s.current + 1) % len(s.images)
	if len(order) == 0 {
		return rr
	}
	i := order[s.presents%len(order)]
	if i < 0 || i >= len(s.images) {
		s.g.debugf("soft: present order index %d out of range for %d buffers", i, len(s.images))
		return rr
	}
	return i
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
	if i < 0 || i >= len(s.images) {
		return nil, fmt.Errorf("soft: back buffer %d out of range", i)
	}
	img := s.images[i]
	img.refs.Add(1)
	return &BufferRef{img: img}, nil
}

// CurrentIndex implements platform.SwapChain.
func (s *SwapChain) CurrentIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Present implements platform.SwapChain.
func (s *SwapChain) Present(syncInterval int) error {
	g := s.g
	if err := g.lostErr("present"); err != nil {
		return err
	}
	if syncInterval < 0 {
		return fmt.Errorf("soft: sync interval %d", syncInterval)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := g.enqueue(presentOp{img: s.images[s.current], sync: syncInterval}); err != nil {
		return err
	}
	s.current = s.next()
	s.presents++
	return nil
}

// ResizeBuffers implements platform.SwapChain.
func (s *SwapChain) ResizeBuffers(count int, width, height uint32, format gputypes.TextureFormat, flags platform.SwapChainFlags) error {
	g := s.g
	if err := g.lostErr("resize buffers"); err != nil {
		return err
	}
	if n := g.queued.Load(); n > 0 {
		g.debugf("%w: %d operations queued during resize", ErrQueueBusy, n)
		return fmt.Errorf("%w: %d operations queued", ErrQueueBusy, n)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, img := range s.images {
		if n := img.refs.Load(); n > 0 {
			g.debugf("%w: buffer %d has %d references", ErrBuffersReferenced, img.index, n)
			return fmt.Errorf("%w: buffer %d has %d references", ErrBuffersReferenced, img.index, n)
		}
	}
	if count == 0 {
		count = s.desc.BufferCount
	}
	return s.allocate(platform.SwapChainDesc{
		Width:       width,
		Height:      height,
		Format:      format,
		BufferCount: count,
		Flags:       flags,
	})
}

// Release implements platform.Releaser.
func (s *SwapChain) Release() {}

type presentOp struct {
	img  *Image
	sync int
}

func (o presentOp) exec(g *GPU) {
	g.sleep(g.cfg.VBlank * time.Duration(o.sync))

	o.img.mu.Lock()
	if o.img.state != platform.StatePresent {
		g.debugf("soft: present of buffer %d in state %s", o.img.index, o.img.state)
	}
	shot := o.img.snapshot()
	o.img.mu.Unlock()

	g.mu.Lock()
	g.lastShow = shot
	g.mu.Unlock()
	g.present.Add(1)
}

func (o presentOp) discard(*GPU) {}
