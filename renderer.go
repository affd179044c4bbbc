// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package framepipe

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gogpu/framepipe/platform"
)

// Renderer drives the frame pipeline.
//
// Render, Resize, Flush and Close serialize on an internal mutex, so only
// one frame is ever recording. The renderer blocks in two places only: the
// wait for a frame slot at the start of Render, and the queue flush in
// Resize, Flush and Close.
type Renderer struct {
	mu sync.Mutex

	cfg   Config
	log   *slog.Logger
	work  Workload
	queue platform.Queue

	fence *Fence
	sc    *SwapChain
	views *ViewTable
	pool  *FramePool
	rec   *Recorder

	state  State
	closed bool

	// lost is the device-lost error; every later call returns it.
	lost error
	// unsignaled is set when lists were executed but the fence signal that
	// covers them failed. The next frame flushes before reusing any slot.
	unsignaled bool
	// unbound holds the cause when a failed resize left the slots without
	// back buffers.
	unbound error

	stats Stats
}

// New creates a renderer on b. Every GPU object the pipeline needs is created
// here; on failure the error wraps ErrSetup and everything created so far is
// released.
func New(b platform.Backend, cfg Config, opts ...Option) (*Renderer, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	log := o.logger
	if log == nil {
		log = Logger()
	}

	if err := b.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSetup, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSetup, err)
	}

	r := &Renderer{
		cfg:   cfg,
		log:   log,
		work:  o.workload,
		queue: b.Queue,
	}
	if err := r.setup(b); err != nil {
		r.release()
		return nil, fmt.Errorf("%w: %w", ErrSetup, err)
	}

	log.Info("framepipe: renderer created",
		"buffers", cfg.BufferCount,
		"width", cfg.Width,
		"height", cfg.Height,
		"format", cfg.Format,
		"syncInterval", cfg.SyncInterval)
	return r, nil
}

func (r *Renderer) setup(b platform.Backend) error {
	var err error
	if r.fence, err = NewFence(b.Device); err != nil {
		return err
	}
	if r.sc, err = NewSwapChain(b.Presenter, b.Queue, r.cfg.swapChainDesc()); err != nil {
		return err
	}
	if n := r.sc.BufferCount(); n != r.cfg.BufferCount {
		return fmt.Errorf("%w: swap chain has %d buffers, want %d", ErrBufferCount, n, r.cfg.BufferCount)
	}
	if r.views, err = NewViewTable(b.Device, r.cfg.BufferCount); err != nil {
		return err
	}
	if r.pool, err = NewFramePool(b.Device, r.fence, r.cfg.BufferCount); err != nil {
		return err
	}
	if err = r.bindBuffers(); err != nil {
		return err
	}
	r.rec, err = NewRecorder(b.Device, r.pool.slots[0].allocator)
	return err
}

// release frees every GPU object in reverse creation order.
func (r *Renderer) release() {
	if r.rec != nil {
		r.rec.Release()
		r.rec = nil
	}
	if r.pool != nil {
		r.pool.Release()
		r.pool = nil
	}
	if r.views != nil {
		r.views.Release()
		r.views = nil
	}
	if r.sc != nil {
		r.sc.Release()
		r.sc = nil
	}
	if r.fence != nil {
		r.fence.Release()
		r.fence = nil
	}
}

// bindBuffers rebuilds the view table and hands the buffers to the slots.
func (r *Renderer) bindBuffers() error {
	buffers, err := r.views.Rebuild(r.sc)
	if err != nil {
		return err
	}
	if err := r.pool.Bind(buffers); err != nil {
		for _, b := range buffers {
			b.Release()
		}
		return err
	}
	return nil
}

// Render records, submits and presents one frame.
//
// If the slot for the current back buffer is still in use by the GPU,
// Render blocks until it is free or Config.WaitTimeout expires. A timeout
// returns ErrWaitTimeout and leaves the renderer unchanged.
func (r *Renderer) Render() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.usable(); err != nil {
		return err
	}
	if r.unbound != nil {
		return fmt.Errorf("%w: no back buffers since failed resize: %w", ErrResize, r.unbound)
	}
	if r.unsignaled {
		if err := r.drain(); err != nil {
			return r.fail(ErrSubmit, err)
		}
	}

	slot, err := r.pool.Acquire(r.sc.CurrentIndex())
	if err != nil {
		return r.fail(ErrRecord, err)
	}
	if !r.fence.Poll(slot.FenceValue()) {
		r.stats.BlockedWaits++
		r.log.Debug("framepipe: waiting for frame slot",
			"slot", slot.Index(),
			"fence", slot.FenceValue(),
			"completed", r.fence.Completed())
	}
	ok, err := r.pool.BeginReuse(slot, r.cfg.timeout())
	if err != nil {
		return r.fail(ErrRecord, err)
	}
	if !ok {
		r.stats.Timeouts++
		completed := r.fence.Completed()
		r.log.Warn("framepipe: frame slot wait timed out",
			"slot", slot.Index(),
			"fence", slot.FenceValue(),
			"completed", completed,
			"timeout", r.cfg.timeout())
		return fmt.Errorf("%w: slot %d needs fence %d, completed %d",
			ErrWaitTimeout, slot.Index(), slot.FenceValue(), completed)
	}

	r.state = StateRecording
	list, err := r.record(slot)
	if err != nil {
		r.rec.Discard()
		return r.fail(ErrRecord, err)
	}

	r.state = StateSubmitted
	if err := r.queue.Execute(list); err != nil {
		return r.fail(ErrSubmit, fmt.Errorf("execute: %w", err))
	}
	value, err := r.fence.Signal(r.queue)
	if err != nil {
		r.unsignaled = true
		return r.fail(ErrSubmit, err)
	}
	if err := r.pool.MarkSubmitted(slot, value); err != nil {
		return r.fail(ErrSubmit, err)
	}
	r.stats.LastFence = value

	r.state = StatePresented
	if err := r.sc.Present(r.cfg.SyncInterval); err != nil {
		return r.fail(ErrPresent, err)
	}

	r.log.Debug("framepipe: frame presented",
		"frame", r.stats.Frames,
		"slot", slot.Index(),
		"fence", value,
		"next", r.sc.CurrentIndex())
	r.stats.Frames++
	r.state = StateIdle
	return nil
}

func (r *Renderer) record(slot *FrameSlot) (platform.CommandList, error) {
	if err := r.rec.Begin(slot.Allocator()); err != nil {
		return nil, err
	}
	bb := slot.BackBuffer()
	view := r.views.View(slot.Index())

	r.rec.Transition(bb, platform.StatePresent, platform.StateRenderTarget)
	r.rec.Clear(view, r.cfg.ClearColor)
	if r.work != nil {
		desc := r.sc.Desc()
		f := &Frame{
			Number:     r.stats.Frames,
			Index:      slot.Index(),
			Width:      int(desc.Width),
			Height:     int(desc.Height),
			BackBuffer: bb,
			View:       view,
			rec:        r.rec,
		}
		if err := r.work(f); err != nil {
			return nil, fmt.Errorf("workload: %w", err)
		}
	}
	r.rec.Transition(bb, platform.StateRenderTarget, platform.StatePresent)
	return r.rec.End()
}

// Resize waits for all submitted work, releases every back buffer, resizes
// the swap chain and rebuilds the render-target views. Sizes below one pixel
// are clamped to one.
//
// If the swap chain cannot be resized the previous buffers are rebound when
// possible; otherwise Render fails with ErrResize until a Resize succeeds.
func (r *Renderer) Resize(width, height int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.usable(); err != nil {
		return err
	}
	w, h := max(width, 1), max(height, 1)

	if err := r.drain(); err != nil {
		return r.fail(ErrResize, err)
	}
	r.pool.ReleaseBackBuffers()

	if err := r.sc.Resize(uint32(w), uint32(h)); err != nil {
		r.rebindAfter(err)
		return r.fail(ErrResize, err)
	}
	if err := r.bindBuffers(); err != nil {
		r.unbound = err
		return r.fail(ErrResize, err)
	}
	r.unbound = nil
	r.stats.Resizes++

	r.log.Info("framepipe: resized",
		"width", w,
		"height", h,
		"current", r.sc.CurrentIndex())
	return nil
}

// rebindAfter tries to restore the buffers the swap chain still has after a
// failed resize.
func (r *Renderer) rebindAfter(cause error) {
	if isDeviceLost(cause) {
		r.unbound = cause
		return
	}
	if err := r.bindBuffers(); err != nil {
		r.unbound = err
		r.log.Warn("framepipe: back buffers unavailable after failed resize", "err", err)
		return
	}
	r.unbound = nil
}

// drain flushes the queue and marks every slot reusable.
func (r *Renderer) drain() error {
	v, err := r.fence.Flush(r.queue)
	if err != nil {
		return err
	}
	r.pool.Propagate(v)
	r.unsignaled = false
	r.log.Debug("framepipe: queue drained", "fence", v)
	return nil
}

// Flush blocks until all submitted GPU work has completed.
func (r *Renderer) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.usable(); err != nil {
		return err
	}
	if err := r.drain(); err != nil {
		return r.fail(ErrSubmit, err)
	}
	return nil
}

// Close waits for the GPU to finish all submitted work and releases every
// GPU object. After device loss the wait is skipped. Close is idempotent.
func (r *Renderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	var err error
	if r.lost == nil {
		if _, ferr := r.fence.Flush(r.queue); ferr != nil {
			err = fmt.Errorf("framepipe: close: %w", ferr)
			r.log.Warn("framepipe: flush on close failed", "err", ferr)
		}
	}
	r.release()
	r.state = StateIdle
	r.log.Info("framepipe: renderer closed", "frames", r.stats.Frames)
	return err
}

func (r *Renderer) usable() error {
	switch {
	case r.closed:
		return ErrClosed
	case r.lost != nil:
		return r.lost
	}
	return nil
}

// fail returns the pipeline to Idle and classifies err. Device loss is
// recorded and returned as is; anything else is wrapped with kind.
func (r *Renderer) fail(kind, err error) error {
	r.state = StateIdle
	if isDeviceLost(err) {
		if r.lost == nil {
			r.lost = err
			r.log.Error("framepipe: device lost", "err", err)
		}
		return err
	}
	if errors.Is(err, kind) {
		return err
	}
	return fmt.Errorf("%w: %w", kind, err)
}

// State returns the pipeline state.
func (r *Renderer) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// CurrentIndex returns the back buffer the next frame renders into.
func (r *Renderer) CurrentIndex() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sc == nil {
		return 0
	}
	return r.sc.CurrentIndex()
}

// Size returns the current back-buffer size.
func (r *Renderer) Size() (width, height int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sc == nil {
		return 0, 0
	}
	d := r.sc.Desc()
	return int(d.Width), int(d.Height)
}

// Stats returns a snapshot of the renderer counters.
func (r *Renderer) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.stats
	if r.fence != nil {
		s.CompletedFence = r.fence.Completed()
	}
	return s
}

// Config returns the configuration the renderer was created with.
func (r *Renderer) Config() Config {
	return r.cfg
}
