// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package soft

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/framepipe/platform"
)

// Package errors.
var (
	// ErrAllocatorBusy is returned by CommandAllocator.Reset while the GPU
	// still executes a list recorded from it.
	ErrAllocatorBusy = errors.New("soft: command allocator reset while in use by the GPU")

	// ErrBuffersReferenced is returned by ResizeBuffers while a back-buffer
	// reference is held.
	ErrBuffersReferenced = errors.New("soft: back buffers still referenced")

	// ErrQueueBusy is returned by ResizeBuffers while queued work may still
	// touch the back buffers.
	ErrQueueBusy = errors.New("soft: queue not idle")

	// ErrListState is returned for Reset of an open list, Close of a closed
	// list and Execute of an open list.
	ErrListState = errors.New("soft: invalid command list state")

	// ErrUnsupportedFormat is returned for back-buffer formats other than
	// RGBA8Unorm and BGRA8Unorm.
	ErrUnsupportedFormat = errors.New("soft: unsupported back-buffer format")

	// ErrClosed is returned after GPU.Close.
	ErrClosed = errors.New("soft: gpu closed")

	// ErrForeignObject is returned when an object from another backend is
	// passed in.
	ErrForeignObject = errors.New("soft: object not created by this gpu")
)

// Config configures a software GPU.
type Config struct {
	// Latency is the simulated execution time of each command list.
	Latency time.Duration

	// VBlank is the simulated vertical blank interval. A present with sync
	// interval N occupies the queue for N*VBlank.
	VBlank time.Duration

	// QueueDepth is the number of queue operations that can be pending
	// before Execute, Signal and Present block. Zero means 64.
	QueueDepth int

	// PresentOrder is the sequence of back-buffer indices a swap chain
	// reports as current after successive presents. It repeats, restarting
	// on resize. Entries outside the buffer range fall back to the next
	// buffer. Nil cycles round-robin.
	PresentOrder []int

	// Logger receives debug-layer messages. Nil discards them.
	Logger *slog.Logger
}

// GPU is a software device with a single direct queue.
type GPU struct {
	cfg Config
	log *slog.Logger

	ops  chan op
	done chan struct{}

	// sendMu is held for reading while sending on ops and for writing by
	// Close, so ops is never closed under a sender.
	sendMu sync.RWMutex
	closed bool

	mu       sync.Mutex
	views    map[platform.Descriptor]*Image
	heaps    uint64
	debug    []error
	lastShow *image.RGBA

	lost     atomic.Bool
	lostCh   chan struct{}
	lostOnce sync.Once

	queued  atomic.Int64 // operations enqueued and not yet retired
	execs   atomic.Uint64
	present atomic.Uint64
}

// New starts a software GPU.
func New(cfg Config) *GPU {
	depth := cfg.QueueDepth
	if depth <= 0 {
		depth = 64
	}
	cfg.PresentOrder = slices.Clone(cfg.PresentOrder)
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	g := &GPU{
		cfg:    cfg,
		log:    log,
		ops:    make(chan op, depth),
		done:   make(chan struct{}),
		views:  make(map[platform.Descriptor]*Image),
		lostCh: make(chan struct{}),
	}
	go g.run()
	return g
}

// Platform returns the GPU as a platform.Backend.
func (g *GPU) Platform() platform.Backend {
	return platform.Backend{
		Device:    (*Device)(g),
		Queue:     (*Queue)(g),
		Presenter: (*Presenter)(g),
	}
}

// Lose simulates device removal. Pending work is dropped, waits fail and
// every later queue or present call returns an error wrapping
// platform.ErrDeviceLost.
func (g *GPU) Lose() {
	g.lostOnce.Do(func() {
		g.lost.Store(true)
		close(g.lostCh)
		g.log.Warn("soft: device lost")
	})
}

// Lost reports whether the device was lost.
func (g *GPU) Lost() bool { return g.lost.Load() }

// DebugErrors returns the protocol errors detected during execution.
func (g *GPU) DebugErrors() []error {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]error, len(g.debug))
	copy(out, g.debug)
	return out
}

// LastPresented returns a copy of the most recently presented back buffer in
// RGBA order, or nil before the first present completes.
func (g *GPU) LastPresented() *image.RGBA {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.lastShow == nil {
		return nil
	}
	img := image.NewRGBA(g.lastShow.Rect)
	copy(img.Pix, g.lastShow.Pix)
	return img
}

// Executed returns the number of command lists the GPU has executed.
func (g *GPU) Executed() uint64 { return g.execs.Load() }

// Presented returns the number of presents the GPU has completed.
func (g *GPU) Presented() uint64 { return g.present.Load() }

// Close stops the GPU goroutine after the queue drains. It is safe to call
// more than once.
func (g *GPU) Close() {
	g.sendMu.Lock()
	if g.closed {
		g.sendMu.Unlock()
		return
	}
	g.closed = true
	close(g.ops)
	g.sendMu.Unlock()
	<-g.done
}

func (g *GPU) debugf(format string, args ...any) {
	err := fmt.Errorf(format, args...)
	g.mu.Lock()
	g.debug = append(g.debug, err)
	g.mu.Unlock()
	g.log.Warn("soft: debug layer", "err", err)
}

func (g *GPU) lostErr(op string) error {
	if g.lost.Load() {
		return fmt.Errorf("soft: %s: %w", op, platform.ErrDeviceLost)
	}
	return nil
}

// enqueue hands o to the GPU goroutine, blocking while the queue is full.
func (g *GPU) enqueue(o op) error {
	g.sendMu.RLock()
	defer g.sendMu.RUnlock()
	if g.closed {
		return ErrClosed
	}
	g.queued.Add(1)
	g.ops <- o
	return nil
}

// run is the GPU goroutine.
//
// A signal retires itself before the fence moves, so a CPU that observes the
// fence also observes an idle queue.
func (g *GPU) run() {
	defer close(g.done)
	for o := range g.ops {
		if s, ok := o.(signalOp); ok {
			g.queued.Add(-1)
			if !g.lost.Load() {
				s.exec(g)
			}
			continue
		}
		if g.lost.Load() {
			o.discard(g)
		} else {
			o.exec(g)
		}
		g.queued.Add(-1)
	}
}

// sleep waits d on the GPU timeline unless the device is lost.
func (g *GPU) sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-g.lostCh:
	}
}

// op is one queue operation. discard runs instead of exec after device
// loss.
type op interface {
	exec(g *GPU)
	discard(g *GPU)
}
