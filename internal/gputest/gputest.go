// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package gputest provides a scripted platform.Backend for pipeline tests.
//
// Nothing executes. Fence completion is driven by the test through Complete
// (or automatically with SetAutoComplete), the presentation order is
// scripted, and every call is appended to an ordered event log so tests can
// assert on call order. Protocol misuse that a real driver would punish
// (resetting an allocator whose lists are still in flight, resizing while
// back-buffer references are held, releasing a back buffer before the queue
// drained, mismatched barriers) is recorded as a violation instead.
package gputest

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/gogpu/framepipe/platform"
)

// Operations that can be scripted to fail with FailNext.
const (
	OpCreateFence     = "createFence"
	OpCreateAllocator = "createAllocator"
	OpCreateList      = "createList"
	OpCreateHeap      = "createHeap"
	OpCreateView      = "createView"
	OpCreateSwapChain = "createSwapChain"
	OpBuffer          = "buffer"
	OpResetAllocator  = "resetAllocator"
	OpResetList       = "resetList"
	OpCloseList       = "closeList"
	OpExecute         = "execute"
	OpSignal          = "signal"
	OpWait            = "wait"
	OpPresent         = "present"
	OpResize          = "resize"
)

// ErrInjected is the default error returned by FailNext.
var ErrInjected = errors.New("gputest: injected failure")

const (
	heapStart  platform.Descriptor = 0x1000
	heapStride uint64              = 32
)

// Platform is a scripted backend. The zero value is not usable; call New.
type Platform struct {
	mu sync.Mutex

	events     []string
	violations []string

	auto     bool
	failures map[string][]error
	lost     bool

	order    []int
	presents int

	fences    []*Fence
	waits     chan uint64
	pending   []*submission // executed, not yet covered by a signal
	inflight  []*submission // covered by a signal, not yet completed
	swapChain *SwapChain
	views     map[platform.Descriptor]*BufferRef
	buffers   []*Buffer
	gen       int
	allocs    int
}

// New creates a platform whose fences do not advance until Complete is
// called.
func New() *Platform {
	return &Platform{
		failures: make(map[string][]error),
		waits:    make(chan uint64, 256),
		views:    make(map[platform.Descriptor]*BufferRef),
	}
}

// Backend returns the platform as a platform.Backend.
func (p *Platform) Backend() platform.Backend {
	return platform.Backend{
		Device:    (*Device)(p),
		Queue:     (*Queue)(p),
		Presenter: (*Presenter)(p),
	}
}

// SetAutoComplete makes every signal complete as soon as it is queued.
func (p *Platform) SetAutoComplete(on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.auto = on
}

// Complete advances every fence to value, capped at the highest value
// signalled on it. It returns the new completed value of the first fence.
func (p *Platform) Complete(value uint64) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, f := range p.fences {
		f.advance(min(value, f.signaled))
	}
	if len(p.fences) == 0 {
		return 0
	}
	return p.fences[0].completed
}

// CompleteAll completes everything signalled so far.
func (p *Platform) CompleteAll() {
	p.Complete(^uint64(0))
}

// SetPresentOrder scripts the index reported after each present. The order
// repeats. Without a script presents cycle round-robin.
func (p *Platform) SetPresentOrder(indices ...int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.order = slices.Clone(indices)
}

// FailNext makes the next call of op fail with err, or ErrInjected if err is
// nil. Calls queue up.
func (p *Platform) FailNext(op string, err error) {
	if err == nil {
		err = ErrInjected
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures[op] = append(p.failures[op], err)
}

// Pass queues a successful call of op ahead of later FailNext entries.
func (p *Platform) Pass(op string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures[op] = append(p.failures[op], nil)
}

// Lose marks the device lost. Every later queue, fence and present call
// fails with an error wrapping platform.ErrDeviceLost.
func (p *Platform) Lose() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lost = true
	p.record("device lost")
	for _, f := range p.fences {
		f.wake()
	}
}

// Waits receives the target value each time a fence wait has to block.
func (p *Platform) Waits() <-chan uint64 { return p.waits }

// Events returns a copy of the event log.
func (p *Platform) Events() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.events)
}

// ResetEvents clears the event log.
func (p *Platform) ResetEvents() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = nil
}

// Violations returns every protocol violation observed.
func (p *Platform) Violations() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.violations)
}

// LiveBufferRefs returns the number of unreleased back-buffer references.
func (p *Platform) LiveBufferRefs() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, b := range p.buffers {
		n += b.refs
	}
	return n
}

// BufferAt returns the descriptor's buffer index and generation, or -1.
func (p *Platform) BufferAt(view platform.Descriptor) (index, gen int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ref, ok := p.views[view]
	if !ok {
		return -1, -1
	}
	return ref.buf.index, ref.buf.gen
}

// Signaled returns the highest value signalled on the first fence.
func (p *Platform) Signaled() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.fences) == 0 {
		return 0
	}
	return p.fences[0].signaled
}

func (p *Platform) record(format string, args ...any) {
	p.events = append(p.events, fmt.Sprintf(format, args...))
}

func (p *Platform) violate(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	p.violations = append(p.violations, msg)
	p.record("VIOLATION %s", msg)
}

// take pops a scripted failure for op. Caller holds p.mu.
func (p *Platform) take(op string) error {
	if q := p.failures[op]; len(q) > 0 {
		p.failures[op] = q[1:]
		if q[0] == nil {
			return nil
		}
		return fmt.Errorf("%s: %w", op, q[0])
	}
	return nil
}

func (p *Platform) lostErr(op string) error {
	if p.lost {
		return fmt.Errorf("%s: %w", op, platform.ErrDeviceLost)
	}
	return nil
}

// drained reports whether no executed work is outstanding. Caller holds p.mu.
func (p *Platform) drained() bool {
	return len(p.pending) == 0 && len(p.inflight) == 0
}

// submission is one executed command list.
type submission struct {
	alloc *Allocator
	fence *Fence
	value uint64
}

// Fence is a test-driven timeline fence.
type Fence struct {
	p         *Platform
	completed uint64
	signaled  uint64
	changed   chan struct{}
}

// advance moves completed forward and retires covered lists. Caller holds
// p.mu.
func (f *Fence) advance(v uint64) {
	if v <= f.completed {
		return
	}
	f.completed = v
	f.p.record("complete %d", v)
	f.p.inflight = slices.DeleteFunc(f.p.inflight, func(s *submission) bool {
		return s.fence == f && s.value <= v
	})
	f.wake()
}

func (f *Fence) wake() {
	close(f.changed)
	f.changed = make(chan struct{})
}

// CompletedValue implements platform.Fence.
func (f *Fence) CompletedValue() uint64 {
	f.p.mu.Lock()
	defer f.p.mu.Unlock()
	return f.completed
}

// Wait implements platform.Fence.
func (f *Fence) Wait(value uint64, timeout time.Duration) (bool, error) {
	p := f.p
	p.mu.Lock()
	if err := p.take(OpWait); err != nil {
		p.mu.Unlock()
		return false, err
	}
	if f.completed >= value {
		p.mu.Unlock()
		return true, nil
	}
	p.record("wait %d", value)
	select {
	case p.waits <- value:
	default:
	}

	var expired <-chan time.Time
	if timeout < platform.Infinite {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}
	for f.completed < value {
		if err := p.lostErr("wait"); err != nil {
			p.mu.Unlock()
			return false, err
		}
		ch := f.changed
		p.mu.Unlock()
		select {
		case <-ch:
		case <-expired:
			return false, nil
		}
		p.mu.Lock()
	}
	p.mu.Unlock()
	return true, nil
}

// Release implements platform.Releaser.
func (f *Fence) Release() {
	f.p.mu.Lock()
	defer f.p.mu.Unlock()
	f.p.record("fence release")
}
