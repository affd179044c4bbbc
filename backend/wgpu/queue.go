// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"fmt"

	"github.com/gogpu/framepipe/platform"
	"github.com/gogpu/wgpu/hal"
)

// Queue implements platform.Queue.
type Queue GPU

func (q *Queue) gpu() *GPU { return (*GPU)(q) }

// Execute implements platform.Queue. The submission index the HAL returns
// becomes the GPU's last submission, which the next Signal attaches to.
func (q *Queue) Execute(lists ...platform.CommandList) error {
	g := q.gpu()
	if err := g.lostErr("execute"); err != nil {
		return err
	}
	bufs := make([]hal.CommandBuffer, 0, len(lists))
	for _, cl := range lists {
		l, ok := cl.(*List)
		if !ok {
			return fmt.Errorf("%w: list %T", ErrForeignObject, cl)
		}
		if l.open || l.cmd == nil {
			return fmt.Errorf("%w: execute of open or empty list", ErrListState)
		}
		bufs = append(bufs, l.cmd)
	}
	if err := g.submit(bufs); err != nil {
		return g.classify("submit", err)
	}
	for _, cl := range lists {
		cl.(*List).cmd = nil
	}
	return nil
}

// Signal implements platform.Queue. The value completes once the HAL
// reports the last submission made before the call as completed. With
// nothing submitted yet it completes immediately.
func (q *Queue) Signal(pf platform.Fence, value uint64) error {
	g := q.gpu()
	if err := g.lostErr("signal"); err != nil {
		return err
	}
	f, ok := pf.(*Fence)
	if !ok || f.g != g {
		return fmt.Errorf("%w: fence %T", ErrForeignObject, pf)
	}
	f.signal(value, g.lastSubmission())
	return nil
}

func (g *GPU) submit(bufs []hal.CommandBuffer) error {
	g.subMu.Lock()
	defer g.subMu.Unlock()
	idx, err := g.queue.Submit(bufs)
	if err != nil {
		return err
	}
	if idx > g.lastSub {
		g.lastSub = idx
	}
	return nil
}

func (g *GPU) lastSubmission() uint64 {
	g.subMu.Lock()
	defer g.subMu.Unlock()
	return g.lastSub
}

// pollCompleted returns the highest submission index the GPU has finished.
func (g *GPU) pollCompleted() uint64 {
	g.subMu.Lock()
	defer g.subMu.Unlock()
	return g.queue.PollCompleted()
}
