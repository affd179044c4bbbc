// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package soft

import (
	"fmt"

	"github.com/gogpu/framepipe/platform"
)

// Queue implements platform.Queue.
type Queue GPU

func (q *Queue) gpu() *GPU { return (*GPU)(q) }

// Execute implements platform.Queue.
func (q *Queue) Execute(lists ...platform.CommandList) error {
	g := q.gpu()
	if err := g.lostErr("execute"); err != nil {
		return err
	}
	for _, cl := range lists {
		l, ok := cl.(*List)
		if !ok {
			return fmt.Errorf("%w: list %T", ErrForeignObject, cl)
		}
		if l.open {
			return fmt.Errorf("%w: execute of open list", ErrListState)
		}
		l.alloc.inflight.Add(1)
		if err := g.enqueue(execOp{alloc: l.alloc, cmds: l.cmds}); err != nil {
			l.alloc.inflight.Add(-1)
			return err
		}
	}
	return nil
}

// Signal implements platform.Queue.
func (q *Queue) Signal(pf platform.Fence, value uint64) error {
	g := q.gpu()
	if err := g.lostErr("signal"); err != nil {
		return err
	}
	f, ok := pf.(*Fence)
	if !ok {
		return fmt.Errorf("%w: fence %T", ErrForeignObject, pf)
	}
	return g.enqueue(signalOp{fence: f, value: value})
}

type execOp struct {
	alloc *Allocator
	cmds  []command
}

func (o execOp) exec(g *GPU) {
	g.sleep(g.cfg.Latency)
	for _, c := range o.cmds {
		c.run(g)
	}
	o.alloc.inflight.Add(-1)
	g.execs.Add(1)
}

func (o execOp) discard(*GPU) {
	o.alloc.inflight.Add(-1)
}

type signalOp struct {
	fence *Fence
	value uint64
}

func (o signalOp) exec(*GPU)    { o.fence.set(o.value) }
func (o signalOp) discard(*GPU) {}
