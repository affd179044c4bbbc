// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gputest

import (
	"fmt"

	"github.com/gogpu/framepipe/platform"
)

// Queue implements platform.Queue.
type Queue Platform

// Execute implements platform.Queue. Executed lists stay in flight until a
// later signal on some fence completes.
func (q *Queue) Execute(lists ...platform.CommandList) error {
	p := (*Platform)(q)
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.lostErr("execute"); err != nil {
		return err
	}
	if err := p.take(OpExecute); err != nil {
		return err
	}
	for _, cl := range lists {
		l, ok := cl.(*List)
		if !ok {
			return fmt.Errorf("gputest: foreign list %T", cl)
		}
		if l.open {
			p.violate("execute of open list")
		}
		for b, st := range l.states {
			b.state = st
		}
		p.pending = append(p.pending, &submission{alloc: l.alloc})
		p.record("execute alloc %d", l.alloc.id)
	}
	return nil
}

// Signal implements platform.Queue.
func (q *Queue) Signal(pf platform.Fence, value uint64) error {
	p := (*Platform)(q)
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.lostErr("signal"); err != nil {
		return err
	}
	if err := p.take(OpSignal); err != nil {
		return err
	}
	f, ok := pf.(*Fence)
	if !ok {
		return fmt.Errorf("gputest: foreign fence %T", pf)
	}
	if value <= f.signaled {
		p.violate("signal %d not above %d", value, f.signaled)
	}
	f.signaled = value
	for _, s := range p.pending {
		s.fence, s.value = f, value
	}
	p.inflight = append(p.inflight, p.pending...)
	p.pending = nil
	p.record("signal %d", value)
	if p.auto {
		f.advance(value)
	}
	return nil
}
