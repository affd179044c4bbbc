// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package framepipe

import (
	"fmt"

	"github.com/gogpu/framepipe/platform"
)

// Recorder wraps the single long-lived command list. Each frame rebinds it
// to that frame's allocator with Begin and closes it with End.
//
// The recorder counts transitions out of and back into the Present state per
// resource; End refuses to close a frame that leaves a resource outside
// Present.
type Recorder struct {
	list      platform.CommandList
	recording bool
	open      map[platform.Resource]int
}

// NewRecorder creates the command list against a. The list starts closed.
func NewRecorder(dev platform.Device, a platform.CommandAllocator) (*Recorder, error) {
	l, err := dev.CreateCommandList(a)
	if err != nil {
		return nil, fmt.Errorf("create command list: %w", err)
	}
	return &Recorder{list: l, open: make(map[platform.Resource]int)}, nil
}

// Recording reports whether the list is open.
func (r *Recorder) Recording() bool { return r.recording }

// Begin reopens the list against a.
func (r *Recorder) Begin(a platform.CommandAllocator) error {
	if r.recording {
		return ErrListNotClosed
	}
	if err := r.list.Reset(a); err != nil {
		return fmt.Errorf("reset command list: %w", err)
	}
	r.recording = true
	clear(r.open)
	return nil
}

// Transition records a state transition of res. Calls outside Begin/End are
// ignored.
func (r *Recorder) Transition(res platform.Resource, before, after platform.ResourceState) {
	if !r.recording || before == after {
		return
	}
	switch {
	case before == platform.StatePresent:
		r.open[res]++
	case after == platform.StatePresent:
		r.open[res]--
	}
	r.list.Barrier(res, before, after)
}

// Clear records a clear of the render target behind view.
func (r *Recorder) Clear(view platform.Descriptor, color [4]float32) {
	if !r.recording {
		return
	}
	r.list.ClearRenderTarget(view, color)
}

// List returns the raw command list for workloads that record directly.
func (r *Recorder) List() platform.CommandList { return r.list }

// End closes the list and returns it ready for execution. It fails if a
// resource was left outside Present; the list is closed either way.
func (r *Recorder) End() (platform.CommandList, error) {
	if !r.recording {
		return nil, ErrListClosed
	}
	r.recording = false
	if err := r.list.Close(); err != nil {
		return nil, fmt.Errorf("close command list: %w", err)
	}
	for res, n := range r.open {
		if n != 0 {
			return nil, fmt.Errorf("%w: resource %v off by %d", ErrUnbalancedTransitions, res, n)
		}
	}
	return r.list, nil
}

// Discard closes a half-recorded list so the next Begin succeeds.
func (r *Recorder) Discard() {
	if !r.recording {
		return
	}
	r.recording = false
	_ = r.list.Close()
}

// Release releases the command list.
func (r *Recorder) Release() {
	r.list.Release()
}
