// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package framepipe

import "github.com/gogpu/framepipe/platform"

// Frame is the view of one in-progress frame handed to a Workload.
// It is valid only for the duration of the Workload call.
type Frame struct {
	// Number counts rendered frames from zero.
	Number uint64

	// Index is the back-buffer index being rendered.
	Index int

	// Width and Height are the back-buffer size.
	Width  int
	Height int

	// BackBuffer is in the RenderTarget state.
	BackBuffer platform.Resource

	// View is the back buffer's render-target view.
	View platform.Descriptor

	rec *Recorder
}

// List returns the open command list.
func (f *Frame) List() platform.CommandList { return f.rec.List() }

// Transition records a state transition that is included in the frame's
// balance check.
func (f *Frame) Transition(res platform.Resource, before, after platform.ResourceState) {
	f.rec.Transition(res, before, after)
}

// Clear records a clear of view.
func (f *Frame) Clear(view platform.Descriptor, color [4]float32) {
	f.rec.Clear(view, color)
}
