// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package framepipe

import (
	"fmt"

	"github.com/gogpu/framepipe/platform"
)

// ViewTable holds one render-target view per back buffer in a fixed-stride
// descriptor heap.
type ViewTable struct {
	dev   platform.Device
	heap  platform.DescriptorHeap
	views []platform.Descriptor
}

// NewViewTable creates a heap with room for n views.
func NewViewTable(dev platform.Device, n int) (*ViewTable, error) {
	heap, err := dev.CreateDescriptorHeap(n)
	if err != nil {
		return nil, fmt.Errorf("create descriptor heap: %w", err)
	}
	return &ViewTable{dev: dev, heap: heap}, nil
}

// Rebuild fetches every back buffer of sc and writes a view of buffer i at
// heap start + i*stride. It returns the buffer references; the caller owns
// them. On failure no reference is left held.
func (t *ViewTable) Rebuild(sc *SwapChain) ([]platform.Resource, error) {
	n := sc.BufferCount()
	if n > t.heap.Len() {
		return nil, fmt.Errorf("%w: %d buffers, heap holds %d", ErrBufferCount, n, t.heap.Len())
	}

	buffers := make([]platform.Resource, 0, n)
	release := func() {
		for _, b := range buffers {
			b.Release()
		}
	}

	start, stride := t.heap.Start(), t.heap.Stride()
	views := make([]platform.Descriptor, n)
	for i := range n {
		buf, err := sc.Buffer(i)
		if err != nil {
			release()
			return nil, err
		}
		buffers = append(buffers, buf)

		views[i] = start + platform.Descriptor(uint64(i)*stride)
		if err := t.dev.CreateRenderTargetView(buf, views[i]); err != nil {
			release()
			return nil, fmt.Errorf("create render target view %d: %w", i, err)
		}
	}
	t.views = views
	return buffers, nil
}

// View returns the descriptor of back buffer i.
func (t *ViewTable) View(i int) platform.Descriptor { return t.views[i] }

// Len returns the number of views built.
func (t *ViewTable) Len() int { return len(t.views) }

// Release releases the descriptor heap.
func (t *ViewTable) Release() {
	t.views = nil
	t.heap.Release()
}
