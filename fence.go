// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package framepipe

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/framepipe/platform"
)

// pollInterval is the step WaitContext uses between bounded waits.
const pollInterval = 2 * time.Millisecond

// Fence tracks one timeline fence shared by the whole pipeline.
//
// The CPU reserves values with Signal; the GPU reports progress through the
// platform fence's completed value. Values returned by Signal strictly
// increase, and the completed value reported by Completed never decreases.
type Fence struct {
	f platform.Fence

	mu       sync.Mutex
	next     uint64 // next value Signal hands out
	observed uint64 // highest completed value seen
}

// NewFence creates a fence whose completed value starts at zero.
func NewFence(dev platform.Device) (*Fence, error) {
	f, err := dev.CreateFence(0)
	if err != nil {
		return nil, fmt.Errorf("create fence: %w", err)
	}
	return &Fence{f: f, next: 1}, nil
}

// Signal reserves the next value and asks q to signal it after all work
// submitted so far. Reservation and submission happen under one lock, so
// values reach the queue in increasing order. A failed submission does not
// consume the value.
func (f *Fence) Signal(q platform.Queue) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	v := f.next
	if err := q.Signal(f.f, v); err != nil {
		return 0, fmt.Errorf("signal fence %d: %w", v, err)
	}
	f.next++
	return v, nil
}

// LastSignaled returns the most recent value passed to the queue, or zero.
func (f *Fence) LastSignaled() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.next - 1
}

// Completed returns the last value the GPU is known to have reached.
func (f *Fence) Completed() uint64 {
	v := f.f.CompletedValue()

	f.mu.Lock()
	defer f.mu.Unlock()
	if v > f.observed {
		f.observed = v
	}
	return f.observed
}

// Poll reports whether value has been reached without blocking.
func (f *Fence) Poll(value uint64) bool {
	return f.Completed() >= value
}

// WaitUntil blocks until the GPU reaches value or timeout elapses.
// It returns true immediately if value was already reached. A timeout is
// reported as (false, nil); errors come only from the backend. A successful
// backend wait is reported as reached even if Completed lags behind it.
func (f *Fence) WaitUntil(value uint64, timeout time.Duration) (bool, error) {
	if f.Poll(value) {
		return true, nil
	}
	ok, err := f.f.Wait(value, timeout)
	if err != nil {
		return false, fmt.Errorf("wait for fence %d: %w", value, err)
	}
	return ok, nil
}

// WaitContext waits for value in bounded steps until it is reached or ctx is
// done. It keeps the blocking contract of WaitUntil for hosts that need
// cancellation.
func (f *Fence) WaitContext(ctx context.Context, value uint64) error {
	for {
		ok, err := f.WaitUntil(value, pollInterval)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("wait for fence %d: %w", value, err)
		}
	}
}

// Flush signals a new value and waits for it without a timeout, draining all
// work submitted to q before the call. It returns the flushed value.
func (f *Fence) Flush(q platform.Queue) (uint64, error) {
	v, err := f.Signal(q)
	if err != nil {
		return 0, err
	}
	ok, err := f.WaitUntil(v, Infinite)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("flush fence %d: %w", v, ErrWaitTimeout)
	}
	return v, nil
}

// Release releases the platform fence.
func (f *Fence) Release() {
	f.f.Release()
}
