// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package backend

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

// priority is the order OpenDefault tries backends in. Backends not listed
// follow in name order.
var priority = []string{BackendVulkan, BackendSoft}

// registry maps backend names to factories.
type registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

var defaultRegistry = &registry{factories: make(map[string]Factory)}

func (r *registry) set(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if f == nil {
		delete(r.factories, name)
		return
	}
	r.factories[name] = f
}

func (r *registry) get(name string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[name]
	return f, ok
}

func (r *registry) names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for name := range r.factories {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

// order returns the registered names in OpenDefault order.
func (r *registry) order() []string {
	names := r.names()
	out := make([]string, 0, len(names))
	for _, name := range priority {
		if slices.Contains(names, name) {
			out = append(out, name)
		}
	}
	for _, name := range names {
		if !slices.Contains(out, name) {
			out = append(out, name)
		}
	}
	return out
}

// Register registers a backend factory under name, replacing any factory
// already registered there. It is typically called from init.
func Register(name string, factory Factory) { defaultRegistry.set(name, factory) }

// Unregister removes a backend. It is mostly useful in tests.
func Unregister(name string) { defaultRegistry.set(name, nil) }

// Available returns the registered backend names in sorted order.
func Available() []string { return defaultRegistry.names() }

// IsRegistered reports whether a backend is registered under name.
func IsRegistered(name string) bool {
	_, ok := defaultRegistry.get(name)
	return ok
}

// Open opens the named backend.
func Open(name string, opts Options) (Device, error) {
	factory, ok := defaultRegistry.get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q is not registered", ErrBackendNotAvailable, name)
	}
	dev, err := factory(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrBackendNotAvailable, name, err)
	}
	return dev, nil
}

// OpenDefault opens the first backend that succeeds, trying vulkan, then
// soft, then anything else registered. If none opens, the error joins every
// failure.
func OpenDefault(opts Options) (Device, error) {
	var errs []error
	for _, name := range defaultRegistry.order() {
		dev, err := Open(name, opts)
		if err == nil {
			return dev, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return nil, fmt.Errorf("%w: no backends registered", ErrBackendNotAvailable)
	}
	return nil, errors.Join(errs...)
}
