// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package backend

import (
	"errors"
	"slices"
	"testing"

	"github.com/gogpu/framepipe"
)

func TestBuiltinBackendsRegistered(t *testing.T) {
	for _, name := range []string{BackendSoft, BackendNoop, BackendVulkan} {
		if !IsRegistered(name) {
			t.Errorf("IsRegistered(%q) = false", name)
		}
	}
	got := Available()
	if !slices.IsSorted(got) {
		t.Errorf("Available() = %v, want sorted", got)
	}
}

func TestOpenUnknown(t *testing.T) {
	_, err := Open("metal-on-toaster", Options{})
	if !errors.Is(err, ErrBackendNotAvailable) {
		t.Errorf("Open() error = %v, want ErrBackendNotAvailable", err)
	}
}

func TestOpenFactoryFailure(t *testing.T) {
	boom := errors.New("boom")
	Register("failing", func(Options) (Device, error) { return nil, boom })
	defer Unregister("failing")

	_, err := Open("failing", Options{})
	if !errors.Is(err, ErrBackendNotAvailable) || !errors.Is(err, boom) {
		t.Errorf("Open() error = %v, want ErrBackendNotAvailable wrapping boom", err)
	}
}

func TestOpenDefaultFallsBack(t *testing.T) {
	// Vulkan is registered but its HAL backend is not linked into tests.
	dev, err := OpenDefault(Options{})
	if err != nil {
		t.Fatalf("OpenDefault() error = %v", err)
	}
	defer dev.Close()
	if dev.Name() != BackendSoft {
		t.Errorf("OpenDefault() = %q, want %q", dev.Name(), BackendSoft)
	}
}

func TestOpenDefaultNothingRegistered(t *testing.T) {
	saved := defaultRegistry
	defaultRegistry = &registry{factories: make(map[string]Factory)}
	defer func() { defaultRegistry = saved }()

	if _, err := OpenDefault(Options{}); !errors.Is(err, ErrBackendNotAvailable) {
		t.Errorf("OpenDefault() error = %v, want ErrBackendNotAvailable", err)
	}
}

func TestOpenOrder(t *testing.T) {
	r := &registry{factories: make(map[string]Factory)}
	open := func(Options) (Device, error) { return nil, nil }
	for _, name := range []string{"zeta", BackendSoft, "alpha", BackendVulkan} {
		r.set(name, open)
	}
	want := []string{BackendVulkan, BackendSoft, "alpha", "zeta"}
	if got := r.order(); !slices.Equal(got, want) {
		t.Errorf("order() = %v, want %v", got, want)
	}
}

func TestBackendsDriveRenderer(t *testing.T) {
	for _, name := range []string{BackendSoft, BackendNoop} {
		t.Run(name, func(t *testing.T) {
			dev, err := Open(name, Options{})
			if err != nil {
				t.Fatal(err)
			}
			defer dev.Close()

			cfg := framepipe.DefaultConfig()
			cfg.Width, cfg.Height = 32, 32
			cfg.SyncInterval = 0
			cfg.Format = dev.PreferredFormat()
			r, err := framepipe.New(dev.Platform(), cfg)
			if err != nil {
				t.Fatal(err)
			}
			for range 6 {
				if err := r.Render(); err != nil {
					t.Fatal(err)
				}
			}
			if err := r.Close(); err != nil {
				t.Fatal(err)
			}
		})
	}
}

func TestSoftDeviceExposesDebugLayer(t *testing.T) {
	dev, err := Open(BackendSoft, Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer dev.Close()
	sd, ok := dev.(*SoftDevice)
	if !ok {
		t.Fatalf("Open(soft) = %T, want *SoftDevice", dev)
	}
	if errs := sd.DebugErrors(); len(errs) != 0 {
		t.Errorf("DebugErrors() = %v", errs)
	}
}
