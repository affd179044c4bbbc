// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package soft_test

import (
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/gogpu/framepipe"
	"github.com/gogpu/framepipe/backend/soft"
	"github.com/gogpu/framepipe/platform"
)

func newRenderer(t *testing.T, g *soft.GPU, opts ...framepipe.Option) *framepipe.Renderer {
	t.Helper()
	cfg := framepipe.DefaultConfig()
	cfg.Width, cfg.Height = 32, 16
	cfg.SyncInterval = 0
	r, err := framepipe.New(g.Platform(), cfg, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestRendererOnSoftGPU(t *testing.T) {
	g := soft.New(soft.Config{Latency: time.Millisecond})
	t.Cleanup(g.Close)
	r := newRenderer(t, g)

	const frames = 20
	for i := range frames {
		if err := r.Render(); err != nil {
			t.Fatalf("Render() frame %d error = %v", i, err)
		}
	}
	if err := r.Flush(); err != nil {
		t.Fatal(err)
	}

	if errs := g.DebugErrors(); len(errs) != 0 {
		t.Fatalf("DebugErrors() = %v", errs)
	}
	if g.Executed() != frames || g.Presented() != frames {
		t.Errorf("Executed/Presented = %d/%d, want %d", g.Executed(), g.Presented(), frames)
	}
	st := r.Stats()
	if st.Frames != frames || st.CompletedFence < st.LastFence {
		t.Errorf("Stats() = %+v", st)
	}
	if st.BlockedWaits == 0 {
		t.Log("no blocked waits; GPU kept up with the CPU")
	}

	img := g.LastPresented()
	if img == nil {
		t.Fatal("LastPresented() = nil")
	}
	c := r.Config().ClearColor
	px := img.RGBAAt(0, 0)
	if px.R != toByte(c[0]) || px.G != toByte(c[1]) || px.B != toByte(c[2]) {
		t.Errorf("presented pixel = %v, want clear color %v", px, c)
	}
}

func TestRendererResizeUnderLatency(t *testing.T) {
	g := soft.New(soft.Config{Latency: 2 * time.Millisecond, VBlank: time.Millisecond})
	t.Cleanup(g.Close)
	r := newRenderer(t, g)

	sizes := [][2]int{{64, 64}, {17, 9}, {0, 0}, {32, 16}}
	for _, sz := range sizes {
		for range 4 {
			if err := r.Render(); err != nil {
				t.Fatalf("Render() error = %v", err)
			}
		}
		if err := r.Resize(sz[0], sz[1]); err != nil {
			t.Fatalf("Resize(%d, %d) error = %v", sz[0], sz[1], err)
		}
		w, h := r.Size()
		if w != max(sz[0], 1) || h != max(sz[1], 1) {
			t.Errorf("Size() = %dx%d after Resize(%d, %d)", w, h, sz[0], sz[1])
		}
		if r.CurrentIndex() != 0 {
			t.Errorf("CurrentIndex() = %d after resize, want 0", r.CurrentIndex())
		}
	}
	if err := r.Render(); err != nil {
		t.Fatal(err)
	}
	if err := r.Flush(); err != nil {
		t.Fatal(err)
	}
	if errs := g.DebugErrors(); len(errs) != 0 {
		t.Errorf("DebugErrors() = %v", errs)
	}
	if got := g.LastPresented().Bounds().Dx(); got != 32 {
		t.Errorf("presented width = %d, want 32", got)
	}
}

func TestRendererWorkloadOnSoftGPU(t *testing.T) {
	g := soft.New(soft.Config{})
	t.Cleanup(g.Close)
	red := [4]float32{1, 0, 0, 1}
	r := newRenderer(t, g, framepipe.WithWorkload(func(f *framepipe.Frame) error {
		f.Clear(f.View, red)
		return nil
	}))

	if err := r.Render(); err != nil {
		t.Fatal(err)
	}
	if err := r.Flush(); err != nil {
		t.Fatal(err)
	}
	px := g.LastPresented().RGBAAt(1, 1)
	if px.R != 255 || px.G != 0 || px.B != 0 {
		t.Errorf("presented pixel = %v, want red", px)
	}
}

func TestRendererFollowsPresentOrderOnSoftGPU(t *testing.T) {
	g := soft.New(soft.Config{Latency: time.Millisecond, PresentOrder: []int{2, 1, 1, 0}})
	t.Cleanup(g.Close)

	var rendered []int
	shade := func(n uint64) [4]float32 { return [4]float32{float32(n+1) / 8, 0, 0, 1} }
	r := newRenderer(t, g, framepipe.WithWorkload(func(f *framepipe.Frame) error {
		rendered = append(rendered, f.Index)
		f.Clear(f.View, shade(f.Number))
		return nil
	}))

	var current []int
	for n := range uint64(5) {
		if err := r.Render(); err != nil {
			t.Fatalf("Render() frame %d error = %v", n, err)
		}
		current = append(current, r.CurrentIndex())
		if err := r.Flush(); err != nil {
			t.Fatal(err)
		}
		if px := g.LastPresented().RGBAAt(0, 0); px.R != toByte(shade(n)[0]) {
			t.Errorf("frame %d presented red = %d, want %d", n, px.R, toByte(shade(n)[0]))
		}
	}

	if want := []int{0, 2, 1, 1, 0}; !slices.Equal(rendered, want) {
		t.Errorf("rendered buffers = %v, want %v", rendered, want)
	}
	if want := []int{2, 1, 1, 0, 2}; !slices.Equal(current, want) {
		t.Errorf("CurrentIndex() after each frame = %v, want %v", current, want)
	}
	if errs := g.DebugErrors(); len(errs) != 0 {
		t.Errorf("DebugErrors() = %v", errs)
	}
}

func TestRendererDeviceLostOnSoftGPU(t *testing.T) {
	g := soft.New(soft.Config{Latency: time.Millisecond})
	t.Cleanup(g.Close)
	r := newRenderer(t, g)

	for range 3 {
		if err := r.Render(); err != nil {
			t.Fatal(err)
		}
	}
	g.Lose()

	err := r.Render()
	if !errors.Is(err, framepipe.ErrDeviceLost) {
		t.Fatalf("Render() after loss error = %v, want ErrDeviceLost", err)
	}
	if !errors.Is(err, platform.ErrDeviceLost) {
		t.Errorf("Render() error %v does not wrap platform.ErrDeviceLost", err)
	}
	if err := r.Render(); !errors.Is(err, framepipe.ErrDeviceLost) {
		t.Errorf("second Render() error = %v, want ErrDeviceLost", err)
	}
	if err := r.Resize(10, 10); !errors.Is(err, framepipe.ErrDeviceLost) {
		t.Errorf("Resize() error = %v, want ErrDeviceLost", err)
	}
	if err := r.Close(); err != nil {
		t.Errorf("Close() after loss error = %v", err)
	}
}

func toByte(v float32) uint8 {
	return uint8(min(max(v, 0), 1)*255 + 0.5)
}
