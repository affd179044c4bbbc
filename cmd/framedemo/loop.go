// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"time"

	"golang.org/x/image/bmp"
	"golang.org/x/sync/errgroup"

	"github.com/gogpu/framepipe"
	"github.com/gogpu/framepipe/backend"
)

// maxRetries bounds consecutive wait timeouts before the loop gives up.
const maxRetries = 5

// resizeEvent is a simulated window size change.
type resizeEvent struct {
	width, height int
}

// renderer is the part of *framepipe.Renderer the loop drives.
type renderer interface {
	Render() error
	Resize(width, height int) error
	Size() (width, height int)
}

// loop renders s.frames frames while a window goroutine emits resize events.
func loop(ctx context.Context, r renderer, s settings, log *slog.Logger) error {
	g, gctx := errgroup.WithContext(ctx)
	events := make(chan resizeEvent, 1)
	winCtx, closeWindow := context.WithCancel(gctx)

	g.Go(func() error {
		defer closeWindow()
		return renderFrames(gctx, r, s.frames, events, log)
	})
	g.Go(func() error {
		w, h := r.Size()
		return window(winCtx, s.resizeEvery, w, h, events)
	})
	return g.Wait()
}

// renderFrames renders n frames, applying pending resize events between
// frames. Wait timeouts are logged and the frame retried.
func renderFrames(ctx context.Context, r renderer, n int, events <-chan resizeEvent, log *slog.Logger) error {
	retries := 0
	for done := 0; done < n; {
		if err := ctx.Err(); err != nil {
			return err
		}
		select {
		case ev := <-events:
			if err := r.Resize(ev.width, ev.height); err != nil {
				if errors.Is(err, framepipe.ErrDeviceLost) {
					return err
				}
				log.Warn("resize failed", "width", ev.width, "height", ev.height, "err", err)
			}
		default:
		}

		err := r.Render()
		switch {
		case err == nil:
			done++
			retries = 0
		case errors.Is(err, framepipe.ErrWaitTimeout):
			retries++
			if retries > maxRetries {
				return fmt.Errorf("frame %d: %d consecutive timeouts: %w", done, retries, err)
			}
			log.Warn("frame wait timed out, retrying", "frame", done, "attempt", retries)
		default:
			return fmt.Errorf("frame %d: %w", done, err)
		}
	}
	return nil
}

// window emits a resize event every interval, alternating between the
// initial size and half of it, until ctx is done. A zero interval emits
// nothing.
func window(ctx context.Context, every time.Duration, w, h int, events chan<- resizeEvent) error {
	if every <= 0 {
		<-ctx.Done()
		return nil
	}
	t := time.NewTicker(every)
	defer t.Stop()

	sizes := [2]resizeEvent{{max(w/2, 1), max(h/2, 1)}, {w, h}}
	for i := 0; ; i++ {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
		select {
		case events <- sizes[i%2]:
		case <-ctx.Done():
			return nil
		}
	}
}

// dump writes the last frame presented by a soft device as BMP.
func dump(dev backend.Device, path string) error {
	sd, ok := dev.(*backend.SoftDevice)
	if !ok {
		return fmt.Errorf("backend %s cannot read back frames", dev.Name())
	}
	img := sd.LastPresented()
	if img == nil {
		return errors.New("no frame presented")
	}
	return writeBMP(path, img)
}

func writeBMP(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := bmp.Encode(f, img); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return f.Close()
}
