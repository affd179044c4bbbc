// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Command framedemo drives a framepipe renderer on one of the registered
// backends.
//
// It renders a fixed number of frames, optionally simulating window resizes
// from a second goroutine, retries frames whose slot wait times out and
// exits with status 3 if the device is lost. With the soft backend the last
// presented frame can be written to a BMP file.
//
// Defaults can be set in a .env file or with FRAMEPIPE_* variables:
//
//	FRAMEPIPE_BACKEND=soft
//	FRAMEPIPE_FRAMES=600
//	FRAMEPIPE_RESIZE_EVERY=500ms
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gogpu/framepipe"
	"github.com/gogpu/framepipe/backend"
)

// Exit codes.
const (
	exitOK         = 0
	exitError      = 1
	exitUsage      = 2
	exitDeviceLost = 3
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Getenv, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, getenv func(string) string, stderr io.Writer) int {
	e, err := loadEnv(".env", getenv)
	if err != nil {
		fmt.Fprintln(stderr, "framedemo:", err)
		return exitUsage
	}
	s, err := parseSettings(args, e, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintln(stderr, "framedemo:", err)
		return exitUsage
	}

	level := slog.LevelInfo
	if s.verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
	framepipe.SetLogger(log)
	defer framepipe.SetLogger(nil)

	dev, err := openBackend(s, log)
	if err != nil {
		log.Error("open backend", "err", err)
		return exitError
	}
	defer dev.Close()

	cfg := framepipe.DefaultConfig()
	cfg.BufferCount = s.buffers
	cfg.Width, cfg.Height = s.width, s.height
	cfg.SyncInterval = s.sync
	cfg.WaitTimeout = s.timeout
	cfg.Format = dev.PreferredFormat()

	r, err := framepipe.New(dev.Platform(), cfg)
	if err != nil {
		log.Error("create renderer", "backend", dev.Name(), "err", err)
		if errors.Is(err, framepipe.ErrInvalidConfig) {
			return exitUsage
		}
		return exitError
	}

	err = loop(ctx, r, s, log)
	if cerr := r.Close(); cerr != nil && err == nil {
		err = cerr
	}

	st := r.Stats()
	log.Info("done",
		"backend", dev.Name(),
		"frames", st.Frames,
		"blocked_waits", st.BlockedWaits,
		"timeouts", st.Timeouts,
		"resizes", st.Resizes,
		"fence", st.LastFence)

	switch {
	case errors.Is(err, framepipe.ErrDeviceLost):
		log.Error("device lost", "err", err)
		return exitDeviceLost
	case err != nil && !errors.Is(err, context.Canceled):
		log.Error("render loop", "err", err)
		return exitError
	}

	if s.dump != "" {
		if err := dump(dev, s.dump); err != nil {
			log.Error("dump frame", "err", err)
			return exitError
		}
		log.Info("frame written", "path", s.dump)
	}
	return exitOK
}

func openBackend(s settings, log *slog.Logger) (backend.Device, error) {
	opts := backend.Options{
		Logger:  log,
		Latency: s.latency,
		VBlank:  s.vblank,
	}
	if s.backend == "" {
		return backend.OpenDefault(opts)
	}
	return backend.Open(s.backend, opts)
}
