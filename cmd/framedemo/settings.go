// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// envPrefix prefixes every environment variable the demo reads.
const envPrefix = "FRAMEPIPE_"

// settings are the demo parameters. Defaults come from the built-in values,
// then the .env file, then FRAMEPIPE_* variables, then flags.
type settings struct {
	backend     string
	frames      int
	buffers     int
	width       int
	height      int
	sync        int
	timeout     time.Duration
	resizeEvery time.Duration
	latency     time.Duration
	vblank      time.Duration
	dump        string
	verbose     bool
}

// env resolves FRAMEPIPE_* keys from the process environment and a parsed
// .env file, in that order.
type env struct {
	getenv func(string) string
	file   map[string]string
}

// loadEnv reads path with godotenv. A missing file is not an error.
func loadEnv(path string, getenv func(string) string) (env, error) {
	e := env{getenv: getenv}
	if path == "" {
		return e, nil
	}
	m, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return e, nil
		}
		return e, fmt.Errorf("read %s: %w", path, err)
	}
	e.file = m
	return e, nil
}

func (e env) lookup(key string) (string, bool) {
	key = envPrefix + key
	if v := e.getenv(key); v != "" {
		return v, true
	}
	v, ok := e.file[key]
	return v, ok && v != ""
}

func (e env) str(key, def string) string {
	if v, ok := e.lookup(key); ok {
		return v
	}
	return def
}

func (e env) int(key string, def int) (int, error) {
	v, ok := e.lookup(key)
	if !ok {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s%s: %w", envPrefix, key, err)
	}
	return n, nil
}

func (e env) duration(key string, def time.Duration) (time.Duration, error) {
	v, ok := e.lookup(key)
	if !ok {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s%s: %w", envPrefix, key, err)
	}
	return d, nil
}

func (e env) bool(key string, def bool) (bool, error) {
	v, ok := e.lookup(key)
	if !ok {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s%s: %w", envPrefix, key, err)
	}
	return b, nil
}

// parseSize parses "WIDTHxHEIGHT".
func parseSize(s string) (w, h int, err error) {
	ws, hs, ok := strings.Cut(strings.ToLower(s), "x")
	if !ok {
		return 0, 0, fmt.Errorf("size %q: want WIDTHxHEIGHT", s)
	}
	if w, err = strconv.Atoi(ws); err != nil {
		return 0, 0, fmt.Errorf("size %q: %w", s, err)
	}
	if h, err = strconv.Atoi(hs); err != nil {
		return 0, 0, fmt.Errorf("size %q: %w", s, err)
	}
	if w <= 0 || h <= 0 {
		return 0, 0, fmt.Errorf("size %q: dimensions must be positive", s)
	}
	return w, h, nil
}

// parseSettings builds the settings from e and the command-line args.
func parseSettings(args []string, e env, stderr io.Writer) (settings, error) {
	var s settings
	var err error
	var size string

	defs := struct {
		frames, buffers, sync            int
		timeout, resize, latency, vblank time.Duration
		verbose                          bool
	}{}
	if defs.frames, err = e.int("FRAMES", 120); err != nil {
		return s, err
	}
	if defs.buffers, err = e.int("BUFFERS", 3); err != nil {
		return s, err
	}
	if defs.sync, err = e.int("SYNC", 1); err != nil {
		return s, err
	}
	if defs.timeout, err = e.duration("TIMEOUT", 2*time.Second); err != nil {
		return s, err
	}
	if defs.resize, err = e.duration("RESIZE_EVERY", 0); err != nil {
		return s, err
	}
	if defs.latency, err = e.duration("LATENCY", 4*time.Millisecond); err != nil {
		return s, err
	}
	if defs.vblank, err = e.duration("VBLANK", time.Second/60); err != nil {
		return s, err
	}
	if defs.verbose, err = e.bool("VERBOSE", false); err != nil {
		return s, err
	}

	fset := flag.NewFlagSet("framedemo", flag.ContinueOnError)
	fset.SetOutput(stderr)
	fset.StringVar(&s.backend, "backend", e.str("BACKEND", ""), "backend name (soft, noop, vulkan); empty picks the best available")
	fset.IntVar(&s.frames, "frames", defs.frames, "number of frames to render")
	fset.IntVar(&s.buffers, "buffers", defs.buffers, "swap-chain buffer count")
	fset.StringVar(&size, "size", e.str("SIZE", "1280x720"), "initial back-buffer size WIDTHxHEIGHT")
	fset.IntVar(&s.sync, "sync", defs.sync, "present sync interval (0-4)")
	fset.DurationVar(&s.timeout, "timeout", defs.timeout, "frame slot wait timeout (0 waits forever)")
	fset.DurationVar(&s.resizeEvery, "resize-every", defs.resize, "simulate a window resize at this interval (0 disables)")
	fset.DurationVar(&s.latency, "latency", defs.latency, "soft backend GPU latency per frame")
	fset.DurationVar(&s.vblank, "vblank", defs.vblank, "soft backend vertical blank interval")
	fset.StringVar(&s.dump, "dump", e.str("DUMP", ""), "write the last presented frame to this .bmp file (soft backend)")
	fset.BoolVar(&s.verbose, "v", defs.verbose, "verbose logging")

	if err := fset.Parse(args); err != nil {
		return s, err
	}
	if fset.NArg() > 0 {
		return s, fmt.Errorf("unexpected arguments: %v", fset.Args())
	}
	if s.width, s.height, err = parseSize(size); err != nil {
		return s, err
	}
	if s.frames < 0 {
		return s, fmt.Errorf("frames %d must not be negative", s.frames)
	}
	return s, nil
}
