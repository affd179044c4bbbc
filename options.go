// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package framepipe

import "log/slog"

// Workload records a frame's draw commands between the clear and the
// transition back to Present. It runs with the back buffer in the
// RenderTarget state.
type Workload func(f *Frame) error

// Option configures a Renderer during creation.
//
// Example:
//
//	r, err := framepipe.New(b, cfg,
//	    framepipe.WithLogger(slog.Default()),
//	    framepipe.WithWorkload(drawScene),
//	)
type Option func(*options)

type options struct {
	logger   *slog.Logger
	workload Workload
}

func defaultOptions() options {
	return options{
		logger: nil, // Falls back to Logger() in New.
	}
}

// WithLogger sets the logger for one renderer instead of the package logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithWorkload sets the per-frame draw workload. Without one a frame only
// clears its back buffer.
func WithWorkload(w Workload) Option {
	return func(o *options) {
		o.workload = w
	}
}
