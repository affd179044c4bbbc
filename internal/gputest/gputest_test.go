// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gputest

import (
	"slices"
	"testing"
)

func TestViolationLoggedVerbatim(t *testing.T) {
	tests := []struct {
		name   string
		format string
		args   []any
		want   string
	}{
		{"plain", "list reset while open", nil, "list reset while open"},
		{"formatted", "signal %d not above %d", []any{3, 4}, "signal 3 not above 4"},
		{"percent in argument", "clear of %s", []any{"50%d done"}, "clear of 50%d done"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New()
			p.violate(tt.format, tt.args...)

			if got := p.Violations(); len(got) != 1 || got[0] != tt.want {
				t.Errorf("Violations() = %q, want [%q]", got, tt.want)
			}
			if ev := p.Events(); !slices.Contains(ev, "VIOLATION "+tt.want) {
				t.Errorf("Events() = %q, want %q", ev, "VIOLATION "+tt.want)
			}
		})
	}
}

func TestListResetWhileOpenViolates(t *testing.T) {
	p := New()
	b := p.Backend()
	a, _ := b.Device.CreateCommandAllocator()
	l, _ := b.Device.CreateCommandList(a)

	if err := l.Reset(a); err != nil {
		t.Fatal(err)
	}
	_ = l.Reset(a)

	v := p.Violations()
	if len(v) != 1 || v[0] != "list reset while open" {
		t.Errorf("Violations() = %q", v)
	}
}
