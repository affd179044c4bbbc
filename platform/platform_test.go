// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package platform

import "testing"

func TestResourceStateString(t *testing.T) {
	tests := []struct {
		s    ResourceState
		want string
	}{
		{StatePresent, "Present"},
		{StateRenderTarget, "RenderTarget"},
		{StateCopySource, "CopySource"},
		{StateCopyDest, "CopyDest"},
		{StateShaderResource, "ShaderResource"},
		{ResourceState(200), "Unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.s.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBackendValidate(t *testing.T) {
	if err := (Backend{}).Validate(); err == nil {
		t.Error("empty backend should not validate")
	}
}
