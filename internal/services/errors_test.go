package services_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"callqa/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrSynthesis, "synthesize", "turn 2", "engine rejected text", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrSynthesis) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"synthesize", "turn 2", "engine rejected text", "boom"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected fallback detail, got %q", err.Error())
	}
}

func TestDetails(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantKind    string
		wantMessage string
	}{
		{
			name:        "storage",
			err:         services.Wrap(services.ErrStorage, "store", "write", "disk full", nil),
			wantKind:    "storage",
			wantMessage: "store: write: disk full",
		},
		{
			name:        "wrapped twice",
			err:         fmt.Errorf("stage: %w", services.Wrap(services.ErrAnalysis, "analyze", "", "gave up", nil)),
			wantKind:    "analysis",
			wantMessage: "stage: analysis error: analyze: gave up",
		},
		{
			name:        "unclassified",
			err:         errors.New("plain"),
			wantKind:    "unknown",
			wantMessage: "plain",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := services.Details(tc.err)
			if got.Kind != tc.wantKind {
				t.Fatalf("kind = %q, want %q", got.Kind, tc.wantKind)
			}
			if got.Message != tc.wantMessage {
				t.Fatalf("message = %q, want %q", got.Message, tc.wantMessage)
			}
		})
	}
}

func TestDetailsNil(t *testing.T) {
	if got := services.Details(nil); got.Kind != "" || got.Message != "" {
		t.Fatalf("expected zero details, got %+v", got)
	}
}

func TestKindPrefersStageMarker(t *testing.T) {
	err := services.Wrap(services.ErrAnalysis, "analyze", "", "", services.ErrMalformedOutput)
	if kind := services.Kind(err); kind != "analysis" {
		t.Fatalf("expected analysis kind, got %q", kind)
	}
}
