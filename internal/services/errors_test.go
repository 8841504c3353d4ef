package services_test

import (
	"errors"
	"strings"
	"testing"

	"rinkreel/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "assemble", "concatenate", "encoder exited", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"assemble", "concatenate", "encoder exited"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapNilMarkerDefaultsToInternal(t *testing.T) {
	err := services.Wrap(nil, "fetch", "", "odd state", nil)
	if !errors.Is(err, services.ErrInternal) {
		t.Fatalf("expected internal marker, got %v", err)
	}
}

func TestMessageStripsMarkerPrefix(t *testing.T) {
	err := services.Wrap(services.ErrNotFound, "locate", "find feed", "no feed for rink on date", nil)
	got := services.Message(err)
	if strings.Contains(got, "not found:") {
		t.Fatalf("expected marker prefix stripped, got %q", got)
	}
	if !strings.Contains(got, "no feed for rink on date") {
		t.Fatalf("expected detail preserved, got %q", got)
	}
	if services.Message(nil) != "" {
		t.Fatal("expected empty message for nil error")
	}
}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"transient", services.Wrap(services.ErrTransient, "locate", "request", "timeout", nil), true},
		{"authentication", services.Wrap(services.ErrAuthentication, "authenticate", "login", "rejected", nil), false},
		{"not found", services.Wrap(services.ErrNotFound, "locate", "find feed", "none", nil), false},
		{"plain", errors.New("boom"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := services.IsRetryable(tc.err); got != tc.want {
				t.Fatalf("IsRetryable(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}
