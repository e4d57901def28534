package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	t.Run("without cause", func(t *testing.T) {
		err := New(CacheUnavailable, "cache store unreachable", nil)
		msg := err.Error()
		if !strings.Contains(msg, "CACHE_UNAVAILABLE") {
			t.Errorf("expected code in message, got %q", msg)
		}
		if !strings.Contains(msg, "cache store unreachable") {
			t.Errorf("expected message text, got %q", msg)
		}
	})

	t.Run("with cause", func(t *testing.T) {
		cause := stderrors.New("connection refused")
		err := New(SourceUnavailable, "docs fetch failed", cause)
		if !strings.Contains(err.Error(), "connection refused") {
			t.Errorf("expected cause in message, got %q", err.Error())
		}
	})
}

func TestUnwrap(t *testing.T) {
	cause := stderrors.New("disk full")
	err := New(CacheUnavailable, "put failed", cause)

	if !stderrors.Is(err, cause) {
		t.Error("errors.Is should find the wrapped cause")
	}
}

func TestCodeOf(t *testing.T) {
	err := New(FingerprintCollision, "divergent content for key", nil)
	if CodeOf(err) != FingerprintCollision {
		t.Errorf("expected FINGERPRINT_COLLISION, got %s", CodeOf(err))
	}

	wrapped := fmt.Errorf("outer: %w", err)
	if CodeOf(wrapped) != FingerprintCollision {
		t.Errorf("CodeOf should see through wrapping, got %s", CodeOf(wrapped))
	}

	if CodeOf(stderrors.New("plain")) != InternalError {
		t.Error("plain errors should map to INTERNAL_ERROR")
	}
}

func TestIs(t *testing.T) {
	err := New(BudgetExceeded, "over budget", nil)
	if !Is(err, BudgetExceeded) {
		t.Error("Is should match the carried code")
	}
	if Is(err, CacheUnavailable) {
		t.Error("Is should not match a different code")
	}
}

func TestWithDetails(t *testing.T) {
	err := New(FingerprintCollision, "divergent content", nil).
		WithDetails(map[string]string{"key": "abc"})
	details, ok := err.Details.(map[string]string)
	if !ok || details["key"] != "abc" {
		t.Errorf("unexpected details: %v", err.Details)
	}
}
