package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestNetworkError(t *testing.T) {
	baseErr := errors.New("connection refused")

	t.Run("retriable error", func(t *testing.T) {
		err := NewNetworkError("connect", baseErr)

		if !err.IsRetriable() {
			t.Error("Expected error to be retriable")
		}

		if err.Error() != "connect: connection refused" {
			t.Errorf("Error message = %q, want %q", err.Error(), "connect: connection refused")
		}

		if !errors.Is(err, baseErr) {
			t.Error("Expected error to wrap baseErr")
		}
	})

	t.Run("fatal error", func(t *testing.T) {
		err := NewFatalNetworkError("auth", baseErr)

		if err.IsRetriable() {
			t.Error("Expected error to not be retriable")
		}
	})

	t.Run("IsRetriable helper", func(t *testing.T) {
		retriable := NewNetworkError("dial", baseErr)
		fatal := NewFatalNetworkError("auth", baseErr)
		plain := errors.New("plain error")

		if !IsRetriable(retriable) {
			t.Error("IsRetriable should return true for retriable error")
		}

		if IsRetriable(fatal) {
			t.Error("IsRetriable should return false for fatal error")
		}

		if IsRetriable(plain) {
			t.Error("IsRetriable should return false for plain error")
		}
	})
}

func TestConfigError(t *testing.T) {
	baseErr := errors.New("missing value")
	err := &ConfigError{Field: "api_key", Err: baseErr}

	if err.IsRetriable() {
		t.Error("ConfigError should never be retriable")
	}

	expected := "config error [api_key]: missing value"
	if err.Error() != expected {
		t.Errorf("Error message = %q, want %q", err.Error(), expected)
	}
}

func TestCoreErrors_MatchSentinels(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"ordering", &OrderingError{MarketID: "1.1", Seq: 1, LastSeq: 2}, ErrOrderingViolation},
		{"stale", &StaleDataError{MarketID: "1.1", NoData: true}, ErrStaleData},
		{"unsafe", &UnsafeRegimeError{MarketID: "1.1", Regime: RegimeSuspended}, ErrUnsafeRegime},
		{"validation", NewValidationError("price", "1.0", "must be > 1.0"), ErrValidation},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			wrapped := fmt.Errorf("apply: %w", tc.err)
			if !errors.Is(wrapped, tc.sentinel) {
				t.Errorf("expected %v to match %v", wrapped, tc.sentinel)
			}
			if IsRetriable(wrapped) {
				t.Error("core errors must never be retriable")
			}
		})
	}
}

func TestStaleDataError_Message(t *testing.T) {
	err := &StaleDataError{MarketID: "1.1", Age: 3 * time.Second, MaxAge: 2 * time.Second}
	want := "stale market data: market=1.1 age=3s max_age=2s"
	if err.Error() != want {
		t.Errorf("Error message = %q, want %q", err.Error(), want)
	}
}
