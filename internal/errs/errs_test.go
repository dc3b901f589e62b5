package errs

import (
	"errors"
	"fmt"
	"testing"
)

func TestWrapPreservesKindThroughFmtErrorf(t *testing.T) {
	base := Wrap(KindUpstream, "provider call failed", errors.New("connection reset"))
	wrapped := fmt.Errorf("routing to anthropic: %w", base)

	if got := KindOf(wrapped); got != KindUpstream {
		t.Errorf("KindOf(wrapped) = %q, want %q", got, KindUpstream)
	}
	if !Is(wrapped, KindUpstream) {
		t.Error("Is(wrapped, KindUpstream) = false, want true")
	}
}

func TestKindOfUnrelatedError(t *testing.T) {
	if got := KindOf(errors.New("plain error")); got != "" {
		t.Errorf("KindOf(plain) = %q, want empty", got)
	}
}

func TestIsRetryable(t *testing.T) {
	retryable := []Kind{KindRateLimit, KindUpstream, KindTimeout}
	for _, k := range retryable {
		if !k.IsRetryable() {
			t.Errorf("%q.IsRetryable() = false, want true", k)
		}
	}
	notRetryable := []Kind{KindAuth, KindQuota, KindMissingInput, KindLoopBound, KindConfig}
	for _, k := range notRetryable {
		if k.IsRetryable() {
			t.Errorf("%q.IsRetryable() = true, want false", k)
		}
	}
}

func TestUnwrapChain(t *testing.T) {
	cause := errors.New("dial tcp: timeout")
	err := Wrap(KindTimeout, "calling provider", cause)
	if !errors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false, want true")
	}
}
