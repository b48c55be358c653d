package providers

import (
	"context"
	"errors"
	"testing"
)

func TestClassifyError(t *testing.T) {
	cases := map[string]ErrorType{
		"insufficient_quota":      ErrorQuota,
		"429 rate limit exceeded": ErrorRate,
		"request timeout":         ErrorTransient,
		"503 service unavailable": ErrorTransient,
		"401 unauthorized":        ErrorAuth,
		"openai key missing":      ErrorAuth,
		"bad request":             ErrorPermanent,
	}
	for msg, want := range cases {
		if got := ClassifyError(errors.New(msg)); got != want {
			t.Fatalf("classify %q: got %s want %s", msg, got, want)
		}
	}
}

func TestClassifyDeadlineExceeded(t *testing.T) {
	if got := ClassifyError(context.DeadlineExceeded); got != ErrorTransient {
		t.Fatalf("deadline exceeded should be transient, got %s", got)
	}
}

func TestRetriable(t *testing.T) {
	if !Retriable(ErrorRate) || !Retriable(ErrorTransient) {
		t.Fatalf("rate and transient errors must be retriable")
	}
	if Retriable(ErrorAuth) || Retriable(ErrorPermanent) || Retriable(ErrorQuota) {
		t.Fatalf("auth, permanent, and quota errors must not be retriable")
	}
}
