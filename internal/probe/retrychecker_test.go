package probe

import (
	"context"
	"strings"
	"testing"
	"time"
)

// fake checker you can control
type fakeChecker struct {
	results []Outcome
	i       int
}

func (f *fakeChecker) Check(ctx context.Context, req Request) Outcome {
	if f.i >= len(f.results) {
		return Outcome{Pass: false, Message: "no more"}
	}
	r := f.results[f.i]
	f.i++
	return r
}

func TestRetryChecker_SucceedsAfterRetry(t *testing.T) {
	f := &fakeChecker{
		results: []Outcome{
			{Pass: false, Message: "first fail"},
			{Pass: true, StatusCode: 200, Message: "ok"},
		},
	}
	rc := &RetryChecker{
		Inner:    f,
		Attempts: 3,
		Backoff:  10 * time.Millisecond,
	}
	out := rc.Check(context.Background(), Request{URL: "https://example.com", ExpectedStatus: 200})
	if !out.Pass {
		t.Fatalf("expected success after retry, got %+v", out)
	}
	if f.i != 2 {
		t.Fatalf("expected 2 attempts, got %d", f.i)
	}
}

func TestRetryChecker_AllFailAnnotates(t *testing.T) {
	f := &fakeChecker{
		results: []Outcome{
			{Pass: false, Message: "fail1"},
			{Pass: false, Message: "fail2"},
		},
	}
	rc := &RetryChecker{
		Inner:    f,
		Attempts: 2,
		Backoff:  0,
	}
	out := rc.Check(context.Background(), Request{URL: "https://example.com"})
	if out.Pass {
		t.Fatalf("expected failure, got success")
	}
	if f.i != 2 {
		t.Fatalf("expected 2 attempts, got %d", f.i)
	}
	if !strings.HasSuffix(out.Message, "(after retries)") {
		t.Fatalf("expected failure message annotation, got %q", out.Message)
	}
}

func TestRetryChecker_SingleAttemptIsPlainProbe(t *testing.T) {
	f := &fakeChecker{results: []Outcome{{Pass: false, Message: "down"}}}
	rc := &RetryChecker{Inner: f, Attempts: 0}
	out := rc.Check(context.Background(), Request{URL: "https://example.com"})
	if f.i != 1 {
		t.Fatalf("expected exactly one attempt, got %d", f.i)
	}
	if out.Message != "down" {
		t.Fatalf("single attempt should not be annotated, got %q", out.Message)
	}
}
