package probe

import "context"

// Request describes what a single probe should fetch and expect.
type Request struct {
	URL            string
	ExpectedStatus int
	ExpectedString string
}

// Outcome is the classified result of a single probe.
//
// Fields:
//   - Pass: status matched and, when set, the expected string was found.
//   - StatusCode: HTTP status code when available; 0 for transport errors.
//   - Message: status line or transport error text, for logs.
type Outcome struct {
	Pass       bool
	StatusCode int
	LatencyMS  float64
	Message    string
}

// Checker performs one probe. Unreachable targets are reported as a failed
// Outcome, never as an error.
type Checker interface {
	Check(ctx context.Context, req Request) Outcome
}
