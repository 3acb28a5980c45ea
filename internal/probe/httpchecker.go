package probe

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"
)

const DefaultMaxBodyBytes = 4 << 20

type HTTPChecker struct {
	Client *http.Client
	// MaxBodyBytes bounds how much of the body is searched for ExpectedString.
	MaxBodyBytes int64
}

func NewHTTPChecker(timeout time.Duration) *HTTPChecker {
	return &HTTPChecker{
		Client:       &http.Client{Timeout: timeout},
		MaxBodyBytes: DefaultMaxBodyBytes,
	}
}

func (h *HTTPChecker) Check(ctx context.Context, req Request) Outcome {
	start := time.Now()
	hreq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return Outcome{Pass: false, Message: err.Error()}
	}

	resp, err := h.Client.Do(hreq)
	if err != nil {
		latency := time.Since(start).Seconds() * 1000 // ms
		return Outcome{Pass: false, Message: err.Error(), LatencyMS: latency}
	}
	defer resp.Body.Close()

	bodyOK := true
	if req.ExpectedString != "" {
		limit := h.MaxBodyBytes
		if limit <= 0 {
			limit = DefaultMaxBodyBytes
		}
		body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
		bodyOK = err == nil && strings.Contains(string(body), req.ExpectedString)
	}
	latency := time.Since(start).Seconds() * 1000

	statusOK := resp.StatusCode == req.ExpectedStatus
	msg := resp.Status
	switch {
	case !statusOK:
		msg = "unexpected status " + resp.Status
	case !bodyOK:
		msg = "expected string not found"
	}
	return Outcome{
		Pass:       statusOK && bodyOK,
		StatusCode: resp.StatusCode,
		LatencyMS:  latency,
		Message:    msg,
	}
}
