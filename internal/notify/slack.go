package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hamed0406/urlmonitor/internal/domain"
)

// Slack posts alerts to an incoming webhook. A nil *Slack is a valid,
// disabled notifier so it can sit in a Multi unconditionally.
type Slack struct {
	Webhook string
	Client  *http.Client
}

func NewSlack(webhook string) *Slack {
	if webhook == "" {
		return nil
	}
	return &Slack{
		Webhook: webhook,
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type slackPayload struct {
	Text string `json:"text"`
}

func (s *Slack) AlertUsers(ctx context.Context, def domain.CheckDefinition, _ []string) error {
	if s == nil {
		return nil
	}
	return s.Send(ctx, "🔴 Check FAILED",
		fmt.Sprintf("CheckId %d for URL %s is in a failure state.", def.ID, def.URL))
}

func (s *Slack) AlertAdmin(ctx context.Context, def domain.CheckDefinition) error {
	if s == nil {
		return nil
	}
	return s.Send(ctx, "🚨 Check ESCALATED",
		fmt.Sprintf("CheckId %d for URL %s keeps failing. Admin attention may be required.", def.ID, def.URL))
}

func (s *Slack) Send(ctx context.Context, title, text string) error {
	if s == nil || s.Webhook == "" {
		return errors.New("slack disabled")
	}
	body, _ := json.Marshal(slackPayload{Text: "*" + title + "*\n" + text})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Webhook, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return errors.New("slack non-2xx")
	}
	return nil
}
