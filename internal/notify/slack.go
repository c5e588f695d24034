package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Slack posts alerts to an incoming webhook as a colored attachment.
type Slack struct {
	Webhook string
	Client  *http.Client
}

// NewSlack returns nil when no webhook is configured.
func NewSlack(webhook string) *Slack {
	if webhook == "" {
		return nil
	}
	return &Slack{
		Webhook: webhook,
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

const (
	colorDown      = "#d0021b"
	colorRecovered = "#2eb67d"
)

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

type slackAttachment struct {
	Fallback string       `json:"fallback"`
	Color    string       `json:"color"`
	Title    string       `json:"title"`
	Fields   []slackField `json:"fields"`
	Ts       int64        `json:"ts,omitempty"`
}

type slackPayload struct {
	Text        string            `json:"text"`
	Attachments []slackAttachment `json:"attachments"`
}

func slackMessage(a Alert) slackPayload {
	color := colorDown
	if a.Healthy {
		color = colorRecovered
	}
	fields := []slackField{
		{Title: "Service", Value: a.Service, Short: true},
		{Title: "Status", Value: a.Status, Short: true},
	}
	if a.Kind != "" {
		fields = append(fields, slackField{Title: "Failure", Value: a.Kind, Short: true})
	}
	if a.Error != "" {
		fields = append(fields, slackField{Title: "Error", Value: a.Error})
	}
	att := slackAttachment{
		Fallback: a.Title() + "\n" + a.Text(),
		Color:    color,
		Title:    a.Title(),
		Fields:   fields,
	}
	if !a.CheckedAt.IsZero() {
		att.Ts = a.CheckedAt.Unix()
	}
	return slackPayload{Text: "*" + a.Title() + "*", Attachments: []slackAttachment{att}}
}

func (s *Slack) Send(ctx context.Context, a Alert) error {
	if s == nil || s.Webhook == "" {
		return errors.New("slack disabled")
	}
	body, err := json.Marshal(slackMessage(a))
	if err != nil {
		return fmt.Errorf("slack payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Webhook, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return fmt.Errorf("slack send %s alert for %s: %w", a.State(), a.Service, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("slack returned HTTP %d", resp.StatusCode)
	}
	return nil
}
