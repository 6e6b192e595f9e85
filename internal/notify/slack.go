package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mtzanidakis/studioflow/internal/config"
)

// Slack posts Block Kit messages to an incoming webhook.
type Slack struct {
	webhookURL string
	channel    string
	httpClient *http.Client
}

func NewSlack(cfg config.SlackConfig) *Slack {
	return &Slack{
		webhookURL: cfg.WebhookURL,
		channel:    cfg.Channel,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *Slack) Name() string { return "slack" }

type slackMessage struct {
	Channel string       `json:"channel,omitempty"`
	Text    string       `json:"text"`
	Blocks  []slackBlock `json:"blocks"`
}

type slackBlock struct {
	Type string     `json:"type"`
	Text *slackText `json:"text,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func (s *Slack) Send(ctx context.Context, n Notification) error {
	if s.webhookURL == "" {
		return ErrNotConfigured
	}

	header := levelTag(n.Level) + " " + n.Title
	msg := slackMessage{
		Channel: s.channel,
		Text:    header,
		Blocks: []slackBlock{
			{Type: "header", Text: &slackText{Type: "plain_text", Text: header}},
		},
	}
	if n.Message != "" {
		msg.Blocks = append(msg.Blocks, slackBlock{
			Type: "section", Text: &slackText{Type: "mrkdwn", Text: n.Message},
		})
	}
	if n.Source != "" {
		msg.Blocks = append(msg.Blocks, slackBlock{
			Type: "context", Text: &slackText{Type: "mrkdwn", Text: fmt.Sprintf("_Source: %s_", n.Source)},
		})
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("slack marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("slack send: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("slack API %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
