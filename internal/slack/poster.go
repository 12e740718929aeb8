// Package slack posts failed-turn alerts to an operator channel.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const defaultPostMessageURL = "https://slack.com/api/chat.postMessage"

type Poster struct {
	token   string
	channel string
	client  *http.Client
	logger  *slog.Logger
	apiURL  string
}

func NewPoster(token, channel string, logger *slog.Logger) *Poster {
	return &Poster{
		token:   token,
		channel: channel,
		client:  &http.Client{Timeout: 10 * time.Second},
		apiURL:  defaultPostMessageURL,
		logger:  logger,
	}
}

// Alert describes a turn that ended in the fallback path.
type Alert struct {
	SessionID string
	UserID    string
	Kind      string
	Topic     string
	Flow      string
	Error     string
	Latency   time.Duration
}

// PostAlert posts a failure alert and returns its message timestamp so later
// failures in the same session can be threaded under it.
func (p *Poster) PostAlert(ctx context.Context, a Alert) (string, error) {
	text := formatAlert(a)

	ts, err := p.post(ctx, map[string]any{
		"channel": p.channel,
		"text":    text,
		"blocks": []map[string]any{
			{
				"type": "section",
				"text": map[string]any{
					"type": "mrkdwn",
					"text": text,
				},
			},
			{
				"type": "context",
				"elements": []map[string]any{
					{
						"type": "mrkdwn",
						"text": "User saw the fallback reply. Check provider credentials and quota.",
					},
				},
			},
		},
	})
	if err != nil {
		return "", err
	}

	p.logger.Info("posted alert to slack", "ts", ts, "session_id", a.SessionID)
	return ts, nil
}

// PostThread posts a threaded reply to a message.
func (p *Poster) PostThread(ctx context.Context, threadTS, text string) error {
	_, err := p.post(ctx, map[string]any{
		"channel":   p.channel,
		"thread_ts": threadTS,
		"text":      text,
	})
	return err
}

func (p *Poster) post(ctx context.Context, payload map[string]any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+p.token)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("slack post: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var slackResp struct {
		OK    bool   `json:"ok"`
		TS    string `json:"ts"`
		Error string `json:"error,omitempty"`
	}
	if err := json.Unmarshal(respBody, &slackResp); err != nil {
		return "", fmt.Errorf("parse slack response: %w", err)
	}
	if !slackResp.OK {
		return "", fmt.Errorf("slack error: %s", slackResp.Error)
	}
	return slackResp.TS, nil
}

func formatAlert(a Alert) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "*Turn failed:* %s", a.Kind)
	if a.Topic != "" {
		fmt.Fprintf(&sb, " (%s)", a.Topic)
	}
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "*Session:* %s\n", a.SessionID)
	if a.UserID != "" {
		fmt.Fprintf(&sb, "*User:* %s\n", a.UserID)
	}
	if a.Flow != "" {
		fmt.Fprintf(&sb, "*Flow:* `%s`\n", a.Flow)
	}
	fmt.Fprintf(&sb, "*Latency:* %s\n", a.Latency.Round(time.Millisecond))
	if a.Error != "" {
		fmt.Fprintf(&sb, "```%s```", a.Error)
	}
	return sb.String()
}
