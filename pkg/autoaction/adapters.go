package autoaction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPDoer is the subset of *http.Client the HTTP-backed adapters need,
// grounded on this codebase's pkg/llm/openai.go and pkg/identity/sso.go
// http.Client usage.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// WebhookAdapter POSTs the alert as JSON to a URL carried in the action's
// config under the "url" key.
type WebhookAdapter struct {
	Client HTTPDoer
}

// NewWebhookAdapter constructs a WebhookAdapter with a sane request timeout.
func NewWebhookAdapter() *WebhookAdapter {
	return &WebhookAdapter{Client: &http.Client{Timeout: 10 * time.Second}}
}

func (a *WebhookAdapter) Dispatch(ctx context.Context, action Action, alert *Alert) (string, error) {
	url, _ := action.Config["url"].(string)
	if url == "" {
		return "", fmt.Errorf("autoaction: webhook action %s missing config.url", action.ID)
	}
	body, err := json.Marshal(map[string]any{"action": action.ID, "alert": alert})
	if err != nil {
		return "", fmt.Errorf("autoaction: marshal webhook payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("autoaction: build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := a.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("autoaction: webhook dispatch: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("autoaction: webhook returned status %d", resp.StatusCode)
	}
	return fmt.Sprintf("webhook delivered, status %d", resp.StatusCode), nil
}

// SlackAdapter posts a formatted message to a Slack incoming-webhook URL
// carried in config["webhookUrl"].
type SlackAdapter struct {
	Client HTTPDoer
}

// NewSlackAdapter constructs a SlackAdapter with a sane request timeout.
func NewSlackAdapter() *SlackAdapter {
	return &SlackAdapter{Client: &http.Client{Timeout: 10 * time.Second}}
}

func (a *SlackAdapter) Dispatch(ctx context.Context, action Action, alert *Alert) (string, error) {
	webhookURL, _ := action.Config["webhookUrl"].(string)
	if webhookURL == "" {
		return "", fmt.Errorf("autoaction: slack action %s missing config.webhookUrl", action.ID)
	}
	text := fmt.Sprintf("auto-action %s fired", action.ID)
	if alert != nil {
		text = fmt.Sprintf("[%s] %s (rule %s)", alert.Severity, text, alert.RuleID)
	}
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return "", fmt.Errorf("autoaction: marshal slack payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("autoaction: build slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := a.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("autoaction: slack dispatch: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("autoaction: slack returned status %d", resp.StatusCode)
	}
	return "slack message delivered", nil
}

// Mailer sends a single plain-text email; implementations wrap an SMTP
// client or a transactional-email API.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// EmailAdapter sends a fixed-template notification to config["to"].
type EmailAdapter struct {
	Mailer Mailer
}

func (a *EmailAdapter) Dispatch(ctx context.Context, action Action, alert *Alert) (string, error) {
	to, _ := action.Config["to"].(string)
	if to == "" {
		return "", fmt.Errorf("autoaction: email action %s missing config.to", action.ID)
	}
	subject := fmt.Sprintf("auto-action %s triggered", action.ID)
	body := "an alert matched this action's trigger."
	if alert != nil {
		body = fmt.Sprintf("alert %s (severity %s, rule %s) matched this action's trigger.", alert.ID, alert.Severity, alert.RuleID)
	}
	if err := a.Mailer.Send(ctx, to, subject, body); err != nil {
		return "", fmt.Errorf("autoaction: email dispatch: %w", err)
	}
	return "email sent to " + to, nil
}
