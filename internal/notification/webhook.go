package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// WebhookProvider posts a JSON document describing the transition.
type WebhookProvider struct{}

func init() {
	RegisterProvider(&WebhookProvider{})
}

func (w *WebhookProvider) Name() string {
	return "webhook"
}

func (w *WebhookProvider) Send(ctx context.Context, channel *Channel, message *Message) error {
	url := channel.Config["webhook_url"]
	if url == "" {
		return fmt.Errorf("webhook_url is required")
	}
	method := channel.Config["method"]
	if method == "" {
		method = http.MethodPost
	}

	payload := map[string]interface{}{
		"title":       message.Title,
		"body":        message.Body,
		"text":        FormatMessage(message),
		"target_id":   message.TargetID,
		"target_url":  message.TargetURL,
		"status":      message.Status,
		"status_code": message.StatusCode,
		"latency_ms":  message.LatencyMS,
		"time":        message.Time,
		"important":   message.Important,
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(payloadBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	return post(req)
}

func (w *WebhookProvider) Validate(config map[string]string) error {
	if config["webhook_url"] == "" {
		return fmt.Errorf("webhook_url is required")
	}
	return nil
}

const userAgent = "targetwatch/1.0"

var httpClient = &http.Client{Timeout: 10 * time.Second}

func post(req *http.Request) error {
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send %s: %w", req.URL.Host, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s returned status %d", req.URL.Host, resp.StatusCode)
	}
	return nil
}
