package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// SlackProvider sends Slack webhook notifications
type SlackProvider struct{}

func init() {
	RegisterProvider(&SlackProvider{})
}

func (s *SlackProvider) Name() string {
	return "slack"
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

type slackAttachment struct {
	Color  string       `json:"color"`
	Title  string       `json:"title"`
	Text   string       `json:"text"`
	TS     int64        `json:"ts"`
	Footer string       `json:"footer"`
	Fields []slackField `json:"fields"`
}

func (s *SlackProvider) Send(ctx context.Context, channel *Channel, message *Message) error {
	webhookURL := channel.Config["webhook_url"]
	if webhookURL == "" {
		return fmt.Errorf("webhook_url is required")
	}
	username := channel.Config["username"]
	if username == "" {
		username = "targetwatch"
	}

	color, icon := "#808080", ":information_source:"
	switch message.Status {
	case "up":
		color, icon = "good", ":white_check_mark:"
	case "down":
		color, icon = "danger", ":x:"
	}

	att := slackAttachment{
		Color:  color,
		Title:  message.Title,
		Text:   message.Body,
		TS:     time.Now().Unix(),
		Footer: "targetwatch",
		Fields: []slackField{
			{Title: "Target", Value: message.TargetURL, Short: false},
			{Title: "Status", Value: message.Status, Short: true},
		},
	}
	if message.StatusCode > 0 {
		att.Fields = append(att.Fields, slackField{Title: "HTTP", Value: fmt.Sprintf("%d", message.StatusCode), Short: true})
	}
	if message.LatencyMS > 0 {
		att.Fields = append(att.Fields, slackField{Title: "Response Time", Value: fmt.Sprintf("%.0fms", message.LatencyMS), Short: true})
	}

	payload := map[string]interface{}{
		"username":    username,
		"icon_emoji":  icon,
		"attachments": []slackAttachment{att},
	}
	if ch := channel.Config["channel"]; ch != "" {
		payload["channel"] = ch
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(payloadBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return post(req)
}

func (s *SlackProvider) Validate(config map[string]string) error {
	if config["webhook_url"] == "" {
		return fmt.Errorf("webhook_url is required")
	}
	return nil
}
