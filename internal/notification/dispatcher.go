package notification

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fuomag9/targetwatch/internal/models"
)

// Dispatcher sends up/down alerts to every configured channel.
type Dispatcher struct {
	channels []*Channel
	logger   *zap.Logger
}

// NewDispatcher validates each channel against its provider. Channels with an
// unknown type or bad configuration are rejected.
func NewDispatcher(channels []*Channel, logger *zap.Logger) (*Dispatcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var errs error
	for _, ch := range channels {
		provider, ok := GetProvider(ch.Type)
		if !ok {
			errs = multierr.Append(errs, fmt.Errorf("channel %s: unknown provider %q", ch.Name, ch.Type))
			continue
		}
		if err := provider.Validate(ch.Config); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("channel %s: %w", ch.Name, err))
		}
	}
	if errs != nil {
		return nil, errs
	}
	return &Dispatcher{channels: channels, logger: logger}, nil
}

// ChannelsFromURLs builds the channel list from the webhook settings.
func ChannelsFromURLs(webhookURL, slackURL string) []*Channel {
	var out []*Channel
	if webhookURL != "" {
		out = append(out, &Channel{Name: "webhook", Type: "webhook", Config: map[string]string{"webhook_url": webhookURL}})
	}
	if slackURL != "" {
		out = append(out, &Channel{Name: "slack", Type: "slack", Config: map[string]string{"webhook_url": slackURL}})
	}
	return out
}

// Enabled reports whether any channel is configured.
func (d *Dispatcher) Enabled() bool {
	return len(d.channels) > 0
}

// NotifyTransition sends an alert for a target that went up or down.
func (d *Dispatcher) NotifyTransition(ctx context.Context, target *models.Target, outcome *models.ProbeOutcome, up bool) error {
	msg := &Message{
		Title:     "Target is DOWN",
		TargetID:  target.ID,
		TargetURL: target.URL,
		Status:    "down",
		Time:      time.Now().UTC().Format(time.RFC3339),
		Important: true,
	}
	if up {
		msg.Title = "Target is UP"
		msg.Status = "up"
		msg.Important = false
	}
	if outcome != nil {
		msg.Body = outcome.Message
		msg.StatusCode = outcome.StatusCode
		msg.LatencyMS = outcome.LatencyMS
		msg.Time = outcome.CheckedAt.UTC().Format(time.RFC3339)
	}
	return d.send(ctx, msg)
}

// Test sends a sample message to every channel.
func (d *Dispatcher) Test(ctx context.Context) error {
	return d.send(ctx, &Message{
		Title:     "Test Notification",
		Body:      "This is a test notification from targetwatch.",
		TargetURL: "https://example.com",
		Status:    "up",
		Time:      time.Now().UTC().Format(time.RFC3339),
	})
}

func (d *Dispatcher) send(ctx context.Context, msg *Message) error {
	if len(d.channels) == 0 {
		return nil
	}

	errs := make([]error, len(d.channels))
	var g errgroup.Group
	for i, ch := range d.channels {
		g.Go(func() error {
			provider, _ := GetProvider(ch.Type)
			if err := provider.Send(ctx, ch, msg); err != nil {
				d.logger.Warn("notification_send_error",
					zap.String("channel", ch.Name),
					zap.String("target_id", msg.TargetID),
					zap.Error(err),
				)
				errs[i] = fmt.Errorf("%s: %w", ch.Name, err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return multierr.Combine(errs...)
}
