package notification

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Provider defines the interface for all notification providers
type Provider interface {
	// Name returns the unique identifier for this provider
	Name() string

	// Send delivers message through the given channel
	Send(ctx context.Context, channel *Channel, message *Message) error

	// Validate validates the channel configuration
	Validate(config map[string]string) error
}

// Channel is a configured destination for transition alerts.
type Channel struct {
	Name   string
	Type   string // webhook, slack
	Config map[string]string
}

// Message represents a notification message to be sent
type Message struct {
	Title      string
	Body       string
	TargetID   string
	TargetURL  string
	Status     string // "up" or "down"
	StatusCode int
	LatencyMS  float64
	Time       string
	Important  bool
}

var (
	providers = make(map[string]Provider)
	mu        sync.RWMutex
)

// RegisterProvider registers a new notification provider
func RegisterProvider(provider Provider) {
	mu.Lock()
	defer mu.Unlock()
	providers[provider.Name()] = provider
}

// GetProvider returns a provider by name
func GetProvider(name string) (Provider, bool) {
	mu.RLock()
	defer mu.RUnlock()
	provider, ok := providers[name]
	return provider, ok
}

// FormatMessage renders a plain-text body shared by providers without rich
// formatting.
func FormatMessage(msg *Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s\n\n", strings.ToUpper(msg.Status), msg.Title)
	if msg.Body != "" {
		b.WriteString(msg.Body + "\n\n")
	}
	fmt.Fprintf(&b, "Target: %s\n", msg.TargetURL)
	if msg.StatusCode > 0 {
		fmt.Fprintf(&b, "Status code: %d\n", msg.StatusCode)
	}
	if msg.LatencyMS > 0 {
		fmt.Fprintf(&b, "Response time: %.0fms\n", msg.LatencyMS)
	}
	fmt.Fprintf(&b, "Time: %s\n", msg.Time)
	return b.String()
}
