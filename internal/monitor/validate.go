package monitor

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var (
	ErrInvalidURL      = errors.New("invalid url")
	ErrInvalidInterval = errors.New("invalid interval")
	ErrTargetLimit     = errors.New("target limit reached")
)

// URLValidator decides whether a normalised URL may be monitored.
type URLValidator interface {
	ValidateURL(ctx context.Context, rawURL string) error
}

// NormalizeURL trims the input and prefixes https:// when no scheme is given.
// The result must be an absolute http or https URL with a host.
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: empty url", ErrInvalidURL)
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	return u.String(), nil
}

// ValidateInterval accepts whole minutes in [1, max].
func ValidateInterval(minutes, max int) error {
	if minutes < 1 {
		return fmt.Errorf("%w: must be at least 1 minute", ErrInvalidInterval)
	}
	if max > 0 && minutes > max {
		return fmt.Errorf("%w: must be at most %d minutes", ErrInvalidInterval, max)
	}
	return nil
}
