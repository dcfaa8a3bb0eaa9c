package monitor

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/fuomag9/targetwatch/internal/models"
)

const (
	DefaultProbeTimeout = 10 * time.Second
	maxDrainBytes       = 64 << 10
	userAgent           = "targetwatch/1.0 (+uptime probe)"
)

// Result is the outcome of a single probe before it is persisted.
type Result struct {
	StatusCode int
	Latency    time.Duration
	Success    bool
	Message    string
	CheckedAt  time.Time
}

// LatencyMS returns the latency in fractional milliseconds.
func (r Result) LatencyMS() float64 {
	return float64(r.Latency) / float64(time.Millisecond)
}

// Prober performs one probe against a URL. Implementations never return an
// error: transport failures are reported as a Result with StatusCode 0.
type Prober interface {
	Probe(ctx context.Context, url string) Result
}

// HTTPProber issues a single GET per probe.
type HTTPProber struct {
	client  *http.Client
	timeout time.Duration
	now     func() time.Time
}

// NewHTTPProber creates a prober with the given timeout. When guard is non-nil
// every dialed address is checked against it, which also catches hostnames
// that resolve to a private address after the target was registered.
func NewHTTPProber(timeout time.Duration, guard *SSRFProtection) *HTTPProber {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}

	dialer := &net.Dialer{
		Timeout:   timeout,
		KeepAlive: 30 * time.Second,
	}
	if guard != nil {
		dialer.Control = func(network, address string, _ syscall.RawConn) error {
			host, _, err := net.SplitHostPort(address)
			if err != nil {
				return err
			}
			ip := net.ParseIP(host)
			if ip == nil {
				return fmt.Errorf("unresolved address %q", address)
			}
			return guard.validateIP(ip)
		}
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         dialer.DialContext,
		TLSHandshakeTimeout: timeout,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     90 * time.Second,
	}

	return &HTTPProber{
		client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		timeout: timeout,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Probe performs the HTTP check
func (p *HTTPProber) Probe(ctx context.Context, url string) Result {
	res := Result{CheckedAt: p.now()}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		res.Message = fmt.Sprintf("invalid request: %v", err)
		return res
	}
	req.Header.Set("User-Agent", userAgent)

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		res.Message = err.Error()
		return res
	}
	defer resp.Body.Close()
	_, _ = io.CopyN(io.Discard, resp.Body, maxDrainBytes)

	res.Latency = time.Since(start)
	res.StatusCode = resp.StatusCode
	res.Success = models.IsSuccessStatus(resp.StatusCode)
	res.Message = fmt.Sprintf("HTTP %d", resp.StatusCode)
	return res
}
