package monitor

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"
)

var privateRanges = mustParseCIDRs(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"100.64.0.0/10",  // carrier-grade NAT
	"169.254.0.0/16", // link-local / cloud metadata
	"127.0.0.0/8",
	"fc00::/7",
	"fe80::/10",
	"::1/128",
)

var blockedHostnames = []string{
	"localhost",
	"localhost.localdomain",
	"0.0.0.0",
}

var metadataHostnames = []string{
	"169.254.169.254",
	"metadata.google.internal",
	"169.254.170.2",
	"fd00:ec2::254",
}

// SSRFProtection rejects target URLs that point at the service's own network.
type SSRFProtection struct {
	allowPrivateIPs bool
	resolver        *net.Resolver
}

func NewSSRFProtection(allowPrivateIPs bool) *SSRFProtection {
	return &SSRFProtection{
		allowPrivateIPs: allowPrivateIPs,
		resolver:        net.DefaultResolver,
	}
}

// ValidateURL checks scheme and host, resolves the host and rejects it if any
// address is private. Metadata endpoints are always rejected.
func (s *SSRFProtection) ValidateURL(ctx context.Context, rawURL string) error {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("only http and https schemes are allowed")
	}

	hostname := strings.ToLower(parsedURL.Hostname())
	if hostname == "" {
		return fmt.Errorf("URL must have a hostname")
	}
	if s.isBlockedHostname(hostname) {
		return fmt.Errorf("access to this hostname is not allowed")
	}

	addrs, err := s.resolver.LookupIPAddr(ctx, hostname)
	if err != nil {
		return fmt.Errorf("failed to resolve hostname: %w", err)
	}
	if len(addrs) == 0 {
		return fmt.Errorf("hostname does not resolve to any IP address")
	}

	for _, addr := range addrs {
		if isMetadataIP(addr.IP) {
			return fmt.Errorf("IP address %s is not allowed: metadata endpoint", addr.IP)
		}
		if err := s.validateIP(addr.IP); err != nil {
			return fmt.Errorf("IP address %s is not allowed: %w", addr.IP, err)
		}
	}
	return nil
}

func (s *SSRFProtection) isBlockedHostname(hostname string) bool {
	for _, blocked := range metadataHostnames {
		if hostname == blocked || strings.HasSuffix(hostname, "."+blocked) {
			return true
		}
	}
	if s.allowPrivateIPs {
		return false
	}
	for _, blocked := range blockedHostnames {
		if hostname == blocked {
			return true
		}
	}
	return false
}

func (s *SSRFProtection) validateIP(ip net.IP) error {
	if s.allowPrivateIPs {
		return nil
	}
	switch {
	case isPrivateIP(ip):
		return fmt.Errorf("access to private IP addresses is not allowed")
	case ip.IsLoopback():
		return fmt.Errorf("access to loopback addresses is not allowed")
	case ip.IsLinkLocalUnicast(), ip.IsLinkLocalMulticast():
		return fmt.Errorf("access to link-local addresses is not allowed")
	case ip.IsMulticast():
		return fmt.Errorf("access to multicast addresses is not allowed")
	case ip.IsUnspecified():
		return fmt.Errorf("access to unspecified addresses is not allowed")
	}
	return nil
}

func isPrivateIP(ip net.IP) bool {
	for _, network := range privateRanges {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

func isMetadataIP(ip net.IP) bool {
	for _, h := range metadataHostnames {
		if m := net.ParseIP(h); m != nil && m.Equal(ip) {
			return true
		}
	}
	return false
}

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	out := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, network, err := net.ParseCIDR(c)
		if err != nil {
			panic(err)
		}
		out = append(out, network)
	}
	return out
}
