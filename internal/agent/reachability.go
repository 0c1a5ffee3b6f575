package agent

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// CheckReachable dials the host of rawURL. An empty URL is not an error.
func CheckReachable(ctx context.Context, rawURL string) error {
	raw := strings.TrimSpace(rawURL)
	if raw == "" {
		return nil
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed == nil {
		return fmt.Errorf("invalid url %q: %w", rawURL, err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	host := parsed.Hostname()
	if scheme == "" || host == "" {
		return fmt.Errorf("invalid url %q: scheme=%q host=%q", rawURL, parsed.Scheme, parsed.Host)
	}

	port := parsed.Port()
	if port == "" {
		switch scheme {
		case "http":
			port = "80"
		case "https":
			port = "443"
		default:
			return fmt.Errorf("unsupported scheme %q (url=%q)", parsed.Scheme, rawURL)
		}
	}
	if _, err := strconv.Atoi(port); err != nil {
		return fmt.Errorf("invalid port %q (url=%q): %w", port, rawURL, err)
	}

	addr := net.JoinHostPort(host, port)
	conn, err := (&net.Dialer{}).DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("cannot connect to %s (url=%q): %w", addr, rawURL, err)
	}
	_ = conn.Close()
	return nil
}
