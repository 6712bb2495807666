package sandbox

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/lythra/lythra/internal/platform"
	"github.com/lythra/lythra/internal/policy"
)

// InstanceHeader identifies the originating instance on outbound requests.
const InstanceHeader = "X-Lythra-Module-Instance"

// Blocklist lists hosts and path prefixes modules may never reach.
type Blocklist struct {
	Hosts        []string
	PathPrefixes []string
}

// DefaultBlocklist returns the built-in targets.
func DefaultBlocklist() Blocklist {
	return Blocklist{
		Hosts:        []string{"localhost", "127.0.0.1", "admin.lythra.app"},
		PathPrefixes: []string{"/api/auth", "/api/admin", "/api/internal"},
	}
}

// Merge returns b extended with other's entries.
func (b Blocklist) Merge(other Blocklist) Blocklist {
	out := Blocklist{
		Hosts:        append(append([]string{}, b.Hosts...), other.Hosts...),
		PathPrefixes: append(append([]string{}, b.PathPrefixes...), other.PathPrefixes...),
	}
	return out
}

// Check returns ErrBlockedTarget when u hits a blocked host or path.
func (b Blocklist) Check(u *url.URL) error {
	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	for _, h := range b.Hosts {
		if host == strings.ToLower(strings.TrimSpace(h)) {
			return fmt.Errorf("%w: host %s", ErrBlockedTarget, host)
		}
	}
	p := u.Path
	if p == "" {
		p = "/"
	}
	p = path.Clean("/" + p)
	for _, prefix := range b.PathPrefixes {
		prefix = strings.TrimSpace(prefix)
		if prefix != "" && strings.HasPrefix(p, prefix) {
			return fmt.Errorf("%w: path %s", ErrBlockedTarget, p)
		}
	}
	return nil
}

// FetchOptions configures a Fetch call. An empty Method means GET.
type FetchOptions struct {
	Method string
	Header http.Header
	Body   io.Reader
}

// Network is the gated outbound HTTP accessor.
type Network struct {
	gate
	client    platform.HTTPDoer
	blocklist Blocklist
}

// Fetch performs the request after the permission and blocklist checks.
// Transport failures are logged and returned.
func (n *Network) Fetch(ctx context.Context, rawURL string, opts FetchOptions) (*http.Response, error) {
	method := strings.ToUpper(strings.TrimSpace(opts.Method))
	if method == "" {
		method = http.MethodGet
	}
	if err := n.check(policy.RequiredForMethod(method), "network.fetch"); err != nil {
		return nil, err
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	if err := n.blocklist.Check(u); err != nil {
		slog.Warn("Sandbox network target blocked", "instance", n.instanceID, "url", rawURL)
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), opts.Body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, vals := range opts.Header {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set(InstanceHeader, n.instanceID)

	resp, err := n.client.Do(req)
	if err != nil {
		slog.Error("Sandbox network request failed", "instance", n.instanceID, "method", method, "url", rawURL, "error", err)
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	return resp, nil
}
