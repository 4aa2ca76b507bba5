// Package route maps inbound host names to upstream destinations and exposes
// the resolvers both proxy planes consult.
package route

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync/atomic"

	"relaymux-go/internal/config"
	"relaymux-go/internal/model"
)

// Mode selects how a matched connection is carried to its upstream.
type Mode string

const (
	// ModeRelay splices bytes to the upstream without interpreting them.
	ModeRelay Mode = "relay"
	// ModeHTTP re-speaks HTTP/1.x toward the upstream.
	ModeHTTP Mode = "http"
)

// Route binds an inbound host name to an upstream destination.
type Route struct {
	Host string
	Dest model.Destination
	Mode Mode
}

// Table is a swappable host to route map. Lookups are lock-free; Replace
// installs a new generation atomically, so in-flight connections finish on
// the table they started with.
type Table struct {
	routes atomic.Pointer[map[string]Route]
}

// NewTable creates a Table holding the given routes.
func NewTable(routes []Route) *Table {
	t := &Table{}
	t.Replace(routes)
	return t
}

// Replace swaps in a new route set.
func (t *Table) Replace(routes []Route) {
	m := make(map[string]Route, len(routes))
	for _, r := range routes {
		m[normalizeHost(r.Host)] = r
	}
	t.routes.Store(&m)
}

// Lookup finds the route for an inbound host name. Matching ignores case and
// any :port suffix; a route for "*" catches anything unmatched.
func (t *Table) Lookup(host string) (Route, bool) {
	m := *t.routes.Load()
	if r, ok := m[normalizeHost(host)]; ok {
		return r, true
	}
	r, ok := m["*"]
	return r, ok
}

// Len reports the number of installed routes.
func (t *Table) Len() int {
	return len(*t.routes.Load())
}

func normalizeHost(host string) string {
	host = strings.TrimSpace(strings.ToLower(host))
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

// FromConfig converts configured route entries into routes, validating each
// entry. Mode defaults to http when unset. Two entries for the same host are
// rejected rather than letting the later one win silently.
func FromConfig(entries []config.RouteConfig) ([]Route, error) {
	routes := make([]Route, 0, len(entries))
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		r, err := parseEntry(e)
		if err != nil {
			return nil, err
		}
		key := normalizeHost(r.Host)
		if _, ok := seen[key]; ok {
			return nil, fmt.Errorf("route %q: duplicate host", e.Host)
		}
		seen[key] = struct{}{}
		routes = append(routes, r)
	}
	return routes, nil
}

func parseEntry(e config.RouteConfig) (Route, error) {
	if e.Host == "" {
		return Route{}, fmt.Errorf("route with upstream %q: host must not be empty", e.Upstream)
	}

	host, portStr, err := net.SplitHostPort(e.Upstream)
	if err != nil {
		return Route{}, fmt.Errorf("route %q: upstream %q: %w", e.Host, e.Upstream, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return Route{}, fmt.Errorf("route %q: upstream port %q: %w", e.Host, portStr, err)
	}
	dest := model.Destination{Host: host, Port: port}
	if err := dest.Validate(); err != nil {
		return Route{}, fmt.Errorf("route %q: %w", e.Host, err)
	}

	mode := Mode(strings.ToLower(e.Mode))
	if mode == "" {
		mode = ModeHTTP
	}
	if mode != ModeRelay && mode != ModeHTTP {
		return Route{}, fmt.Errorf("route %q: unknown mode %q", e.Host, e.Mode)
	}

	return Route{Host: e.Host, Dest: dest, Mode: mode}, nil
}
