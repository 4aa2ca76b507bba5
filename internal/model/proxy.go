// Package model defines shared types for the proxy.
package model

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
)

// Destination addresses one upstream endpoint. It is a plain value: produced
// fresh per routing decision and consumed immediately to open or address a
// connection.
type Destination struct {
	Host string
	Port int
}

// Addr returns the destination as a dialable host:port string.
func (d Destination) Addr() string {
	return net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
}

// Validate checks that the destination is usable.
func (d Destination) Validate() error {
	if d.Host == "" {
		return fmt.Errorf("destination host is empty")
	}
	if d.Port < 1 || d.Port > 65535 {
		return fmt.Errorf("destination port %d out of range 1-65535", d.Port)
	}
	return nil
}

// ProxyRequest represents a client request to be forwarded upstream.
type ProxyRequest struct {
	Ctx    context.Context
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Host   string
	Body   io.ReadCloser
}

// ProxyResponse represents the upstream response to be streamed back.
type ProxyResponse struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}
