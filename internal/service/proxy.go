// Package service implements the proxy forwarding engine.
package service

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"relaymux-go/internal/client"
	"relaymux-go/internal/model"
)

// strippedHeaders are dropped from forwarded requests and responses. Framing
// is renegotiated on each hop and content encoding stays between the
// endpoints.
var strippedHeaders = []string{
	"Content-Length",
	"Transfer-Encoding",
	"Accept-Encoding",
}

// ProxyService forwards requests to the destination chosen by its resolver,
// streaming bodies in both directions.
type ProxyService struct {
	client   *client.UpstreamClient
	resolver Resolver
	onError  ErrorHandler
	logger   *slog.Logger
}

// NewProxyService creates a ProxyService. onError may be nil, in which case
// DefaultErrorHandler is used.
func NewProxyService(c *client.UpstreamClient, resolver Resolver, onError ErrorHandler, logger *slog.Logger) *ProxyService {
	if onError == nil {
		onError = DefaultErrorHandler
	}
	return &ProxyService{
		client:   c,
		resolver: resolver,
		onError:  onError,
		logger:   logger.With("component", "proxy_service"),
	}
}

// Handle resolves and serves one proxy request. Resolver errors are returned
// to the caller; upstream exchange failures are converted into a response by
// the error handler. The caller is responsible for closing the response body.
func (s *ProxyService) Handle(pr *model.ProxyRequest) (*model.ProxyResponse, error) {
	decision, err := s.resolver(pr)
	if err != nil {
		return nil, fmt.Errorf("resolve destination: %w", err)
	}

	if !decision.IsForward() {
		return decision.Response(), nil
	}

	dest := decision.Destination()
	upstreamURL := buildUpstreamURL(dest, pr.Path, pr.Query)
	header := copyHeadersExcept(pr.Header, strippedHeaders)

	s.logger.Debug("forwarding request",
		"method", pr.Method,
		"host", pr.Host,
		"upstream", dest.Addr(),
	)

	resp, err := s.client.DoStream(pr.Ctx, pr.Method, upstreamURL, pr.Host, header, pr.Body)
	if err != nil {
		s.logger.Warn("upstream exchange failed",
			"upstream", dest.Addr(),
			"error", err,
		)
		return s.onError(err), nil
	}

	resp.Header = copyHeadersExcept(resp.Header, strippedHeaders)
	return resp, nil
}

func buildUpstreamURL(dest model.Destination, path string, query url.Values) string {
	u := url.URL{
		Scheme:   "http",
		Host:     dest.Addr(),
		Path:     path,
		RawQuery: query.Encode(),
	}
	return u.String()
}

// copyHeadersExcept clones src without the named headers. Everything else
// passes through, duplicate values included.
func copyHeadersExcept(src http.Header, except []string) http.Header {
	dst := make(http.Header, len(src))
	for key, vals := range src {
		dst[http.CanonicalHeaderKey(key)] = vals
	}
	for _, key := range except {
		dst.Del(key)
	}
	return dst
}
