package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"

	"relaymux-go/internal/model"
	"relaymux-go/internal/service"
)

// ProxyHandler forwards inbound HTTP requests through the proxy service.
type ProxyHandler struct {
	service *service.ProxyService
	logger  *slog.Logger
}

// NewProxyHandler creates a ProxyHandler.
func NewProxyHandler(svc *service.ProxyService, logger *slog.Logger) *ProxyHandler {
	return &ProxyHandler{
		service: svc,
		logger:  logger.With("component", "proxy_handler"),
	}
}

// Handle proxies the request to its routed upstream and streams the response back.
func (h *ProxyHandler) Handle(c echo.Context) error {
	req := c.Request()

	pr := &model.ProxyRequest{
		Ctx:    req.Context(),
		Method: req.Method,
		Path:   req.URL.Path,
		Query:  req.URL.Query(),
		Header: req.Header,
		Host:   req.Host,
		Body:   req.Body,
	}

	resp, err := h.service.Handle(pr)
	if err != nil {
		return h.mapError(c, err)
	}
	defer func() { _ = resp.Body.Close() }()

	// Copy filtered response headers
	for key, vals := range resp.Header {
		for _, v := range vals {
			c.Response().Header().Add(key, v)
		}
	}

	c.Response().WriteHeader(resp.StatusCode)

	// The status line has already gone out, so a copy failure mid-stream
	// can only truncate the response.
	if _, err := io.Copy(c.Response(), resp.Body); err != nil {
		h.logger.Error("streaming response body",
			"err", err,
			"host", req.Host,
			"path", req.URL.Path,
		)
	}

	return nil
}

func (h *ProxyHandler) mapError(c echo.Context, err error) error {
	h.logger.Error("proxy error",
		"err", err,
		"host", c.Request().Host,
		"path", c.Request().URL.Path,
	)

	status, msg := classifyUpstreamError(err)
	return c.JSON(status, map[string]string{"error": msg})
}

// JSONErrorHandler converts an upstream exchange failure into a JSON error
// response. It plugs into the proxy service as its error handler so the HTTP
// plane answers in the same shape as the admin endpoints.
func JSONErrorHandler(err error) *model.ProxyResponse {
	status, msg := classifyUpstreamError(err)
	body, _ := json.Marshal(map[string]string{"error": msg})

	header := make(http.Header)
	header.Set("Content-Type", "application/json")
	return &model.ProxyResponse{
		StatusCode: status,
		Header:     header,
		Body:       io.NopCloser(bytes.NewReader(body)),
	}
}

// classifyUpstreamError maps an upstream failure to a status code and a
// stable client-facing message.
func classifyUpstreamError(err error) (int, string) {
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout, "upstream request timed out"
	}
	if errors.Is(err, context.Canceled) {
		return http.StatusBadGateway, "client disconnected"
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return http.StatusBadGateway, "upstream host unreachable"
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return http.StatusBadGateway, "upstream connection failed"
	}

	return http.StatusBadGateway, "upstream request failed"
}
