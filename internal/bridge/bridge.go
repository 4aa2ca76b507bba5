// Package bridge serves HTTP/1.x directly on a raw connection. It reads
// requests off the byte source in a keep-alive loop, hands each one to a
// proxy handler and serializes the handler's response back onto the sink,
// recomputing framing on the way out.
package bridge

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"relaymux-go/internal/model"
	"relaymux-go/internal/relay"
	"relaymux-go/internal/sniff"
)

// Handler serves one bridged request.
type Handler func(pr *model.ProxyRequest) (*model.ProxyResponse, error)

// hopByHopHeaders never travel past the connection they arrived on.
var hopByHopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Upgrade",
}

// New wraps h into a raw-connection handler. The returned handler parses
// HTTP/1.x requests from the source, which may carry replayed leftover bytes,
// and keeps the connection open across exchanges for as long as the protocol
// allows. It never closes the connection itself; a non-nil return or a normal
// return both hand the socket back to its owner.
func New(h Handler, logger *slog.Logger) relay.Handler {
	logger = logger.With("component", "bridge")

	return func(ctx context.Context, src *sniff.Source, dst io.Writer) error {
		reader := bufio.NewReader(src)
		for {
			req, err := http.ReadRequest(reader)
			if err != nil {
				// A connection that ends between requests is a normal end.
				if errors.Is(err, io.EOF) {
					return nil
				}
				return fmt.Errorf("read request: %w", err)
			}

			keepAlive := !req.Close && req.ProtoAtLeast(1, 1)

			pr := &model.ProxyRequest{
				Ctx:    ctx,
				Method: req.Method,
				Path:   req.URL.Path,
				Query:  req.URL.Query(),
				Header: stripHopByHop(req.Header),
				Host:   req.Host,
				Body:   req.Body,
			}

			logger.Debug("bridged request",
				"method", req.Method,
				"host", req.Host,
				"path", req.URL.Path,
				"keep_alive", keepAlive,
			)

			resp, err := h(pr)
			if err != nil {
				_ = req.Body.Close()
				return fmt.Errorf("serve bridged request: %w", err)
			}

			if err := writeResponse(dst, req, resp, keepAlive); err != nil {
				return fmt.Errorf("write response: %w", err)
			}

			// Close consumes any unread remainder of the request body, so the
			// next request starts at a message boundary.
			if err := req.Body.Close(); err != nil {
				return fmt.Errorf("finish request body: %w", err)
			}

			if !keepAlive {
				return nil
			}
		}
	}
}

// writeResponse serializes resp onto the sink in the client's protocol
// dialect. Framing is always recomputed: keep-alive responses stream with
// chunked transfer coding, closing responses are close-delimited, and
// bodiless statuses carry no framing headers at all.
func writeResponse(dst io.Writer, req *http.Request, resp *model.ProxyResponse, keepAlive bool) error {
	out := &http.Response{
		StatusCode: resp.StatusCode,
		ProtoMajor: req.ProtoMajor,
		ProtoMinor: req.ProtoMinor,
		Header:     resp.Header,
		Request:    req,
		Close:      !keepAlive,
	}

	if bodyAllowed(resp.StatusCode) {
		out.Body = resp.Body
		out.ContentLength = -1
		if keepAlive {
			out.TransferEncoding = []string{"chunked"}
		}
	} else if resp.Body != nil {
		_ = resp.Body.Close()
	}

	return out.Write(dst)
}

// bodyAllowed mirrors the HTTP/1.x rule for statuses that never carry a body.
func bodyAllowed(status int) bool {
	switch {
	case status >= 100 && status < 200:
		return false
	case status == http.StatusNoContent, status == http.StatusNotModified:
		return false
	}
	return true
}

// stripHopByHop clones h without connection-scoped headers: the standard
// hop-by-hop set plus anything named by the Connection header itself.
func stripHopByHop(h http.Header) http.Header {
	dst := h.Clone()
	for _, value := range h.Values("Connection") {
		for _, name := range strings.Split(value, ",") {
			if name = strings.TrimSpace(name); name != "" {
				dst.Del(name)
			}
		}
	}
	for _, name := range hopByHopHeaders {
		dst.Del(name)
	}
	return dst
}
