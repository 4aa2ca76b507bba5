// Package relay implements the raw byte-relay engine. It peeks at the first
// request's header block without consuming it, asks a resolver where the
// connection should go, and then either hands the connection to a fallback
// handler or splices it byte for byte to the chosen upstream until either
// side closes.
package relay

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"

	"github.com/google/uuid"

	"relaymux-go/internal/metrics"
	"relaymux-go/internal/sniff"
)

// Dialer opens upstream connections. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Engine drives accepted connections through scan, resolve and relay.
type Engine struct {
	resolver Resolver
	dialer   Dialer
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewEngine creates a relay engine. dialer may be nil, in which case a plain
// net.Dialer is used; m may be nil to disable metrics.
func NewEngine(resolver Resolver, dialer Dialer, logger *slog.Logger, m *metrics.Metrics) *Engine {
	if dialer == nil {
		dialer = &net.Dialer{}
	}
	return &Engine{
		resolver: resolver,
		dialer:   dialer,
		logger:   logger.With("component", "relay_engine"),
		metrics:  m,
	}
}

// Serve handles one accepted connection. It scans the leading header block,
// resolves a decision and either invokes the fallback handler or relays the
// connection to the resolved upstream. The caller owns conn and closes it
// after Serve returns; forwarded connections are additionally closed here the
// moment either direction finishes.
func (e *Engine) Serve(ctx context.Context, conn net.Conn) error {
	if e.metrics != nil {
		e.metrics.RelayActive.Inc()
		defer e.metrics.RelayActive.Dec()
	}

	logger := e.logger.With(
		"conn_id", uuid.NewString(),
		"remote_addr", conn.RemoteAddr().String(),
	)

	src := sniff.NewSource(conn)
	headers, err := sniff.ScanHeaders(src)
	if err != nil {
		e.countDecision(metrics.DecisionError)
		return fmt.Errorf("scan headers: %w", err)
	}

	decision, err := e.resolver(headers)
	if err != nil {
		e.countDecision(metrics.DecisionError)
		return fmt.Errorf("resolve destination: %w", err)
	}

	if !decision.IsForward() {
		e.countDecision(metrics.DecisionFallback)
		logger.Debug("connection handed to fallback handler")
		return decision.handler(ctx, src, conn)
	}

	dest := decision.Destination()
	upstream, err := e.dialer.DialContext(ctx, "tcp", dest.Addr())
	if err != nil {
		e.countDecision(metrics.DecisionError)
		if e.metrics != nil {
			e.metrics.RelayDialErrors.Inc()
		}
		return fmt.Errorf("dial upstream %s: %w", dest.Addr(), err)
	}
	defer upstream.Close()

	e.countDecision(metrics.DecisionForward)
	logger.Debug("relaying connection", "upstream", dest.Addr())
	e.splice(logger, conn, upstream, src)
	return nil
}

func (e *Engine) countDecision(decision string) {
	if e.metrics != nil {
		e.metrics.RelayConnections.WithLabelValues(decision).Inc()
	}
}

type copyResult struct {
	direction string
	bytes     int64
	err       error
}

// splice pumps bytes in both directions until either direction finishes.
// EOF and errors count the same: the first result to arrive ends the
// conversation, both sockets are closed so the sibling copy unblocks, and the
// sibling's result is drained before returning. Nothing is retried.
func (e *Engine) splice(logger *slog.Logger, client, upstream net.Conn, fromClient io.Reader) {
	done := make(chan copyResult, 2)

	go func() {
		n, err := io.Copy(upstream, fromClient)
		done <- copyResult{metrics.DirectionClientToUpstream, n, err}
	}()
	go func() {
		n, err := io.Copy(client, upstream)
		done <- copyResult{metrics.DirectionUpstreamToClient, n, err}
	}()

	first := <-done
	upstream.Close()
	client.Close()
	second := <-done

	bytesByDirection := map[string]int64{
		first.direction:  first.bytes,
		second.direction: second.bytes,
	}
	if e.metrics != nil {
		for direction, n := range bytesByDirection {
			e.metrics.RelayBytes.WithLabelValues(direction).Add(float64(n))
		}
	}
	logger.Debug("relay finished",
		"first_done", first.direction,
		"client_to_upstream_bytes", bytesByDirection[metrics.DirectionClientToUpstream],
		"upstream_to_client_bytes", bytesByDirection[metrics.DirectionUpstreamToClient],
	)
}
