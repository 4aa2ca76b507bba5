package relay

import (
	"context"
	"io"

	"relaymux-go/internal/model"
	"relaymux-go/internal/sniff"
)

// Handler serves a raw duplex connection: src carries any bytes the scanner
// pushed back, dst writes to the client. The connection's lifecycle after the
// handler returns belongs to whoever accepted it.
type Handler func(ctx context.Context, src *sniff.Source, dst io.Writer) error

// Resolver maps the first request's headers to a routing decision. It is
// caller-supplied logic; errors are propagated, not recovered.
type Resolver func(headers sniff.Headers) (Decision, error)

type decisionKind int

const (
	decisionFallback decisionKind = iota + 1
	decisionForward
)

// Decision is the outcome of raw-mode resolution: either hand the connection
// to a local handler, or splice it to an upstream destination. Construct one
// with Fallback or Forward; the zero value is invalid.
type Decision struct {
	kind    decisionKind
	dest    model.Destination
	handler Handler
}

// Fallback routes the connection to a local raw handler.
func Fallback(h Handler) Decision {
	return Decision{kind: decisionFallback, handler: h}
}

// Forward routes the connection to an upstream destination.
func Forward(dest model.Destination) Decision {
	return Decision{kind: decisionForward, dest: dest}
}

// IsForward reports whether the decision forwards to an upstream.
func (d Decision) IsForward() bool {
	return d.kind == decisionForward
}

// Destination returns the forward target; meaningful only when IsForward.
func (d Decision) Destination() model.Destination {
	return d.dest
}
