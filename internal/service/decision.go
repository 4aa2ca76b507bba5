package service

import "relaymux-go/internal/model"

// Resolver decides where a request goes: to an upstream destination or to a
// direct response. Errors are propagated to the engine's caller untouched,
// never converted into responses.
type Resolver func(pr *model.ProxyRequest) (Decision, error)

type decisionKind int

const (
	decisionRespond decisionKind = iota + 1
	decisionForward
)

// Decision is the outcome of HTTP-mode resolution: either forward the request
// to an upstream or answer it directly. Construct one with Respond or
// Forward; the zero value is invalid.
type Decision struct {
	kind     decisionKind
	dest     model.Destination
	response *model.ProxyResponse
}

// Respond answers the request directly with resp, bypassing any upstream.
func Respond(resp *model.ProxyResponse) Decision {
	return Decision{kind: decisionRespond, response: resp}
}

// Forward proxies the request to an upstream destination.
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

// Response returns the direct response; meaningful only when not IsForward.
func (d Decision) Response() *model.ProxyResponse {
	return d.response
}
