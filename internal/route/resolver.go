package route

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"relaymux-go/internal/model"
	"relaymux-go/internal/relay"
	"relaymux-go/internal/service"
	"relaymux-go/internal/sniff"
)

// RawResolver resolves raw connections against the table. Hosts routed in
// relay mode are forwarded as opaque byte streams; everything else, unmatched
// hosts included, is handed to fallback so the HTTP plane can answer.
func RawResolver(t *Table, fallback relay.Handler) relay.Resolver {
	return func(headers sniff.Headers) (relay.Decision, error) {
		host, _ := headers.Get("host")
		r, ok := t.Lookup(host)
		if !ok || r.Mode != ModeRelay {
			return relay.Fallback(fallback), nil
		}
		return relay.Forward(r.Dest), nil
	}
}

// HTTPResolver resolves proxied HTTP requests against the table. Matched
// hosts forward regardless of mode; unmatched hosts get a 404 naming the
// host.
func HTTPResolver(t *Table) service.Resolver {
	return func(pr *model.ProxyRequest) (service.Decision, error) {
		r, ok := t.Lookup(pr.Host)
		if !ok {
			return service.Respond(noRouteResponse(pr.Host)), nil
		}
		return service.Forward(r.Dest), nil
	}
}

func noRouteResponse(host string) *model.ProxyResponse {
	body, _ := json.Marshal(map[string]string{
		"error": "no_route",
		"host":  host,
	})
	header := make(http.Header)
	header.Set("Content-Type", "application/json")
	return &model.ProxyResponse{
		StatusCode: http.StatusNotFound,
		Header:     header,
		Body:       io.NopCloser(bytes.NewReader(body)),
	}
}
