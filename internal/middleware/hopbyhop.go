package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"
)

// hopByHopHeaders describe the inbound client connection, not the message,
// and must not travel upstream.
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

// HopByHop returns an Echo middleware that strips hop-by-hop headers from
// inbound requests, including any extra headers named by Connection. The
// response side is left untouched so upstream headers pass through verbatim.
func HopByHop() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Request().Header

			for _, v := range h.Values("Connection") {
				for _, name := range strings.Split(v, ",") {
					if name = strings.TrimSpace(name); name != "" {
						h.Del(name)
					}
				}
			}
			for _, name := range hopByHopHeaders {
				h.Del(name)
			}

			return next(c)
		}
	}
}
