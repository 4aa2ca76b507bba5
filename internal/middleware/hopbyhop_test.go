package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestHopByHop_StripsStandardSet(t *testing.T) {
	e := echo.New()
	e.Use(HopByHop())

	var got http.Header
	e.GET("/test", func(c echo.Context) error {
		got = c.Request().Header.Clone()
		return c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set("Keep-Alive", "timeout=5")
	req.Header.Set("Proxy-Authorization", "Basic abc")
	req.Header.Set("Upgrade", "websocket")
	req.Header.Set("X-Trace-Id", "t-1")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	for _, name := range []string{"Connection", "Keep-Alive", "Proxy-Authorization", "Upgrade"} {
		if v := got.Get(name); v != "" {
			t.Errorf("%s = %q, want stripped", name, v)
		}
	}
	if v := got.Get("X-Trace-Id"); v != "t-1" {
		t.Errorf("X-Trace-Id = %q, want %q (end-to-end headers pass)", v, "t-1")
	}
}

func TestHopByHop_StripsConnectionNamedHeaders(t *testing.T) {
	e := echo.New()
	e.Use(HopByHop())

	var got http.Header
	e.GET("/test", func(c echo.Context) error {
		got = c.Request().Header.Clone()
		return c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
	req.Header.Set("Connection", "close, X-Session-Token")
	req.Header.Set("X-Session-Token", "secret")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if v := got.Get("X-Session-Token"); v != "" {
		t.Errorf("X-Session-Token = %q, want stripped (named by Connection)", v)
	}
}

func TestHopByHop_LeavesResponseAlone(t *testing.T) {
	e := echo.New()
	e.Use(HopByHop())
	e.GET("/test", func(c echo.Context) error {
		c.Response().Header().Set("X-Upstream-Frame-Policy", "allow")
		return c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if v := rec.Header().Get("X-Upstream-Frame-Policy"); v != "allow" {
		t.Errorf("X-Upstream-Frame-Policy = %q, want %q", v, "allow")
	}
	// No injected headers either.
	if v := rec.Header().Get("X-Frame-Options"); v != "" {
		t.Errorf("X-Frame-Options = %q, want none injected", v)
	}
}
