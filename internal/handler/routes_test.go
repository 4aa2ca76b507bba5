package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestRegisterRoutes_Wiring(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer upstream.Close()

	table := tableFor(t, "app.test", upstream.URL)
	proxy := newRoutedHandler(t, table)
	health := NewHealthHandler(table, "test")

	e := echo.New()
	RegisterRoutes(e, proxy, health)

	tests := []struct {
		name       string
		method     string
		target     string
		wantStatus int
	}{
		{"GET /healthz", http.MethodGet, "http://relaymux.test/healthz", http.StatusOK},
		{"GET /status", http.MethodGet, "http://relaymux.test/status", http.StatusOK},
		{"routed host is proxied", http.MethodGet, "http://app.test/api/search?q=test", http.StatusOK},
		{"routed host POST", http.MethodPost, "http://app.test/submit", http.StatusOK},
		{"routed host root path", http.MethodGet, "http://app.test/", http.StatusOK},
		{"unrouted host gets 404", http.MethodGet, "http://ghost.test/api/search", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.target, http.NoBody)
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestRegisterRoutes_AdminWinsOverCatchAll(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer upstream.Close()

	// Even with a wildcard route that would proxy any host, the admin
	// endpoints answer locally.
	table := tableFor(t, "*", upstream.URL)
	proxy := newRoutedHandler(t, table)
	health := NewHealthHandler(table, "test")

	e := echo.New()
	RegisterRoutes(e, proxy, health)

	req := httptest.NewRequest(http.MethodGet, "http://anything.test/healthz", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d (health endpoint, not proxied)", rec.Code, http.StatusOK)
	}
}
