package web

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/kozaktomas/rollcall/internal/config"
	"github.com/kozaktomas/rollcall/internal/dispatch"
	"github.com/kozaktomas/rollcall/internal/gallery"
)

func testServer(t *testing.T, token string) *Server {
	t.Helper()
	g, err := gallery.Load(filepath.Join(t.TempDir(), "encodings.csv"), nil)
	if err != nil {
		t.Fatal(err)
	}
	cfg := config.WebConfig{Host: "127.0.0.1", Port: 0, APIToken: token}
	return NewServer(cfg, Deps{Gallery: g, Recent: dispatch.NewRecent(5)})
}

func TestRoutes(t *testing.T) {
	srv := testServer(t, "")

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/api/v1/health", http.StatusOK},
		{http.MethodGet, "/api/v1/stats", http.StatusOK},
		{http.MethodGet, "/api/v1/gallery", http.StatusOK},
		{http.MethodPost, "/api/v1/gallery/reload", http.StatusOK},
		{http.MethodGet, "/api/v1/events", http.StatusOK},
		{http.MethodGet, "/api/v1/attendance", http.StatusServiceUnavailable},
		{http.MethodGet, "/api/v1/gallery/reload", http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/v1/nope", http.StatusNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			srv.Router().ServeHTTP(rec, httptest.NewRequest(tc.method, tc.path, nil))
			if rec.Code != tc.want {
				t.Errorf("status = %d, want %d; body: %s", rec.Code, tc.want, rec.Body.String())
			}
		})
	}
}

func TestReloadRequiresToken(t *testing.T) {
	srv := testServer(t, "s3cret")

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/gallery/reload", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("without token: status = %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/gallery/reload", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("with token: status = %d", rec.Code)
	}

	// reads stay open
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/gallery", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("gallery read: status = %d", rec.Code)
	}
}
