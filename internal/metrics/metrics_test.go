package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddleware_RecordsRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/ok", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/trades/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, path := range []string{"/ok", "/trades/a", "/trades/b", "/nope/1", "/nope/2"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	out := string(body)
	assert.Contains(t, out, `portfolio_http_requests_total{method="GET",path="/ok",status="200"} 1`)
	assert.Contains(t, out, `portfolio_http_requests_total{method="GET",path="/trades/{id}",status="404"} 2`)
	assert.Contains(t, out, `portfolio_http_requests_total{method="GET",path="unmatched",status="404"} 2`)
	assert.NotContains(t, out, `path="/nope/1"`)
	assert.NotContains(t, out, `path="/trades/a"`)
	assert.Contains(t, out, "portfolio_http_request_duration_seconds_bucket")
}
