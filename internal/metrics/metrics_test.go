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

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestCounters(t *testing.T) {
	m := New()
	m.TokenIssued("password")
	m.TokenIssued("password")
	m.RequestRejected("invalid_grant")

	body := scrape(t, m)
	assert.Contains(t, body, `oauth_tokens_issued_total{grant="password"} 2`)
	assert.Contains(t, body, `oauth_errors_total{error="invalid_grant"} 1`)
}

func TestMiddleware_UsesRoutePattern(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/clients/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/clients/42", nil))

	body := scrape(t, m)
	assert.Contains(t, body, `http_requests_total{method="GET",route="/clients/{id}",status="418"} 1`)
}
