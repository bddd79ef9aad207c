package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/felixge/httpsnoop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) (int, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	return rec.Code, rec.Body.String()
}

func TestCounters(t *testing.T) {
	m := New()
	m.Attempt("eu", "write", OutcomeTransient)
	m.Attempt("us", "write", OutcomeSuccess)
	m.File("upload", OutcomeSuccess)
	m.Uploaded("us", 42)
	m.Uploaded("us", 0)
	m.HTTPRequest(http.MethodGet, httpsnoop.Metrics{Code: 200})

	code, body := scrape(t, m)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `filegate_backend_attempts_total{location="eu",op="write",outcome="transient"} 1`)
	assert.Contains(t, body, `filegate_backend_attempts_total{location="us",op="write",outcome="success"} 1`)
	assert.Contains(t, body, `filegate_files_total{op="upload",outcome="success"} 1`)
	assert.Contains(t, body, `filegate_uploaded_bytes_total{location="us"} 42`)
	assert.Contains(t, body, `filegate_http_requests_total{code="200",method="GET"} 1`)
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.Attempt("eu", "write", OutcomeSuccess)
	m.File("upload", OutcomeFailed)
	m.Uploaded("eu", 1)
	m.HTTPRequest(http.MethodGet, httpsnoop.Metrics{Code: 200})

	code, _ := scrape(t, m)
	assert.Equal(t, http.StatusNotFound, code)
}
