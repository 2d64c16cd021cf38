package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRecordTokenIssued(t *testing.T) {
	m := New()
	m.RecordTokenIssued("client_credentials")
	m.RecordTokenIssued("client_credentials")

	require.Equal(t, 2.0, testutil.ToFloat64(m.TokensIssuedTotal.WithLabelValues("client_credentials")))
}

func TestRecordAuditDropped(t *testing.T) {
	m := New()
	m.RecordAuditDropped()
	require.Equal(t, 1.0, testutil.ToFloat64(m.AuditDroppedTotal))
}

func TestHandler(t *testing.T) {
	m := New()
	m.RecordHTTPRequest(http.MethodPost, "/oauth/token", http.StatusOK, 10*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `http_requests_total{method="POST",route="/oauth/token",status="200"} 1`)
}

func TestNoop(t *testing.T) {
	var r Recorder = NoopMetrics{}
	r.RecordLogin("google-oauth2", true)
}
