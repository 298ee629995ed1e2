package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ttm0z/stock-analyzer-sub001/internal/common"
)

func TestRecorder_ObserveVerification(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(reg)

	r.ObserveVerification("token", "", time.Millisecond)
	r.ObserveVerification("token", common.ReasonExpired, time.Millisecond)
	r.ObserveVerification("token", common.ReasonExpired, time.Millisecond)
	r.ObserveVerification("api_key", common.ReasonRevoked, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.verifications.WithLabelValues("token", ResultOK)))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.verifications.WithLabelValues("token", "EXPIRED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.verifications.WithLabelValues("api_key", "REVOKED")))
	assert.Equal(t, 2, testutil.CollectAndCount(r.latency))
}

func TestRecorder_SessionEvent(t *testing.T) {
	r := NewRecorder(prometheus.NewRegistry())

	r.SessionEvent(SessionStarted, 1)
	r.SessionEvent(SessionSwept, 7)
	r.SessionEvent(SessionSwept, 0)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.sessions.WithLabelValues(SessionStarted)))
	assert.Equal(t, 7.0, testutil.ToFloat64(r.sessions.WithLabelValues(SessionSwept)))
}

func TestRecorder_NilIsNoop(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.ObserveVerification("token", "", time.Second)
		r.SessionEvent(SessionStarted, 1)
	})
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewRecorder(reg).ObserveVerification("token", "", time.Millisecond)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `auth_verifications_total{method="token",result="OK"} 1`))
}
