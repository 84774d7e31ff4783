package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestSetOneHot(t *testing.T) {
	states := []string{"ZEN", "FOCUS", "WORRY", "STOIC"}
	SetOneHot(TriggerState, states, "WORRY")

	assert.Equal(t, 1.0, testutil.ToFloat64(TriggerState.WithLabelValues("WORRY")))
	assert.Equal(t, 0.0, testutil.ToFloat64(TriggerState.WithLabelValues("ZEN")))

	SetOneHot(TriggerState, states, "ZEN")
	assert.Equal(t, 0.0, testutil.ToFloat64(TriggerState.WithLabelValues("WORRY")))
	assert.Equal(t, 1.0, testutil.ToFloat64(TriggerState.WithLabelValues("ZEN")))
}

func TestObserveBrain(t *testing.T) {
	ObserveBrain(150*time.Millisecond, true)
	ObserveBrain(time.Second, false)
	assert.Equal(t, 2, testutil.CollectAndCount(BrainLatency))
}

func TestHandler(t *testing.T) {
	AnalysisCycles.Inc()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "neuroduck_analysis_cycles_total")
}
