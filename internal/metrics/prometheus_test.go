package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordTick(t *testing.T) {
	before := testutil.ToFloat64(Ticks.WithLabelValues("error"))
	RecordTick(20*time.Millisecond, errors.New("boom"))
	assert.Equal(t, before+1, testutil.ToFloat64(Ticks.WithLabelValues("error")))
}

func TestRecordPortfolio(t *testing.T) {
	RecordPortfolio(3, 5120.5, 0.42)
	assert.Equal(t, 3.0, testutil.ToFloat64(PositionsOpen))
	assert.Equal(t, 5120.5, testutil.ToFloat64(Equity))
	assert.Equal(t, 0.42, testutil.ToFloat64(CollateralPct))
}

func TestHandlerServesRegisteredCollectors(t *testing.T) {
	Init()
	Init()
	AutoActions.WithLabelValues("target").Inc()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `theta_auto_actions_total{kind="target"}`)
}
