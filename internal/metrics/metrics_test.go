package metrics_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farcloser/tocsin/internal/metrics"
)

func TestHandlerExposesServiceMetrics(t *testing.T) {
	t.Parallel()

	registry := metrics.NewRegistry()

	metrics.RecordRequest("/predict", "200")
	metrics.RecordDecode("wav-direct")
	metrics.RecordDegraded(errors.New("boom"))
	metrics.RecordShort()
	metrics.RecordPrediction("normal")
	metrics.SetModelLoaded(true)
	metrics.RecordReload(nil)

	recorder := httptest.NewRecorder()
	metrics.Handler(registry).ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, recorder.Code)

	body := recorder.Body.String()
	for _, name := range []string{
		"tocsin_http_requests_total",
		"tocsin_decodes_total",
		"tocsin_feature_extraction_degraded_total",
		"tocsin_short_clips_total",
		"tocsin_predictions_total",
		"tocsin_model_loaded 1",
		"tocsin_model_reloads_total",
		"go_goroutines",
	} {
		assert.Contains(t, body, name)
	}
}

func TestRegistriesAreIndependent(t *testing.T) {
	t.Parallel()

	assert.NotPanics(t, func() {
		metrics.NewRegistry()
		metrics.NewRegistry()
	})
}
