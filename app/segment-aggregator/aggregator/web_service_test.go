package aggregator

import (
	"encoding/json"
	"io"
	logger "log"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/matryer/is"

	"github.com/metromind/metromind/foundation/metrics"
)

func testEstimateServer(predictor *Predictor) http.Handler {
	log := logger.New(io.Discard, "", 0)
	return createServer(log, predictor, predictor.stats, metrics.NewAggregatorCollector(), 0).Handler
}

func TestEstimateHandler_answersFromExactBucket(t *testing.T) {
	is := is.New(t)
	handler := testEstimateServer(populatedPredictor())

	request := httptest.NewRequest(http.MethodGet,
		"/estimate?route=M5&from=A&to=B&at=2025-06-10T17:30:00Z", nil)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)

	is.Equal(recorder.Code, http.StatusOK)

	var response estimateResponse
	is.NoErr(json.Unmarshal(recorder.Body.Bytes(), &response))
	is.Equal(response.Granularity, string(GranularityExactDayHour))
	is.True(response.EstimateSeconds != nil)
	is.Equal(*response.EstimateSeconds, 3.0)
	is.True(response.EstimateMinutes != nil)
	is.Equal(response.SampleCount, int64(10))
}

func TestEstimateHandler_insufficientDataOmitsEstimate(t *testing.T) {
	is := is.New(t)
	handler := testEstimateServer(populatedPredictor())

	request := httptest.NewRequest(http.MethodGet,
		"/estimate?route=M5&from=X&to=Y&at=2025-06-10T17:30:00Z", nil)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)

	// insufficient data is a successful answer, not an error, and the estimate
	// fields are absent entirely so no caller can read them as zero seconds
	is.Equal(recorder.Code, http.StatusOK)

	var raw map[string]interface{}
	is.NoErr(json.Unmarshal(recorder.Body.Bytes(), &raw))
	is.Equal(raw["granularity"], string(GranularityNone))
	_, present := raw["estimate_seconds"]
	is.True(!present)
	_, present = raw["estimate_minutes"]
	is.True(!present)
}

func TestEstimateHandler_missingParameters(t *testing.T) {
	is := is.New(t)
	handler := testEstimateServer(populatedPredictor())

	request := httptest.NewRequest(http.MethodGet, "/estimate?route=M5&from=A", nil)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	is.Equal(recorder.Code, http.StatusBadRequest)
}

func TestEstimateHandler_badTimestamp(t *testing.T) {
	is := is.New(t)
	handler := testEstimateServer(populatedPredictor())

	request := httptest.NewRequest(http.MethodGet,
		"/estimate?route=M5&from=A&to=B&at=yesterday", nil)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	is.Equal(recorder.Code, http.StatusBadRequest)
}

func TestAggregatorHealth(t *testing.T) {
	is := is.New(t)
	predictor := populatedPredictor()
	handler := testEstimateServer(predictor)

	request := httptest.NewRequest(http.MethodGet, "/health", nil)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)

	is.Equal(recorder.Code, http.StatusOK)

	var response aggregatorHealthResponse
	is.NoErr(json.Unmarshal(recorder.Body.Bytes(), &response))
	is.Equal(response.Status, "ok")
	is.Equal(response.Buckets, 3)
}
