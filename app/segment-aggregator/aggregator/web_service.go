package aggregator

import (
	"context"
	"encoding/json"
	logger "log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/metromind/metromind/foundation/metrics"
)

// estimateResponse is the JSON answer to an estimate query. EstimateSeconds
// and EstimateMinutes are omitted entirely when granularity is "none", so an
// absent estimate can never be mistaken for a zero travel time.
type estimateResponse struct {
	RouteId         string   `json:"route_id"`
	FromStopId      string   `json:"from_stop_id"`
	ToStopId        string   `json:"to_stop_id"`
	At              string   `json:"at"`
	EstimateSeconds *float64 `json:"estimate_seconds,omitempty"`
	EstimateMinutes *float64 `json:"estimate_minutes,omitempty"`
	Granularity     string   `json:"granularity"`
	SampleCount     int64    `json:"sample_count"`
	WindowCount     int      `json:"window_count,omitempty"`
	MADSeconds      *float64 `json:"mad_seconds,omitempty"`
	P10Seconds      *int     `json:"p10_seconds,omitempty"`
	P90Seconds      *int     `json:"p90_seconds,omitempty"`
}

// estimateHandler answers travel time queries over http
type estimateHandler struct {
	log       *logger.Logger
	predictor *Predictor
	mc        *metrics.AggregatorCollector
}

func (h *estimateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	routeId := query.Get("route")
	fromStopId := query.Get("from")
	toStopId := query.Get("to")
	if routeId == "" || fromStopId == "" || toStopId == "" {
		http.Error(w, "route, from and to query parameters are required", http.StatusBadRequest)
		return
	}

	at := time.Now()
	if atParam := query.Get("at"); atParam != "" {
		parsed, err := time.Parse(time.RFC3339, atParam)
		if err != nil {
			http.Error(w, "at must be an RFC3339 timestamp", http.StatusBadRequest)
			return
		}
		at = parsed
	}

	result := h.predictor.Estimate(routeId, fromStopId, toStopId, at)
	h.mc.EstimateRequests.WithLabelValues(string(result.Granularity)).Inc()

	response := estimateResponse{
		RouteId:     result.RouteId,
		FromStopId:  result.FromStopId,
		ToStopId:    result.ToStopId,
		At:          at.UTC().Format(time.RFC3339),
		Granularity: string(result.Granularity),
		SampleCount: result.SampleCount,
		WindowCount: result.WindowCount,
	}
	if result.EstimateSeconds != nil {
		seconds := *result.EstimateSeconds
		minutes := seconds / 60
		mad := result.MADSeconds
		p10 := result.P10Seconds
		p90 := result.P90Seconds
		response.EstimateSeconds = &seconds
		response.EstimateMinutes = &minutes
		response.MADSeconds = &mad
		response.P10Seconds = &p10
		response.P90Seconds = &p90
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(response)
}

type aggregatorHealthResponse struct {
	Status  string `json:"status"`
	Buckets int    `json:"buckets"`
}

// aggregatorHealth reports liveness and how many buckets hold statistics
type aggregatorHealth struct {
	collection *statsCollection
}

func (h *aggregatorHealth) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(aggregatorHealthResponse{
		Status:  "ok",
		Buckets: h.collection.bucketCount(),
	})
}

// createServer creates configured http.Server serving estimates, health and metrics
func createServer(log *logger.Logger,
	predictor *Predictor,
	collection *statsCollection,
	mc *metrics.AggregatorCollector,
	httpPort int) *http.Server {

	r := mux.NewRouter()
	r.Handle("/estimate", &estimateHandler{log: log, predictor: predictor, mc: mc})
	r.Handle("/health", &aggregatorHealth{collection: collection})
	r.Handle("/metrics", mc.Handler())
	srv := &http.Server{
		Addr: strings.Join([]string{"0.0.0.0", strconv.Itoa(httpPort)}, ":"),
		// Good practice to set timeouts to avoid Slowloris attacks.
		WriteTimeout: time.Second * 15,
		ReadTimeout:  time.Second * 15,
		IdleTimeout:  time.Second * 60,
		Handler:      r,
	}
	return srv
}

// runWebService starts up the estimate web service, and terminates on shutdown
// signal
func runWebService(log *logger.Logger,
	wg *sync.WaitGroup,
	predictor *Predictor,
	collection *statsCollection,
	mc *metrics.AggregatorCollector,
	httpPort int,
	shutdownSignal chan bool) {

	wg.Add(1)
	defer wg.Done()

	srv := createServer(log, predictor, collection, mc, httpPort)
	log.Printf("Starting server on port %d", httpPort)
	go func() {
		if err := srv.ListenAndServe(); err != nil {
			log.Printf("server ListenAndServe ended. %s", err)
		}
	}()

	<-shutdownSignal
	log.Printf("ending webservice on shutdown signal")
	shutdownCtx, serverCancelFunc := context.WithTimeout(context.Background(), time.Duration(5)*time.Second)
	defer serverCancelFunc()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("error shutting down webservice, error:%s", err)
	}
}
