package monitor

import (
	"context"
	"encoding/json"
	logger "log"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"

	"github.com/metromind/metromind/foundation/metrics"
)

// healthStatus tracks the liveness signals the monitor exposes: is the feed
// producing updates and how many vehicles are being tracked
type healthStatus struct {
	lastPollEpoch int64
	pollSeconds   int64
	collection    *trackerCollection
}

func makeHealthStatus(collection *trackerCollection, pollSeconds int) *healthStatus {
	return &healthStatus{
		pollSeconds: int64(pollSeconds),
		collection:  collection,
	}
}

func (h *healthStatus) recordPoll(epoch int64) {
	atomic.StoreInt64(&h.lastPollEpoch, epoch)
}

type healthResponse struct {
	Status          string `json:"status"`
	LastPollEpoch   int64  `json:"last_poll_epoch"`
	VehiclesTracked int    `json:"vehicles_tracked"`
}

// ServeHTTP implements healthStatus http.Handler interface.
// Status degrades to "stale" when the feed has not been polled successfully
// for three poll intervals.
func (h *healthStatus) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	lastPoll := atomic.LoadInt64(&h.lastPollEpoch)
	status := "ok"
	if lastPoll == 0 || time.Now().Unix()-lastPoll > h.pollSeconds*3 {
		status = "stale"
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(healthResponse{
		Status:          status,
		LastPollEpoch:   lastPoll,
		VehiclesTracked: h.collection.vehicleCount(),
	})
}

// createServer creates configured http.Server serving health and metrics
func createServer(health *healthStatus, mc *metrics.MonitorCollector, httpPort int) *http.Server {
	r := mux.NewRouter()
	r.Handle("/health", health)
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

// runWebService starts up the health and metrics web service, and terminates
// on shutdown signal
func runWebService(log *logger.Logger,
	mc *metrics.MonitorCollector,
	health *healthStatus,
	httpPort int,
	shutdownSignal chan bool) {

	srv := createServer(health, mc, httpPort)
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
