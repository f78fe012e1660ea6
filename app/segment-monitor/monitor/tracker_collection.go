package monitor

import (
	"log"
	"sync"
	"sync/atomic"

	"github.com/metromind/metromind/business/data/routes"
	"github.com/metromind/metromind/business/data/segments"
	"github.com/metromind/metromind/foundation/metrics"
)

// segmentPublisher takes observations produced by vehicle trackers and sends
// them to their destinations (database and nats)
type segmentPublisher interface {
	publish(observations []*segments.SegmentObservation)
}

// trackerWorker pairs a vehicleTracker with the ordered queue feeding it.
// One goroutine drains the queue, so updates for a vehicle are processed
// strictly in the order they were dispatched and no other vehicle waits on it.
type trackerWorker struct {
	tracker *vehicleTracker
	updates chan *VehicleUpdate
	// lastActivity is the wall clock unix time an update was last dispatched to
	// this worker, read by the eviction sweep
	lastActivity int64
}

// trackerCollection owns all live vehicle trackers, creating workers on first
// sighting and evicting them after inactivity
type trackerCollection struct {
	mu      sync.Mutex
	workers map[string]*trackerWorker

	log           *log.Logger
	stopSequences *routes.StopSequences
	publisher     segmentPublisher
	mc            *metrics.MonitorCollector

	minSegmentSeconds    int
	maxSegmentSeconds    int
	queueDepth           int
	expireVehicleSeconds int64

	wg sync.WaitGroup
}

func makeTrackerCollection(log *log.Logger,
	stopSequences *routes.StopSequences,
	publisher segmentPublisher,
	mc *metrics.MonitorCollector,
	minSegmentSeconds int,
	maxSegmentSeconds int,
	queueDepth int,
	expireVehicleSeconds int) *trackerCollection {

	return &trackerCollection{
		workers:              make(map[string]*trackerWorker),
		log:                  log,
		stopSequences:        stopSequences,
		publisher:            publisher,
		mc:                   mc,
		minSegmentSeconds:    minSegmentSeconds,
		maxSegmentSeconds:    maxSegmentSeconds,
		queueDepth:           queueDepth,
		expireVehicleSeconds: int64(expireVehicleSeconds),
	}
}

// dispatch queues update for its vehicle's worker, creating the worker on first
// sighting. The queue is never blocked on: when a vehicle's queue is full the
// update is dropped with a log line, favoring forward progress of the rest of
// the fleet over completeness for one vehicle.
func (tc *trackerCollection) dispatch(update *VehicleUpdate, now int64) {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	worker, present := tc.workers[update.VehicleId]
	if !present {
		worker = &trackerWorker{
			tracker: makeVehicleTracker(update.VehicleId, tc.minSegmentSeconds, tc.maxSegmentSeconds),
			updates: make(chan *VehicleUpdate, tc.queueDepth),
		}
		tc.workers[update.VehicleId] = worker
		tc.mc.ActiveVehicles.Set(float64(len(tc.workers)))
		tc.wg.Add(1)
		go tc.runWorker(worker)
	}
	atomic.StoreInt64(&worker.lastActivity, now)

	select {
	case worker.updates <- update:
	default:
		tc.log.Printf("dropping update for vehicle %s, queue full", update.VehicleId)
		tc.mc.UpdatesSkipped.Inc()
	}
}

// runWorker drains one vehicle's queue until the collection closes it
func (tc *trackerCollection) runWorker(worker *trackerWorker) {
	defer tc.wg.Done()
	for update := range worker.updates {
		observation, outcome := worker.tracker.processUpdate(tc.log, update, tc.stopSequences)
		tc.mc.UpdatesProcessed.Inc()
		switch outcome {
		case outcomeGap:
			tc.mc.ObservationsRejected.WithLabelValues("gap").Inc()
		case outcomeBackward:
			tc.mc.ObservationsRejected.WithLabelValues("regression").Inc()
		case outcomeRejected:
			tc.mc.ObservationsRejected.WithLabelValues("duration").Inc()
		case outcomeAdvanced:
			tc.mc.ObservationsEmitted.Inc()
			tc.publisher.publish([]*segments.SegmentObservation{observation})
		}
	}
}

// vehicleCount returns the number of vehicles currently tracked
func (tc *trackerCollection) vehicleCount() int {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return len(tc.workers)
}

// sweepInactive evicts vehicles not dispatched to within the expiry window.
// A vehicle reappearing later starts a fresh state machine with no inferred
// continuity from before its silence.
func (tc *trackerCollection) sweepInactive(now int64) int {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	evicted := 0
	for vehicleId, worker := range tc.workers {
		if now-atomic.LoadInt64(&worker.lastActivity) > tc.expireVehicleSeconds {
			close(worker.updates)
			delete(tc.workers, vehicleId)
			evicted++
		}
	}
	if evicted > 0 {
		tc.log.Printf("evicted %d inactive vehicles, %d still tracked", evicted, len(tc.workers))
		tc.mc.ActiveVehicles.Set(float64(len(tc.workers)))
	}
	return evicted
}

// shutdown closes every worker queue and waits for the workers to finish
// draining
func (tc *trackerCollection) shutdown() {
	tc.mu.Lock()
	for vehicleId, worker := range tc.workers {
		close(worker.updates)
		delete(tc.workers, vehicleId)
	}
	tc.mu.Unlock()
	tc.wg.Wait()
}
