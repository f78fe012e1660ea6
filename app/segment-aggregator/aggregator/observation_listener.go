package aggregator

import (
	"encoding/json"
	logger "log"
	"math"
	"os"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/metromind/metromind/business/data/segments"
	"github.com/metromind/metromind/foundation/metrics"
)

// startObservationListener listens on NATS for segments.ObservationBatch
// messages published by the segment monitor and files every observation into
// the stats collection. No queue group is used so every aggregator instance
// receives the full observation stream.
func startObservationListener(
	log *logger.Logger,
	wg *sync.WaitGroup,
	collection *statsCollection,
	mc *metrics.AggregatorCollector,
	natsConn *nats.Conn,
	subject string,
	shutdownSignal chan bool) {

	wg.Add(1)
	defer wg.Done()

	ch := make(chan *nats.Msg, 64)
	log.Printf("Subscribing to %s in ObservationListener on nats server: %v\n",
		subject, natsConn.Servers())
	sub, err := natsConn.ChanSubscribe(subject, ch)
	if err != nil {
		log.Printf("Unable to establish subscription to nats server: %v\n", err)
		os.Exit(1)
	}

	//clean up nats
	defer func() {
		log.Printf("Unsubscribing to %s in ObservationListener\n", subject)
		err = sub.Unsubscribe()
		if err != nil {
			log.Printf("Error when attempting to unsubscribe: %v\n", err)
		}
	}()
	for {
		select {
		case msg := <-ch:
			fileObservationMessage(log, collection, mc, msg)
		case <-shutdownSignal:
			log.Printf("exiting Observation listener on shutdown signal\n")
			return
		}
	}
}

// fileObservationMessage unmarshals a segments.ObservationBatch from a NATS
// msg and applies every valid observation to the stats collection
func fileObservationMessage(log *logger.Logger,
	collection *statsCollection,
	mc *metrics.AggregatorCollector,
	msg *nats.Msg) {

	var batch segments.ObservationBatch
	err := json.Unmarshal(msg.Data, &batch)
	if err != nil {
		log.Printf("Error parsing ObservationBatch: %v, payload:%s", err, string(msg.Data))
		mc.ObservationsInvalid.Inc()
		return
	}
	for _, observation := range batch.Observations {
		applyObservation(log, collection, mc, observation)
	}
}

// applyObservation files one observation after a final sanity check. The
// monitor applies the configured duration bounds before publishing, the check
// here only guards against malformed payloads from other producers.
func applyObservation(log *logger.Logger,
	collection *statsCollection,
	mc *metrics.AggregatorCollector,
	observation *segments.SegmentObservation) {

	if err := observation.Validate(1, math.MaxInt32); err != nil {
		log.Printf("discarding invalid observation: %v", err)
		mc.ObservationsInvalid.Inc()
		return
	}

	before := collection.apply(observation)
	if before.isOutlier(observation.TravelSeconds) {
		log.Printf("outlier travel time %ds for %s (bucket median %.1fs over %d samples)",
			observation.TravelSeconds, segments.ExactBucketKey(observation).Name(),
			before.MedianSeconds, before.WindowCount)
	}
	mc.ObservationsApplied.Inc()
}
