package monitor

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/nats-io/nats.go"

	"github.com/metromind/metromind/business/data/segments"
	"github.com/metromind/metromind/foundation/metrics"
)

// observationPublisher implements segmentPublisher, sending observations over
// NATS for live aggregation and appending them durably to the segment store.
// Store appends go through a bounded queue drained by a single goroutine with
// retry and backoff, so a failing store slows persistence but never blocks
// live tracking. Queue overflow and exhausted retries drop the observation
// with a log line.
type observationPublisher struct {
	log      *log.Logger
	db       *sqlx.DB
	natsConn *nats.Conn
	subject  string
	mc       *metrics.MonitorCollector

	pending       chan *segments.SegmentObservation
	retryAttempts int
	retryBackoff  time.Duration

	wg sync.WaitGroup
}

// makeObservationPublisher creates an observationPublisher and starts its store
// drain goroutine. natsConn may be nil to record to the database only.
func makeObservationPublisher(log *log.Logger,
	db *sqlx.DB,
	natsConn *nats.Conn,
	subject string,
	mc *metrics.MonitorCollector,
	bufferSize int,
	retryAttempts int,
	retryBackoffMs int) *observationPublisher {

	p := &observationPublisher{
		log:           log,
		db:            db,
		natsConn:      natsConn,
		subject:       subject,
		mc:            mc,
		pending:       make(chan *segments.SegmentObservation, bufferSize),
		retryAttempts: retryAttempts,
		retryBackoff:  time.Duration(retryBackoffMs) * time.Millisecond,
	}
	p.wg.Add(1)
	go p.drainPending()
	return p
}

// publish sends observations over NATS and queues them for durable append
func (p *observationPublisher) publish(observations []*segments.SegmentObservation) {
	now := time.Now()
	for _, observation := range observations {
		observation.CreatedAt = now
		p.log.Printf("Vehicle %s on route %s moved from %s to %s in %d\n", observation.VehicleId,
			observation.RouteId, observation.FromStopId, observation.ToStopId, observation.TravelSeconds)
	}

	if p.natsConn != nil {
		p.sendOverNats(observations)
	}

	for _, observation := range observations {
		select {
		case p.pending <- observation:
		default:
			p.log.Printf("store queue full, dropping observation %s", observation)
			p.mc.ObservationsDropped.Inc()
		}
	}
}

// sendOverNats publishes observations as a segments.ObservationBatch json payload
func (p *observationPublisher) sendOverNats(observations []*segments.SegmentObservation) {
	jsonData, err := json.Marshal(segments.ObservationBatch{Observations: observations})
	if err != nil {
		p.log.Printf("failed to marshal ObservationBatch in "+
			"observationPublisher.sendOverNats, error:%v", err)
		return
	}
	err = p.natsConn.Publish(p.subject, jsonData)
	if err != nil {
		p.log.Printf("failed to send ObservationBatch in "+
			"observationPublisher.sendOverNats, error:%v", err)
	}
}

// drainPending appends queued observations until the queue is closed
func (p *observationPublisher) drainPending() {
	defer p.wg.Done()
	for observation := range p.pending {
		p.appendWithRetry(observation)
	}
}

// appendWithRetry attempts the durable append, retrying with exponential
// backoff until the retry budget is exhausted
func (p *observationPublisher) appendWithRetry(observation *segments.SegmentObservation) {
	backoff := p.retryBackoff
	for attempt := 0; attempt < p.retryAttempts; attempt++ {
		err := segments.RecordSegmentObservation(p.db, observation)
		if err == nil {
			return
		}
		p.log.Printf("error saving observation %s, attempt %d: %v", observation, attempt+1, err)
		if attempt+1 < p.retryAttempts {
			p.mc.StoreRetries.Inc()
			time.Sleep(backoff)
			backoff *= 2
		}
	}
	p.log.Printf("retry budget exhausted, dropping observation %s", observation)
	p.mc.ObservationsDropped.Inc()
}

// close stops accepting observations and waits for the pending queue to drain
func (p *observationPublisher) close() {
	close(p.pending)
	p.wg.Wait()
}
