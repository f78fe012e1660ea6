// Package monitor watches a live vehicle feed and records stop to stop travel times
package monitor

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/nats-io/nats.go"

	"github.com/metromind/metromind/business/data/routes"
	"github.com/metromind/metromind/foundation/httpclient"
	"github.com/metromind/metromind/foundation/metrics"
)

// FeedConfig selects and parameterizes the live vehicle feed
type FeedConfig struct {
	// Type is the feed flavor, "siri" or "gtfsrt"
	Type string
	Url  string
	// ApiKey, LineRef, DirectionRef and DetailLevel apply to siri feeds only
	ApiKey         string
	LineRef        string
	DirectionRef   string
	DetailLevel    string
	PollSeconds    int
	TimeoutSeconds int
}

// Config contains all configurable parameters of the segment monitor
type Config struct {
	Feed                 FeedConfig
	MinSegmentSeconds    int
	MaxSegmentSeconds    int
	ExpireVehicleSeconds int
	QueueDepth           int
	StoreBufferSize      int
	StoreRetryAttempts   int
	StoreRetryBackoffMs  int
	NatsSubject          string
	WebPort              int
}

// RunSegmentMonitorLoop starts the loop that polls the vehicle feed, runs each
// update through its vehicle's tracker and publishes the resulting segment
// observations. Returns after receiving on shutdownSignal.
func RunSegmentMonitorLoop(log *log.Logger,
	db *sqlx.DB,
	natsConn *nats.Conn,
	stopSequences *routes.StopSequences,
	cfg Config,
	shutdownSignal chan os.Signal) error {

	client := httpclient.New(cfg.Feed.TimeoutSeconds)
	now := func() int64 { return time.Now().Unix() }

	var fetch func() ([]VehicleUpdate, error)
	switch cfg.Feed.Type {
	case "siri":
		fetch = func() ([]VehicleUpdate, error) {
			return getSiriVehicleUpdates(log, client, cfg.Feed)
		}
	case "gtfsrt":
		fetch = func() ([]VehicleUpdate, error) {
			return getGtfsRtVehicleUpdates(log, client, cfg.Feed.Url, now())
		}
	default:
		return fmt.Errorf("unknown feed type %q", cfg.Feed.Type)
	}

	mc := metrics.NewMonitorCollector()
	publisher := makeObservationPublisher(log, db, natsConn, cfg.NatsSubject, mc,
		cfg.StoreBufferSize, cfg.StoreRetryAttempts, cfg.StoreRetryBackoffMs)
	collection := makeTrackerCollection(log, stopSequences, publisher, mc,
		cfg.MinSegmentSeconds, cfg.MaxSegmentSeconds, cfg.QueueDepth, cfg.ExpireVehicleSeconds)
	health := makeHealthStatus(collection, cfg.Feed.PollSeconds)

	webShutdown := make(chan bool, 1)
	sweepShutdown := make(chan bool, 1)
	go runWebService(log, mc, health, cfg.WebPort, webShutdown)
	go runEvictionLoop(collection, cfg.ExpireVehicleSeconds, sweepShutdown)

	loopDuration := time.Duration(cfg.Feed.PollSeconds) * time.Second

	sleepChan := make(chan bool)
	sleep := time.Duration(0) //poll immediately the first time

	for {

		go func() {
			time.Sleep(sleep)
			sleepChan <- true
		}()

		select {
		case <-shutdownSignal:
			log.Printf("Exiting on shutdown signal")
			sweepShutdown <- true
			webShutdown <- true
			collection.shutdown()
			publisher.close()
			return nil
		case <-sleepChan:
			break
		}

		//set default sleep for next loop in the event of an error after continue statements
		sleep = loopDuration

		// mark the time we start working
		start := time.Now()

		updates, err := fetch()
		if err != nil {
			log.Printf("error attempting to get vehicle updates. error:%v\n", err)
			continue
		}

		log.Printf("loaded %d vehicle updates\n", len(updates))
		health.recordPoll(start.Unix())
		mc.LastPollEpoch.Set(float64(start.Unix()))

		dispatchUpdates(log, collection, mc, updates, start.Unix())

		// attempt to run the loop every PollSeconds by subtracting the time it took to perform the work
		workTook := time.Since(start)
		mc.PollDuration.Observe(workTook.Seconds())

		log.Printf("work took %s\n", fmtDuration(workTook))

		// if the work took longer than the poll interval don't sleep at all on the next loop
		if workTook >= loopDuration {
			sleep = time.Duration(0)
		} else {
			sleep = loopDuration - workTook
		}

	}
}

// dispatchUpdates validates each update and hands it to its vehicle's worker
func dispatchUpdates(log *log.Logger,
	collection *trackerCollection,
	mc *metrics.MonitorCollector,
	updates []VehicleUpdate,
	now int64) {

	for i := range updates {
		update := updates[i]
		if err := update.validate(); err != nil {
			log.Printf("skipping malformed update: %v", err)
			mc.UpdatesSkipped.Inc()
			continue
		}
		collection.dispatch(&update, now)
	}
}

// runEvictionLoop periodically sweeps inactive vehicles out of the collection.
// The sweep runs off the update processing path so live tracking only contends
// with it at the eviction moment itself.
func runEvictionLoop(collection *trackerCollection,
	expireVehicleSeconds int,
	shutdownSignal chan bool) {

	interval := time.Duration(expireVehicleSeconds) * time.Second / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-shutdownSignal:
			return
		case tick := <-ticker.C:
			collection.sweepInactive(tick.Unix())
		}
	}
}

// fmtDuration returns a string presentation of time.Duration for logging
func fmtDuration(d time.Duration) string {
	d = d.Round(time.Millisecond)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	mill := d / time.Millisecond
	return fmt.Sprintf("%02d:%02d.%d", h, m, mill)
}
