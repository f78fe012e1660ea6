// Package aggregator maintains travel time statistics per route segment bucket
// and answers estimate queries from them
package aggregator

import (
	logger "log"
	"os"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/nats-io/nats.go"

	"github.com/metromind/metromind/foundation/metrics"
)

// Conf contains all configurable parameters in aggregator
type Conf struct {
	WindowSize            int
	MinimumSampleCount    int
	CoverageReportSeconds int
	LowCoverageThreshold  int
	NatsSubject           string
	WebPort               int
}

// StartSegmentAggregator rebuilds bucket statistics from the observation
// store, then starts all routines that keep them current and serve estimates.
// Shuts down all routines after receiving on shutdownSignal.
func StartSegmentAggregator(log *logger.Logger,
	db *sqlx.DB,
	shutdownSignal chan os.Signal,
	natsConn *nats.Conn,
	conf Conf) error {

	//create shared objects

	log.Println("Creating shared aggregator structures")
	calendar := makeTransitHolidayCalendar()
	collection := makeStatsCollection(conf.WindowSize, calendar)
	mc := metrics.NewAggregatorCollector()
	predictor := makePredictor(collection, conf.MinimumSampleCount)
	log.Println("Done creating shared aggregator structures")

	// replay stored history before going live so estimates never regress to
	// empty after a restart
	applied, interrupted, err := rebuildFromStore(log, db, collection, shutdownSignal)
	if err != nil {
		return err
	}
	if interrupted {
		return nil
	}
	mc.Buckets.Set(float64(collection.bucketCount()))
	mc.ObservationsApplied.Add(float64(applied))

	// start up background routines
	wg := sync.WaitGroup{}
	coverageLoopShutdown := make(chan bool, 1)
	observationListenerShutdown := make(chan bool, 1)
	webShutdown := make(chan bool, 1)

	log.Println("Starting coverage report loop")
	go runCoverageReportLoop(log, &wg, collection, mc, conf, coverageLoopShutdown)
	log.Println("Starting ObservationListener")
	go startObservationListener(log, &wg, collection, mc, natsConn, conf.NatsSubject, observationListenerShutdown)
	log.Println("Starting estimate web service")
	go runWebService(log, &wg, predictor, collection, mc, conf.WebPort, webShutdown)

	select {
	case <-shutdownSignal:
		log.Printf("Exiting on shutdown signal, shutting down subroutines")
		coverageLoopShutdown <- true
		observationListenerShutdown <- true
		webShutdown <- true
		wg.Wait()
		log.Printf("Subroutines shut down, exiting aggregator")
	}
	return nil
}

// runCoverageReportLoop periodically logs how well populated the bucket
// statistics are, flagging how many buckets sit below the low coverage
// threshold, and keeps the bucket gauge current
func runCoverageReportLoop(log *logger.Logger,
	wg *sync.WaitGroup,
	collection *statsCollection,
	mc *metrics.AggregatorCollector,
	conf Conf,
	shutdownSignal chan bool) {

	wg.Add(1)
	defer wg.Done()

	sleepChan := make(chan bool)

	loopDuration := time.Duration(conf.CoverageReportSeconds) * time.Second
	sleep := loopDuration

	for {

		go func() {
			time.Sleep(sleep)
			sleepChan <- true
		}()

		select {
		case <-shutdownSignal:
			log.Printf("Exiting coverage report loop on shutdown signal")
			return
		case <-sleepChan:
		}

		// mark the time we start working
		start := time.Now()

		buckets, totalSamples, lowBuckets := collection.coverage(int64(conf.LowCoverageThreshold))
		mc.Buckets.Set(float64(buckets))

		log.Printf("Coverage: %d buckets holding %d observations, %d below %d samples\n",
			buckets, totalSamples, lowBuckets, conf.LowCoverageThreshold)

		workTook := time.Now().Sub(start)

		// if the work took longer than loopDuration don't sleep at all on the next loop
		if workTook >= loopDuration {
			sleep = time.Duration(0)
		} else {
			sleep = loopDuration - workTook
		}
	}
}
