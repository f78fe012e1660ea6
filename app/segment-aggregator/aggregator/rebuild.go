package aggregator

import (
	logger "log"
	"os"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/metromind/metromind/business/data/segments"
)

// rebuildFromStore replays every stored observation into collection, oldest
// first, so the in-memory windows end up identical to what incremental
// processing of the same stream would have produced. Returns interrupted=true
// if a shutdown signal arrived mid-scan; the partially filled collection must
// not be served in that case.
func rebuildFromStore(log *logger.Logger,
	db *sqlx.DB,
	collection *statsCollection,
	shutdownSignal chan os.Signal) (applied int, interrupted bool, err error) {

	start := time.Now()
	log.Println("Rebuilding bucket statistics from stored observations")

	err = segments.ScanAll(db, func(observation *segments.SegmentObservation) bool {
		select {
		case <-shutdownSignal:
			interrupted = true
			return false
		default:
		}
		collection.apply(observation)
		applied++
		return true
	})
	if err != nil {
		return applied, interrupted, err
	}
	if interrupted {
		log.Printf("Rebuild interrupted by shutdown signal after %d observations", applied)
		return applied, interrupted, nil
	}

	log.Printf("Rebuilt %d buckets from %d observations in %s",
		collection.bucketCount(), applied, time.Since(start).Round(time.Millisecond))
	return applied, interrupted, nil
}
