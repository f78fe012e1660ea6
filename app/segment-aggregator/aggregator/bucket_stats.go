package aggregator

import (
	"math"
	"sort"
	"sync"

	"github.com/metromind/metromind/business/data/segments"
)

// madOutlierCutoff is the modified z-score above which an arriving observation
// is logged as a statistical outlier. Outliers are still counted: the median
// keeps them from moving the published estimate, and the log line preserves an
// audit trail.
const madOutlierCutoff = 6.0

// bucketStats maintains the travel time statistics for one bucket: a bounded
// window of the most recent observations plus the count of every observation
// ever filed. The window bounds memory and lets the estimate follow slow
// real-world drift; the all-time count is the honest confidence figure
// reported with predictions, independent of window truncation.
type bucketStats struct {
	mu sync.Mutex
	// window is a ring of the most recent travel seconds, oldest overwritten first
	window []int
	next   int
	filled bool
	// sampleCount is the all-time number of observations filed in this bucket
	sampleCount int64
}

func makeBucketStats(windowSize int) *bucketStats {
	// a window must hold at least one observation to have a median
	if windowSize < 1 {
		windowSize = 1
	}
	return &bucketStats{
		window: make([]int, 0, windowSize),
	}
}

// add files one observation's travel seconds, evicting the oldest windowed
// value once the window is full
func (b *bucketStats) add(travelSeconds int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.sampleCount++
	if !b.filled && len(b.window) < cap(b.window) {
		b.window = append(b.window, travelSeconds)
		if len(b.window) == cap(b.window) {
			b.filled = true
		}
		return
	}
	b.window[b.next] = travelSeconds
	b.next = (b.next + 1) % len(b.window)
}

// BucketSnapshot is a consistent read of one bucket's statistics
type BucketSnapshot struct {
	// SampleCount is the all-time observation count, the confidence figure
	SampleCount int64
	// WindowCount is how many observations currently inform the estimate
	WindowCount   int
	MedianSeconds float64
	MADSeconds    float64
	P10Seconds    int
	P90Seconds    int
}

// snapshot computes the bucket's published statistics from the current window
func (b *bucketStats) snapshot() BucketSnapshot {
	b.mu.Lock()
	values := make([]int, len(b.window))
	copy(values, b.window)
	sampleCount := b.sampleCount
	b.mu.Unlock()

	result := BucketSnapshot{
		SampleCount: sampleCount,
		WindowCount: len(values),
	}
	if len(values) == 0 {
		return result
	}

	sort.Ints(values)
	result.MedianSeconds = medianOfSorted(values)
	result.P10Seconds = percentileOfSorted(values, 0.10)
	result.P90Seconds = percentileOfSorted(values, 0.90)

	deviations := make([]int, len(values))
	for i, v := range values {
		deviations[i] = int(math.Abs(float64(v) - result.MedianSeconds))
	}
	sort.Ints(deviations)
	result.MADSeconds = medianOfSorted(deviations)

	return result
}

// isOutlier reports whether travelSeconds lands beyond the modified z-score
// cutoff for this snapshot. A zero MAD (all windowed values identical) never
// flags, only the hard sanity bounds apply then.
func (s BucketSnapshot) isOutlier(travelSeconds int) bool {
	if s.MADSeconds == 0 || s.WindowCount == 0 {
		return false
	}
	modifiedZ := 0.6745 * math.Abs(float64(travelSeconds)-s.MedianSeconds) / s.MADSeconds
	return modifiedZ > madOutlierCutoff
}

// medianOfSorted returns the median of an ascending slice, averaging the two
// middle values for even lengths
func medianOfSorted(values []int) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return float64(values[n/2])
	}
	return float64(values[n/2-1]+values[n/2]) / 2
}

// percentileOfSorted returns the value at rank ceil(n*q) of an ascending slice
func percentileOfSorted(values []int, q float64) int {
	n := len(values)
	rank := int(math.Ceil(float64(n) * q))
	if rank < 1 {
		rank = 1
	}
	if rank > n {
		rank = n
	}
	return values[rank-1]
}

// statsCollection owns every bucketStats instance. The collection map is under
// a read/write mutex while each bucket carries its own lock, so concurrent
// segment completions only contend when they land in the same bucket.
type statsCollection struct {
	mu      sync.RWMutex
	buckets map[string]*bucketStats

	windowSize int
	calendar   *transitHolidayCalendar
}

func makeStatsCollection(windowSize int, calendar *transitHolidayCalendar) *statsCollection {
	return &statsCollection{
		buckets:    make(map[string]*bucketStats),
		windowSize: windowSize,
		calendar:   calendar,
	}
}

// keysFor returns the bucket keys an observation is filed under, one per
// fallback granularity the predictor can answer at. Observations arriving on
// an observed holiday pool with the weekend at the coarse granularity.
func (sc *statsCollection) keysFor(observation *segments.SegmentObservation) []segments.BucketKey {
	coarse := segments.CoarseDayBucketKey(observation)
	if sc.calendar.isHoliday(observation.ArrivalTime) {
		coarse.DayType = segments.DayTypeWeekend
	}
	return []segments.BucketKey{
		segments.ExactBucketKey(observation),
		coarse,
		segments.AllTimesBucketKey(observation),
	}
}

// apply files one observation at every granularity. Returns the exact-bucket
// snapshot taken before the observation was added, used for outlier logging.
func (sc *statsCollection) apply(observation *segments.SegmentObservation) BucketSnapshot {
	keys := sc.keysFor(observation)
	before := sc.getOrMakeBucket(keys[0]).snapshot()
	for _, key := range keys {
		sc.getOrMakeBucket(key).add(observation.TravelSeconds)
	}
	return before
}

// lookup returns the bucket for key if any observation was ever filed there
func (sc *statsCollection) lookup(key segments.BucketKey) (*bucketStats, bool) {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	bucket, present := sc.buckets[key.Name()]
	return bucket, present
}

func (sc *statsCollection) getOrMakeBucket(key segments.BucketKey) *bucketStats {
	name := key.Name()

	sc.mu.RLock()
	bucket, present := sc.buckets[name]
	sc.mu.RUnlock()
	if present {
		return bucket
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	if bucket, present = sc.buckets[name]; present {
		return bucket
	}
	bucket = makeBucketStats(sc.windowSize)
	sc.buckets[name] = bucket
	return bucket
}

// bucketCount returns the number of buckets with at least one observation
func (sc *statsCollection) bucketCount() int {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return len(sc.buckets)
}

// coverage summarizes how well populated the collection is, for the periodic
// coverage report: bucket count, total all-time samples across buckets, and
// how many buckets sit below lowThreshold samples
func (sc *statsCollection) coverage(lowThreshold int64) (buckets int, totalSamples int64, lowBuckets int) {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	for _, bucket := range sc.buckets {
		snapshot := bucket.snapshot()
		buckets++
		totalSamples += snapshot.SampleCount
		if snapshot.SampleCount < lowThreshold {
			lowBuckets++
		}
	}
	return buckets, totalSamples, lowBuckets
}
