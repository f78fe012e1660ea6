package segments

import (
	"fmt"
)

// DayType is the day-of-week category of a bucket. The finest grain is a specific
// weekday; the coarse grains pool weekdays or weekend days, and DayTypeAny pools
// every day for the all-times fallback bucket.
type DayType int

const (
	DayTypeMonday    DayType = 0
	DayTypeTuesday   DayType = 1
	DayTypeWednesday DayType = 2
	DayTypeThursday  DayType = 3
	DayTypeFriday    DayType = 4
	DayTypeSaturday  DayType = 5
	DayTypeSunday    DayType = 6
	DayTypeWeekday   DayType = 7
	DayTypeWeekend   DayType = 8
	DayTypeAny       DayType = 9
)

// HourAny marks a bucket that pools every hour of the day.
const HourAny = -1

var dayTypeNames = map[DayType]string{
	DayTypeMonday:    "Mon",
	DayTypeTuesday:   "Tue",
	DayTypeWednesday: "Wed",
	DayTypeThursday:  "Thu",
	DayTypeFriday:    "Fri",
	DayTypeSaturday:  "Sat",
	DayTypeSunday:    "Sun",
	DayTypeWeekday:   "weekday",
	DayTypeWeekend:   "weekend",
	DayTypeAny:       "any",
}

func (d DayType) String() string {
	if name, present := dayTypeNames[d]; present {
		return name
	}
	return fmt.Sprintf("DayType(%d)", int(d))
}

// IsSpecificDay returns true for the seven specific weekday values.
func (d DayType) IsSpecificDay() bool {
	return d >= DayTypeMonday && d <= DayTypeSunday
}

// Coarsen pools a specific weekday into DayTypeWeekday or DayTypeWeekend.
// Already coarse values are returned unchanged.
func (d DayType) Coarsen() DayType {
	switch {
	case d >= DayTypeMonday && d <= DayTypeFriday:
		return DayTypeWeekday
	case d == DayTypeSaturday || d == DayTypeSunday:
		return DayTypeWeekend
	}
	return d
}

// DayNumbers returns the day_of_week values (0=Monday..6=Sunday) covered by this DayType,
// for use when filtering stored observations.
func (d DayType) DayNumbers() []int {
	switch d {
	case DayTypeWeekday:
		return []int{0, 1, 2, 3, 4}
	case DayTypeWeekend:
		return []int{5, 6}
	case DayTypeAny:
		return []int{0, 1, 2, 3, 4, 5, 6}
	}
	return []int{int(d)}
}

// BucketKey identifies the group of observations used for one travel time estimate:
// a route's stop pair at a day-type and hour of day.
type BucketKey struct {
	RouteId    string
	FromStopId string
	ToStopId   string
	DayType    DayType
	HourOfDay  int
}

// Name returns the map key string for this bucket, in the style
// "M5_A_B_Tue_17". Stop and route ids never contain underscores in practice;
// even if one did, keys remain unique per distinct BucketKey value because
// the day type and hour positions are fixed from the right.
func (k BucketKey) Name() string {
	hour := "any"
	if k.HourOfDay != HourAny {
		hour = fmt.Sprintf("%02d", k.HourOfDay)
	}
	return fmt.Sprintf("%s_%s_%s_%s_%s", k.RouteId, k.FromStopId, k.ToStopId, k.DayType, hour)
}

// ExactBucketKey files an observation at the finest granularity, the specific weekday.
func ExactBucketKey(o *SegmentObservation) BucketKey {
	return BucketKey{
		RouteId:    o.RouteId,
		FromStopId: o.FromStopId,
		ToStopId:   o.ToStopId,
		DayType:    DayType(o.DayOfWeek),
		HourOfDay:  o.HourOfDay,
	}
}

// CoarseDayBucketKey files an observation with the weekday pooled to weekday/weekend.
func CoarseDayBucketKey(o *SegmentObservation) BucketKey {
	key := ExactBucketKey(o)
	key.DayType = key.DayType.Coarsen()
	return key
}

// AllTimesBucketKey files an observation in the bucket pooling every day and hour
// for its route and stop pair, the last fallback before "no data".
func AllTimesBucketKey(o *SegmentObservation) BucketKey {
	return BucketKey{
		RouteId:    o.RouteId,
		FromStopId: o.FromStopId,
		ToStopId:   o.ToStopId,
		DayType:    DayTypeAny,
		HourOfDay:  HourAny,
	}
}
