// Package align buckets heterogeneous per-source observations into canonical
// hourly slots. Pure functions; no I/O.
package align

import (
	"sort"
	"time"

	"github.com/rishirilab/weather-fusion-service/internal/models"
)

// Result holds the hourly buckets plus the count of observations discarded
// for malformed timestamps.
type Result struct {
	Buckets map[time.Time][]models.RawObservation
	Dropped int
}

// Bucket groups observations by hour-rounded timestamp. Rounding is to the
// nearest hour; an exact half hour rounds down. Observations with a zero
// timestamp are dropped and counted. A bucket exists only if it holds at
// least one observation.
func Bucket(observations []models.RawObservation) Result {
	res := Result{Buckets: make(map[time.Time][]models.RawObservation)}
	for _, obs := range observations {
		if obs.Timestamp.IsZero() {
			res.Dropped++
			continue
		}
		hour := RoundToHour(obs.Timestamp)
		res.Buckets[hour] = append(res.Buckets[hour], obs)
	}
	return res
}

// RoundToHour rounds t to the nearest hour boundary in UTC. Minute 30 with
// zero seconds is the tie and rounds down.
func RoundToHour(t time.Time) time.Time {
	t = t.UTC()
	hour := t.Truncate(time.Hour)
	rem := t.Sub(hour)
	if rem > 30*time.Minute {
		return hour.Add(time.Hour)
	}
	return hour
}

// SortedHours returns the bucket keys in ascending order.
func SortedHours(buckets map[time.Time][]models.RawObservation) []time.Time {
	hours := make([]time.Time, 0, len(buckets))
	for h := range buckets {
		hours = append(hours, h)
	}
	sort.Slice(hours, func(i, j int) bool { return hours[i].Before(hours[j]) })
	return hours
}
