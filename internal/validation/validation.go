// Package validation checks fused-weather request parameters before they
// reach the service layer.
package validation

import (
	"errors"
	"time"
)

// ErrLatitudeOutOfRange is returned when latitude is outside [-90, 90].
var ErrLatitudeOutOfRange = errors.New("latitude out of range")

// ErrLongitudeOutOfRange is returned when longitude is outside [-180, 180].
var ErrLongitudeOutOfRange = errors.New("longitude out of range")

// ErrWindowEmpty is returned when start is not strictly before end.
var ErrWindowEmpty = errors.New("window start must precede end")

// ErrWindowTooLong is returned when the window exceeds the maximum.
var ErrWindowTooLong = errors.New("window too long")

// ErrMinQualityOutOfRange is returned when min quality is outside [0, 1].
var ErrMinQualityOutOfRange = errors.New("min quality out of range")

// ValidateRequest checks a fused-weather request. maxWindow <= 0 disables
// the window-length bound. Errors map to 400 responses at the HTTP layer.
func ValidateRequest(lat, lon float64, start, end time.Time, minQuality float64, maxWindow time.Duration) error {
	if lat < -90 || lat > 90 {
		return ErrLatitudeOutOfRange
	}
	if lon < -180 || lon > 180 {
		return ErrLongitudeOutOfRange
	}
	if !start.Before(end) {
		return ErrWindowEmpty
	}
	if maxWindow > 0 && end.Sub(start) > maxWindow {
		return ErrWindowTooLong
	}
	if minQuality < 0 || minQuality > 1 {
		return ErrMinQualityOutOfRange
	}
	return nil
}
