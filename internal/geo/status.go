package geo

import (
	"time"

	"github.com/geocheck/attendance-server-go/internal/model"
)

// ComputeStatus classifies an attendance. A known distance beyond a known
// radius is Absent regardless of time. Otherwise the record is Present when
// elapsed (submission time minus session start) is within lateThreshold, and
// Late after it. Unknown distance or radius falls through to the time rule.
func ComputeStatus(distance, radiusM *float64, elapsed, lateThreshold time.Duration) model.AttendanceStatus {
	if Known(distance) && Known(radiusM) && *distance > *radiusM {
		return model.StatusAbsent
	}
	if elapsed <= lateThreshold {
		return model.StatusPresent
	}
	return model.StatusLate
}

// DistanceToFence returns the distance from c to the fence center, or nil
// when c is absent or the result is not a number.
func DistanceToFence(c *model.Coords, fence model.Geofence) *float64 {
	if c == nil {
		return nil
	}
	d := DistanceMeters(c.Lat, c.Lng, fence.Lat, fence.Lng)
	if !Known(&d) {
		return nil
	}
	return &d
}
