package trial

import (
	"fmt"
	"math"
	"time"
)

// Layouts used for absolute timestamps in reports and exports.
const (
	TimeOfDayLayout = "15:04:05.000"
	TimestampLayout = "2006-01-02T15:04:05.000Z07:00"
)

// FormatDuration renders milliseconds as HH:MM:SS.mmm.
// Negative inputs are clamped to zero. Hours are not wrapped at 24.
func FormatDuration(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	hours := ms / 3600000
	minutes := (ms % 3600000) / 60000
	seconds := (ms % 60000) / 1000
	millis := ms % 1000
	return fmt.Sprintf("%02d:%02d:%02d.%03d", hours, minutes, seconds, millis)
}

// FormatTimeOfDay renders an epoch-ms timestamp as a clock time in loc.
func FormatTimeOfDay(epochMs int64, loc *time.Location) string {
	return time.UnixMilli(epochMs).In(location(loc)).Format(TimeOfDayLayout)
}

// FormatTimestamp renders an epoch-ms timestamp as a full date-time in loc.
func FormatTimestamp(epochMs int64, loc *time.Location) string {
	return time.UnixMilli(epochMs).In(location(loc)).Format(TimestampLayout)
}

// MaxFreezeDurationMs bounds an edited freeze duration to one day.
const MaxFreezeDurationMs int64 = 24 * 60 * 60 * 1000

// SecondsToMillis converts operator-entered seconds to whole milliseconds.
// Returns a ValidationError for negative, non-finite or out-of-range input.
func SecondsToMillis(seconds float64) (int64, error) {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return 0, NewValidationError("duration", "must be a finite number of seconds")
	}
	if seconds < 0 {
		return 0, NewValidationError("duration", "must not be negative")
	}
	if seconds*1000 > float64(MaxFreezeDurationMs) {
		return 0, NewValidationError("duration", "must not exceed 24 hours")
	}
	return int64(math.Round(seconds * 1000)), nil
}

func location(loc *time.Location) *time.Location {
	if loc == nil {
		return time.Local
	}
	return loc
}
