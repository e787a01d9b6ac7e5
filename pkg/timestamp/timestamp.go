// Package timestamp provides standardized timestamp handling for the gateway.
//
// The protobuf wire schema carries timestamps as (seconds, nanos) pairs, the
// JSON API carries RFC3339 strings, and consumer metrics samples use Unix
// milliseconds. This package owns the conversions between those shapes so no
// handler or codec does its own arithmetic.
//
// Zero Value Semantics:
//   - A zero time.Time, a 0 millisecond value, and a (0, 0) pair all mean
//     "not set"; conversions preserve that.
//
// Usage Examples:
//
//	// Current time as Unix milliseconds (metrics samples)
//	now := timestamp.Now()
//
//	// Wire pair for the protobuf codec
//	sec, nanos := timestamp.Split(t)
//	t := timestamp.Join(sec, nanos)
//
//	// Display formats
//	s := timestamp.Format(ms)       // RFC3339
//	s := timestamp.FormatTime(t)    // RFC3339Nano, UTC
//
//	// Parse flexible input (consumer start-time options)
//	t, ok := timestamp.ParseTime("2026-01-01T12:00:00Z")
package timestamp

import (
	"fmt"
	"strconv"
	"time"
)

// Now returns the current time as Unix milliseconds.
func Now() int64 {
	return time.Now().UnixMilli()
}

// Split breaks a time.Time into the (seconds, nanos) pair used by the
// protobuf Timestamp encoding. A zero time yields (0, 0).
func Split(t time.Time) (sec int64, nanos int32) {
	if t.IsZero() {
		return 0, 0
	}
	return t.Unix(), int32(t.Nanosecond())
}

// Join rebuilds a time.Time from a protobuf (seconds, nanos) pair.
// A (0, 0) pair yields the zero time.
func Join(sec int64, nanos int32) time.Time {
	if sec == 0 && nanos == 0 {
		return time.Time{}
	}
	return time.Unix(sec, int64(nanos)).UTC()
}

// ToUnixMs converts a time.Time to Unix milliseconds.
func ToUnixMs(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// FromUnixMs converts Unix milliseconds to time.Time.
// Returns zero time if timestamp is 0.
func FromUnixMs(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// Format converts Unix milliseconds to an RFC3339 string for display.
// Returns empty string if timestamp is 0.
func Format(ms int64) string {
	if ms == 0 {
		return ""
	}
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}

// FormatTime renders a time.Time as RFC3339Nano in UTC, the format used in
// JSON responses. Returns empty string for the zero time.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// ParseTime converts flexible timestamp input to a time.Time. Supports
// RFC3339 strings, Unix seconds, and Unix milliseconds (values past 1e12 are
// treated as milliseconds). The second return reports whether the input was
// understood.
func ParseTime(input string) (time.Time, bool) {
	if input == "" {
		return time.Time{}, false
	}

	if t, err := time.Parse(time.RFC3339, input); err == nil {
		return t, true
	}

	if n, err := strconv.ParseInt(input, 10, 64); err == nil {
		if n == 0 {
			return time.Time{}, false
		}
		if n > 1e12 {
			return time.UnixMilli(n).UTC(), true
		}
		return time.Unix(n, 0).UTC(), true
	}

	return time.Time{}, false
}

// Since returns the duration since the given millisecond timestamp.
// Returns 0 if timestamp is zero.
func Since(ms int64) time.Duration {
	if ms == 0 {
		return 0
	}
	return time.Since(time.UnixMilli(ms))
}

// Validate checks if a millisecond timestamp is valid (non-negative and
// reasonable). Returns an error if negative or unreasonably far in the future.
func Validate(ms int64) error {
	if ms < 0 {
		return fmt.Errorf("timestamp cannot be negative: %d", ms)
	}
	// Year 3000 cutoff
	if ms > 32503680000000 {
		return fmt.Errorf("timestamp too far in future: %d", ms)
	}
	return nil
}
