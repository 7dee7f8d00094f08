// Package logic contains the pure parts of the logger: the record value, the
// GPS-corrected wall clock and the keepalive schedule.
// This package has NO external dependencies (no radio, serial, storage or time.Sleep).
// Time is always injectable via time.Time parameters or a now function.
package logic

import "time"

// TimestampLayout is the record timestamp format (second resolution).
const TimestampLayout = "2006-01-02 15:04:05"

// NoFixAge is reported as the fix age until satellites have been seen.
const NoFixAge = -1

// Record is one row of the log. It is built once and never mutated.
type Record struct {
	Time       time.Time
	Satellites int
	FixAge     int64 // milliseconds since satellites were last updated
	Lat        float64
	Lon        float64
	Alt        float64 // meters

	Seq       int // packet sequence number; 0 for keepalive records
	Length    int // payload bytes received
	RSSI      int
	SNR       float64
	FreqError int64 // Hz
	Payload   string
}

// IsKeepalive reports whether the record was produced by the keepalive timer.
func (r Record) IsKeepalive() bool {
	return r.Seq == 0
}

// Timestamp formats the record time as YYYY-MM-DD HH:MM:SS.
func (r Record) Timestamp() string {
	return r.Time.UTC().Format(TimestampLayout)
}
