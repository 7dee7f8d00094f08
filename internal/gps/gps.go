// Package gps decodes the NMEA byte stream from the GPS receiver.
// The real source reads a serial port; the fake source allows testing
// without hardware.
package gps

import (
	"errors"
	"time"
)

// ErrEmpty is returned by ReadByte when no byte is buffered.
var ErrEmpty = errors.New("gps: no data buffered")

// Source yields bytes already received from the GPS serial link.
// Neither method blocks.
type Source interface {
	// Buffered returns how many bytes can be read right now.
	Buffered() int

	// ReadByte returns the next buffered byte, or ErrEmpty.
	ReadByte() (byte, error)

	// Close releases the serial port.
	Close() error
}

// Fix is a point-in-time copy of the decoder state.
type Fix struct {
	Lat        float64 // decimal degrees
	Lon        float64 // decimal degrees
	Alt        float64 // meters above mean sea level
	Satellites int
	Age        int64 // ms since satellites were last updated, -1 if never

	Year, Month, Day     int
	Hour, Minute, Second int

	LocationValid bool
	DateValid     bool
	TimeValid     bool
}

// Time returns the UTC time of the latest date and time fields.
// ok is false until both have been decoded.
func (f Fix) Time() (t time.Time, ok bool) {
	if !f.DateValid || !f.TimeValid {
		return time.Time{}, false
	}
	return time.Date(f.Year, time.Month(f.Month), f.Day, f.Hour, f.Minute, f.Second, 0, time.UTC), true
}

// Idle is a Source that never has data. Used when the serial port
// cannot be opened.
type Idle struct{}

// Buffered always returns 0.
func (Idle) Buffered() int { return 0 }

// ReadByte always returns ErrEmpty.
func (Idle) ReadByte() (byte, error) { return 0, ErrEmpty }

// Close does nothing.
func (Idle) Close() error { return nil }
