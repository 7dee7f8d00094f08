package gps

import (
	"time"

	nmea "github.com/adrianmo/go-nmea"
)

// maxSentence bounds the sentence buffer. NMEA 0183 allows 82 characters;
// anything longer is line noise and gets dropped.
const maxSentence = 128

// Decoder consumes GPS bytes one at a time in receipt order.
//
// Complete sentences with a valid checksum update the fix; everything else
// is discarded without error. Not safe for concurrent use.
type Decoder struct {
	now func() time.Time

	buf        []byte
	inSentence bool

	fix       Fix
	satsAt    time.Time
	satsValid bool

	positionUpdated bool
	timeUpdated     bool
}

// NewDecoder creates a decoder. now is the monotonic source used for the
// fix age.
func NewDecoder(now func() time.Time) *Decoder {
	return &Decoder{
		now: now,
		buf: make([]byte, 0, maxSentence),
	}
}

// Encode feeds one byte. It returns true when the byte completed a valid
// sentence that was applied to the fix.
func (d *Decoder) Encode(b byte) bool {
	switch b {
	case '$':
		d.buf = append(d.buf[:0], b)
		d.inSentence = true
		return false
	case '\r', '\n':
		if !d.inSentence {
			return false
		}
		d.inSentence = false
		return d.apply(string(d.buf))
	}

	if !d.inSentence {
		return false
	}
	if len(d.buf) >= maxSentence {
		d.inSentence = false
		d.buf = d.buf[:0]
		return false
	}
	d.buf = append(d.buf, b)
	return false
}

// apply parses a full sentence and commits its fields together.
func (d *Decoder) apply(line string) bool {
	s, err := nmea.Parse(line)
	if err != nil {
		return false
	}

	next := d.fix
	var position, clock, sats bool

	switch m := s.(type) {
	case nmea.RMC:
		clock = setTime(&next, m.Time)
		if m.Date.Valid {
			next.Year, next.Month, next.Day = 2000+m.Date.YY, m.Date.MM, m.Date.DD
			next.DateValid = true
		}
		if m.Validity == nmea.ValidRMC {
			next.Lat, next.Lon = m.Latitude, m.Longitude
			next.LocationValid = true
			position = true
		}
	case nmea.GGA:
		clock = setTime(&next, m.Time)
		next.Satellites = int(m.NumSatellites)
		sats = true
		if m.FixQuality != nmea.Invalid {
			next.Lat, next.Lon = m.Latitude, m.Longitude
			next.Alt = m.Altitude
			next.LocationValid = true
			position = true
		}
	case nmea.ZDA:
		clock = setTime(&next, m.Time)
		if m.Year > 0 && m.Month > 0 && m.Day > 0 {
			next.Year, next.Month, next.Day = int(m.Year), int(m.Month), int(m.Day)
			next.DateValid = true
		}
	default:
		return false
	}

	d.fix = next
	if sats {
		d.satsAt = d.now()
		d.satsValid = true
	}
	if position {
		d.positionUpdated = true
	}
	if clock {
		d.timeUpdated = true
	}
	return true
}

func setTime(f *Fix, t nmea.Time) bool {
	if !t.Valid {
		return false
	}
	f.Hour, f.Minute, f.Second = t.Hour, t.Minute, t.Second
	f.TimeValid = true
	return true
}

// PositionUpdated reports whether a sentence changed the position since the
// last call, and clears the flag.
func (d *Decoder) PositionUpdated() bool {
	v := d.positionUpdated
	d.positionUpdated = false
	return v
}

// TimeUpdated reports whether a sentence carried a time since the last
// call, and clears the flag.
func (d *Decoder) TimeUpdated() bool {
	v := d.timeUpdated
	d.timeUpdated = false
	return v
}

// Fix returns a copy of the current fix with the age computed now.
func (d *Decoder) Fix() Fix {
	f := d.fix
	f.Age = -1
	if d.satsValid {
		f.Age = d.now().Sub(d.satsAt).Milliseconds()
	}
	return f
}
