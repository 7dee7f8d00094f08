// Package status provides a thread-safe status tracker for the logger.
// The coordinator writes it; HTTP handlers and MQTT lifecycle events read it.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/lora-logger/internal/gps"
	"github.com/sweeney/lora-logger/internal/logic"
)

// Config contains daemon configuration for display.
type Config struct {
	KeepaliveMs     int64
	YieldMs         int64
	Frequency       int64
	SpreadingFactor int
	Bandwidth       int64
	CodingRate      int
	GPSDevice       string
	Broker          string
	HTTPAddr        string
	StaSSID         string
	APSSID          string
}

// Counts tracks records written since startup.
type Counts struct {
	Packets    int
	Keepalives int
	Failed     int // appends that returned an error
}

// Snapshot is a point-in-time view of daemon state.
// Snapshots are values and stay valid after the lock is released.
type Snapshot struct {
	LogPath       string
	StoreEngaged  bool
	RadioReady    bool
	GPSReady      bool
	MQTTConnected bool

	Counts     Counts
	LastRecord *logic.Record
	Fix        gps.Fix
	ClockSet   bool
	Clock      time.Time

	StartTime time.Time
	Now       time.Time
	Config    Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// SetLog records the active log file. An empty path means the store is
// disengaged.
func (t *Tracker) SetLog(path string) {
	t.mu.Lock()
	t.snap.LogPath = path
	t.snap.StoreEngaged = path != ""
	t.mu.Unlock()
}

// SetInputs records which input adapters initialized.
func (t *Tracker) SetInputs(radioReady, gpsReady bool) {
	t.mu.Lock()
	t.snap.RadioReady = radioReady
	t.snap.GPSReady = gpsReady
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// RecordWritten counts an append attempt and keeps the record as the latest.
func (t *Tracker) RecordWritten(rec logic.Record, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err != nil {
		t.snap.Counts.Failed++
		return
	}
	if rec.IsKeepalive() {
		t.snap.Counts.Keepalives++
	} else {
		t.snap.Counts.Packets++
	}
	t.snap.LastRecord = &rec
}

// SetFix stores the latest GPS fix.
func (t *Tracker) SetFix(fix gps.Fix) {
	t.mu.Lock()
	t.snap.Fix = fix
	t.mu.Unlock()
}

// SetClock records a GPS clock correction.
func (t *Tracker) SetClock(now time.Time) {
	t.mu.Lock()
	t.snap.ClockSet = true
	t.snap.Clock = now
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	if s.LastRecord != nil {
		rec := *s.LastRecord
		s.LastRecord = &rec
	}
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
