// Package coordinator runs the logger's single-threaded event loop body.
// Each Tick polls the radio, drains the GPS bytes already buffered and checks
// the keepalive deadline, in that order. It owns the packet counter and is the
// only writer of the clock, decoder and store.
package coordinator

import (
	"bytes"
	"log"
	"time"

	"github.com/sweeney/lora-logger/internal/gps"
	"github.com/sweeney/lora-logger/internal/logic"
	"github.com/sweeney/lora-logger/internal/radio"
	"github.com/sweeney/lora-logger/internal/status"
)

// Appender durably stores a record.
type Appender interface {
	Append(rec logic.Record) error
}

// Sink receives each record after it has been appended.
type Sink interface {
	Publish(rec logic.Record) error
}

// Deps holds the coordinator's collaborators.
// Sinks and Tracker are optional.
type Deps struct {
	Radio     radio.Receiver
	GPS       gps.Source
	Decoder   *gps.Decoder
	Store     Appender
	Clock     *logic.Clock
	Keepalive *logic.Keepalive
	Mono      func() time.Time
	Sinks     []Sink
	Tracker   *status.Tracker
}

// Coordinator multiplexes radio, GPS and keepalive events into log records.
// Not safe for concurrent use.
type Coordinator struct {
	deps    Deps
	packets int
}

// New creates a Coordinator.
func New(deps Deps) *Coordinator {
	return &Coordinator{deps: deps}
}

// Packets returns the number of packets received since startup.
func (c *Coordinator) Packets() int {
	return c.packets
}

// Tick runs one pass of the event loop. It never blocks.
func (c *Coordinator) Tick() {
	c.pollRadio()
	c.drainGPS()
	c.checkKeepalive()
}

func (c *Coordinator) pollRadio() {
	n := c.deps.Radio.Available()
	if n <= 0 {
		return
	}

	pkt, err := c.deps.Radio.Receive(n)
	if err != nil {
		log.Printf("radio: receive error: %v", err)
		return
	}
	c.packets++

	text := pkt.Payload
	if i := bytes.IndexByte(text, 0); i >= 0 {
		text = text[:i]
	}

	rec := c.build()
	rec.Seq = c.packets
	rec.Length = len(pkt.Payload)
	rec.RSSI = pkt.RSSI
	rec.SNR = pkt.SNR
	rec.FreqError = pkt.FreqError
	rec.Payload = string(text)

	log.Printf("%s: received LoRa message #%d (%d bytes): '%s'", rec.Timestamp(), rec.Seq, rec.Length, rec.Payload)
	c.write(rec)
}

// drainGPS consumes only the bytes buffered when it starts, so a fast GPS
// stream cannot starve the rest of the tick.
func (c *Coordinator) drainGPS() {
	pending := c.deps.GPS.Buffered()
	for i := 0; i < pending; i++ {
		b, err := c.deps.GPS.ReadByte()
		if err != nil {
			return
		}
		if !c.deps.Decoder.Encode(b) {
			continue
		}

		if c.deps.Decoder.TimeUpdated() {
			if t, ok := c.deps.Decoder.Fix().Time(); ok {
				c.deps.Clock.Set(t)
				log.Printf("%s: time set according to GPS", c.timestamp())
				if c.deps.Tracker != nil {
					c.deps.Tracker.SetClock(c.deps.Clock.Now())
				}
			}
		}

		if c.deps.Decoder.PositionUpdated() {
			fix := c.deps.Decoder.Fix()
			log.Printf("%s: GPS position: %f, %f, alt: %f", c.timestamp(), fix.Lat, fix.Lon, fix.Alt)
			if c.deps.Tracker != nil {
				c.deps.Tracker.SetFix(fix)
			}
		}
	}
}

func (c *Coordinator) checkKeepalive() {
	if !c.deps.Keepalive.Due(c.deps.Mono()) {
		return
	}
	rec := c.build()
	log.Printf("%s: printing keepalive", rec.Timestamp())
	c.write(rec)
}

// build snapshots the clock and fix into a record with no packet fields.
func (c *Coordinator) build() logic.Record {
	fix := c.deps.Decoder.Fix()
	return logic.Record{
		Time:       c.deps.Clock.Now(),
		Satellites: fix.Satellites,
		FixAge:     fix.Age,
		Lat:        fix.Lat,
		Lon:        fix.Lon,
		Alt:        fix.Alt,
	}
}

func (c *Coordinator) write(rec logic.Record) {
	err := c.deps.Store.Append(rec)
	if err != nil {
		log.Printf("store: append error: %v", err)
		// Keep running; the record still goes to the mirrors.
	}
	if c.deps.Tracker != nil {
		c.deps.Tracker.RecordWritten(rec, err)
	}
	for _, s := range c.deps.Sinks {
		if err := s.Publish(rec); err != nil {
			log.Printf("publish error: %v", err)
		}
	}
}

func (c *Coordinator) timestamp() string {
	return c.deps.Clock.Now().Format(logic.TimestampLayout)
}
