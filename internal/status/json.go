package status

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/sweeney/lora-logger/internal/logic"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string      `json:"event,omitempty"`
	Reason        string      `json:"reason,omitempty"`
	LogFile       string      `json:"log_file"`
	Storage       bool        `json:"storage"`
	Radio         bool        `json:"radio"`
	GPS           GPSJSON     `json:"gps"`
	Clock         string      `json:"clock,omitempty"`
	UptimeSeconds int64       `json:"uptime_seconds"`
	StartTime     string      `json:"start_time"`
	Timestamp     string      `json:"timestamp"`
	MQTT          MQTTStatus  `json:"mqtt"`
	Counts        CountsJSON  `json:"record_counts"`
	LastRecord    *RecordJSON `json:"last_record,omitempty"`
	Config        ConfigJSON  `json:"config"`
}

// GPSJSON reports the latest fix.
type GPSJSON struct {
	Ready      bool    `json:"ready"`
	Valid      bool    `json:"valid"`
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	Alt        float64 `json:"alt"`
	Satellites int     `json:"satellites"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of record counts.
type CountsJSON struct {
	Packets    int `json:"packets"`
	Keepalives int `json:"keepalives"`
	Failed     int `json:"failed"`
}

// RecordJSON is the JSON representation of a log record.
type RecordJSON struct {
	Timestamp  string  `json:"ts"`
	Satellites int     `json:"gps_sat"`
	FixAge     int64   `json:"gps_age"`
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	Alt        float64 `json:"alt"`
	Seq        int     `json:"cnt"`
	Length     int     `json:"len"`
	RSSI       int     `json:"rssi"`
	SNR        float64 `json:"snr"`
	FreqError  int64   `json:"freq_err"`
	Payload    string  `json:"msg"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	KeepaliveMs     int64  `json:"keepalive_ms"`
	YieldMs         int64  `json:"yield_ms"`
	Frequency       int64  `json:"frequency_hz"`
	SpreadingFactor int    `json:"spreading_factor"`
	Bandwidth       int64  `json:"bandwidth_hz"`
	CodingRate      string `json:"coding_rate"`
	GPSDevice       string `json:"gps_device"`
	Broker          string `json:"broker"`
	HTTPAddr        string `json:"http_addr"`
	StaSSID         string `json:"sta_ssid,omitempty"`
	APSSID          string `json:"ap_ssid,omitempty"`
}

// NewRecordJSON converts a record for JSON output.
func NewRecordJSON(r logic.Record) RecordJSON {
	return RecordJSON{
		Timestamp:  r.Timestamp(),
		Satellites: r.Satellites,
		FixAge:     r.FixAge,
		Lat:        r.Lat,
		Lon:        r.Lon,
		Alt:        r.Alt,
		Seq:        r.Seq,
		Length:     r.Length,
		RSSI:       r.RSSI,
		SNR:        r.SNR,
		FreqError:  r.FreqError,
		Payload:    r.Payload,
	}
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		LogFile: snap.LogPath,
		Storage: snap.StoreEngaged,
		Radio:   snap.RadioReady,
		GPS: GPSJSON{
			Ready:      snap.GPSReady,
			Valid:      snap.Fix.LocationValid,
			Lat:        snap.Fix.Lat,
			Lon:        snap.Fix.Lon,
			Alt:        snap.Fix.Alt,
			Satellites: snap.Fix.Satellites,
		},
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Packets:    snap.Counts.Packets,
			Keepalives: snap.Counts.Keepalives,
			Failed:     snap.Counts.Failed,
		},
		Config: ConfigJSON{
			KeepaliveMs:     snap.Config.KeepaliveMs,
			YieldMs:         snap.Config.YieldMs,
			Frequency:       snap.Config.Frequency,
			SpreadingFactor: snap.Config.SpreadingFactor,
			Bandwidth:       snap.Config.Bandwidth,
			GPSDevice:       snap.Config.GPSDevice,
			Broker:          snap.Config.Broker,
			HTTPAddr:        snap.Config.HTTPAddr,
			StaSSID:         snap.Config.StaSSID,
			APSSID:          snap.Config.APSSID,
		},
	}
	if snap.Config.CodingRate > 0 {
		inner.Config.CodingRate = "4/" + strconv.Itoa(snap.Config.CodingRate)
	}
	if snap.ClockSet {
		inner.Clock = snap.Clock.UTC().Format(time.RFC3339)
	}
	if snap.LastRecord != nil {
		rj := NewRecordJSON(*snap.LastRecord)
		inner.LastRecord = &rj
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
