// Command lora-logger records received LoRa packets with GPS time and
// position to CSV files and serves them over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"

	"github.com/sweeney/lora-logger/internal/config"
	"github.com/sweeney/lora-logger/internal/coordinator"
	"github.com/sweeney/lora-logger/internal/gpio"
	"github.com/sweeney/lora-logger/internal/gps"
	"github.com/sweeney/lora-logger/internal/logic"
	"github.com/sweeney/lora-logger/internal/mqtt"
	"github.com/sweeney/lora-logger/internal/radio"
	"github.com/sweeney/lora-logger/internal/status"
	"github.com/sweeney/lora-logger/internal/store"
	"github.com/sweeney/lora-logger/internal/web"
)

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
	if err := run(cfg); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

// parseFlags loads the config file and applies any flags given explicitly.
func parseFlags(args []string) (config.Config, error) {
	fs := flag.NewFlagSet("lora-logger", flag.ContinueOnError)
	configPath := fs.String("config", "", "YAML config file (built-in defaults if empty)")
	storage := fs.String("storage", "", "Directory holding the CSV logs")
	httpAddr := fs.String("http", "", `HTTP address ("off" to disable)`)
	broker := fs.String("broker", "", `MQTT broker address ("off" to disable)`)
	keepalive := fs.Duration("keepalive", 0, "Keepalive interval (0 to disable)")
	if err := fs.Parse(args); err != nil {
		return config.Config{}, err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "storage":
			cfg.Storage = *storage
		case "http":
			cfg.HTTPAddr = disableable(*httpAddr)
		case "broker":
			cfg.MQTT.Broker = disableable(*broker)
		case "keepalive":
			cfg.Keepalive = *keepalive
		}
	})
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func disableable(v string) string {
	if v == "off" {
		return ""
	}
	return v
}

func run(cfg config.Config) error {
	log.Println(cfg.Name)

	// Storage. Failures leave the logger running without a log file.
	if err := os.MkdirAll(cfg.Storage, 0o755); err != nil {
		log.Printf("storage: error creating %s: %v", cfg.Storage, err)
	}
	fs := afero.NewBasePathFs(afero.NewOsFs(), cfg.Storage)

	btn, err := gpio.NewRealReader(cfg.Button.Chip, cfg.Button.Line)
	if err != nil {
		log.Printf("maintenance: button unavailable: %v", err)
	} else {
		maintenanceErase(btn, cfg.Button.Hold, cfg.Button.Poll, time.Sleep, fs)
		btn.Close()
	}

	st, err := store.Open(fs)
	if err != nil {
		log.Printf("log: error opening csv file: %v", err)
		st = store.Disengaged()
	} else {
		log.Printf("log: opened csv file %s", st.Path())
	}
	defer st.Close()

	// GPS
	var src gps.Source = gps.Idle{}
	gpsReady := false
	if s, err := gps.OpenSerial(cfg.GPS.Device, cfg.GPS.Baud); err != nil {
		log.Printf("gps: %v", err)
	} else {
		src, gpsReady = s, true
	}
	defer src.Close()

	// Radio
	var rx radio.Receiver = radio.Disabled{}
	dev, err := radio.Open(radio.Options{
		SPIDevice: cfg.Radio.SPIDevice,
		ResetPin:  cfg.Radio.ResetPin,
		Settings: radio.Settings{
			Frequency:       cfg.Radio.Frequency,
			SpreadingFactor: cfg.Radio.SpreadingFactor,
			SignalBandwidth: cfg.Radio.Bandwidth,
			CodingRate:      cfg.Radio.CodingRate,
		},
	})
	if err != nil {
		log.Printf("radio: init failed: %v", err)
	} else {
		defer dev.Close()
		rx = radio.NewReceiver(dev)
	}

	// MQTT mirror
	var publisher mqtt.Publisher = mqtt.NopPublisher{}
	var mqttStatus mqtt.ConnectionStatus = mqtt.NopPublisher{}
	if cfg.MQTT.Broker != "" {
		p, err := mqtt.NewRealPublisher(cfg.MQTT.Broker)
		if err != nil {
			log.Printf("mqtt: %v", err)
		} else {
			publisher, mqttStatus = p, p
		}
	}
	defer publisher.Close()

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(time.Now(), statusConfig(cfg))
	tracker.SetLog(st.Path())
	tracker.SetInputs(dev != nil, gpsReady)
	tracker.SetMQTTConnected(mqttStatus.IsConnected())

	// Publish startup event with full status snapshot
	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		log.Printf("failed to publish startup event: %v", err)
	}

	hub := web.NewHub()
	defer hub.Close()

	if cfg.HTTPAddr != "" {
		srv := web.New(cfg.HTTPAddr, fs, tracker, hub)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http server listening on %s", cfg.HTTPAddr)
	}

	// time.Now carries a monotonic reading, which is what Clock and
	// Keepalive measure against.
	mono := time.Now
	coord := coordinator.New(coordinator.Deps{
		Radio:     rx,
		GPS:       src,
		Decoder:   gps.NewDecoder(mono),
		Store:     st,
		Clock:     logic.NewClock(mono),
		Keepalive: logic.NewKeepalive(mono(), cfg.Keepalive),
		Mono:      mono,
		Sinks:     []coordinator.Sink{publisher, hub},
		Tracker:   tracker,
	})

	log.Printf("started: keepalive=%v yield=%v broker=%q", cfg.Keepalive, cfg.Yield, cfg.MQTT.Broker)

	ticker := time.NewTicker(cfg.Yield)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(coord, publisher, mqttStatus, tracker, time.Now, ticker.C, sigCh)
}

// maintenanceErase wipes the storage root if the button is held through
// the whole hold period at boot.
func maintenanceErase(btn gpio.Reader, hold, poll time.Duration, sleep func(time.Duration), fs afero.Fs) bool {
	held, err := gpio.HeldFor(btn, hold, poll, sleep)
	if err != nil {
		log.Printf("maintenance: button read error: %v", err)
		return false
	}
	if !held {
		return false
	}

	log.Printf("maintenance: formatting storage")
	if err := store.Erase(fs); err != nil {
		log.Printf("maintenance: erase failed: %v", err)
		return false
	}
	log.Printf("maintenance: storage erased")
	return true
}

func statusConfig(cfg config.Config) status.Config {
	return status.Config{
		KeepaliveMs:     cfg.Keepalive.Milliseconds(),
		YieldMs:         cfg.Yield.Milliseconds(),
		Frequency:       cfg.Radio.Frequency,
		SpreadingFactor: cfg.Radio.SpreadingFactor,
		Bandwidth:       cfg.Radio.Bandwidth,
		CodingRate:      cfg.Radio.CodingRate,
		GPSDevice:       cfg.GPS.Device,
		Broker:          cfg.MQTT.Broker,
		HTTPAddr:        cfg.HTTPAddr,
		StaSSID:         cfg.WiFi.StaSSID,
		APSSID:          cfg.WiFi.APSSID,
	}
}

func runLoop(coord *coordinator.Coordinator, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal) error {
	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			event := mqtt.SystemEvent{
				Timestamp: now(),
				Event:     "SHUTDOWN",
				Reason:    signalName,
				Retained:  true,
			}
			if tracker != nil {
				if mqttStatus != nil {
					tracker.SetMQTTConnected(mqttStatus.IsConnected())
				}
				snap := tracker.Snapshot()
				event.RawPayload = status.FormatStatusEvent(snap, "SHUTDOWN", signalName)
			}
			if err := publisher.PublishSystem(event); err != nil {
				log.Printf("failed to publish shutdown event: %v", err)
			}
			log.Printf("packets received: %d", coord.Packets())
			return nil

		case <-tick:
			coord.Tick()
			if tracker != nil && mqttStatus != nil {
				tracker.SetMQTTConnected(mqttStatus.IsConnected())
			}
		}
	}
}
