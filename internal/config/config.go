// Package config loads the logger configuration from an optional YAML file.
// Every field has a default matching the stock board setup.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/lora-logger/internal/radio"
)

type Config struct {
	Name      string        `yaml:"name"`
	Storage   string        `yaml:"storage"`
	HTTPAddr  string        `yaml:"http_addr"`
	Keepalive time.Duration `yaml:"keepalive"`
	Yield     time.Duration `yaml:"yield"`

	GPS    GPSConfig    `yaml:"gps"`
	Radio  RadioConfig  `yaml:"radio"`
	Button ButtonConfig `yaml:"button"`
	MQTT   MQTTConfig   `yaml:"mqtt"`
	WiFi   WiFiConfig   `yaml:"wifi"`
}

type GPSConfig struct {
	Device string `yaml:"device"`
	Baud   int    `yaml:"baud"`
}

type RadioConfig struct {
	SPIDevice       string `yaml:"spi_device"`
	ResetPin        string `yaml:"reset_pin"`
	Frequency       int64  `yaml:"frequency"`
	SpreadingFactor int    `yaml:"spreading_factor"`
	Bandwidth       int64  `yaml:"bandwidth"`
	CodingRate      int    `yaml:"coding_rate"` // denominator of 4/x
}

type ButtonConfig struct {
	Chip string        `yaml:"chip"`
	Line int           `yaml:"line"`
	Hold time.Duration `yaml:"hold"`
	Poll time.Duration `yaml:"poll"`
}

type MQTTConfig struct {
	Broker string `yaml:"broker"` // empty disables the mirror
}

// WiFiConfig is passed to the host network setup and shown on the status page.
type WiFiConfig struct {
	StaSSID     string `yaml:"sta_ssid"`
	StaPassword string `yaml:"sta_password"`
	APSSID      string `yaml:"ap_ssid"`
	APPassword  string `yaml:"ap_password"`
}

// Default returns the stock configuration.
func Default() Config {
	return Config{
		Name:      "LoRa Logger",
		Storage:   "/var/lib/lora-logger",
		HTTPAddr:  ":80",
		Keepalive: 60 * time.Second,
		Yield:     10 * time.Millisecond,
		GPS: GPSConfig{
			Device: "/dev/serial0",
			Baud:   9600,
		},
		Radio: RadioConfig{
			SPIDevice:       "/dev/spidev0.0",
			ResetPin:        "GPIO25",
			Frequency:       868000000,
			SpreadingFactor: 7,
			Bandwidth:       125000,
			CodingRate:      5,
		},
		Button: ButtonConfig{
			Chip: "gpiochip0",
			Line: 17,
			Hold: 3 * time.Second,
			Poll: 100 * time.Millisecond,
		},
		WiFi: WiFiConfig{
			APSSID: "LoRa Logger",
		},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the values the hardware cannot accept.
func (c Config) Validate() error {
	if c.Storage == "" {
		return fmt.Errorf("storage is required")
	}
	if c.Yield <= 0 {
		return fmt.Errorf("yield must be positive")
	}
	if c.Keepalive < 0 {
		return fmt.Errorf("keepalive must not be negative")
	}
	if c.GPS.Baud <= 0 {
		return fmt.Errorf("gps.baud must be positive")
	}
	if c.Radio.Frequency <= 0 {
		return fmt.Errorf("radio.frequency must be positive")
	}
	if c.Radio.SpreadingFactor < 6 || c.Radio.SpreadingFactor > 12 {
		return fmt.Errorf("radio.spreading_factor must be 6..12, got %d", c.Radio.SpreadingFactor)
	}
	if c.Radio.CodingRate < 5 || c.Radio.CodingRate > 8 {
		return fmt.Errorf("radio.coding_rate must be 5..8, got %d", c.Radio.CodingRate)
	}
	if !validBandwidth(c.Radio.Bandwidth) {
		return fmt.Errorf("radio.bandwidth %d is not supported", c.Radio.Bandwidth)
	}
	if c.Button.Hold <= 0 || c.Button.Poll <= 0 {
		return fmt.Errorf("button.hold and button.poll must be positive")
	}
	return nil
}

func validBandwidth(hz int64) bool {
	for _, bw := range radio.Bandwidths {
		if bw == hz {
			return true
		}
	}
	return false
}
