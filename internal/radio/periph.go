package radio

import (
	"fmt"
	"log"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// spiClock is well under the SX127x limit of 10 MHz.
const spiClock = 8 * physic.MegaHertz

// Options selects the hardware and modem settings for Open.
type Options struct {
	SPIDevice string // periph SPI port name, e.g. "/dev/spidev0.0" or "" for the first port
	ResetPin  string // periph GPIO name wired to NRESET; empty skips the reset pulse
	Settings
}

// spiRegisters accesses chip registers over SPI.
type spiRegisters struct {
	conn spi.Conn
}

func (s spiRegisters) readRegister(addr byte) (byte, error) {
	w := []byte{addr & 0x7f, 0}
	r := make([]byte, len(w))
	if err := s.conn.Tx(w, r); err != nil {
		return 0, fmt.Errorf("spi read 0x%02x: %w", addr, err)
	}
	return r[1], nil
}

func (s spiRegisters) writeRegister(addr, value byte) error {
	w := []byte{addr | 0x80, value}
	r := make([]byte, len(w))
	if err := s.conn.Tx(w, r); err != nil {
		return fmt.Errorf("spi write 0x%02x: %w", addr, err)
	}
	return nil
}

// Open initializes the SX127x on the given SPI port and configures it for
// LoRa reception.
func Open(opts Options) (*SX127x, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}

	if opts.ResetPin != "" {
		pin := gpioreg.ByName(opts.ResetPin)
		if pin == nil {
			return nil, fmt.Errorf("reset pin %q not found", opts.ResetPin)
		}
		if err := resetChip(pin); err != nil {
			return nil, fmt.Errorf("reset pin %s: %w", opts.ResetPin, err)
		}
	}

	port, err := spireg.Open(opts.SPIDevice)
	if err != nil {
		return nil, fmt.Errorf("open spi %q: %w", opts.SPIDevice, err)
	}
	conn, err := port.Connect(spiClock, spi.Mode0, 8)
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("connect spi %q: %w", opts.SPIDevice, err)
	}

	d, err := newSX127x(spiRegisters{conn: conn}, opts.Settings)
	if err != nil {
		port.Close()
		return nil, err
	}
	d.closer = port
	log.Printf("radio: sx127x ready on %q: %d Hz, SF%d, BW %d Hz, CR 4/%d",
		opts.SPIDevice, opts.Frequency, opts.SpreadingFactor, opts.SignalBandwidth, opts.CodingRate)
	return d, nil
}

func resetChip(pin gpio.PinOut) error {
	if err := pin.Out(gpio.Low); err != nil {
		return err
	}
	time.Sleep(10 * time.Millisecond)
	if err := pin.Out(gpio.High); err != nil {
		return err
	}
	time.Sleep(10 * time.Millisecond)
	return nil
}
