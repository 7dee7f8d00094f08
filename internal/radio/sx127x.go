package radio

import (
	"errors"
	"fmt"
	"io"
	"time"
)

// SX1276/77/78 LoRa registers.
const (
	regFifo              = 0x00
	regOpMode            = 0x01
	regFrfMsb            = 0x06
	regFrfMid            = 0x07
	regFrfLsb            = 0x08
	regLna               = 0x0c
	regFifoAddrPtr       = 0x0d
	regFifoTxBaseAddr    = 0x0e
	regFifoRxBaseAddr    = 0x0f
	regFifoRxCurrentAddr = 0x10
	regIrqFlags          = 0x12
	regRxNbBytes         = 0x13
	regPktSnrValue       = 0x19
	regPktRssiValue      = 0x1a
	regModemConfig1      = 0x1d
	regModemConfig2      = 0x1e
	regModemConfig3      = 0x26
	regFreqErrorMsb      = 0x28
	regFreqErrorMid      = 0x29
	regFreqErrorLsb      = 0x2a
	regDetectionOptimize = 0x31
	regDetectionThresh   = 0x37
	regVersion           = 0x42
)

const (
	modeLongRange = 0x80
	modeSleep     = 0x00
	modeStandby   = 0x01
	modeRxSingle  = 0x06

	irqPayloadCRCError = 0x20
	irqRxDone          = 0x40

	chipVersion = 0x12

	fxosc = 32e6
	// Below this frequency the chip uses the low-frequency port RSSI offset.
	midBandThreshold = 525e6
	rssiOffsetLF     = 164
	rssiOffsetHF     = 157
)

// Bandwidths lists the supported signal bandwidths in Hz, in register order.
var Bandwidths = []int64{7800, 10400, 15600, 20800, 31250, 41700, 62500, 125000, 250000, 500000}

// ErrNoChip is returned when the version register does not identify an SX127x.
var ErrNoChip = errors.New("sx127x: chip not found")

// registers is single-register access to the chip.
type registers interface {
	readRegister(addr byte) (byte, error)
	writeRegister(addr, value byte) error
}

// Settings are the LoRa modem parameters.
type Settings struct {
	Frequency       int64 // Hz
	SpreadingFactor int   // 6..12
	SignalBandwidth int64 // Hz, one of the supported bandwidths
	CodingRate      int   // denominator of 4/x, 5..8
}

// SX127x drives a Semtech SX1276/77/78 in LoRa receive mode.
type SX127x struct {
	regs      registers
	closer    io.Closer
	frequency int64

	packetLen   int
	packetIndex int
}

func newSX127x(regs registers, s Settings) (*SX127x, error) {
	d := &SX127x{regs: regs}
	if err := d.configure(s); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *SX127x) configure(s Settings) error {
	v, err := d.regs.readRegister(regVersion)
	if err != nil {
		return fmt.Errorf("read version: %w", err)
	}
	if v != chipVersion {
		return fmt.Errorf("%w (version 0x%02x)", ErrNoChip, v)
	}

	if err := d.regs.writeRegister(regOpMode, modeLongRange|modeSleep); err != nil {
		return fmt.Errorf("sleep: %w", err)
	}
	if err := d.setFrequency(s.Frequency); err != nil {
		return err
	}
	if err := d.regs.writeRegister(regFifoTxBaseAddr, 0); err != nil {
		return fmt.Errorf("tx base: %w", err)
	}
	if err := d.regs.writeRegister(regFifoRxBaseAddr, 0); err != nil {
		return fmt.Errorf("rx base: %w", err)
	}
	// LNA boost, automatic gain control.
	if err := d.update(regLna, 0xff, 0x03); err != nil {
		return fmt.Errorf("lna: %w", err)
	}
	if err := d.regs.writeRegister(regModemConfig3, 0x04); err != nil {
		return fmt.Errorf("agc: %w", err)
	}
	if err := d.setSpreadingFactor(s.SpreadingFactor); err != nil {
		return err
	}
	if err := d.setSignalBandwidth(s.SignalBandwidth); err != nil {
		return err
	}
	if err := d.setCodingRate(s.CodingRate); err != nil {
		return err
	}
	// Explicit header mode.
	if err := d.update(regModemConfig1, 0xfe, 0); err != nil {
		return fmt.Errorf("header mode: %w", err)
	}
	if err := d.regs.writeRegister(regOpMode, modeLongRange|modeStandby); err != nil {
		return fmt.Errorf("standby: %w", err)
	}
	return nil
}

// update rewrites addr as (old & keep) | set.
func (d *SX127x) update(addr, keep, set byte) error {
	v, err := d.regs.readRegister(addr)
	if err != nil {
		return err
	}
	return d.regs.writeRegister(addr, (v&keep)|set)
}

func (d *SX127x) setFrequency(hz int64) error {
	frf := (uint64(hz) << 19) / uint64(fxosc)
	for i, addr := range []byte{regFrfMsb, regFrfMid, regFrfLsb} {
		if err := d.regs.writeRegister(addr, byte(frf>>(16-8*i))); err != nil {
			return fmt.Errorf("set frequency: %w", err)
		}
	}
	d.frequency = hz
	return nil
}

func (d *SX127x) setSpreadingFactor(sf int) error {
	if sf < 6 || sf > 12 {
		return fmt.Errorf("spreading factor %d out of range 6..12", sf)
	}
	optimize, thresh := byte(0xc3), byte(0x0a)
	if sf == 6 {
		optimize, thresh = 0xc5, 0x0c
	}
	if err := d.regs.writeRegister(regDetectionOptimize, optimize); err != nil {
		return fmt.Errorf("detection optimize: %w", err)
	}
	if err := d.regs.writeRegister(regDetectionThresh, thresh); err != nil {
		return fmt.Errorf("detection threshold: %w", err)
	}
	if err := d.update(regModemConfig2, 0x0f, byte(sf<<4)); err != nil {
		return fmt.Errorf("set spreading factor: %w", err)
	}
	return d.setLowDataRateOptimize(sf)
}

func (d *SX127x) setSignalBandwidth(hz int64) error {
	idx := -1
	for i, bw := range Bandwidths {
		if bw == hz {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("unsupported signal bandwidth %d Hz", hz)
	}
	if err := d.update(regModemConfig1, 0x0f, byte(idx<<4)); err != nil {
		return fmt.Errorf("set bandwidth: %w", err)
	}
	sf, err := d.spreadingFactor()
	if err != nil {
		return err
	}
	return d.setLowDataRateOptimize(sf)
}

func (d *SX127x) setCodingRate(denominator int) error {
	if denominator < 5 || denominator > 8 {
		return fmt.Errorf("coding rate 4/%d out of range 4/5..4/8", denominator)
	}
	if err := d.update(regModemConfig1, 0xf1, byte((denominator-4)<<1)); err != nil {
		return fmt.Errorf("set coding rate: %w", err)
	}
	return nil
}

// setLowDataRateOptimize is required when a symbol lasts longer than 16 ms.
func (d *SX127x) setLowDataRateOptimize(sf int) error {
	bw, err := d.signalBandwidth()
	if err != nil {
		return err
	}
	symbol := time.Duration(float64(int64(1)<<sf) / float64(bw) * float64(time.Second))
	set := byte(0)
	if symbol > 16*time.Millisecond {
		set = 0x08
	}
	if err := d.update(regModemConfig3, 0xf7, set); err != nil {
		return fmt.Errorf("low data rate optimize: %w", err)
	}
	return nil
}

func (d *SX127x) spreadingFactor() (int, error) {
	v, err := d.regs.readRegister(regModemConfig2)
	if err != nil {
		return 0, err
	}
	return int(v >> 4), nil
}

func (d *SX127x) signalBandwidth() (int64, error) {
	v, err := d.regs.readRegister(regModemConfig1)
	if err != nil {
		return 0, err
	}
	idx := int(v >> 4)
	if idx >= len(Bandwidths) {
		return 0, fmt.Errorf("invalid bandwidth setting %d", idx)
	}
	return Bandwidths[idx], nil
}

// ParsePacket checks for a received packet. On RX done with a good CRC it
// returns the packet length and points the FIFO at it; otherwise it re-arms
// single receive mode and returns 0.
func (d *SX127x) ParsePacket() (int, error) {
	flags, err := d.regs.readRegister(regIrqFlags)
	if err != nil {
		return 0, err
	}
	if err := d.regs.writeRegister(regIrqFlags, flags); err != nil {
		return 0, err
	}

	if flags&irqRxDone != 0 && flags&irqPayloadCRCError == 0 {
		n, err := d.regs.readRegister(regRxNbBytes)
		if err != nil {
			return 0, err
		}
		cur, err := d.regs.readRegister(regFifoRxCurrentAddr)
		if err != nil {
			return 0, err
		}
		if err := d.regs.writeRegister(regFifoAddrPtr, cur); err != nil {
			return 0, err
		}
		if err := d.regs.writeRegister(regOpMode, modeLongRange|modeStandby); err != nil {
			return 0, err
		}
		d.packetLen, d.packetIndex = int(n), 0
		return int(n), nil
	}

	mode, err := d.regs.readRegister(regOpMode)
	if err != nil {
		return 0, err
	}
	if mode != modeLongRange|modeRxSingle {
		if err := d.regs.writeRegister(regFifoAddrPtr, 0); err != nil {
			return 0, err
		}
		if err := d.regs.writeRegister(regOpMode, modeLongRange|modeRxSingle); err != nil {
			return 0, err
		}
	}
	return 0, nil
}

// Read reads the current packet from the FIFO.
func (d *SX127x) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) && d.packetIndex < d.packetLen {
		b, err := d.regs.readRegister(regFifo)
		if err != nil {
			return n, err
		}
		p[n] = b
		n++
		d.packetIndex++
	}
	if n == 0 && len(p) > 0 {
		return 0, io.EOF
	}
	return n, nil
}

// PacketRSSI returns the RSSI of the last packet in dBm.
func (d *SX127x) PacketRSSI() (int, error) {
	v, err := d.regs.readRegister(regPktRssiValue)
	if err != nil {
		return 0, err
	}
	offset := rssiOffsetHF
	if d.frequency < midBandThreshold {
		offset = rssiOffsetLF
	}
	return int(v) - offset, nil
}

// PacketSNR returns the SNR of the last packet in dB.
func (d *SX127x) PacketSNR() (float64, error) {
	v, err := d.regs.readRegister(regPktSnrValue)
	if err != nil {
		return 0, err
	}
	return float64(int8(v)) * 0.25, nil
}

// PacketFrequencyError returns the estimated carrier offset of the last
// packet in Hz.
func (d *SX127x) PacketFrequencyError() (int64, error) {
	var raw [3]byte
	for i, addr := range []byte{regFreqErrorMsb, regFreqErrorMid, regFreqErrorLsb} {
		v, err := d.regs.readRegister(addr)
		if err != nil {
			return 0, err
		}
		raw[i] = v
	}
	fe := int64(raw[0]&0x07)<<16 | int64(raw[1])<<8 | int64(raw[2])
	if raw[0]&0x08 != 0 {
		fe -= 1 << 19
	}

	bw, err := d.signalBandwidth()
	if err != nil {
		return 0, err
	}
	hz := float64(fe) * float64(int64(1)<<24) / fxosc * (float64(bw) / 500000)
	return int64(hz), nil
}

// Close puts the chip to sleep and releases the bus.
func (d *SX127x) Close() error {
	var errs []error
	if err := d.regs.writeRegister(regOpMode, modeLongRange|modeSleep); err != nil {
		errs = append(errs, fmt.Errorf("sleep: %w", err))
	}
	if d.closer != nil {
		if err := d.closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close spi port: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
