package radio

import (
	"errors"
	"io"
	"testing"
)

// fakeRegisters is an in-memory register file. Reads of regFifo pop from fifo.
type fakeRegisters struct {
	regs   [256]byte
	fifo   []byte
	writes []regWrite
	err    error
}

type regWrite struct {
	addr, value byte
}

func newFakeRegisters() *fakeRegisters {
	f := &fakeRegisters{}
	f.regs[regVersion] = chipVersion
	return f
}

func (f *fakeRegisters) readRegister(addr byte) (byte, error) {
	if f.err != nil {
		return 0, f.err
	}
	if addr == regFifo {
		if len(f.fifo) == 0 {
			return 0, nil
		}
		b := f.fifo[0]
		f.fifo = f.fifo[1:]
		return b, nil
	}
	return f.regs[addr], nil
}

func (f *fakeRegisters) writeRegister(addr, value byte) error {
	if f.err != nil {
		return f.err
	}
	f.writes = append(f.writes, regWrite{addr, value})
	// Writing IRQ flags clears them.
	if addr == regIrqFlags {
		f.regs[addr] &^= value
		return nil
	}
	f.regs[addr] = value
	return nil
}

func defaultSettings() Settings {
	return Settings{
		Frequency:       868000000,
		SpreadingFactor: 7,
		SignalBandwidth: 125000,
		CodingRate:      5,
	}
}

func newTestChip(t *testing.T) (*SX127x, *fakeRegisters) {
	t.Helper()
	regs := newFakeRegisters()
	d, err := newSX127x(regs, defaultSettings())
	if err != nil {
		t.Fatalf("configure: %v", err)
	}
	return d, regs
}

func TestConfigureRejectsUnknownChip(t *testing.T) {
	regs := newFakeRegisters()
	regs.regs[regVersion] = 0x00

	_, err := newSX127x(regs, defaultSettings())
	if !errors.Is(err, ErrNoChip) {
		t.Errorf("expected ErrNoChip, got %v", err)
	}
}

func TestConfigureRegisters(t *testing.T) {
	_, regs := newTestChip(t)

	// 868 MHz: frf = 868e6 * 2^19 / 32e6 = 0xD90000
	if regs.regs[regFrfMsb] != 0xd9 || regs.regs[regFrfMid] != 0x00 || regs.regs[regFrfLsb] != 0x00 {
		t.Errorf("frequency registers: %02x %02x %02x",
			regs.regs[regFrfMsb], regs.regs[regFrfMid], regs.regs[regFrfLsb])
	}
	if got := regs.regs[regModemConfig2] >> 4; got != 7 {
		t.Errorf("spreading factor: got %d, want 7", got)
	}
	if got := regs.regs[regModemConfig1] >> 4; got != 7 {
		t.Errorf("bandwidth index: got %d, want 7 (125 kHz)", got)
	}
	if got := (regs.regs[regModemConfig1] >> 1) & 0x07; got != 1 {
		t.Errorf("coding rate: got %d, want 1 (4/5)", got)
	}
	if regs.regs[regModemConfig1]&0x01 != 0 {
		t.Error("expected explicit header mode")
	}
	if regs.regs[regModemConfig3]&0x08 != 0 {
		t.Error("low data rate optimize should be off for SF7/125k")
	}
	if regs.regs[regOpMode] != modeLongRange|modeStandby {
		t.Errorf("op mode: got 0x%02x, want standby", regs.regs[regOpMode])
	}
}

func TestConfigureLowDataRateOptimize(t *testing.T) {
	regs := newFakeRegisters()
	s := defaultSettings()
	s.SpreadingFactor = 12

	if _, err := newSX127x(regs, s); err != nil {
		t.Fatalf("configure: %v", err)
	}
	// SF12 at 125 kHz: 32.8 ms symbols.
	if regs.regs[regModemConfig3]&0x08 == 0 {
		t.Error("low data rate optimize should be on for SF12/125k")
	}
}

func TestConfigureRejectsBadSettings(t *testing.T) {
	tests := []struct {
		name string
		edit func(*Settings)
	}{
		{"spreading factor", func(s *Settings) { s.SpreadingFactor = 13 }},
		{"bandwidth", func(s *Settings) { s.SignalBandwidth = 100000 }},
		{"coding rate", func(s *Settings) { s.CodingRate = 9 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := defaultSettings()
			tt.edit(&s)
			if _, err := newSX127x(newFakeRegisters(), s); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestParsePacketRxDone(t *testing.T) {
	d, regs := newTestChip(t)
	regs.regs[regIrqFlags] = irqRxDone
	regs.regs[regRxNbBytes] = 14
	regs.regs[regFifoRxCurrentAddr] = 0x20

	n, err := d.ParsePacket()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 14 {
		t.Errorf("length: got %d, want 14", n)
	}
	if regs.regs[regFifoAddrPtr] != 0x20 {
		t.Errorf("fifo pointer: got 0x%02x, want 0x20", regs.regs[regFifoAddrPtr])
	}
	if regs.regs[regIrqFlags] != 0 {
		t.Errorf("irq flags not cleared: 0x%02x", regs.regs[regIrqFlags])
	}
}

func TestParsePacketCRCErrorRejected(t *testing.T) {
	d, regs := newTestChip(t)
	regs.regs[regIrqFlags] = irqRxDone | irqPayloadCRCError
	regs.regs[regRxNbBytes] = 14

	n, err := d.ParsePacket()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 0 {
		t.Errorf("expected CRC error packet to be dropped, got %d", n)
	}
	if regs.regs[regOpMode] != modeLongRange|modeRxSingle {
		t.Errorf("expected receiver re-armed, op mode 0x%02x", regs.regs[regOpMode])
	}
}

func TestParsePacketArmsReceiveOnce(t *testing.T) {
	d, regs := newTestChip(t)

	d.ParsePacket()
	before := len(regs.writes)
	d.ParsePacket()

	// Second poll only clears IRQ flags; mode is already RX single.
	if got := len(regs.writes) - before; got != 1 {
		t.Errorf("expected 1 register write on idle poll, got %d", got)
	}
}

func TestReadFIFO(t *testing.T) {
	d, regs := newTestChip(t)
	regs.regs[regIrqFlags] = irqRxDone
	regs.regs[regRxNbBytes] = 5
	regs.fifo = []byte("hello world")

	if _, err := d.ParsePacket(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	buf := make([]byte, 16)
	n, err := d.Read(buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(buf[:n]) != "hello" {
		t.Errorf("got %q, want hello", buf[:n])
	}
	if _, err := d.Read(buf); err != io.EOF {
		t.Errorf("expected io.EOF at end of packet, got %v", err)
	}
}

func TestPacketMetrics(t *testing.T) {
	d, regs := newTestChip(t)
	regs.regs[regPktRssiValue] = 100
	regs.regs[regPktSnrValue] = 0xf6 // -10 quarter dB

	rssi, err := d.PacketRSSI()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rssi != -57 {
		t.Errorf("rssi: got %d, want -57", rssi)
	}

	snr, err := d.PacketSNR()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snr != -2.5 {
		t.Errorf("snr: got %f, want -2.5", snr)
	}
}

func TestPacketRSSILowBand(t *testing.T) {
	regs := newFakeRegisters()
	s := defaultSettings()
	s.Frequency = 433000000
	d, err := newSX127x(regs, s)
	if err != nil {
		t.Fatalf("configure: %v", err)
	}
	regs.regs[regPktRssiValue] = 100

	rssi, _ := d.PacketRSSI()
	if rssi != -64 {
		t.Errorf("rssi: got %d, want -64", rssi)
	}
}

func TestPacketFrequencyError(t *testing.T) {
	tests := []struct {
		name          string
		msb, mid, lsb byte
		want          int64
	}{
		{"positive", 0x00, 0x10, 0x00, 536},
		{"negative", 0x0f, 0xf0, 0x00, -536},
		{"zero", 0x00, 0x00, 0x00, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, regs := newTestChip(t)
			regs.regs[regFreqErrorMsb] = tt.msb
			regs.regs[regFreqErrorMid] = tt.mid
			regs.regs[regFreqErrorLsb] = tt.lsb

			got, err := d.PacketFrequencyError()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestSX127xWithReceiver(t *testing.T) {
	d, regs := newTestChip(t)
	regs.regs[regIrqFlags] = irqRxDone
	regs.regs[regRxNbBytes] = 9
	regs.fifo = append([]byte{0xff, 0xff, 0, 0}, "hello"...)
	regs.regs[regPktRssiValue] = 100

	r := NewReceiver(d)
	n := r.Available()
	if n != 9 {
		t.Fatalf("expected 9, got %d", n)
	}
	p, err := r.Receive(n)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(p.Payload) != "hello" {
		t.Errorf("payload: got %q", p.Payload)
	}
	if p.RSSI != -57 {
		t.Errorf("rssi: got %d", p.RSSI)
	}
}

func TestClosePutsChipToSleep(t *testing.T) {
	d, regs := newTestChip(t)
	if err := d.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if regs.regs[regOpMode] != modeLongRange|modeSleep {
		t.Errorf("op mode: got 0x%02x, want sleep", regs.regs[regOpMode])
	}
}
