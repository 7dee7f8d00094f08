package radio

import (
	"io"
	"sync"
)

// FakePacket is one scripted packet for FakeDevice.
type FakePacket struct {
	// Data holds header and payload bytes as the chip would deliver them.
	Data []byte

	// Reported, if non-zero, overrides the length returned by ParsePacket.
	Reported int

	RSSI      int
	SNR       float64
	FreqError int64
}

// FakeDevice is a test double that delivers scripted packets, one per
// successful ParsePacket.
type FakeDevice struct {
	mu      sync.Mutex
	pending []FakePacket
	cur     FakePacket
	pos     int

	// Polls counts ParsePacket calls.
	Polls int

	// ParseError, if set, will be returned by ParsePacket.
	ParseError error
}

// NewFakeDevice creates a FakeDevice with the given packets queued.
func NewFakeDevice(packets ...FakePacket) *FakeDevice {
	return &FakeDevice{pending: packets}
}

// Enqueue adds a packet that becomes available on a later poll.
func (f *FakeDevice) Enqueue(p FakePacket) {
	f.mu.Lock()
	f.pending = append(f.pending, p)
	f.mu.Unlock()
}

// ParsePacket makes the next queued packet current and returns its length.
func (f *FakeDevice) ParsePacket() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Polls++
	if f.ParseError != nil {
		return 0, f.ParseError
	}
	if len(f.pending) == 0 {
		return 0, nil
	}
	f.cur = f.pending[0]
	f.pending = f.pending[1:]
	f.pos = 0
	if f.cur.Reported != 0 {
		return f.cur.Reported, nil
	}
	return len(f.cur.Data), nil
}

// Read copies bytes from the current packet.
func (f *FakeDevice) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pos >= len(f.cur.Data) {
		return 0, io.EOF
	}
	n := copy(p, f.cur.Data[f.pos:])
	f.pos += n
	return n, nil
}

// PacketRSSI returns the current packet's scripted RSSI.
func (f *FakeDevice) PacketRSSI() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cur.RSSI, nil
}

// PacketSNR returns the current packet's scripted SNR.
func (f *FakeDevice) PacketSNR() (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cur.SNR, nil
}

// PacketFrequencyError returns the current packet's scripted frequency error.
func (f *FakeDevice) PacketFrequencyError() (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cur.FreqError, nil
}
