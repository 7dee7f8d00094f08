// Package radio receives LoRa packets through a pull-based interface.
// The coordinator polls Available once per tick and calls Receive when a
// packet is pending.
package radio

import (
	"errors"
	"fmt"
	"io"
)

const (
	// HeaderLen is the size of the sender's packet header. It is opaque to
	// the log and discarded.
	HeaderLen = 4

	// MaxPayload is the receive buffer capacity. Longer payloads are truncated.
	MaxPayload = 255
)

// ErrDisabled is returned by Disabled.Receive.
var ErrDisabled = errors.New("radio: disabled")

// Packet is a received payload with the link quality measured for it.
type Packet struct {
	Payload   []byte
	RSSI      int     // dBm
	SNR       float64 // dB
	FreqError int64   // Hz
}

// Receiver is polled by the coordinator.
type Receiver interface {
	// Available returns the reported length of a newly arrived packet,
	// or 0 if none is pending. It does not block.
	Available() int

	// Receive consumes the pending packet of reported length n.
	Receive(n int) (Packet, error)
}

// Device is the chip-level interface a Receiver is built on.
// Read returns bytes from the current packet and io.EOF once it is exhausted.
type Device interface {
	io.Reader
	ParsePacket() (int, error)
	PacketRSSI() (int, error)
	PacketSNR() (float64, error)
	PacketFrequencyError() (int64, error)
}

type deviceReceiver struct {
	dev    Device
	header [HeaderLen]byte
	buf    [MaxPayload]byte
}

// NewReceiver returns a Receiver reading packets from dev.
func NewReceiver(dev Device) Receiver {
	return &deviceReceiver{dev: dev}
}

// Available polls the device. Poll errors count as no packet.
func (r *deviceReceiver) Available() int {
	n, err := r.dev.ParsePacket()
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// Receive discards the header and reads at most MaxPayload payload bytes.
// The returned payload length is what was actually read, never more than
// the buffer holds.
func (r *deviceReceiver) Receive(n int) (Packet, error) {
	hdr := n
	if hdr > HeaderLen {
		hdr = HeaderLen
	}
	if _, err := readUpTo(r.dev, r.header[:hdr]); err != nil {
		return Packet{}, fmt.Errorf("read header: %w", err)
	}

	want := n - HeaderLen
	if want < 0 {
		want = 0
	}
	if want > MaxPayload {
		want = MaxPayload
	}
	got, err := readUpTo(r.dev, r.buf[:want])
	if err != nil {
		return Packet{}, fmt.Errorf("read payload: %w", err)
	}

	p := Packet{Payload: append([]byte(nil), r.buf[:got]...)}
	if p.RSSI, err = r.dev.PacketRSSI(); err != nil {
		return Packet{}, fmt.Errorf("read rssi: %w", err)
	}
	if p.SNR, err = r.dev.PacketSNR(); err != nil {
		return Packet{}, fmt.Errorf("read snr: %w", err)
	}
	if p.FreqError, err = r.dev.PacketFrequencyError(); err != nil {
		return Packet{}, fmt.Errorf("read frequency error: %w", err)
	}
	return p, nil
}

// readUpTo fills p from r, stopping early at end of packet.
func readUpTo(r io.Reader, p []byte) (int, error) {
	n, err := io.ReadFull(r, p)
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return n, nil
	}
	return n, err
}

// Disabled never reports a packet. Used when radio initialization fails.
type Disabled struct{}

// Available always returns 0.
func (Disabled) Available() int { return 0 }

// Receive always fails.
func (Disabled) Receive(int) (Packet, error) { return Packet{}, ErrDisabled }
