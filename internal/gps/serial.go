package gps

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	serial "github.com/jacobsa/go-serial/serial"
)

// rxBuffer is the number of bytes held between coordinator ticks.
// At 9600 baud this is several seconds of NMEA traffic.
const rxBuffer = 4096

// SerialSource buffers bytes from the GPS serial port.
//
// A reader goroutine moves bytes from the port into a bounded queue, like a
// UART FIFO. When the queue is full new bytes are dropped.
type SerialSource struct {
	port  io.ReadCloser
	bytes chan byte
}

// OpenSerial opens the GPS serial port at the given baud rate (8N1).
func OpenSerial(device string, baud int) (*SerialSource, error) {
	opts := serial.OpenOptions{
		PortName:              device,
		BaudRate:              uint(baud),
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
	}

	port, err := serial.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open gps serial %s: %w", device, err)
	}
	log.Printf("gps: serial port opened on %s at %d baud", device, baud)
	return newSerialSource(port), nil
}

func newSerialSource(port io.ReadCloser) *SerialSource {
	s := &SerialSource{
		port:  port,
		bytes: make(chan byte, rxBuffer),
	}
	go s.pump()
	return s
}

func (s *SerialSource) pump() {
	buf := make([]byte, 256)
	overflow := false
	for {
		n, err := s.port.Read(buf)
		for _, b := range buf[:n] {
			select {
			case s.bytes <- b:
				overflow = false
			default:
				if !overflow {
					log.Printf("gps: receive buffer full (%d bytes), dropping input", rxBuffer)
					overflow = true
				}
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				log.Printf("gps: serial read error: %v", err)
			}
			return
		}
	}
}

// Buffered returns the number of bytes waiting to be read.
func (s *SerialSource) Buffered() int {
	return len(s.bytes)
}

// ReadByte returns the next buffered byte without blocking.
func (s *SerialSource) ReadByte() (byte, error) {
	select {
	case b := <-s.bytes:
		return b, nil
	default:
		return 0, ErrEmpty
	}
}

// Close closes the port. The reader goroutine exits on its next read.
func (s *SerialSource) Close() error {
	return s.port.Close()
}
