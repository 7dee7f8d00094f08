package gps

import "sync"

// FakeSource is a test double that serves scripted GPS bytes.
type FakeSource struct {
	mu     sync.Mutex
	data   []byte
	Closed bool
}

// NewFakeSource creates a FakeSource with the given bytes buffered.
func NewFakeSource(data string) *FakeSource {
	return &FakeSource{data: []byte(data)}
}

// Feed appends bytes as if they had just arrived on the serial line.
func (f *FakeSource) Feed(data string) {
	f.mu.Lock()
	f.data = append(f.data, data...)
	f.mu.Unlock()
}

// Buffered returns the number of unread bytes.
func (f *FakeSource) Buffered() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.data)
}

// ReadByte returns the next scripted byte.
func (f *FakeSource) ReadByte() (byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.data) == 0 {
		return 0, ErrEmpty
	}
	b := f.data[0]
	f.data = f.data[1:]
	return b, nil
}

// Close marks the source as closed.
func (f *FakeSource) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}
