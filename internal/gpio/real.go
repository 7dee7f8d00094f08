//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealReader reads the button from actual hardware using Linux GPIO character device.
type RealReader struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

// NewRealReader requests the button line on the named chip.
func NewRealReader(chipName string, offset int) (*RealReader, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", chipName, err)
	}

	// The button shorts the line to ground, so bias it high.
	line, err := chip.RequestLine(offset, gpiocdev.AsInput, gpiocdev.WithPullUp, gpiocdev.AsActiveLow)
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request button line %d: %w", offset, err)
	}

	return &RealReader{chip: chip, line: line}, nil
}

// Pressed returns true while the button holds the line low.
func (r *RealReader) Pressed() (bool, error) {
	v, err := r.line.Value()
	if err != nil {
		return false, fmt.Errorf("read button line: %w", err)
	}
	// AsActiveLow inverts the raw level.
	return v == 1, nil
}

// Close releases GPIO resources.
func (r *RealReader) Close() error {
	var errs []error

	if r.line != nil {
		if err := r.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close button line: %w", err))
		}
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
