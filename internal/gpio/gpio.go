// Package gpio reads the maintenance button with hardware abstraction.
// The real implementation uses Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import (
	"log"
	"time"
)

// Reader reads the button state.
type Reader interface {
	// Pressed returns the logical button state. The line is active low:
	// a raw 0 reads as pressed.
	Pressed() (bool, error)

	// Close releases GPIO resources.
	Close() error
}

// Defaults for the user button.
const (
	DefaultChip = "gpiochip0"
	DefaultLine = 17 // BCM numbering
)

// HeldFor reports whether the button is pressed now and stays pressed for
// hold, sampling it every poll. sleep is injected for tests.
func HeldFor(btn Reader, hold, poll time.Duration, sleep func(time.Duration)) (bool, error) {
	pressed, err := btn.Pressed()
	if err != nil || !pressed {
		return false, err
	}
	if poll <= 0 {
		poll = hold
	}

	log.Printf("maintenance: keep button pressed for %v to erase storage", hold)
	for elapsed := time.Duration(0); elapsed < hold; elapsed += poll {
		sleep(poll)
		pressed, err := btn.Pressed()
		if err != nil {
			return false, err
		}
		if !pressed {
			log.Printf("maintenance: button released, erase aborted")
			return false, nil
		}
	}
	return true, nil
}
