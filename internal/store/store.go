// Package store appends log records to a CSV file on the storage root.
//
// Each process writes exactly one file, named with the first unused
// sequence number. Every append is synced before it returns.
package store

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/afero"

	"github.com/sweeney/lora-logger/internal/logic"
)

// Header names every record column in file order.
const Header = "ts, gps_sat, gps_age, lat, lon, alt, cnt, len, rssi, snr, freq_err, msg"

// MaxIndex is the highest file sequence number.
const MaxIndex = 9999

const nameFormat = "/recv_%04d.csv"

// ErrNoFreeIndex is returned when every file name up to MaxIndex is taken.
var ErrNoFreeIndex = errors.New("store: no free log file index")

// FileName returns the log file path for sequence number n.
func FileName(n int) string {
	return fmt.Sprintf(nameFormat, n)
}

// Store owns the open log file.
type Store struct {
	path string
	f    afero.File
}

// Open creates the next log file on fs and writes the header.
func Open(fs afero.Fs) (*Store, error) {
	path, err := nextPath(fs)
	if err != nil {
		return nil, err
	}

	f, err := fs.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}

	s := &Store{path: path, f: f}
	if err := s.writeLine(Header); err != nil {
		f.Close()
		return nil, fmt.Errorf("write header: %w", err)
	}
	return s, nil
}

// Disengaged returns a store with no file. Appends succeed and write nothing.
func Disengaged() *Store {
	return &Store{}
}

// nextPath returns the first unused file name, starting from 1.
func nextPath(fs afero.Fs) (string, error) {
	for n := 1; n <= MaxIndex; n++ {
		path := FileName(n)
		exists, err := afero.Exists(fs, path)
		if err != nil {
			return "", fmt.Errorf("stat %s: %w", path, err)
		}
		if !exists {
			return path, nil
		}
	}
	return "", ErrNoFreeIndex
}

// Path returns the file path relative to the storage root, or "" when
// disengaged.
func (s *Store) Path() string {
	return s.path
}

// Engaged reports whether the store has an open file.
func (s *Store) Engaged() bool {
	return s.f != nil
}

// Append writes one record and syncs it to storage.
func (s *Store) Append(rec logic.Record) error {
	if s.f == nil {
		return nil
	}
	return s.writeLine(FormatRecord(rec))
}

func (s *Store) writeLine(line string) error {
	if _, err := s.f.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("write %s: %w", s.path, err)
	}
	if err := s.f.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", s.path, err)
	}
	return nil
}

// Close closes the file.
func (s *Store) Close() error {
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

// FormatRecord renders a record as one CSV row without the line terminator.
func FormatRecord(r logic.Record) string {
	return fmt.Sprintf("%s, %d, %d, %f, %f, %f, %d, %d, %d, %f, %d, \"%s\"",
		r.Timestamp(), r.Satellites, r.FixAge, r.Lat, r.Lon, r.Alt,
		r.Seq, r.Length, r.RSSI, r.SNR, r.FreqError, quote(r.Payload))
}

var payloadEscaper = strings.NewReplacer(`"`, `""`, "\r", " ", "\n", " ")

// quote escapes the payload for a double-quoted CSV field on a single line.
func quote(s string) string {
	return payloadEscaper.Replace(s)
}

// Erase removes everything on the storage root.
func Erase(fs afero.Fs) error {
	entries, err := afero.ReadDir(fs, "/")
	if err != nil {
		return fmt.Errorf("list storage: %w", err)
	}
	var errs []error
	for _, e := range entries {
		if err := fs.RemoveAll("/" + e.Name()); err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", e.Name(), err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("erase errors: %v", errs)
	}
	return nil
}
