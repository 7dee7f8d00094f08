package store

import (
	"encoding/csv"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/sweeney/lora-logger/internal/logic"
)

// syncFs counts Sync calls on every file it opens.
type syncFs struct {
	afero.Fs
	syncs *int
}

func (s syncFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	f, err := s.Fs.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}
	return syncFile{File: f, syncs: s.syncs}, nil
}

type syncFile struct {
	afero.File
	syncs *int
}

func (f syncFile) Sync() error {
	*f.syncs++
	return f.File.Sync()
}

// readOnlyFs rejects every file creation.
type readOnlyFs struct {
	afero.Fs
}

func (readOnlyFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	return nil, os.ErrPermission
}

func touch(t *testing.T, fs afero.Fs, n int) {
	t.Helper()
	if err := afero.WriteFile(fs, FileName(n), []byte(Header+"\n"), 0o644); err != nil {
		t.Fatalf("create %s: %v", FileName(n), err)
	}
}

func readLines(t *testing.T, fs afero.Fs, path string) []string {
	t.Helper()
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
}

// parseRow splits a row the way a CSV consumer would.
func parseRow(t *testing.T, line string) []string {
	t.Helper()
	r := csv.NewReader(strings.NewReader(line))
	r.TrimLeadingSpace = true
	fields, err := r.Read()
	if err != nil {
		t.Fatalf("parse %q: %v", line, err)
	}
	return fields
}

func sampleRecord() logic.Record {
	return logic.Record{
		Time:       time.Date(2026, 6, 15, 12, 0, 2, 0, time.UTC),
		Satellites: 7,
		FixAge:     1500,
		Lat:        52.5,
		Lon:        13.375,
		Alt:        34.5,
		Seq:        1,
		Length:     10,
		RSSI:       -57,
		SNR:        9.25,
		FreqError:  -536,
		Payload:    "0123456789",
	}
}

func TestFileName(t *testing.T) {
	if got := FileName(7); got != "/recv_0007.csv" {
		t.Errorf("unexpected name: %q", got)
	}
}

func TestOpenFirstFile(t *testing.T) {
	fs := afero.NewMemMapFs()

	s, err := Open(fs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer s.Close()

	if s.Path() != "/recv_0001.csv" {
		t.Errorf("path: got %q, want /recv_0001.csv", s.Path())
	}
	lines := readLines(t, fs, s.Path())
	if len(lines) != 1 || lines[0] != Header {
		t.Errorf("expected header only, got %q", lines)
	}
}

func TestOpenAfterSequentialFiles(t *testing.T) {
	fs := afero.NewMemMapFs()
	for n := 1; n <= 3; n++ {
		touch(t, fs, n)
	}

	s, err := Open(fs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Path() != FileName(4) {
		t.Errorf("path: got %q, want %q", s.Path(), FileName(4))
	}
}

func TestOpenPicksLowestGap(t *testing.T) {
	fs := afero.NewMemMapFs()
	// Created out of order, with 3 missing.
	for _, n := range []int{5, 1, 4, 2} {
		touch(t, fs, n)
	}

	s, err := Open(fs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Path() != FileName(3) {
		t.Errorf("path: got %q, want %q", s.Path(), FileName(3))
	}
}

func TestOpenIgnoresOtherFiles(t *testing.T) {
	fs := afero.NewMemMapFs()
	afero.WriteFile(fs, "/index.html", []byte("x"), 0o644)
	afero.WriteFile(fs, "/recv_1.csv", []byte("x"), 0o644)

	s, err := Open(fs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Path() != FileName(1) {
		t.Errorf("path: got %q, want %q", s.Path(), FileName(1))
	}
}

func TestOpenFailure(t *testing.T) {
	_, err := Open(readOnlyFs{afero.NewMemMapFs()})
	if !errors.Is(err, os.ErrPermission) {
		t.Errorf("expected permission error, got %v", err)
	}
}

func TestFormatRecord(t *testing.T) {
	got := FormatRecord(sampleRecord())
	want := `2026-06-15 12:00:02, 7, 1500, 52.500000, 13.375000, 34.500000, 1, 10, -57, 9.250000, -536, "0123456789"`
	if got != want {
		t.Errorf("got  %s\nwant %s", got, want)
	}
}

func TestFormatKeepaliveRecord(t *testing.T) {
	rec := logic.Record{
		Time:   time.Date(2026, 6, 15, 12, 1, 0, 0, time.UTC),
		FixAge: logic.NoFixAge,
	}
	got := FormatRecord(rec)
	want := `2026-06-15 12:01:00, 0, -1, 0.000000, 0.000000, 0.000000, 0, 0, 0, 0.000000, 0, ""`
	if got != want {
		t.Errorf("got  %s\nwant %s", got, want)
	}
}

func TestFieldCountMatchesHeader(t *testing.T) {
	header := parseRow(t, Header)
	if len(header) != 12 {
		t.Fatalf("header has %d fields, want 12", len(header))
	}

	keepalive := logic.Record{Time: time.Date(2026, 6, 15, 12, 1, 0, 0, time.UTC)}
	tricky := sampleRecord()
	tricky.Payload = `a, "quoted" b`

	for name, rec := range map[string]logic.Record{
		"packet":    sampleRecord(),
		"keepalive": keepalive,
		"tricky":    tricky,
	} {
		fields := parseRow(t, FormatRecord(rec))
		if len(fields) != len(header) {
			t.Errorf("%s: %d fields, header has %d", name, len(fields), len(header))
		}
	}
}

func TestPayloadEscaping(t *testing.T) {
	rec := sampleRecord()
	rec.Payload = "say \"hi\"\r\nbye"

	line := FormatRecord(rec)
	if strings.ContainsAny(line, "\r\n") {
		t.Errorf("row must stay on one line: %q", line)
	}
	fields := parseRow(t, line)
	if got := fields[len(fields)-1]; got != `say "hi"  bye` {
		t.Errorf("payload: got %q", got)
	}
}

func TestAppendSyncsEachRecord(t *testing.T) {
	syncs := 0
	fs := syncFs{Fs: afero.NewMemMapFs(), syncs: &syncs}

	s, err := Open(fs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if syncs != 1 {
		t.Errorf("expected header to be synced, got %d syncs", syncs)
	}

	for i := 0; i < 3; i++ {
		if err := s.Append(sampleRecord()); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		if syncs != i+2 {
			t.Errorf("append %d: expected %d syncs, got %d", i, i+2, syncs)
		}
	}

	lines := readLines(t, fs, s.Path())
	if len(lines) != 4 {
		t.Fatalf("expected 4 lines, got %d", len(lines))
	}
	for _, l := range lines[1:] {
		if l != FormatRecord(sampleRecord()) {
			t.Errorf("unexpected row: %q", l)
		}
	}
}

func TestDisengagedStore(t *testing.T) {
	s := Disengaged()

	if s.Engaged() {
		t.Error("disengaged store should not be engaged")
	}
	if s.Path() != "" {
		t.Errorf("expected empty path, got %q", s.Path())
	}
	if err := s.Append(sampleRecord()); err != nil {
		t.Errorf("append on disengaged store should be a no-op, got %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("unexpected close error: %v", err)
	}
}

func TestErase(t *testing.T) {
	fs := afero.NewMemMapFs()
	touch(t, fs, 1)
	touch(t, fs, 2)
	fs.MkdirAll("/old/nested", 0o755)

	if err := Erase(fs); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	entries, err := afero.ReadDir(fs, "/")
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected empty root, got %d entries", len(entries))
	}

	s, err := Open(fs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Path() != FileName(1) {
		t.Errorf("expected numbering to restart, got %q", s.Path())
	}
}
