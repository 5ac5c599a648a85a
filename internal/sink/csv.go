// Package sink streams labeled rows into per-batch CSV datasets.
package sink

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"github.com/JakeFAU/tweet-harvester/internal/metrics"
)

// Header is the first row of every label file.
var Header = []string{"Factual/False", "content string"}

// CSVSink appends (tag, text) rows to one file and makes them durable every
// flushEvery rows. It is not safe for concurrent use; callers serialize.
type CSVSink struct {
	path       string
	label      string
	tag        string
	flushEvery int

	file    *os.File
	writer  *csv.Writer
	rows    int
	pending int
	flushes int
	closed  bool
}

// Open truncates path, writes the header, and returns a sink tagging every
// row with tag. label names the sink in metrics.
func Open(path, label, tag string, flushEvery int) (*CSVSink, error) {
	if flushEvery <= 0 {
		return nil, fmt.Errorf("flush threshold must be > 0, got %d", flushEvery)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create sink dir for %s: %w", path, err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open sink %s: %w", path, err)
	}
	s := &CSVSink{
		path:       path,
		label:      label,
		tag:        tag,
		flushEvery: flushEvery,
		file:       f,
		writer:     csv.NewWriter(f),
	}
	if err := s.writer.Write(Header); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("write sink header %s: %w", path, err)
	}
	return s, nil
}

// Append writes one row and flushes once flushEvery rows are pending.
func (s *CSVSink) Append(text string) error {
	if s.closed {
		return fmt.Errorf("append to closed sink %s", s.path)
	}
	if err := s.writer.Write([]string{s.tag, text}); err != nil {
		return fmt.Errorf("write row to %s: %w", s.path, err)
	}
	s.rows++
	s.pending++
	metrics.ObserveRow(s.label)
	if s.pending >= s.flushEvery {
		return s.Flush()
	}
	return nil
}

// Flush pushes buffered rows to the file and syncs it.
func (s *CSVSink) Flush() error {
	if s.closed {
		return nil
	}
	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		return fmt.Errorf("flush %s: %w", s.path, err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", s.path, err)
	}
	s.pending = 0
	s.flushes++
	metrics.ObserveFlush(s.label)
	return nil
}

// Close flushes and closes the file. Calling Close twice is a no-op.
func (s *CSVSink) Close() error {
	if s.closed {
		return nil
	}
	flushErr := s.Flush()
	s.closed = true
	if err := s.file.Close(); err != nil {
		return fmt.Errorf("close %s: %w", s.path, err)
	}
	return flushErr
}

// Path returns the file location.
func (s *CSVSink) Path() string { return s.path }

// Rows returns the number of rows appended, excluding the header.
func (s *CSVSink) Rows() int { return s.rows }

// Flushes returns how many times the sink has been flushed.
func (s *CSVSink) Flushes() int { return s.flushes }
