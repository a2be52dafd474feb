package storage

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"sync"
)

// CSVHeader is the fixed column layout of the output file
var CSVHeader = []string{"url", "depth", "title", "status"}

// CSVSink appends one row per record to a delimited text file.
// Each row is flushed and synced before Record returns.
type CSVSink struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
	path   string
}

// NewCSVSink opens path for appending, creating it with the header when the
// file is new or empty. Existing content is never truncated.
func NewCSVSink(path string) (*CSVSink, error) {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open output file: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat output file: %w", err)
	}

	s := &CSVSink{
		file:   file,
		writer: csv.NewWriter(file),
		path:   path,
	}

	if info.Size() == 0 {
		if err := s.writeRow(CSVHeader); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to write header: %w", err)
		}
	}

	return s, nil
}

// Record appends rec as a single row
func (s *CSVSink) Record(rec PageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return fmt.Errorf("csv sink %s is closed", s.path)
	}

	row := []string{
		rec.URL,
		strconv.Itoa(rec.Depth),
		rec.TitleOrDefault(),
		strconv.Itoa(rec.Status),
	}
	if err := s.writeRow(row); err != nil {
		return fmt.Errorf("failed to write record for %s: %w", rec.URL, err)
	}
	return nil
}

// writeRow must be called with mu held (or before the sink is shared)
func (s *CSVSink) writeRow(row []string) error {
	if err := s.writer.Write(row); err != nil {
		return err
	}
	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		return err
	}
	return s.file.Sync()
}

// Path returns the destination file
func (s *CSVSink) Path() string {
	return s.path
}

// Close flushes and closes the file (safe to call multiple times)
func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}
	s.writer.Flush()
	flushErr := s.writer.Error()
	closeErr := s.file.Close()
	s.file = nil
	if flushErr != nil {
		return fmt.Errorf("failed to flush output file: %w", flushErr)
	}
	return closeErr
}
