// Package sendlog appends per-attempt outcomes to a CSV file. The log is the
// system's only durability guarantee: every row is flushed and synced before
// the next record is processed, so a killed run loses at most the in-flight
// send.
package sendlog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"time"
)

// Status is the recorded outcome of one send attempt.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusFailure Status = "FAILURE"
)

// header is the fixed log schema; one row per attempted message.
var header = []string{"recipient", "status", "detail", "timestamp"}

// Entry is one log row.
type Entry struct {
	Recipient string
	Status    Status
	Detail    string
	Timestamp time.Time
}

// Writer appends entries to a CSV send log.
type Writer struct {
	file *os.File
	csv  *csv.Writer
}

// Open opens (or creates) the log at path for appending. The header row is
// written only when the file is new or empty, so re-running with the same
// log path extends the existing audit trail.
func Open(path string) (*Writer, error) {
	if path == "" {
		return nil, errors.New("sendlog: path is required")
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("sendlog: open %s: %w", path, err)
	}

	w := &Writer{
		file: file,
		csv:  csv.NewWriter(file),
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("sendlog: stat %s: %w", path, err)
	}
	if info.Size() == 0 {
		if err := w.writeRow(header); err != nil {
			file.Close()
			return nil, err
		}
	}

	return w, nil
}

// Append records one entry and makes it durable before returning.
func (w *Writer) Append(e Entry) error {
	row := []string{
		e.Recipient,
		string(e.Status),
		e.Detail,
		e.Timestamp.UTC().Format(time.RFC3339),
	}
	return w.writeRow(row)
}

func (w *Writer) writeRow(row []string) error {
	if err := w.csv.Write(row); err != nil {
		return fmt.Errorf("sendlog: write row: %w", err)
	}
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		return fmt.Errorf("sendlog: flush: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("sendlog: sync: %w", err)
	}
	return nil
}

// Close releases the underlying file.
func (w *Writer) Close() error {
	w.csv.Flush()
	return w.file.Close()
}
