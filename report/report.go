// Package report streams per-item run outcomes to CSV and JSONL files so a
// failed batch can be replayed from its report.
package report

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"bookenrich/models"
)

// Writer receives one outcome per processed identifier.
type Writer interface {
	Write(outcome models.ItemOutcome) error
	Close() error
}

// CSVWriter writes outcomes to CSV.
type CSVWriter struct {
	file   *os.File
	writer *csv.Writer
	mu     sync.Mutex
}

// NewCSVWriter initialises a CSV writer and writes the header row.
func NewCSVWriter(filename string) (*CSVWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create csv file: %w", err)
	}

	writer := csv.NewWriter(f)
	header := []string{"isbn", "state", "step", "error", "attempted_at"}
	if err := writer.Write(header); err != nil {
		f.Close()
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		f.Close()
		return nil, fmt.Errorf("flush csv header: %w", err)
	}

	return &CSVWriter{
		file:   f,
		writer: writer,
	}, nil
}

// Write appends one outcome row.
func (cw *CSVWriter) Write(outcome models.ItemOutcome) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	record := []string{
		outcome.ISBN,
		outcome.State,
		outcome.Step,
		outcome.Err,
		outcome.AttemptedAt.Format(time.RFC3339),
	}
	if err := cw.writer.Write(record); err != nil {
		return fmt.Errorf("write csv record: %w", err)
	}
	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv record: %w", err)
	}
	return nil
}

// Close flushes and closes the file handle.
func (cw *CSVWriter) Close() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv writer: %w", err)
	}
	return cw.file.Close()
}

// JSONLWriter writes newline-delimited JSON outcomes.
type JSONLWriter struct {
	file    *os.File
	writer  *bufio.Writer
	encoder *json.Encoder
	mu      sync.Mutex
}

// NewJSONLWriter initialises the JSONL writer.
func NewJSONLWriter(filename string) (*JSONLWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create jsonl file: %w", err)
	}

	buffer := bufio.NewWriter(f)
	return &JSONLWriter{
		file:    f,
		writer:  buffer,
		encoder: json.NewEncoder(buffer),
	}, nil
}

// Write appends one outcome line.
func (jw *JSONLWriter) Write(outcome models.ItemOutcome) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if err := jw.encoder.Encode(outcome); err != nil {
		return fmt.Errorf("encode jsonl record: %w", err)
	}
	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush jsonl writer: %w", err)
	}
	return nil
}

// Close flushes buffers and closes the underlying file.
func (jw *JSONLWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush jsonl writer: %w", err)
	}
	return jw.file.Close()
}

// DualWriter fans every outcome out to both a CSV and a JSONL file.
type DualWriter struct {
	csvWriter   *CSVWriter
	jsonlWriter *JSONLWriter
	mu          sync.Mutex
}

// NewDualWriter creates a writer pair for both formats.
func NewDualWriter(csvFilename, jsonlFilename string) (*DualWriter, error) {
	csvWriter, err := NewCSVWriter(csvFilename)
	if err != nil {
		return nil, fmt.Errorf("create csv writer: %w", err)
	}

	jsonlWriter, err := NewJSONLWriter(jsonlFilename)
	if err != nil {
		csvWriter.Close()
		return nil, fmt.Errorf("create jsonl writer: %w", err)
	}

	return &DualWriter{
		csvWriter:   csvWriter,
		jsonlWriter: jsonlWriter,
	}, nil
}

// Write sends the outcome to both formats.
func (dw *DualWriter) Write(outcome models.ItemOutcome) error {
	dw.mu.Lock()
	defer dw.mu.Unlock()

	if err := dw.csvWriter.Write(outcome); err != nil {
		return fmt.Errorf("csv write failed: %w", err)
	}
	if err := dw.jsonlWriter.Write(outcome); err != nil {
		return fmt.Errorf("jsonl write failed: %w", err)
	}
	return nil
}

// Close closes both writers.
func (dw *DualWriter) Close() error {
	dw.mu.Lock()
	defer dw.mu.Unlock()

	var errs []error
	if err := dw.csvWriter.Close(); err != nil {
		errs = append(errs, fmt.Errorf("csv close failed: %w", err))
	}
	if err := dw.jsonlWriter.Close(); err != nil {
		errs = append(errs, fmt.Errorf("jsonl close failed: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("multiple errors: %v", errs)
	}
	return nil
}

// Discard ignores every outcome. Used when no report was requested.
type Discard struct{}

func (Discard) Write(models.ItemOutcome) error { return nil }
func (Discard) Close() error                   { return nil }

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
