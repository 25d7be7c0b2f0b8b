package pipeline

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/aluiziolira/go-scrape-categories/models"
	"github.com/aluiziolira/go-scrape-categories/parser"
)

// SinkError reports a failure creating or writing a category output file.
type SinkError struct {
	Path string
	Err  error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("sink %s: %v", e.Path, e.Err)
}

func (e *SinkError) Unwrap() error {
	return e.Err
}

// NewCategoryWriter opens the output for one category inside dir, truncating
// any previous output of the same name.
func NewCategoryWriter(format, dir, category string) (OutputWriter, error) {
	base := filepath.Join(dir, parser.OutputBaseName(category))
	switch format {
	case "csv":
		return NewCSVWriter(base + ".csv")
	case "json":
		return NewJSONWriter(base + ".jsonl")
	case "dual":
		return NewDualWriter(base+".csv", base+".jsonl")
	default:
		return nil, &SinkError{Path: base, Err: fmt.Errorf("unsupported format: %s", format)}
	}
}

// CSVWriter writes records to CSV.
type CSVWriter struct {
	path   string
	file   *os.File
	writer *csv.Writer
	mu     sync.Mutex
}

// NewCSVWriter initialises a CSV writer and writes the header row.
func NewCSVWriter(filename string) (*CSVWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, &SinkError{Path: filename, Err: err}
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, &SinkError{Path: filename, Err: fmt.Errorf("create csv file: %w", err)}
	}

	writer := csv.NewWriter(f)
	if err := writer.Write(models.Header()); err != nil {
		f.Close()
		return nil, &SinkError{Path: filename, Err: fmt.Errorf("write csv header: %w", err)}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		f.Close()
		return nil, &SinkError{Path: filename, Err: fmt.Errorf("flush csv header: %w", err)}
	}

	return &CSVWriter{
		path:   filename,
		file:   f,
		writer: writer,
	}, nil
}

// Write appends records to the CSV output and flushes them to disk.
func (cw *CSVWriter) Write(records []*models.ItemRecord) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	for _, record := range records {
		if err := cw.writer.Write(record.Row()); err != nil {
			return &SinkError{Path: cw.path, Err: fmt.Errorf("write csv record: %w", err)}
		}
	}
	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return &SinkError{Path: cw.path, Err: fmt.Errorf("flush csv records: %w", err)}
	}
	return nil
}

// Close flushes and closes the file handle.
func (cw *CSVWriter) Close() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		cw.file.Close()
		return &SinkError{Path: cw.path, Err: fmt.Errorf("flush csv writer: %w", err)}
	}
	if err := cw.file.Close(); err != nil {
		return &SinkError{Path: cw.path, Err: err}
	}
	return nil
}

// Validate ensures the file holds at least the header row.
func (cw *CSVWriter) Validate() error {
	info, err := os.Stat(cw.path)
	if err != nil {
		return fmt.Errorf("stat csv file: %w", err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("csv file is empty")
	}
	return nil
}

// JSONWriter writes newline-delimited JSON records.
type JSONWriter struct {
	path    string
	file    *os.File
	writer  *bufio.Writer
	encoder *json.Encoder
	mu      sync.Mutex
}

// NewJSONWriter initialises the JSON writer.
func NewJSONWriter(filename string) (*JSONWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, &SinkError{Path: filename, Err: err}
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, &SinkError{Path: filename, Err: fmt.Errorf("create json file: %w", err)}
	}

	buffer := bufio.NewWriter(f)
	return &JSONWriter{
		path:    filename,
		file:    f,
		writer:  buffer,
		encoder: json.NewEncoder(buffer),
	}, nil
}

// Write appends records in JSONL format.
func (jw *JSONWriter) Write(records []*models.ItemRecord) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	for _, record := range records {
		if err := jw.encoder.Encode(record); err != nil {
			return &SinkError{Path: jw.path, Err: fmt.Errorf("encode json record: %w", err)}
		}
	}

	if err := jw.writer.Flush(); err != nil {
		return &SinkError{Path: jw.path, Err: fmt.Errorf("flush json writer: %w", err)}
	}

	return nil
}

// Close flushes buffers and closes the underlying file.
func (jw *JSONWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if err := jw.writer.Flush(); err != nil {
		jw.file.Close()
		return &SinkError{Path: jw.path, Err: fmt.Errorf("flush json writer: %w", err)}
	}
	if err := jw.file.Close(); err != nil {
		return &SinkError{Path: jw.path, Err: err}
	}
	return nil
}

// Validate ensures the JSON file exists. A category without items yields an
// empty file, which is valid.
func (jw *JSONWriter) Validate() error {
	if _, err := os.Stat(jw.path); err != nil {
		return fmt.Errorf("stat json file: %w", err)
	}
	return nil
}

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
