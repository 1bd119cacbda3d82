// internal/output/writer.go - Output writing implementation
package output

import (
	"fmt"
	"os"
	"path/filepath"
)

// FileWriter writes inspect output to a single file
type FileWriter struct {
	formatter   Formatter
	destination Destination
}

// NewFileWriter creates a new file-based writer
func NewFileWriter(config *WriterConfig, destination string) (*FileWriter, error) {
	formatter, err := NewFormatter(&FormatterConfig{Format: config.Format, Pretty: config.Pretty})
	if err != nil {
		return nil, fmt.Errorf("failed to create formatter: %w", err)
	}

	dest, err := newFileDestination(destination)
	if err != nil {
		return nil, fmt.Errorf("failed to create file destination: %w", err)
	}

	return &FileWriter{formatter: formatter, destination: dest}, nil
}

// Write writes a single report to the output destination
func (w *FileWriter) Write(report *Report) error {
	data, err := w.formatter.Format(report)
	if err != nil {
		return fmt.Errorf("formatting failed: %w", err)
	}
	_, err = w.destination.Write(data)
	if err != nil {
		return fmt.Errorf("write failed: %w", err)
	}
	return nil
}

// WriteBatch writes multiple reports as one batch operation
func (w *FileWriter) WriteBatch(reports []*Report) error {
	data, err := w.formatter.FormatBatch(reports)
	if err != nil {
		return fmt.Errorf("batch formatting failed: %w", err)
	}
	_, err = w.destination.Write(data)
	if err != nil {
		return fmt.Errorf("batch write failed: %w", err)
	}
	return nil
}

// Close closes the writer and underlying destination
func (w *FileWriter) Close() error {
	return w.destination.Close()
}

// StdoutWriter writes inspect output to standard output
type StdoutWriter struct {
	formatter Formatter
}

// NewStdoutWriter creates a new stdout-based writer
func NewStdoutWriter(format Format, pretty bool) (*StdoutWriter, error) {
	formatter, err := NewFormatter(&FormatterConfig{Format: format, Pretty: pretty})
	if err != nil {
		return nil, fmt.Errorf("failed to create formatter: %w", err)
	}
	return &StdoutWriter{formatter: formatter}, nil
}

// Write writes a single report to stdout
func (w *StdoutWriter) Write(report *Report) error {
	data, err := w.formatter.Format(report)
	if err != nil {
		return fmt.Errorf("formatting failed: %w", err)
	}
	if _, err := os.Stdout.Write(data); err != nil {
		return fmt.Errorf("write to stdout failed: %w", err)
	}
	_, err = os.Stdout.Write([]byte("\n"))
	return err
}

// WriteBatch writes multiple reports to stdout
func (w *StdoutWriter) WriteBatch(reports []*Report) error {
	data, err := w.formatter.FormatBatch(reports)
	if err != nil {
		return fmt.Errorf("batch formatting failed: %w", err)
	}
	if _, err := os.Stdout.Write(data); err != nil {
		return fmt.Errorf("batch write to stdout failed: %w", err)
	}
	_, err = os.Stdout.Write([]byte("\n"))
	return err
}

// Close is a no-op for stdout writer
func (w *StdoutWriter) Close() error {
	return nil
}

// fileDestination implements the Destination interface for file output
type fileDestination struct {
	file *os.File
	name string
	size int64
}

// newFileDestination creates a new file destination
func newFileDestination(path string) (*fileDestination, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	return &fileDestination{file: file, name: path}, nil
}

// Write implements io.Writer
func (d *fileDestination) Write(p []byte) (n int, err error) {
	n, err = d.file.Write(p)
	d.size += int64(n)
	return n, err
}

// Close implements io.Closer
func (d *fileDestination) Close() error {
	return d.file.Close()
}

// Name returns the destination file path
func (d *fileDestination) Name() string {
	return d.name
}

// Size returns the number of bytes written
func (d *fileDestination) Size() int64 {
	return d.size
}

// NewWriter creates the appropriate writer based on configuration
func NewWriter(config *WriterConfig, destination string) (Writer, error) {
	if destination == "" || destination == "-" {
		return NewStdoutWriter(config.Format, config.Pretty)
	}
	return NewFileWriter(config, destination)
}
