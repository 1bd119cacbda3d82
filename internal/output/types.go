// internal/output/types.go - Output handling types
package output

import (
	"fmt"
	"io"
	"time"

	"github.com/valpere/tiledeck/internal/archive"
	"github.com/valpere/tiledeck/internal/telemetry"
)

// Format represents the output formats the inspect command supports
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Report is the inspect command's view of one archive: its MBTiles
// metadata plus, when the archive carries an embedded run summary, the
// per-zoom telemetry from the run that produced it.
type Report struct {
	ArchivePath string
	Metadata    archive.Metadata
	Summary     *telemetry.Summary
}

// OutputConfig represents configuration for output handling
type OutputConfig struct {
	Format      Format
	Destination string
	Pretty      bool
	Compression bool
}

// Writer defines the interface for writing inspect reports to various destinations
type Writer interface {
	Write(report *Report) error
	WriteBatch(reports []*Report) error
	Close() error
}

// Formatter defines the interface for rendering reports into an output format
type Formatter interface {
	Format(report *Report) ([]byte, error)
	FormatBatch(reports []*Report) ([]byte, error)
	ContentType() string
}

// Destination represents an output destination (file, stdout, etc.)
type Destination interface {
	io.WriteCloser
	Name() string
	Size() int64
}

// WriteResult represents the result of a write operation
type WriteResult struct {
	BytesWritten int64
	Duration     time.Duration
	Error        error
}

// WriterConfig contains configuration for creating writers
type WriterConfig struct {
	Format      Format
	Pretty      bool
	Compression bool
	BaseDir     string
}

// FormatterConfig contains configuration for creating formatters
type FormatterConfig struct {
	Format Format
	Pretty bool
}

// NewOutputConfig creates a new output configuration with default values
func NewOutputConfig() *OutputConfig {
	return &OutputConfig{
		Format:      FormatText,
		Pretty:      true,
		Compression: false,
	}
}

// Validate validates the output configuration
func (c *OutputConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}
	return nil
}

// String returns a string representation of the format
func (f Format) String() string {
	return string(f)
}

// IsValid checks if the format is supported
func (f Format) IsValid() bool {
	switch f {
	case FormatJSON, FormatText:
		return true
	default:
		return false
	}
}
