// internal/output/formatter.go - Output formatting implementation
package output

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// JSONFormatter formats inspect reports as structured JSON objects
type JSONFormatter struct {
	pretty bool
}

// NewJSONFormatter creates a new JSON formatter
func NewJSONFormatter(pretty bool) *JSONFormatter {
	return &JSONFormatter{pretty: pretty}
}

// Format formats a single report as a JSON object
func (f *JSONFormatter) Format(report *Report) ([]byte, error) {
	if f.pretty {
		return json.MarshalIndent(report, "", "  ")
	}
	return json.Marshal(report)
}

// FormatBatch formats multiple reports as a JSON object holding the
// reports array, their count and a generation timestamp
func (f *JSONFormatter) FormatBatch(reports []*Report) ([]byte, error) {
	output := map[string]interface{}{
		"archives":     reports,
		"archiveCount": len(reports),
		"generatedAt":  time.Now().UTC(),
	}
	if f.pretty {
		return json.MarshalIndent(output, "", "  ")
	}
	return json.Marshal(output)
}

// ContentType returns the MIME type for JSON
func (f *JSONFormatter) ContentType() string {
	return "application/json"
}

// TextFormatter renders reports as a human-readable summary
type TextFormatter struct{}

// NewTextFormatter creates a new text formatter
func NewTextFormatter() *TextFormatter {
	return &TextFormatter{}
}

// Format renders a single report as text
func (f *TextFormatter) Format(report *Report) ([]byte, error) {
	var b strings.Builder
	writeReport(&b, report)
	return []byte(b.String()), nil
}

// FormatBatch renders multiple reports as text, separated by blank lines
func (f *TextFormatter) FormatBatch(reports []*Report) ([]byte, error) {
	var b strings.Builder
	for i, r := range reports {
		if i > 0 {
			b.WriteString("\n")
		}
		writeReport(&b, r)
	}
	return []byte(b.String()), nil
}

// ContentType returns the MIME type for plain text
func (f *TextFormatter) ContentType() string {
	return "text/plain"
}

func writeReport(b *strings.Builder, report *Report) {
	m := report.Metadata
	fmt.Fprintf(b, "archive: %s\n", report.ArchivePath)
	fmt.Fprintf(b, "  name:        %s\n", m.Name)
	fmt.Fprintf(b, "  description: %s\n", m.Description)
	fmt.Fprintf(b, "  zoom range:  %d-%d\n", m.MinZoom, m.MaxZoom)
	fmt.Fprintf(b, "  bounds:      %g,%g,%g,%g\n", m.Bounds[0], m.Bounds[1], m.Bounds[2], m.Bounds[3])
	fmt.Fprintf(b, "  center:      %g,%g,%g\n", m.Center[0], m.Center[1], m.Center[2])

	if report.Summary == nil {
		return
	}
	s := report.Summary
	fmt.Fprintf(b, "  features processed: %d\n", s.FeaturesProcessed)
	fmt.Fprintf(b, "  memoized tiles:      %d\n", s.MemoizedTiles)
	fmt.Fprintf(b, "  total tiles:         %d\n", s.TotalTiles)
	fmt.Fprintf(b, "  max tile size:       %d bytes\n", s.MaxMax)
	for _, zs := range s.PerZoom {
		fmt.Fprintf(b, "    zoom %2d: avg %8d bytes, max %8d bytes\n", zs.Zoom, zs.Avg, zs.Max)
	}
}

// NewFormatter creates a formatter based on the specified configuration
func NewFormatter(config *FormatterConfig) (Formatter, error) {
	switch config.Format {
	case FormatJSON:
		return NewJSONFormatter(config.Pretty), nil
	case FormatText:
		return NewTextFormatter(), nil
	default:
		return nil, fmt.Errorf("unsupported format: %s", config.Format)
	}
}

// FormatSingle is a convenience function to format a single report
func FormatSingle(report *Report, format Format, pretty bool) ([]byte, error) {
	formatter, err := NewFormatter(&FormatterConfig{Format: format, Pretty: pretty})
	if err != nil {
		return nil, err
	}
	return formatter.Format(report)
}

// FormatBatch is a convenience function to format multiple reports
func FormatBatch(reports []*Report, format Format, pretty bool) ([]byte, error) {
	formatter, err := NewFormatter(&FormatterConfig{Format: format, Pretty: pretty})
	if err != nil {
		return nil, err
	}
	return formatter.FormatBatch(reports)
}
