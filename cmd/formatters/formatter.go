package formatters

import (
	"errors"
	"fmt"
)

// Format type constants
const (
	FormatParquet = "parquet"
	FormatCSV     = "csv"
	FormatJSONL   = "jsonl"
)

// ErrUnsupportedFormat is returned when an unsupported output format is
// requested. Callers treat this as a configuration error and must not have
// run any query yet.
var ErrUnsupportedFormat = errors.New("unsupported output format")

// Formatter defines the interface for output format handlers
type Formatter interface {
	// Format converts database rows to the target format
	Format(rows []map[string]interface{}) ([]byte, error)

	// Extension returns the file extension for this format (e.g., ".jsonl", ".csv", ".parquet")
	Extension() string

	// MIMEType returns the MIME type for this format
	MIMEType() string
}

// GetFormatter returns the appropriate formatter based on the format string
func GetFormatter(format string) (Formatter, error) {
	switch format {
	case FormatJSONL:
		return NewJSONLFormatter(), nil
	case FormatCSV:
		return NewCSVFormatter(), nil
	case FormatParquet:
		return NewParquetFormatter(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

// GetFormatterWithCompression returns the appropriate formatter with compression settings.
// For Parquet, this enables internal compression. For other formats, the compression
// parameter is ignored; they are compressed after formatting.
func GetFormatterWithCompression(format string, compression string) (Formatter, error) {
	if format == FormatParquet {
		return NewParquetFormatterWithCompression(compression), nil
	}
	return GetFormatter(format)
}

// UsesInternalCompression returns true if the format handles compression internally
func UsesInternalCompression(format string) bool {
	return format == FormatParquet
}
