// Package parser reads event logs (CSV, XES, JSONL, XLSX) into model events.
//
// Parsers are strict: a record without a case id, an activity or a valid
// timestamp stops parsing with a validation error, so no partial log ever
// reaches discovery.
package parser

import (
	"context"
	"io"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/logflow/hminer/internal/model"
)

// Parser defines the interface for parsing event log formats.
type Parser interface {
	// Parse reads from r and sends parsed events to out.
	// It should respect context cancellation.
	// The caller is responsible for closing the out channel.
	Parse(ctx context.Context, r io.Reader, out chan<- *model.Event) error
}

// Format represents a supported input format.
type Format uint8

const (
	FormatUnknown Format = iota
	FormatCSV
	FormatXES
	FormatJSONL
	FormatXLSX
	FormatParquet
)

// String returns the format name.
func (f Format) String() string {
	switch f {
	case FormatCSV:
		return "csv"
	case FormatXES:
		return "xes"
	case FormatJSONL:
		return "jsonl"
	case FormatXLSX:
		return "xlsx"
	case FormatParquet:
		return "parquet"
	default:
		return "unknown"
	}
}

// ParseFormat parses a format string.
func ParseFormat(s string) Format {
	switch strings.ToLower(s) {
	case "csv", "tsv":
		return FormatCSV
	case "xes":
		return FormatXES
	case "json", "jsonl", "ndjson":
		return FormatJSONL
	case "xlsx", "excel":
		return FormatXLSX
	case "parquet", "pq":
		return FormatParquet
	default:
		return FormatUnknown
	}
}

// DetectFormat guesses the format from a file name. A trailing ".gz" is ignored.
func DetectFormat(path string) Format {
	path = strings.TrimSuffix(strings.ToLower(path), ".gz")
	return ParseFormat(strings.TrimPrefix(filepath.Ext(path), "."))
}

// Config holds common parser configuration.
type Config struct {
	// BufferSize is the size of the read buffer in bytes.
	BufferSize int `yaml:"buffer_size"`

	// CaseIDColumn is the name of the case id column (CSV, JSONL, XLSX).
	CaseIDColumn string `yaml:"case_id"`

	// ActivityColumn is the name of the activity column.
	ActivityColumn string `yaml:"activity"`

	// TimestampColumn is the name of the timestamp column.
	TimestampColumn string `yaml:"timestamp"`

	// ResourceColumn is the name of the optional resource column.
	ResourceColumn string `yaml:"resource"`

	// TimestampFormat is tried before the built-in layouts (Go time layout).
	TimestampFormat string `yaml:"timestamp_format"`

	// Delimiter is the field delimiter for CSV (default: comma).
	Delimiter byte `yaml:"-"`
}

// DefaultConfig returns a Config using the XES standard attribute names.
func DefaultConfig() Config {
	return Config{
		BufferSize:      64 * 1024,
		CaseIDColumn:    "case:concept:name",
		ActivityColumn:  "concept:name",
		TimestampColumn: "time:timestamp",
		ResourceColumn:  "org:resource",
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		Delimiter:       ',',
	}
}

// NewParser creates a parser for the given format.
func NewParser(format Format, cfg Config) (Parser, error) {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultConfig().BufferSize
	}
	if cfg.Delimiter == 0 {
		cfg.Delimiter = ','
	}
	switch format {
	case FormatCSV:
		return NewCSVParser(cfg), nil
	case FormatXES:
		return NewXESParser(cfg), nil
	case FormatJSONL:
		return NewJSONLParser(cfg), nil
	case FormatXLSX:
		return NewXLSXParser(cfg), nil
	default:
		return nil, ErrUnsupportedFormat
	}
}

// ReadLog runs p over r and collects every event into a log.
func ReadLog(ctx context.Context, p Parser, r io.Reader) (*model.Log, error) {
	out := make(chan *model.Event, 1024)
	log := model.NewLog()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(out)
		return p.Parse(ctx, r, out)
	})
	g.Go(func() error {
		for e := range out {
			log.Append(*e)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return log, nil
}
