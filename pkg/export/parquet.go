package export

import (
	"fmt"
	"io"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet"
	"github.com/apache/arrow/go/v14/parquet/compress"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"

	"github.com/logflow/hminer/pkg/heuristics"
)

// CompressionType represents Parquet compression options.
type CompressionType uint8

const (
	CompressionNone CompressionType = iota
	CompressionSnappy
	CompressionGzip
	CompressionZstd
)

// ParseCompression parses a compression type string.
func ParseCompression(s string) CompressionType {
	switch s {
	case "snappy":
		return CompressionSnappy
	case "gzip":
		return CompressionGzip
	case "zstd":
		return CompressionZstd
	default:
		return CompressionNone
	}
}

func (c CompressionType) codec() compress.Compression {
	switch c {
	case CompressionSnappy:
		return compress.Codecs.Snappy
	case CompressionGzip:
		return compress.Codecs.Gzip
	case CompressionZstd:
		return compress.Codecs.Zstd
	default:
		return compress.Codecs.Uncompressed
	}
}

// ParquetConfig holds Parquet output options.
type ParquetConfig struct {
	Compression CompressionType
}

// DefaultParquetConfig returns snappy-compressed output.
func DefaultParquetConfig() ParquetConfig {
	return ParquetConfig{Compression: CompressionSnappy}
}

// edgeSchema is one row per edge. frequency is the directly-follows count
// of the pair and dependency its score, null when the pair was filtered out.
func edgeSchema() *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: "source", Type: arrow.BinaryTypes.String, Nullable: false},
		{Name: "target", Type: arrow.BinaryTypes.String, Nullable: false},
		{Name: "weight", Type: arrow.PrimitiveTypes.Float64, Nullable: false},
		{Name: "loop", Type: arrow.FixedWidthTypes.Boolean, Nullable: false},
		{Name: "frequency", Type: arrow.PrimitiveTypes.Int64, Nullable: false},
		{Name: "dependency", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
	}, nil)
}

// WriteParquet writes the edges of result as a single-row-group Parquet file.
func WriteParquet(w io.Writer, result *heuristics.Result, cfg ParquetConfig) error {
	allocator := memory.NewGoAllocator()
	schema := edgeSchema()

	writerProps := parquet.NewWriterProperties(
		parquet.WithCompression(cfg.Compression.codec()),
		parquet.WithDictionaryDefault(true),
	)
	arrowProps := pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema())

	writer, err := pqarrow.NewFileWriter(schema, w, writerProps, arrowProps)
	if err != nil {
		return fmt.Errorf("failed to create parquet writer: %w", err)
	}

	b := array.NewRecordBuilder(allocator, schema)
	defer b.Release()

	sources := b.Field(0).(*array.StringBuilder)
	targets := b.Field(1).(*array.StringBuilder)
	weights := b.Field(2).(*array.Float64Builder)
	loops := b.Field(3).(*array.BooleanBuilder)
	freqs := b.Field(4).(*array.Int64Builder)
	deps := b.Field(5).(*array.Float64Builder)

	for _, e := range result.Edges {
		sources.Append(e.Source)
		targets.Append(e.Target)
		weights.Append(e.Weight)
		loops.Append(e.Loop)

		freqs.Append(e.Frequency)
		if e.Dependency != nil {
			deps.Append(*e.Dependency)
		} else {
			deps.AppendNull()
		}
	}

	record := b.NewRecord()
	defer record.Release()

	if err := writer.Write(record); err != nil {
		writer.Close()
		return fmt.Errorf("failed to write record batch: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close parquet writer: %w", err)
	}
	return nil
}
