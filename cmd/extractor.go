package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/clustertools/cluster-transfer/cmd/compressors"
	"github.com/clustertools/cluster-transfer/cmd/formatters"
)

// ExtractionResult describes one successfully materialized chunk
type ExtractionResult struct {
	ChunkID  int
	FilePath string
	Rows     int
}

// Extractor executes one chunk query and writes the rows to a formatted,
// optionally compressed file. Stateless per invocation; safe for concurrent
// use across chunks.
type Extractor struct {
	executor         *QueryExecutor
	formatter        formatters.Formatter
	compressor       compressors.Compressor
	compressionLevel int
	internalCompress bool
	tempDir          string
	logger           *slog.Logger
}

// NewExtractor resolves the serialization stack for the configured format.
// Unsupported formats fail here, before any chunk query runs.
func NewExtractor(config *Config, executor *QueryExecutor, logger *slog.Logger) (*Extractor, error) {
	internal := formatters.UsesInternalCompression(config.OutputFormat)

	var formatter formatters.Formatter
	var err error
	if internal {
		formatter, err = formatters.GetFormatterWithCompression(config.OutputFormat, config.Compression)
	} else {
		formatter, err = formatters.GetFormatter(config.OutputFormat)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	var compressor compressors.Compressor
	if !internal {
		compressor, err = compressors.GetCompressor(config.Compression)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
		}
	}

	return &Extractor{
		executor:         executor,
		formatter:        formatter,
		compressor:       compressor,
		compressionLevel: config.CompressionLevel,
		internalCompress: internal,
		tempDir:          config.TempDir,
		logger:           logger,
	}, nil
}

// Run executes the chunk's query and materializes the rows to one file.
// Failures are logged with the chunk id and returned wrapped, never swallowed.
func (e *Extractor) Run(ctx context.Context, chunk ChunkSpec) (ExtractionResult, error) {
	return e.run(ctx, chunk, 0)
}

// RunBatched behaves like Run but pulls rows from the query capability in
// fixed-size batches to bound peak memory
func (e *Extractor) RunBatched(ctx context.Context, chunk ChunkSpec, batchSize int) (ExtractionResult, error) {
	return e.run(ctx, chunk, batchSize)
}

func (e *Extractor) run(ctx context.Context, chunk ChunkSpec, batchSize int) (ExtractionResult, error) {
	start := time.Now()

	var rows []map[string]interface{}
	var err error
	if batchSize > 0 {
		rows, err = e.executor.ExecuteBatched(ctx, chunk.Query, batchSize)
	} else {
		rows, err = e.executor.Execute(ctx, chunk.Query)
	}
	if err != nil {
		return e.fail(chunk, fmt.Errorf("query failed: %w", err))
	}

	data, err := e.formatter.Format(rows)
	if err != nil {
		return e.fail(chunk, fmt.Errorf("serialization failed: %w", err))
	}

	if !e.internalCompress {
		data, err = e.compressor.Compress(data, e.compressionLevel)
		if err != nil {
			return e.fail(chunk, fmt.Errorf("compression failed: %w", err))
		}
	}

	filePath := e.chunkFilePath(chunk.ID)
	if err := os.WriteFile(filePath, data, 0o600); err != nil {
		return e.fail(chunk, fmt.Errorf("file write failed: %w", err))
	}

	e.logger.Info(fmt.Sprintf("Chunk %d: %d rows processed in %.2fs", chunk.ID, len(rows), time.Since(start).Seconds()))

	return ExtractionResult{
		ChunkID:  chunk.ID,
		FilePath: filePath,
		Rows:     len(rows),
	}, nil
}

func (e *Extractor) fail(chunk ChunkSpec, cause error) (ExtractionResult, error) {
	e.logger.Error(fmt.Sprintf("❌ Error processing chunk %d: %s", chunk.ID, cause.Error()))
	return ExtractionResult{ChunkID: chunk.ID}, fmt.Errorf("%w: chunk %d: %w", ErrExtraction, chunk.ID, cause)
}

// chunkFilePath builds the deterministic chunk file name
// chunk_{id}_{timestamp}.{format}
func (e *Extractor) chunkFilePath(chunkID int) string {
	timestamp := time.Now().Format("20060102_150405")
	ext := e.formatter.Extension()
	if !e.internalCompress {
		ext += e.compressor.Extension()
	}
	filename := fmt.Sprintf("chunk_%d_%s%s", chunkID, timestamp, ext)
	return filepath.Join(e.tempDir, filename)
}
