package cmd

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestNewExtractorRejectsUnknownFormat(t *testing.T) {
	config := validTestConfig()
	config.OutputFormat = "avro"

	executor, _ := newMockExecutor(t)
	_, err := NewExtractor(config, executor, newTestLogger())
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestNewExtractorRejectsUnknownCompression(t *testing.T) {
	config := validTestConfig()
	config.OutputFormat = "jsonl"
	config.Compression = "brotli"

	executor, _ := newMockExecutor(t)
	_, err := NewExtractor(config, executor, newTestLogger())
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestExtractorRun(t *testing.T) {
	config := validTestConfig()
	config.OutputFormat = "jsonl"
	config.Compression = "none"
	config.CompressionLevel = 0
	config.TempDir = t.TempDir()

	executor, mock := newMockExecutor(t)
	query := "SELECT id, name FROM events LIMIT 100 OFFSET 0"
	mock.ExpectQuery(query).WillReturnRows(
		sqlmock.NewRows([]string{"id", "name"}).
			AddRow(int64(1), "alpha").
			AddRow(int64(2), "beta"))

	extractor, err := NewExtractor(config, executor, newTestLogger())
	if err != nil {
		t.Fatal(err)
	}

	result, err := extractor.Run(context.Background(), ChunkSpec{ID: 0, Query: query, Limit: 100})
	if err != nil {
		t.Fatal(err)
	}

	if result.Rows != 2 {
		t.Fatalf("expected 2 rows, got %d", result.Rows)
	}
	if !strings.Contains(result.FilePath, "chunk_0_") {
		t.Fatalf("expected chunk id in file name, got %s", result.FilePath)
	}
	if !strings.HasSuffix(result.FilePath, ".jsonl") {
		t.Fatalf("expected .jsonl suffix, got %s", result.FilePath)
	}

	data, err := os.ReadFile(result.FilePath)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 JSONL lines, got %d", len(lines))
	}
}

func TestExtractorRunEmptyChunk(t *testing.T) {
	// The trailing chunk of an exact-multiple plan returns zero rows; the
	// extractor still materializes a file for it
	config := validTestConfig()
	config.OutputFormat = "jsonl"
	config.Compression = "none"
	config.CompressionLevel = 0
	config.TempDir = t.TempDir()

	executor, mock := newMockExecutor(t)
	query := "SELECT id FROM events LIMIT 100 OFFSET 200"
	mock.ExpectQuery(query).WillReturnRows(sqlmock.NewRows([]string{"id"}))

	extractor, err := NewExtractor(config, executor, newTestLogger())
	if err != nil {
		t.Fatal(err)
	}

	result, err := extractor.Run(context.Background(), ChunkSpec{ID: 2, Query: query, Offset: 200, Limit: 100})
	if err != nil {
		t.Fatal(err)
	}
	if result.Rows != 0 {
		t.Fatalf("expected 0 rows, got %d", result.Rows)
	}
	if _, err := os.Stat(result.FilePath); err != nil {
		t.Fatalf("empty chunk should still produce a file: %v", err)
	}
}

func TestExtractorRunQueryFailure(t *testing.T) {
	config := validTestConfig()
	config.OutputFormat = "jsonl"
	config.Compression = "none"
	config.CompressionLevel = 0
	config.TempDir = t.TempDir()

	executor, mock := newMockExecutor(t)
	query := "SELECT id FROM events LIMIT 100 OFFSET 0"
	mock.ExpectQuery(query).WillReturnError(errors.New("relation does not exist"))

	extractor, err := NewExtractor(config, executor, newTestLogger())
	if err != nil {
		t.Fatal(err)
	}

	_, err = extractor.Run(context.Background(), ChunkSpec{ID: 0, Query: query, Limit: 100})
	if !errors.Is(err, ErrExtraction) {
		t.Fatalf("expected ErrExtraction, got %v", err)
	}
	if !strings.Contains(err.Error(), "chunk 0") {
		t.Fatalf("expected chunk id in error, got %v", err)
	}
}

func TestExtractorFileExtensions(t *testing.T) {
	tests := []struct {
		name        string
		format      string
		compression string
		level       int
		suffix      string
	}{
		{"jsonl gzip", "jsonl", "gzip", 6, ".jsonl.gz"},
		{"csv zstd", "csv", "zstd", 3, ".csv.zst"},
		{"jsonl lz4", "jsonl", "lz4", 1, ".jsonl.lz4"},
		// Parquet compresses internally; no outer extension
		{"parquet", "parquet", "zstd", 3, ".parquet"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := validTestConfig()
			config.OutputFormat = tt.format
			config.Compression = tt.compression
			config.CompressionLevel = tt.level
			config.TempDir = t.TempDir()

			executor, _ := newMockExecutor(t)
			extractor, err := NewExtractor(config, executor, newTestLogger())
			if err != nil {
				t.Fatal(err)
			}

			path := extractor.chunkFilePath(7)
			if !strings.HasSuffix(path, tt.suffix) {
				t.Fatalf("expected suffix %s, got %s", tt.suffix, path)
			}
			if !strings.Contains(path, "chunk_7_") {
				t.Fatalf("expected chunk id in name, got %s", path)
			}
		})
	}
}
