package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"testing"
)

// newTestLogger creates a logger for testing
func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestChunkPlannerPlan(t *testing.T) {
	baseQuery := "SELECT * FROM events"

	t.Run("UnevenSplit", func(t *testing.T) {
		planner := NewChunkPlanner(100, newTestLogger())
		specs := planner.Plan(baseQuery, 250)

		if len(specs) != 3 {
			t.Fatalf("expected 3 chunks, got %d", len(specs))
		}

		expectedOffsets := []int{0, 100, 200}
		for i, spec := range specs {
			if spec.ID != i {
				t.Fatalf("chunk %d: expected ID %d, got %d", i, i, spec.ID)
			}
			if spec.Offset != expectedOffsets[i] {
				t.Fatalf("chunk %d: expected offset %d, got %d", i, expectedOffsets[i], spec.Offset)
			}
			if spec.Limit != 100 {
				t.Fatalf("chunk %d: expected limit 100, got %d", i, spec.Limit)
			}

			expectedQuery := fmt.Sprintf("%s LIMIT 100 OFFSET %d", baseQuery, expectedOffsets[i])
			if spec.Query != expectedQuery {
				t.Fatalf("chunk %d: expected query %q, got %q", i, expectedQuery, spec.Query)
			}
		}
	})

	t.Run("ExactMultipleHasTrailingEmptyChunk", func(t *testing.T) {
		planner := NewChunkPlanner(100, newTestLogger())
		specs := planner.Plan(baseQuery, 200)

		if len(specs) != 3 {
			t.Fatalf("expected 3 chunks, got %d", len(specs))
		}

		sizes := planner.EstimateSizes(200)
		if sizes[2] != 0 {
			t.Fatalf("expected trailing chunk to be empty, got estimated size %d", sizes[2])
		}
		// The empty chunk is still planned with a real query
		if specs[2].Query == "" {
			t.Fatal("trailing chunk should still carry a query")
		}
	})

	t.Run("FewerRowsThanChunkSize", func(t *testing.T) {
		planner := NewChunkPlanner(100, newTestLogger())
		specs := planner.Plan(baseQuery, 50)

		if len(specs) != 1 {
			t.Fatalf("expected 1 chunk, got %d", len(specs))
		}
		if specs[0].Limit != 100 {
			t.Fatalf("expected limit 100, got %d", specs[0].Limit)
		}
		if specs[0].Offset != 0 {
			t.Fatalf("expected offset 0, got %d", specs[0].Offset)
		}
	})
}

func TestChunkPlannerEstimateSizes(t *testing.T) {
	tests := []struct {
		name      string
		chunkSize int
		totalRows int
		expected  []int
	}{
		{"uneven", 100, 250, []int{100, 100, 50}},
		{"exact multiple", 100, 200, []int{100, 100, 0}},
		{"single partial", 100, 50, []int{50}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			planner := NewChunkPlanner(tt.chunkSize, newTestLogger())
			sizes := planner.EstimateSizes(tt.totalRows)

			if len(sizes) != len(tt.expected) {
				t.Fatalf("expected %d sizes, got %d", len(tt.expected), len(sizes))
			}

			sum := 0
			for i, size := range sizes {
				if size != tt.expected[i] {
					t.Fatalf("size %d: expected %d, got %d", i, tt.expected[i], size)
				}
				sum += size
			}
			if sum != tt.totalRows {
				t.Fatalf("estimated sizes should sum to %d, got %d", tt.totalRows, sum)
			}
		})
	}
}

func TestChunkPlannerValidate(t *testing.T) {
	tests := []struct {
		name      string
		chunkSize int
		totalRows int
		expected  bool
	}{
		{"exactly half passes", 500, 1000, true},
		{"just over half fails", 501, 1000, false},
		{"below floor fails", 50, 1000, false},
		{"zero chunk size fails", 0, 1000, false},
		{"negative chunk size fails", -1, 1000, false},
		{"zero total rows fails", 100, 0, false},
		{"reasonable sizing passes", 1000, 100000, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			planner := NewChunkPlanner(tt.chunkSize, newTestLogger())
			if got := planner.Validate(tt.totalRows); got != tt.expected {
				t.Fatalf("Validate(%d) with chunk size %d: expected %v, got %v",
					tt.totalRows, tt.chunkSize, tt.expected, got)
			}
		})
	}
}

func TestChunkPlannerInfo(t *testing.T) {
	planner := NewChunkPlanner(100, newTestLogger())
	info := planner.Info("SELECT * FROM events", 250)

	if info.TotalRows != 250 {
		t.Fatalf("expected 250 total rows, got %d", info.TotalRows)
	}
	if info.ChunkSize != 100 {
		t.Fatalf("expected chunk size 100, got %d", info.ChunkSize)
	}
	if info.NumChunks != 3 {
		t.Fatalf("expected 3 chunks, got %d", info.NumChunks)
	}
	if len(info.EstimatedSizes) != 3 {
		t.Fatalf("expected 3 estimated sizes, got %d", len(info.EstimatedSizes))
	}
}
