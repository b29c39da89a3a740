package cmd

import (
	"fmt"
	"log/slog"
)

// ChunkSpec describes one bounded row range of the source query. Immutable
// once planned; consumed by exactly one extraction.
type ChunkSpec struct {
	ID     int
	Query  string
	Offset int
	Limit  int
}

// ChunkPlanInfo summarizes a chunk plan
type ChunkPlanInfo struct {
	TotalRows      int
	ChunkSize      int
	NumChunks      int
	EstimatedSizes []int
}

// ChunkPlanner splits a query into bounded offset/limit sub-queries
type ChunkPlanner struct {
	chunkSize int
	logger    *slog.Logger
}

// NewChunkPlanner creates a chunk planner with a fixed chunk size
func NewChunkPlanner(chunkSize int, logger *slog.Logger) *ChunkPlanner {
	return &ChunkPlanner{
		chunkSize: chunkSize,
		logger:    logger,
	}
}

// ChunkSize returns the configured rows-per-chunk
func (p *ChunkPlanner) ChunkSize() int {
	return p.chunkSize
}

// Plan emits totalRows/chunkSize + 1 chunk specs covering [0, totalRows].
// The trailing chunk is empty when totalRows is an exact multiple of the
// chunk size and is still planned; extraction must tolerate empty results.
func (p *ChunkPlanner) Plan(baseQuery string, totalRows int) []ChunkSpec {
	numChunks := totalRows/p.chunkSize + 1

	specs := make([]ChunkSpec, numChunks)
	for i := 0; i < numChunks; i++ {
		offset := i * p.chunkSize
		specs[i] = ChunkSpec{
			ID:     i,
			Query:  fmt.Sprintf("%s LIMIT %d OFFSET %d", baseQuery, p.chunkSize, offset),
			Offset: offset,
			Limit:  p.chunkSize,
		}
	}

	return specs
}

// EstimateSizes returns the expected row count per chunk, clamped at 0 for
// the trailing chunk
func (p *ChunkPlanner) EstimateSizes(totalRows int) []int {
	numChunks := totalRows/p.chunkSize + 1

	sizes := make([]int, numChunks)
	for i := 0; i < numChunks; i++ {
		remaining := totalRows - i*p.chunkSize
		if remaining > p.chunkSize {
			remaining = p.chunkSize
		}
		if remaining < 0 {
			remaining = 0
		}
		sizes[i] = remaining
	}

	return sizes
}

// Validate checks whether the chunk size is sane for the data volume. This
// is advisory: callers may log a warning and proceed.
func (p *ChunkPlanner) Validate(totalRows int) bool {
	if p.chunkSize <= 0 {
		return false
	}
	if totalRows <= 0 {
		return false
	}

	if p.chunkSize < 100 {
		p.logger.Warn(fmt.Sprintf("⚠️  Chunk size %d is very small", p.chunkSize))
		return false
	}

	// More than half the total rows in one chunk is too coarse to
	// parallelize; exactly half still passes.
	if float64(p.chunkSize) > float64(totalRows)*0.5 {
		p.logger.Warn(fmt.Sprintf("⚠️  Chunk size %d is very large relative to total rows %d", p.chunkSize, totalRows))
		return false
	}

	return true
}

// Info returns a summary of the plan for the given query and row count
func (p *ChunkPlanner) Info(baseQuery string, totalRows int) ChunkPlanInfo {
	specs := p.Plan(baseQuery, totalRows)
	return ChunkPlanInfo{
		TotalRows:      totalRows,
		ChunkSize:      p.chunkSize,
		NumChunks:      len(specs),
		EstimatedSizes: p.EstimateSizes(totalRows),
	}
}
