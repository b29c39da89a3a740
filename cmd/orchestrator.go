package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Phase is one step of the transfer state machine
type Phase string

const (
	PhaseIdle         Phase = "IDLE"
	PhaseConnecting   Phase = "CONNECTING"
	PhaseProfiling    Phase = "PROFILING"
	PhasePlanning     Phase = "PLANNING"
	PhaseExtracting   Phase = "EXTRACTING"
	PhaseTransferring Phase = "TRANSFERRING"
	PhaseCleaningUp   Phase = "CLEANING_UP"
	PhaseDone         Phase = "DONE"
	PhaseFailed       Phase = "FAILED"
)

// Progress milestone percentages. Chunk completion scales linearly across
// the 20-80 band; -1 signals failure with the message carrying the cause.
const (
	progressConnecting   = 0
	progressProfiling    = 10
	progressExtracting   = 20
	progressTransferring = 90
	progressCleaningUp   = 95
	progressDone         = 100
	progressFailed       = -1
)

// OrchestratorStatus is a pure read of component state
type OrchestratorStatus struct {
	Phase          Phase
	ConnectionInfo map[string]string
	TransferInfo   map[string]string
	MaxWorkers     int
}

// Orchestrator coordinates one transfer: profile, plan, extract concurrently,
// deliver, clean up. It owns the database session for the duration of a
// Transfer call and always releases it.
type Orchestrator struct {
	config   *Config
	conn     *ConnectionManager
	executor *QueryExecutor
	planner  *ChunkPlanner
	chain    *TransferChain
	blob     *BlobCopier
	logger   *slog.Logger
	progress ProgressFunc

	mu    sync.Mutex
	phase Phase
}

// NewOrchestrator wires the transfer pipeline from the configuration
func NewOrchestrator(config *Config, runner Runner, logger *slog.Logger) *Orchestrator {
	conn := NewConnectionManager(config.Database, logger)
	executor := NewQueryExecutor(conn, logger)

	return &Orchestrator{
		config:   config,
		conn:     conn,
		executor: executor,
		planner:  NewChunkPlanner(config.ChunkSize, logger),
		chain:    NewTransferChain(config.Transfer, runner, logger),
		blob:     NewBlobCopier(config.Transfer.Blob, logger),
		logger:   logger,
		phase:    PhaseIdle,
	}
}

// SetProgressSink installs an optional progress sink. Must be called before
// Transfer; milestone updates flow through it.
func (o *Orchestrator) SetProgressSink(sink ProgressFunc) {
	o.progress = sink
}

// Connection returns the connection manager, for callers that probe the
// session outside a transfer (e.g. --test-connection)
func (o *Orchestrator) Connection() *ConnectionManager {
	return o.conn
}

// Executor returns the query executor
func (o *Orchestrator) Executor() *QueryExecutor {
	return o.executor
}

func (o *Orchestrator) setPhase(phase Phase) {
	o.mu.Lock()
	o.phase = phase
	o.mu.Unlock()
}

func (o *Orchestrator) report(message string, percent float64) {
	if o.progress != nil {
		o.progress(message, percent)
	}
}

func (o *Orchestrator) fail(err error) error {
	o.setPhase(PhaseFailed)
	o.logger.Error(fmt.Sprintf("❌ Transfer failed: %s", err.Error()))
	o.report(fmt.Sprintf("Transfer failed: %s", err.Error()), progressFailed)
	return err
}

// TransferTable transfers an entire table
func (o *Orchestrator) TransferTable(ctx context.Context, table, targetLabel string) error {
	query := fmt.Sprintf("SELECT * FROM %s", table)
	return o.Transfer(ctx, query, targetLabel)
}

// Transfer moves the query result to the target. A nil return means every
// produced file was delivered; the error category is detectable via
// errors.Is for exit-code mapping.
func (o *Orchestrator) Transfer(ctx context.Context, query, targetLabel string) error {
	start := time.Now()
	o.logger.Info("Starting transfer of query results")
	o.logger.Debug(fmt.Sprintf("Query: %s", query))

	o.setPhase(PhaseConnecting)
	o.report("Connecting to database...", progressConnecting)
	if err := o.conn.Connect(ctx); err != nil {
		return o.fail(err)
	}
	defer o.conn.Close()

	o.setPhase(PhaseProfiling)
	o.report("Analyzing query...", progressProfiling)
	profile, err := o.executor.Profile(ctx, query)
	if err != nil {
		return o.fail(err)
	}
	o.logger.Info(fmt.Sprintf("Query result: %d rows", profile.RowCount))

	o.setPhase(PhasePlanning)
	if !o.planner.Validate(profile.RowCount) {
		o.logger.Warn("⚠️  Chunk size validation failed, but continuing...")
	}
	specs := o.planner.Plan(query, profile.RowCount)
	o.logger.Info(fmt.Sprintf("Generated %d chunks for parallel processing", len(specs)))

	o.setPhase(PhaseExtracting)
	o.report(fmt.Sprintf("Processing %d chunks...", len(specs)), progressExtracting)
	files, err := o.extractChunks(ctx, specs)
	if err != nil {
		return o.fail(err)
	}

	if o.config.DryRun {
		o.logger.Info(fmt.Sprintf("Dry run: skipping transfer of %d files", len(files)))
		o.cleanupFiles(files)
		o.setPhase(PhaseDone)
		o.report("Dry run completed", progressDone)
		return nil
	}

	o.setPhase(PhaseTransferring)
	o.report("Transferring files to target cluster...", progressTransferring)
	var transferErr error
	if o.config.Transfer.Blob.TargetURL != "" {
		_, transferErr = o.blob.Transfer(ctx, files, targetLabel)
	} else {
		_, transferErr = o.chain.Transfer(ctx, files, targetLabel)
	}

	// Cleanup runs for every produced file even when transport failed
	o.setPhase(PhaseCleaningUp)
	o.report("Cleaning up temporary files...", progressCleaningUp)
	o.cleanupFiles(files)

	if transferErr != nil {
		return o.fail(transferErr)
	}

	o.setPhase(PhaseDone)
	o.report("Transfer completed successfully!", progressDone)
	o.logger.Info(fmt.Sprintf("Transfer completed successfully in %.2f seconds", time.Since(start).Seconds()))
	return nil
}

// extractChunks runs every chunk through a bounded worker pool and collects
// file paths in completion order. Fail-fast: the first chunk failure cancels
// outstanding workers, removes already-produced files best-effort, and fails
// the whole batch.
func (o *Orchestrator) extractChunks(ctx context.Context, specs []ChunkSpec) ([]string, error) {
	extractor, err := NewExtractor(o.config, o.executor, o.logger)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(o.config.TempDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type outcome struct {
		result ExtractionResult
		err    error
	}

	sem := make(chan struct{}, o.config.Workers)
	results := make(chan outcome, len(specs))
	var wg sync.WaitGroup

	for _, spec := range specs {
		wg.Add(1)
		go func(spec ChunkSpec) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results <- outcome{err: ctx.Err()}
				return
			}

			var res ExtractionResult
			var err error
			if o.config.BatchSize > 0 {
				res, err = extractor.RunBatched(ctx, spec, o.config.BatchSize)
			} else {
				res, err = extractor.Run(ctx, spec)
			}
			results <- outcome{result: res, err: err}
		}(spec)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	var files []string
	var firstErr error
	completed := 0
	total := len(specs)

	for out := range results {
		if out.err != nil {
			if firstErr == nil {
				firstErr = out.err
				cancel()
			}
			continue
		}

		files = append(files, out.result.FilePath)
		completed++
		percent := progressExtracting + float64(completed)/float64(total)*60
		o.report(fmt.Sprintf("Processed chunk %d/%d", completed, total), percent)
		o.logger.Info(fmt.Sprintf("Chunk %d completed: %s", out.result.ChunkID, out.result.FilePath))
	}

	if firstErr != nil {
		// Files from the failed batch are orphans; remove them best-effort
		o.cleanupFiles(files)
		return nil, firstErr
	}
	return files, nil
}

// cleanupFiles deletes produced files best-effort; failures are warnings
func (o *Orchestrator) cleanupFiles(files []string) {
	for _, file := range files {
		if err := os.Remove(file); err != nil {
			o.logger.Warn(fmt.Sprintf("⚠️  Failed to remove temporary file %s: %s", file, err.Error()))
		}
	}
}

// Status reports current component state without side effects
func (o *Orchestrator) Status() OrchestratorStatus {
	o.mu.Lock()
	phase := o.phase
	o.mu.Unlock()

	return OrchestratorStatus{
		Phase:          phase,
		ConnectionInfo: o.conn.Info(),
		TransferInfo:   o.chain.Info(),
		MaxWorkers:     o.config.Workers,
	}
}
