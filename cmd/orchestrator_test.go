package cmd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

// progressRecorder captures milestone updates for assertions
type progressRecorder struct {
	mu       sync.Mutex
	messages []string
	percents []float64
}

func (r *progressRecorder) sink() ProgressFunc {
	return func(message string, percent float64) {
		r.mu.Lock()
		r.messages = append(r.messages, message)
		r.percents = append(r.percents, percent)
		r.mu.Unlock()
	}
}

func (r *progressRecorder) recordedPercents() []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]float64(nil), r.percents...)
}

// newSqliteConfig creates a sqlite database seeded with rows and returns a
// configuration pointed at it
func newSqliteConfig(t *testing.T, rowCount int) *Config {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "source.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	if _, err := db.Exec("CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT)"); err != nil {
		t.Fatal(err)
	}
	for i := 1; i <= rowCount; i++ {
		if _, err := db.Exec("INSERT INTO items (id, name) VALUES (?, ?)", i, fmt.Sprintf("item-%d", i)); err != nil {
			t.Fatal(err)
		}
	}

	return &Config{
		Workers:          2,
		ChunkSize:        2,
		TempDir:          t.TempDir(),
		Database:         DatabaseConfig{Driver: "sqlite", Path: dbPath},
		Query:            "SELECT id, name FROM items ORDER BY id",
		OutputFormat:     "jsonl",
		Compression:      "none",
		CompressionLevel: 0,
	}
}

func assertTempDirEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		names := make([]string, len(entries))
		for i, e := range entries {
			names[i] = e.Name()
		}
		t.Fatalf("expected empty temp dir, found %v", names)
	}
}

func TestOrchestratorTransferDryRun(t *testing.T) {
	config := newSqliteConfig(t, 5)
	config.DryRun = true

	recorder := &progressRecorder{}
	orchestrator := NewOrchestrator(config, &fakeRunner{}, newTestLogger())
	orchestrator.SetProgressSink(recorder.sink())

	if err := orchestrator.Transfer(context.Background(), config.Query, "cluster2"); err != nil {
		t.Fatal(err)
	}

	percents := recorder.recordedPercents()
	if len(percents) < 3 {
		t.Fatalf("expected several progress updates, got %d", len(percents))
	}
	if percents[0] != 0 {
		t.Fatalf("expected first milestone at 0, got %f", percents[0])
	}
	if percents[len(percents)-1] != 100 {
		t.Fatalf("expected final milestone at 100, got %f", percents[len(percents)-1])
	}

	// Chunk completions land between the extraction and transfer milestones
	sawChunkProgress := false
	for _, p := range percents {
		if p > 20 && p < 90 {
			sawChunkProgress = true
		}
	}
	if !sawChunkProgress {
		t.Fatal("expected per-chunk progress between 20 and 90")
	}

	if orchestrator.Status().Phase != PhaseDone {
		t.Fatalf("expected phase DONE, got %s", orchestrator.Status().Phase)
	}
	assertTempDirEmpty(t, config.TempDir)
}

func TestOrchestratorTransferViaPush(t *testing.T) {
	config := newSqliteConfig(t, 5)
	config.Transfer.Push.TargetRoot = "/data/landing"

	runner := &fakeRunner{}
	orchestrator := NewOrchestrator(config, runner, newTestLogger())

	if err := orchestrator.Transfer(context.Background(), config.Query, "cluster2"); err != nil {
		t.Fatal(err)
	}

	// 5 rows at chunk size 2 plan 3 chunks, one file each
	putCount := 0
	for _, cmd := range runner.recorded() {
		if strings.HasPrefix(cmd, "hdfs dfs -put ") {
			putCount++
		}
	}
	if putCount != 3 {
		t.Fatalf("expected 3 push invocations, got %d", putCount)
	}

	assertTempDirEmpty(t, config.TempDir)
	if orchestrator.Status().Phase != PhaseDone {
		t.Fatalf("expected phase DONE, got %s", orchestrator.Status().Phase)
	}
}

func TestOrchestratorTransferTable(t *testing.T) {
	config := newSqliteConfig(t, 3)
	config.Query = ""
	config.Table = "items"
	config.DryRun = true

	orchestrator := NewOrchestrator(config, &fakeRunner{}, newTestLogger())
	if err := orchestrator.TransferTable(context.Background(), "items", "cluster2"); err != nil {
		t.Fatal(err)
	}
}

func TestOrchestratorTransferBatched(t *testing.T) {
	config := newSqliteConfig(t, 5)
	config.BatchSize = 2
	config.DryRun = true

	orchestrator := NewOrchestrator(config, &fakeRunner{}, newTestLogger())
	if err := orchestrator.Transfer(context.Background(), config.Query, "cluster2"); err != nil {
		t.Fatal(err)
	}
}

func TestOrchestratorTransportFailureStillCleansUp(t *testing.T) {
	config := newSqliteConfig(t, 5)
	config.Transfer.Push.TargetRoot = "/data/landing"

	runner := &fakeRunner{failOn: []string{"hdfs"}}
	recorder := &progressRecorder{}
	orchestrator := NewOrchestrator(config, runner, newTestLogger())
	orchestrator.SetProgressSink(recorder.sink())

	err := orchestrator.Transfer(context.Background(), config.Query, "cluster2")
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}

	// Temporary files are removed even though transport failed
	assertTempDirEmpty(t, config.TempDir)

	percents := recorder.recordedPercents()
	if percents[len(percents)-1] != -1 {
		t.Fatalf("expected failure milestone -1, got %f", percents[len(percents)-1])
	}
	if orchestrator.Status().Phase != PhaseFailed {
		t.Fatalf("expected phase FAILED, got %s", orchestrator.Status().Phase)
	}
}

func TestOrchestratorConnectFailure(t *testing.T) {
	config := newSqliteConfig(t, 1)
	config.Database = DatabaseConfig{Driver: "oracle"}

	orchestrator := NewOrchestrator(config, &fakeRunner{}, newTestLogger())
	err := orchestrator.Transfer(context.Background(), config.Query, "cluster2")
	if !errors.Is(err, ErrConnection) {
		t.Fatalf("expected ErrConnection, got %v", err)
	}
	if orchestrator.Status().Phase != PhaseFailed {
		t.Fatalf("expected phase FAILED, got %s", orchestrator.Status().Phase)
	}
}

func TestOrchestratorExtractChunksFailFast(t *testing.T) {
	config := validTestConfig()
	config.OutputFormat = "jsonl"
	config.Compression = "none"
	config.CompressionLevel = 0
	config.TempDir = t.TempDir()
	config.Workers = 2
	config.ChunkSize = 100

	orchestrator := NewOrchestrator(config, &fakeRunner{}, newTestLogger())

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	mock.MatchExpectationsInOrder(false)
	orchestrator.conn.SetDB(db)

	baseQuery := "SELECT id FROM events"
	specs := NewChunkPlanner(100, newTestLogger()).Plan(baseQuery, 250)

	mock.ExpectQuery("SELECT id FROM events LIMIT 100 OFFSET 0").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectQuery("SELECT id FROM events LIMIT 100 OFFSET 100").
		WillReturnError(errors.New("relation vanished mid-query"))
	mock.ExpectQuery("SELECT id FROM events LIMIT 100 OFFSET 200").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	files, err := orchestrator.extractChunks(context.Background(), specs)
	if err == nil {
		t.Fatal("expected the batch to fail when one chunk fails")
	}
	if files != nil {
		t.Fatalf("expected no files on failure, got %v", files)
	}

	// Files produced by the surviving chunks are removed
	assertTempDirEmpty(t, config.TempDir)
}

func TestOrchestratorExtractChunksCancelled(t *testing.T) {
	config := validTestConfig()
	config.OutputFormat = "jsonl"
	config.Compression = "none"
	config.CompressionLevel = 0
	config.TempDir = t.TempDir()

	orchestrator := NewOrchestrator(config, &fakeRunner{}, newTestLogger())

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	mock.MatchExpectationsInOrder(false)
	orchestrator.conn.SetDB(db)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	specs := NewChunkPlanner(100, newTestLogger()).Plan("SELECT id FROM events", 250)
	if _, err := orchestrator.extractChunks(ctx, specs); err == nil {
		t.Fatal("expected error when context is already cancelled")
	}
}

func TestOrchestratorStatus(t *testing.T) {
	config := validTestConfig()
	config.Transfer.Push.TargetRoot = "/data/landing"

	orchestrator := NewOrchestrator(config, &fakeRunner{}, newTestLogger())
	status := orchestrator.Status()

	if status.Phase != PhaseIdle {
		t.Fatalf("expected phase IDLE, got %s", status.Phase)
	}
	if status.MaxWorkers != config.Workers {
		t.Fatalf("expected %d workers, got %d", config.Workers, status.MaxWorkers)
	}
	if status.ConnectionInfo["driver"] != "postgres" {
		t.Fatalf("expected driver in connection info, got %v", status.ConnectionInfo)
	}
	if status.TransferInfo["intended_strategy"] != strategyPush {
		t.Fatalf("expected intended strategy in transfer info, got %v", status.TransferInfo)
	}
}
