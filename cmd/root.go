package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// Version information - set via ldflags during build
	// Example: go build -ldflags "-X github.com/clustertools/cluster-transfer/cmd.Version=1.2.3"
	Version = "dev" // Default to "dev" if not set during build

	cfgFile        string
	debug          bool
	logFormat      string
	dryRun         bool
	dbDriver       string
	dbHost         string
	dbPort         int
	dbUser         string
	dbPassword     string
	dbName         string
	dbSSLMode      string
	dbPath         string
	sourceQuery    string
	sourceTable    string
	targetLabel    string
	chunkSize      int
	batchSize      int
	workers        int
	tempDir        string
	outputFormat   string
	compression    string
	compressLevel  int
	bulkEnabled    bool
	bulkSourceRoot string
	bulkTargetRoot string
	bulkTargetAddr string
	pushTargetRoot string
	remoteRoot     string
	sshHost        string
	sshTargetRoot  string
	blobSourceURL  string
	blobTargetURL  string
	blobTargetRoot string
	testConnection bool

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7D56F4")).
			Bold(true).
			Underline(true)

	logger *slog.Logger
)

// textOnlyHandler is a custom slog handler that outputs human-readable text
// without key=value pairs, suitable for interactive terminal usage
type textOnlyHandler struct {
	opts   slog.HandlerOptions
	writer io.Writer
}

func newTextOnlyHandler(w io.Writer, opts *slog.HandlerOptions) *textOnlyHandler {
	if opts == nil {
		opts = &slog.HandlerOptions{}
	}
	return &textOnlyHandler{
		opts:   *opts,
		writer: w,
	}
}

func (h *textOnlyHandler) Enabled(_ context.Context, level slog.Level) bool {
	minLevel := slog.LevelInfo
	if h.opts.Level != nil {
		minLevel = h.opts.Level.Level()
	}
	return level >= minLevel
}

func (h *textOnlyHandler) Handle(_ context.Context, r slog.Record) error {
	// Format: YYYY-MM-DD HH:MM:SS LEVEL message
	timestamp := r.Time.Format("2006-01-02 15:04:05")
	level := r.Level.String()

	_, err := fmt.Fprintf(h.writer, "%s %s %s\n", timestamp, level, r.Message)
	return err
}

func (h *textOnlyHandler) WithAttrs(_ []slog.Attr) slog.Handler {
	// For simplicity, we ignore attributes in text-only mode
	return h
}

func (h *textOnlyHandler) WithGroup(_ string) slog.Handler {
	// For simplicity, we ignore groups in text-only mode
	return h
}

// initLogger initializes the slog logger based on debug flag and log format
func initLogger(isDebug bool, format string) {
	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}
	if isDebug {
		opts.Level = slog.LevelDebug
	}

	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	case "logfmt":
		// logfmt uses slog.TextHandler which outputs key=value pairs
		handler = slog.NewTextHandler(os.Stdout, opts)
	default: // "text" or anything else
		handler = newTextOnlyHandler(os.Stdout, opts)
	}

	logger = slog.New(handler)
}

var rootCmd = &cobra.Command{
	Use:     "cluster-transfer",
	Version: Version,
	Short:   "🚚 Move large query results between data clusters",
	Long: titleStyle.Render("Cluster Transfer") + `

A CLI tool to move the result of a large query from one data cluster to
another. Splits the query into bounded row ranges, extracts each range
concurrently to Parquet/CSV/JSONL files, and delivers them through an ordered
chain of transport strategies (bulk copy, filesystem push, remote copy,
secure copy) with automatic fallback, or through an object-storage copy.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		// Show help when no subcommand is specified
		return cmd.Help()
	},
}

var transferCmd = &cobra.Command{
	Use:   "transfer",
	Short: "Transfer query results to the target cluster",
	Long: `Transfer query results to the target cluster. Profiles the query, splits it
into chunks, extracts chunks in parallel, and delivers the files through the
first transport strategy that succeeds.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(_ *cobra.Command, _ []string) error {
		return runTransfer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show resolved configuration and any running transfer",
	Long:  `Show the resolved configuration (after merging flags, environment, and config file) and the state of any transfer currently running on this machine.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(_ *cobra.Command, _ []string) error {
		return runStatus()
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.AddCommand(transferCmd)
	rootCmd.AddCommand(statusCmd)

	// Persistent flags (available to all subcommands)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.cluster-transfer.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug output")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, logfmt, json)")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "extract chunks but skip the transfer phase")

	// Source database flags
	transferCmd.Flags().StringVar(&dbDriver, "db-driver", "postgres", "database driver (postgres, mysql, sqlite)")
	transferCmd.Flags().StringVar(&dbHost, "db-host", "localhost", "database host")
	transferCmd.Flags().IntVar(&dbPort, "db-port", 5432, "database port")
	transferCmd.Flags().StringVar(&dbUser, "db-user", "", "database user")
	transferCmd.Flags().StringVar(&dbPassword, "db-password", "", "database password")
	transferCmd.Flags().StringVar(&dbName, "db-name", "", "database name")
	transferCmd.Flags().StringVar(&dbSSLMode, "db-sslmode", "disable", "PostgreSQL SSL mode (disable, require, verify-ca, verify-full)")
	transferCmd.Flags().StringVar(&dbPath, "db-path", "", "SQLite database file (sqlite driver only)")

	// Source and target selection
	transferCmd.Flags().StringVar(&sourceQuery, "query", "", "SQL query to transfer (mutually exclusive with --table)")
	transferCmd.Flags().StringVar(&sourceTable, "table", "", "source table to transfer in full (mutually exclusive with --query)")
	transferCmd.Flags().StringVar(&targetLabel, "target-label", "query_result", "label for the delivered data, used in logs")
	transferCmd.Flags().BoolVar(&testConnection, "test-connection", false, "connect, run a probe query, and exit")

	// Extraction flags
	transferCmd.Flags().IntVar(&chunkSize, "chunk-size", 1000000, "number of rows per chunk")
	transferCmd.Flags().IntVar(&batchSize, "batch-size", 0, "rows fetched per batch within a chunk (0 = fetch whole chunk)")
	transferCmd.Flags().IntVar(&workers, "workers", 4, "number of parallel extraction workers")
	transferCmd.Flags().StringVar(&tempDir, "temp-dir", "/tmp/cluster-transfer", "directory for intermediate chunk files")
	transferCmd.Flags().StringVar(&outputFormat, "output-format", "parquet", "output format: parquet, csv, jsonl")
	transferCmd.Flags().StringVar(&compression, "compression", "gzip", "compression for csv/jsonl output: zstd, lz4, gzip, none (parquet compresses internally)")
	transferCmd.Flags().IntVar(&compressLevel, "compression-level", 6, "compression level (zstd: 1-22, lz4/gzip: 1-9, none: 0)")

	// Transport strategy flags, one block per strategy
	transferCmd.Flags().BoolVar(&bulkEnabled, "bulk-enabled", false, "enable cross-cluster bulk copy (distcp)")
	transferCmd.Flags().StringVar(&bulkSourceRoot, "bulk-source-root", "", "source filesystem root for bulk copy")
	transferCmd.Flags().StringVar(&bulkTargetRoot, "bulk-target-root", "", "target path for bulk copy")
	transferCmd.Flags().StringVar(&bulkTargetAddr, "bulk-target-address", "", "target cluster address for bulk copy (e.g. hdfs://cluster2:8020)")
	transferCmd.Flags().StringVar(&pushTargetRoot, "push-target-root", "", "target filesystem path for single-file push")
	transferCmd.Flags().StringVar(&remoteRoot, "remote-target-root", "", "target path for remote-to-remote copy")
	transferCmd.Flags().StringVar(&sshHost, "ssh-host", "", "target host for secure copy")
	transferCmd.Flags().StringVar(&sshTargetRoot, "ssh-target-root", "", "target path on the secure copy host")
	transferCmd.Flags().StringVar(&blobSourceURL, "blob-source-url", "", "source bucket URL for object-storage copy (file://, s3://, gs://)")
	transferCmd.Flags().StringVar(&blobTargetURL, "blob-target-url", "", "target bucket URL for object-storage copy; selects this strategy explicitly")
	transferCmd.Flags().StringVar(&blobTargetRoot, "blob-target-root", "", "key prefix under the target bucket")

	// Bind persistent flags
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("log_format", rootCmd.PersistentFlags().Lookup("log-format"))
	_ = viper.BindPFlag("dry_run", rootCmd.PersistentFlags().Lookup("dry-run"))

	// Bind transfer flags
	_ = viper.BindPFlag("db.driver", transferCmd.Flags().Lookup("db-driver"))
	_ = viper.BindPFlag("db.host", transferCmd.Flags().Lookup("db-host"))
	_ = viper.BindPFlag("db.port", transferCmd.Flags().Lookup("db-port"))
	_ = viper.BindPFlag("db.user", transferCmd.Flags().Lookup("db-user"))
	_ = viper.BindPFlag("db.password", transferCmd.Flags().Lookup("db-password"))
	_ = viper.BindPFlag("db.name", transferCmd.Flags().Lookup("db-name"))
	_ = viper.BindPFlag("db.sslmode", transferCmd.Flags().Lookup("db-sslmode"))
	_ = viper.BindPFlag("db.path", transferCmd.Flags().Lookup("db-path"))
	_ = viper.BindPFlag("query", transferCmd.Flags().Lookup("query"))
	_ = viper.BindPFlag("table", transferCmd.Flags().Lookup("table"))
	_ = viper.BindPFlag("target_label", transferCmd.Flags().Lookup("target-label"))
	_ = viper.BindPFlag("test_connection", transferCmd.Flags().Lookup("test-connection"))
	_ = viper.BindPFlag("chunk_size", transferCmd.Flags().Lookup("chunk-size"))
	_ = viper.BindPFlag("batch_size", transferCmd.Flags().Lookup("batch-size"))
	_ = viper.BindPFlag("workers", transferCmd.Flags().Lookup("workers"))
	_ = viper.BindPFlag("temp_dir", transferCmd.Flags().Lookup("temp-dir"))
	_ = viper.BindPFlag("output_format", transferCmd.Flags().Lookup("output-format"))
	_ = viper.BindPFlag("compression", transferCmd.Flags().Lookup("compression"))
	_ = viper.BindPFlag("compression_level", transferCmd.Flags().Lookup("compression-level"))
	_ = viper.BindPFlag("transfer.bulk.enabled", transferCmd.Flags().Lookup("bulk-enabled"))
	_ = viper.BindPFlag("transfer.bulk.source_root", transferCmd.Flags().Lookup("bulk-source-root"))
	_ = viper.BindPFlag("transfer.bulk.target_root", transferCmd.Flags().Lookup("bulk-target-root"))
	_ = viper.BindPFlag("transfer.bulk.target_address", transferCmd.Flags().Lookup("bulk-target-address"))
	_ = viper.BindPFlag("transfer.push.target_root", transferCmd.Flags().Lookup("push-target-root"))
	_ = viper.BindPFlag("transfer.remote.target_root", transferCmd.Flags().Lookup("remote-target-root"))
	_ = viper.BindPFlag("transfer.secure.target_host", transferCmd.Flags().Lookup("ssh-host"))
	_ = viper.BindPFlag("transfer.secure.target_root", transferCmd.Flags().Lookup("ssh-target-root"))
	_ = viper.BindPFlag("transfer.blob.source_url", transferCmd.Flags().Lookup("blob-source-url"))
	_ = viper.BindPFlag("transfer.blob.target_url", transferCmd.Flags().Lookup("blob-target-url"))
	_ = viper.BindPFlag("transfer.blob.target_root", transferCmd.Flags().Lookup("blob-target-root"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".cluster-transfer")
	}

	viper.SetEnvPrefix("TRANSFER")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && debug {
		// Initialize logger early if reading config in debug mode
		if logger == nil {
			initLogger(debug, logFormat)
		}
		logger.Debug(fmt.Sprintf("📄 Using config file: %s", viper.ConfigFileUsed()))
	}
}

// buildConfig assembles the Config from all merged viper sources
func buildConfig() *Config {
	return &Config{
		Debug:     viper.GetBool("debug"),
		LogFormat: viper.GetString("log_format"),
		DryRun:    viper.GetBool("dry_run"),
		Workers:   viper.GetInt("workers"),
		ChunkSize: viper.GetInt("chunk_size"),
		BatchSize: viper.GetInt("batch_size"),
		TempDir:   viper.GetString("temp_dir"),
		Database: DatabaseConfig{
			Driver:   viper.GetString("db.driver"),
			Host:     viper.GetString("db.host"),
			Port:     viper.GetInt("db.port"),
			User:     viper.GetString("db.user"),
			Password: viper.GetString("db.password"),
			Name:     viper.GetString("db.name"),
			SSLMode:  viper.GetString("db.sslmode"),
			Path:     viper.GetString("db.path"),
		},
		Transfer: TransferConfig{
			Bulk: BulkCopyConfig{
				Enabled:       viper.GetBool("transfer.bulk.enabled"),
				SourceRoot:    viper.GetString("transfer.bulk.source_root"),
				TargetRoot:    viper.GetString("transfer.bulk.target_root"),
				TargetAddress: viper.GetString("transfer.bulk.target_address"),
			},
			Push: PushCopyConfig{
				TargetRoot: viper.GetString("transfer.push.target_root"),
			},
			Remote: RemoteCopyConfig{
				TargetRoot: viper.GetString("transfer.remote.target_root"),
			},
			Secure: SecureCopyConfig{
				TargetHost: viper.GetString("transfer.secure.target_host"),
				TargetRoot: viper.GetString("transfer.secure.target_root"),
			},
			Blob: BlobCopyConfig{
				SourceURL:  viper.GetString("transfer.blob.source_url"),
				TargetURL:  viper.GetString("transfer.blob.target_url"),
				TargetRoot: viper.GetString("transfer.blob.target_root"),
			},
		},
		Query:            viper.GetString("query"),
		Table:            viper.GetString("table"),
		TargetLabel:      viper.GetString("target_label"),
		OutputFormat:     viper.GetString("output_format"),
		Compression:      viper.GetString("compression"),
		CompressionLevel: viper.GetInt("compression_level"),
	}
}

func runTransfer() error {
	config := buildConfig()

	initLogger(config.Debug, config.LogFormat)

	logger.Info("")
	logger.Info(fmt.Sprintf("🚚 Cluster Transfer v%s", Version))
	logger.Info("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")

	logger.Debug("Validating configuration...")
	if err := config.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	if !config.Transfer.Validate() && !viper.GetBool("test_connection") && !config.DryRun {
		return fmt.Errorf("%w: %w", ErrConfiguration, ErrTransferConfigInvalid)
	}
	logger.Debug("Configuration validated successfully")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	orchestrator := NewOrchestrator(config, NewRunner(), logger)

	if viper.GetBool("test_connection") {
		return runConnectionTest(ctx, orchestrator)
	}

	query := config.Query
	if query == "" {
		query = fmt.Sprintf("SELECT * FROM %s", config.Table)
	}

	// Record the run for status queries from other processes
	if err := WritePIDFile(); err != nil {
		logger.Warn(fmt.Sprintf("⚠️  Failed to write PID file: %s", err.Error()))
	}
	defer func() { _ = RemovePIDFile() }()

	taskInfo := &TaskInfo{
		PID:         os.Getpid(),
		StartTime:   time.Now(),
		Query:       query,
		TargetLabel: config.TargetLabel,
	}
	defer func() { _ = RemoveTaskFile() }()

	sink, stopTUI := selectProgressSink(config, taskInfo)
	orchestrator.SetProgressSink(sink)

	err := orchestrator.Transfer(ctx, query, config.TargetLabel)
	if stopTUI != nil {
		stopTUI()
	}

	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("")
			logger.Info("⚠️  Transfer cancelled by user")
			os.Exit(130)
		}
		return err
	}

	logger.Info("")
	logger.Info("✅ Transfer completed successfully!")
	return nil
}

// selectProgressSink picks the TUI in interactive mode and plain logging in
// debug or machine-readable modes. Milestones are also mirrored into the
// task file so `status` can report a running transfer.
func selectProgressSink(config *Config, taskInfo *TaskInfo) (ProgressFunc, func()) {
	var base ProgressFunc
	var stop func()

	if config.Debug || config.LogFormat != "text" {
		base = logProgressSink(logger)
	} else {
		base, stop = tuiProgressSink()
	}

	sink := func(message string, percent float64) {
		taskInfo.CurrentTask = message
		taskInfo.Progress = percent
		_ = WriteTaskInfo(taskInfo)
		base(message, percent)
	}
	return sink, stop
}

func runConnectionTest(ctx context.Context, orchestrator *Orchestrator) error {
	conn := orchestrator.Connection()
	if err := conn.Connect(ctx); err != nil {
		return err
	}
	defer conn.Close()

	if err := orchestrator.Executor().Test(ctx); err != nil {
		return err
	}

	logger.Info("✅ Connection test successful")
	return nil
}

func runStatus() error {
	config := buildConfig()
	initLogger(config.Debug, config.LogFormat)

	orchestrator := NewOrchestrator(config, NewRunner(), logger)
	status := orchestrator.Status()

	fmt.Printf("Phase:       %s\n", status.Phase)
	fmt.Printf("Max workers: %d\n", status.MaxWorkers)
	fmt.Printf("Chunk size:  %d\n", config.ChunkSize)
	fmt.Printf("Temp dir:    %s\n", config.TempDir)
	fmt.Println("Connection:")
	for key, value := range status.ConnectionInfo {
		fmt.Printf("  %s: %s\n", key, value)
	}
	fmt.Println("Transfer:")
	for key, value := range status.TransferInfo {
		fmt.Printf("  %s: %s\n", key, value)
	}

	// Report any transfer currently running on this machine
	if pid, err := ReadPIDFile(); err == nil && IsProcessRunning(pid) {
		fmt.Printf("Running transfer: pid %d\n", pid)
		if info, err := ReadTaskInfo(); err == nil {
			fmt.Printf("  task: %s (%.0f%%)\n", info.CurrentTask, info.Progress)
		}
	} else {
		fmt.Println("Running transfer: none")
	}

	return nil
}
