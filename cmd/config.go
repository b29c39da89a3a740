package cmd

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Static errors for configuration validation
var (
	ErrDriverInvalid           = errors.New("database driver must be one of: postgres, mysql, sqlite")
	ErrDatabaseUserRequired    = errors.New("database user is required")
	ErrDatabaseNameRequired    = errors.New("database name is required")
	ErrDatabasePortInvalid     = errors.New("database port must be between 1 and 65535")
	ErrDatabasePathRequired    = errors.New("database path is required for the sqlite driver")
	ErrQueryOrTableRequired    = errors.New("a source query or a table name is required")
	ErrQueryAndTableExclusive  = errors.New("source query and table name are mutually exclusive")
	ErrTableNameInvalid        = errors.New("table name is invalid: must be 1-63 characters, start with a letter or underscore, and contain only letters, numbers, and underscores")
	ErrWorkersMinimum          = errors.New("workers must be at least 1")
	ErrWorkersMaximum          = errors.New("workers must not exceed 1000")
	ErrChunkSizeMinimum        = errors.New("chunk size must be at least 1")
	ErrChunkSizeMaximum        = errors.New("chunk size must not exceed 100000000")
	ErrBatchSizeInvalid        = errors.New("batch size must be >= 0")
	ErrTempDirRequired         = errors.New("temp directory is required")
	ErrOutputFormatInvalid     = errors.New("output format must be one of: parquet, csv, jsonl")
	ErrCompressionInvalid      = errors.New("compression must be one of: zstd, lz4, gzip, none")
	ErrCompressionLevelInvalid = errors.New("compression level must be between 1 and 22 (zstd), 1-9 (lz4/gzip)")
	ErrTransferConfigInvalid   = errors.New("transfer configuration is invalid: exactly one fully configured strategy with absolute paths is required")
)

type Config struct {
	Debug     bool
	LogFormat string
	DryRun    bool
	Workers   int
	ChunkSize int
	BatchSize int // Rows pulled per batch during extraction (0 = no batching)
	TempDir   string

	Database DatabaseConfig
	Transfer TransferConfig

	Query       string
	Table       string
	TargetLabel string

	OutputFormat     string
	Compression      string
	CompressionLevel int
}

type DatabaseConfig struct {
	Driver   string // postgres, mysql, or sqlite
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	Path     string // sqlite database file
}

// TransferConfig holds one configuration block per transport strategy.
// A strategy is applicable at execution time when its required fields are
// populated; Validate is stricter and checks the single intended strategy.
type TransferConfig struct {
	Bulk   BulkCopyConfig
	Push   PushCopyConfig
	Remote RemoteCopyConfig
	Secure SecureCopyConfig
	Blob   BlobCopyConfig
}

// BulkCopyConfig configures the cross-cluster bulk copy strategy (distcp)
type BulkCopyConfig struct {
	Enabled       bool
	SourceRoot    string
	TargetRoot    string
	TargetAddress string // target cluster address, e.g. hdfs://cluster2:8020
}

// PushCopyConfig configures the local-to-remote single-file push strategy
type PushCopyConfig struct {
	TargetRoot string
}

// RemoteCopyConfig configures the remote-to-remote single-file copy strategy
type RemoteCopyConfig struct {
	TargetRoot string
}

// SecureCopyConfig configures the secure point-to-point copy strategy
type SecureCopyConfig struct {
	TargetHost string
	TargetRoot string
}

// BlobCopyConfig configures the filesystem-abstraction strategy. It is
// selected explicitly by populating the target URL and never entered via
// fallback from the shell-based chain.
type BlobCopyConfig struct {
	SourceURL  string // e.g. file:///tmp/cluster-transfer
	TargetURL  string // e.g. s3://landing-zone or gs://landing-zone
	TargetRoot string
}

// validSQLIdentifier checks if a string is a valid SQL identifier
// to prevent SQL injection attacks
var validSQLIdentifier = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// isValidTableName validates that a table name is safe to use in SQL queries
func isValidTableName(name string) bool {
	if name == "" || len(name) > 63 {
		return false
	}
	return validSQLIdentifier.MatchString(name)
}

// isValidDriver validates the database driver discriminator
func isValidDriver(driver string) bool {
	validDrivers := map[string]bool{
		"postgres": true,
		"mysql":    true,
		"sqlite":   true,
	}
	return validDrivers[driver]
}

// isValidOutputFormat validates the output format
func isValidOutputFormat(format string) bool {
	validFormats := map[string]bool{
		"parquet": true,
		"csv":     true,
		"jsonl":   true,
	}
	return validFormats[format]
}

// isValidCompression validates the compression type
func isValidCompression(compression string) bool {
	validCompressions := map[string]bool{
		"zstd": true,
		"lz4":  true,
		"gzip": true,
		"none": true,
	}
	return validCompressions[compression]
}

// isValidCompressionLevel validates compression level based on compression type
func isValidCompressionLevel(compression string, level int) bool {
	switch compression {
	case "zstd":
		return level >= 1 && level <= 22
	case "lz4", "gzip":
		return level >= 1 && level <= 9
	case "none":
		return level == 0
	default:
		return false
	}
}

func (c *Config) Validate() error {
	// Validate database configuration
	if !isValidDriver(c.Database.Driver) {
		return fmt.Errorf("%w, got '%s'", ErrDriverInvalid, c.Database.Driver)
	}
	if c.Database.Driver == "sqlite" {
		if c.Database.Path == "" {
			return ErrDatabasePathRequired
		}
	} else {
		if c.Database.User == "" {
			return ErrDatabaseUserRequired
		}
		if c.Database.Name == "" {
			return ErrDatabaseNameRequired
		}
		if c.Database.Port < 1 || c.Database.Port > 65535 {
			return fmt.Errorf("%w, got %d", ErrDatabasePortInvalid, c.Database.Port)
		}
	}

	// Validate the source: either a free-form query or a table name
	if c.Query == "" && c.Table == "" {
		return ErrQueryOrTableRequired
	}
	if c.Query != "" && c.Table != "" {
		return ErrQueryAndTableExclusive
	}
	if c.Table != "" && !isValidTableName(c.Table) {
		return fmt.Errorf("%w: '%s'", ErrTableNameInvalid, c.Table)
	}

	// Validate chunk size. Sizes below the advisory floor are allowed here;
	// the planner flags them separately before extraction starts.
	if c.ChunkSize < 1 {
		return fmt.Errorf("%w, got %d", ErrChunkSizeMinimum, c.ChunkSize)
	}
	if c.ChunkSize > 100000000 {
		return fmt.Errorf("%w, got %d", ErrChunkSizeMaximum, c.ChunkSize)
	}

	if c.BatchSize < 0 {
		return fmt.Errorf("%w, got %d", ErrBatchSizeInvalid, c.BatchSize)
	}

	// Validate workers count
	if c.Workers < 1 {
		return ErrWorkersMinimum
	}
	if c.Workers > 1000 {
		return fmt.Errorf("%w, got %d", ErrWorkersMaximum, c.Workers)
	}

	if c.TempDir == "" {
		return ErrTempDirRequired
	}

	// Validate output format
	if !isValidOutputFormat(c.OutputFormat) {
		return fmt.Errorf("%w: '%s'", ErrOutputFormatInvalid, c.OutputFormat)
	}

	// Validate compression
	if !isValidCompression(c.Compression) {
		return fmt.Errorf("%w: '%s'", ErrCompressionInvalid, c.Compression)
	}
	if !isValidCompressionLevel(c.Compression, c.CompressionLevel) {
		return fmt.Errorf("%w for compression %s: got %d", ErrCompressionLevelInvalid, c.Compression, c.CompressionLevel)
	}

	return nil
}

// intendedStrategy returns the name of the single strategy this configuration
// is aimed at, based on which fields are populated, in chain priority order.
// Returns "" when nothing is configured.
func (t *TransferConfig) intendedStrategy() string {
	switch {
	case t.Blob.TargetURL != "":
		return strategyBlob
	case t.Bulk.Enabled:
		return strategyBulk
	case t.Push.TargetRoot != "":
		return strategyPush
	case t.Remote.TargetRoot != "":
		return strategyRemote
	case t.Secure.TargetHost != "" || t.Secure.TargetRoot != "":
		return strategySecure
	default:
		return ""
	}
}

// Validate checks the full precondition of the single intended strategy:
// all required fields present and target paths absolute. It is stricter than
// the applicability checks used during execution-time fallback, and it does
// not test reachability.
func (t *TransferConfig) Validate() bool {
	switch t.intendedStrategy() {
	case strategyBulk:
		return t.Bulk.SourceRoot != "" && t.Bulk.TargetRoot != "" && t.Bulk.TargetAddress != "" &&
			isAbsolutePath(t.Bulk.SourceRoot) && isAbsolutePath(t.Bulk.TargetRoot)
	case strategyPush:
		return isAbsolutePath(t.Push.TargetRoot)
	case strategyRemote:
		return isAbsolutePath(t.Remote.TargetRoot)
	case strategySecure:
		return t.Secure.TargetHost != "" && isAbsolutePath(t.Secure.TargetRoot)
	case strategyBlob:
		return t.Blob.SourceURL != "" && t.Blob.TargetURL != ""
	default:
		return false
	}
}

// isAbsolutePath reports whether a target path is well-formed for HDFS and
// POSIX filesystems (rooted at /)
func isAbsolutePath(path string) bool {
	return strings.HasPrefix(path, "/")
}
