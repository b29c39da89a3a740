package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
)

// Transport strategy names, in chain priority order
const (
	strategyBulk   = "bulk-copy"
	strategyPush   = "push"
	strategyRemote = "remote-copy"
	strategySecure = "secure-copy"
	strategyBlob   = "blob-copy"
)

// Static errors for the transfer chain
var (
	ErrNoStrategyApplicable = errors.New("no transfer strategy is configured")
	ErrAllStrategiesFailed  = errors.New("all applicable transfer strategies failed")
)

// TransferOutcome reports which strategy delivered the files
type TransferOutcome struct {
	Success          bool
	StrategyUsed     string
	FilesTransferred int
}

// transferStrategy is one transport method with its own applicability
// precondition. Execution failure falls through to the next strategy.
type transferStrategy struct {
	name       string
	applicable func() bool
	run        func(ctx context.Context, files []string) error
}

// TransferChain tries transport strategies in fixed priority order until one
// fully succeeds. A per-file failure aborts the current strategy, not the
// chain; the next strategy restarts over the full file list.
type TransferChain struct {
	config TransferConfig
	runner Runner
	logger *slog.Logger
}

// NewTransferChain creates a transfer chain using the given shell runner
func NewTransferChain(config TransferConfig, runner Runner, logger *slog.Logger) *TransferChain {
	return &TransferChain{
		config: config,
		runner: runner,
		logger: logger,
	}
}

// Validate checks the single intended strategy's full precondition.
// See TransferConfig.Validate.
func (c *TransferChain) Validate() bool {
	return c.config.Validate()
}

// Info returns the transfer configuration summary for status reporting
func (c *TransferChain) Info() map[string]string {
	info := map[string]string{
		"intended_strategy": c.config.intendedStrategy(),
	}
	if c.config.Bulk.Enabled {
		info["bulk_target"] = c.config.Bulk.TargetAddress + c.config.Bulk.TargetRoot
	}
	if c.config.Push.TargetRoot != "" {
		info["push_target"] = c.config.Push.TargetRoot
	}
	if c.config.Remote.TargetRoot != "" {
		info["remote_target"] = c.config.Remote.TargetRoot
	}
	if c.config.Secure.TargetHost != "" {
		info["secure_target"] = c.config.Secure.TargetHost + ":" + c.config.Secure.TargetRoot
	}
	return info
}

// Transfer delivers the files through the first strategy that fully succeeds
func (c *TransferChain) Transfer(ctx context.Context, files []string, targetLabel string) (TransferOutcome, error) {
	strategies := []transferStrategy{
		{name: strategyBulk, applicable: c.bulkApplicable, run: c.runBulk},
		{name: strategyPush, applicable: c.pushApplicable, run: c.runPush},
		{name: strategyRemote, applicable: c.remoteApplicable, run: c.runRemote},
		{name: strategySecure, applicable: c.secureApplicable, run: c.runSecure},
	}

	attempted := false
	for _, strategy := range strategies {
		if !strategy.applicable() {
			continue
		}
		attempted = true

		c.logger.Info(fmt.Sprintf("Transferring %d files for %s via %s", len(files), targetLabel, strategy.name))
		if err := strategy.run(ctx, files); err != nil {
			c.logger.Warn(fmt.Sprintf("⚠️  Strategy %s failed: %s", strategy.name, err.Error()))
			continue
		}

		c.logger.Info(fmt.Sprintf("✅ Files transferred via %s", strategy.name))
		return TransferOutcome{
			Success:          true,
			StrategyUsed:     strategy.name,
			FilesTransferred: len(files),
		}, nil
	}

	if !attempted {
		return TransferOutcome{}, fmt.Errorf("%w: %w", ErrTransport, ErrNoStrategyApplicable)
	}
	return TransferOutcome{}, fmt.Errorf("%w: %w", ErrTransport, ErrAllStrategiesFailed)
}

func (c *TransferChain) bulkApplicable() bool {
	return c.config.Bulk.Enabled && c.config.Bulk.SourceRoot != "" && c.config.Bulk.TargetAddress != ""
}

func (c *TransferChain) pushApplicable() bool {
	return c.config.Push.TargetRoot != ""
}

func (c *TransferChain) remoteApplicable() bool {
	return c.config.Remote.TargetRoot != ""
}

func (c *TransferChain) secureApplicable() bool {
	return c.config.Secure.TargetHost != "" && c.config.Secure.TargetRoot != ""
}

// runBulk copies files across clusters with distcp update semantics. The
// target directory is materialized by a bulk copy of the bare source root
// first; cross-cluster existence checks are unreliable any other way.
func (c *TransferChain) runBulk(ctx context.Context, files []string) error {
	target := c.config.Bulk.TargetAddress + c.config.Bulk.TargetRoot

	if err := c.runner.Run(ctx, "hadoop", "distcp", "-update", c.config.Bulk.SourceRoot, target); err != nil {
		return fmt.Errorf("failed to prepare target directory: %w", err)
	}

	for _, file := range files {
		dest := target + "/" + filepath.Base(file)
		if err := c.runner.Run(ctx, "hadoop", "distcp", "-update", file, dest); err != nil {
			return fmt.Errorf("bulk copy of %s failed: %w", file, err)
		}
	}
	return nil
}

// runPush copies each local file into the target filesystem individually
func (c *TransferChain) runPush(ctx context.Context, files []string) error {
	root := c.config.Push.TargetRoot
	if err := c.ensureTargetDir(ctx, root); err != nil {
		return err
	}

	for _, file := range files {
		dest := path.Join(root, filepath.Base(file))
		if err := c.runner.Run(ctx, "hdfs", "dfs", "-put", file, dest); err != nil {
			return fmt.Errorf("push of %s failed: %w", file, err)
		}
	}
	return nil
}

// runRemote copies files already resident on the remote filesystem to the
// target root, no local-to-remote hop
func (c *TransferChain) runRemote(ctx context.Context, files []string) error {
	root := c.config.Remote.TargetRoot
	if err := c.ensureTargetDir(ctx, root); err != nil {
		return err
	}

	for _, file := range files {
		dest := path.Join(root, filepath.Base(file))
		if err := c.runner.Run(ctx, "hdfs", "dfs", "-cp", file, dest); err != nil {
			return fmt.Errorf("remote copy of %s failed: %w", file, err)
		}
	}
	return nil
}

// runSecure copies each file to the target host over scp
func (c *TransferChain) runSecure(ctx context.Context, files []string) error {
	host := c.config.Secure.TargetHost
	root := c.config.Secure.TargetRoot

	if err := c.runner.Run(ctx, "ssh", host, fmt.Sprintf("test -d %s", root)); err != nil {
		c.logger.Info(fmt.Sprintf("Target directory does not exist, creating: %s", root))
		if err := c.runner.Run(ctx, "ssh", host, fmt.Sprintf("mkdir -p %s", root)); err != nil {
			return fmt.Errorf("failed to create target directory: %w", err)
		}
	}

	for _, file := range files {
		dest := fmt.Sprintf("%s:%s/", host, root)
		if err := c.runner.Run(ctx, "scp", file, dest); err != nil {
			return fmt.Errorf("secure copy of %s failed: %w", file, err)
		}
	}
	return nil
}

// ensureTargetDir probes the target filesystem directory and creates it when
// absent
func (c *TransferChain) ensureTargetDir(ctx context.Context, root string) error {
	if err := c.runner.Run(ctx, "hdfs", "dfs", "-test", "-d", root); err == nil {
		c.logger.Debug(fmt.Sprintf("Target path already exists: %s", root))
		return nil
	}

	c.logger.Info(fmt.Sprintf("Target path does not exist, creating: %s", root))
	if err := c.runner.Run(ctx, "hdfs", "dfs", "-mkdir", "-p", root); err != nil {
		return fmt.Errorf("failed to create target path: %w", err)
	}
	return nil
}
