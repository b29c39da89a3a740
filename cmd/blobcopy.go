package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"path/filepath"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob" // file:// buckets
	_ "gocloud.dev/blob/gcsblob"  // gs:// buckets
	_ "gocloud.dev/blob/s3blob"   // s3:// buckets
)

// BlobCopier is the filesystem-abstraction transfer strategy. It moves files
// between two bucket URLs uniformly across local, S3, and GCS backends. It is
// an explicit alternative to the shell-based chain, never a fallback target.
type BlobCopier struct {
	config BlobCopyConfig
	logger *slog.Logger
}

// NewBlobCopier creates a blob copier for the configured bucket URLs
func NewBlobCopier(config BlobCopyConfig, logger *slog.Logger) *BlobCopier {
	return &BlobCopier{
		config: config,
		logger: logger,
	}
}

// openBucket resolves a bucket URL to a capability handle. Callers never
// introspect which backend they received.
func openBucket(ctx context.Context, bucketURL string) (*blob.Bucket, error) {
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open bucket %s: %w", bucketURL, err)
	}
	return bucket, nil
}

// Transfer streams each file from the source bucket to the target bucket
// under the configured target root
func (b *BlobCopier) Transfer(ctx context.Context, files []string, targetLabel string) (TransferOutcome, error) {
	source, err := openBucket(ctx, b.config.SourceURL)
	if err != nil {
		return TransferOutcome{}, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer source.Close()

	target, err := openBucket(ctx, b.config.TargetURL)
	if err != nil {
		return TransferOutcome{}, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer target.Close()

	b.logger.Info(fmt.Sprintf("Transferring %d files for %s via %s", len(files), targetLabel, strategyBlob))

	for _, file := range files {
		key := filepath.Base(file)
		destKey := key
		if b.config.TargetRoot != "" {
			// Bucket keys are slash-separated regardless of platform
			destKey = path.Join(trimLeadingSlash(b.config.TargetRoot), key)
		}

		if err := copyBlobObject(ctx, source, target, key, destKey); err != nil {
			return TransferOutcome{}, fmt.Errorf("%w: blob copy of %s failed: %w", ErrTransport, key, err)
		}
		b.logger.Debug(fmt.Sprintf("Copied %s -> %s", key, destKey))
	}

	b.logger.Info(fmt.Sprintf("✅ Files transferred via %s", strategyBlob))
	return TransferOutcome{
		Success:          true,
		StrategyUsed:     strategyBlob,
		FilesTransferred: len(files),
	}, nil
}

// copyBlobObject streams one object from source to target
func copyBlobObject(ctx context.Context, source, target *blob.Bucket, srcKey, destKey string) error {
	reader, err := source.NewReader(ctx, srcKey, nil)
	if err != nil {
		return fmt.Errorf("failed to open source object: %w", err)
	}
	defer reader.Close()

	writer, err := target.NewWriter(ctx, destKey, nil)
	if err != nil {
		return fmt.Errorf("failed to open target object: %w", err)
	}

	if _, err := io.Copy(writer, reader); err != nil {
		writer.Close()
		return fmt.Errorf("failed to copy object bytes: %w", err)
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize target object: %w", err)
	}
	return nil
}

// trimLeadingSlash converts an absolute target root to a bucket key prefix
func trimLeadingSlash(p string) string {
	for len(p) > 0 && p[0] == '/' {
		p = p[1:]
	}
	return p
}
