// Package storage mirrors written output files to remote object storage.
package storage

import (
	"context"
	"log/slog"

	"mktsummary/internal/config"
)

// Sink receives every newly written output file.
type Sink interface {
	// Put uploads the file at localPath and returns its remote location.
	Put(ctx context.Context, localPath string) (string, error)
}

// NoopSink discards uploads.
type NoopSink struct{}

// Put implements Sink.
func (NoopSink) Put(context.Context, string) (string, error) {
	return "", nil
}

// New returns the sink configured by cfg: an S3 mirror when a bucket is set,
// otherwise a NoopSink.
func New(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (Sink, error) {
	if !cfg.MirrorEnabled() {
		return NoopSink{}, nil
	}
	return NewS3Sink(ctx, cfg, logger)
}
