// Package fetcher downloads per-date archives into scoped temporary files.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	apperrors "mktsummary/internal/errors"
	"mktsummary/internal/infrastructure"
)

// Options configures a Fetcher.
type Options struct {
	Timeout    time.Duration
	MaxRetries int
	// Interval is the minimum spacing between requests; zero disables pacing.
	Interval  time.Duration
	UserAgent string
	// Client overrides the default HTTP client when set.
	Client *http.Client
}

// Result describes a completed download.
type Result struct {
	Path  string
	Bytes int64
}

// Fetcher issues GET requests for archive URLs and streams bodies to disk.
type Fetcher struct {
	client     *http.Client
	limiter    *rate.Limiter
	maxRetries int
	userAgent  string
	logger     *slog.Logger
	metrics    *infrastructure.PipelineMetrics
}

// New creates a Fetcher. metrics may be nil.
func New(opts Options, logger *slog.Logger, metrics *infrastructure.PipelineMetrics) *Fetcher {
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	var limiter *rate.Limiter
	if opts.Interval > 0 {
		limiter = rate.NewLimiter(rate.Every(opts.Interval), 1)
	}
	return &Fetcher{
		client:     client,
		limiter:    limiter,
		maxRetries: opts.MaxRetries,
		userAgent:  opts.UserAgent,
		logger:     infrastructure.WithComponent(logger, "fetcher"),
		metrics:    metrics,
	}
}

// Fetch downloads url into a new temporary file inside destDir. On success the
// caller owns the returned file and must remove it. On failure no file is left
// behind.
func (f *Fetcher) Fetch(ctx context.Context, url, destDir, namePrefix string) (*Result, error) {
	file, err := os.CreateTemp(destDir, "."+namePrefix+"-*.Z.part")
	if err != nil {
		return nil, apperrors.NewFetchError("create temporary file", err)
	}
	path := file.Name()

	written, err := f.download(ctx, url, file)
	if closeErr := file.Close(); err == nil && closeErr != nil {
		err = apperrors.NewFetchError("close temporary file", closeErr)
	}
	if err != nil {
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			f.logger.WarnContext(ctx, "Failed to remove partial download",
				slog.String("path", path),
				slog.String("error", rmErr.Error()))
		}
		return nil, err
	}

	f.metrics.RecordFetchBytes(ctx, written)
	f.logger.DebugContext(ctx, "Archive downloaded",
		slog.String("url", url),
		slog.String("path", path),
		slog.Int64("bytes", written))

	return &Result{Path: path, Bytes: written}, nil
}

func (f *Fetcher) download(ctx context.Context, url string, file *os.File) (int64, error) {
	var written int64
	attempt := 0

	operation := func() error {
		attempt++
		if f.limiter != nil {
			if err := f.limiter.Wait(ctx); err != nil {
				return backoff.Permanent(apperrors.NewFetchError("request pacing", err))
			}
		}
		if _, err := file.Seek(0, io.SeekStart); err != nil {
			return backoff.Permanent(apperrors.NewFetchError("rewind temporary file", err))
		}
		if err := file.Truncate(0); err != nil {
			return backoff.Permanent(apperrors.NewFetchError("truncate temporary file", err))
		}

		n, err := f.once(ctx, url, file)
		written = n
		return err
	}

	var policy backoff.BackOff = &backoff.StopBackOff{}
	if f.maxRetries > 0 {
		policy = backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(f.maxRetries))
	}

	notify := func(err error, wait time.Duration) {
		f.logger.WarnContext(ctx, "Archive request failed, retrying",
			slog.String("url", url),
			slog.Int("attempt", attempt),
			slog.Duration("wait", wait),
			slog.String("error", err.Error()))
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(policy, ctx), notify); err != nil {
		return 0, err
	}
	return written, nil
}

// once performs a single GET. Client errors are permanent; server and
// transport errors may be retried.
func (f *Fetcher) once(ctx context.Context, url string, w io.Writer) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, backoff.Permanent(apperrors.NewFetchError("build request", err))
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, apperrors.NewFetchError("request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		fetchErr := apperrors.NewFetchError(fmt.Sprintf("unexpected status %d", resp.StatusCode), nil).
			WithContext("status_code", resp.StatusCode)
		if resp.StatusCode >= 500 {
			return 0, fetchErr
		}
		return 0, backoff.Permanent(fetchErr)
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, apperrors.NewFetchError("read response body", err)
	}
	return n, nil
}
