package operations

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"mktsummary/internal/archive"
	"mktsummary/internal/calendar"
	"mktsummary/internal/config"
	apperrors "mktsummary/internal/errors"
	"mktsummary/internal/exporter"
	"mktsummary/internal/fetcher"
	"mktsummary/internal/infrastructure"
	"mktsummary/internal/records"
	"mktsummary/internal/storage"
	"mktsummary/pkg/contracts/domain"
)

// Fetcher downloads one archive into a temporary file in destDir.
type Fetcher interface {
	Fetch(ctx context.Context, url, destDir, namePrefix string) (*fetcher.Result, error)
}

// Extractor copies the record entry of an archive to destPath.
type Extractor interface {
	Extract(archivePath, destPath string) (string, error)
}

// Parser reads a record file.
type Parser interface {
	ParseFile(path string) ([]domain.MarketRecord, records.Stats, error)
}

// Options is the download policy for a Downloader.
type Options struct {
	BaseURL          string
	OutputDir        string
	DateFormat       string
	SkipWeekends     bool
	KeepIntermediate bool
	RecordSuffix     string
	OutputExtension  string
	Workers          int
}

// OptionsFromConfig copies the download section into Options.
func OptionsFromConfig(cfg config.DownloadConfig) Options {
	return Options{
		BaseURL:          cfg.BaseURL,
		OutputDir:        cfg.OutputDir,
		DateFormat:       cfg.DateFormat,
		SkipWeekends:     cfg.SkipWeekends,
		KeepIntermediate: cfg.KeepIntermediate,
		RecordSuffix:     cfg.RecordSuffix,
		OutputExtension:  cfg.OutputExtension,
		Workers:          cfg.Workers,
	}
}

// Deps are the collaborators of a Downloader. Nil fields get defaults where
// one exists.
type Deps struct {
	Fetcher   Fetcher
	Extractor Extractor
	Parser    Parser
	Writer    exporter.Writer
	Sink      storage.Sink
	Claims    *ClaimRegistry
	Tracer    *BatchTracer
	Logger    *slog.Logger
}

// Request describes one batch.
type Request struct {
	BatchID string
	Start   time.Time
	End     time.Time

	// Optional overrides of the Downloader's Options.
	OutputDir        string
	DateFormat       string
	SkipWeekends     *bool
	KeepIntermediate *bool
}

// RequestFromBatch converts an API request.
func RequestFromBatch(batchID string, br domain.BatchRequest) (Request, error) {
	start, end, err := br.Dates()
	if err != nil {
		return Request{}, apperrors.NewAppValidationError(err.Error())
	}
	return Request{
		BatchID:          batchID,
		Start:            start,
		End:              end,
		OutputDir:        br.OutputDir,
		DateFormat:       br.DateFormat,
		SkipWeekends:     br.SkipWeekends,
		KeepIntermediate: br.KeepIntermediate,
	}, nil
}

// Downloader runs batches of per-date downloads.
type Downloader struct {
	opts      Options
	fetcher   Fetcher
	extractor Extractor
	parser    Parser
	writer    exporter.Writer
	sink      storage.Sink
	claims    *ClaimRegistry
	tracer    *BatchTracer
	logger    *slog.Logger
}

// NewDownloader creates a Downloader from explicit collaborators.
func NewDownloader(opts Options, deps Deps) *Downloader {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")

	d := &Downloader{
		opts:      opts,
		fetcher:   deps.Fetcher,
		extractor: deps.Extractor,
		parser:    deps.Parser,
		writer:    deps.Writer,
		sink:      deps.Sink,
		claims:    deps.Claims,
		tracer:    deps.Tracer,
		logger:    infrastructure.WithComponent(deps.Logger, "downloader"),
	}
	if d.sink == nil {
		d.sink = storage.NoopSink{}
	}
	if d.claims == nil {
		d.claims = processClaims
	}
	return d
}

// NewDownloaderFromConfig wires the standard fetcher, extractor, parser and
// writer for cfg. Collaborators already present in deps are kept.
func NewDownloaderFromConfig(cfg config.DownloadConfig, deps Deps) (*Downloader, error) {
	logger := deps.Logger
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	if deps.Fetcher == nil {
		deps.Fetcher = fetcher.New(fetcher.Options{
			Timeout:    cfg.RequestTimeout,
			MaxRetries: cfg.MaxRetries,
			Interval:   cfg.RequestInterval,
			UserAgent:  cfg.UserAgent,
		}, logger, deps.Tracer.Metrics())
	}
	if deps.Extractor == nil {
		deps.Extractor = archive.NewExtractor(cfg.RecordSuffix, cfg.StrictArchive, logger)
	}
	if deps.Parser == nil {
		deps.Parser = records.NewParser(logger)
	}
	if deps.Writer == nil {
		w, err := exporter.ForExtension(cfg.OutputExtension, logger)
		if err != nil {
			return nil, err
		}
		deps.Writer = w
	}
	deps.Logger = logger
	return NewDownloader(OptionsFromConfig(cfg), deps), nil
}

// Options returns the configured policy.
func (d *Downloader) Options() Options {
	return d.opts
}

// Plan resolves a request against the Downloader's options and returns the
// dates it would process. It performs no I/O.
func (d *Downloader) Plan(req Request) (*Plan, error) {
	p := &Plan{
		baseURL:         d.opts.BaseURL,
		outputDir:       d.opts.OutputDir,
		recordSuffix:    d.opts.RecordSuffix,
		outputExtension: d.opts.OutputExtension,
		keep:            d.opts.KeepIntermediate,
	}
	if req.OutputDir != "" {
		dir, err := config.ExpandHome(req.OutputDir)
		if err != nil {
			return nil, apperrors.NewConfigError("output directory", err)
		}
		p.outputDir = dir
	}
	if req.KeepIntermediate != nil {
		p.keep = *req.KeepIntermediate
	}
	skip := d.opts.SkipWeekends
	if req.SkipWeekends != nil {
		skip = *req.SkipWeekends
	}

	dates, err := calendar.Enumerate(req.Start, req.End, skip)
	if err != nil {
		return nil, err
	}
	p.Dates = dates

	format := d.opts.DateFormat
	if req.DateFormat != "" {
		format = req.DateFormat
	}
	if p.pattern, err = calendar.Compile(format); err != nil {
		return nil, err
	}
	return p, nil
}

// Run processes every date of req and calls emit once per date in ascending
// date order. emit is never called concurrently. The returned error is non-nil
// only when the whole batch was rejected (invalid range or configuration) or
// stopped early by ctx; the summary covers the dates reported so far.
func (d *Downloader) Run(ctx context.Context, req Request, emit func(domain.Outcome)) (domain.BatchSummary, error) {
	var summary domain.BatchSummary
	if emit == nil {
		emit = func(domain.Outcome) {}
	}
	if req.BatchID == "" {
		req.BatchID = infrastructure.GenerateTraceID()
	}
	ctx = infrastructure.WithTraceID(ctx, req.BatchID)

	plan, err := d.Plan(req)
	if err != nil {
		o := domain.Outcome{
			BatchID: req.BatchID,
			Date:    calendar.Day(req.Start),
			Status:  domain.OutcomeFailed,
			Detail:  batchErrorDetail(err),
		}
		summary.Add(o)
		emit(o)
		d.logger.ErrorContext(ctx, "Batch rejected", slog.String("error", err.Error()))
		return summary, err
	}
	plan.batchID = req.BatchID

	if err := config.EnsureDir(plan.outputDir); err != nil {
		// every date will report the write failure individually
		d.logger.WarnContext(ctx, "Output directory unavailable",
			slog.String("dir", plan.outputDir),
			slog.String("error", err.Error()))
	}

	started := time.Now()
	ctx, span := d.tracer.TraceBatch(ctx, req.BatchID, len(plan.Dates), d.opts.Workers)

	d.logger.InfoContext(ctx, "Batch started",
		slog.String("from", req.Start.Format(calendar.ISODate)),
		slog.String("to", req.End.Format(calendar.ISODate)),
		slog.Int("dates", len(plan.Dates)),
		slog.String("output_dir", plan.outputDir),
		slog.Int("workers", d.opts.Workers))

	record := func(o domain.Outcome) {
		summary.Add(o)
		emit(o)
	}

	// In-flight dates keep running after cancellation; only the loop stops.
	work := context.WithoutCancel(ctx)

	if d.opts.Workers <= 1 {
		for _, day := range plan.Dates {
			if ctx.Err() != nil {
				summary.Cancelled = true
				break
			}
			record(d.processDate(work, plan, day))
		}
	} else {
		summary.Cancelled = d.runParallel(ctx, work, plan, record)
	}

	d.tracer.RecordBatchCompletion(ctx, span, summary, time.Since(started))
	d.logger.InfoContext(ctx, "Batch finished",
		slog.Int("succeeded", summary.Succeeded),
		slog.Int("skipped", summary.Skipped),
		slog.Int("failed", summary.Failed),
		slog.Bool("cancelled", summary.Cancelled),
		slog.Duration("duration", time.Since(started)))

	if summary.Cancelled {
		return summary, context.Cause(ctx)
	}
	return summary, nil
}

// runParallel fans dates out over a bounded errgroup and releases outcomes
// in date order. It reports whether scheduling stopped because ctx ended.
func (d *Downloader) runParallel(ctx, work context.Context, plan *Plan, record func(domain.Outcome)) bool {
	var (
		g        errgroup.Group
		mu       sync.Mutex
		results  = make([]*domain.Outcome, len(plan.Dates))
		next     int
		canceled bool
	)
	g.SetLimit(d.opts.Workers)

	release := func(i int, o domain.Outcome) {
		mu.Lock()
		defer mu.Unlock()
		results[i] = &o
		for next < len(results) && results[next] != nil {
			record(*results[next])
			results[next] = nil
			next++
		}
	}

	for i, day := range plan.Dates {
		if ctx.Err() != nil {
			canceled = true
			break
		}
		g.Go(func() error {
			release(i, d.processDate(work, plan, day))
			return nil
		})
	}
	_ = g.Wait()
	return canceled
}

func batchErrorDetail(err error) string {
	if apperrors.IsType(err, apperrors.ErrTypeInvalidRange) {
		return calendar.InvalidRangeMessage
	}
	return errorDetail(err)
}
