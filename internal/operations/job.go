package operations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"mktsummary/internal/calendar"
	"mktsummary/internal/config"
	apperrors "mktsummary/internal/errors"
	"mktsummary/pkg/contracts/domain"
)

// DateState is the pipeline step a date is in.
type DateState string

const (
	StatePending    DateState = "pending"
	StateSkipped    DateState = "skipped"
	StateFetching   DateState = "fetching"
	StateExtracting DateState = "extracting"
	StateConverting DateState = "converting"
	StateDone       DateState = "done"
	StateFailed     DateState = "failed"
)

// failedDayLayout renders the date in failure details, e.g. "2024-01-03 Wednesday".
const failedDayLayout = "2006-01-02 Monday"

// Plan is a resolved batch: its dates and where their files go.
type Plan struct {
	Dates []time.Time

	batchID         string
	baseURL         string
	outputDir       string
	recordSuffix    string
	outputExtension string
	keep            bool
	pattern         *calendar.Pattern
}

// OutputDir returns the directory workbooks are written to.
func (p *Plan) OutputDir() string {
	return p.outputDir
}

// Name returns the formatted file name stem for day.
func (p *Plan) Name(day time.Time) string {
	return p.pattern.Format(day)
}

// OutputPath returns the workbook path for day.
func (p *Plan) OutputPath(day time.Time) string {
	return filepath.Join(p.outputDir, p.Name(day)+p.outputExtension)
}

// URL returns the remote archive location for day.
func (p *Plan) URL(day time.Time) string {
	return p.baseURL + "/" + day.Format(calendar.ISODate) + config.ArchiveExtension
}

// processDate runs one date through the pipeline. It never returns an error:
// every failure is folded into the Outcome.
func (d *Downloader) processDate(ctx context.Context, plan *Plan, day time.Time) domain.Outcome {
	started := time.Now()
	name := plan.Name(day)
	output := plan.OutputPath(day)

	ctx, span := d.tracer.TraceDate(ctx, day)
	logger := d.logger.With(slog.String("date", day.Format(calendar.ISODate)))

	o := domain.Outcome{BatchID: plan.batchID, Date: day, Output: output}

	rows, err := d.convert(ctx, logger, plan, day, name, output, &o)
	o.Duration = time.Since(started)

	switch {
	case err != nil:
		o.Status = domain.OutcomeFailed
		o.Output = ""
		o.Detail = fmt.Sprintf("Download failed for %s: %s", day.Format(failedDayLayout), errorDetail(err))
		logger.ErrorContext(ctx, "Date failed",
			slog.String("error", err.Error()),
			slog.String("error_type", string(apperrors.TypeOf(err))))
		d.tracer.RecordStep(ctx, StateFailed, o.Duration)
	case o.Status == domain.OutcomeSkipped:
		logger.InfoContext(ctx, "Date skipped", slog.String("reason", o.Detail))
		d.tracer.RecordStep(ctx, StateSkipped, o.Duration)
	default:
		o.Status = domain.OutcomeSuccess
		o.Rows = rows
		o.Detail = "Download successful for " + name
		logger.InfoContext(ctx, "Date converted",
			slog.String("output", output),
			slog.Int("rows", rows),
			slog.Duration("duration", o.Duration))
		d.tracer.RecordStep(ctx, StateDone, o.Duration)
	}

	d.tracer.RecordOutcome(ctx, span, o, err)
	return o
}

// convert performs the fetch, extract, parse and write steps. It sets o to
// Skipped when the date needs no work.
func (d *Downloader) convert(ctx context.Context, logger *slog.Logger, plan *Plan, day time.Time, name, output string, o *domain.Outcome) (int, error) {
	release, ok := d.claims.TryClaim(output)
	if !ok {
		o.Status = domain.OutcomeSkipped
		o.Detail = "Download already in progress for " + name
		return 0, nil
	}
	defer release()

	if config.FileExists(output) {
		o.Status = domain.OutcomeSkipped
		o.Detail = "File already exists for " + name
		return 0, nil
	}

	step := time.Now()
	res, err := d.fetcher.Fetch(ctx, plan.URL(day), plan.outputDir, name)
	if err != nil {
		return 0, err
	}
	defer removeTemp(ctx, logger, res.Path)
	d.tracer.RecordStep(ctx, StateFetching, time.Since(step))

	step = time.Now()
	recordPath := filepath.Join(plan.outputDir, name+plan.recordSuffix)
	if _, err := d.extractor.Extract(res.Path, recordPath); err != nil {
		return 0, err
	}
	if !plan.keep {
		defer removeTemp(ctx, logger, recordPath)
	}
	d.tracer.RecordStep(ctx, StateExtracting, time.Since(step))

	step = time.Now()
	recs, stats, err := d.parser.ParseFile(recordPath)
	if err != nil {
		return 0, err
	}
	if stats.Dropped > 0 {
		logger.DebugContext(ctx, "Dropped short record lines", slog.Int("dropped", stats.Dropped))
	}
	if err := d.writer.Write(recs, output); err != nil {
		return 0, err
	}
	d.tracer.RecordStep(ctx, StateConverting, time.Since(step))

	if location, err := d.sink.Put(ctx, output); err != nil {
		logger.WarnContext(ctx, "Output mirror failed", slog.String("error", err.Error()))
	} else if location != "" {
		logger.DebugContext(ctx, "Output mirrored", slog.String("location", location))
	}

	return len(recs), nil
}

func removeTemp(ctx context.Context, logger *slog.Logger, path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.WarnContext(ctx, "Failed to remove temporary file",
			slog.String("path", path),
			slog.String("error", err.Error()))
	}
}

func errorDetail(err error) string {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.Detail()
	}
	return err.Error()
}
