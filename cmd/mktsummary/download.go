package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v3"

	"mktsummary/internal/calendar"
	"mktsummary/internal/config"
	"mktsummary/internal/infrastructure"
	"mktsummary/internal/operations"
	"mktsummary/internal/storage"
	"mktsummary/pkg/contracts/domain"
)

var errDatesFailed = errors.New("one or more dates failed")

func downloadCommand() *cli.Command {
	return &cli.Command{
		Name:  "download",
		Usage: "Download and convert every date in a range",
		Description: "Dates whose workbook already exists in the output directory are skipped.\n" +
			"Only the configured extension (default .xlsx) is checked, so workbooks\n" +
			"written as .xls are not detected unless MKT_DOWNLOAD_OUTPUT_EXTENSION=.xls\n" +
			"or download.output_extension is set in the config file.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "from", Usage: "First date, `YYYY-MM-DD`", Required: true},
			&cli.StringFlag{Name: "to", Usage: "Last date, `YYYY-MM-DD`", Required: true},
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "Output directory"},
			&cli.StringFlag{Name: "format", Usage: "File name pattern, e.g. dd-MMM-yyyy"},
			&cli.StringFlag{Name: "base-url", Usage: "Archive base URL"},
			&cli.BoolFlag{Name: "no-skip-weekends", Usage: "Also fetch Saturdays and Sundays"},
			&cli.BoolFlag{Name: "keep-lis", Usage: "Keep the extracted record file next to the workbook"},
			&cli.IntFlag{Name: "workers", Aliases: []string{"w"}, Usage: "Dates processed in parallel"},
			&cli.BoolFlag{Name: "strict", Usage: "Fail archives that hold more than one record file"},
			&cli.BoolFlag{Name: "quiet", Aliases: []string{"q"}, Usage: "Hide the progress bar"},
		},
		Action: downloadAction,
	}
}

func downloadAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = infrastructure.CloseLogFile() }()
	applyDownloadFlags(cmd, &cfg.Download)
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := infrastructure.GetLogger()

	sink, err := storage.New(ctx, cfg.Storage, logger)
	if err != nil {
		return err
	}
	downloader, err := operations.NewDownloaderFromConfig(cfg.Download, operations.Deps{
		Sink:   sink,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	ctx = infrastructure.EnsureTraceID(ctx)
	req, err := operations.RequestFromBatch(infrastructure.GetTraceID(ctx), domain.BatchRequest{
		StartDate: cmd.String("from"),
		EndDate:   cmd.String("to"),
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := cmd.Root()
	return runDownload(ctx, downloader, req, root.Writer, progressWriter(cmd, root.ErrWriter))
}

// applyDownloadFlags overrides configured values with the flags that were set.
func applyDownloadFlags(cmd *cli.Command, d *config.DownloadConfig) {
	if cmd.IsSet("out") {
		d.OutputDir = cmd.String("out")
	}
	if cmd.IsSet("format") {
		d.DateFormat = cmd.String("format")
	}
	if cmd.IsSet("base-url") {
		d.BaseURL = cmd.String("base-url")
	}
	if cmd.Bool("no-skip-weekends") {
		d.SkipWeekends = false
	}
	if cmd.Bool("keep-lis") {
		d.KeepIntermediate = true
	}
	if cmd.IsSet("workers") {
		d.Workers = int(cmd.Int("workers"))
	}
	if cmd.Bool("strict") {
		d.StrictArchive = true
	}
}

func progressWriter(cmd *cli.Command, w io.Writer) io.Writer {
	if cmd.Bool("quiet") || w == nil {
		return io.Discard
	}
	return w
}

// runDownload runs one batch, printing each outcome to out and a progress bar
// to progress. It returns errDatesFailed when any date failed.
func runDownload(ctx context.Context, d *operations.Downloader, req operations.Request, out, progress io.Writer) error {
	total := 0
	if plan, err := d.Plan(req); err == nil {
		total = len(plan.Dates)
	}

	tracker := operations.NewProgressTracker(total)
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetWriter(progress),
		progressbar.OptionSetDescription("Downloading"),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)

	summary, err := d.Run(ctx, req, func(o domain.Outcome) {
		tracker.Increment(o.Detail)
		bar.Describe(fmt.Sprintf("Downloading (ETA %s)", tracker.GetETA()))
		_ = bar.Add(1)
		fmt.Fprintf(out, "%s  %-7s  %s\n", o.Date.Format(calendar.ISODate), o.Status, o.Detail)
	})
	_ = bar.Finish()

	fmt.Fprintf(out, "%d succeeded, %d skipped, %d failed in %s\n",
		summary.Succeeded, summary.Skipped, summary.Failed, tracker.GetElapsedTime().Round(time.Millisecond))

	switch {
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("download cancelled after %d of %d dates", summary.Total, total)
	case err != nil:
		return err
	case summary.Failed > 0:
		return errDatesFailed
	}
	return nil
}
