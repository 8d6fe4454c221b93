package operations

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"mktsummary/internal/calendar"
	"mktsummary/internal/config"
	apperrors "mktsummary/internal/errors"
	"mktsummary/internal/exporter"
	"mktsummary/internal/infrastructure"
	"mktsummary/internal/shared/testutil"
	"mktsummary/pkg/contracts/domain"
)

func mustDate(s string) time.Time {
	t, err := time.Parse(calendar.ISODate, s)
	if err != nil {
		panic(err)
	}
	return t
}

// dateRange lists every ISO date from from to to inclusive.
func dateRange(from, to string) []string {
	var dates []string
	for d := mustDate(from); !d.After(mustDate(to)); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d.Format(calendar.ISODate))
	}
	return dates
}

func testDownloader(t *testing.T, baseURL, outDir string, workers int, deps Deps) *Downloader {
	t.Helper()
	cfg := config.Default().Download
	cfg.BaseURL = baseURL
	cfg.OutputDir = outDir
	cfg.Workers = workers
	cfg.RequestTimeout = 5 * time.Second

	if deps.Logger == nil {
		deps.Logger = infrastructure.NewLogger(io.Discard, "error")
	}
	if deps.Claims == nil {
		deps.Claims = NewClaimRegistry()
	}
	d, err := NewDownloaderFromConfig(cfg, deps)
	require.NoError(t, err)
	return d
}

func collect(outcomes *[]domain.Outcome) func(domain.Outcome) {
	return func(o domain.Outcome) { *outcomes = append(*outcomes, o) }
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestRun_ProcessesBusinessDates(t *testing.T) {
	srv := testutil.NewArchiveServer(t)
	srv.Publish(t, dateRange("2023-12-04", "2023-12-11"), "ABC", "XYZ")
	out := t.TempDir()
	d := testDownloader(t, srv.URL, out, 1, Deps{})

	var outcomes []domain.Outcome
	summary, err := d.Run(context.Background(), Request{Start: mustDate("2023-12-04"), End: mustDate("2023-12-11")}, collect(&outcomes))
	require.NoError(t, err)

	require.Len(t, outcomes, 6)
	assert.Equal(t, domain.BatchSummary{Total: 6, Succeeded: 6}, summary)
	assert.EqualValues(t, 6, srv.Hits())

	for i, o := range outcomes {
		assert.Equal(t, domain.OutcomeSuccess, o.Status, o.Detail)
		assert.Equal(t, 2, o.Rows)
		if i > 0 {
			assert.True(t, o.Date.After(outcomes[i-1].Date), "outcomes out of order")
		}
		assert.NotEqual(t, time.Saturday, o.Date.Weekday())
		assert.NotEqual(t, time.Sunday, o.Date.Weekday())
	}
	assert.Equal(t, "Download successful for 2023-12-04", outcomes[0].Detail)
	assert.Equal(t, filepath.Join(out, "2023-12-04.xlsx"), outcomes[0].Output)

	// only workbooks remain: no archives, record files or temp files
	assert.ElementsMatch(t, []string{
		"2023-12-04.xlsx", "2023-12-05.xlsx", "2023-12-06.xlsx",
		"2023-12-07.xlsx", "2023-12-08.xlsx", "2023-12-11.xlsx",
	}, listDir(t, out))
}

func TestRun_IncludesWeekendsWhenAsked(t *testing.T) {
	srv := testutil.NewArchiveServer(t)
	srv.Publish(t, dateRange("2023-12-08", "2023-12-11"), "ABC", "XYZ")
	d := testDownloader(t, srv.URL, t.TempDir(), 1, Deps{})

	skip := false
	summary, err := d.Run(context.Background(), Request{
		Start:        mustDate("2023-12-08"),
		End:          mustDate("2023-12-11"),
		SkipWeekends: &skip,
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, summary.Succeeded)
}

func TestRun_InvalidRange(t *testing.T) {
	srv := testutil.NewArchiveServer(t)
	d := testDownloader(t, srv.URL, t.TempDir(), 1, Deps{})

	var outcomes []domain.Outcome
	summary, err := d.Run(context.Background(), Request{Start: mustDate("2023-12-08"), End: mustDate("2023-12-04")}, collect(&outcomes))

	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeInvalidRange))
	require.Len(t, outcomes, 1)
	assert.Equal(t, domain.OutcomeFailed, outcomes[0].Status)
	assert.Equal(t, "Invalid date range", outcomes[0].Detail)
	assert.Equal(t, 1, summary.Failed)
	assert.Zero(t, srv.Hits())
}

func TestRun_RerunSkipsCompletedDates(t *testing.T) {
	srv := testutil.NewArchiveServer(t)
	srv.Publish(t, dateRange("2023-12-04", "2023-12-08"), "ABC", "XYZ")
	out := t.TempDir()
	d := testDownloader(t, srv.URL, out, 1, Deps{})
	req := Request{Start: mustDate("2023-12-04"), End: mustDate("2023-12-08")}

	_, err := d.Run(context.Background(), req, nil)
	require.NoError(t, err)
	before := srv.Hits()

	var outcomes []domain.Outcome
	summary, err := d.Run(context.Background(), req, collect(&outcomes))
	require.NoError(t, err)

	assert.Equal(t, before, srv.Hits(), "rerun must not touch the network")
	assert.Equal(t, 5, summary.Skipped)
	for _, o := range outcomes {
		assert.Equal(t, domain.OutcomeSkipped, o.Status)
	}
	assert.Equal(t, "File already exists for 2023-12-04", outcomes[0].Detail)
}

func TestRun_FailuresAreIsolated(t *testing.T) {
	srv := testutil.NewArchiveServer(t)
	srv.Publish(t, dateRange("2023-12-04", "2023-12-08"), "ABC", "XYZ")
	// malformed close price on an accepted line
	srv.PublishRecords(t, "2023-12-05", "05DEC2023|ABC|X|X|1|2|3|abc|5\n")
	// archive without a record entry
	srv.PublishRaw("2023-12-06", testutil.ZipArchive(t, map[string]string{"readme.txt": "nothing here"}))
	// not published at all
	srv.Unpublish("2023-12-07")

	out := t.TempDir()
	d := testDownloader(t, srv.URL, out, 1, Deps{})

	var outcomes []domain.Outcome
	summary, err := d.Run(context.Background(), Request{Start: mustDate("2023-12-04"), End: mustDate("2023-12-08")}, collect(&outcomes))
	require.NoError(t, err)
	require.Len(t, outcomes, 5)

	assert.Equal(t, domain.BatchSummary{Total: 5, Succeeded: 2, Failed: 3}, summary)
	assert.Equal(t, domain.OutcomeSuccess, outcomes[0].Status)
	assert.Equal(t, domain.OutcomeSuccess, outcomes[4].Status)

	assert.Equal(t, domain.OutcomeFailed, outcomes[1].Status)
	assert.True(t, strings.HasPrefix(outcomes[1].Detail, "Download failed for 2023-12-05 Tuesday: "), outcomes[1].Detail)
	assert.Contains(t, outcomes[1].Detail, "close")

	assert.Contains(t, outcomes[2].Detail, "no .lis entry in archive")
	assert.True(t, strings.HasPrefix(outcomes[3].Detail, "Download failed for 2023-12-07 Thursday: "))
	assert.Empty(t, outcomes[3].Output)

	// failed dates leave nothing behind
	assert.ElementsMatch(t, []string{"2023-12-04.xlsx", "2023-12-08.xlsx"}, listDir(t, out))
}

func TestRun_WritesWorkbook(t *testing.T) {
	srv := testutil.NewArchiveServer(t)
	srv.PublishRecords(t, "2023-12-07", testutil.RecordLines(mustDate("2023-12-07"), "ABC")+"TRAILER|1\n")
	out := t.TempDir()
	d := testDownloader(t, srv.URL, out, 1, Deps{})

	summary, err := d.Run(context.Background(), Request{Start: mustDate("2023-12-07"), End: mustDate("2023-12-07")}, nil)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Succeeded)

	f, err := excelize.OpenFile(filepath.Join(out, "2023-12-07.xlsx"))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(exporter.SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"07-Dec-23", "ABC", "100", "105", "99", "104", "50000", "0"}, rows[1])
}

func TestRun_KeepIntermediateAndDateFormat(t *testing.T) {
	srv := testutil.NewArchiveServer(t)
	srv.Publish(t, dateRange("2023-12-07", "2023-12-07"), "ABC", "XYZ")
	out := t.TempDir()
	d := testDownloader(t, srv.URL, out, 1, Deps{})

	keep := true
	summary, err := d.Run(context.Background(), Request{
		Start:            mustDate("2023-12-07"),
		End:              mustDate("2023-12-07"),
		DateFormat:       "dd-MMM-yyyy",
		KeepIntermediate: &keep,
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)
	assert.ElementsMatch(t, []string{"07-Dec-2023.xlsx", "07-Dec-2023.lis"}, listDir(t, out))
}

func TestRun_RejectsUnsafeDateFormat(t *testing.T) {
	srv := testutil.NewArchiveServer(t)
	d := testDownloader(t, srv.URL, t.TempDir(), 1, Deps{})

	var outcomes []domain.Outcome
	_, err := d.Run(context.Background(), Request{
		Start:      mustDate("2023-12-07"),
		End:        mustDate("2023-12-07"),
		DateFormat: "yyyy/MM/dd",
	}, collect(&outcomes))

	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeConfig))
	require.Len(t, outcomes, 1)
	assert.Equal(t, domain.OutcomeFailed, outcomes[0].Status)
	assert.Zero(t, srv.Hits())
}

func TestRun_ParallelKeepsDateOrder(t *testing.T) {
	srv := testutil.NewArchiveServer(t)
	srv.Publish(t, dateRange("2023-12-04", "2023-12-15"), "ABC", "XYZ")
	// earlier dates answer slower so completions arrive out of order
	srv.SetDelay(func(date string) time.Duration {
		d, err := time.Parse(calendar.ISODate, date)
		if err != nil {
			return 0
		}
		return time.Duration(16-d.Day()) * 5 * time.Millisecond
	})
	out := t.TempDir()
	d := testDownloader(t, srv.URL, out, 4, Deps{})

	var outcomes []domain.Outcome
	summary, err := d.Run(context.Background(), Request{Start: mustDate("2023-12-04"), End: mustDate("2023-12-15")}, collect(&outcomes))
	require.NoError(t, err)

	require.Len(t, outcomes, 10)
	assert.Equal(t, 10, summary.Succeeded)
	for i := 1; i < len(outcomes); i++ {
		assert.True(t, outcomes[i].Date.After(outcomes[i-1].Date), "outcome %d out of order", i)
	}
	assert.Len(t, listDir(t, out), 10)
}

func TestRun_CancelStopsAtDateBoundary(t *testing.T) {
	srv := testutil.NewArchiveServer(t)
	srv.Publish(t, dateRange("2023-12-04", "2023-12-08"), "ABC", "XYZ")
	d := testDownloader(t, srv.URL, t.TempDir(), 1, Deps{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var outcomes []domain.Outcome
	summary, err := d.Run(ctx, Request{Start: mustDate("2023-12-04"), End: mustDate("2023-12-08")}, func(o domain.Outcome) {
		outcomes = append(outcomes, o)
		cancel()
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.True(t, summary.Cancelled)
	require.Len(t, outcomes, 1)
	assert.Equal(t, domain.OutcomeSuccess, outcomes[0].Status)
	assert.EqualValues(t, 1, srv.Hits())
}

func TestRun_ClaimedOutputIsSkipped(t *testing.T) {
	srv := testutil.NewArchiveServer(t)
	srv.Publish(t, dateRange("2023-12-07", "2023-12-07"), "ABC", "XYZ")
	out := t.TempDir()
	claims := NewClaimRegistry()
	d := testDownloader(t, srv.URL, out, 1, Deps{Claims: claims})

	release, ok := claims.TryClaim(filepath.Join(out, "2023-12-07.xlsx"))
	require.True(t, ok)
	defer release()

	var outcomes []domain.Outcome
	_, err := d.Run(context.Background(), Request{Start: mustDate("2023-12-07"), End: mustDate("2023-12-07")}, collect(&outcomes))
	require.NoError(t, err)

	require.Len(t, outcomes, 1)
	assert.Equal(t, domain.OutcomeSkipped, outcomes[0].Status)
	assert.Equal(t, "Download already in progress for 2023-12-07", outcomes[0].Detail)
	assert.Zero(t, srv.Hits())
	assert.Equal(t, 1, claims.Held())
}

type mockSink struct {
	mock.Mock
}

func (m *mockSink) Put(ctx context.Context, localPath string) (string, error) {
	args := m.Called(ctx, localPath)
	return args.String(0), args.Error(1)
}

func TestRun_MirrorFailureDoesNotFailDate(t *testing.T) {
	srv := testutil.NewArchiveServer(t)
	srv.Publish(t, dateRange("2023-12-07", "2023-12-07"), "ABC", "XYZ")
	out := t.TempDir()

	sink := new(mockSink)
	sink.On("Put", mock.Anything, filepath.Join(out, "2023-12-07.xlsx")).
		Return("", apperrors.NewWriteError("upload", io.ErrUnexpectedEOF)).Once()

	logger, logs := testutil.NewTestLogger(t)
	d := testDownloader(t, srv.URL, out, 1, Deps{Sink: sink, Logger: logger})
	summary, err := d.Run(context.Background(), Request{Start: mustDate("2023-12-07"), End: mustDate("2023-12-07")}, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Succeeded)
	sink.AssertExpectations(t)
	testutil.AssertLogged(t, logs, slog.LevelWarn, "Output mirror failed")
}

func TestRequestFromBatch(t *testing.T) {
	skip := false
	req, err := RequestFromBatch("b1", domain.BatchRequest{
		StartDate:    "2023-12-04",
		EndDate:      "2023-12-08",
		OutputDir:    "/tmp/out",
		SkipWeekends: &skip,
	})
	require.NoError(t, err)
	assert.Equal(t, "b1", req.BatchID)
	assert.Equal(t, mustDate("2023-12-04"), req.Start)
	assert.Equal(t, mustDate("2023-12-08"), req.End)
	assert.Equal(t, &skip, req.SkipWeekends)

	_, err = RequestFromBatch("b2", domain.BatchRequest{StartDate: "04/12/2023", EndDate: "2023-12-08"})
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeValidation))
}
