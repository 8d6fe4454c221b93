package exporter

import (
	"encoding/csv"
	"log/slog"
	"os"
	"strconv"

	"mktsummary/internal/infrastructure"
	"mktsummary/pkg/contracts/domain"
)

// CSVWriter writes records as CSV with the workbook's column layout.
type CSVWriter struct {
	logger *slog.Logger
	// BOMPrefix adds a UTF-8 BOM so spreadsheet tools detect the encoding
	BOMPrefix bool
}

// NewCSVWriter creates a new CSV writer instance
func NewCSVWriter(logger *slog.Logger) *CSVWriter {
	return &CSVWriter{
		logger:    infrastructure.WithComponent(logger, "csv_writer"),
		BOMPrefix: true,
	}
}

// Write persists records to dest atomically.
func (w *CSVWriter) Write(records []domain.MarketRecord, dest string) error {
	err := persistAtomic(dest, func(f *os.File) error {
		if w.BOMPrefix {
			if _, err := f.Write([]byte{0xEF, 0xBB, 0xBF}); err != nil {
				return err
			}
		}

		cw := csv.NewWriter(f)
		if err := cw.Write(Header); err != nil {
			return err
		}
		for _, rec := range records {
			if err := cw.Write(csvRow(rec)); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	})
	if err != nil {
		return err
	}

	w.logger.Debug("CSV written",
		slog.String("path", dest),
		slog.Int("rows", len(records)))
	return nil
}

func csvRow(rec domain.MarketRecord) []string {
	trailing := ""
	if rec.HasTrailing {
		trailing = formatFloat(rec.Trailing)
	}
	return []string{
		rec.Date,
		rec.Ticker,
		formatFloat(rec.Open),
		formatFloat(rec.High),
		formatFloat(rec.Low),
		formatFloat(rec.Close),
		formatFloat(rec.Volume),
		trailing,
	}
}

// formatFloat keeps the shortest exact representation.
func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
