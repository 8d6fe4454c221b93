package exporter

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/xuri/excelize/v2"

	apperrors "mktsummary/internal/errors"
	"mktsummary/internal/infrastructure"
	"mktsummary/pkg/contracts/domain"
)

// TableWriter writes records to an excelize workbook.
type TableWriter struct {
	logger *slog.Logger
}

// NewTableWriter creates a workbook writer
func NewTableWriter(logger *slog.Logger) *TableWriter {
	return &TableWriter{logger: infrastructure.WithComponent(logger, "table_writer")}
}

// Write builds the workbook in memory and persists it atomically to dest.
func (w *TableWriter) Write(records []domain.MarketRecord, dest string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return apperrors.NewWriteError("rename sheet", err)
	}

	sw, err := f.NewStreamWriter(SheetName)
	if err != nil {
		return apperrors.NewWriteError("create stream writer", err)
	}

	header := make([]interface{}, len(Header))
	for i, h := range Header {
		header[i] = h
	}
	if err := sw.SetRow("A1", header); err != nil {
		return apperrors.NewWriteError("write header", err)
	}

	for i, rec := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return apperrors.NewWriteError("cell name", err)
		}
		if err := sw.SetRow(cell, rowValues(rec)); err != nil {
			return apperrors.NewWriteError(fmt.Sprintf("write row %d", i+1), err)
		}
	}
	if err := sw.Flush(); err != nil {
		return apperrors.NewWriteError("flush rows", err)
	}

	err = persistAtomic(dest, func(out *os.File) error {
		_, err := f.WriteTo(out)
		return err
	})
	if err != nil {
		return err
	}

	w.logger.Debug("Workbook written",
		slog.String("path", dest),
		slog.Int("rows", len(records)))
	return nil
}

func rowValues(rec domain.MarketRecord) []interface{} {
	row := []interface{}{rec.Date, rec.Ticker, rec.Open, rec.High, rec.Low, rec.Close, rec.Volume, nil}
	if rec.HasTrailing {
		row[7] = rec.Trailing
	}
	return row
}
