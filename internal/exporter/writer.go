package exporter

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	apperrors "mktsummary/internal/errors"
	"mktsummary/pkg/contracts/domain"
)

// Header is the fixed output header; the eighth column is intentionally blank.
var Header = []string{"Date", "Ticker", "Open", "High", "Low", "Close", "Vol", ""}

// SheetName names the single worksheet in workbook output.
const SheetName = "Stock Data"

// Writer persists an ordered record set to dest.
type Writer interface {
	Write(records []domain.MarketRecord, dest string) error
}

// ForExtension returns the writer for an output file extension.
func ForExtension(ext string, logger *slog.Logger) (Writer, error) {
	switch strings.ToLower(ext) {
	case ".xlsx", ".xlsm":
		return NewTableWriter(logger), nil
	case ".csv":
		return NewCSVWriter(logger), nil
	}
	return nil, apperrors.NewConfigError(fmt.Sprintf("unsupported output extension %q", ext), nil)
}

// persistAtomic creates a temporary sibling of dest, lets fill write to it and
// renames it over dest only when fill succeeds. The temporary file is removed
// on every failure path.
func persistAtomic(dest string, fill func(f *os.File) error) (err error) {
	dir, base := filepath.Split(dest)
	if dir == "" {
		dir = "."
	}
	tmp, err := os.CreateTemp(dir, "."+base+"-*.tmp")
	if err != nil {
		return apperrors.NewWriteError("create temporary output", err)
	}
	tmpPath := tmp.Name()

	defer func() {
		if err != nil {
			os.Remove(tmpPath)
		}
	}()

	if err = fill(tmp); err != nil {
		tmp.Close()
		return apperrors.NewWriteError("write output", err)
	}
	if err = tmp.Sync(); err != nil {
		tmp.Close()
		return apperrors.NewWriteError("sync output", err)
	}
	if err = tmp.Close(); err != nil {
		return apperrors.NewWriteError("close output", err)
	}
	if err = os.Rename(tmpPath, dest); err != nil {
		return apperrors.NewWriteError("rename output into place", err)
	}
	return nil
}
