// Package archive locates and copies the record file out of a downloaded
// per-date archive.
package archive

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/klauspost/compress/zip"

	apperrors "mktsummary/internal/errors"
	"mktsummary/internal/infrastructure"
)

// Extractor copies the single record entry out of an archive.
type Extractor struct {
	suffix string
	strict bool
	logger *slog.Logger
}

// NewExtractor creates an Extractor matching entries that end in suffix
// (compared case-insensitively). In strict mode every entry is scanned and a
// second match is an error; otherwise the first match wins.
func NewExtractor(suffix string, strict bool, logger *slog.Logger) *Extractor {
	return &Extractor{
		suffix: strings.ToLower(suffix),
		strict: strict,
		logger: infrastructure.WithComponent(logger, "extractor"),
	}
}

// Extract copies the matching entry of archivePath to destPath and returns
// the entry name. destPath is never left partially written.
func (e *Extractor) Extract(archivePath, destPath string) (string, error) {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return "", apperrors.NewExtractionError("open archive", err)
	}
	defer r.Close()

	entry, err := e.find(r.File)
	if err != nil {
		return "", err
	}

	if err := copyEntry(entry, destPath); err != nil {
		return "", apperrors.NewExtractionError(fmt.Sprintf("copy entry %s", entry.Name), err)
	}

	e.logger.Debug("Record entry extracted",
		slog.String("entry", entry.Name),
		slog.String("dest", destPath),
		slog.Uint64("size", entry.UncompressedSize64))

	return entry.Name, nil
}

func (e *Extractor) find(files []*zip.File) (*zip.File, error) {
	var match *zip.File
	for _, f := range files {
		if f.FileInfo().IsDir() || !strings.HasSuffix(strings.ToLower(f.Name), e.suffix) {
			continue
		}
		if match == nil {
			match = f
			if !e.strict {
				break
			}
			continue
		}
		return nil, apperrors.NewExtractionError(
			fmt.Sprintf("entries %s and %s both match %s", match.Name, f.Name, e.suffix),
			apperrors.ErrMultipleRecords)
	}
	if match == nil {
		return nil, apperrors.NewRecordNotFoundError(e.suffix)
	}
	return match, nil
}

func copyEntry(f *zip.File, destPath string) (err error) {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.Create(destPath)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(destPath)
		}
	}()

	_, err = io.Copy(out, rc)
	return err
}
