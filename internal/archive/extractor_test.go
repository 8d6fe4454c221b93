package archive

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "mktsummary/internal/errors"
	"mktsummary/internal/infrastructure"
)

type entry struct {
	name, body string
}

func writeArchive(t *testing.T, dir string, entries ...entry) string {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		w, err := zw.Create(e.name)
		require.NoError(t, err)
		_, err = w.Write([]byte(e.body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())

	path := filepath.Join(dir, "archive.Z")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
	return path
}

func newExtractor(strict bool) *Extractor {
	return NewExtractor(".lis", strict, infrastructure.NewLogger(io.Discard, "error"))
}

func TestExtract_FirstMatch(t *testing.T) {
	dir := t.TempDir()
	archivePath := writeArchive(t, dir,
		entry{"README.txt", "ignore me"},
		entry{"2023-12-07.lis", "07DEC2023|ABC|X|X|1|2|3|4|5"},
		entry{"extra.lis", "second"},
	)
	dest := filepath.Join(dir, "2023-12-07.lis")

	name, err := newExtractor(false).Extract(archivePath, dest)
	require.NoError(t, err)

	assert.Equal(t, "2023-12-07.lis", name)
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "07DEC2023|ABC|X|X|1|2|3|4|5", string(data))
}

func TestExtract_SuffixCaseAndDirectories(t *testing.T) {
	dir := t.TempDir()
	archivePath := writeArchive(t, dir,
		entry{"data.lis/", ""},
		entry{"closing/MKT.LIS", "payload"},
	)

	name, err := newExtractor(true).Extract(archivePath, filepath.Join(dir, "out.lis"))
	require.NoError(t, err)
	assert.Equal(t, "closing/MKT.LIS", name)
}

func TestExtract_StrictRejectsSecondMatch(t *testing.T) {
	dir := t.TempDir()
	archivePath := writeArchive(t, dir,
		entry{"a.lis", "one"},
		entry{"b.lis", "two"},
	)
	dest := filepath.Join(dir, "out.lis")

	_, err := newExtractor(true).Extract(archivePath, dest)

	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeExtraction))
	assert.True(t, errors.Is(err, apperrors.ErrMultipleRecords))
	assert.NoFileExists(t, dest)
}

func TestExtract_RecordNotFound(t *testing.T) {
	dir := t.TempDir()
	archivePath := writeArchive(t, dir, entry{"notes.txt", "nothing here"})

	_, err := newExtractor(false).Extract(archivePath, filepath.Join(dir, "out.lis"))

	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeRecordNotFound))
	assert.Contains(t, err.Error(), "no .lis entry in archive")
}

func TestExtract_NotAnArchive(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.Z")
	require.NoError(t, os.WriteFile(path, []byte("<html>maintenance</html>"), 0644))

	_, err := newExtractor(false).Extract(path, filepath.Join(dir, "out.lis"))

	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeExtraction))
}

func TestExtract_UnwritableDestination(t *testing.T) {
	dir := t.TempDir()
	archivePath := writeArchive(t, dir, entry{"x.lis", "x"})

	_, err := newExtractor(false).Extract(archivePath, filepath.Join(dir, "missing", "out.lis"))

	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeExtraction))
}
