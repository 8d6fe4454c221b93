package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "mktsummary/internal/errors"
	"mktsummary/internal/infrastructure"
)

func newFetcher(opts Options) *Fetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 5 * time.Second
	}
	return New(opts, infrastructure.NewLogger(io.Discard, "error"), nil)
}

func dirEntries(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestFetch_Success(t *testing.T) {
	var gotAgent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAgent = r.Header.Get("User-Agent")
		assert.Equal(t, "/download/mkt_summary/2023-12-07.Z", r.URL.Path)
		w.Write([]byte("archive-bytes"))
	}))
	defer server.Close()

	dir := t.TempDir()
	f := newFetcher(Options{UserAgent: "mktsummary-test"})

	res, err := f.Fetch(context.Background(), server.URL+"/download/mkt_summary/2023-12-07.Z", dir, "2023-12-07")
	require.NoError(t, err)

	assert.Equal(t, "mktsummary-test", gotAgent)
	assert.Equal(t, int64(len("archive-bytes")), res.Bytes)
	assert.Equal(t, dir, filepath.Dir(res.Path))

	data, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	assert.Equal(t, "archive-bytes", string(data))
}

func TestFetch_UniqueTempFiles(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("x"))
	}))
	defer server.Close()

	dir := t.TempDir()
	f := newFetcher(Options{})

	a, err := f.Fetch(context.Background(), server.URL, dir, "2023-12-07")
	require.NoError(t, err)
	b, err := f.Fetch(context.Background(), server.URL, dir, "2023-12-07")
	require.NoError(t, err)

	assert.NotEqual(t, a.Path, b.Path)
}

func TestFetch_StatusErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
	}{
		{"not found", http.StatusNotFound},
		{"forbidden", http.StatusForbidden},
		{"server error", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			dir := t.TempDir()
			res, err := newFetcher(Options{}).Fetch(context.Background(), server.URL, dir, "d")

			assert.Nil(t, res)
			require.Error(t, err)
			assert.True(t, apperrors.IsType(err, apperrors.ErrTypeFetch))
			assert.Empty(t, dirEntries(t, dir), "partial download must be removed")
		})
	}
}

func TestFetch_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	dir := t.TempDir()
	_, err := newFetcher(Options{}).Fetch(context.Background(), url, dir, "d")

	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeFetch))
	assert.Empty(t, dirEntries(t, dir))
}

func TestFetch_SingleRequestByDefault(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := newFetcher(Options{}).Fetch(context.Background(), server.URL, t.TempDir(), "d")

	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetch_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("partial garbage"))
			return
		}
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	res, err := newFetcher(Options{MaxRetries: 3}).Fetch(context.Background(), server.URL, t.TempDir(), "d")
	require.NoError(t, err)

	assert.Equal(t, int32(3), calls.Load())
	data, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(data))
}

func TestFetch_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := newFetcher(Options{MaxRetries: 3}).Fetch(context.Background(), server.URL, t.TempDir(), "d")

	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetch_RequestPacing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("x"))
	}))
	defer server.Close()

	f := newFetcher(Options{Interval: 100 * time.Millisecond})
	dir := t.TempDir()

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := f.Fetch(context.Background(), server.URL, dir, "d")
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 180*time.Millisecond)
}

func TestFetch_MissingDestination(t *testing.T) {
	_, err := newFetcher(Options{}).Fetch(context.Background(), "http://127.0.0.1:1", filepath.Join(t.TempDir(), "nope"), "d")

	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeFetch))
}
