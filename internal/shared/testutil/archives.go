package testutil

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
)

// ZipArchive builds an in-memory zip holding entries.
func ZipArchive(t testing.TB, entries map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range entries {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip entry %s: %v", name, err)
		}
		if _, err := io.WriteString(w, body); err != nil {
			t.Fatalf("zip entry %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

// RecordLines returns one well-formed record line per ticker, dated with the
// ddMMMyyyy token for day.
func RecordLines(day time.Time, tickers ...string) string {
	token := strings.ToUpper(day.Format("02Jan2006"))
	var b strings.Builder
	for _, tk := range tickers {
		b.WriteString(token + "|" + tk + "|X|X|100.0|105.0|99.0|104.0|50000.0|0.0\n")
	}
	return b.String()
}

// ArchiveServer serves <date>.Z archives from memory and answers 404 for
// anything unpublished.
type ArchiveServer struct {
	*httptest.Server

	mu       sync.Mutex
	archives map[string][]byte
	delay    func(date string) time.Duration
	hits     atomic.Int64
}

// NewArchiveServer starts a server that is closed with t.
func NewArchiveServer(t testing.TB) *ArchiveServer {
	s := &ArchiveServer{archives: make(map[string][]byte)}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

func (s *ArchiveServer) serve(w http.ResponseWriter, r *http.Request) {
	s.hits.Add(1)
	date := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/"), ".Z")
	s.mu.Lock()
	delay := s.delay
	s.mu.Unlock()
	if delay != nil {
		time.Sleep(delay(date))
	}
	s.mu.Lock()
	body, ok := s.archives[date]
	s.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(body)
}

// Publish makes an archive for each yyyy-MM-dd date with one record line per
// ticker.
func (s *ArchiveServer) Publish(t testing.TB, dates []string, tickers ...string) {
	t.Helper()
	if len(tickers) == 0 {
		tickers = []string{"ABC"}
	}
	for _, date := range dates {
		day, err := time.Parse("2006-01-02", date)
		if err != nil {
			t.Fatalf("publish %q: %v", date, err)
		}
		s.PublishRecords(t, date, RecordLines(day, tickers...))
	}
}

// PublishRecords serves an archive whose single .lis entry holds records.
func (s *ArchiveServer) PublishRecords(t testing.TB, date, records string) {
	t.Helper()
	s.PublishRaw(date, ZipArchive(t, map[string]string{"MKT" + date + ".lis": records}))
}

// Unpublish makes date answer 404 again.
func (s *ArchiveServer) Unpublish(date string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.archives, date)
}

// SetDelay makes every request for date wait fn(date) before answering.
func (s *ArchiveServer) SetDelay(fn func(date string) time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = fn
}

// PublishRaw serves body for date as-is.
func (s *ArchiveServer) PublishRaw(date string, body []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.archives[date] = body
}

// Hits reports how many requests the server has answered.
func (s *ArchiveServer) Hits() int64 {
	return s.hits.Load()
}
