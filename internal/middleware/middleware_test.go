package middleware

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apierrors "mktsummary/internal/errors"
	"mktsummary/internal/infrastructure"
	"mktsummary/pkg/contracts/domain"
)

func quietLogger() *slog.Logger { return infrastructure.NewLogger(io.Discard, "error") }

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
		assert.Equal(t, seen, infrastructure.GetTraceID(r.Context()))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", seen)
}

func TestRecoverer(t *testing.T) {
	h := RequestID(Recoverer(quietLogger())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body apierrors.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Equal(t, "INTERNAL_SERVER_ERROR", body.Error.ErrorCode)
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(0.001, 2, quietLogger())
	h := rl.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{200, 200, http.StatusTooManyRequests}, codes)
}

func TestCORS(t *testing.T) {
	h := CORS(CORSConfig{AllowedOrigins: []string{"http://ui.example"}})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTeapot) }))

	preflight := httptest.NewRequest(http.MethodOptions, "/api/v1/batches", nil)
	preflight.Header.Set("Origin", "http://ui.example")
	preflight.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, preflight)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://ui.example", rec.Header().Get("Access-Control-Allow-Origin"))

	foreign := httptest.NewRequest(http.MethodGet, "/", nil)
	foreign.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, foreign)
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestValidator_DecodeJSON(t *testing.T) {
	v := NewValidator()

	tests := []struct {
		name     string
		body     string
		wantCode string
		field    string
	}{
		{name: "valid", body: `{"start_date":"2023-12-04","end_date":"2023-12-08","date_format":"dd-MM-yyyy"}`},
		{name: "missing end", body: `{"start_date":"2023-12-04"}`, wantCode: "VALIDATION_FAILED", field: "end_date"},
		{name: "bad date", body: `{"start_date":"04/12/2023","end_date":"2023-12-08"}`, wantCode: "VALIDATION_FAILED", field: "start_date"},
		{name: "unsafe pattern", body: `{"start_date":"2023-12-04","end_date":"2023-12-08","date_format":"yyyy/MM"}`, wantCode: "VALIDATION_FAILED", field: "date_format"},
		{name: "not json", body: `{"start_date":`, wantCode: "INVALID_JSON"},
		{name: "empty", body: ``, wantCode: "INVALID_JSON"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var br domain.BatchRequest
			apiErr := v.DecodeJSON(httptest.NewRecorder(), req, &br)

			if tt.wantCode == "" {
				assert.Nil(t, apiErr)
				return
			}
			require.NotNil(t, apiErr)
			assert.Equal(t, tt.wantCode, apiErr.ErrorCode)
			if tt.field != "" {
				details, ok := apiErr.Details.(apierrors.ValidationErrors)
				require.True(t, ok)
				require.NotEmpty(t, details.Errors)
				assert.Equal(t, tt.field, details.Errors[0].Field)
			}
		})
	}
}

func TestRequireJSON(t *testing.T) {
	h := RequireJSON(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("a=b"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestQueryEnum(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?status=running", nil)
	v, err := QueryEnum(req, "status", []string{"queued", "running"}, "")
	assert.Nil(t, err)
	assert.Equal(t, "running", v)

	req = httptest.NewRequest(http.MethodGet, "/?status=bogus", nil)
	_, err = QueryEnum(req, "status", []string{"queued", "running"}, "")
	require.NotNil(t, err)
	assert.Equal(t, http.StatusBadRequest, err.StatusCode)
}
