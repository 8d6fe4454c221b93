package errors

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name        string
		appError    *AppError
		wantMessage string
	}{
		{
			name:        "error without cause",
			appError:    NewInvalidRangeError("Invalid date range"),
			wantMessage: "[INVALID_RANGE] Invalid date range",
		},
		{
			name:        "error with cause",
			appError:    NewFetchError("download failed", fmt.Errorf("connection refused")),
			wantMessage: "[FETCH] download failed: connection refused",
		},
		{
			name:        "record not found",
			appError:    NewRecordNotFoundError(".lis"),
			wantMessage: "[RECORD_NOT_FOUND] no .lis entry in archive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantMessage, tt.appError.Error())
		})
	}
}

func TestAppError_Detail(t *testing.T) {
	inner := NewParseError("line 3: open", errors.New(`strconv.ParseFloat: parsing "x": invalid syntax`))
	outer := NewWriteError("convert record file", inner)

	assert.Equal(t, `convert record file: line 3: open: strconv.ParseFloat: parsing "x": invalid syntax`, outer.Detail())
	assert.Equal(t, "no .lis entry in archive", NewRecordNotFoundError(".lis").Detail())
}

func TestAppError_UnwrapAndIs(t *testing.T) {
	err := NewExtractionError("scan archive", ErrMultipleRecords)

	assert.True(t, errors.Is(err, ErrMultipleRecords))

	wrapped := fmt.Errorf("date 2023-12-07: %w", err)
	assert.True(t, IsType(wrapped, ErrTypeExtraction))
	assert.False(t, IsType(wrapped, ErrTypeFetch))
	assert.Equal(t, ErrTypeExtraction, TypeOf(wrapped))
	assert.Equal(t, ErrorType(""), TypeOf(errors.New("plain")))
}

func TestIsType_NestedCause(t *testing.T) {
	err := NewWriteError("persist", NewParseError("bad volume", nil))

	assert.True(t, IsType(err, ErrTypeWrite))
	assert.True(t, IsType(err, ErrTypeParse))
}

func TestAppError_WithContext(t *testing.T) {
	err := NewFetchError("bad status", nil).WithContext("status_code", 404)

	require.NotNil(t, err.Context)
	assert.Equal(t, 404, err.Context["status_code"])
}

func TestFromAppError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"invalid range", NewInvalidRangeError("Invalid date range"), http.StatusBadRequest, "INVALID_RANGE"},
		{"config", NewConfigError("bad pattern", nil), http.StatusBadRequest, "CONFIG"},
		{"not found", NewNotFoundError("batch abc"), http.StatusNotFound, "NOT_FOUND"},
		{"fetch", NewFetchError("boom", nil), http.StatusInternalServerError, "FETCH"},
		{"plain", errors.New("boom"), http.StatusInternalServerError, "INTERNAL_SERVER_ERROR"},
		{"api error passthrough", ErrQueueFull, http.StatusServiceUnavailable, "QUEUE_FULL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			apiErr := FromAppError(tt.err)
			assert.Equal(t, tt.wantStatus, apiErr.StatusCode)
			assert.Equal(t, tt.wantCode, apiErr.ErrorCode)
		})
	}
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()

	WriteError(rec, NotFoundError("batch 42"))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), `"batch 42 not found"`)
	assert.Contains(t, rec.Body.String(), `"success":false`)
}
