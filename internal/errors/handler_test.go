package errors

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler(includeStack bool) (*ErrorHandler, *[]error) {
	var (
		mu       sync.Mutex
		reported []error
	)
	h := NewErrorHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), includeStack).
		WithReporter(func(_ context.Context, err error) {
			mu.Lock()
			defer mu.Unlock()
			reported = append(reported, err)
		})
	return h, &reported
}

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestErrorHandler_HandleError(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		wantStatus   int
		wantType     string
		wantReported bool
	}{
		{
			name:       "api error",
			err:        ErrJobNotFound,
			wantStatus: http.StatusNotFound,
			wantType:   TypeJobNotFound,
		},
		{
			name:       "wrapped api error",
			err:        fmt.Errorf("trigger: %w", ErrJobBusy),
			wantStatus: http.StatusConflict,
			wantType:   TypeJobBusy,
		},
		{
			name:       "validation errors",
			err:        NewValidationErrors([]ValidationError{{Field: "limit", Message: "must be positive"}}),
			wantStatus: http.StatusBadRequest,
			wantType:   TypeValidation,
		},
		{
			name:       "body too large",
			err:        &http.MaxBytesError{Limit: 10},
			wantStatus: http.StatusRequestEntityTooLarge,
			wantType:   TypePayloadTooLarge,
		},
		{
			name:       "deadline",
			err:        context.DeadlineExceeded,
			wantStatus: http.StatusGatewayTimeout,
			wantType:   TypeTimeout,
		},
		{
			name:         "unknown error",
			err:          fmt.Errorf("disk exploded"),
			wantStatus:   http.StatusInternalServerError,
			wantType:     TypeInternal,
			wantReported: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, reported := newTestHandler(false)
			req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/run_loop", nil)
			rec := httptest.NewRecorder()

			h.HandleError(rec, req, tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
			body := decodeProblem(t, rec)
			assert.Equal(t, tt.wantType, body["type"])
			assert.Equal(t, float64(tt.wantStatus), body["status"])
			assert.Equal(t, "/api/v1/jobs/run_loop", body["instance"])
			assert.Contains(t, body, "trace_id")
			assert.NotContains(t, body, "stack")
			assert.Equal(t, tt.wantReported, len(*reported) == 1)
		})
	}
}

func TestErrorHandler_HandleError_Nil(t *testing.T) {
	h, _ := newTestHandler(false)
	rec := httptest.NewRecorder()
	h.HandleError(rec, httptest.NewRequest(http.MethodGet, "/", nil), nil)
	assert.Zero(t, rec.Body.Len())
}

func TestErrorHandler_APIErrorDetails(t *testing.T) {
	h, _ := newTestHandler(false)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs", nil)

	problem := h.ErrorToProblem(NotFoundError("run abc"), req)
	assert.Equal(t, "run abc not found", problem.Detail)
	assert.Equal(t, "NOT_FOUND", problem.Extensions["error_code"])
	assert.Equal(t, "run abc", problem.Extensions["details"])
}

func TestErrorHandler_HandlePanic(t *testing.T) {
	for _, includeStack := range []bool{false, true} {
		t.Run(fmt.Sprintf("stack=%v", includeStack), func(t *testing.T) {
			h, reported := newTestHandler(includeStack)
			router := RecoveryMiddleware(h)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
				panic("boom")
			}))

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

			assert.Equal(t, http.StatusInternalServerError, rec.Code)
			body := decodeProblem(t, rec)
			assert.Equal(t, TypeInternal, body["type"])
			if includeStack {
				assert.Equal(t, "boom", body["panic"])
				assert.True(t, strings.Contains(body["stack"].(string), "goroutine"))
			} else {
				assert.NotContains(t, body, "panic")
			}
			require.Len(t, *reported, 1)
			assert.EqualError(t, (*reported)[0], "panic: boom")
		})
	}
}

func TestErrorHandler_NotFoundAndMethodNotAllowed(t *testing.T) {
	h, _ := newTestHandler(false)

	rec := httptest.NewRecorder()
	h.NotFound(rec, httptest.NewRequest(http.MethodGet, "/api/v1/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, TypeNotFound, decodeProblem(t, rec)["type"])

	rec = httptest.NewRecorder()
	h.MethodNotAllowed(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/health", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	body := decodeProblem(t, rec)
	assert.Equal(t, "Method DELETE is not allowed for this endpoint", body["detail"])
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, ErrWebSocketUpgrade)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "WEBSOCKET_UPGRADE_FAILED", resp.Error.ErrorCode)
}
