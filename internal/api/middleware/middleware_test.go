package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anstrom/scanvault/internal/logging"
	"github.com/anstrom/scanvault/internal/metrics"
)

func createTestLogger(buf *bytes.Buffer) *logging.Logger {
	return logging.NewWithWriter(logging.Config{Level: logging.LevelDebug, Format: logging.FormatText}, buf)
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("success"))
	})
}

func TestRequestID(t *testing.T) {
	tests := []struct {
		name     string
		incoming string
	}{
		{name: "generated", incoming: ""},
		{name: "propagated", incoming: "req_from_client"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			handler := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = GetRequestID(r)
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.incoming != "" {
				req.Header.Set(requestIDHeader, tt.incoming)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, seen, rec.Header().Get(requestIDHeader))
			if tt.incoming != "" {
				assert.Equal(t, tt.incoming, seen)
			} else {
				assert.True(t, strings.HasPrefix(seen, "req_"))
			}
		})
	}
}

func TestGetRequestID_Missing(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, "unknown", GetRequestID(req))
}

func TestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	handler := RequestID()(Logging(createTestLogger(&buf))(okHandler()))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/scans?page_number=1", nil)
	req.RemoteAddr = "192.0.2.10:51234"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	out := buf.String()
	assert.Contains(t, out, "HTTP request")
	assert.Contains(t, out, "path=/api/v1/scans")
	assert.Contains(t, out, "status_code=200")
	assert.Contains(t, out, "response_size=7")
	assert.Contains(t, out, "remote_addr=192.0.2.10")
}

func TestMetricsMiddleware(t *testing.T) {
	m := metrics.NewPrometheusMetrics()

	router := mux.NewRouter()
	router.Use(Metrics(m))
	router.HandleFunc("/scans/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}).Methods(http.MethodGet)

	for _, id := range []string{"a", "b", "c"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/scans/"+id, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	}

	count, err := testutil.GatherAndCount(m.GetRegistry(), "scanvault_api_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count, "route template keeps a single series")
}

func TestRecoveryMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		panicValue interface{}
	}{
		{name: "string panic", panicValue: "something went wrong"},
		{name: "error panic", panicValue: fmt.Errorf("test error")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			handler := Recovery(createTestLogger(&buf))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
				panic(tt.panicValue)
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req = req.WithContext(context.WithValue(req.Context(), RequestIDKey, "req_1"))
			rec := httptest.NewRecorder()

			assert.NotPanics(t, func() { handler.ServeHTTP(rec, req) })
			assert.Equal(t, http.StatusInternalServerError, rec.Code)

			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, "req_1", body["request_id"])
			assert.Contains(t, buf.String(), "panic recovered")
		})
	}

	t.Run("no panic", func(t *testing.T) {
		var buf bytes.Buffer
		rec := httptest.NewRecorder()
		Recovery(createTestLogger(&buf))(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, buf.String())
	})
}

func TestContentTypeMiddleware(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		status      int
	}{
		{name: "missing", contentType: "", status: http.StatusOK},
		{name: "xml", contentType: "application/xml", status: http.StatusOK},
		{name: "xml with charset", contentType: "text/xml; charset=utf-8", status: http.StatusOK},
		{name: "json", contentType: "application/json", status: http.StatusUnsupportedMediaType},
		{name: "garbage", contentType: ";;;", status: http.StatusUnsupportedMediaType},
	}

	handler := ContentType("application/xml", "text/xml")(okHandler())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/scans", strings.NewReader("<nmaprun/>"))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestSecurityHeadersMiddleware(t *testing.T) {
	rec := httptest.NewRecorder()
	SecurityHeaders()(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

func TestGenerateRequestID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := generateRequestID()
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		remote string
		want   string
	}{
		{remote: "192.0.2.1:1234", want: "192.0.2.1"},
		{remote: "[2001:db8::1]:443", want: "2001:db8::1"},
		{remote: "pipe", want: "pipe"},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = tt.remote
		assert.Equal(t, tt.want, clientIP(req))
	}
}

func TestResponseWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := wrap(rec)

	rw.WriteHeader(http.StatusCreated)
	_, err := rw.Write([]byte("hello"))
	require.NoError(t, err)

	assert.Equal(t, http.StatusCreated, rw.statusCode)
	assert.Equal(t, 5, rw.size)

	_, _, err = rw.Hijack()
	assert.Error(t, err, "recorder cannot be hijacked")
}
