package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/Dr1DeX/orgtree/pkg/composables"
)

func newTestLogger() (*logrus.Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	log := logrus.New()
	log.SetOutput(buf)
	log.SetFormatter(&logrus.JSONFormatter{})
	log.SetLevel(logrus.InfoLevel)
	return log, buf
}

func TestWithLogger_PropagatesRequestID(t *testing.T) {
	log, buf := newTestLogger()
	var seenID string
	var hasLogger bool
	h := WithLogger(log, DefaultLoggerOptions())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenID = composables.UseRequestID(r.Context())
		_, hasLogger = composables.UseLogger(r.Context())
		w.WriteHeader(http.StatusCreated)
	}))

	req := httptest.NewRequest(http.MethodPost, "/org/api/departments", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	require.Equal(t, http.StatusCreated, rr.Code)
	require.Equal(t, "req-123", seenID)
	require.True(t, hasLogger)
	require.Equal(t, "req-123", rr.Header().Get("X-Request-ID"))
	require.Contains(t, buf.String(), `"status_code":201`)
}

func TestWithLogger_GeneratesRequestID(t *testing.T) {
	log, _ := newTestLogger()
	var seenID string
	h := WithLogger(log, DefaultLoggerOptions())(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seenID = composables.UseRequestID(r.Context())
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/org/api/tree", nil))
	require.NotEmpty(t, seenID)
	require.Equal(t, seenID, rr.Header().Get("X-Request-ID"))
}

func TestWithLogger_RecoversPanicAsJSON(t *testing.T) {
	log, buf := newTestLogger()
	h := WithLogger(log, DefaultLoggerOptions())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	req := httptest.NewRequest(http.MethodGet, "/org/api/tree", nil)
	req.Header.Set("X-Request-ID", "req-panic")
	rr := httptest.NewRecorder()
	require.NotPanics(t, func() { h.ServeHTTP(rr, req) })

	require.Equal(t, http.StatusInternalServerError, rr.Code)
	var body struct {
		Code string            `json:"code"`
		Meta map[string]string `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "INTERNAL_SERVER_ERROR", body.Code)
	require.Equal(t, "req-panic", body.Meta["request_id"])
	require.Contains(t, buf.String(), "panic recovered")
}

func TestWithLogger_PlainTextPanicOutsideAPI(t *testing.T) {
	log, _ := newTestLogger()
	h := WithLogger(log, DefaultLoggerOptions())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.Contains(t, rr.Body.String(), "Internal Server Error")
}

func TestProvide_NilPoolPassesThrough(t *testing.T) {
	called := false
	h := Provide(nil)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		_, err := composables.UsePool(r.Context())
		require.ErrorIs(t, err, composables.ErrNoPool)
		called = true
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.True(t, called)
}
