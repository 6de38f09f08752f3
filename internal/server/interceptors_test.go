package server_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"connectrpc.com/connect"
	"connectrpc.com/grpchealth"

	"github.com/dantte-lp/vdabridge/internal/server"
)

// panicChecker panics on every health check. Used to exercise the
// recovery interceptor.
type panicChecker struct{}

func (panicChecker) Check(context.Context, *grpchealth.CheckRequest) (*grpchealth.CheckResponse, error) {
	panic("intentional test panic")
}

// setupHealthServer mounts a health handler built from the given checker
// and handler options.
func setupHealthServer(t *testing.T, checker grpchealth.Checker, opts ...connect.HandlerOption) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.Handle(grpchealth.NewHandler(checker, opts...))

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// checkHealth posts one health check with the given request body and
// returns the response. The caller owns the body.
func checkHealth(t *testing.T, srv *httptest.Server, body string) *http.Response {
	t.Helper()

	resp, err := srv.Client().Post(
		srv.URL+"/grpc.health.v1.Health/Check",
		"application/json",
		strings.NewReader(body),
	)
	if err != nil {
		t.Fatalf("health check: %v", err)
	}
	return resp
}

// -------------------------------------------------------------------------
// TestRecoveryInterceptor
// -------------------------------------------------------------------------

func TestRecoveryInterceptorPanic(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.DiscardHandler)
	srv := setupHealthServer(t, panicChecker{}, server.RecoveryInterceptorOption(logger))

	resp := checkHealth(t, srv, `{}`)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.StatusCode)
	}

	var got struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if got.Code != "internal" {
		t.Errorf("code = %q, want internal", got.Code)
	}
	if !strings.Contains(got.Message, "panic recovered") {
		t.Errorf("message = %q, want it to name the recovered panic", got.Message)
	}
}

func TestRecoveryInterceptorNoPanic(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.DiscardHandler)
	checker := grpchealth.NewStaticChecker(grpchealth.HealthV1ServiceName)
	srv := setupHealthServer(t, checker, server.RecoveryInterceptorOption(logger))

	resp := checkHealth(t, srv, `{}`)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

// -------------------------------------------------------------------------
// TestLoggingInterceptor
// -------------------------------------------------------------------------

func TestLoggingInterceptor(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.DiscardHandler)
	checker := grpchealth.NewStaticChecker(grpchealth.HealthV1ServiceName)
	srv := setupHealthServer(t, checker,
		server.LoggingInterceptorOption(logger),
		server.RecoveryInterceptorOption(logger),
	)

	resp := checkHealth(t, srv, `{}`)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var got struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode health response: %v", err)
	}
	if got.Status != "SERVING" {
		t.Errorf("status = %q, want SERVING", got.Status)
	}
}

// -------------------------------------------------------------------------
// TestLoggingMiddleware
// -------------------------------------------------------------------------

func TestLoggingMiddleware(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.DiscardHandler)
	inner := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		if _, err := w.Write([]byte("teapot")); err != nil {
			t.Errorf("write body: %v", err)
		}
	})

	handler := server.LoggingMiddleware(inner, logger)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))

	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusTeapot)
	}
	if rec.Body.String() != "teapot" {
		t.Errorf("body = %q, want teapot", rec.Body.String())
	}
}

// -------------------------------------------------------------------------
// TestRecoveryMiddleware
// -------------------------------------------------------------------------

func TestRecoveryMiddleware(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.DiscardHandler)
	inner := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("intentional test panic")
	})

	handler := server.RecoveryMiddleware(inner, logger)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/agvs", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}

	// The handler must stay usable after a recovered panic.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/agvs", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("second call status = %d, want 500", rec.Code)
	}
}
