// Package server implements the admin plane of the bridge daemon: the
// operator REST API and the gRPC health endpoint, both mounted on the
// same h2c listener.
package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"connectrpc.com/grpchealth"

	"github.com/dantte-lp/vdabridge/internal/bridge"
	appversion "github.com/dantte-lp/vdabridge/internal/version"
)

// apiPrefix is the mount point for the REST endpoints.
const apiPrefix = "/api/v1/"

// StatusSource is the fleet view the REST endpoints read.
// *bridge.Supervisor implements it.
type StatusSource interface {
	VehicleStatuses() []bridge.VehicleStatus
	VehicleStatusFor(serial string) (bridge.VehicleStatus, bool)
}

// verify interface compliance at compile time.
var _ StatusSource = (*bridge.Supervisor)(nil)

// BrokerState reports the fleet-plane broker link. *mqtt.Client implements
// it; a nil BrokerState reads as disconnected.
type BrokerState interface {
	Connected() bool
	ClientID() string
}

// AdminServer serves the operator REST endpoints.
//
// Each handler reads a fresh snapshot from the StatusSource; the server
// itself holds no fleet state.
type AdminServer struct {
	src     StatusSource
	broker  BrokerState
	logger  *slog.Logger
	started time.Time
}

// New creates the admin REST handler and returns the path prefix it must
// be mounted under. The handler carries the logging and recovery
// middleware.
func New(src StatusSource, broker BrokerState, logger *slog.Logger) (string, http.Handler) {
	srv := &AdminServer{
		src:     src,
		broker:  broker,
		logger:  logger,
		started: time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/status", srv.handleStatus)
	mux.HandleFunc("GET /api/v1/agvs", srv.handleListAGVs)
	mux.HandleFunc("GET /api/v1/agvs/{serial}", srv.handleGetAGV)

	return apiPrefix, LoggingMiddleware(RecoveryMiddleware(mux, logger), logger)
}

// HealthHandler returns the grpc.health.v1 handler with the logging and
// recovery interceptors applied. The static checker reports SERVING for
// the daemon as a whole.
func HealthHandler(logger *slog.Logger) (string, http.Handler) {
	checker := grpchealth.NewStaticChecker(grpchealth.HealthV1ServiceName)
	return grpchealth.NewHandler(checker,
		LoggingInterceptorOption(logger),
		RecoveryInterceptorOption(logger),
	)
}

// -------------------------------------------------------------------------
// Response Payloads
// -------------------------------------------------------------------------

// StatusResponse is the GET /api/v1/status body.
type StatusResponse struct {
	Version       string        `json:"version"`
	Commit        string        `json:"commit"`
	BuiltAt       string        `json:"builtAt"`
	UptimeSeconds int64         `json:"uptimeSeconds"`
	Broker        BrokerInfo    `json:"broker"`
	Vehicles      VehicleCounts `json:"vehicles"`
}

// BrokerInfo describes the broker link inside a StatusResponse.
type BrokerInfo struct {
	Connected bool   `json:"connected"`
	ClientID  string `json:"clientId,omitempty"`
}

// VehicleCounts aggregates fleet health inside a StatusResponse.
type VehicleCounts struct {
	Total  int `json:"total"`
	Online int `json:"online"`
	Failed int `json:"failed"`
}

// AGVListResponse is the GET /api/v1/agvs body.
type AGVListResponse struct {
	AGVs []bridge.VehicleStatus `json:"agvs"`
}

// ErrorResponse is the body of every non-2xx REST response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// -------------------------------------------------------------------------
// Handlers
// -------------------------------------------------------------------------

func (s *AdminServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	statuses := s.src.VehicleStatuses()

	counts := VehicleCounts{Total: len(statuses)}
	for _, vs := range statuses {
		if vs.Online {
			counts.Online++
		}
		if vs.Failed {
			counts.Failed++
		}
	}

	resp := StatusResponse{
		Version:       appversion.Version,
		Commit:        appversion.GitCommit,
		BuiltAt:       appversion.BuildDate,
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		Vehicles:      counts,
	}
	if s.broker != nil {
		resp.Broker = BrokerInfo{
			Connected: s.broker.Connected(),
			ClientID:  s.broker.ClientID(),
		}
	}

	s.writeJSON(w, r, http.StatusOK, resp)
}

func (s *AdminServer) handleListAGVs(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, AGVListResponse{AGVs: s.src.VehicleStatuses()})
}

func (s *AdminServer) handleGetAGV(w http.ResponseWriter, r *http.Request) {
	serial := r.PathValue("serial")

	st, ok := s.src.VehicleStatusFor(serial)
	if !ok {
		s.writeJSON(w, r, http.StatusNotFound, ErrorResponse{
			Error: fmt.Sprintf("unknown AGV serial %q", serial),
		})
		return
	}

	s.writeJSON(w, r, http.StatusOK, st)
}

// writeJSON writes v as the response body with the given status code.
func (s *AdminServer) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WarnContext(r.Context(), "failed to encode admin response",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
}
