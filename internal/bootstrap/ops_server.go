// Copyright (c) 2026 Lerian Studio. All rights reserved.
// Use of this source code is governed by the Elastic License 2.0
// that can be found in the LICENSE file.

package bootstrap

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/LerianStudio/lib-commons/v2/commons"
	"github.com/LerianStudio/lib-commons/v2/commons/log"
	"github.com/LerianStudio/lib-redis-guard/pkg/redis"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// opsServerReadTimeout is the maximum duration for reading the entire request.
	opsServerReadTimeout = 5 * time.Second

	// opsServerWriteTimeout is the maximum duration before timing out writes
	// of the response. The readiness probe may block up to the store's
	// socket timeout, so this is deliberately larger.
	opsServerWriteTimeout = 15 * time.Second

	// opsServerIdleTimeout is the maximum duration an idle connection will remain open.
	opsServerIdleTimeout = 30 * time.Second

	// opsServerShutdownTimeout is the maximum duration to wait for the server to shutdown gracefully.
	opsServerShutdownTimeout = 5 * time.Second
)

// OpsServer exposes the connection manager's operational surface over HTTP:
// liveness and readiness probes, the statistics snapshot, Prometheus metrics
// and the operator circuit-reset action.
type OpsServer struct {
	server  *http.Server
	manager *redis.ConnectionManager
	logger  log.Logger
}

// NewOpsServer creates an OpsServer bound to the given port.
func NewOpsServer(port string, manager *redis.ConnectionManager, logger log.Logger) *OpsServer {
	s := &OpsServer{
		manager: manager,
		logger:  logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)
	mux.HandleFunc("/stats", s.handleStats)
	mux.HandleFunc("/circuit/reset", s.handleCircuitReset)
	mux.Handle("/metrics", promhttp.HandlerFor(newMetricsRegistry(manager), promhttp.HandlerOpts{}))

	s.server = &http.Server{
		Addr:         net.JoinHostPort("", port),
		Handler:      mux,
		ReadTimeout:  opsServerReadTimeout,
		WriteTimeout: opsServerWriteTimeout,
		IdleTimeout:  opsServerIdleTimeout,
	}

	return s
}

// Run serves until an interrupt or termination signal arrives, then shuts
// down gracefully. It implements the lib-commons launcher application contract.
func (s *OpsServer) Run(_ *commons.Launcher) error {
	errChan := make(chan error, 1)

	go func() {
		s.logger.Infof("Ops server listening on %s", s.server.Addr)

		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case <-sigs:
	}

	ctx, cancel := context.WithTimeout(context.Background(), opsServerShutdownTimeout)
	defer cancel()

	return s.server.Shutdown(ctx)
}

// handleHealth is the liveness probe handler.
// Returns 200 OK if the process is alive. No dependency checks.
func (s *OpsServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// handleReady is the readiness probe handler. It runs a synchronous liveness
// probe against the store and returns 503 while the store is degraded.
func (s *OpsServer) handleReady(w http.ResponseWriter, r *http.Request) {
	status := s.manager.HealthCheck(r.Context())

	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}

	s.writeJSON(w, code, status)
}

// handleStats returns the manager's statistics snapshot.
func (s *OpsServer) handleStats(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.manager.GetStatistics())
}

// handleCircuitReset is the operator override: POST forces the circuit
// closed and eagerly re-establishes the pool.
func (s *OpsServer) handleCircuitReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})

		return
	}

	s.logger.Info("Operator requested circuit reset")
	s.manager.ResetCircuit()

	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":       "circuit_reset",
		"circuitState": s.manager.CircuitState().String(),
	})
}

func (s *OpsServer) writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Errorf("Failed to encode response: %v", err)
	}
}
