// Package rpc exposes the test backend over JSON-RPC 2.0 on HTTP. The
// façade is deliberately thin; every decision lives in the service layer.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/huguei/zonemaster-backend/config"
	"github.com/huguei/zonemaster-backend/internal/service"
)

// Version is the backend version reported by version_info.
const Version = "1.0.0"

// ServerOptions groups dependencies for the RPC server.
type ServerOptions struct {
	Tests  *service.TestService // Required: test service
	Config config.RPCConfig     // Listener address and limits
	Logger *slog.Logger         // Optional: structured logger
}

// Server serves the JSON-RPC API.
type Server struct {
	tests   *service.TestService
	cfg     config.RPCConfig
	logger  *slog.Logger
	methods map[string]methodFunc
}

type methodFunc func(ctx context.Context, params json.RawMessage) (any, error)

// NewServer constructs an RPC server.
func NewServer(opts ServerOptions) (*Server, error) {
	if opts.Tests == nil {
		return nil, errors.New("TestService is required")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "rpc")
	}

	s := &Server{
		tests:  opts.Tests,
		cfg:    opts.Config,
		logger: logger,
	}
	s.methods = map[string]methodFunc{
		"version_info":      s.versionInfo,
		"profile_names":     s.profileNames,
		"start_domain_test": s.startDomainTest,
		"start_batch_job":   s.startBatchJob,
		"add_batch_job":     s.startBatchJob,
		"test_progress":     s.testProgress,
		"get_test_results":  s.getTestResults,
		"get_test_params":   s.getTestParams,
		"get_test_history":  s.getTestHistory,
	}
	return s, nil
}

// Handler returns the HTTP handler serving the API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /", s.handleRPC)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return mux
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if s.logger != nil {
			s.logger.InfoContext(ctx, "rpc server listening", "addr", s.cfg.Addr)
		}
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("rpc shutdown: %w", err)
	}
	return <-errCh
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	if s.cfg.MaxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	}

	var req request
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusOK, errorResponse(nil, codeParseError, "parse error: "+err.Error()))
		return
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		writeJSON(w, http.StatusOK, errorResponse(req.ID, codeInvalidRequest, "invalid request"))
		return
	}

	method, ok := s.methods[req.Method]
	if !ok {
		writeJSON(w, http.StatusOK, errorResponse(req.ID, codeMethodNotFound,
			fmt.Sprintf("method %q not found", req.Method)))
		return
	}

	result, err := method(r.Context(), req.Params)
	if err != nil {
		if s.logger != nil {
			s.logger.InfoContext(r.Context(), "rpc method failed",
				"method", req.Method, "err", err)
		}
		writeJSON(w, http.StatusOK, errorResponseFromErr(req.ID, err))
		return
	}

	writeJSON(w, http.StatusOK, response{JSONRPC: "2.0", ID: req.ID, Result: result})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
