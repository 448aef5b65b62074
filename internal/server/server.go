// Package server exposes the analysis engine over HTTP: a single analyze
// endpoint accepting one transaction or a batch, plus a health probe.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vk/riskflow/internal/app"
	"github.com/vk/riskflow/internal/ctxlog"
	"github.com/vk/riskflow/internal/engine"
)

// maxBodyBytes bounds the analyze request body.
const maxBodyBytes = 1 << 20

// Server wraps an App with the HTTP transport.
type Server struct {
	app  *app.App
	http *http.Server
}

// New builds the HTTP server on the given listen address.
func New(a *app.App, addr string) *Server {
	if addr == "" {
		addr = ":8080"
	}
	s := &Server{app: a}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/analyze", s.handleAnalyze)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	s.http = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// ListenAndServe blocks serving requests until the server is shut down.
func (s *Server) ListenAndServe() error {
	s.app.Logger().Info("HTTP server starting.", "addr", s.http.Addr)
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.app.Logger().Info("HTTP server shutting down.")
	return s.http.Shutdown(ctx)
}

// Handler exposes the routing mux, for tests driving the server through
// httptest without a listener.
func (s *Server) Handler() http.Handler { return s.http.Handler }

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleAnalyze accepts one transaction object, a bare array of them, or a
// {"transactions": [...]} wrapper. Batches run concurrently; each element
// succeeds or fails on its own.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	ctx := ctxlog.With(r.Context(), s.app.Logger())
	logger := ctxlog.From(ctx)

	var payload any
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("malformed JSON body: %w", err))
		return
	}

	meta := requestMetadata(r, payload)
	batch, isBatch := extractBatch(payload)

	if !isBatch {
		out, err := s.app.Analyze(ctx, payload, meta)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, out.FinalOutput())
		return
	}

	logger.Info("Analyzing batch.", "size", len(batch))
	results := make([]map[string]any, len(batch))
	g, gctx := errgroup.WithContext(ctx)
	for i, tx := range batch {
		g.Go(func() error {
			out, err := s.app.Analyze(gctx, tx, meta)
			if err != nil {
				results[i] = map[string]any{"error": err.Error()}
				return nil
			}
			results[i] = out.FinalOutput()
			return nil
		})
	}
	_ = g.Wait()
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

// extractBatch recognizes the two batch request shapes. A single object or
// string is not a batch.
func extractBatch(payload any) ([]any, bool) {
	switch v := payload.(type) {
	case []any:
		return v, true
	case map[string]any:
		if txs, ok := v["transactions"].([]any); ok {
			return txs, true
		}
	}
	return nil, false
}

// requestMetadata collects run metadata from headers and, for object
// payloads, well-known identity fields.
func requestMetadata(r *http.Request, payload any) map[string]any {
	meta := map[string]any{}
	if sid := r.Header.Get("X-Session-ID"); sid != "" {
		meta["session_id"] = sid
	}
	if obj, ok := payload.(map[string]any); ok {
		if sid, ok := obj["session_id"].(string); ok && sid != "" {
			meta["session_id"] = sid
		}
		if rid, ok := obj["run_id"].(string); ok && rid != "" {
			meta["run_id"] = rid
		}
	}
	return meta
}

func statusFor(err error) int {
	if engine.IsValidation(err) {
		return http.StatusBadRequest
	}
	var ee *engine.ExecutionError
	if errors.As(err, &ee) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
