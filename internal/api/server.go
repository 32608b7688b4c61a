// Package api exposes the read-side HTTP surface: query endpoints over the
// store, the indexer status snapshot, Prometheus metrics, and a websocket
// stream of newly decoded events.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"eventscope/internal/model"
	"eventscope/internal/store"
)

// StatusFunc supplies the current indexer snapshot.
type StatusFunc func() model.IndexerStatus

// Server serves the query API.
type Server struct {
	reader store.Reader
	status StatusFunc
	stream *EventStream
	logger *zap.Logger
	server *http.Server
}

// NewServer builds the HTTP server with all routes registered.
func NewServer(addr string, reader store.Reader, status StatusFunc, stream *EventStream, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		reader: reader,
		status: status,
		stream: stream,
		logger: logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/transfers", s.handleTransfers)
	mux.HandleFunc("/api/swaps", s.handleSwaps)
	mux.HandleFunc("/api/events", s.handleEvents)
	mux.HandleFunc("/api/stats", s.handleStats)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	if stream != nil {
		mux.HandleFunc("/ws", stream.Handler())
	}

	s.server = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start begins listening. It blocks until the server closes.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Shutdown drains in-flight requests and closes the websocket stream.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.stream != nil {
		s.stream.Close()
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleTransfers(w http.ResponseWriter, r *http.Request) {
	limit := limitParam(r)
	address := r.URL.Query().Get("address")

	var (
		rows []store.TransferRow
		err  error
	)
	if address != "" {
		rows, err = s.reader.TransfersByAddress(r.Context(), address, limit)
	} else {
		rows, err = s.reader.RecentTransfers(r.Context(), limit)
	}
	s.writeJSON(w, rows, err)
}

func (s *Server) handleSwaps(w http.ResponseWriter, r *http.Request) {
	limit := limitParam(r)
	pool := r.URL.Query().Get("pool")

	var (
		rows []store.SwapRow
		err  error
	)
	if pool != "" {
		rows, err = s.reader.SwapsByPool(r.Context(), pool, limit)
	} else {
		rows, err = s.reader.RecentSwaps(r.Context(), limit)
	}
	s.writeJSON(w, rows, err)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	rows, err := s.reader.RecentEvents(r.Context(), limitParam(r))
	s.writeJSON(w, rows, err)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.reader.Stats(r.Context())
	s.writeJSON(w, stats, err)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, s.status(), nil)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) writeJSON(w http.ResponseWriter, payload interface{}, err error) {
	if err != nil {
		s.logger.Error("query failed", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("encode response failed", zap.Error(err))
	}
}

func limitParam(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0
	}
	return limit
}
