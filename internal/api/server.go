// Package api provides REST API endpoints for live aircraft state.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vradarserver/vrscore-sub000/internal/aircraft"
	"github.com/vradarserver/vrscore-sub000/internal/icao"
	"github.com/vradarserver/vrscore-sub000/internal/lookup"
	"github.com/vradarserver/vrscore-sub000/internal/stamp"
	"github.com/vradarserver/vrscore-sub000/internal/storage"
)

// maxBatch is the most identities one batch request may queue.
const maxBatch = 100

// Store is the read side of state.Store.
type Store interface {
	Clock() *stamp.Clock
	Get(id icao.ID) (*aircraft.Record, bool)
	ChangedSince(since stamp.Stamp) []*aircraft.Record
	Len() int
}

// Lookups is the part of lookup.Service the API drives.
type Lookups interface {
	LookupMany(ids []icao.ID)
	Supplier() lookup.SupplierDetails
	Pending() int
}

// History returns past lookup outcomes for an aircraft.
type History interface {
	History(ctx context.Context, id icao.ID, limit int) ([]storage.HistoryEntry, error)
}

// Config holds configuration for the API server.
type Config struct {
	Addr        string
	AuthEnabled bool
	APIKeys     []string // List of valid API keys.
	Timeout     time.Duration
	Logger      *slog.Logger
}

// Server provides REST API access to the aircraft store.
type Server struct {
	store   Store
	lookups Lookups
	history History // Optional.

	addr        string
	timeout     time.Duration
	authEnabled bool
	apiKeys     map[string]bool
	logger      *slog.Logger
}

// NewServer creates a new API server. lookups and history may be nil.
func NewServer(store Store, lookups Lookups, history History, cfg Config) *Server {
	keys := make(map[string]bool)
	for _, k := range cfg.APIKeys {
		if k != "" {
			keys[k] = true
		}
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		store:       store,
		lookups:     lookups,
		history:     history,
		addr:        cfg.Addr,
		timeout:     cfg.Timeout,
		authEnabled: cfg.AuthEnabled,
		apiKeys:     keys,
		logger:      logger.With("component", "api"),
	}
}

// Run serves HTTP until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("API starting", "addr", s.addr, "auth", s.authEnabled)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Router returns the configured chi router.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	// Standard middleware.
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.timeout))

	// CORS for browser access.
	r.Use(corsMiddleware)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required).
		r.Get("/health", s.handleHealth)

		r.Group(func(r chi.Router) {
			// Optional authentication.
			if s.authEnabled {
				r.Use(s.authMiddleware)
			}

			r.Get("/aircraft", s.handleListAircraft)
			r.Get("/aircraft/{icao_hex}", s.handleGetAircraft)
			r.Get("/aircraft/{icao_hex}/lookups", s.handleLookupHistory)
			r.Post("/lookup/batch", s.handleBatchLookup)
			r.Get("/supplier", s.handleSupplier)
		})
	})

	return r
}

// requestLogger logs one line per request.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// corsMiddleware adds CORS headers for browser access.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-API-Key")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// authMiddleware validates API key authentication.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Check X-API-Key header first.
		apiKey := r.Header.Get("X-API-Key")

		// Fall back to Authorization: Bearer <key>.
		if apiKey == "" {
			auth := r.Header.Get("Authorization")
			if strings.HasPrefix(auth, "Bearer ") {
				apiKey = strings.TrimPrefix(auth, "Bearer ")
			}
		}

		if apiKey == "" {
			writeError(w, http.StatusUnauthorized, "API key required")
			return
		}

		if !s.apiKeys[apiKey] {
			writeError(w, http.StatusForbidden, "Invalid API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":   "ok",
		"time":     time.Now().UTC().Format(time.RFC3339),
		"aircraft": s.store.Len(),
	}
	if s.lookups != nil {
		resp["pending_lookups"] = s.lookups.Pending()
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListResponse is the response for aircraft list queries. Stamp is the
// cursor to pass as since on the next call.
type ListResponse struct {
	Stamp    stamp.Stamp        `json:"stamp"`
	Aircraft []AircraftResponse `json:"aircraft"`
}

func (s *Server) handleListAircraft(w http.ResponseWriter, r *http.Request) {
	var since stamp.Stamp
	if v := r.URL.Query().Get("since"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be a non-negative integer")
			return
		}
		since = stamp.Stamp(n)
	}

	// The cursor is read before the records so nothing falls between calls.
	cursor := s.store.Clock().Current()
	recs := s.store.ChangedSince(since)

	resp := ListResponse{Stamp: cursor, Aircraft: make([]AircraftResponse, 0, len(recs))}
	for _, rec := range recs {
		resp.Aircraft = append(resp.Aircraft, NewAircraftResponse(rec, since))
	}
	writeJSON(w, http.StatusOK, resp)
}

// parseICAO reads the icao_hex URL parameter, writing an error if it is bad.
func parseICAO(w http.ResponseWriter, r *http.Request) (icao.ID, bool) {
	id, err := icao.Parse(chi.URLParam(r, "icao_hex"), icao.ParseOptions{Strict: true})
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid icao_hex: "+err.Error())
		return 0, false
	}
	return id, true
}

func (s *Server) handleGetAircraft(w http.ResponseWriter, r *http.Request) {
	id, ok := parseICAO(w, r)
	if !ok {
		return
	}

	rec, ok := s.store.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "Aircraft not tracked")
		return
	}
	writeJSON(w, http.StatusOK, NewAircraftResponse(rec, 0))
}

func (s *Server) handleLookupHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, "Lookup history is not enabled")
		return
	}
	id, ok := parseICAO(w, r)
	if !ok {
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, 1000)
	}

	entries, err := s.history.History(r.Context(), id, limit)
	if err != nil {
		s.logger.Error("lookup history", "icao", id, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if entries == nil {
		entries = []storage.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// BatchRequest is the request body for batch lookups.
type BatchRequest struct {
	Aircraft []BatchAircraftQuery `json:"aircraft"`
}

// BatchAircraftQuery represents a single aircraft in a batch request.
type BatchAircraftQuery struct {
	ICAOHex string `json:"icao_hex"`
}

// BatchResponse lists what was queued and what was rejected.
type BatchResponse struct {
	Queued []string          `json:"queued"`
	Errors map[string]string `json:"errors,omitempty"` // Keyed by icao_hex as sent.
}

func (s *Server) handleBatchLookup(w http.ResponseWriter, r *http.Request) {
	if s.lookups == nil {
		writeError(w, http.StatusServiceUnavailable, "Lookups are not enabled")
		return
	}

	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return
	}

	if len(req.Aircraft) == 0 {
		writeError(w, http.StatusBadRequest, "No aircraft specified")
		return
	}

	if len(req.Aircraft) > maxBatch {
		writeError(w, http.StatusBadRequest, "Maximum 100 aircraft per batch request")
		return
	}

	resp := BatchResponse{Queued: []string{}, Errors: make(map[string]string)}
	ids := make([]icao.ID, 0, len(req.Aircraft))
	for _, q := range req.Aircraft {
		id, err := icao.Parse(q.ICAOHex, icao.ParseOptions{Strict: true})
		if err != nil {
			resp.Errors[q.ICAOHex] = err.Error()
			continue
		}
		ids = append(ids, id)
		resp.Queued = append(resp.Queued, id.String())
	}
	s.lookups.LookupMany(ids)

	// Remove empty errors map for cleaner output.
	if len(resp.Errors) == 0 {
		resp.Errors = nil
	}

	writeJSON(w, http.StatusAccepted, resp)
}

func (s *Server) handleSupplier(w http.ResponseWriter, r *http.Request) {
	if s.lookups == nil {
		writeError(w, http.StatusServiceUnavailable, "Lookups are not enabled")
		return
	}
	writeJSON(w, http.StatusOK, s.lookups.Supplier())
}

// Helper functions.

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
