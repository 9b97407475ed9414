// CLAUDE:SUMMARY Read-only pairwatch service: last discovered identifier, stored records and attempt history over HTTP (chi) and MCP.
// Package api exposes pipeline state read-only. Nothing here writes to the
// identifier log, the store or the state database.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/pairwatch/identlog"
	"github.com/hazyhaar/pairwatch/state"
	"github.com/hazyhaar/pairwatch/store"
)

// EmptyLog is reported as the last line when the log holds no identifier.
const EmptyLog = "File is empty."

// LatestResponse is the body of GET /.
type LatestResponse struct {
	LastLine string `json:"last_line"`
}

// RecordResponse is a stored record.
type RecordResponse struct {
	ID      string            `json:"id"`
	Columns []string          `json:"columns"`
	Values  []string          `json:"values"`
	Fields  map[string]string `json:"fields"`
}

// Service answers read-only queries.
type Service struct {
	log    *identlog.Log
	store  *store.Store
	state  *state.DB
	logger *slog.Logger
}

// New creates a Service. db may be nil, in which case attempt history is
// unavailable.
func New(log *identlog.Log, st *store.Store, db *state.DB, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{log: log, store: st, state: db, logger: logger}
}

// Latest returns the last identifier appended to the log. A missing log
// file is an error, like any other read failure.
func (s *Service) Latest(_ context.Context) (*LatestResponse, error) {
	if _, err := os.Stat(s.log.Path()); err != nil {
		return nil, err
	}
	id, ok, err := s.log.Last()
	if err != nil {
		return nil, err
	}
	if !ok {
		id = EmptyLog
	}
	return &LatestResponse{LastLine: id}, nil
}

// Record returns the stored record for id.
func (s *Service) Record(_ context.Context, id string) (*RecordResponse, error) {
	e, err := s.store.Read(id)
	if err != nil {
		return nil, err
	}
	return &RecordResponse{ID: e.ID, Columns: e.Columns, Values: e.Values, Fields: e.Map()}, nil
}

// Attempts returns the most recent processing attempts for id.
func (s *Service) Attempts(ctx context.Context, id string, limit int) ([]*state.Attempt, error) {
	if s.state == nil {
		return nil, errors.New("api: attempt history not configured")
	}
	if limit <= 0 {
		limit = 20
	}
	return s.state.Attempts(ctx, id, limit)
}

// Router returns the HTTP handler. A non-nil mcpSrv is served at /mcp over
// the streamable HTTP transport.
func (s *Service) Router(mcpSrv *mcp.Server) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(headToGet)
	r.Use(securityHeaders)
	r.Use(requestLog(s.logger))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		resp, err := s.Latest(r.Context())
		if err != nil {
			s.logger.Error("api: read log", "trace_id", TraceIDFrom(r.Context()), "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, resp)
	})

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/records/{id}", func(w http.ResponseWriter, r *http.Request) {
		resp, err := s.Record(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	})

	r.Get("/records/{id}/attempts", func(w http.ResponseWriter, r *http.Request) {
		attempts, err := s.Attempts(r.Context(), chi.URLParam(r, "id"), queryInt(r, "limit", 20))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if attempts == nil {
			attempts = []*state.Attempt{}
		}
		writeJSON(w, http.StatusOK, attempts)
	})

	if mcpSrv != nil {
		h := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return mcpSrv }, nil)
		r.Handle("/mcp", h)
	}
	return r
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrInvalidID):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"detail": err.Error()})
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
