package httpapi

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/exif-turbo/exifturbo/internal/errors"
	"github.com/exif-turbo/exifturbo/internal/index"
	"github.com/exif-turbo/exifturbo/internal/query"
	"github.com/exif-turbo/exifturbo/internal/store"
)

// StatsResponse is the body of GET /api/stats.
type StatsResponse struct {
	DBPath   string         `json:"db_path"`
	Stats    *store.Stats   `json:"stats"`
	Columns  []string       `json:"columns"`
	SortKeys []string       `json:"sort_keys"`
	LastRun  *index.Summary `json:"last_run,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleSearch serves GET /api/search?q=&limit=&offset=&sort=&desc=.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	opts := query.Options{Sort: params.Get("sort")}

	var err error
	if opts.Limit, err = intParam(params.Get("limit")); err != nil {
		writeJSONError(w, http.StatusBadRequest, "limit must be an integer")
		return
	}
	if opts.Offset, err = intParam(params.Get("offset")); err != nil {
		writeJSONError(w, http.StatusBadRequest, "offset must be an integer")
		return
	}
	if d := params.Get("desc"); d != "" {
		if opts.Desc, err = strconv.ParseBool(d); err != nil {
			writeJSONError(w, http.StatusBadRequest, "desc must be true or false")
			return
		}
	}

	res, err := s.engine.Search(r.Context(), params.Get("q"), opts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid record id")
		return
	}
	s.writeRecord(w, r, func(ctx context.Context, v *store.View) (*store.FileRecord, error) {
		return v.Get(ctx, id)
	})
}

func (s *Server) handleRecordByPath(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSpace(r.URL.Query().Get("path"))
	if path == "" {
		writeJSONError(w, http.StatusBadRequest, "path query parameter is required")
		return
	}
	s.writeRecord(w, r, func(ctx context.Context, v *store.View) (*store.FileRecord, error) {
		return v.GetByPath(ctx, path)
	})
}

func (s *Server) writeRecord(w http.ResponseWriter, r *http.Request, get func(context.Context, *store.View) (*store.FileRecord, error)) {
	ctx := r.Context()
	var rec *store.FileRecord
	err := s.store.View(ctx, func(v *store.View) error {
		var err error
		rec, err = get(ctx, v)
		return err
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if rec == nil {
		writeJSONError(w, http.StatusNotFound, "record not found")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := StatsResponse{
		DBPath:   s.store.Path(),
		Stats:    stats,
		Columns:  store.ColumnNames(),
		SortKeys: append([]string{query.SortRelevance}, store.SortKeys()...),
	}
	if s.lastRun != nil {
		resp.LastRun = s.lastRun()
	}
	writeJSON(w, http.StatusOK, resp)
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

// statusFor maps an error to an HTTP status. Syntax and validation errors
// are the caller's fault; an unavailable store is temporary.
func statusFor(err error) int {
	var se *errors.QuerySyntaxError
	switch {
	case stderrors.As(err, &se):
		return http.StatusBadRequest
	case stderrors.Is(err, errors.ErrStoreClosed):
		return http.StatusServiceUnavailable
	case stderrors.Is(err, context.Canceled), stderrors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	switch errors.GetCategory(err) {
	case errors.CategoryValidation:
		return http.StatusBadRequest
	case errors.CategoryStore:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes err as the structured JSON error body.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		attrs := append([]slog.Attr{slog.String("path", r.URL.Path)}, errors.LogAttrs(err)...)
		s.logger.LogAttrs(r.Context(), slog.LevelError, "request failed", attrs...)
	}
	body, jerr := errors.FormatJSON(err)
	if jerr != nil {
		writeJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
