package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/Sternrassler/ram-browser/pkg/browser"
	"github.com/Sternrassler/ram-browser/pkg/client"
	"github.com/Sternrassler/ram-browser/pkg/filter"
	"github.com/Sternrassler/ram-browser/pkg/model"
	"github.com/Sternrassler/ram-browser/pkg/pagination"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

var (
	statusOptions = []string{"", model.StatusAlive, model.StatusDead, model.StatusUnknown}
	genderOptions = []string{"", model.GenderFemale, model.GenderMale, model.GenderGenderless, model.GenderUnknown}
)

// pinger reports whether the shared backing store is reachable.
type pinger interface {
	Ping(ctx context.Context) error
}

type server struct {
	browser *browser.Browser
	store   pinger
	logger  zerolog.Logger
}

func newServer(b *browser.Browser, store pinger, logger zerolog.Logger) *server {
	return &server{browser: b, store: store, logger: logger}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler)
	mux.HandleFunc("GET /ready", readyHandler(s.store))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /characters", s.listHandler)
	mux.HandleFunc("POST /characters/next", s.pagerAction(s.browser.Pager.LoadNext))
	mux.HandleFunc("POST /characters/retry", s.pagerAction(s.browser.Pager.Retry))
	mux.HandleFunc("POST /characters/refresh", s.pagerAction(s.browser.Pager.Refresh))
	mux.HandleFunc("POST /characters/visible", s.visibleHandler)

	mux.HandleFunc("PUT /filter", s.setFilterHandler)
	mux.HandleFunc("DELETE /filter", s.clearFilterHandler)

	mux.HandleFunc("POST /select", s.selectHandler)
	mux.HandleFunc("GET /detail", s.detailHandler)

	return s.withRequestID(mux)
}

// withRequestID tags every request with an X-Request-ID and logs it.
func (s *server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)

		logger := s.logger.With().Str("request_id", id).Logger()
		start := time.Now()
		next.ServeHTTP(w, r.WithContext(logger.WithContext(r.Context())))

		logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("Request served")
	})
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

func readyHandler(store pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := store.Ping(ctx); err != nil {
			http.Error(w, "Redis unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "OK")
	}
}

func (s *server) listHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.browser.Pager.Snapshot())
}

// pagerAction runs a list operation and answers with the resulting list.
// The load outlives the request: it may be shared with other callers and
// is bounded by the engine's own timeout.
func (s *server) pagerAction(action func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := action(context.WithoutCancel(r.Context())); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, s.browser.Pager.Snapshot())
	}
}

func (s *server) visibleHandler(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.URL.Query().Get("index"))
	if err != nil || index < 0 {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "index must be a non-negative integer"})
		return
	}
	s.pagerAction(func(ctx context.Context) error {
		return s.browser.Pager.Visible(ctx, index)
	})(w, r)
}

func (s *server) setFilterHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	status := filter.Normalize(q.Get("status"))
	gender := filter.Normalize(q.Get("gender"))

	if !lo.Contains(statusOptions, status) {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: fmt.Sprintf("unknown status %q", status)})
		return
	}
	if !lo.Contains(genderOptions, gender) {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: fmt.Sprintf("unknown gender %q", gender)})
		return
	}

	writeJSON(w, http.StatusOK, s.browser.ApplyFilter(status, gender))
}

func (s *server) clearFilterHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.browser.ClearFilter())
}

func (s *server) selectHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.URL.Query().Get("id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "id must be an integer"})
		return
	}

	c, err := s.browser.Select(id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *server) detailHandler(w http.ResponseWriter, r *http.Request) {
	d, err := s.browser.Detail(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

type errorBody struct {
	Error string `json:"error"`
	Class string `json:"class,omitempty"`
}

// writeError maps domain errors to HTTP statuses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusBadGateway
	body := errorBody{Error: err.Error()}

	var apiErr *client.APIError
	switch {
	case errors.Is(err, pagination.ErrSuperseded):
		status = http.StatusConflict
	case errors.Is(err, browser.ErrUnknownCharacter), errors.Is(err, filter.ErrNoSelection):
		status = http.StatusNotFound
	case errors.As(err, &apiErr):
		body.Class = string(apiErr.Class)
		if apiErr.StatusCode == http.StatusTooManyRequests {
			status = http.StatusTooManyRequests
		}
	}

	zerolog.Ctx(r.Context()).Warn().Err(err).Int("status", status).Str("path", r.URL.Path).Msg("Request failed")
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
