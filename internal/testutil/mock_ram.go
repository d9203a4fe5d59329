// Package testutil provides testing utilities for the Rick and Morty API client.
package testutil

import (
	"crypto/sha1"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Sternrassler/ram-browser/pkg/model"
)

// Path prefixes served by MockRAM.
const (
	CharacterPath = "/api/character"
	EpisodePath   = "/api/episode/"
)

// MockResponse defines a canned response for a path.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockRAM is an in-process stand-in for the Rick and Morty API serving a
// fixed catalogue. Canned responses set with SetResponse take precedence.
type MockRAM struct {
	server     *httptest.Server
	mu         sync.RWMutex
	characters []model.Character
	episodes   map[int]model.Episode
	overrides  map[string]MockResponse
	requests   map[string]int
	queries    []string
	notMod     int
}

// NewMockRAM starts a mock API over the given catalogue.
func NewMockRAM(characters []model.Character, episodes []model.Episode) *MockRAM {
	mock := &MockRAM{
		characters: characters,
		episodes:   make(map[int]model.Episode, len(episodes)),
		overrides:  make(map[string]MockResponse),
		requests:   make(map[string]int),
	}
	for _, e := range episodes {
		mock.episodes[e.ID] = e
	}

	mock.server = httptest.NewServer(http.HandlerFunc(mock.serve))
	return mock
}

// URL returns the API base URL of the mock.
func (m *MockRAM) URL() string {
	return m.server.URL + "/api"
}

// Close shuts down the mock server.
func (m *MockRAM) Close() {
	m.server.Close()
}

// SetResponse serves resp for every request to path until cleared.
func (m *MockRAM) SetResponse(path string, resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overrides[path] = resp
}

// ClearResponse removes a canned response.
func (m *MockRAM) ClearResponse(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.overrides, path)
}

// RequestCount returns the number of requests received for path.
func (m *MockRAM) RequestCount(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requests[path]
}

// TotalRequests returns the number of requests received.
func (m *MockRAM) TotalRequests() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := 0
	for _, n := range m.requests {
		total += n
	}
	return total
}

// NotModifiedCount returns the number of 304 answers sent.
func (m *MockRAM) NotModifiedCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.notMod
}

// Queries returns the raw query strings received, in arrival order.
func (m *MockRAM) Queries() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.queries...)
}

func (m *MockRAM) serve(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.requests[r.URL.Path]++
	m.queries = append(m.queries, r.URL.RawQuery)
	override, overridden := m.overrides[r.URL.Path]
	m.mu.Unlock()

	if overridden {
		writeCanned(w, override)
		return
	}

	switch {
	case r.URL.Path == CharacterPath:
		m.serveCharacters(w, r)
	case strings.HasPrefix(r.URL.Path, EpisodePath):
		m.serveEpisodes(w, r, strings.TrimPrefix(r.URL.Path, EpisodePath))
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "There is nothing here"})
	}
}

func (m *MockRAM) serveCharacters(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := strconv.Atoi(q.Get("page"))
	if err != nil || page < 1 {
		page = 1
	}
	count, err := strconv.Atoi(q.Get("count"))
	if err != nil || count < 1 {
		count = 20
	}
	status := strings.ToLower(q.Get("status"))
	gender := strings.ToLower(q.Get("gender"))

	m.mu.RLock()
	var matched []model.Character
	for _, c := range m.characters {
		if status != "" && strings.ToLower(c.Status) != status {
			continue
		}
		if gender != "" && strings.ToLower(c.Gender) != gender {
			continue
		}
		matched = append(matched, c)
	}
	m.mu.RUnlock()

	start := (page - 1) * count
	if start >= len(matched) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "There is nothing here"})
		return
	}
	end := start + count
	if end > len(matched) {
		end = len(matched)
	}

	pages := (len(matched) + count - 1) / count
	info := map[string]any{"count": len(matched), "pages": pages, "next": nil, "prev": nil}
	if page < pages {
		info["next"] = fmt.Sprintf("%s/character?page=%d", m.URL(), page+1)
	}

	m.writeResource(w, r, map[string]any{
		"info":    info,
		"results": matched[start:end],
	})
}

func (m *MockRAM) serveEpisodes(w http.ResponseWriter, r *http.Request, ids string) {
	parts := strings.Split(ids, ",")

	m.mu.RLock()
	var found []model.Episode
	for _, p := range parts {
		id, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			continue
		}
		if e, ok := m.episodes[id]; ok {
			found = append(found, e)
		}
	}
	m.mu.RUnlock()

	// The API answers single ids with an object and id lists with an
	// array sorted by id.
	if len(parts) == 1 {
		if len(found) == 0 {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "Episode not found"})
			return
		}
		m.writeResource(w, r, found[0])
		return
	}

	sort.Slice(found, func(i, j int) bool { return found[i].ID < found[j].ID })
	if found == nil {
		found = []model.Episode{}
	}
	m.writeResource(w, r, found)
}

// writeResource answers 200 with an ETag over the body, or 304 when the
// request carries the same ETag in If-None-Match.
func (m *MockRAM) writeResource(w http.ResponseWriter, r *http.Request, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	etag := fmt.Sprintf(`W/"%x"`, sha1.Sum(body))

	w.Header().Set("ETag", etag)
	if r.Header.Get("If-None-Match") == etag {
		m.mu.Lock()
		m.notMod++
		m.mu.Unlock()
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func writeCanned(w http.ResponseWriter, resp MockResponse) {
	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "Internal server error"}`,
	}
}

// NewThrottledResponse creates a 429 Too Many Requests response.
func NewThrottledResponse(retryAfter int) MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"error": "Too many requests"}`,
		Headers:    map[string]string{"Retry-After": strconv.Itoa(retryAfter)},
	}
}
