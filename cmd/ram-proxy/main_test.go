package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/ram-browser/internal/testutil"
	"github.com/Sternrassler/ram-browser/pkg/browser"
	"github.com/Sternrassler/ram-browser/pkg/client"
	"github.com/Sternrassler/ram-browser/pkg/pagination"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

// newTestProxy serves the proxy routes over a mock API.
func newTestProxy(t *testing.T) (*httptest.Server, *testutil.MockRAM) {
	t.Helper()

	mock := testutil.NewMockRAM(testutil.Characters(30), testutil.Episodes(3))
	t.Cleanup(mock.Close)

	cfg := client.DefaultConfig()
	cfg.BaseURL = mock.URL()
	cfg.Timeout = 2 * time.Second
	ramClient, err := client.New(cfg)
	if err != nil {
		t.Fatalf("client.New() error = %v", err)
	}

	b := browser.New(ramClient, browser.DefaultConfig(), zerolog.Nop())
	srv := httptest.NewServer(newServer(b, ramClient, zerolog.Nop()).routes())
	t.Cleanup(srv.Close)

	return srv, mock
}

func do(t *testing.T, method, url string) (*http.Response, []byte) {
	t.Helper()

	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s error = %v", method, url, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	return resp, body
}

func TestHealthEndpoint(t *testing.T) {
	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	healthHandler(w, req)

	resp := w.Result()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	if string(body) != "OK" {
		t.Errorf("Expected body 'OK', got %s", string(body))
	}
}

func TestReadyEndpoint(t *testing.T) {
	tests := []struct {
		name   string
		pinger pinger
		want   int
	}{
		{"ready", fakePinger{}, http.StatusOK},
		{"not_ready_redis_down", fakePinger{err: errors.New("connection refused")}, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/ready", nil)
			w := httptest.NewRecorder()

			readyHandler(tt.pinger)(w, req)

			if w.Code != tt.want {
				t.Errorf("Expected status %d, got %d", tt.want, w.Code)
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestProxy(t)

	// Produce at least one request sample.
	do(t, http.MethodPost, srv.URL+"/characters/next")

	resp, body := do(t, http.MethodGet, srv.URL+"/metrics")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	bodyStr := string(body)
	if !strings.Contains(bodyStr, "# HELP") || !strings.Contains(bodyStr, "# TYPE") {
		t.Error("Expected Prometheus format metrics output")
	}
	for _, name := range []string{"ram_requests_total", "ram_pages_loaded_total"} {
		if !strings.Contains(bodyStr, name) {
			t.Errorf("Expected metrics output to contain %s", name)
		}
	}
}

func TestRequestID(t *testing.T) {
	srv, _ := newTestProxy(t)

	resp, _ := do(t, http.MethodGet, srv.URL+"/health")
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("Expected a generated X-Request-ID")
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("X-Request-ID"); got != "abc-123" {
		t.Errorf("X-Request-ID = %q, want abc-123", got)
	}
}

func TestCharacterList(t *testing.T) {
	srv, mock := newTestProxy(t)

	resp, body := do(t, http.MethodGet, srv.URL+"/characters")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /characters status = %d", resp.StatusCode)
	}

	resp, body = do(t, http.MethodPost, srv.URL+"/characters/next")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST /characters/next status = %d: %s", resp.StatusCode, body)
	}

	var snap pagination.Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if len(snap.Items) != 10 || snap.NextCursor != 2 {
		t.Errorf("snapshot = %d items cursor %d, want 10 items cursor 2", len(snap.Items), snap.NextCursor)
	}

	resp, _ = do(t, http.MethodPost, srv.URL+"/characters/visible?index=5")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("POST /characters/visible status = %d", resp.StatusCode)
	}
	if n := mock.RequestCount(testutil.CharacterPath); n != 2 {
		t.Errorf("character requests = %d, want 2 after prefetch", n)
	}

	resp, _ = do(t, http.MethodPost, srv.URL+"/characters/visible?index=-1")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad index status = %d, want 400", resp.StatusCode)
	}

	resp, body = do(t, http.MethodPost, srv.URL+"/characters/refresh")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST /characters/refresh status = %d", resp.StatusCode)
	}
	if err := json.Unmarshal(body, &snap); err != nil {
		t.Fatal(err)
	}
	if len(snap.Items) != 10 {
		t.Errorf("items after refresh = %d, want 10", len(snap.Items))
	}
}

func TestCharacterList_UpstreamFailureAndRetry(t *testing.T) {
	srv, mock := newTestProxy(t)
	mock.SetResponse(testutil.CharacterPath, testutil.NewServerErrorResponse())

	resp, body := do(t, http.MethodPost, srv.URL+"/characters/next")
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", resp.StatusCode)
	}
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		t.Fatal(err)
	}
	if eb.Class != string(client.ErrorClassServer) {
		t.Errorf("class = %q, want server", eb.Class)
	}

	_, body = do(t, http.MethodGet, srv.URL+"/characters")
	if !strings.Contains(string(body), `"status":"error"`) {
		t.Errorf("list should report the error state, got %s", body)
	}

	mock.ClearResponse(testutil.CharacterPath)
	resp, body = do(t, http.MethodPost, srv.URL+"/characters/retry")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("retry status = %d: %s", resp.StatusCode, body)
	}
	var snap pagination.Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		t.Fatal(err)
	}
	if len(snap.Items) != 10 {
		t.Errorf("items after retry = %d, want 10", len(snap.Items))
	}
}

func TestFilterEndpoints(t *testing.T) {
	srv, _ := newTestProxy(t)

	tests := []struct {
		name   string
		method string
		path   string
		want   int
	}{
		{"status filter", http.MethodPut, "/filter?status=Dead", http.StatusOK},
		{"both filters", http.MethodPut, "/filter?status=alive&gender=female", http.StatusOK},
		{"unknown status", http.MethodPut, "/filter?status=zombie", http.StatusBadRequest},
		{"unknown gender", http.MethodPut, "/filter?gender=robot", http.StatusBadRequest},
		{"clear", http.MethodDelete, "/filter", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := do(t, tt.method, srv.URL+tt.path)
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d: %s", resp.StatusCode, tt.want, body)
			}
		})
	}
}

func TestSelectAndDetail(t *testing.T) {
	srv, _ := newTestProxy(t)

	resp, _ := do(t, http.MethodGet, srv.URL+"/detail")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("detail without selection status = %d, want 404", resp.StatusCode)
	}

	do(t, http.MethodPost, srv.URL+"/characters/next")

	resp, _ = do(t, http.MethodPost, srv.URL+"/select?id=abc")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad id status = %d, want 400", resp.StatusCode)
	}
	resp, _ = do(t, http.MethodPost, srv.URL+"/select?id=999")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown id status = %d, want 404", resp.StatusCode)
	}
	resp, _ = do(t, http.MethodPost, srv.URL+"/select?id=3")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("select status = %d, want 200", resp.StatusCode)
	}

	resp, body := do(t, http.MethodGet, srv.URL+"/detail")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("detail status = %d: %s", resp.StatusCode, body)
	}

	var d struct {
		Character struct {
			ID int `json:"id"`
		} `json:"character"`
		FirstSeen string `json:"first_seen"`
		Episodes  struct {
			Episodes []struct {
				ID int `json:"id"`
			} `json:"episodes"`
		} `json:"episodes"`
	}
	if err := json.Unmarshal(body, &d); err != nil {
		t.Fatal(err)
	}
	if d.Character.ID != 3 || len(d.Episodes.Episodes) != 3 || d.FirstSeen != "Episode 1" {
		t.Errorf("detail = %+v", d)
	}
}

func TestRootCmd_InvalidConfig(t *testing.T) {
	t.Chdir(t.TempDir())

	cmd := newRootCmd(viper.New())
	cmd.SetArgs([]string{"--page-size", "-1"})
	cmd.SetOut(io.Discard)

	err := cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "page_size") {
		t.Errorf("Execute() error = %v, want page_size validation error", err)
	}
}

func TestRootCmd_Flags(t *testing.T) {
	cmd := newRootCmd(viper.New())

	for _, name := range []string{"config", "port", "base-url", "user-agent", "redis-url", "page-size",
		"prefetch-distance", "timeout", "cache-ttl", "log-level", "log-pretty"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("flag --%s not defined", name)
		}
	}
}

func TestPagerAction_OutlivesRequest(t *testing.T) {
	mock := testutil.NewMockRAM(testutil.Characters(30), testutil.Episodes(3))
	defer mock.Close()

	cfg := client.DefaultConfig()
	cfg.BaseURL = mock.URL()
	cfg.Timeout = 2 * time.Second
	ramClient, err := client.New(cfg)
	if err != nil {
		t.Fatalf("client.New() error = %v", err)
	}
	b := browser.New(ramClient, browser.DefaultConfig(), zerolog.Nop())
	handler := newServer(b, ramClient, zerolog.Nop()).routes()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/characters/next", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", w.Code, w.Body.String())
	}
	snap := b.Pager.Snapshot()
	if snap.Initial.IsError() || len(snap.Items) != 10 {
		t.Errorf("snapshot initial = %v with %d items, want loaded page 1", snap.Initial.Status, len(snap.Items))
	}
}
