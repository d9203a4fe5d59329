// Package client provides the HTTP client for the Rick and Morty API with
// response caching, throttle gating and error classification.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/ram-browser/pkg/cache"
	"github.com/Sternrassler/ram-browser/pkg/logging"
	"github.com/Sternrassler/ram-browser/pkg/model"
	"github.com/Sternrassler/ram-browser/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// DefaultBaseURL is the public Rick and Morty API.
const DefaultBaseURL = "https://rickandmortyapi.com/api"

// Prometheus metrics for API client operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ram_requests_total",
		Help: "Total API requests by endpoint and status",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ram_request_duration_seconds",
		Help:    "API request duration in seconds by endpoint",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"endpoint"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ram_errors_total",
		Help: "Total API errors by class",
	}, []string{"class"})
)

// Client is the Rick and Morty API client. It implements the remote data
// source consumed by the pagination engine and the episode loader.
type Client struct {
	httpClient *http.Client
	cache      *cache.Manager
	throttle   *ratelimit.Tracker
	baseURL    string
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL of the API, without trailing slash.
	BaseURL string

	// User-Agent header sent with every request.
	UserAgent string

	// Timeout bounds each HTTP request including reading the body.
	Timeout time.Duration

	// Redis enables the shared response cache and throttle gate. Optional.
	Redis *redis.Client

	// CacheTTL is used for responses without freshness headers.
	CacheTTL time.Duration
}

// DefaultConfig returns a default configuration without Redis.
func DefaultConfig() Config {
	return Config{
		BaseURL:   DefaultBaseURL,
		UserAgent: "ram-browser/0.1.0",
		Timeout:   30 * time.Second,
		CacheTTL:  5 * time.Minute,
	}
}

// New creates a new API client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", cfg.BaseURL)
	}
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("timeout must be > 0 (got %s)", cfg.Timeout)
	}
	if cfg.CacheTTL < 0 {
		return nil, fmt.Errorf("cache_ttl must be >= 0 (got %s)", cfg.CacheTTL)
	}

	logger := logging.NewLogger(logging.ComponentClient)

	c := &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		config:     cfg,
		logger:     logger,
	}
	if cfg.Redis != nil {
		c.cache = cache.NewManager(cfg.Redis)
		c.throttle = ratelimit.NewTracker(cfg.Redis, logger)
	}

	return c, nil
}

// characterList mirrors the /character response envelope.
type characterList struct {
	Info struct {
		Count int    `json:"count"`
		Pages int    `json:"pages"`
		Next  string `json:"next"`
	} `json:"info"`
	Results []model.Character `json:"results"`
}

// FetchCharacters fetches one page of characters. Empty status or gender
// means no filter on that dimension. A page past the end is returned as an
// empty page, not as an error.
func (c *Client) FetchCharacters(ctx context.Context, pageSize, page int, status, gender string) (model.Page, error) {
	if page < model.FirstPage {
		page = model.FirstPage
	}

	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	if pageSize > 0 {
		query.Set("count", strconv.Itoa(pageSize))
	}
	if status != "" {
		query.Set("status", status)
	}
	if gender != "" {
		query.Set("gender", gender)
	}

	body, err := c.get(ctx, "/character", "/character", query)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			c.logger.Debug().Int("page", page).Msg("Character list exhausted")
			return model.Page{Characters: []model.Character{}, Next: model.NoCursor}, nil
		}
		return model.Page{}, err
	}

	var list characterList
	if err := json.Unmarshal(body, &list); err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassDecode)).Inc()
		return model.Page{}, &APIError{Class: ErrorClassDecode, Message: "decode character page", Err: err}
	}
	if list.Results == nil {
		list.Results = []model.Character{}
	}

	return model.Page{
		Characters: list.Results,
		Next:       model.NextCursor(page, len(list.Results)),
	}, nil
}

// FetchEpisodes fetches the episodes named by idSpec, a single id or a
// comma-separated id list. The order of the result is the API's.
func (c *Client) FetchEpisodes(ctx context.Context, idSpec string) ([]model.Episode, error) {
	idSpec = strings.TrimSpace(idSpec)
	if idSpec == "" {
		return []model.Episode{}, nil
	}

	if strings.Trim(idSpec, "0123456789,") != "" {
		return nil, &APIError{Class: ErrorClassDecode, Message: fmt.Sprintf("invalid episode id spec %q", idSpec)}
	}

	body, err := c.get(ctx, "/episode/"+idSpec, "/episode", nil)
	if err != nil {
		return nil, err
	}

	episodes, err := decodeEpisodes(body)
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassDecode)).Inc()
		return nil, &APIError{Class: ErrorClassDecode, Message: "decode episodes", Err: err}
	}
	return episodes, nil
}

// decodeEpisodes accepts both shapes of the episode endpoint: an object for
// a single id and an array for an id list.
func decodeEpisodes(body []byte) ([]model.Episode, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, errors.New("empty body")
	}

	if trimmed[0] == '{' {
		var episode model.Episode
		if err := json.Unmarshal(trimmed, &episode); err != nil {
			return nil, err
		}
		return []model.Episode{episode}, nil
	}

	var episodes []model.Episode
	if err := json.Unmarshal(trimmed, &episodes); err != nil {
		return nil, err
	}
	if episodes == nil {
		episodes = []model.Episode{}
	}
	return episodes, nil
}

// get performs a GET request with caching, throttle gating and error
// classification. label is the low-cardinality endpoint name for metrics.
func (c *Client) get(ctx context.Context, endpoint, label string, query url.Values) ([]byte, error) {
	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(label).Observe(time.Since(startTime).Seconds())
	}()

	cacheKey := cache.Key{Endpoint: endpoint, Query: query}
	var stale *cache.Entry
	if c.cache != nil {
		entry, err := c.cache.Lookup(ctx, cacheKey)
		switch {
		case err == nil && !entry.IsExpired():
			c.logger.Debug().Str("key", cacheKey.String()).Msg("Cache hit")
			requestsTotal.WithLabelValues(label, "cached").Inc()
			return entry.Data, nil
		case err == nil:
			stale = entry
		case !errors.Is(err, cache.ErrCacheMiss):
			c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("Cache get error")
		}
	}

	if c.throttle != nil {
		allowed, wait, err := c.throttle.ShouldAllowRequest(ctx)
		if err != nil {
			c.logger.Warn().Err(err).Msg("Throttle check failed")
		} else if !allowed {
			requestsTotal.WithLabelValues(label, "throttled").Inc()
			errorsTotal.WithLabelValues(string(ErrorClassServer)).Inc()
			return nil, &APIError{
				StatusCode: http.StatusTooManyRequests,
				Class:      ErrorClassServer,
				Message:    fmt.Sprintf("throttled, retry in %s", wait.Round(time.Second)),
			}
		}
	}

	reqURL := c.baseURL + endpoint
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, &APIError{Class: ErrorClassNetwork, Message: "create request", Err: err}
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")
	if cache.AddConditionalHeaders(req, stale) {
		c.logger.Debug().Str("key", cacheKey.String()).Msg("Revalidating expired entry")
	} else {
		stale = nil
	}

	c.logger.Debug().Str("url", reqURL).Msg("Executing API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("HTTP request failed")
		requestsTotal.WithLabelValues(label, "network_error").Inc()
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return nil, Classify(err)
	}
	defer resp.Body.Close()

	requestsTotal.WithLabelValues(label, strconv.Itoa(resp.StatusCode)).Inc()

	if c.throttle != nil {
		if err := c.throttle.Observe(ctx, resp.StatusCode, resp.Header); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to record throttle state")
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return nil, &APIError{Class: ErrorClassNetwork, Message: "read response body", Err: err}
	}

	if resp.StatusCode == http.StatusNotModified && stale != nil {
		cache.NotModifiedResponses.Inc()
		expires := cache.ExpiresAt(resp.Header, c.config.CacheTTL)
		if err := c.cache.UpdateTTL(ctx, cacheKey, expires); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to refresh cached response")
		}
		c.logger.Debug().Str("key", cacheKey.String()).Msg("304 Not Modified - using cache")
		return stale.Data, nil
	}

	if resp.StatusCode >= 400 {
		apiErr := statusError(resp)
		if msg := apiMessage(body); msg != "" {
			apiErr.Message = msg
		}
		if resp.StatusCode != http.StatusNotFound {
			errorsTotal.WithLabelValues(string(ErrorClassServer)).Inc()
			c.logger.Warn().
				Str("endpoint", endpoint).
				Int("status", resp.StatusCode).
				Msg("API request error")
		}
		return nil, apiErr
	}

	if c.cache != nil {
		entry := cache.NewEntry(body, resp.StatusCode, resp.Header, c.config.CacheTTL)
		if err := c.cache.Set(ctx, cacheKey, entry); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to cache response")
		} else {
			c.logger.Debug().Str("key", cacheKey.String()).Dur("ttl", entry.TTL()).Msg("Cached response")
		}
	}

	return body, nil
}

// apiMessage extracts the {"error": "..."} message the API sends with errors.
func apiMessage(body []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	return payload.Error
}

// Ping checks the Redis connection backing the cache. It is a no-op without Redis.
func (c *Client) Ping(ctx context.Context) error {
	if c.config.Redis == nil {
		return nil
	}
	return c.config.Redis.Ping(ctx).Err()
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
