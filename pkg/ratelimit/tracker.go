package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var (
	throttleBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ram_throttle_blocks_total",
		Help: "Total number of requests held back while the API throttles us",
	})

	throttleEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ram_throttle_events_total",
		Help: "Total number of 429 responses received",
	})
)

// Tracker records 429 responses and gates requests until the advertised
// Retry-After has elapsed.
type Tracker struct {
	redis  *redis.Client
	logger zerolog.Logger
}

// NewTracker creates a new throttle tracker.
func NewTracker(redisClient *redis.Client, logger zerolog.Logger) *Tracker {
	return &Tracker{
		redis:  redisClient,
		logger: logger,
	}
}

// GetState retrieves the throttle state. A missing key means not blocked.
func (t *Tracker) GetState(ctx context.Context) (*ThrottleState, error) {
	vals, err := t.redis.MGet(ctx, RedisKeyBlockedUntil, RedisKeyLastUpdate).Result()
	if err != nil {
		return nil, fmt.Errorf("get throttle state: %w", err)
	}

	state := &ThrottleState{}
	if until, err := unixField(vals[0]); err != nil {
		return nil, fmt.Errorf("parse blocked until: %w", err)
	} else if until > 0 {
		state.BlockedUntil = time.Unix(until, 0)
	}
	if last, err := unixField(vals[1]); err != nil {
		return nil, fmt.Errorf("parse last update: %w", err)
	} else if last > 0 {
		state.LastUpdate = time.Unix(last, 0)
	}

	return state, nil
}

// Observe records a response. Only 429 responses change the state.
func (t *Tracker) Observe(ctx context.Context, statusCode int, headers http.Header) error {
	if statusCode != http.StatusTooManyRequests {
		return nil
	}
	throttleEventsTotal.Inc()

	now := time.Now()
	wait := ParseRetryAfter(headers.Get("Retry-After"), now)
	until := now.Add(wait)

	pipe := t.redis.Pipeline()
	pipe.Set(ctx, RedisKeyBlockedUntil, until.Unix(), wait)
	pipe.Set(ctx, RedisKeyLastUpdate, now.Unix(), 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store throttle state in redis: %w", err)
	}

	t.logger.Warn().
		Dur("retry_after", wait).
		Time("blocked_until", until).
		Msg("API throttling - requests held back")

	return nil
}

// ShouldAllowRequest reports whether a request may be sent now. When it
// returns false the second value is the remaining wait.
func (t *Tracker) ShouldAllowRequest(ctx context.Context) (bool, time.Duration, error) {
	state, err := t.GetState(ctx)
	if err != nil {
		return false, 0, err
	}

	if state.IsBlocked() {
		throttleBlocksTotal.Inc()
		t.logger.Debug().
			Dur("remaining", state.Remaining()).
			Msg("Request blocked by throttle gate")
		return false, state.Remaining(), nil
	}

	return true, 0, nil
}

// ParseRetryAfter interprets a Retry-After header given as seconds or as an
// HTTP date. Unusable values fall back to DefaultRetryAfter.
func ParseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return DefaultRetryAfter
	}

	if secs, err := strconv.Atoi(value); err == nil {
		if secs <= 0 {
			return DefaultRetryAfter
		}
		return time.Duration(secs) * time.Second
	}

	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}

	return DefaultRetryAfter
}

func unixField(v any) (int64, error) {
	if v == nil {
		return 0, nil
	}
	s, ok := v.(string)
	if !ok {
		return 0, errors.New("unexpected value type")
	}
	return strconv.ParseInt(s, 10, 64)
}
