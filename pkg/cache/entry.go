package cache

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Entry is a cached response body with the validators needed to revalidate
// it once it expires.
type Entry struct {
	Data         []byte    `json:"data"`
	StatusCode   int       `json:"status_code"`
	ETag         string    `json:"etag,omitempty"`
	LastModified time.Time `json:"last_modified,omitempty"`
	Expires      time.Time `json:"expires"`
	CachedAt     time.Time `json:"cached_at"`
}

// NewEntry builds an entry whose lifetime is taken from the response headers,
// or fallback when the headers carry none.
func NewEntry(data []byte, statusCode int, headers http.Header, fallback time.Duration) *Entry {
	now := time.Now()
	entry := &Entry{
		Data:       data,
		StatusCode: statusCode,
		ETag:       headers.Get("ETag"),
		Expires:    expiresAt(headers, now, fallback),
		CachedAt:   now,
	}
	if raw := headers.Get("Last-Modified"); raw != "" {
		if lastMod, err := http.ParseTime(raw); err == nil {
			entry.LastModified = lastMod
		}
	}
	return entry
}

// ExpiresAt resolves the freshness lifetime carried by headers, starting now.
func ExpiresAt(headers http.Header, fallback time.Duration) time.Time {
	return expiresAt(headers, time.Now(), fallback)
}

// IsExpired returns true if the entry has expired.
func (e *Entry) IsExpired() bool {
	return !time.Now().Before(e.Expires)
}

// Revalidatable reports whether the entry carries a validator for a
// conditional request.
func (e *Entry) Revalidatable() bool {
	return e.ETag != "" || !e.LastModified.IsZero()
}

// TTL returns the time until expiration, 0 if already expired.
func (e *Entry) TTL() time.Duration {
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}

// expiresAt resolves the freshness lifetime of a response.
// Cache-Control wins over Expires; no-store and no-cache make the entry
// immediately stale.
func expiresAt(headers http.Header, now time.Time, fallback time.Duration) time.Time {
	if cc := headers.Get("Cache-Control"); cc != "" {
		for _, directive := range strings.Split(cc, ",") {
			directive = strings.ToLower(strings.TrimSpace(directive))
			switch {
			case directive == "no-store", directive == "no-cache":
				return now
			case strings.HasPrefix(directive, "max-age="):
				if secs, err := strconv.Atoi(strings.TrimPrefix(directive, "max-age=")); err == nil {
					return now.Add(time.Duration(secs) * time.Second)
				}
			}
		}
	}

	if raw := headers.Get("Expires"); raw != "" {
		if expires, err := http.ParseTime(raw); err == nil {
			if expires.Before(now) {
				return now
			}
			return expires
		}
	}

	return now.Add(fallback)
}
