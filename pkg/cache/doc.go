// Package cache provides a Redis-backed cache for remote API responses.
//
// Response bodies are stored under deterministic keys derived from the
// endpoint and query parameters. Each entry lives as long as the response's
// freshness lifetime (Cache-Control max-age, then Expires, then a fallback
// TTL), after which Redis removes it.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	manager := cache.NewManager(redisClient)
//
//	key := cache.Key{
//		Endpoint: "/character",
//		Query:    url.Values{"page": []string{"2"}, "status": []string{"alive"}},
//	}
//
//	entry, err := manager.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch from the API, then:
//		_ = manager.Set(ctx, key, cache.NewEntry(body, resp.StatusCode, resp.Header, fallback))
//	}
//
// # Metrics
//
//   - ram_cache_hits_total - Cache hits
//   - ram_cache_misses_total - Cache misses
//   - ram_cache_errors_total{operation} - Cache operation errors
//
// The cache is shared by every client pointing at the same Redis database;
// it is not an eviction-managed store.
package cache
