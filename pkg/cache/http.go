package cache

import "net/http"

// AddConditionalHeaders adds If-None-Match (ETag) or If-Modified-Since to req
// when entry carries a validator. It reports whether a header was added.
func AddConditionalHeaders(req *http.Request, entry *Entry) bool {
	if entry == nil || req == nil {
		return false
	}

	switch {
	case entry.ETag != "":
		req.Header.Set("If-None-Match", entry.ETag)
	case !entry.LastModified.IsZero():
		req.Header.Set("If-Modified-Since", entry.LastModified.UTC().Format(http.TimeFormat))
	default:
		return false
	}
	ConditionalRequests.Inc()
	return true
}
