package model

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/samber/lo"
)

// ErrMalformedURL is returned when an id cannot be derived from a resource URL.
var ErrMalformedURL = errors.New("malformed resource url")

// ResourceID returns the trailing numeric path segment of a resource URL,
// e.g. "https://rickandmortyapi.com/api/episode/28" -> "28".
func ResourceID(rawURL string) (string, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return "", fmt.Errorf("%w: empty", ErrMalformedURL)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrMalformedURL, rawURL, err)
	}

	path := strings.TrimRight(u.Path, "/")
	segment := path[strings.LastIndex(path, "/")+1:]
	if segment == "" {
		return "", fmt.Errorf("%w: %q has no id segment", ErrMalformedURL, rawURL)
	}

	id, err := strconv.Atoi(segment)
	if err != nil || id <= 0 {
		return "", fmt.Errorf("%w: %q has non-numeric id %q", ErrMalformedURL, rawURL, segment)
	}

	return strconv.Itoa(id), nil
}

// EpisodeIDs derives the ids of the given episode URLs, in reference order
// and without duplicates.
func EpisodeIDs(urls []string) ([]string, error) {
	ids := make([]string, 0, len(urls))
	for _, u := range urls {
		id, err := ResourceID(u)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return lo.Uniq(ids), nil
}

// CompositeID joins ids into the multi-id specifier understood by the API.
func CompositeID(ids []string) string {
	return strings.Join(ids, ",")
}
