package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Key identifies a cached response.
type Key struct {
	// Endpoint is the API path, e.g. "/character" or "/episode/1,2".
	Endpoint string

	// Query holds the request query parameters. Empty values are ignored.
	Query url.Values
}

// String generates a deterministic key.
// Format: ram:<endpoint>:<param>=<value>...
//
// Example:
//
//	ram:character:gender=female:page=2
func (k Key) String() string {
	parts := []string{"ram"}

	if endpoint := strings.Trim(k.Endpoint, "/"); endpoint != "" {
		parts = append(parts, endpoint)
	}

	names := make([]string, 0, len(k.Query))
	for name := range k.Query {
		if k.Query.Get(name) != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s=%s", name, k.Query.Get(name)))
	}

	return strings.Join(parts, ":")
}
