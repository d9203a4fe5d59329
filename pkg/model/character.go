// Package model holds the data contracts shared by the remote client, the
// pagination engine and the episode loader.
package model

import (
	"strings"
	"time"
)

// Status values used by the remote API and the list filter.
const (
	StatusAlive   = "alive"
	StatusDead    = "dead"
	StatusUnknown = "unknown"
)

// Gender values used by the remote API and the list filter.
const (
	GenderFemale     = "female"
	GenderMale       = "male"
	GenderGenderless = "genderless"
	GenderUnknown    = "unknown"
)

// Character is a single entry of the character catalogue.
// Values are immutable once received; identity is ID.
type Character struct {
	ID       int       `json:"id"`
	Name     string    `json:"name"`
	Status   string    `json:"status"`
	Species  string    `json:"species"`
	Type     string    `json:"type"`
	Gender   string    `json:"gender"`
	Origin   Location  `json:"origin"`
	Location Location  `json:"location"`
	Image    string    `json:"image"`
	Episode  []string  `json:"episode"`
	URL      string    `json:"url"`
	Created  time.Time `json:"created"`
}

// StatusKind normalizes the free-form status to alive, dead or unknown.
func (c Character) StatusKind() string {
	switch strings.ToLower(strings.TrimSpace(c.Status)) {
	case StatusAlive:
		return StatusAlive
	case StatusDead:
		return StatusDead
	default:
		return StatusUnknown
	}
}

// FirstSeen returns the URL of the first episode the character appears in,
// or an empty string when the character has no episode references.
func (c Character) FirstSeen() string {
	if len(c.Episode) == 0 {
		return ""
	}
	return c.Episode[0]
}

// Location is a named reference to a location resource.
type Location struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Known reports whether the location points at a resource.
// The API uses an empty URL for "unknown".
func (l Location) Known() bool {
	return strings.TrimSpace(l.URL) != ""
}

// ID derives the location id from its URL.
func (l Location) ID() (string, error) {
	return ResourceID(l.URL)
}
