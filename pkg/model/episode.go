package model

import "time"

// Episode is a sub-resource referenced by a character.
type Episode struct {
	ID      int       `json:"id"`
	Name    string    `json:"name"`
	AirDate string    `json:"air_date"`
	Code    string    `json:"episode"`
	URL     string    `json:"url"`
	Created time.Time `json:"created"`
}
