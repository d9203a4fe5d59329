package testutil

import (
	"fmt"
	"time"

	"github.com/Sternrassler/ram-browser/pkg/model"
)

const fixtureBase = "https://rickandmortyapi.com/api"

var (
	fixtureStatuses = []string{"Alive", "Dead", "unknown"}
	fixtureGenders  = []string{"Female", "Male", "Genderless", "unknown"}
)

// Characters builds n characters with ids 1..n. Status and gender cycle
// through the API vocabulary; character i appears in episodes 1..(i%4).
func Characters(n int) []model.Character {
	out := make([]model.Character, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, Character(i, fixtureStatuses[(i-1)%len(fixtureStatuses)], fixtureGenders[(i-1)%len(fixtureGenders)], i%4))
	}
	return out
}

// Character builds a single character appearing in episodes 1..episodes.
func Character(id int, status, gender string, episodes int) model.Character {
	refs := make([]string, 0, episodes)
	for e := 1; e <= episodes; e++ {
		refs = append(refs, EpisodeURL(e))
	}
	return model.Character{
		ID:       id,
		Name:     fmt.Sprintf("Character %d", id),
		Status:   status,
		Species:  "Human",
		Gender:   gender,
		Origin:   model.Location{Name: "Earth (C-137)", URL: fixtureBase + "/location/1"},
		Location: model.Location{Name: "unknown"},
		Image:    fmt.Sprintf("%s/character/avatar/%d.jpeg", fixtureBase, id),
		Episode:  refs,
		URL:      fmt.Sprintf("%s/character/%d", fixtureBase, id),
		Created:  time.Date(2017, 11, 4, 18, 48, 46, 0, time.UTC),
	}
}

// Episodes builds n episodes with ids 1..n.
func Episodes(n int) []model.Episode {
	out := make([]model.Episode, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, model.Episode{
			ID:      i,
			Name:    fmt.Sprintf("Episode %d", i),
			AirDate: "December 2, 2013",
			Code:    fmt.Sprintf("S01E%02d", i),
			URL:     EpisodeURL(i),
			Created: time.Date(2017, 11, 10, 12, 56, 33, 0, time.UTC),
		})
	}
	return out
}

// EpisodeURL returns the canonical URL of episode id.
func EpisodeURL(id int) string {
	return fmt.Sprintf("%s/episode/%d", fixtureBase, id)
}
