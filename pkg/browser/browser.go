// Package browser composes the filter store, the pagination engine and the
// episode loader into the view model behind the list and detail screens.
package browser

import (
	"context"
	"errors"
	"fmt"

	"github.com/Sternrassler/ram-browser/pkg/episodes"
	"github.com/Sternrassler/ram-browser/pkg/filter"
	"github.com/Sternrassler/ram-browser/pkg/logging"
	"github.com/Sternrassler/ram-browser/pkg/model"
	"github.com/Sternrassler/ram-browser/pkg/pagination"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

// ErrUnknownCharacter is returned by Select for an id not in the list.
var ErrUnknownCharacter = errors.New("character not in list")

// Source is the remote data source of both screens. client.Client
// implements it.
type Source interface {
	pagination.PageSource
	episodes.Source
}

// Config holds view model configuration.
type Config struct {
	Pagination pagination.Config
	Episodes   episodes.Config
}

// DefaultConfig returns the default view model configuration.
func DefaultConfig() Config {
	return Config{
		Pagination: pagination.DefaultConfig(),
		Episodes:   episodes.DefaultConfig(),
	}
}

// Detail is what the detail screen shows for the selected character.
type Detail struct {
	Character model.Character `json:"character"`
	// StatusKind is alive, dead or unknown.
	StatusKind string `json:"status_kind"`
	// LastLocation is the location name, "unknown" when the API has no
	// location resource for it.
	LastLocation string `json:"last_location"`
	// FirstSeen is the name of the first episode, once episodes are loaded.
	FirstSeen string          `json:"first_seen,omitempty"`
	Episodes  episodes.Result `json:"episodes"`
}

// Browser is the view model. Filters is written by the UI only; Pager and
// Episodes follow its changes while Run is active.
type Browser struct {
	Filters  *filter.Store
	Pager    *pagination.Engine
	Episodes *episodes.Loader
	logger   zerolog.Logger
}

// New wires a browser over source with no filter and no selection.
func New(source Source, cfg Config, logger zerolog.Logger) *Browser {
	store := filter.NewStore()
	return &Browser{
		Filters:  store,
		Pager:    pagination.NewEngine(source, store, cfg.Pagination, logger.With().Str("component", logging.ComponentPagination).Logger()),
		Episodes: episodes.NewLoader(source, cfg.Episodes, logger.With().Str("component", logging.ComponentEpisodes).Logger()),
		logger:   logger,
	}
}

// Run keeps the list and the detail in step with the filter store until
// ctx is done.
func (b *Browser) Run(ctx context.Context) error {
	listChanges, cancelList := b.Filters.Subscribe()
	defer cancelList()
	detailChanges, cancelDetail := b.Filters.Subscribe()
	defer cancelDetail()

	b.logger.Info().Msg("Browser started")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return b.Pager.Watch(ctx, listChanges)
	})
	g.Go(func() error {
		return b.Episodes.Watch(ctx, detailChanges, b.Filters.Selected)
	})

	err := g.Wait()
	b.logger.Info().Msg("Browser stopped")
	return err
}

// ApplyFilter sets both filter dimensions. An empty value clears that
// dimension.
func (b *Browser) ApplyFilter(status, gender string) filter.Snapshot {
	b.Filters.Set(status, gender)
	return b.Filters.Current()
}

// ClearFilter removes both filter dimensions.
func (b *Browser) ClearFilter() filter.Snapshot {
	b.Filters.Clear()
	return b.Filters.Current()
}

// Select makes the character with id the selection. Only characters in the
// accumulated list can be selected.
func (b *Browser) Select(id int) (model.Character, error) {
	c, ok := lo.Find(b.Pager.Snapshot().Items, func(c model.Character) bool {
		return c.ID == id
	})
	if !ok {
		return model.Character{}, fmt.Errorf("select %d: %w", id, ErrUnknownCharacter)
	}
	b.Filters.Select(c)
	return c, nil
}

// Detail returns the selected character with its episodes. Episodes are
// loaded unless already loaded for this character; a failed load is reported
// in Episodes.State and the character is still returned.
func (b *Browser) Detail(ctx context.Context) (Detail, error) {
	c, err := b.Filters.Selected()
	if err != nil {
		return Detail{}, err
	}

	res := b.Episodes.Current()
	if res.CharacterID != c.ID || res.State.Status != model.LoadLoaded {
		if _, err := b.Episodes.LoadFor(ctx, c); err != nil {
			b.logger.Warn().Err(err).Int("character", c.ID).Msg("Detail without episodes")
		}
		res = b.Episodes.Current()
	}

	d := Detail{
		Character:    c,
		StatusKind:   c.StatusKind(),
		LastLocation: "unknown",
		Episodes:     res,
	}
	if c.Location.Known() {
		d.LastLocation = c.Location.Name
	}
	if res.CharacterID == c.ID && len(res.Episodes) > 0 {
		d.FirstSeen = res.Episodes[0].Name
	}
	return d, nil
}
