// Package episodes resolves the episodes a character appears in. Results are
// cached for the lifetime of the loader under the composite id of the
// request, so reopening a character never hits the API twice.
package episodes

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/Sternrassler/ram-browser/pkg/client"
	"github.com/Sternrassler/ram-browser/pkg/filter"
	"github.com/Sternrassler/ram-browser/pkg/metrics"
	"github.com/Sternrassler/ram-browser/pkg/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"golang.org/x/sync/singleflight"
)

var (
	episodeCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ram_episode_cache_hits_total",
		Help: "Episode lookups answered from the loader cache",
	})

	episodeFetches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ram_episode_fetches_total",
		Help: "Batch episode requests sent to the API",
	})
)

// Source is the remote data source for episodes. idSpec is a comma
// separated id list. client.Client implements it.
type Source interface {
	FetchEpisodes(ctx context.Context, idSpec string) ([]model.Episode, error)
}

// Config holds loader configuration.
type Config struct {
	// Timeout bounds one batch request.
	Timeout time.Duration
}

// DefaultConfig returns the default loader configuration.
func DefaultConfig() Config {
	return Config{Timeout: 15 * time.Second}
}

// Result is the episode state of the character shown in the detail view.
type Result struct {
	CharacterID int             `json:"character_id"`
	Key         string          `json:"key"`
	State       model.LoadState `json:"state"`
	Episodes    []model.Episode `json:"episodes"`
}

// Loader fetches and caches episode lists.
type Loader struct {
	source Source
	config Config
	logger zerolog.Logger
	group  singleflight.Group

	mu      sync.Mutex
	cache   map[string][]model.Episode
	current Result
	subs    map[int]chan Result
	nextSub int
}

// NewLoader creates a loader with an empty cache.
func NewLoader(source Source, config Config, logger zerolog.Logger) *Loader {
	if config.Timeout <= 0 {
		config.Timeout = DefaultConfig().Timeout
	}
	return &Loader{
		source:  source,
		config:  config,
		logger:  logger,
		cache:   make(map[string][]model.Episode),
		current: Result{State: model.Idle()},
		subs:    make(map[int]chan Result),
	}
}

// LoadFor returns the episodes of c in the order c references them and
// makes c the current character. A character without episode references
// yields an empty list without a request. Failures are not cached; calling
// LoadFor again retries.
func (l *Loader) LoadFor(ctx context.Context, c model.Character) ([]model.Episode, error) {
	ids, err := model.EpisodeIDs(c.Episode)
	if err != nil {
		err = client.Classify(err)
		l.mu.Lock()
		l.current = Result{CharacterID: c.ID, State: model.Failed(err)}
		l.publishLocked()
		l.mu.Unlock()
		return nil, err
	}
	key := model.CompositeID(ids)

	l.mu.Lock()
	if len(ids) == 0 {
		l.current = Result{CharacterID: c.ID, Key: key, State: model.Loaded(), Episodes: []model.Episode{}}
		l.publishLocked()
		l.mu.Unlock()
		return []model.Episode{}, nil
	}
	if cached, ok := l.cache[key]; ok {
		episodeCacheHits.Inc()
		l.logger.Debug().Int("character", c.ID).Str("key", key).Msg("Episode cache hit")
		l.current = Result{CharacterID: c.ID, Key: key, State: model.Loaded(), Episodes: cached}
		l.publishLocked()
		l.mu.Unlock()
		return slices.Clone(cached), nil
	}
	l.current = Result{CharacterID: c.ID, Key: key, State: model.Loading()}
	l.publishLocked()
	l.mu.Unlock()

	v, err, shared := l.group.Do(key, func() (interface{}, error) {
		return l.fetch(ctx, key, ids)
	})
	if shared {
		l.logger.Debug().Str("key", key).Msg("Coalesced episode request")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var episodes []model.Episode
	if err == nil {
		episodes = v.([]model.Episode)
		l.cache[key] = episodes
	}

	if l.current.CharacterID != c.ID || l.current.Key != key {
		metrics.StaleResults.WithLabelValues(metrics.ComponentEpisodes).Inc()
		l.logger.Debug().Int("character", c.ID).Msg("Episode result no longer current")
		return slices.Clone(episodes), err
	}

	if err != nil {
		l.logger.Warn().Err(err).Int("character", c.ID).Str("key", key).Msg("Episode load failed")
		l.current.State = model.Failed(err)
	} else {
		l.current.State = model.Loaded()
		l.current.Episodes = episodes
	}
	l.publishLocked()

	return slices.Clone(episodes), err
}

// Current returns the episode state of the current character.
func (l *Loader) Current() Result {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current.clone()
}

// Subscribe returns a channel carrying the latest Result after every
// transition, and a func to stop.
func (l *Loader) Subscribe() (<-chan Result, func()) {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := l.nextSub
	l.nextSub++
	ch := make(chan Result, 1)
	l.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			delete(l.subs, id)
			close(ch)
		})
	}
}

// Watch loads the episodes of every newly selected character until ctx is
// done or changes is closed. Filter changes are ignored.
func (l *Loader) Watch(ctx context.Context, changes <-chan filter.Change, selected func() (model.Character, error)) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return nil
		case change, ok := <-changes:
			if !ok {
				return nil
			}
			if change.Kind != filter.ChangeSelection {
				continue
			}
			c, err := selected()
			if err != nil {
				continue
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := l.LoadFor(ctx, c); err != nil {
					l.logger.Debug().Err(err).Int("character", c.ID).Msg("Background episode load failed")
				}
			}()
		}
	}
}

// fetch issues one batch request and orders the response by ids.
func (l *Loader) fetch(ctx context.Context, key string, ids []string) ([]model.Episode, error) {
	ctx, cancel := context.WithTimeout(ctx, l.config.Timeout)
	defer cancel()

	episodeFetches.Inc()
	episodes, err := l.source.FetchEpisodes(ctx, key)
	if err != nil {
		return nil, client.Classify(err)
	}
	return reorder(episodes, ids)
}

// reorder returns episodes in the order of ids. Every id must be present.
func reorder(episodes []model.Episode, ids []string) ([]model.Episode, error) {
	byID := lo.KeyBy(episodes, func(e model.Episode) string {
		return strconv.Itoa(e.ID)
	})

	out := make([]model.Episode, 0, len(ids))
	for _, id := range ids {
		e, ok := byID[id]
		if !ok {
			return nil, &client.APIError{
				Class:   client.ErrorClassDecode,
				Message: fmt.Sprintf("episode %s missing from response", id),
			}
		}
		out = append(out, e)
	}
	return out, nil
}

// publishLocked delivers the current result, replacing one not yet read.
func (l *Loader) publishLocked() {
	for _, ch := range l.subs {
		select {
		case <-ch:
		default:
		}
		ch <- l.current.clone()
	}
}

// clone returns r with its own copy of Episodes; the loader keeps the
// cached slice.
func (r Result) clone() Result {
	r.Episodes = slices.Clone(r.Episodes)
	return r
}
