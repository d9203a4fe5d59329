package pagination

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Sternrassler/ram-browser/pkg/client"
	"github.com/Sternrassler/ram-browser/pkg/filter"
	"github.com/Sternrassler/ram-browser/pkg/metrics"
	"github.com/Sternrassler/ram-browser/pkg/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// ErrSuperseded is returned when a page arrives after the filter changed or
// the list was refreshed. The page is discarded.
var ErrSuperseded = errors.New("result superseded by a newer request")

// Load directions.
const (
	DirectionInitial = "initial"
	DirectionAppend  = "append"
)

var (
	pagesLoaded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ram_pages_loaded_total",
		Help: "Pages applied to the character list by direction",
	}, []string{"direction"})

	pageFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ram_page_failures_total",
		Help: "Failed page loads by direction",
	}, []string{"direction"})
)

// Config holds engine configuration.
type Config struct {
	// PageSize is the number of characters requested per page.
	PageSize int
	// PrefetchDistance is how many loaded items may remain beyond the last
	// visible one before the next page is requested.
	PrefetchDistance int
	// Timeout per page fetch
	Timeout time.Duration
}

// DefaultConfig returns the configuration of the original list screen.
func DefaultConfig() Config {
	return Config{
		PageSize:         10,
		PrefetchDistance: 15,
		Timeout:          15 * time.Second,
	}
}

// PageSource is the remote data source for character pages.
// client.Client implements it.
type PageSource interface {
	FetchCharacters(ctx context.Context, pageSize, page int, status, gender string) (model.Page, error)
}

// FilterReader gives the engine the filter in effect. filter.Store implements it.
type FilterReader interface {
	Current() filter.Snapshot
}

// Snapshot is a consistent view of the list for rendering.
type Snapshot struct {
	Items      []model.Character `json:"items"`
	Initial    model.LoadState   `json:"initial"`
	Append     model.LoadState   `json:"append"`
	NextCursor int               `json:"next_cursor"`
	EndReached bool              `json:"end_reached"`
	Filter     filter.Criteria   `json:"filter"`
	Generation uint64            `json:"generation"`
}

// Engine owns the accumulated character sequence. It is the only writer of
// the sequence; all methods are safe for concurrent use.
type Engine struct {
	source  PageSource
	filters FilterReader
	config  Config
	logger  zerolog.Logger
	group   singleflight.Group

	mu           sync.Mutex
	items        []model.Character
	seen         map[int]struct{}
	next         int
	initialState model.LoadState
	appendState  model.LoadState
	epoch        uint64
	generation   uint64
	criteria     filter.Criteria
	subs         map[int]chan Snapshot
	nextSub      int
}

// NewEngine creates an engine bound to the filter currently in effect.
// Non-positive config values are replaced with defaults.
func NewEngine(source PageSource, filters FilterReader, config Config, logger zerolog.Logger) *Engine {
	defaults := DefaultConfig()
	if config.PageSize <= 0 {
		config.PageSize = defaults.PageSize
	}
	if config.PrefetchDistance <= 0 {
		config.PrefetchDistance = defaults.PrefetchDistance
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}

	snap := filters.Current()
	return &Engine{
		source:       source,
		filters:      filters,
		config:       config,
		logger:       logger,
		seen:         make(map[int]struct{}),
		next:         model.FirstPage,
		initialState: model.Idle(),
		appendState:  model.Idle(),
		generation:   snap.Generation,
		criteria:     snap.Criteria,
		subs:         make(map[int]chan Snapshot),
	}
}

// Config returns the effective configuration.
func (e *Engine) Config() Config {
	return e.config
}

// LoadPage fetches one page under the current filter without touching the
// list. A cursor below 1 loads page 1.
func (e *Engine) LoadPage(ctx context.Context, cursor int) (model.Page, error) {
	if cursor < model.FirstPage {
		cursor = model.FirstPage
	}
	return e.fetch(ctx, cursor, e.filters.Current().Criteria)
}

// LoadNext loads the page at the current cursor and appends it. It is a
// no-op once the end is reached. If the pending page already failed, the
// recorded error is returned and nothing is requested; use Retry.
func (e *Engine) LoadNext(ctx context.Context) error {
	restarted, err := e.resync(ctx)
	if restarted {
		return err
	}

	e.mu.Lock()
	cursor := e.next
	if cursor == model.NoCursor {
		e.mu.Unlock()
		return nil
	}
	if state := e.stateLocked(cursor); state.IsError() {
		e.mu.Unlock()
		return state.Err
	}
	req := e.beginLocked(cursor)
	e.mu.Unlock()

	return e.load(ctx, req)
}

// Visible reports that the item at index is on screen. When fewer than
// PrefetchDistance loaded items lie beyond it, the next page is loaded.
func (e *Engine) Visible(ctx context.Context, index int) error {
	e.mu.Lock()
	live := e.next != model.NoCursor
	beyond := len(e.items) - 1 - index
	e.mu.Unlock()

	if !live || beyond >= e.config.PrefetchDistance {
		return nil
	}
	return e.LoadNext(ctx)
}

// Retry re-issues the failed page with the same cursor and filter. It is a
// no-op when nothing failed.
func (e *Engine) Retry(ctx context.Context) error {
	restarted, err := e.resync(ctx)
	if restarted {
		return err
	}

	e.mu.Lock()
	cursor := e.next
	if cursor == model.NoCursor || !e.stateLocked(cursor).IsError() {
		e.mu.Unlock()
		return nil
	}
	e.logger.Info().Int("page", cursor).Msg("Retrying page")
	req := e.beginLocked(cursor)
	e.mu.Unlock()

	return e.load(ctx, req)
}

// Refresh drops the list and loads page 1 under the current filter.
func (e *Engine) Refresh(ctx context.Context) error {
	req, _ := e.reset(e.filters.Current(), true)
	return e.load(ctx, req)
}

// Watch restarts the list on every filter change until ctx is done or
// changes is closed. The first page is requested right away if nothing was
// loaded yet.
func (e *Engine) Watch(ctx context.Context, changes <-chan filter.Change) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	start := func(req request) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := e.load(ctx, req); err != nil && !errors.Is(err, ErrSuperseded) {
				e.logger.Debug().Err(err).Int("page", req.cursor).Msg("Background load failed")
			}
		}()
	}

	if req, ok := e.reset(e.filters.Current(), false); ok {
		start(req)
	} else {
		e.mu.Lock()
		if e.initialState.Status == model.LoadIdle && e.next == model.FirstPage {
			start(e.beginLocked(model.FirstPage))
		}
		e.mu.Unlock()
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case change, ok := <-changes:
			if !ok {
				return nil
			}
			if change.Kind != filter.ChangeFilter {
				continue
			}
			if req, ok := e.reset(e.filters.Current(), false); ok {
				start(req)
			}
		}
	}
}

// Snapshot returns a copy of the current list state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// Subscribe returns a channel carrying the latest snapshot after every
// transition, and a func to stop. Intermediate snapshots may be skipped.
func (e *Engine) Subscribe() (<-chan Snapshot, func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := e.nextSub
	e.nextSub++
	ch := make(chan Snapshot, 1)
	e.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			delete(e.subs, id)
			close(ch)
		})
	}
}

// request identifies one page load: the page plus the epoch and filter
// generation it belongs to.
type request struct {
	cursor     int
	epoch      uint64
	generation uint64
	criteria   filter.Criteria
}

func (r request) key() string {
	return fmt.Sprintf("%d:%d", r.epoch, r.cursor)
}

func direction(cursor int) string {
	if cursor == model.FirstPage {
		return DirectionInitial
	}
	return DirectionAppend
}

// resync restarts the list if the filter moved since it was built.
func (e *Engine) resync(ctx context.Context) (bool, error) {
	req, ok := e.reset(e.filters.Current(), false)
	if !ok {
		return false, nil
	}
	return true, e.load(ctx, req)
}

// reset clears the list for snap and marks page 1 as loading. Unless force
// is set, a list already built for snap's generation is left alone and ok
// is false.
func (e *Engine) reset(snap filter.Snapshot, force bool) (req request, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !force && e.generation == snap.Generation {
		return request{}, false
	}

	e.epoch++
	e.items = nil
	e.seen = make(map[int]struct{})
	e.next = model.FirstPage
	e.generation = snap.Generation
	e.criteria = snap.Criteria
	e.initialState = model.Idle()
	e.appendState = model.Idle()

	e.logger.Info().
		Str("status", snap.Status).
		Str("gender", snap.Gender).
		Uint64("generation", snap.Generation).
		Msg("Restarting character list")

	return e.beginLocked(model.FirstPage), true
}

func (e *Engine) stateLocked(cursor int) model.LoadState {
	if direction(cursor) == DirectionInitial {
		return e.initialState
	}
	return e.appendState
}

func (e *Engine) setStateLocked(cursor int, state model.LoadState) {
	if direction(cursor) == DirectionInitial {
		e.initialState = state
	} else {
		e.appendState = state
	}
}

// beginLocked marks cursor as loading and returns the request for it.
func (e *Engine) beginLocked(cursor int) request {
	e.setStateLocked(cursor, model.Loading())
	e.publishLocked()
	return request{cursor: cursor, epoch: e.epoch, generation: e.generation, criteria: e.criteria}
}

// load fetches req's page, sharing the call with concurrent identical
// requests, and applies the outcome if req is still current. A result
// requested under a filter generation the store has since left is
// discarded on arrival.
func (e *Engine) load(ctx context.Context, req request) error {
	v, err, shared := e.group.Do(req.key(), func() (interface{}, error) {
		return e.fetch(ctx, req.cursor, req.criteria)
	})
	if shared {
		e.logger.Debug().Int("page", req.cursor).Msg("Coalesced page request")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if req.epoch != e.epoch || req.generation != e.generation || req.generation != e.filters.Current().Generation {
		metrics.StaleResults.WithLabelValues(metrics.ComponentPagination).Inc()
		e.logger.Warn().
			Int("page", req.cursor).
			Uint64("generation", req.generation).
			Msg("Discarding stale page")
		return ErrSuperseded
	}

	dir := direction(req.cursor)
	if err != nil {
		if e.next == req.cursor {
			e.setStateLocked(req.cursor, model.Failed(err))
			pageFailures.WithLabelValues(dir).Inc()
			e.publishLocked()
		}
		e.logger.Warn().Err(err).Int("page", req.cursor).Str("direction", dir).Msg("Page load failed")
		return err
	}

	if e.next != req.cursor {
		// Applied by a caller sharing the same request.
		return nil
	}

	page := v.(model.Page)
	added := 0
	for _, c := range page.Characters {
		if _, dup := e.seen[c.ID]; dup {
			continue
		}
		e.seen[c.ID] = struct{}{}
		e.items = append(e.items, c)
		added++
	}
	e.next = page.Next
	e.setStateLocked(req.cursor, model.Loaded())
	pagesLoaded.WithLabelValues(dir).Inc()
	e.publishLocked()

	e.logger.Info().
		Int("page", req.cursor).
		Int("added", added).
		Int("total", len(e.items)).
		Bool("end", page.Next == model.NoCursor).
		Msg("Page loaded")

	return nil
}

// fetch performs one remote call under the configured timeout.
func (e *Engine) fetch(ctx context.Context, cursor int, criteria filter.Criteria) (model.Page, error) {
	ctx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	page, err := e.source.FetchCharacters(ctx, e.config.PageSize, cursor, criteria.Status, criteria.Gender)
	if err != nil {
		return model.Page{}, client.Classify(err)
	}
	page.Next = model.NextCursor(cursor, len(page.Characters))
	return page, nil
}

func (e *Engine) snapshotLocked() Snapshot {
	items := make([]model.Character, len(e.items))
	copy(items, e.items)
	return Snapshot{
		Items:      items,
		Initial:    e.initialState,
		Append:     e.appendState,
		NextCursor: e.next,
		EndReached: e.next == model.NoCursor,
		Filter:     e.criteria,
		Generation: e.generation,
	}
}

// publishLocked delivers the current snapshot, replacing one not yet read.
func (e *Engine) publishLocked() {
	if len(e.subs) == 0 {
		return
	}
	snap := e.snapshotLocked()
	for _, ch := range e.subs {
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}
