// Package filter holds the list filter and the character selected for the
// detail view. The UI layer is the only writer; the pagination engine and
// the episode loader read it and follow its change notifications.
package filter

import (
	"errors"
	"strings"
	"sync"

	"github.com/Sternrassler/ram-browser/pkg/model"
	"github.com/samber/mo"
)

// ErrNoSelection is returned by Selected before any character was selected.
var ErrNoSelection = errors.New("no character selected")

// Criteria are the two filter dimensions. Empty means no filter.
type Criteria struct {
	Status string `json:"status"`
	Gender string `json:"gender"`
}

// IsZero reports whether no filter is active.
func (c Criteria) IsZero() bool {
	return c.Status == "" && c.Gender == ""
}

// Snapshot is a consistent view of the filter and its generation.
type Snapshot struct {
	Criteria
	Generation uint64 `json:"generation"`
}

// ChangeKind tells subscribers what changed.
type ChangeKind int

const (
	ChangeFilter ChangeKind = iota + 1
	ChangeSelection
)

// Change is delivered to subscribers after every mutation.
type Change struct {
	Kind       ChangeKind
	Generation uint64
}

// Store is the filter state record. The generation is bumped on every
// filter change and fences results requested under an older filter.
type Store struct {
	mu         sync.RWMutex
	criteria   Criteria
	generation uint64
	selected   mo.Option[model.Character]
	subs       map[int]chan Change
	nextSub    int
}

// NewStore creates an empty store: no filter, no selection.
func NewStore() *Store {
	return &Store{
		selected: mo.None[model.Character](),
		subs:     make(map[int]chan Change),
	}
}

// Set replaces both filter dimensions at once. Values are trimmed and
// lowercased. Setting the criteria already in effect is not a change.
func (s *Store) Set(status, gender string) {
	next := Criteria{
		Status: Normalize(status),
		Gender: Normalize(gender),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if next == s.criteria {
		return
	}
	s.criteria = next
	s.generation++
	s.publishLocked(Change{Kind: ChangeFilter, Generation: s.generation})
}

// Clear removes both filters.
func (s *Store) Clear() {
	s.Set("", "")
}

// Current returns the filter in effect with its generation.
func (s *Store) Current() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{Criteria: s.criteria, Generation: s.generation}
}

// Select records the character chosen for the detail view.
func (s *Store) Select(c model.Character) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = mo.Some(c)
	s.publishLocked(Change{Kind: ChangeSelection, Generation: s.generation})
}

// Selected returns the selected character or ErrNoSelection.
func (s *Store) Selected() (model.Character, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.selected.Get()
	if !ok {
		return model.Character{}, ErrNoSelection
	}
	return c, nil
}

// Selection returns the selected character as an option.
func (s *Store) Selection() mo.Option[model.Character] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selected
}

// Subscribe returns a channel receiving changes and a func to stop.
// A slow reader never blocks writers; it sees the newest change of each kind.
func (s *Store) Subscribe() (<-chan Change, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	ch := make(chan Change, 2)
	s.subs[id] = ch

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(ch)
		}
	}
}

// publishLocked delivers c without blocking. When a subscriber's buffer is
// full, pending changes of the same kind are superseded by c.
func (s *Store) publishLocked(c Change) {
	for _, ch := range s.subs {
		select {
		case ch <- c:
			continue
		default:
		}

		var other mo.Option[Change]
	drain:
		for {
			select {
			case p := <-ch:
				if p.Kind != c.Kind {
					other = mo.Some(p)
				}
			default:
				break drain
			}
		}
		if p, ok := other.Get(); ok {
			ch <- p
		}
		ch <- c
	}
}

// Normalize trims and lowercases a filter value.
func Normalize(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}
