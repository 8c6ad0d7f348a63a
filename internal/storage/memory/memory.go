// Package memory is an in-process implementation of the entry store,
// used by tests and by the memory data backend.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"dindin/internal/core"
	"dindin/internal/series"
)

type state struct {
	entries      map[string]core.Entry
	cards        map[string]core.Card
	profiles     map[string]core.Profile
	latestCutoff *int
}

func (s state) clone() state {
	c := state{
		entries:  make(map[string]core.Entry, len(s.entries)),
		cards:    make(map[string]core.Card, len(s.cards)),
		profiles: make(map[string]core.Profile, len(s.profiles)),
	}
	for k, v := range s.entries {
		c.entries[k] = v
	}
	for k, v := range s.cards {
		c.cards[k] = v
	}
	for k, v := range s.profiles {
		c.profiles[k] = v
	}
	if s.latestCutoff != nil {
		day := *s.latestCutoff
		c.latestCutoff = &day
	}
	return c
}

// Store keeps entries, cards and profiles in maps. Writes inside Tx go to
// a private copy that replaces the committed state only when fn succeeds.
type Store struct {
	mu   sync.Mutex
	data state
	inTx bool
}

func New() *Store {
	return &Store{data: state{
		entries:  map[string]core.Entry{},
		cards:    map[string]core.Card{},
		profiles: map[string]core.Profile{},
	}}
}

func (s *Store) SelectEntries(_ context.Context, filter core.EntryFilter) ([]core.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []core.Entry
	for _, e := range s.data.entries {
		if filter.Matches(e) {
			out = append(out, e)
		}
	}
	core.SortByOccurrence(out)
	return out, nil
}

// ListEntries returns every stored entry ordered by occurrence date.
func (s *Store) ListEntries(ctx context.Context) ([]core.Entry, error) {
	return s.SelectEntries(ctx, core.EntryFilter{})
}

// InsertEntries stores entries, assigning IDs to those without one.
func (s *Store) InsertEntries(_ context.Context, entries []core.Entry) ([]core.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]core.Entry, len(entries))
	for i, e := range entries {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		if err := e.Validate(); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		if _, exists := s.data.entries[e.ID]; exists {
			return nil, fmt.Errorf("%w: entry %s already exists", core.ErrInvalidInput, e.ID)
		}
		out[i] = e
	}
	for _, e := range out {
		s.data.entries[e.ID] = e
	}
	return out, nil
}

// UpdateEntries applies patch to every id. Nothing is written when one of
// them is missing.
func (s *Store) UpdateEntries(_ context.Context, ids []string, patch core.EntryPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkIDs(ids); err != nil {
		return err
	}
	for _, id := range ids {
		s.data.entries[id] = patch.Apply(s.data.entries[id])
	}
	return nil
}

// DeleteEntries removes every id. Nothing is removed when one of them is
// missing.
func (s *Store) DeleteEntries(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkIDs(ids); err != nil {
		return err
	}
	for _, id := range ids {
		delete(s.data.entries, id)
	}
	return nil
}

func (s *Store) checkIDs(ids []string) error {
	for _, id := range ids {
		if _, ok := s.data.entries[id]; !ok {
			return fmt.Errorf("entry %s: %w", id, core.ErrNotFound)
		}
	}
	return nil
}

// Tx runs fn against a copy of the store and commits the copy when fn
// returns nil. The store is locked for the duration of fn.
func (s *Store) Tx(ctx context.Context, fn func(series.Store) error) error {
	if s.inTx {
		return fn(s)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	child := &Store{data: s.data.clone(), inTx: true}
	if err := fn(child); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.data = child.data
	return nil
}

// Close is a no-op; it lets Store stand in for the SQLite repository.
func (s *Store) Close() error {
	return nil
}
