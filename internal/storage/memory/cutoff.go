package memory

import (
	"context"
	"fmt"
	"sort"

	"dindin/internal/core"
)

func (s *Store) UpsertCard(_ context.Context, c core.Card) error {
	if err := c.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.cards[c.ID] = c
	return nil
}

func (s *Store) UpsertProfile(_ context.Context, p core.Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.profiles[p.ID] = p
	return nil
}

func (s *Store) Card(_ context.Context, id string) (core.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.data.cards[id]
	if !ok {
		return core.Card{}, fmt.Errorf("card %s: %w", id, core.ErrNotFound)
	}
	return c, nil
}

func (s *Store) Profile(_ context.Context, id string) (core.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.data.profiles[id]
	if !ok {
		return core.Profile{}, fmt.Errorf("profile %s: %w", id, core.ErrNotFound)
	}
	return p, nil
}

// ClosingDays lists the closing day of every card, in ascending order.
// Cards without one report 0.
func (s *Store) ClosingDays(_ context.Context) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	days := make([]int, 0, len(s.data.cards))
	for _, c := range s.data.cards {
		day := 0
		if c.ClosingDay != nil {
			day = *c.ClosingDay
		}
		days = append(days, day)
	}
	sort.Ints(days)
	return days, nil
}

func (s *Store) LoadLatestCutoff(_ context.Context) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data.latestCutoff == nil {
		return 0, false, nil
	}
	return *s.data.latestCutoff, true, nil
}

func (s *Store) SaveLatestCutoff(_ context.Context, day int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.latestCutoff = &day
	return nil
}
