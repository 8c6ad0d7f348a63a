package period

import (
	"context"
	"fmt"
	"sync"

	"dindin/internal/core"
)

// LatestCutoff is the most recently seen card closing day, used to pick
// the default dashboard month before authoritative card data is loaded.
type LatestCutoff struct {
	Day   int
	Known bool
}

// LatestFromCards derives the latest cutoff from the closing days of every
// card the owner has. Cards without a closing day count as day 1. With no
// cards at all nothing is known.
func LatestFromCards(closingDays []int) LatestCutoff {
	if len(closingDays) == 0 {
		return LatestCutoff{}
	}
	latest := 1
	for _, day := range closingDays {
		if day < 1 {
			day = 1
		}
		if day > latest {
			latest = day
		}
	}
	return LatestCutoff{Day: latest, Known: true}
}

// CurrentDashboardPeriod returns the bucket today belongs to. Without a
// known closing day this is today's own month.
func CurrentDashboardPeriod(today core.Date, latest LatestCutoff) core.Date {
	if !latest.Known {
		return FirstOfMonth(today)
	}
	return Resolve(today, latest.Day)
}

// CutoffStore persists the last known closing day between runs.
type CutoffStore interface {
	LoadLatestCutoff(ctx context.Context) (day int, ok bool, err error)
	SaveLatestCutoff(ctx context.Context, day int) error
}

// CutoffCache holds the last known closing day in memory, backed by a
// CutoffStore. Load reads the persisted value once; Refresh replaces it
// when card data arrives.
type CutoffCache struct {
	store CutoffStore

	mu     sync.RWMutex
	latest LatestCutoff
	loaded bool
}

func NewCutoffCache(store CutoffStore) *CutoffCache {
	return &CutoffCache{store: store}
}

// Load returns the cached cutoff, reading the store on first use.
func (c *CutoffCache) Load(ctx context.Context) (LatestCutoff, error) {
	c.mu.RLock()
	if c.loaded {
		latest := c.latest
		c.mu.RUnlock()
		return latest, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded {
		return c.latest, nil
	}
	if c.store != nil {
		day, ok, err := c.store.LoadLatestCutoff(ctx)
		if err != nil {
			return LatestCutoff{}, fmt.Errorf("load latest cutoff: %w", err)
		}
		if ok {
			c.latest = LatestCutoff{Day: day, Known: day > 0}
		}
	}
	c.loaded = true
	return c.latest, nil
}

// Refresh recomputes the cutoff from authoritative closing days and
// persists it. An empty slice keeps the previous value.
func (c *CutoffCache) Refresh(ctx context.Context, closingDays []int) (LatestCutoff, error) {
	latest := LatestFromCards(closingDays)
	if !latest.Known {
		return c.Load(ctx)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store != nil {
		if err := c.store.SaveLatestCutoff(ctx, latest.Day); err != nil {
			return c.latest, fmt.Errorf("save latest cutoff: %w", err)
		}
	}
	c.latest = latest
	c.loaded = true
	return latest, nil
}

// DashboardPeriod is CurrentDashboardPeriod with the cached cutoff.
func (c *CutoffCache) DashboardPeriod(ctx context.Context, today core.Date) (core.Date, error) {
	latest, err := c.Load(ctx)
	if err != nil {
		return core.Date{}, err
	}
	return CurrentDashboardPeriod(today, latest), nil
}
