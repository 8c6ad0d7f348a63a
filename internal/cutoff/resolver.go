// Package cutoff looks up card closing days and profile start days for
// period stamping, caching the answers between calls.
package cutoff

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"dindin/internal/cache"
	"dindin/internal/core"
)

// DefaultStartDay applies to owners without a stored profile.
const DefaultStartDay = 1

// Source is the authoritative store of cards and profiles.
type Source interface {
	Card(ctx context.Context, id string) (core.Card, error)
	Profile(ctx context.Context, id string) (core.Profile, error)
}

type lookup struct {
	day   int
	known bool
}

// Resolver answers cutoff lookups from a Source through an LRU cache.
// Concurrent misses for the same key share one Source call.
type Resolver struct {
	source Source
	cache  *cache.LRUCache[lookup]
	group  singleflight.Group
}

func NewResolver(source Source, size int, ttl time.Duration) *Resolver {
	return &Resolver{
		source: source,
		cache:  cache.NewLRUCache[lookup](size, ttl),
	}
}

// Cleaner exposes the cache so a cache.Manager can sweep it.
func (r *Resolver) Cleaner() cache.Cleaner {
	return r.cache
}

func (r *Resolver) Stats() cache.Stats {
	return r.cache.Stats()
}

// ClosingDay returns the card's closing day. Unknown cards and cards
// without a closing day report ok=false.
func (r *Resolver) ClosingDay(ctx context.Context, cardID string) (int, bool, error) {
	l, err := r.get(ctx, "card:"+cardID, func() (lookup, error) {
		c, err := r.source.Card(ctx, cardID)
		if errors.Is(err, core.ErrNotFound) {
			return lookup{}, nil
		}
		if err != nil {
			return lookup{}, err
		}
		if c.ClosingDay == nil || *c.ClosingDay <= 0 {
			return lookup{}, nil
		}
		return lookup{day: *c.ClosingDay, known: true}, nil
	})
	if err != nil {
		return 0, false, fmt.Errorf("closing day of card %s: %w", cardID, err)
	}
	return l.day, l.known, nil
}

// FinancialStartDay returns the owner's start day, DefaultStartDay when the
// owner has no profile.
func (r *Resolver) FinancialStartDay(ctx context.Context, ownerID string) (int, error) {
	l, err := r.get(ctx, "profile:"+ownerID, func() (lookup, error) {
		p, err := r.source.Profile(ctx, ownerID)
		if errors.Is(err, core.ErrNotFound) {
			return lookup{day: DefaultStartDay}, nil
		}
		if err != nil {
			return lookup{}, err
		}
		return lookup{day: p.FinancialStartDay, known: true}, nil
	})
	if err != nil {
		return 0, fmt.Errorf("financial start day of %s: %w", ownerID, err)
	}
	return l.day, nil
}

// InvalidateCard drops the cached closing day of cardID.
func (r *Resolver) InvalidateCard(cardID string) {
	r.cache.Delete("card:" + cardID)
}

// InvalidateProfile drops the cached start day of ownerID.
func (r *Resolver) InvalidateProfile(ownerID string) {
	r.cache.Delete("profile:" + ownerID)
}

func (r *Resolver) get(ctx context.Context, key string, load func() (lookup, error)) (lookup, error) {
	if l, ok := r.cache.Get(key); ok {
		return l, nil
	}

	v, err, _ := r.group.Do(key, func() (interface{}, error) {
		l, err := load()
		if err != nil {
			return nil, err
		}
		r.cache.Set(key, l)
		return l, nil
	})
	if err != nil {
		return lookup{}, err
	}
	if err := ctx.Err(); err != nil {
		return lookup{}, err
	}
	return v.(lookup), nil
}
