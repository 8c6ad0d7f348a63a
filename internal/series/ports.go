// Package series generates recurring entries and applies scoped edits and
// deletions to the implicit groups they form.
package series

import (
	"context"

	"github.com/google/uuid"

	"dindin/internal/core"
)

// Ports consumed by the engine.
type (
	// Store is the persistence collaborator. Tx runs fn against a store
	// bound to one unit of work: either every write inside it is applied
	// or none is.
	Store interface {
		SelectEntries(ctx context.Context, filter core.EntryFilter) ([]core.Entry, error)
		InsertEntries(ctx context.Context, entries []core.Entry) ([]core.Entry, error)
		UpdateEntries(ctx context.Context, ids []string, patch core.EntryPatch) error
		DeleteEntries(ctx context.Context, ids []string) error
		Tx(ctx context.Context, fn func(Store) error) error
	}

	// IDGenerator supplies fresh series identifiers.
	IDGenerator interface {
		NewID() string
	}

	// CutoffResolver looks up the cutoff days that apply to an entry.
	CutoffResolver interface {
		// ClosingDay returns the card's closing day; ok is false when the
		// card is unknown or has none.
		ClosingDay(ctx context.Context, cardID string) (day int, ok bool, err error)
		// FinancialStartDay returns the owner's financial start day.
		FinancialStartDay(ctx context.Context, ownerID string) (int, error)
	}
)

// UUIDGenerator issues random (version 4) UUIDs.
type UUIDGenerator struct{}

func (UUIDGenerator) NewID() string {
	return uuid.NewString()
}
