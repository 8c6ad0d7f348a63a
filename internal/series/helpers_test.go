package series_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"dindin/internal/core"
	"dindin/internal/series"
	"dindin/internal/storage/memory"
)

// seqIDs hands out predictable series IDs.
type seqIDs struct {
	prefix string
	n      int
}

func (s *seqIDs) NewID() string {
	s.n++
	return fmt.Sprintf("%s-%d", s.prefix, s.n)
}

type fakeCutoffs struct {
	closing map[string]int
	start   map[string]int
}

func (f fakeCutoffs) ClosingDay(_ context.Context, cardID string) (int, bool, error) {
	day, ok := f.closing[cardID]
	return day, ok, nil
}

func (f fakeCutoffs) FinancialStartDay(_ context.Context, ownerID string) (int, error) {
	if day, ok := f.start[ownerID]; ok {
		return day, nil
	}
	return 1, nil
}

var errWrite = errors.New("disk full")

// flakyStore fails the failOn-th write inside a transaction.
type flakyStore struct {
	series.Store
	failOn int
	writes int
}

func (f *flakyStore) UpdateEntries(ctx context.Context, ids []string, patch core.EntryPatch) error {
	f.writes++
	if f.writes == f.failOn {
		return errWrite
	}
	return f.Store.UpdateEntries(ctx, ids, patch)
}

func (f *flakyStore) DeleteEntries(ctx context.Context, ids []string) error {
	f.writes++
	if f.writes == f.failOn {
		return errWrite
	}
	return f.Store.DeleteEntries(ctx, ids)
}

func (f *flakyStore) Tx(ctx context.Context, fn func(series.Store) error) error {
	return f.Store.Tx(ctx, func(tx series.Store) error {
		return fn(&flakyStore{Store: tx, failOn: f.failOn})
	})
}

func date(t *testing.T, s string) core.Date {
	t.Helper()
	d, err := core.ParseDate(s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return d
}

func newEntry(t *testing.T, id, occurrence string, seriesID string) core.Entry {
	t.Helper()
	e := core.Entry{
		ID:             id,
		Description:    "gym",
		Amount:         decimal.NewFromInt(100),
		OccurrenceDate: date(t, occurrence),
		Kind:           core.KindExpense,
		PayerID:        "me",
	}
	if seriesID != "" {
		e.SeriesID = core.StringPtr(seriesID)
	}
	return e
}

// seedMonthly stores one entry per month of 2026 from January, ids
// prefix1..prefixN, all in series sid.
func seedMonthly(t *testing.T, store *memory.Store, prefix, sid string, months int) {
	t.Helper()
	var entries []core.Entry
	for i := 1; i <= months; i++ {
		entries = append(entries, newEntry(t, fmt.Sprintf("%s%d", prefix, i), fmt.Sprintf("2026-%02d-01", i), sid))
	}
	if _, err := store.InsertEntries(context.Background(), entries); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func byID(t *testing.T, store *memory.Store) map[string]core.Entry {
	t.Helper()
	all, err := store.ListEntries(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	out := make(map[string]core.Entry, len(all))
	for _, e := range all {
		out[e.ID] = e
	}
	return out
}

func seriesOf(e core.Entry) string {
	if e.SeriesID == nil {
		return "<nil>"
	}
	return *e.SeriesID
}

func dateOf(d *core.Date) string {
	if d == nil {
		return "-"
	}
	return d.String()
}

// snapshot renders the store as comparable text.
func snapshot(t *testing.T, store *memory.Store) string {
	t.Helper()
	all, err := store.ListEntries(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var b strings.Builder
	for _, e := range all {
		fmt.Fprintf(&b, "%s|%s|%s|%s|%s|%s|%s\n", e.ID, e.Description, e.Amount.StringFixed(2),
			e.OccurrenceDate, seriesOf(e), dateOf(e.InvoiceDate), dateOf(e.CompetenceDate))
	}
	return b.String()
}

// txTracker marks when its store has a transaction open.
type txTracker struct {
	series.Store
	open bool
	// beforeTx runs once, before the first transaction opens.
	beforeTx func()
}

func (s *txTracker) Tx(ctx context.Context, fn func(series.Store) error) error {
	if s.beforeTx != nil {
		s.beforeTx()
		s.beforeTx = nil
	}
	return s.Store.Tx(ctx, func(tx series.Store) error {
		s.open = true
		defer func() { s.open = false }()
		return fn(tx)
	})
}

// outsideTxCutoffs fails any lookup made while tracker has a transaction
// open, and counts closing day lookups per card.
type outsideTxCutoffs struct {
	fakeCutoffs
	tracker *txTracker
	calls   map[string]int
}

func (c *outsideTxCutoffs) ClosingDay(ctx context.Context, cardID string) (int, bool, error) {
	if c.tracker.open {
		return 0, false, fmt.Errorf("closing day of %s looked up inside a transaction", cardID)
	}
	c.calls[cardID]++
	return c.fakeCutoffs.ClosingDay(ctx, cardID)
}

func (c *outsideTxCutoffs) FinancialStartDay(ctx context.Context, ownerID string) (int, error) {
	if c.tracker.open {
		return 0, fmt.Errorf("start day of %s looked up inside a transaction", ownerID)
	}
	return c.fakeCutoffs.FinancialStartDay(ctx, ownerID)
}
