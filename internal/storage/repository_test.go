package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"dindin/internal/core"
	"dindin/internal/period"
	"dindin/internal/series"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "data", "dindin.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func testEntry(id, occurrence, seriesID string) core.Entry {
	d, err := core.ParseDate(occurrence)
	if err != nil {
		panic(err)
	}
	e := core.Entry{
		ID:             id,
		Description:    "internet",
		Amount:         decimal.RequireFromString("99.90"),
		OccurrenceDate: d,
		Kind:           core.KindBill,
		PayerID:        "me",
		Category:       "home",
	}
	if seriesID != "" {
		e.SeriesID = core.StringPtr(seriesID)
	}
	return e
}

func TestMigrationsApplied(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dindin.db")
	repo, err := NewSQLiteRepository(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	repo.Close()

	// Running them again is a no-op.
	if err := RunMigrations(path); err != nil {
		t.Fatalf("rerun migrations: %v", err)
	}
	version, dirty, err := SchemaVersion(path)
	if err != nil {
		t.Fatalf("schema version: %v", err)
	}
	if version != 1 || dirty {
		t.Fatalf("version = %d dirty = %v", version, dirty)
	}
}

func TestEntryRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	e := testEntry("", "2026-01-31", "S")
	e.CardID = core.StringPtr("nubank")
	e.Kind = core.KindExpense
	e.IsPaid = true
	closing := 10
	e = period.Stamp(e, period.Cutoffs{ClosingDay: &closing})

	saved, err := repo.InsertEntries(ctx, []core.Entry{e})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if saved[0].ID == "" {
		t.Fatalf("expected generated id")
	}

	got, err := repo.SelectEntries(ctx, core.EntryFilter{IDs: []string{saved[0].ID}})
	if err != nil || len(got) != 1 {
		t.Fatalf("select: %v, %d rows", err, len(got))
	}
	r := got[0]
	if r.Description != e.Description || !r.Amount.Equal(e.Amount) || !r.OccurrenceDate.Equal(e.OccurrenceDate) {
		t.Errorf("fields differ: %+v", r)
	}
	if r.InvoiceDate == nil || r.InvoiceDate.String() != "2026-02-01" || r.CompetenceDate != nil {
		t.Errorf("period dates = %v / %v", r.InvoiceDate, r.CompetenceDate)
	}
	if r.SeriesID == nil || *r.SeriesID != "S" || r.CardID == nil || *r.CardID != "nubank" {
		t.Errorf("references = %v / %v", r.SeriesID, r.CardID)
	}
	if !r.IsPaid || r.Kind != core.KindExpense || r.PayerID != "me" || r.Category != "home" {
		t.Errorf("flags = %+v", r)
	}
}

func TestSelectEntriesFilter(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	if _, err := repo.InsertEntries(ctx, []core.Entry{
		testEntry("a", "2026-01-05", "S"),
		testEntry("b", "2026-02-05", "S"),
		testEntry("c", "2026-03-05", "S"),
		testEntry("d", "2026-02-20", ""),
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	from := core.NewDate(2026, 2, 5)
	tests := []struct {
		name   string
		filter core.EntryFilter
		want   []string
	}{
		{"all", core.EntryFilter{}, []string{"a", "b", "d", "c"}},
		{"series", core.EntryFilter{SeriesID: "S"}, []string{"a", "b", "c"}},
		{"series from", core.EntryFilter{SeriesID: "S", OccurrenceFrom: &from}, []string{"b", "c"}},
		{"ids", core.EntryFilter{IDs: []string{"c", "d"}}, []string{"d", "c"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.SelectEntries(ctx, tt.filter)
			if err != nil {
				t.Fatalf("select: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d rows, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i].ID != tt.want[i] {
					t.Errorf("row %d = %s, want %s", i, got[i].ID, tt.want[i])
				}
			}
		})
	}
}

func TestUpdateEntriesPatch(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	e := testEntry("a", "2026-01-05", "S")
	e.CardID = core.StringPtr("nubank")
	if _, err := repo.InsertEntries(ctx, []core.Entry{e}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	amount := decimal.RequireFromString("120.5")
	paid := true
	competence := core.NewDate(2026, 1, 1)
	err := repo.UpdateEntries(ctx, []string{"a", "a"}, core.EntryPatch{
		Amount:         &amount,
		IsPaid:         &paid,
		CardID:         core.Clear[string](),
		SeriesID:       core.SetTo("T"),
		CompetenceDate: core.SetTo(competence),
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	got, _ := repo.SelectEntries(ctx, core.EntryFilter{IDs: []string{"a"}})
	r := got[0]
	if r.Amount.StringFixed(2) != "120.50" || !r.IsPaid || r.CardID != nil {
		t.Errorf("patched fields = %+v", r)
	}
	if r.SeriesID == nil || *r.SeriesID != "T" || r.CompetenceDate == nil || !r.CompetenceDate.Equal(competence) {
		t.Errorf("patched references = %v / %v", r.SeriesID, r.CompetenceDate)
	}
	if r.Description != "internet" {
		t.Errorf("untouched description changed to %q", r.Description)
	}
}

func TestMissingIDsRollBack(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	if _, err := repo.InsertEntries(ctx, []core.Entry{testEntry("a", "2026-01-05", "")}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	desc := "changed"
	if err := repo.UpdateEntries(ctx, []string{"a", "zz"}, core.EntryPatch{Description: &desc}); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("update error = %v, want ErrNotFound", err)
	}
	if err := repo.DeleteEntries(ctx, []string{"a", "zz"}); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("delete error = %v, want ErrNotFound", err)
	}

	got, _ := repo.ListEntries(ctx)
	if len(got) != 1 || got[0].Description != "internet" {
		t.Fatalf("failed calls changed rows: %+v", got)
	}
}

func TestTxRollback(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	if _, err := repo.InsertEntries(ctx, []core.Entry{testEntry("a", "2026-01-05", "")}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	boom := errors.New("boom")
	err := repo.Tx(ctx, func(tx series.Store) error {
		if _, err := tx.InsertEntries(ctx, []core.Entry{testEntry("b", "2026-02-05", "")}); err != nil {
			return err
		}
		if err := tx.DeleteEntries(ctx, []string{"a"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("tx error = %v", err)
	}

	got, _ := repo.ListEntries(ctx)
	if len(got) != 1 || got[0].ID != "a" {
		t.Fatalf("rolled back tx left %+v", got)
	}
}

func TestEngineForkOnSQLite(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	if _, err := repo.InsertEntries(ctx, []core.Entry{
		testEntry("e1", "2026-01-01", "S"),
		testEntry("e2", "2026-02-01", "S"),
		testEntry("e3", "2026-03-01", "S"),
		testEntry("e4", "2026-04-01", "S"),
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	engine := series.NewEngine(repo, nil, nil)
	amount := decimal.NewFromInt(110)
	res, err := engine.Edit(ctx, "e3", core.StringPtr("S"), core.EntryPatch{Amount: &amount}, series.ScopeFuture)
	if err != nil {
		t.Fatalf("edit: %v", err)
	}

	got, _ := repo.ListEntries(ctx)
	for _, e := range got {
		forked := e.ID == "e3" || e.ID == "e4"
		wantSeries := "S"
		if forked {
			wantSeries = *res.SeriesID
		}
		if e.SeriesID == nil || *e.SeriesID != wantSeries {
			t.Errorf("%s series = %v, want %s", e.ID, e.SeriesID, wantSeries)
		}
		if forked != e.Amount.Equal(amount) {
			t.Errorf("%s amount = %s", e.ID, e.Amount)
		}
		if e.CompetenceDate == nil {
			t.Errorf("%s has no competence date", e.ID)
		}
	}

	if _, err := engine.Delete(ctx, "e1", core.StringPtr("S"), series.ScopeAll); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if left, _ := repo.ListEntries(ctx); len(left) != 2 {
		t.Fatalf("left %d entries, want 2", len(left))
	}
}

func TestCardsProfilesSettings(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	if _, err := repo.Card(ctx, "nubank"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("missing card error = %v", err)
	}
	closing := 8
	if err := repo.UpsertCard(ctx, core.Card{ID: "nubank", Name: "Nubank", ClosingDay: &closing}); err != nil {
		t.Fatalf("upsert card: %v", err)
	}
	closing = 22
	if err := repo.UpsertCard(ctx, core.Card{ID: "nubank", Name: "Nubank", ClosingDay: &closing}); err != nil {
		t.Fatalf("update card: %v", err)
	}
	if err := repo.UpsertCard(ctx, core.Card{ID: "debit", Name: "Debit"}); err != nil {
		t.Fatalf("upsert card: %v", err)
	}
	c, err := repo.Card(ctx, "nubank")
	if err != nil || c.ClosingDay == nil || *c.ClosingDay != 22 {
		t.Fatalf("card = %+v, err = %v", c, err)
	}
	days, err := repo.ClosingDays(ctx)
	if err != nil || len(days) != 2 || days[0] != 0 || days[1] != 22 {
		t.Fatalf("closing days = %v, err = %v", days, err)
	}

	if _, err := repo.Profile(ctx, "me"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("missing profile error = %v", err)
	}
	if err := repo.UpsertProfile(ctx, core.Profile{ID: "me", FinancialStartDay: 5}); err != nil {
		t.Fatalf("upsert profile: %v", err)
	}
	if p, err := repo.Profile(ctx, "me"); err != nil || p.FinancialStartDay != 5 {
		t.Fatalf("profile = %+v, err = %v", p, err)
	}

	if _, ok, err := repo.LoadLatestCutoff(ctx); ok || err != nil {
		t.Fatalf("unexpected latest cutoff: ok=%v err=%v", ok, err)
	}
	if err := repo.SaveLatestCutoff(ctx, 22); err != nil {
		t.Fatalf("save cutoff: %v", err)
	}
	if day, ok, err := repo.LoadLatestCutoff(ctx); !ok || day != 22 || err != nil {
		t.Fatalf("latest cutoff = %d %v %v", day, ok, err)
	}

	cache := period.NewCutoffCache(repo)
	p, err := cache.DashboardPeriod(ctx, core.NewDate(2026, 12, 25))
	if err != nil || p.String() != "2027-01-01" {
		t.Fatalf("dashboard period = %s, err = %v", p, err)
	}
}
