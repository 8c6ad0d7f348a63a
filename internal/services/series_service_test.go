package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"dindin/internal/amqp"
	"dindin/internal/core"
	"dindin/internal/series"
	"dindin/internal/storage/memory"
)

type fakePublisher struct {
	msgs     []*amqp.EntriesChangedMessage
	err      error
	closeErr error
}

func (p *fakePublisher) PublishEntriesChanged(_ context.Context, msg *amqp.EntriesChangedMessage) error {
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, msg)
	return nil
}

func (p *fakePublisher) Close() error {
	return p.closeErr
}

type fixedIDs struct{ n int }

func (f *fixedIDs) NewID() string {
	f.n++
	return "series-" + string(rune('0'+f.n))
}

type closingRepo struct {
	*memory.Store
	err error
}

func (r closingRepo) Close() error { return r.err }

func newService(t *testing.T, pub Publisher) (*SeriesService, *memory.Store) {
	t.Helper()
	store := memory.New()
	now := time.Date(2026, 3, 20, 9, 0, 0, 0, time.UTC)
	svc := NewSeriesService(store, nil, pub,
		WithIDGenerator(&fixedIDs{}),
		WithClock(func() time.Time { return now }))
	return svc, store
}

func template(t *testing.T) series.Template {
	t.Helper()
	start, err := core.ParseDate("2026-01-15")
	if err != nil {
		t.Fatal(err)
	}
	return series.Template{
		Description: "phone",
		Amount:      decimal.NewFromInt(50),
		StartDate:   start,
		Kind:        core.KindExpense,
		CardID:      core.StringPtr("nubank"),
		PayerID:     "me",
	}
}

func TestCreateSeriesStampsAndPublishes(t *testing.T) {
	ctx := context.Background()
	pub := &fakePublisher{}
	svc, _ := newService(t, pub)

	ten := 10
	if err := svc.SaveCard(ctx, core.Card{ID: "nubank", ClosingDay: &ten}); err != nil {
		t.Fatalf("save card: %v", err)
	}

	saved, err := svc.CreateSeries(ctx, template(t), 3)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(saved) != 3 {
		t.Fatalf("saved %d entries", len(saved))
	}
	wantInvoice := []string{"2026-02-01", "2026-03-01", "2026-04-01"}
	for i, e := range saved {
		if e.ID == "" || e.SeriesID == nil || *e.SeriesID != "series-1" {
			t.Errorf("entry %d = %+v", i, e)
		}
		if e.InvoiceDate == nil || e.InvoiceDate.String() != wantInvoice[i] {
			t.Errorf("entry %d invoice = %v, want %s", i, e.InvoiceDate, wantInvoice[i])
		}
	}

	if len(pub.msgs) != 1 {
		t.Fatalf("published %d messages", len(pub.msgs))
	}
	msg := pub.msgs[0]
	if msg.Op != amqp.OpUpsert || len(msg.IDs) != 3 || msg.SeriesID != "series-1" {
		t.Fatalf("message = %+v", msg)
	}

	list, err := svc.ListSeries(ctx)
	if err != nil || len(list) != 1 || len(list[0].Entries) != 3 {
		t.Fatalf("series = %+v, err = %v", list, err)
	}
}

func TestEditAndDeletePublish(t *testing.T) {
	ctx := context.Background()
	pub := &fakePublisher{}
	svc, store := newService(t, pub)

	saved, err := svc.CreateSeries(ctx, template(t), 4)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	sid := saved[0].SeriesID

	desc := "phone plan"
	res, err := svc.EditEntry(ctx, saved[2].ID, sid, core.EntryPatch{Description: &desc}, series.ScopeFuture)
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if res.SeriesID == nil || *res.SeriesID != "series-2" {
		t.Fatalf("fork series = %v", res.SeriesID)
	}
	if last := pub.msgs[len(pub.msgs)-1]; last.Scope != "future" || last.SeriesID != "series-2" || len(last.IDs) != 2 {
		t.Fatalf("edit message = %+v", last)
	}

	del, err := svc.DeleteEntry(ctx, saved[0].ID, sid, series.ScopeAll)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(del.Deleted) != 2 {
		t.Fatalf("deleted %v", del.Deleted)
	}
	if last := pub.msgs[len(pub.msgs)-1]; last.Op != amqp.OpDelete || len(last.IDs) != 2 {
		t.Fatalf("delete message = %+v", last)
	}

	left, _ := store.ListEntries(ctx)
	if len(left) != 2 {
		t.Fatalf("left %d entries", len(left))
	}
}

func TestDeleteSelection(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t, nil)

	a, err := svc.CreateSeries(ctx, template(t), 3)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	b, err := svc.CreateSeries(ctx, template(t), 1)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	res, err := svc.DeleteSelection(ctx, []string{a[1].ID, b[0].ID}, series.ScopeAll)
	if err != nil {
		t.Fatalf("delete selection: %v", err)
	}
	if len(res.Deleted) != 4 {
		t.Fatalf("deleted %v", res.Deleted)
	}
	if left, _ := store.ListEntries(ctx); len(left) != 0 {
		t.Fatalf("left %d entries", len(left))
	}

	if _, err := svc.DeleteSelection(ctx, []string{"ghost"}, series.ScopeSingle); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}

	c, err := svc.CreateSeries(ctx, template(t), 1)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.DeleteSelection(ctx, []string{c[0].ID, "ghost"}, series.ScopeSingle); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
	if left, _ := store.ListEntries(ctx); len(left) != 1 {
		t.Fatalf("left %d entries after rejected selection, want 1", len(left))
	}
}

func TestPublishFailureDoesNotFailMutation(t *testing.T) {
	ctx := context.Background()
	pub := &fakePublisher{err: errors.New("broker down")}
	svc, store := newService(t, pub)

	if _, err := svc.CreateSeries(ctx, template(t), 2); err != nil {
		t.Fatalf("create: %v", err)
	}
	if left, _ := store.ListEntries(ctx); len(left) != 2 {
		t.Fatalf("stored %d entries", len(left))
	}
}

func TestDashboardPeriod(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, nil)

	got, err := svc.DashboardPeriod(ctx)
	if err != nil || got.String() != "2026-03-01" {
		t.Fatalf("without cards = %s, %v", got, err)
	}

	fifteen := 15
	if err := svc.SaveCard(ctx, core.Card{ID: "inter", ClosingDay: &fifteen}); err != nil {
		t.Fatalf("save card: %v", err)
	}
	got, err = svc.DashboardPeriod(ctx)
	if err != nil || got.String() != "2026-04-01" {
		t.Fatalf("with card closing 15 = %s, %v", got, err)
	}
}

func TestSaveCardInvalidatesCutoff(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, nil)

	twenty := 20
	if err := svc.SaveCard(ctx, core.Card{ID: "nubank", ClosingDay: &twenty}); err != nil {
		t.Fatalf("save card: %v", err)
	}
	first, _ := svc.CreateSeries(ctx, template(t), 1)
	if first[0].InvoiceDate.String() != "2026-01-01" {
		t.Fatalf("invoice with closing 20 = %s", first[0].InvoiceDate)
	}

	five := 5
	if err := svc.SaveCard(ctx, core.Card{ID: "nubank", ClosingDay: &five}); err != nil {
		t.Fatalf("save card: %v", err)
	}
	second, _ := svc.CreateSeries(ctx, template(t), 1)
	if second[0].InvoiceDate.String() != "2026-02-01" {
		t.Fatalf("invoice with closing 5 = %s", second[0].InvoiceDate)
	}
}

func TestSaveProfileChangesCompetence(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, nil)

	tmpl := template(t)
	tmpl.CardID = nil
	if err := svc.SaveProfile(ctx, core.Profile{ID: "me", FinancialStartDay: 10}); err != nil {
		t.Fatalf("save profile: %v", err)
	}
	saved, err := svc.CreateSeries(ctx, tmpl, 1)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if saved[0].CompetenceDate == nil || saved[0].CompetenceDate.String() != "2026-02-01" {
		t.Fatalf("competence = %v", saved[0].CompetenceDate)
	}
}

func TestSeriesServiceClose(t *testing.T) {
	t.Run("nil publisher", func(t *testing.T) {
		svc, _ := newService(t, nil)
		if err := svc.Close(); err != nil {
			t.Fatalf("Close should not return error: %v", err)
		}
	})

	t.Run("collects every failure", func(t *testing.T) {
		repo := closingRepo{Store: memory.New(), err: errors.New("db busy")}
		pub := &fakePublisher{closeErr: errors.New("channel closed")}
		svc := NewSeriesService(repo, nil, pub)

		err := svc.Close()
		if err == nil {
			t.Fatal("expected error")
		}
		for _, want := range []string{"storage: db busy", "amqp: channel closed"} {
			if !strings.Contains(err.Error(), want) {
				t.Errorf("error %q does not mention %q", err, want)
			}
		}
	})
}
