package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"dindin/internal/amqp"
	"dindin/internal/core"
	sheetsmem "dindin/internal/sheets/memory"
	"dindin/internal/storage/memory"
)

func seed(t *testing.T, store *memory.Store, ids ...string) {
	t.Helper()
	entries := make([]core.Entry, len(ids))
	for i, id := range ids {
		entries[i] = core.Entry{
			ID:             id,
			Description:    "entry " + id,
			Amount:         decimal.NewFromInt(10),
			OccurrenceDate: core.NewDate(2026, 1, i+1),
			Kind:           core.KindExpense,
			PayerID:        "me",
		}
	}
	if _, err := store.InsertEntries(context.Background(), entries); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

// countingMirror records how many entries each upsert call carried.
type countingMirror struct {
	*sheetsmem.Mirror
	upserts []int
	err     error
}

func (m *countingMirror) UpsertEntries(ctx context.Context, entries []core.Entry) error {
	if m.err != nil {
		return m.err
	}
	m.upserts = append(m.upserts, len(entries))
	return m.Mirror.UpsertEntries(ctx, entries)
}

func TestHandleUpsertChunksAndRemovesVanished(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	seed(t, store, "a", "b", "c", "d", "e")

	mirror := &countingMirror{Mirror: sheetsmem.New()}
	_ = mirror.Mirror.UpsertEntries(ctx, []core.Entry{{ID: "gone"}})

	w := NewSyncWorker(store, mirror, 2)
	msg := amqp.NewEntriesChangedMessage(amqp.OpUpsert, []string{"a", "b", "c", "d", "e", "gone"}, "", "")
	if err := w.HandleEntriesChanged(ctx, msg); err != nil {
		t.Fatalf("HandleEntriesChanged: %v", err)
	}

	if got := mirror.upserts; len(got) != 3 || got[0] != 2 || got[1] != 2 || got[2] != 1 {
		t.Errorf("upsert batches = %v, want [2 2 1]", got)
	}
	if mirror.Len() != 5 {
		t.Errorf("mirror holds %d rows, want 5", mirror.Len())
	}
	if _, ok := mirror.Row("gone"); ok {
		t.Error("vanished entry should be removed from the mirror")
	}
}

func TestHandleDelete(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	seed(t, store, "a", "b")
	mirror := sheetsmem.New()
	w := NewSyncWorker(store, mirror, 10)

	if err := w.FullResync(ctx); err != nil {
		t.Fatal(err)
	}
	msg := amqp.NewEntriesChangedMessage(amqp.OpDelete, []string{"a"}, "", "single")
	if err := w.HandleEntriesChanged(ctx, msg); err != nil {
		t.Fatal(err)
	}
	if mirror.Len() != 1 {
		t.Errorf("mirror holds %d rows, want 1", mirror.Len())
	}
	if _, ok := mirror.Row("b"); !ok {
		t.Error("b should still be mirrored")
	}
}

func TestHandleErrors(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	seed(t, store, "a")

	boom := errors.New("boom")
	w := NewSyncWorker(store, &countingMirror{Mirror: sheetsmem.New(), err: boom}, 10)
	err := w.HandleEntriesChanged(ctx, amqp.NewEntriesChangedMessage(amqp.OpUpsert, []string{"a"}, "", ""))
	if !errors.Is(err, boom) {
		t.Errorf("got %v, want mirror error", err)
	}

	err = w.HandleEntriesChanged(ctx, &amqp.EntriesChangedMessage{Op: "rename", IDs: []string{"a"}})
	if err == nil {
		t.Error("expected error for unknown op")
	}
}

func TestFullResyncReplacesMirror(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	seed(t, store, "a", "b", "c")

	mirror := sheetsmem.New()
	_ = mirror.UpsertEntries(ctx, []core.Entry{{ID: "stale"}})

	if err := NewSyncWorker(store, mirror, 0).FullResync(ctx); err != nil {
		t.Fatal(err)
	}
	rows := mirror.Rows()
	if len(rows) != 4 {
		t.Fatalf("got %d rows, want header + 3", len(rows))
	}
	for i, want := range []string{"a", "b", "c"} {
		if rows[i+1][0] != want {
			t.Errorf("row %d = %q, want %q", i+1, rows[i+1][0], want)
		}
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	store := memory.New()
	seed(t, store, "a")
	mirror := sheetsmem.New()
	w := NewSyncWorker(store, mirror, 10)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, 5*time.Millisecond) }()

	deadline := time.After(2 * time.Second)
	for mirror.Len() == 0 {
		select {
		case <-deadline:
			t.Fatal("periodic resync never ran")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
