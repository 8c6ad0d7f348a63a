package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"dindin/internal/amqp"
	"dindin/internal/core"
	"dindin/internal/sheets"
)

// EntryReader is the read side of storage the worker mirrors from.
type EntryReader interface {
	SelectEntries(ctx context.Context, filter core.EntryFilter) ([]core.Entry, error)
	ListEntries(ctx context.Context) ([]core.Entry, error)
}

// SyncWorker keeps an EntryMirror in step with storage, driven by AMQP
// change notifications and a periodic full resync.
type SyncWorker struct {
	reader    EntryReader
	mirror    sheets.EntryMirror
	batchSize int
}

func NewSyncWorker(reader EntryReader, mirror sheets.EntryMirror, batchSize int) *SyncWorker {
	if batchSize < 1 {
		batchSize = 50
	}
	return &SyncWorker{reader: reader, mirror: mirror, batchSize: batchSize}
}

// HandleEntriesChanged applies one change notification to the mirror.
// Upserts re-read the entries; IDs that no longer exist are removed, since
// a later delete may have overtaken the notification.
func (w *SyncWorker) HandleEntriesChanged(ctx context.Context, msg *amqp.EntriesChangedMessage) error {
	slog.InfoContext(ctx, "Processing entries changed message",
		"op", msg.Op,
		"count", len(msg.IDs),
		"series_id", msg.SeriesID,
		"scope", msg.Scope)

	switch msg.Op {
	case amqp.OpDelete:
		if err := w.deleteChunked(ctx, msg.IDs); err != nil {
			return fmt.Errorf("delete mirrored entries: %w", err)
		}
		return nil
	case amqp.OpUpsert:
		return w.upsert(ctx, msg.IDs)
	default:
		return fmt.Errorf("unknown op %q", msg.Op)
	}
}

func (w *SyncWorker) upsert(ctx context.Context, ids []string) error {
	entries, err := w.reader.SelectEntries(ctx, core.EntryFilter{IDs: ids})
	if err != nil {
		return fmt.Errorf("read entries: %w", err)
	}

	found := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		found[e.ID] = struct{}{}
	}
	var missing []string
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			missing = append(missing, id)
		}
	}

	for start := 0; start < len(entries); start += w.batchSize {
		end := min(start+w.batchSize, len(entries))
		if err := w.mirror.UpsertEntries(ctx, entries[start:end]); err != nil {
			return fmt.Errorf("upsert mirrored entries: %w", err)
		}
	}
	if len(missing) > 0 {
		slog.WarnContext(ctx, "Entries vanished before sync, removing from mirror", "count", len(missing))
		if err := w.deleteChunked(ctx, missing); err != nil {
			return fmt.Errorf("delete vanished entries: %w", err)
		}
	}

	slog.InfoContext(ctx, "Synced entries", "upserted", len(entries), "removed", len(missing))
	return nil
}

func (w *SyncWorker) deleteChunked(ctx context.Context, ids []string) error {
	for start := 0; start < len(ids); start += w.batchSize {
		end := min(start+w.batchSize, len(ids))
		if err := w.mirror.DeleteEntries(ctx, ids[start:end]); err != nil {
			return err
		}
	}
	return nil
}

// FullResync rewrites the mirror from every stored entry. It recovers
// from notifications lost while the worker was down.
func (w *SyncWorker) FullResync(ctx context.Context) error {
	entries, err := w.reader.ListEntries(ctx)
	if err != nil {
		return fmt.Errorf("list entries: %w", err)
	}
	if err := w.mirror.ReplaceAll(ctx, entries); err != nil {
		return fmt.Errorf("replace mirror: %w", err)
	}
	slog.InfoContext(ctx, "Full resync completed", "entries", len(entries))
	return nil
}

// Run resyncs on every tick until ctx is done. A zero interval disables
// the loop.
func (w *SyncWorker) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := w.FullResync(ctx); err != nil {
				slog.ErrorContext(ctx, "Periodic resync failed", "error", err)
			}
		}
	}
}
