// Package storage persists entries, cards and profiles in SQLite.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"

	"dindin/internal/core"
	"dindin/internal/series"

	_ "modernc.org/sqlite"
)

const latestCutoffKey = "latest_closing_day"

type SQLiteRepository struct {
	db      *sql.DB
	tx      *sql.Tx
	queries *Queries
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single writer avoids SQLITE_BUSY between a transaction and plain reads.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil && r.tx == nil {
		return r.db.Close()
	}
	return nil
}

// Tx runs fn inside one SQL transaction. Nested calls reuse the open one.
func (r *SQLiteRepository) Tx(ctx context.Context, fn func(series.Store) error) error {
	if r.tx != nil {
		return fn(r)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	child := &SQLiteRepository{db: r.db, tx: tx, queries: r.queries.WithTx(tx)}

	if err := fn(child); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.ErrorContext(ctx, "Failed to roll back transaction", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// inTx runs fn in the current transaction or a fresh one.
func (r *SQLiteRepository) inTx(ctx context.Context, fn func(*SQLiteRepository) error) error {
	if r.tx != nil {
		return fn(r)
	}
	return r.Tx(ctx, func(s series.Store) error {
		return fn(s.(*SQLiteRepository))
	})
}

func (r *SQLiteRepository) SelectEntries(ctx context.Context, filter core.EntryFilter) ([]core.Entry, error) {
	entries, err := r.queries.SelectEntries(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("select entries: %w", err)
	}
	return entries, nil
}

// ListEntries returns every entry ordered by occurrence date.
func (r *SQLiteRepository) ListEntries(ctx context.Context) ([]core.Entry, error) {
	return r.SelectEntries(ctx, core.EntryFilter{})
}

// InsertEntries stores entries in one transaction, assigning IDs to those
// without one.
func (r *SQLiteRepository) InsertEntries(ctx context.Context, entries []core.Entry) ([]core.Entry, error) {
	out := make([]core.Entry, len(entries))
	for i, e := range entries {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		if err := e.Validate(); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		out[i] = e
	}

	err := r.inTx(ctx, func(tx *SQLiteRepository) error {
		for _, e := range out {
			if err := tx.queries.InsertEntry(ctx, e); err != nil {
				return fmt.Errorf("insert entry %s: %w", e.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "Entries saved to SQLite", "count", len(out))
	return out, nil
}

// UpdateEntries applies patch to every id, or to none when one is missing.
func (r *SQLiteRepository) UpdateEntries(ctx context.Context, ids []string, patch core.EntryPatch) error {
	ids = dedupe(ids)
	if len(ids) == 0 {
		return nil
	}
	return r.inTx(ctx, func(tx *SQLiteRepository) error {
		n, err := tx.queries.UpdateEntries(ctx, ids, patch)
		if err != nil {
			return fmt.Errorf("update entries: %w", err)
		}
		if n != int64(len(ids)) {
			return fmt.Errorf("update entries: %d of %d rows: %w", n, len(ids), core.ErrNotFound)
		}
		return nil
	})
}

// DeleteEntries removes every id, or none when one is missing.
func (r *SQLiteRepository) DeleteEntries(ctx context.Context, ids []string) error {
	ids = dedupe(ids)
	if len(ids) == 0 {
		return nil
	}
	return r.inTx(ctx, func(tx *SQLiteRepository) error {
		n, err := tx.queries.DeleteEntries(ctx, ids)
		if err != nil {
			return fmt.Errorf("delete entries: %w", err)
		}
		if n != int64(len(ids)) {
			return fmt.Errorf("delete entries: %d of %d rows: %w", n, len(ids), core.ErrNotFound)
		}
		return nil
	})
}

func (r *SQLiteRepository) UpsertCard(ctx context.Context, c core.Card) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if err := r.queries.UpsertCard(ctx, c); err != nil {
		return fmt.Errorf("upsert card %s: %w", c.ID, err)
	}
	return nil
}

func (r *SQLiteRepository) Card(ctx context.Context, id string) (core.Card, error) {
	c, err := r.queries.GetCard(ctx, id)
	if isNoRows(err) {
		return core.Card{}, fmt.Errorf("card %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Card{}, fmt.Errorf("get card %s: %w", id, err)
	}
	return c, nil
}

// ClosingDays lists every card's closing day in ascending order; cards
// without one report 0.
func (r *SQLiteRepository) ClosingDays(ctx context.Context) ([]int, error) {
	days, err := r.queries.ListClosingDays(ctx)
	if err != nil {
		return nil, fmt.Errorf("list closing days: %w", err)
	}
	return days, nil
}

func (r *SQLiteRepository) UpsertProfile(ctx context.Context, p core.Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if err := r.queries.UpsertProfile(ctx, p); err != nil {
		return fmt.Errorf("upsert profile %s: %w", p.ID, err)
	}
	return nil
}

func (r *SQLiteRepository) Profile(ctx context.Context, id string) (core.Profile, error) {
	p, err := r.queries.GetProfile(ctx, id)
	if isNoRows(err) {
		return core.Profile{}, fmt.Errorf("profile %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Profile{}, fmt.Errorf("get profile %s: %w", id, err)
	}
	return p, nil
}

func (r *SQLiteRepository) LoadLatestCutoff(ctx context.Context) (int, bool, error) {
	value, err := r.queries.GetSetting(ctx, latestCutoffKey)
	if isNoRows(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get %s: %w", latestCutoffKey, err)
	}
	day, err := strconv.Atoi(value)
	if err != nil {
		slog.WarnContext(ctx, "Ignoring malformed latest cutoff", "value", value)
		return 0, false, nil
	}
	return day, true, nil
}

func (r *SQLiteRepository) SaveLatestCutoff(ctx context.Context, day int) error {
	if err := r.queries.PutSetting(ctx, latestCutoffKey, strconv.Itoa(day)); err != nil {
		return fmt.Errorf("put %s: %w", latestCutoffKey, err)
	}
	return nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
