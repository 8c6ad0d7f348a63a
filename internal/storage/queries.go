package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"dindin/internal/core"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

// Queries holds the hand-written statements of the schema.
type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

const entryColumns = `id, description, amount, occurrence_date, invoice_date, competence_date,
	series_id, kind, is_paid, card_id, payer_id, category`

func (q *Queries) SelectEntries(ctx context.Context, f core.EntryFilter) ([]core.Entry, error) {
	var (
		where []string
		args  []interface{}
	)
	if len(f.IDs) > 0 {
		where = append(where, "id IN ("+placeholders(len(f.IDs))+")")
		for _, id := range f.IDs {
			args = append(args, id)
		}
	}
	if f.SeriesID != "" {
		where = append(where, "series_id = ?")
		args = append(args, f.SeriesID)
	}
	if f.OccurrenceFrom != nil {
		where = append(where, "occurrence_date >= ?")
		args = append(args, f.OccurrenceFrom.String())
	}

	query := "SELECT " + entryColumns + " FROM entries"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY occurrence_date, id"

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []core.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const insertEntry = `INSERT INTO entries (` + entryColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) InsertEntry(ctx context.Context, e core.Entry) error {
	_, err := q.db.ExecContext(ctx, insertEntry,
		e.ID,
		e.Description,
		e.Amount.StringFixed(2),
		e.OccurrenceDate.String(),
		nullDate(e.InvoiceDate),
		nullDate(e.CompetenceDate),
		nullString(e.SeriesID),
		string(e.Kind),
		e.IsPaid,
		nullString(e.CardID),
		e.PayerID,
		e.Category,
	)
	return err
}

// UpdateEntries applies patch to ids and returns the number of rows hit.
func (q *Queries) UpdateEntries(ctx context.Context, ids []string, p core.EntryPatch) (int64, error) {
	sets := []string{"updated_at = CURRENT_TIMESTAMP"}
	var args []interface{}
	set := func(column string, value interface{}) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}

	if p.Description != nil {
		set("description", *p.Description)
	}
	if p.Amount != nil {
		set("amount", p.Amount.StringFixed(2))
	}
	if p.Kind != nil {
		set("kind", string(*p.Kind))
	}
	if p.IsPaid != nil {
		set("is_paid", *p.IsPaid)
	}
	if p.PayerID != nil {
		set("payer_id", *p.PayerID)
	}
	if p.Category != nil {
		set("category", *p.Category)
	}
	if p.OccurrenceDate != nil {
		set("occurrence_date", p.OccurrenceDate.String())
	}
	if p.CardID.Set {
		set("card_id", nullString(p.CardID.Value))
	}
	if p.SeriesID.Set {
		set("series_id", nullString(p.SeriesID.Value))
	}
	if p.InvoiceDate.Set {
		set("invoice_date", nullDate(p.InvoiceDate.Value))
	}
	if p.CompetenceDate.Set {
		set("competence_date", nullDate(p.CompetenceDate.Value))
	}

	query := "UPDATE entries SET " + strings.Join(sets, ", ") +
		" WHERE id IN (" + placeholders(len(ids)) + ")"
	for _, id := range ids {
		args = append(args, id)
	}

	res, err := q.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (q *Queries) DeleteEntries(ctx context.Context, ids []string) (int64, error) {
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	res, err := q.db.ExecContext(ctx, "DELETE FROM entries WHERE id IN ("+placeholders(len(ids))+")", args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const upsertCard = `INSERT INTO cards (id, name, closing_day) VALUES (?, ?, ?)
ON CONFLICT(id) DO UPDATE SET name = excluded.name, closing_day = excluded.closing_day,
	updated_at = CURRENT_TIMESTAMP`

func (q *Queries) UpsertCard(ctx context.Context, c core.Card) error {
	var closing sql.NullInt64
	if c.ClosingDay != nil {
		closing = sql.NullInt64{Int64: int64(*c.ClosingDay), Valid: true}
	}
	_, err := q.db.ExecContext(ctx, upsertCard, c.ID, c.Name, closing)
	return err
}

func (q *Queries) GetCard(ctx context.Context, id string) (core.Card, error) {
	var (
		c       core.Card
		closing sql.NullInt64
	)
	err := q.db.QueryRowContext(ctx, `SELECT id, name, closing_day FROM cards WHERE id = ?`, id).
		Scan(&c.ID, &c.Name, &closing)
	if err != nil {
		return core.Card{}, err
	}
	if closing.Valid {
		day := int(closing.Int64)
		c.ClosingDay = &day
	}
	return c, nil
}

func (q *Queries) ListClosingDays(ctx context.Context) ([]int, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT COALESCE(closing_day, 0) FROM cards ORDER BY 1`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var days []int
	for rows.Next() {
		var day int
		if err := rows.Scan(&day); err != nil {
			return nil, err
		}
		days = append(days, day)
	}
	return days, rows.Err()
}

const upsertProfile = `INSERT INTO profiles (id, name, financial_start_day) VALUES (?, ?, ?)
ON CONFLICT(id) DO UPDATE SET name = excluded.name,
	financial_start_day = excluded.financial_start_day, updated_at = CURRENT_TIMESTAMP`

func (q *Queries) UpsertProfile(ctx context.Context, p core.Profile) error {
	_, err := q.db.ExecContext(ctx, upsertProfile, p.ID, p.Name, p.FinancialStartDay)
	return err
}

func (q *Queries) GetProfile(ctx context.Context, id string) (core.Profile, error) {
	var p core.Profile
	err := q.db.QueryRowContext(ctx, `SELECT id, name, financial_start_day FROM profiles WHERE id = ?`, id).
		Scan(&p.ID, &p.Name, &p.FinancialStartDay)
	return p, err
}

func (q *Queries) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := q.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	return value, err
}

const putSetting = `INSERT INTO settings (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`

func (q *Queries) PutSetting(ctx context.Context, key, value string) error {
	_, err := q.db.ExecContext(ctx, putSetting, key, value)
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row rowScanner) (core.Entry, error) {
	var (
		e                                 core.Entry
		amount, occurrence, kind          string
		invoice, competence, series, card sql.NullString
	)
	if err := row.Scan(&e.ID, &e.Description, &amount, &occurrence, &invoice, &competence,
		&series, &kind, &e.IsPaid, &card, &e.PayerID, &e.Category); err != nil {
		return core.Entry{}, err
	}

	var err error
	if e.Amount, err = decimal.NewFromString(amount); err != nil {
		return core.Entry{}, fmt.Errorf("entry %s amount %q: %w", e.ID, amount, err)
	}
	if e.OccurrenceDate, err = core.ParseDate(occurrence); err != nil {
		return core.Entry{}, fmt.Errorf("entry %s: %w", e.ID, err)
	}
	if e.InvoiceDate, err = parseNullDate(invoice); err != nil {
		return core.Entry{}, fmt.Errorf("entry %s: %w", e.ID, err)
	}
	if e.CompetenceDate, err = parseNullDate(competence); err != nil {
		return core.Entry{}, fmt.Errorf("entry %s: %w", e.ID, err)
	}
	e.Kind = core.Kind(kind)
	if series.Valid {
		e.SeriesID = core.StringPtr(series.String)
	}
	if card.Valid {
		e.CardID = core.StringPtr(card.String)
	}
	return e, nil
}

func parseNullDate(s sql.NullString) (*core.Date, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	d, err := core.ParseDate(s.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func nullDate(d *core.Date) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
