// Package sheets defines the spreadsheet mirror of stored entries.
package sheets

import (
	"context"

	"dindin/internal/core"
)

// Ports for outbound adapters.
type (
	// EntryMirror keeps a copy of the entries outside the database, keyed by
	// entry ID.
	EntryMirror interface {
		// UpsertEntries rewrites the rows of known entries and appends the rest.
		UpsertEntries(ctx context.Context, entries []core.Entry) error
		// DeleteEntries removes the rows of ids; unknown ids are ignored.
		DeleteEntries(ctx context.Context, ids []string) error
		// ReplaceAll makes the mirror hold exactly entries.
		ReplaceAll(ctx context.Context, entries []core.Entry) error
	}
)

// Header is the first row of the mirror sheet.
var Header = []string{
	"ID", "Date", "Description", "Amount", "Kind", "Paid",
	"Card", "Payer", "Category", "Invoice", "Competence", "Series",
}

// Row renders e in Header order.
func Row(e core.Entry) []string {
	paid := "no"
	if e.IsPaid {
		paid = "yes"
	}
	return []string{
		e.ID,
		e.OccurrenceDate.String(),
		e.Description,
		core.FormatAmount(e.Amount),
		string(e.Kind),
		paid,
		deref(e.CardID),
		e.PayerID,
		e.Category,
		dateString(e.InvoiceDate),
		dateString(e.CompetenceDate),
		deref(e.SeriesID),
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func dateString(d *core.Date) string {
	if d == nil {
		return ""
	}
	return d.String()
}
