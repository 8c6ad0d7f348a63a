package series

import (
	"fmt"

	"github.com/shopspring/decimal"

	"dindin/internal/core"
	"dindin/internal/period"
)

// Template is one authored entry to be expanded into a series.
type Template struct {
	Description string
	Amount      decimal.Decimal
	StartDate   core.Date
	Kind        core.Kind
	IsPaid      bool
	CardID      *string
	PayerID     string
	Category    string
	// Installments splits Amount across the generated entries and labels
	// each one "(i/N)". Without it every entry repeats the full amount.
	Installments bool
}

// Generator expands templates into monthly entries.
type Generator struct {
	ids IDGenerator
}

func NewGenerator(ids IDGenerator) *Generator {
	if ids == nil {
		ids = UUIDGenerator{}
	}
	return &Generator{ids: ids}
}

// Generate returns count entries, one per month starting at the template's
// start date. Day of month is kept where the month has it and clamped to
// the month's last day otherwise. Period buckets are stamped from each
// installment's own occurrence date. More than one entry share a fresh
// series ID; a single entry has none. Entry IDs are left for the store.
func (g *Generator) Generate(tmpl Template, count int, cutoffs period.Cutoffs) ([]core.Entry, error) {
	if count < 1 {
		return nil, fmt.Errorf("%w: installment count must be at least 1, got %d", core.ErrInvalidInput, count)
	}
	if err := tmpl.StartDate.Validate(); err != nil {
		return nil, fmt.Errorf("invalid start date: %w", err)
	}

	amounts := make([]decimal.Decimal, count)
	if tmpl.Installments && count > 1 {
		if minimum := decimal.New(int64(count), -2); tmpl.Amount.LessThan(minimum) {
			return nil, fmt.Errorf("%w: amount %s cannot cover %d installments of at least 0.01",
				core.ErrInvalidInput, tmpl.Amount.StringFixed(2), count)
		}
		amounts = core.SplitAmount(tmpl.Amount, count)
	} else {
		for i := range amounts {
			amounts[i] = tmpl.Amount
		}
	}

	var seriesID *string
	if count > 1 {
		id := g.ids.NewID()
		seriesID = &id
	}

	entries := make([]core.Entry, 0, count)
	for i := 0; i < count; i++ {
		desc := tmpl.Description
		if tmpl.Installments && count > 1 {
			desc = fmt.Sprintf("%s (%d/%d)", tmpl.Description, i+1, count)
		}

		e := core.Entry{
			Description:    desc,
			Amount:         amounts[i],
			OccurrenceDate: period.AddMonths(tmpl.StartDate, i),
			SeriesID:       cloneString(seriesID),
			Kind:           tmpl.Kind,
			IsPaid:         tmpl.IsPaid,
			CardID:         cloneString(tmpl.CardID),
			PayerID:        tmpl.PayerID,
			Category:       tmpl.Category,
		}
		if err := e.Validate(); err != nil {
			return nil, fmt.Errorf("installment %d: %w", i+1, err)
		}
		entries = append(entries, period.Stamp(e, cutoffs))
	}

	return entries, nil
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
