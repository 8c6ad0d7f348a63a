package core

import "github.com/shopspring/decimal"

// Optional carries a field update that may also clear the field.
// A zero Optional leaves the field untouched.
type Optional[T any] struct {
	Set   bool
	Value *T
}

// SetTo returns an Optional assigning v.
func SetTo[T any](v T) Optional[T] {
	return Optional[T]{Set: true, Value: &v}
}

// Clear returns an Optional nulling the field.
func Clear[T any]() Optional[T] {
	return Optional[T]{Set: true}
}

// EntryFilter selects entries. Empty fields do not constrain the result.
type EntryFilter struct {
	IDs            []string
	SeriesID       string
	OccurrenceFrom *Date // occurrence_date >= OccurrenceFrom
}

// Matches reports whether e satisfies every constraint of f.
func (f EntryFilter) Matches(e Entry) bool {
	if len(f.IDs) > 0 {
		found := false
		for _, id := range f.IDs {
			if id == e.ID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.SeriesID != "" && (e.SeriesID == nil || *e.SeriesID != f.SeriesID) {
		return false
	}
	if f.OccurrenceFrom != nil && e.OccurrenceDate.Before(*f.OccurrenceFrom) {
		return false
	}
	return true
}

// EntryPatch is the set of field updates applied by a scoped edit.
type EntryPatch struct {
	Description    *string
	Amount         *decimal.Decimal
	Kind           *Kind
	IsPaid         *bool
	PayerID        *string
	Category       *string
	OccurrenceDate *Date
	CardID         Optional[string]
	SeriesID       Optional[string]
	InvoiceDate    Optional[Date]
	CompetenceDate Optional[Date]
}

// IsEmpty reports whether applying p would change nothing.
func (p EntryPatch) IsEmpty() bool {
	return p.Description == nil && p.Amount == nil && p.Kind == nil &&
		p.IsPaid == nil && p.PayerID == nil && p.Category == nil &&
		p.OccurrenceDate == nil && !p.CardID.Set && !p.SeriesID.Set &&
		!p.InvoiceDate.Set && !p.CompetenceDate.Set
}

// Validate checks the values a patch would write.
func (p EntryPatch) Validate() error {
	if p.Description != nil {
		if err := validateDescription(*p.Description); err != nil {
			return err
		}
	}
	if p.Amount != nil {
		if err := ValidateAmount(*p.Amount); err != nil {
			return err
		}
	}
	if p.Kind != nil {
		if err := p.Kind.Validate(); err != nil {
			return err
		}
	}
	if p.OccurrenceDate != nil {
		if err := p.OccurrenceDate.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Apply returns a copy of e with the patch applied.
func (p EntryPatch) Apply(e Entry) Entry {
	if p.Description != nil {
		e.Description = *p.Description
	}
	if p.Amount != nil {
		e.Amount = *p.Amount
	}
	if p.Kind != nil {
		e.Kind = *p.Kind
	}
	if p.IsPaid != nil {
		e.IsPaid = *p.IsPaid
	}
	if p.PayerID != nil {
		e.PayerID = *p.PayerID
	}
	if p.Category != nil {
		e.Category = *p.Category
	}
	if p.OccurrenceDate != nil {
		e.OccurrenceDate = *p.OccurrenceDate
	}
	if p.CardID.Set {
		e.CardID = copyPtr(p.CardID.Value)
	}
	if p.SeriesID.Set {
		e.SeriesID = copyPtr(p.SeriesID.Value)
	}
	if p.InvoiceDate.Set {
		e.InvoiceDate = copyPtr(p.InvoiceDate.Value)
	}
	if p.CompetenceDate.Set {
		e.CompetenceDate = copyPtr(p.CompetenceDate.Value)
	}
	return e
}

func copyPtr[T any](v *T) *T {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
