package core

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	KindExpense    Kind = "expense"
	KindIncome     Kind = "income"
	KindInvestment Kind = "investment"
	KindBill       Kind = "bill"
)

// DateLayout is the wire and storage format of every calendar date.
const DateLayout = "2006-01-02"

type (
	Kind string

	Date struct {
		time.Time
	}

	// Entry is a single dated financial record.
	Entry struct {
		ID             string
		Description    string
		Amount         decimal.Decimal
		OccurrenceDate Date
		InvoiceDate    *Date // card billing month, card-linked expenses only
		CompetenceDate *Date // accounting month under the owner's financial start day
		SeriesID       *string
		Kind           Kind
		IsPaid         bool
		CardID         *string
		PayerID        string
		Category       string
	}

	// Series is synthesized on read from entries sharing a series ID.
	Series struct {
		ID      string
		Entries []Entry
	}
)

var (
	ErrZeroDate         = fmt.Errorf("%w: date cannot be zero", ErrInvalidInput)
	ErrInvalidAmount    = fmt.Errorf("%w: invalid amount", ErrInvalidInput)
	ErrEmptyDescription = fmt.Errorf("%w: empty description", ErrInvalidInput)
	ErrInvalidKind      = fmt.Errorf("%w: invalid kind", ErrInvalidInput)
)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD string. Out-of-range days such as
// 2026-02-30 are rejected instead of being normalized by time.Date.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: parse date %q: %v", ErrInvalidInput, s, err)
	}
	return Date{Time: t}, nil
}

// DateOf truncates a wall-clock time to its calendar date.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

// Validate rejects the zero Date. Any other value holds a real calendar
// day, since NewDate and ParseDate normalize through time.Date.
func (d Date) Validate() error {
	if d.IsZero() {
		return ErrZeroDate
	}
	return nil
}

// Day returns the day of the month
func (d Date) Day() int {
	return d.Time.Day()
}

// Month returns the month
func (d Date) Month() int {
	return int(d.Time.Month())
}

// Year returns the year
func (d Date) Year() int {
	return d.Time.Year()
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

// Before reports whether d is a calendar day earlier than other.
func (d Date) Before(other Date) bool {
	return d.Time.Before(other.Time)
}

// Equal reports whether both dates name the same calendar day.
func (d Date) Equal(other Date) bool {
	return d.Time.Equal(other.Time)
}

// Ptr returns a pointer to a copy of d.
func (d Date) Ptr() *Date {
	return &d
}

func (k Kind) Validate() error {
	switch k {
	case KindExpense, KindIncome, KindInvestment, KindBill:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidKind, string(k))
	}
}

func validateDescription(s string) error {
	if len(strings.TrimSpace(s)) == 0 {
		return ErrEmptyDescription
	}
	if len(s) > 200 {
		return fmt.Errorf("%w: description too long (max 200 characters)", ErrInvalidInput)
	}
	return nil
}

// ValidateAmount rejects zero and negative currency values.
func ValidateAmount(a decimal.Decimal) error {
	if !a.IsPositive() {
		return ErrInvalidAmount
	}
	return nil
}

func (e Entry) Validate() error {
	if err := e.OccurrenceDate.Validate(); err != nil {
		return err
	}
	if err := validateDescription(e.Description); err != nil {
		return err
	}
	if err := ValidateAmount(e.Amount); err != nil {
		return err
	}
	return e.Kind.Validate()
}

// InSeries reports whether the entry belongs to a series.
func (e Entry) InSeries() bool {
	return e.SeriesID != nil && *e.SeriesID != ""
}

// IsCardExpense reports whether the entry is billed through a card invoice.
func (e Entry) IsCardExpense() bool {
	return e.Kind == KindExpense && e.CardID != nil && *e.CardID != ""
}

// GroupSeries builds the implicit series view of a set of entries. Entries
// without a series ID are skipped. Series are ordered by ID and their
// entries by occurrence date.
func GroupSeries(entries []Entry) []Series {
	byID := make(map[string][]Entry)
	for _, e := range entries {
		if !e.InSeries() {
			continue
		}
		byID[*e.SeriesID] = append(byID[*e.SeriesID], e)
	}

	out := make([]Series, 0, len(byID))
	for id, members := range byID {
		SortByOccurrence(members)
		out = append(out, Series{ID: id, Entries: members})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SortByOccurrence orders entries by occurrence date, then by ID.
func SortByOccurrence(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.OccurrenceDate.Equal(b.OccurrenceDate) {
			return a.OccurrenceDate.Before(b.OccurrenceDate)
		}
		return a.ID < b.ID
	})
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
