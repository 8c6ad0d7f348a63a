package period

import "dindin/internal/core"

// Cutoffs are the cutoff sources that apply to one entry.
type Cutoffs struct {
	// ClosingDay of the entry's card; nil when there is no card or the
	// card has no closing day.
	ClosingDay *int
	// FinancialStartDay of the owner's profile. 1 (or less) means the
	// competence month is the calendar month.
	FinancialStartDay int
}

// Stamp recomputes the invoice and competence buckets of e from its own
// occurrence date. Card expenses with a closing day get an invoice date;
// every other entry gets a competence date.
func Stamp(e core.Entry, c Cutoffs) core.Entry {
	e.InvoiceDate, e.CompetenceDate = nil, nil

	if e.IsCardExpense() && c.ClosingDay != nil && *c.ClosingDay > 0 {
		e.InvoiceDate = Resolve(e.OccurrenceDate, *c.ClosingDay).Ptr()
		return e
	}
	e.CompetenceDate = Resolve(e.OccurrenceDate, profileCutoff(c.FinancialStartDay)).Ptr()
	return e
}

// profileCutoff converts a profile start day to a resolver cutoff. A
// profile starting its month on day 1 does not shift anything, unlike a
// card closing on day 1.
func profileCutoff(startDay int) int {
	if startDay <= 1 {
		return 0
	}
	return startDay
}
