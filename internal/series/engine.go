package series

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"dindin/internal/core"
	applog "dindin/internal/log"
	"dindin/internal/period"
)

// Engine applies scoped edits and deletions to series members.
type Engine struct {
	store   Store
	ids     IDGenerator
	cutoffs CutoffResolver
}

// EditResult describes a committed edit.
type EditResult struct {
	Scope    Scope
	SeriesID *string // series the edited entries belong to afterwards
	Affected []string
}

// DeleteResult describes a committed deletion.
type DeleteResult struct {
	Scope   Scope
	Deleted []string
}

func NewEngine(store Store, ids IDGenerator, cutoffs CutoffResolver) *Engine {
	if ids == nil {
		ids = UUIDGenerator{}
	}
	return &Engine{store: store, ids: ids, cutoffs: cutoffs}
}

// Edit applies patch to the entry and, depending on scope, its siblings.
//
//   - single: only entryID; the entry is detached from its series.
//   - future: entryID and every sibling on or after its occurrence date
//     move to a fresh series (the series is forked).
//   - all: every entry of the series; the series ID is kept.
//
// Invoice and competence dates of every affected entry are recomputed
// from the entry's own occurrence date. The occurrence date itself can
// only be changed under single scope.
func (en *Engine) Edit(ctx context.Context, entryID string, seriesID *string, patch core.EntryPatch, scope Scope) (EditResult, error) {
	scope = scope.effective(seriesID)
	if err := validateEdit(entryID, patch, scope); err != nil {
		return EditResult{}, err
	}

	// Cutoffs come from stores outside the transaction, so they are
	// resolved before it opens and only read from memory inside it.
	base := patch
	switch scope {
	case ScopeSingle:
		base.SeriesID = core.Clear[string]()
	case ScopeFuture:
		base.SeriesID = core.SetTo(en.ids.NewID())
	}

	lookup := newCutoffLookup(en.cutoffs)
	if err := en.prefetch(ctx, lookup, entryID, seriesID, base, scope); err != nil {
		return EditResult{}, err
	}

	var result EditResult
	for attempt := 1; ; attempt++ {
		var err error
		result, err = en.edit(ctx, lookup, entryID, seriesID, base, scope)

		var miss *cutoffMissError
		if errors.As(err, &miss) && attempt < maxCutoffAttempts {
			if _, ferr := lookup.fetch(ctx, miss.entry); ferr != nil {
				return EditResult{}, ferr
			}
			continue
		}
		if err != nil {
			return EditResult{}, err
		}
		break
	}

	slog.InfoContext(ctx, "Series edit applied", applog.NewFields().
		WithOperation(applog.OpEdit).
		WithMutation(entryID, deref(result.SeriesID), scope.String(), len(result.Affected)).
		ToSlice()...)

	return result, nil
}

// maxCutoffAttempts bounds how often Edit reopens its transaction after
// finding an entry whose cutoffs were not resolved beforehand.
const maxCutoffAttempts = 3

// prefetch resolves the cutoffs of the entries an edit is expected to
// touch. A target that cannot be selected is left for edit to report.
func (en *Engine) prefetch(ctx context.Context, lookup *cutoffLookup, entryID string, seriesID *string, base core.EntryPatch, scope Scope) error {
	target, err := selectTarget(ctx, en.store, entryID)
	if errors.Is(err, core.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	affected, err := selectScope(ctx, en.store, target, seriesID, scope)
	if errors.Is(err, core.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, e := range affected {
		if _, err := lookup.fetch(ctx, base.Apply(e)); err != nil {
			return err
		}
	}
	return nil
}

// edit applies base in one transaction, stamping with cutoffs already held
// by lookup.
func (en *Engine) edit(ctx context.Context, lookup *cutoffLookup, entryID string, seriesID *string, base core.EntryPatch, scope Scope) (EditResult, error) {
	var result EditResult
	err := en.store.Tx(ctx, func(tx Store) error {
		target, err := selectTarget(ctx, tx, entryID)
		if err != nil {
			return err
		}

		affected, err := selectScope(ctx, tx, target, seriesID, scope)
		if err != nil {
			return err
		}

		stamps, err := stampGroups(affected, base, lookup)
		if err != nil {
			return err
		}

		ids := entryIDs(affected)
		total := 1 + len(stamps)
		if err := tx.UpdateEntries(ctx, ids, base); err != nil {
			return batchError("edit", scope, 0, total, err)
		}
		for i, g := range stamps {
			if err := tx.UpdateEntries(ctx, g.ids, g.patch); err != nil {
				return batchError("edit", scope, i+1, total, err)
			}
		}

		result = EditResult{Scope: scope, Affected: ids}
		if base.SeriesID.Set {
			result.SeriesID = base.SeriesID.Value
		} else {
			result.SeriesID = cloneString(target.SeriesID)
		}
		return nil
	})
	return result, err
}

// Delete removes the entry and, depending on scope, its siblings.
//
//   - single: only entryID (also the behavior when seriesID is nil).
//   - future: entryID and every sibling on or after its occurrence date.
//   - all: every entry of the series.
func (en *Engine) Delete(ctx context.Context, entryID string, seriesID *string, scope Scope) (DeleteResult, error) {
	scope = scope.effective(seriesID)
	if entryID == "" {
		return DeleteResult{}, fmt.Errorf("%w: entry id is required", core.ErrInvalidInput)
	}
	if err := validateScope(scope); err != nil {
		return DeleteResult{}, err
	}

	var result DeleteResult
	err := en.store.Tx(ctx, func(tx Store) error {
		target, err := selectTarget(ctx, tx, entryID)
		if err != nil {
			return err
		}

		affected, err := selectScope(ctx, tx, target, seriesID, scope)
		if err != nil {
			return err
		}

		ids := entryIDs(affected)
		if err := tx.DeleteEntries(ctx, ids); err != nil {
			if scope == ScopeSingle {
				return fmt.Errorf("delete entry %s: %w", entryID, err)
			}
			return batchError("delete", scope, 0, 1, err)
		}

		result = DeleteResult{Scope: scope, Deleted: ids}
		return nil
	})
	if err != nil {
		return DeleteResult{}, err
	}

	slog.InfoContext(ctx, "Series delete applied", applog.NewFields().
		WithOperation(applog.OpDelete).
		WithMutation(entryID, deref(seriesID), scope.String(), len(result.Deleted)).
		ToSlice()...)

	return result, nil
}

// DeleteBulk deletes a pre-selected set of entries.
//
//   - single: exactly the selected entries, regardless of series.
//   - all: every series referenced by the selection is deleted in full,
//     once per distinct series ID; entries without a series are deleted
//     individually.
//
// Future scope has no meaning for a heterogeneous selection.
func (en *Engine) DeleteBulk(ctx context.Context, selected []core.Entry, scope Scope) (DeleteResult, error) {
	if scope == "" {
		scope = ScopeSingle
	}
	if scope != ScopeSingle && scope != ScopeAll {
		return DeleteResult{}, fmt.Errorf("%w: bulk delete supports single or all scope, got %q", core.ErrInvalidInput, scope)
	}
	for _, e := range selected {
		if e.ID == "" {
			return DeleteResult{}, fmt.Errorf("%w: selected entry without id", core.ErrInvalidInput)
		}
	}
	if len(selected) == 0 {
		return DeleteResult{Scope: scope}, nil
	}

	var result DeleteResult
	err := en.store.Tx(ctx, func(tx Store) error {
		if err := ensureExist(ctx, tx, entryIDs(selected)); err != nil {
			return err
		}
		batches, err := bulkBatches(ctx, tx, selected, scope)
		if err != nil {
			return err
		}

		var deleted []string
		for i, ids := range batches {
			if len(ids) == 0 {
				continue
			}
			if err := tx.DeleteEntries(ctx, ids); err != nil {
				return batchError("bulk delete", scope, i, len(batches), err)
			}
			deleted = append(deleted, ids...)
		}

		result = DeleteResult{Scope: scope, Deleted: deleted}
		return nil
	})
	if err != nil {
		return DeleteResult{}, err
	}

	slog.InfoContext(ctx, "Bulk delete applied",
		"selected", len(selected),
		"scope", scope,
		"deleted", len(result.Deleted))

	return result, nil
}

// bulkBatches groups the ids to delete: one batch per distinct series
// under scope all, followed by one batch of loose entries.
func bulkBatches(ctx context.Context, tx Store, selected []core.Entry, scope Scope) ([][]string, error) {
	seen := make(map[string]bool)
	var loose []string

	if scope == ScopeSingle {
		for _, e := range selected {
			if !seen[e.ID] {
				seen[e.ID] = true
				loose = append(loose, e.ID)
			}
		}
		return [][]string{loose}, nil
	}

	var batches [][]string
	seenSeries := make(map[string]bool)
	for _, e := range selected {
		if !e.InSeries() {
			if !seen[e.ID] {
				seen[e.ID] = true
				loose = append(loose, e.ID)
			}
			continue
		}
		sid := *e.SeriesID
		if seenSeries[sid] {
			continue
		}
		seenSeries[sid] = true

		members, err := tx.SelectEntries(ctx, core.EntryFilter{SeriesID: sid})
		if err != nil {
			return nil, fmt.Errorf("select series %s: %w", sid, err)
		}
		var ids []string
		for _, m := range members {
			if !seen[m.ID] {
				seen[m.ID] = true
				ids = append(ids, m.ID)
			}
		}
		batches = append(batches, ids)
	}

	return append(batches, loose), nil
}

type stampGroup struct {
	ids   []string
	patch core.EntryPatch
}

// stampGroups recomputes the period buckets of every affected entry after
// base is applied and groups entries that end up with the same buckets.
// It only reads cutoffs already held by lookup.
func stampGroups(affected []core.Entry, base core.EntryPatch, lookup *cutoffLookup) ([]stampGroup, error) {
	var groups []stampGroup
	index := make(map[string]int)
	for _, e := range affected {
		updated := base.Apply(e)
		cutoffs, ok := lookup.cached(updated)
		if !ok {
			return nil, &cutoffMissError{entry: updated}
		}
		stamped := period.Stamp(updated, cutoffs)

		key := dateKey(stamped.InvoiceDate) + "|" + dateKey(stamped.CompetenceDate)
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, stampGroup{patch: core.EntryPatch{
				InvoiceDate:    optionalDate(stamped.InvoiceDate),
				CompetenceDate: optionalDate(stamped.CompetenceDate),
			}})
		}
		groups[i].ids = append(groups[i].ids, e.ID)
	}
	return groups, nil
}

// cutoffMissError aborts an edit transaction that met an entry whose card
// or owner was not resolved before the transaction opened.
type cutoffMissError struct {
	entry core.Entry
}

func (e *cutoffMissError) Error() string {
	return fmt.Sprintf("cutoffs of entry %s not resolved", e.entry.ID)
}

// cutoffLookup memoizes cutoff lookups for the duration of one call.
type cutoffLookup struct {
	resolver CutoffResolver
	closing  map[string]*int
	start    map[string]int
}

func newCutoffLookup(r CutoffResolver) *cutoffLookup {
	return &cutoffLookup{resolver: r, closing: map[string]*int{}, start: map[string]int{}}
}

// fetch resolves the cutoffs of e through the resolver. It must not run
// inside a store transaction.
func (l *cutoffLookup) fetch(ctx context.Context, e core.Entry) (period.Cutoffs, error) {
	var c period.Cutoffs
	if l.resolver == nil {
		return c, nil
	}

	if e.IsCardExpense() {
		card := *e.CardID
		day, ok := l.closing[card]
		if !ok {
			d, known, err := l.resolver.ClosingDay(ctx, card)
			if err != nil {
				return c, fmt.Errorf("closing day of card %s: %w", card, err)
			}
			if known {
				day = &d
			}
			l.closing[card] = day
		}
		c.ClosingDay = day
	}

	if e.PayerID != "" {
		start, ok := l.start[e.PayerID]
		if !ok {
			s, err := l.resolver.FinancialStartDay(ctx, e.PayerID)
			if err != nil {
				return c, fmt.Errorf("financial start day of %s: %w", e.PayerID, err)
			}
			start = s
			l.start[e.PayerID] = s
		}
		c.FinancialStartDay = start
	}
	return c, nil
}

// cached returns the cutoffs of e from earlier fetches only.
func (l *cutoffLookup) cached(e core.Entry) (period.Cutoffs, bool) {
	var c period.Cutoffs
	if l.resolver == nil {
		return c, true
	}
	if e.IsCardExpense() {
		day, ok := l.closing[*e.CardID]
		if !ok {
			return c, false
		}
		c.ClosingDay = day
	}
	if e.PayerID != "" {
		start, ok := l.start[e.PayerID]
		if !ok {
			return c, false
		}
		c.FinancialStartDay = start
	}
	return c, true
}

// Cutoffs resolves the cutoff sources for a template about to be generated.
func (en *Engine) Cutoffs(ctx context.Context, tmpl Template) (period.Cutoffs, error) {
	e := core.Entry{Kind: tmpl.Kind, CardID: tmpl.CardID, PayerID: tmpl.PayerID}
	return newCutoffLookup(en.cutoffs).fetch(ctx, e)
}

func validateEdit(entryID string, patch core.EntryPatch, scope Scope) error {
	if entryID == "" {
		return fmt.Errorf("%w: entry id is required", core.ErrInvalidInput)
	}
	if err := validateScope(scope); err != nil {
		return err
	}
	if patch.SeriesID.Set || patch.InvoiceDate.Set || patch.CompetenceDate.Set {
		return fmt.Errorf("%w: series and period fields are managed by the engine", core.ErrInvalidInput)
	}
	if patch.OccurrenceDate != nil && scope != ScopeSingle {
		return fmt.Errorf("%w: occurrence date can only change under single scope", core.ErrInvalidInput)
	}
	return patch.Validate()
}

func validateScope(scope Scope) error {
	switch scope {
	case ScopeSingle, ScopeFuture, ScopeAll:
		return nil
	default:
		return fmt.Errorf("%w: unknown scope %q", core.ErrInvalidInput, scope)
	}
}

func selectTarget(ctx context.Context, tx Store, entryID string) (core.Entry, error) {
	found, err := tx.SelectEntries(ctx, core.EntryFilter{IDs: []string{entryID}})
	if err != nil {
		return core.Entry{}, fmt.Errorf("select entry %s: %w", entryID, err)
	}
	if len(found) == 0 {
		return core.Entry{}, fmt.Errorf("entry %s: %w", entryID, core.ErrNotFound)
	}
	return found[0], nil
}

// ensureExist fails with ErrNotFound when any of ids is missing.
func ensureExist(ctx context.Context, tx Store, ids []string) error {
	found, err := tx.SelectEntries(ctx, core.EntryFilter{IDs: ids})
	if err != nil {
		return fmt.Errorf("select selection: %w", err)
	}
	present := make(map[string]bool, len(found))
	for _, e := range found {
		present[e.ID] = true
	}
	for _, id := range ids {
		if !present[id] {
			return fmt.Errorf("entry %s: %w", id, core.ErrNotFound)
		}
	}
	return nil
}

// selectScope returns the entries a mutation under scope touches. The
// target must still belong to seriesID for future and all scopes.
func selectScope(ctx context.Context, tx Store, target core.Entry, seriesID *string, scope Scope) ([]core.Entry, error) {
	if scope == ScopeSingle {
		return []core.Entry{target}, nil
	}

	sid := *seriesID
	if !target.InSeries() || *target.SeriesID != sid {
		return nil, fmt.Errorf("entry %s in series %s: %w", target.ID, sid, core.ErrNotFound)
	}

	filter := core.EntryFilter{SeriesID: sid}
	if scope == ScopeFuture {
		from := target.OccurrenceDate
		filter.OccurrenceFrom = &from
	}
	members, err := tx.SelectEntries(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("select series %s: %w", sid, err)
	}
	core.SortByOccurrence(members)
	return members, nil
}

func batchError(op string, scope Scope, done, total int, err error) error {
	var pbe *core.PartialBatchError
	if errors.As(err, &pbe) {
		return err
	}
	return &core.PartialBatchError{Op: op + " " + scope.String(), Done: done, Total: total, Err: err}
}

func entryIDs(entries []core.Entry) []string {
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	return ids
}

func optionalDate(d *core.Date) core.Optional[core.Date] {
	if d == nil {
		return core.Clear[core.Date]()
	}
	return core.SetTo(*d)
}

func dateKey(d *core.Date) string {
	if d == nil {
		return "-"
	}
	return d.String()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
