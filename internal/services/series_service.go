package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/go-multierror"

	"dindin/internal/amqp"
	"dindin/internal/core"
	"dindin/internal/cutoff"
	"dindin/internal/period"
	"dindin/internal/series"
)

// Repository is the storage the service runs on: entries plus the card and
// profile data that drive period stamping.
type Repository interface {
	series.Store
	cutoff.Source
	period.CutoffStore
	ListEntries(ctx context.Context) ([]core.Entry, error)
	ClosingDays(ctx context.Context) ([]int, error)
	UpsertCard(ctx context.Context, c core.Card) error
	UpsertProfile(ctx context.Context, p core.Profile) error
	Close() error
}

// Publisher announces committed changes to other processes.
type Publisher interface {
	PublishEntriesChanged(ctx context.Context, msg *amqp.EntriesChangedMessage) error
	Close() error
}

// SeriesService orchestrates entry generation and scoped mutations across
// storage and AMQP.
type SeriesService struct {
	repo      Repository
	publisher Publisher
	resolver  *cutoff.Resolver
	generator *series.Generator
	engine    *series.Engine
	latest    *period.CutoffCache
	now       func() time.Time
}

// Option customizes a SeriesService.
type Option func(*SeriesService)

// WithIDGenerator replaces the random series ID source.
func WithIDGenerator(ids series.IDGenerator) Option {
	return func(s *SeriesService) {
		s.generator = series.NewGenerator(ids)
		s.engine = series.NewEngine(s.repo, ids, s.resolver)
	}
}

// WithClock replaces the clock used for the dashboard period.
func WithClock(now func() time.Time) Option {
	return func(s *SeriesService) { s.now = now }
}

// NewSeriesService wires the service. publisher may be nil, in which case
// changes are not announced.
func NewSeriesService(repo Repository, resolver *cutoff.Resolver, publisher Publisher, opts ...Option) *SeriesService {
	if resolver == nil {
		resolver = cutoff.NewResolver(repo, 256, 5*time.Minute)
	}
	s := &SeriesService{
		repo:      repo,
		publisher: publisher,
		resolver:  resolver,
		generator: series.NewGenerator(nil),
		engine:    series.NewEngine(repo, nil, resolver),
		latest:    period.NewCutoffCache(repo),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateSeries expands tmpl into count monthly entries and stores them.
func (s *SeriesService) CreateSeries(ctx context.Context, tmpl series.Template, count int) ([]core.Entry, error) {
	cutoffs, err := s.engine.Cutoffs(ctx, tmpl)
	if err != nil {
		return nil, fmt.Errorf("resolve cutoffs: %w", err)
	}
	entries, err := s.generator.Generate(tmpl, count, cutoffs)
	if err != nil {
		return nil, err
	}

	saved, err := s.repo.InsertEntries(ctx, entries)
	if err != nil {
		return nil, fmt.Errorf("save entries: %w", err)
	}

	var seriesID string
	if saved[0].SeriesID != nil {
		seriesID = *saved[0].SeriesID
	}
	slog.InfoContext(ctx, "Series created",
		"series_id", seriesID,
		"count", len(saved),
		"start", tmpl.StartDate.String())

	s.publish(ctx, amqp.OpUpsert, ids(saved), seriesID, "")
	return saved, nil
}

// EditEntry applies patch to entryID and its siblings under scope.
func (s *SeriesService) EditEntry(ctx context.Context, entryID string, seriesID *string, patch core.EntryPatch, scope series.Scope) (series.EditResult, error) {
	res, err := s.engine.Edit(ctx, entryID, seriesID, patch, scope)
	if err != nil {
		return series.EditResult{}, err
	}
	var sid string
	if res.SeriesID != nil {
		sid = *res.SeriesID
	}
	s.publish(ctx, amqp.OpUpsert, res.Affected, sid, res.Scope.String())
	return res, nil
}

// DeleteEntry removes entryID and its siblings under scope.
func (s *SeriesService) DeleteEntry(ctx context.Context, entryID string, seriesID *string, scope series.Scope) (series.DeleteResult, error) {
	res, err := s.engine.Delete(ctx, entryID, seriesID, scope)
	if err != nil {
		return series.DeleteResult{}, err
	}
	var sid string
	if seriesID != nil {
		sid = *seriesID
	}
	s.publish(ctx, amqp.OpDelete, res.Deleted, sid, res.Scope.String())
	return res, nil
}

// DeleteSelection deletes the entries named by entryIDs under a bulk scope.
func (s *SeriesService) DeleteSelection(ctx context.Context, entryIDs []string, scope series.Scope) (series.DeleteResult, error) {
	selected, err := s.repo.SelectEntries(ctx, core.EntryFilter{IDs: entryIDs})
	if err != nil {
		return series.DeleteResult{}, fmt.Errorf("select entries: %w", err)
	}
	found := make(map[string]bool, len(selected))
	for _, e := range selected {
		found[e.ID] = true
	}
	for _, id := range entryIDs {
		if !found[id] {
			return series.DeleteResult{}, fmt.Errorf("entry %s: %w", id, core.ErrNotFound)
		}
	}

	res, err := s.engine.DeleteBulk(ctx, selected, scope)
	if err != nil {
		return series.DeleteResult{}, err
	}
	s.publish(ctx, amqp.OpDelete, res.Deleted, "", res.Scope.String())
	return res, nil
}

// Entry returns one stored entry.
func (s *SeriesService) Entry(ctx context.Context, id string) (core.Entry, error) {
	found, err := s.repo.SelectEntries(ctx, core.EntryFilter{IDs: []string{id}})
	if err != nil {
		return core.Entry{}, fmt.Errorf("select entry: %w", err)
	}
	if len(found) == 0 {
		return core.Entry{}, fmt.Errorf("entry %s: %w", id, core.ErrNotFound)
	}
	return found[0], nil
}

func (s *SeriesService) ListEntries(ctx context.Context) ([]core.Entry, error) {
	return s.repo.ListEntries(ctx)
}

// ListSeries groups the stored entries into their series.
func (s *SeriesService) ListSeries(ctx context.Context) ([]core.Series, error) {
	entries, err := s.repo.ListEntries(ctx)
	if err != nil {
		return nil, err
	}
	return core.GroupSeries(entries), nil
}

// DashboardPeriod is the bucket today falls in under the last known
// closing day.
func (s *SeriesService) DashboardPeriod(ctx context.Context) (core.Date, error) {
	return s.latest.DashboardPeriod(ctx, core.DateOf(s.now()))
}

// RefreshCutoff recomputes the last known closing day from every card.
func (s *SeriesService) RefreshCutoff(ctx context.Context) (period.LatestCutoff, error) {
	days, err := s.repo.ClosingDays(ctx)
	if err != nil {
		return period.LatestCutoff{}, fmt.Errorf("list closing days: %w", err)
	}
	latest, err := s.latest.Refresh(ctx, days)
	if err != nil {
		return latest, err
	}
	slog.InfoContext(ctx, "Latest cutoff refreshed", "day", latest.Day, "known", latest.Known)
	return latest, nil
}

// SaveCard stores a card and refreshes every cutoff derived from it.
func (s *SeriesService) SaveCard(ctx context.Context, c core.Card) error {
	if err := s.repo.UpsertCard(ctx, c); err != nil {
		return err
	}
	s.resolver.InvalidateCard(c.ID)
	_, err := s.RefreshCutoff(ctx)
	return err
}

// SaveProfile stores a profile.
func (s *SeriesService) SaveProfile(ctx context.Context, p core.Profile) error {
	if err := s.repo.UpsertProfile(ctx, p); err != nil {
		return err
	}
	s.resolver.InvalidateProfile(p.ID)
	return nil
}

func (s *SeriesService) publish(ctx context.Context, op string, entryIDs []string, seriesID, scope string) {
	if len(entryIDs) == 0 {
		return
	}
	if s.publisher == nil {
		slog.DebugContext(ctx, "No publisher configured, skipping change message", "op", op)
		return
	}
	msg := amqp.NewEntriesChangedMessage(op, entryIDs, seriesID, scope)
	if err := s.publisher.PublishEntriesChanged(ctx, msg); err != nil {
		// The change is committed locally; the next full resync mirrors it.
		slog.ErrorContext(ctx, "Failed to publish change message",
			"op", op,
			"count", len(entryIDs),
			"error", err)
	}
}

// Close releases storage and the publisher, reporting every failure.
func (s *SeriesService) Close() error {
	var result *multierror.Error
	if s.repo != nil {
		if err := s.repo.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("storage: %w", err))
		}
	}
	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("amqp: %w", err))
		}
	}
	return result.ErrorOrNil()
}

func ids(entries []core.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}
