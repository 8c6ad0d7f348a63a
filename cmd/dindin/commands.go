package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"dindin/internal/core"
	"dindin/internal/period"
	"dindin/internal/series"
	"dindin/internal/services"
)

type app struct {
	svc     *services.SeriesService
	out     io.Writer
	ownerID string
}

type command func(ctx context.Context, a *app, args []string) error

var commands = map[string]command{
	"dashboard": runDashboard,
	"generate":  runGenerate,
	"edit":      runEdit,
	"delete":    runDelete,
	"list":      runList,
	"card":      runCard,
	"profile":   runProfile,
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", core.ErrInvalidInput, err)
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("%w: unexpected arguments %v", core.ErrInvalidInput, fs.Args())
	}
	return nil
}

// setFlags returns the names of the flags given on the command line.
func setFlags(fs *flag.FlagSet) map[string]bool {
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return set
}

func runPeriod(args []string, out io.Writer) error {
	fs := newFlagSet("period")
	date := fs.String("date", "", "occurrence date (YYYY-MM-DD)")
	cutoff := fs.Int("cutoff", 0, "cutoff day; 0 keeps the occurrence month")
	if err := parse(fs, args); err != nil {
		return err
	}
	d, err := core.ParseDate(*date)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, period.Resolve(d, *cutoff))
	return nil
}

func runDashboard(ctx context.Context, a *app, args []string) error {
	if err := parse(newFlagSet("dashboard"), args); err != nil {
		return err
	}
	p, err := a.svc.DashboardPeriod(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, p)
	return nil
}

func runGenerate(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("generate")
	desc := fs.String("desc", "", "description")
	amount := fs.String("amount", "", "amount, e.g. 89,90")
	start := fs.String("start", "", "first occurrence (YYYY-MM-DD)")
	count := fs.Int("count", 1, "number of monthly entries")
	kind := fs.String("kind", string(core.KindExpense), "expense, income, investment or bill")
	card := fs.String("card", "", "card ID")
	payer := fs.String("payer", a.ownerID, "payer ID")
	category := fs.String("category", "", "category")
	paid := fs.Bool("paid", false, "mark as paid")
	installments := fs.Bool("installments", false, "split amount across entries and label them (i/N)")
	if err := parse(fs, args); err != nil {
		return err
	}

	amt, err := core.ParseAmount(*amount)
	if err != nil {
		return err
	}
	startDate, err := core.ParseDate(*start)
	if err != nil {
		return err
	}
	tmpl := series.Template{
		Description:  *desc,
		Amount:       amt,
		StartDate:    startDate,
		Kind:         core.Kind(*kind),
		IsPaid:       *paid,
		PayerID:      *payer,
		Category:     *category,
		Installments: *installments,
	}
	if *card != "" {
		tmpl.CardID = core.StringPtr(*card)
	}

	entries, err := a.svc.CreateSeries(ctx, tmpl, *count)
	if err != nil {
		return err
	}
	return printEntries(a.out, entries)
}

func runEdit(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("edit")
	id := fs.String("id", "", "entry ID")
	seriesID := fs.String("series", "", "series the entry belongs to")
	scopeName := fs.String("scope", "single", "single, future or all")
	desc := fs.String("desc", "", "new description")
	amount := fs.String("amount", "", "new amount")
	date := fs.String("date", "", "new occurrence date (single scope only)")
	kind := fs.String("kind", "", "new kind")
	card := fs.String("card", "", "new card ID, or none to clear")
	payer := fs.String("payer", "", "new payer ID")
	category := fs.String("category", "", "new category")
	paid := fs.Bool("paid", false, "new paid flag")
	if err := parse(fs, args); err != nil {
		return err
	}
	scope, err := series.ParseScope(*scopeName)
	if err != nil {
		return err
	}

	set := setFlags(fs)
	var patch core.EntryPatch
	if set["desc"] {
		patch.Description = desc
	}
	if set["amount"] {
		amt, err := core.ParseAmount(*amount)
		if err != nil {
			return err
		}
		patch.Amount = &amt
	}
	if set["date"] {
		d, err := core.ParseDate(*date)
		if err != nil {
			return err
		}
		patch.OccurrenceDate = &d
	}
	if set["kind"] {
		k := core.Kind(*kind)
		patch.Kind = &k
	}
	if set["card"] {
		if strings.EqualFold(*card, "none") {
			patch.CardID = core.Clear[string]()
		} else {
			patch.CardID = core.SetTo(*card)
		}
	}
	if set["payer"] {
		patch.PayerID = payer
	}
	if set["category"] {
		patch.Category = category
	}
	if set["paid"] {
		patch.IsPaid = paid
	}

	res, err := a.svc.EditEntry(ctx, *id, optional(*seriesID), patch, scope)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "edited %d entries (scope %s", len(res.Affected), res.Scope)
	if res.SeriesID != nil {
		fmt.Fprintf(a.out, ", series %s", *res.SeriesID)
	}
	fmt.Fprintln(a.out, ")")
	return nil
}

func runDelete(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("delete")
	id := fs.String("id", "", "entry ID")
	seriesID := fs.String("series", "", "series the entry belongs to")
	ids := fs.String("ids", "", "comma separated entry IDs for a bulk delete")
	scopeName := fs.String("scope", "single", "single, future or all")
	if err := parse(fs, args); err != nil {
		return err
	}
	scope, err := series.ParseScope(*scopeName)
	if err != nil {
		return err
	}

	var res series.DeleteResult
	switch {
	case *ids != "" && *id != "":
		return fmt.Errorf("%w: use either -id or -ids", core.ErrInvalidInput)
	case *ids != "":
		res, err = a.svc.DeleteSelection(ctx, splitIDs(*ids), scope)
	default:
		res, err = a.svc.DeleteEntry(ctx, *id, optional(*seriesID), scope)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "deleted %d entries (scope %s)\n", len(res.Deleted), res.Scope)
	return nil
}

func runList(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("list")
	seriesID := fs.String("series", "", "only entries of this series")
	if err := parse(fs, args); err != nil {
		return err
	}

	if *seriesID == "" {
		entries, err := a.svc.ListEntries(ctx)
		if err != nil {
			return err
		}
		return printEntries(a.out, entries)
	}

	all, err := a.svc.ListSeries(ctx)
	if err != nil {
		return err
	}
	for _, s := range all {
		if s.ID == *seriesID {
			return printEntries(a.out, s.Entries)
		}
	}
	return fmt.Errorf("series %s: %w", *seriesID, core.ErrNotFound)
}

func runCard(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("card")
	id := fs.String("id", "", "card ID")
	name := fs.String("name", "", "card name")
	closing := fs.Int("closing", 0, "closing day; 0 for none")
	if err := parse(fs, args); err != nil {
		return err
	}
	c := core.Card{ID: *id, Name: *name}
	if *closing != 0 {
		c.ClosingDay = closing
	}
	if err := a.svc.SaveCard(ctx, c); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "saved card %s\n", c.ID)
	return nil
}

func runProfile(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("profile")
	id := fs.String("id", a.ownerID, "profile ID")
	name := fs.String("name", "", "display name")
	start := fs.Int("start", 1, "financial start day")
	if err := parse(fs, args); err != nil {
		return err
	}
	p := core.Profile{ID: *id, Name: *name, FinancialStartDay: *start}
	if err := a.svc.SaveProfile(ctx, p); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "saved profile %s\n", p.ID)
	return nil
}

func printEntries(out io.Writer, entries []core.Entry) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tDESCRIPTION\tAMOUNT\tKIND\tINVOICE\tCOMPETENCE\tSERIES")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.ID,
			e.OccurrenceDate,
			e.Description,
			core.FormatAmount(e.Amount),
			e.Kind,
			dateOrDash(e.InvoiceDate),
			dateOrDash(e.CompetenceDate),
			stringOrDash(e.SeriesID))
	}
	return tw.Flush()
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func splitIDs(s string) []string {
	var out []string
	for _, id := range strings.Split(s, ",") {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}

func dateOrDash(d *core.Date) string {
	if d == nil {
		return "-"
	}
	return d.String()
}

func stringOrDash(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}
