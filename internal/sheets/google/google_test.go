package google

import (
	"context"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"dindin/internal/core"
)

func TestNewFromEnv_MissingSpreadsheetID(t *testing.T) {
	t.Setenv("GOOGLE_SPREADSHEET_ID", "")

	_, err := NewFromEnv(context.Background())
	if err == nil {
		t.Fatal("expected error for missing GOOGLE_SPREADSHEET_ID")
	}
	if err.Error() != "missing GOOGLE_SPREADSHEET_ID" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNewFromEnv_InvalidOAuthClient(t *testing.T) {
	t.Setenv("GOOGLE_SPREADSHEET_ID", "test-id")
	t.Setenv("GOOGLE_OAUTH_CLIENT_JSON", "invalid-json")
	t.Setenv("GOOGLE_OAUTH_TOKEN_JSON", `{"access_token":"test"}`)

	_, err := NewFromEnv(context.Background())
	if err == nil {
		t.Fatal("expected error with invalid JSON")
	}
	if !strings.Contains(err.Error(), "oauth config") {
		t.Errorf("expected oauth config error, got: %v", err)
	}
}

func TestNewFromEnv_MissingCredentials(t *testing.T) {
	for _, key := range []string{
		"GOOGLE_OAUTH_CLIENT_JSON", "GOOGLE_OAUTH_CLIENT_FILE",
		"GOOGLE_SERVICE_ACCOUNT_JSON", "GOOGLE_SERVICE_ACCOUNT_FILE",
		"GOOGLE_APPLICATION_CREDENTIALS",
	} {
		t.Setenv(key, "")
	}
	t.Setenv("GOOGLE_SPREADSHEET_ID", "test-id")

	_, err := NewFromEnv(context.Background())
	if err == nil || !strings.Contains(err.Error(), "missing credentials") {
		t.Fatalf("expected missing credentials error, got %v", err)
	}
}

func TestParseToken(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		wantErr bool
	}{
		{"access token", `{"access_token":"a"}`, false},
		{"refresh token", `{"refresh_token":"r"}`, false},
		{"empty", `{}`, true},
		{"malformed", `not json`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseToken([]byte(tt.in))
			if (err != nil) != tt.wantErr {
				t.Errorf("parseToken(%s) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
		})
	}
}

func TestClient_NilService(t *testing.T) {
	c := &Client{spreadsheetID: "test", sheetName: "Entries"}
	ctx := context.Background()
	e := core.Entry{ID: "a", Description: "x", Amount: decimal.NewFromInt(1)}

	if err := c.UpsertEntries(ctx, []core.Entry{e}); err == nil {
		t.Error("expected error from UpsertEntries without service")
	}
	if err := c.DeleteEntries(ctx, []string{"a"}); err == nil {
		t.Error("expected error from DeleteEntries without service")
	}
	if err := c.ReplaceAll(ctx, nil); err == nil {
		t.Error("expected error from ReplaceAll without service")
	}
	// empty batches never reach the API
	if err := c.UpsertEntries(ctx, nil); err != nil {
		t.Errorf("empty upsert: %v", err)
	}
	if err := c.DeleteEntries(ctx, nil); err != nil {
		t.Errorf("empty delete: %v", err)
	}
}

func TestParseIndex(t *testing.T) {
	values := [][]interface{}{
		{"ID"},
		{"a"},
		{},
		{" b "},
		{""},
		{"c"},
	}
	idx := parseIndex(values)

	want := map[string]int{"a": 2, "b": 4, "c": 6}
	if len(idx) != len(want) {
		t.Fatalf("got %d ids, want %d: %v", len(idx), len(want), idx)
	}
	for id, row := range want {
		if idx[id] != row {
			t.Errorf("row of %q = %d, want %d", id, idx[id], row)
		}
	}
	if _, ok := idx["ID"]; ok {
		t.Error("header row must not be indexed")
	}
}

func TestDeleteRequests(t *testing.T) {
	reqs := deleteRequests(7, []int{3, 10, 5})
	if len(reqs) != 3 {
		t.Fatalf("got %d requests, want 3", len(reqs))
	}
	wantStart := []int64{9, 4, 2}
	for i, r := range reqs {
		rng := r.DeleteDimension.Range
		if rng.SheetId != 7 || rng.Dimension != "ROWS" {
			t.Errorf("request %d: unexpected range %+v", i, rng)
		}
		if rng.StartIndex != wantStart[i] || rng.EndIndex != wantStart[i]+1 {
			t.Errorf("request %d: got [%d,%d), want [%d,%d)", i, rng.StartIndex, rng.EndIndex, wantStart[i], wantStart[i]+1)
		}
	}
}

func TestSplitUpserts(t *testing.T) {
	idx := rowIndex{"a": 2, "b": 3}
	entries := []core.Entry{
		{ID: "b", Description: "known", Amount: decimal.NewFromInt(5), OccurrenceDate: core.NewDate(2026, 1, 2), Kind: core.KindExpense},
		{ID: "z", Description: "new", Amount: decimal.NewFromInt(7), OccurrenceDate: core.NewDate(2026, 1, 3), Kind: core.KindIncome},
	}

	updates, appends := splitUpserts(idx, entries, "My Sheet")
	if len(updates) != 1 || len(appends) != 1 {
		t.Fatalf("got %d updates and %d appends, want 1 and 1", len(updates), len(appends))
	}
	if got, want := updates[0].Range, "'My Sheet'!A3:L3"; got != want {
		t.Errorf("update range = %q, want %q", got, want)
	}
	if appends[0][0] != "z" || appends[0][3] != "7.00" {
		t.Errorf("unexpected appended row %v", appends[0])
	}
}

func TestQuoteSheet(t *testing.T) {
	tests := map[string]string{
		"Entries":  "Entries",
		"My Sheet": "'My Sheet'",
		"Bob's":    "'Bob''s'",
	}
	for in, want := range tests {
		if got := quoteSheet(in); got != want {
			t.Errorf("quoteSheet(%q) = %q, want %q", in, got, want)
		}
	}
}
