package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	gsheet "google.golang.org/api/sheets/v4"

	"dindin/internal/core"
	ports "dindin/internal/sheets"
)

// Client mirrors entries into one sheet of a spreadsheet, one row per entry
// keyed by the ID column.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string

	mu      sync.Mutex
	sheetID *int64
}

var _ ports.EntryMirror = (*Client)(nil)

// NewFromEnv creates a Sheets client using environment variables.
// Required: GOOGLE_SPREADSHEET_ID
// Optional: GOOGLE_SHEET_NAME (default "Entries").
// Auth: GOOGLE_OAUTH_CLIENT_JSON/FILE with GOOGLE_OAUTH_TOKEN_JSON/FILE, or
// GOOGLE_SERVICE_ACCOUNT_JSON/FILE, or GOOGLE_APPLICATION_CREDENTIALS.
func NewFromEnv(ctx context.Context) (*Client, error) {
	spreadsheetID := strings.TrimSpace(os.Getenv("GOOGLE_SPREADSHEET_ID"))
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	sheetName := strings.TrimSpace(os.Getenv("GOOGLE_SHEET_NAME"))
	if sheetName == "" {
		sheetName = "Entries"
	}

	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return &Client{svc: svc, spreadsheetID: spreadsheetID, sheetName: sheetName}, nil
}

func (c *Client) UpsertEntries(ctx context.Context, entries []core.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}

	idx, err := c.readIndex(ctx)
	if err != nil {
		return err
	}
	updates, appends := splitUpserts(idx, entries, c.sheetName)

	if len(updates) > 0 {
		req := &gsheet.BatchUpdateValuesRequest{ValueInputOption: "RAW", Data: updates}
		if _, err := c.svc.Spreadsheets.Values.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
			return fmt.Errorf("update %d rows in %s: %w", len(updates), c.sheetName, err)
		}
	}
	if len(appends) > 0 {
		vr := &gsheet.ValueRange{Values: appends}
		_, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, columnsRange(c.sheetName), vr).
			ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("append %d rows to %s: %w", len(appends), c.sheetName, err)
		}
	}

	slog.DebugContext(ctx, "Mirrored entries", "sheet", c.sheetName, "updated", len(updates), "appended", len(appends))
	return nil
}

func (c *Client) DeleteEntries(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}

	idx, err := c.readIndex(ctx)
	if err != nil {
		return err
	}
	rows := make([]int, 0, len(ids))
	for _, id := range ids {
		if row, ok := idx[id]; ok {
			rows = append(rows, row)
		}
	}
	if len(rows) == 0 {
		return nil
	}

	sheetID, err := c.resolveSheetID(ctx)
	if err != nil {
		return err
	}
	req := &gsheet.BatchUpdateSpreadsheetRequest{Requests: deleteRequests(sheetID, rows)}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("delete %d rows from %s: %w", len(rows), c.sheetName, err)
	}

	slog.DebugContext(ctx, "Removed mirrored entries", "sheet", c.sheetName, "rows", len(rows))
	return nil
}

func (c *Client) ReplaceAll(ctx context.Context, entries []core.Entry) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}

	rng := columnsRange(c.sheetName)
	if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, rng, &gsheet.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear %s: %w", rng, err)
	}

	values := make([][]interface{}, 0, len(entries)+1)
	values = append(values, toValues(ports.Header))
	for _, e := range entries {
		values = append(values, rowValues(e))
	}
	start := fmt.Sprintf("%s!A1", quoteSheet(c.sheetName))
	_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, start, &gsheet.ValueRange{Values: values}).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("write %s: %w", c.sheetName, err)
	}

	slog.InfoContext(ctx, "Replaced mirror sheet", "sheet", c.sheetName, "entries", len(entries))
	return nil
}

func (c *Client) readIndex(ctx context.Context) (rowIndex, error) {
	rng := fmt.Sprintf("%s!A:A", quoteSheet(c.sheetName))
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	return parseIndex(resp.Values), nil
}

// resolveSheetID looks up the numeric ID of the mirror sheet once.
func (c *Client) resolveSheetID(ctx context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sheetID != nil {
		return *c.sheetID, nil
	}

	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("read spreadsheet: %w", err)
	}
	for _, sh := range ss.Sheets {
		if sh.Properties != nil && sh.Properties.Title == c.sheetName {
			id := sh.Properties.SheetId
			c.sheetID = &id
			return id, nil
		}
	}
	return 0, fmt.Errorf("sheet %q not found", c.sheetName)
}
