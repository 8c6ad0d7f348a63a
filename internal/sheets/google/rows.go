package google

import (
	"fmt"
	"sort"
	"strings"

	gsheet "google.golang.org/api/sheets/v4"

	"dindin/internal/core"
	ports "dindin/internal/sheets"
)

// lastColumn is the column of the final Header field.
var lastColumn = string(rune('A' + len(ports.Header) - 1))

// rowIndex maps entry IDs to 1-based sheet row numbers.
type rowIndex map[string]int

// parseIndex reads the ID column. Row 1 is the header; blank cells are
// skipped.
func parseIndex(values [][]interface{}) rowIndex {
	idx := make(rowIndex, len(values))
	for i, row := range values {
		if i == 0 || len(row) == 0 {
			continue
		}
		id := strings.TrimSpace(fmt.Sprint(row[0]))
		if id == "" {
			continue
		}
		idx[id] = i + 1
	}
	return idx
}

func rowValues(e core.Entry) []interface{} {
	return toValues(ports.Row(e))
}

func toValues(cells []string) []interface{} {
	out := make([]interface{}, len(cells))
	for i, c := range cells {
		out[i] = c
	}
	return out
}

func rowRange(sheet string, row int) string {
	return fmt.Sprintf("%s!A%d:%s%d", quoteSheet(sheet), row, lastColumn, row)
}

func columnsRange(sheet string) string {
	return fmt.Sprintf("%s!A:%s", quoteSheet(sheet), lastColumn)
}

// quoteSheet quotes sheet names that A1 notation would misread.
func quoteSheet(name string) string {
	if strings.ContainsAny(name, " '!") {
		return "'" + strings.ReplaceAll(name, "'", "''") + "'"
	}
	return name
}

// deleteRequests removes rows bottom-up so earlier deletions do not shift
// the rows still to delete.
func deleteRequests(sheetID int64, rows []int) []*gsheet.Request {
	sorted := append([]int(nil), rows...)
	sort.Sort(sort.Reverse(sort.IntSlice(sorted)))

	reqs := make([]*gsheet.Request, 0, len(sorted))
	for _, r := range sorted {
		reqs = append(reqs, &gsheet.Request{
			DeleteDimension: &gsheet.DeleteDimensionRequest{
				Range: &gsheet.DimensionRange{
					SheetId:    sheetID,
					Dimension:  "ROWS",
					StartIndex: int64(r - 1),
					EndIndex:   int64(r),
				},
			},
		})
	}
	return reqs
}

// splitUpserts separates entries already in the sheet from new ones.
func splitUpserts(idx rowIndex, entries []core.Entry, sheet string) ([]*gsheet.ValueRange, [][]interface{}) {
	var updates []*gsheet.ValueRange
	var appends [][]interface{}
	for _, e := range entries {
		if row, ok := idx[e.ID]; ok {
			updates = append(updates, &gsheet.ValueRange{
				Range:  rowRange(sheet, row),
				Values: [][]interface{}{rowValues(e)},
			})
			continue
		}
		appends = append(appends, rowValues(e))
	}
	return updates, appends
}
