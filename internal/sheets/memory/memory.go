// Package memory is an in-process EntryMirror used by the memory backend
// and by tests.
package memory

import (
	"context"
	"sync"

	"dindin/internal/core"
	ports "dindin/internal/sheets"
)

// Mirror keeps rows in insertion order, like appended sheet rows.
type Mirror struct {
	mu    sync.Mutex
	order []string
	rows  map[string][]string
}

var _ ports.EntryMirror = (*Mirror)(nil)

func New() *Mirror {
	return &Mirror{rows: make(map[string][]string)}
}

func (m *Mirror) UpsertEntries(_ context.Context, entries []core.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		if _, ok := m.rows[e.ID]; !ok {
			m.order = append(m.order, e.ID)
		}
		m.rows[e.ID] = ports.Row(e)
	}
	return nil
}

func (m *Mirror) DeleteEntries(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	gone := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := m.rows[id]; ok {
			delete(m.rows, id)
			gone[id] = struct{}{}
		}
	}
	if len(gone) == 0 {
		return nil
	}
	kept := m.order[:0]
	for _, id := range m.order {
		if _, ok := gone[id]; !ok {
			kept = append(kept, id)
		}
	}
	m.order = kept
	return nil
}

func (m *Mirror) ReplaceAll(ctx context.Context, entries []core.Entry) error {
	m.mu.Lock()
	m.order = nil
	m.rows = make(map[string][]string, len(entries))
	m.mu.Unlock()
	return m.UpsertEntries(ctx, entries)
}

// Rows returns the header followed by a copy of every row.
func (m *Mirror) Rows() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]string, 0, len(m.order)+1)
	out = append(out, append([]string(nil), ports.Header...))
	for _, id := range m.order {
		out = append(out, append([]string(nil), m.rows[id]...))
	}
	return out
}

// Row returns the row of id, if mirrored.
func (m *Mirror) Row(id string) ([]string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, false
	}
	return append([]string(nil), row...), true
}

func (m *Mirror) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.order)
}
