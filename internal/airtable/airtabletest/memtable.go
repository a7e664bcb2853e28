// Package airtabletest provides an in-memory airtable.Table.
package airtabletest

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	at "github.com/mehanizm/airtable"

	"github.com/dmitrijs2005/esimrouter/internal/airtable"
)

// MemTable is an in-memory airtable.Table. It pages List
// results and enforces the write batch limit like the real API.
type MemTable struct {
	mu       sync.Mutex
	rows     map[string]*at.Record
	order    []string
	nextID   int
	PageSize int
	// AutoNumber, when set, fills this field with an increasing number on create.
	AutoNumber string
	// Writes counts write requests.
	Writes int
}

var _ airtable.Table = (*MemTable)(nil)

func NewMemTable(records ...*at.Record) *MemTable {
	m := &MemTable{rows: map[string]*at.Record{}, PageSize: 100}
	for _, r := range records {
		if r.Fields == nil {
			r.Fields = map[string]any{}
		}
		m.rows[r.ID] = r
		m.order = append(m.order, r.ID)
	}
	return m
}

func (m *MemTable) List(_ context.Context, _ string, offset string) (*at.Records, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	start := 0
	if offset != "" {
		n, err := strconv.Atoi(offset)
		if err != nil {
			return nil, fmt.Errorf("bad offset %q", offset)
		}
		start = n
	}
	end := min(start+m.PageSize, len(m.order))
	out := &at.Records{}
	for _, id := range m.order[start:end] {
		out.Records = append(out.Records, m.rows[id])
	}
	if end < len(m.order) {
		out.Offset = strconv.Itoa(end)
	}
	return out, nil
}

func (m *MemTable) Update(_ context.Context, records []*at.Record) ([]*at.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(records) > airtable.BatchSize {
		return nil, fmt.Errorf("too many records: %d", len(records))
	}
	m.Writes++
	out := make([]*at.Record, 0, len(records))
	for _, r := range records {
		cur, ok := m.rows[r.ID]
		if !ok {
			return nil, fmt.Errorf("record %s not found", r.ID)
		}
		for k, v := range r.Fields {
			cur.Fields[k] = v
		}
		out = append(out, cur)
	}
	return out, nil
}

func (m *MemTable) Create(_ context.Context, records []*at.Record) ([]*at.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(records) > airtable.BatchSize {
		return nil, fmt.Errorf("too many records: %d", len(records))
	}
	m.Writes++
	out := make([]*at.Record, 0, len(records))
	for _, r := range records {
		m.nextID++
		fields := map[string]any{}
		for k, v := range r.Fields {
			fields[k] = v
		}
		if m.AutoNumber != "" {
			fields[m.AutoNumber] = float64(m.nextID)
		}
		rec := &at.Record{
			ID:          fmt.Sprintf("rec%06d", m.nextID),
			Fields:      fields,
			CreatedTime: time.Now().UTC().Format(time.RFC3339),
		}
		m.rows[rec.ID] = rec
		m.order = append(m.order, rec.ID)
		out = append(out, rec)
	}
	return out, nil
}

func (m *MemTable) Delete(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(ids) > airtable.BatchSize {
		return fmt.Errorf("too many records: %d", len(ids))
	}
	m.Writes++
	gone := map[string]bool{}
	for _, id := range ids {
		if _, ok := m.rows[id]; !ok {
			return fmt.Errorf("record %s not found", id)
		}
		delete(m.rows, id)
		gone[id] = true
	}
	kept := m.order[:0]
	for _, id := range m.order {
		if !gone[id] {
			kept = append(kept, id)
		}
	}
	m.order = kept
	return nil
}

// Get returns the stored record with id, or nil.
func (m *MemTable) Get(id string) *at.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[id]
}

// IDs returns the stored record ids in sorted order.
func (m *MemTable) IDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]string(nil), m.order...)
	sort.Strings(out)
	return out
}
