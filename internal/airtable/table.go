// Package airtable adapts Airtable tables to the record-store repositories:
// paged reads from a view, writes in batches of ten, and typed access to
// loosely typed field values.
package airtable

import (
	"context"
	"fmt"

	at "github.com/mehanizm/airtable"
)

// BatchSize is the Airtable limit on records per write request.
const BatchSize = 10

// Table is the subset of table operations the repositories use.
type Table interface {
	List(ctx context.Context, view, offset string) (*at.Records, error)
	Update(ctx context.Context, records []*at.Record) ([]*at.Record, error)
	Create(ctx context.Context, records []*at.Record) ([]*at.Record, error)
	Delete(ctx context.Context, ids []string) error
}

// Client opens tables of one base.
type Client struct {
	api  *at.Client
	base string
}

func NewClient(apiKey, baseID string) *Client {
	return &Client{api: at.NewClient(apiKey), base: baseID}
}

// SetBaseURL points the client at a different API root.
func (c *Client) SetBaseURL(url string) error {
	return c.api.SetBaseURL(url)
}

func (c *Client) Table(name string) Table {
	return &table{t: c.api.GetTable(c.base, name), name: name}
}

type table struct {
	t    *at.Table
	name string
}

func (t *table) List(_ context.Context, view, offset string) (*at.Records, error) {
	q := t.t.GetRecords()
	if view != "" {
		q = q.FromView(view)
	}
	if offset != "" {
		q = q.WithOffset(offset)
	}
	recs, err := q.Do()
	if err != nil {
		return nil, fmt.Errorf("airtable list %s: %w", t.name, err)
	}
	return recs, nil
}

func (t *table) Update(_ context.Context, records []*at.Record) ([]*at.Record, error) {
	out, err := t.t.UpdateRecordsPartial(&at.Records{Records: records})
	if err != nil {
		return nil, fmt.Errorf("airtable update %s: %w", t.name, err)
	}
	return out.Records, nil
}

func (t *table) Create(_ context.Context, records []*at.Record) ([]*at.Record, error) {
	out, err := t.t.AddRecords(&at.Records{Records: records})
	if err != nil {
		return nil, fmt.Errorf("airtable create %s: %w", t.name, err)
	}
	return out.Records, nil
}

func (t *table) Delete(_ context.Context, ids []string) error {
	if _, err := t.t.DeleteRecords(ids); err != nil {
		return fmt.Errorf("airtable delete %s: %w", t.name, err)
	}
	return nil
}

// All reads every record of view, following offsets.
func All(ctx context.Context, t Table, view string) ([]*at.Record, error) {
	var out []*at.Record
	offset := ""
	for {
		page, err := t.List(ctx, view, offset)
		if err != nil {
			return nil, err
		}
		out = append(out, page.Records...)
		if page.Offset == "" {
			return out, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		offset = page.Offset
	}
}

// Chunks calls fn with consecutive slices of at most BatchSize items.
func Chunks[T any](items []T, fn func(batch []T) error) error {
	for i := 0; i < len(items); i += BatchSize {
		if err := fn(items[i:min(i+BatchSize, len(items))]); err != nil {
			return err
		}
	}
	return nil
}
