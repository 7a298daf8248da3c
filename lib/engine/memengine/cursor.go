package memengine

import (
	"context"
	"errors"
	"sort"
	"sync/atomic"

	"github.com/ValentinKolb/dQRY/lib/engine"
)

// ErrCursorClosed is returned by the iterator of a closed cursor
var ErrCursorClosed = errors.New("cursor is closed")

// cursor implements engine.Cursor and engine.Iterator over a snapshot of a table
type cursor struct {
	plan     *plan
	rows     []row
	pos      int
	skipped  int
	produced int
	closed   atomic.Bool
}

// newCursor takes a snapshot of the table. Unordered queries are filtered lazily
// while iterating, ordered queries are filtered and sorted up front.
func newCursor(ctx context.Context, p *plan) (*cursor, error) {
	c := &cursor{
		plan: p,
		rows: p.table.snapshot(),
	}

	if len(p.order) == 0 {
		return c, nil
	}

	matched := c.rows[:0]
	for _, r := range c.rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ok, err := c.match(r)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, r)
		}
	}

	var sortErr error
	sort.SliceStable(matched, func(i, j int) bool {
		for _, key := range p.order {
			a, b := matched[i].values[key.column], matched[j].values[key.column]
			cmp, err := compareNullable(a, b)
			if err != nil {
				sortErr = err
				return false
			}
			if cmp == 0 {
				continue
			}
			if key.desc {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
	if sortErr != nil {
		return nil, sortErr
	}

	c.rows = matched
	// rows are already filtered
	c.plan = &plan{
		sql: p.sql, cache: p.cache, table: p.table, typed: p.typed,
		project: p.project, fields: p.fields, offset: p.offset, limit: p.limit,
	}
	return c, nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see engine.Cursor and engine.Iterator)
// --------------------------------------------------------------------------

func (c *cursor) Iterator() engine.Iterator {
	return c
}

func (c *cursor) FieldsMeta() []engine.FieldMeta {
	return c.plan.fields
}

func (c *cursor) Close() error {
	if c.closed.CompareAndSwap(false, true) {
		c.rows = nil
	}
	return nil
}

func (c *cursor) Next(ctx context.Context) (any, bool, error) {
	if c.closed.Load() {
		return nil, false, ErrCursorClosed
	}

	for {
		if c.plan.limit >= 0 && c.produced >= c.plan.limit {
			return nil, false, nil
		}
		if c.pos >= len(c.rows) {
			return nil, false, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, false, err
		}

		r := c.rows[c.pos]
		c.pos++

		ok, err := c.match(r)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			continue
		}
		if c.skipped < c.plan.offset {
			c.skipped++
			continue
		}

		c.produced++
		return c.item(r), true, nil
	}
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// match applies the WHERE clause of the plan
func (c *cursor) match(r row) (bool, error) {
	if c.plan.where == nil {
		return true, nil
	}
	return c.plan.where(r.values)
}

// item converts a row into a result item
func (c *cursor) item(r row) any {
	if c.plan.typed {
		value := make(map[string]any, len(c.plan.table.columns))
		for i, col := range c.plan.table.columns {
			value[col.Name] = r.values[i]
		}
		return engine.Entry{Key: r.key, Value: value}
	}

	out := make([]any, len(c.plan.project))
	for i, idx := range c.plan.project {
		out[i] = r.values[idx]
	}
	return out
}

// compareNullable orders NULL before every other value
func compareNullable(a, b any) (int, error) {
	switch {
	case a == nil && b == nil:
		return 0, nil
	case a == nil:
		return -1, nil
	case b == nil:
		return 1, nil
	default:
		return compareValues(a, b)
	}
}
