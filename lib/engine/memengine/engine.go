package memengine

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/ValentinKolb/dQRY/lib/engine"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var log = logger.GetLogger("engine")

// --------------------------------------------------------------------------
// Data Types
// --------------------------------------------------------------------------

// Column describes a single column of a table
type Column struct {
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

// row is a single row of a table. rows are immutable once inserted,
// an update replaces the row instead of modifying it.
type row struct {
	key    string
	values []any
}

// Table is an in-memory table with ordered rows
type Table struct {
	name      string
	columns   []Column
	keyColumn int

	mu    sync.RWMutex
	rows  []row
	index map[string]int // row key -> position in rows
}

// Cache is a named collection of tables
type Cache struct {
	name   string
	tables *xsync.MapOf[string, *Table]
}

// Engine is an in-memory engine.Engine implementation
type Engine struct {
	caches *xsync.MapOf[string, *Cache]
}

// NewMemEngine creates a new empty in-memory engine
func NewMemEngine() *Engine {
	return &Engine{
		caches: xsync.NewMapOf[string, *Cache](),
	}
}

// --------------------------------------------------------------------------
// Engine
// --------------------------------------------------------------------------

// Cache implements engine.Engine
func (e *Engine) Cache(name string) (engine.Cache, bool) {
	c, ok := e.caches.Load(name)
	if !ok {
		return nil, false
	}
	return c, true
}

// CreateCache returns the cache with the given name, creating it if it does not exist
func (e *Engine) CreateCache(name string) *Cache {
	c, _ := e.caches.LoadOrCompute(name, func() *Cache {
		return &Cache{
			name:   name,
			tables: xsync.NewMapOf[string, *Table](),
		}
	})
	return c
}

// CacheNames returns the names of all caches
func (e *Engine) CacheNames() []string {
	names := make([]string, 0, e.caches.Size())
	e.caches.Range(func(name string, _ *Cache) bool {
		names = append(names, name)
		return true
	})
	return names
}

// --------------------------------------------------------------------------
// Cache
// --------------------------------------------------------------------------

// Name implements engine.Cache
func (c *Cache) Name() string {
	return c.name
}

// CreateTable creates a new table in the cache. keyColumn names the column whose
// value is used as the row key, if empty the first column is used.
func (c *Cache) CreateTable(name string, columns []Column, keyColumn string) (*Table, error) {
	if name == "" {
		return nil, fmt.Errorf("table name must not be empty")
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("table %s must have at least one column", name)
	}

	keyIdx := 0
	seen := make(map[string]struct{}, len(columns))
	for i, col := range columns {
		lowered := strings.ToLower(col.Name)
		if _, dup := seen[lowered]; dup {
			return nil, fmt.Errorf("duplicate column %s in table %s", col.Name, name)
		}
		seen[lowered] = struct{}{}
		if keyColumn != "" && strings.EqualFold(col.Name, keyColumn) {
			keyIdx = i
		}
	}
	if keyColumn != "" {
		if _, ok := seen[strings.ToLower(keyColumn)]; !ok {
			return nil, fmt.Errorf("key column %s not found in table %s", keyColumn, name)
		}
	}

	t := &Table{
		name:      name,
		columns:   append([]Column(nil), columns...),
		keyColumn: keyIdx,
		index:     make(map[string]int),
	}

	if _, loaded := c.tables.LoadOrStore(strings.ToLower(name), t); loaded {
		return nil, fmt.Errorf("table %s already exists in cache %s", name, c.name)
	}
	return t, nil
}

// Table returns the table with the given name (case-insensitive)
func (c *Cache) Table(name string) (*Table, bool) {
	return c.tables.Load(strings.ToLower(name))
}

// Query implements engine.Cache
func (c *Cache) Query(ctx context.Context, q engine.Query) (engine.Cursor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p, err := compile(c, q)
	if err != nil {
		return nil, err
	}

	log.Debugf("executing query on cache %s: %s", c.name, p.sql)

	return newCursor(ctx, p)
}

// --------------------------------------------------------------------------
// Table
// --------------------------------------------------------------------------

// Name returns the name of the table
func (t *Table) Name() string {
	return t.name
}

// Columns returns a copy of the table columns
func (t *Table) Columns() []Column {
	return append([]Column(nil), t.columns...)
}

// Insert inserts or replaces a row. The values must match the table columns.
func (t *Table) Insert(values ...any) error {
	if len(values) != len(t.columns) {
		return fmt.Errorf("table %s expects %d values, got %d", t.name, len(t.columns), len(values))
	}

	normalized := make([]any, len(values))
	for i, v := range values {
		normalized[i] = normalize(v)
	}

	key := fmt.Sprint(normalized[t.keyColumn])

	t.mu.Lock()
	defer t.mu.Unlock()

	if pos, ok := t.index[key]; ok {
		t.rows[pos] = row{key: key, values: normalized}
		return nil
	}
	t.index[key] = len(t.rows)
	t.rows = append(t.rows, row{key: key, values: normalized})
	return nil
}

// Len returns the number of rows in the table
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rows)
}

// snapshot returns a copy of the current rows
func (t *Table) snapshot() []row {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]row(nil), t.rows...)
}

// columnIndex returns the index of the column with the given name (case-insensitive)
func (t *Table) columnIndex(name string) (int, bool) {
	for i, col := range t.columns {
		if strings.EqualFold(col.Name, name) {
			return i, true
		}
	}
	return 0, false
}

// --------------------------------------------------------------------------
// Seed Loading
// --------------------------------------------------------------------------

// seedFile is the JSON layout accepted by Load
type seedFile struct {
	Caches []struct {
		Name   string `json:"name"`
		Tables []struct {
			Name    string   `json:"name"`
			Key     string   `json:"key"`
			Columns []Column `json:"columns"`
			Rows    [][]any  `json:"rows"`
		} `json:"tables"`
	} `json:"caches"`
}

// Load reads caches, tables and rows from JSON and adds them to the engine.
//
// Format:
//
//	{"caches": [{"name": "people", "tables": [{
//	    "name": "Person", "key": "id",
//	    "columns": [{"name": "id", "type": "int"}, {"name": "name", "type": "string"}],
//	    "rows": [[1, "alice"], [2, "bob"]]
//	}]}]}
func (e *Engine) Load(r io.Reader) error {
	var seed seedFile
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(&seed); err != nil {
		return fmt.Errorf("failed to decode seed data: %w", err)
	}

	for _, sc := range seed.Caches {
		if sc.Name == "" {
			return fmt.Errorf("cache name must not be empty")
		}
		c := e.CreateCache(sc.Name)
		for _, st := range sc.Tables {
			t, err := c.CreateTable(st.Name, st.Columns, st.Key)
			if err != nil {
				return err
			}
			for i, values := range st.Rows {
				if err := t.Insert(values...); err != nil {
					return fmt.Errorf("row %d of table %s: %w", i, st.Name, err)
				}
			}
			log.Infof("loaded table %s.%s with %d rows", sc.Name, st.Name, t.Len())
		}
	}
	return nil
}

// LoadFile reads seed data from the file at path (see Load)
func (e *Engine) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return e.Load(f)
}
