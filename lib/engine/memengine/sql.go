package memengine

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/ValentinKolb/dQRY/lib/engine"
	"github.com/xwb1989/sqlparser"
)

// --------------------------------------------------------------------------
// Query Plan
// --------------------------------------------------------------------------

// predicate evaluates a boolean expression against a row
type predicate func(values []any) (bool, error)

// operand evaluates a scalar expression against a row
type operand func(values []any) (any, error)

// orderKey is a single ORDER BY column
type orderKey struct {
	column int
	desc   bool
}

// plan is a compiled query against a single table
type plan struct {
	sql     string
	cache   string
	table   *Table
	typed   bool
	project []int // column indexes of the result rows (nil for typed queries)
	fields  []engine.FieldMeta
	where   predicate // nil means all rows match
	order   []orderKey
	offset  int
	limit   int // negative means no limit
}

// compile parses the query and builds a plan for it
func compile(c *Cache, q engine.Query) (*plan, error) {
	sql := strings.TrimSpace(q.SQL)
	typed := !q.IsFieldsQuery()

	// typed queries only carry the condition, build the full statement
	if typed {
		sql = typedStatement(q.TypeName, sql)
	}
	if sql == "" {
		return nil, fmt.Errorf("query must not be empty")
	}

	stmt, err := sqlparser.Parse(sql)
	if err != nil {
		return nil, fmt.Errorf("failed to parse query: %w", err)
	}

	sel, ok := stmt.(*sqlparser.Select)
	if !ok {
		return nil, fmt.Errorf("unsupported statement %T: only SELECT is supported", stmt)
	}
	if len(sel.GroupBy) > 0 || sel.Having != nil {
		return nil, fmt.Errorf("GROUP BY and HAVING are not supported")
	}

	// resolve the table
	tableName, err := fromTable(sel)
	if err != nil {
		return nil, err
	}
	if typed && !strings.EqualFold(tableName, q.TypeName) {
		return nil, fmt.Errorf("typed query for %s selects from %s", q.TypeName, tableName)
	}
	table, ok := c.Table(tableName)
	if !ok {
		return nil, fmt.Errorf("table %s not found in cache %s", tableName, c.name)
	}

	p := &plan{
		sql:   sql,
		cache: c.name,
		table: table,
		typed: typed,
		limit: -1,
	}

	b := &binder{table: table, args: normalizeAll(q.Args)}

	// projection
	if typed {
		p.fields = fieldsMeta(c.name, table, nil, nil)
	} else if err := b.project(p, sel.SelectExprs); err != nil {
		return nil, err
	}

	// filter
	if sel.Where != nil && sel.Where.Expr != nil {
		if p.where, err = b.predicate(sel.Where.Expr); err != nil {
			return nil, err
		}
	}

	// ordering
	for _, o := range sel.OrderBy {
		col, ok := o.Expr.(*sqlparser.ColName)
		if !ok {
			return nil, fmt.Errorf("unsupported ORDER BY expression %s", sqlparser.String(o.Expr))
		}
		idx, ok := table.columnIndex(col.Name.String())
		if !ok {
			return nil, fmt.Errorf("unknown column %s in ORDER BY", col.Name.String())
		}
		p.order = append(p.order, orderKey{column: idx, desc: o.Direction == sqlparser.DescScr})
	}

	// limit and offset
	if sel.Limit != nil {
		if sel.Limit.Rowcount != nil {
			if p.limit, err = b.count(sel.Limit.Rowcount); err != nil {
				return nil, err
			}
		}
		if sel.Limit.Offset != nil {
			if p.offset, err = b.count(sel.Limit.Offset); err != nil {
				return nil, err
			}
		}
	}

	if len(b.args) > b.maxArg {
		log.Debugf("query binds %d args but only uses %d", len(b.args), b.maxArg)
	}

	return p, nil
}

// typedStatement builds the full statement of a typed query. A clause that is
// a complete SELECT is kept, compile checks that it reads the typed table.
func typedStatement(typeName, clause string) string {
	upper := strings.ToUpper(clause)
	switch {
	case strings.HasPrefix(upper, "SELECT"):
		return clause
	case clause == "":
		return "SELECT * FROM " + typeName
	case strings.HasPrefix(upper, "ORDER BY"), strings.HasPrefix(upper, "LIMIT"):
		return "SELECT * FROM " + typeName + " " + clause
	default:
		return "SELECT * FROM " + typeName + " WHERE " + clause
	}
}

// fromTable returns the name of the single table of the FROM clause
func fromTable(sel *sqlparser.Select) (string, error) {
	if len(sel.From) != 1 {
		return "", fmt.Errorf("SELECT supports single table queries only")
	}
	aliased, ok := sel.From[0].(*sqlparser.AliasedTableExpr)
	if !ok {
		return "", fmt.Errorf("unsupported FROM clause: %T", sel.From[0])
	}
	name, ok := aliased.Expr.(sqlparser.TableName)
	if !ok {
		return "", fmt.Errorf("unsupported table expression: %T", aliased.Expr)
	}
	return name.Name.String(), nil
}

// fieldsMeta builds the field metadata for the given column indexes (nil = all columns)
func fieldsMeta(cache string, t *Table, columns []int, aliases []string) []engine.FieldMeta {
	if columns == nil {
		columns = make([]int, len(t.columns))
		for i := range t.columns {
			columns[i] = i
		}
	}
	fields := make([]engine.FieldMeta, len(columns))
	for i, idx := range columns {
		col := t.columns[idx]
		name := col.Name
		if aliases != nil && aliases[i] != "" {
			name = aliases[i]
		}
		typeName := col.Type
		if typeName == "" {
			typeName = "any"
		}
		fields[i] = engine.FieldMeta{
			SchemaName:    cache,
			TypeName:      t.name,
			FieldName:     name,
			FieldTypeName: typeName,
		}
	}
	return fields
}

// --------------------------------------------------------------------------
// Expression Binding
// --------------------------------------------------------------------------

// binder compiles parsed expressions against a table and bound arguments
type binder struct {
	table  *Table
	args   []any
	maxArg int
}

// project resolves the select list
func (b *binder) project(p *plan, exprs sqlparser.SelectExprs) error {
	var columns []int
	var aliases []string
	for _, expr := range exprs {
		switch e := expr.(type) {
		case *sqlparser.StarExpr:
			for i := range b.table.columns {
				columns = append(columns, i)
				aliases = append(aliases, "")
			}
		case *sqlparser.AliasedExpr:
			col, ok := e.Expr.(*sqlparser.ColName)
			if !ok {
				return fmt.Errorf("unsupported SELECT expression %s", sqlparser.String(e.Expr))
			}
			idx, ok := b.table.columnIndex(col.Name.String())
			if !ok {
				return fmt.Errorf("unknown column %s", col.Name.String())
			}
			columns = append(columns, idx)
			if e.As.IsEmpty() {
				aliases = append(aliases, "")
			} else {
				aliases = append(aliases, e.As.String())
			}
		default:
			return fmt.Errorf("unsupported SELECT expression: %T", expr)
		}
	}
	p.project = columns
	p.fields = fieldsMeta(p.cache, b.table, columns, aliases)
	return nil
}

// predicate compiles a boolean expression
func (b *binder) predicate(expr sqlparser.Expr) (predicate, error) {
	switch e := expr.(type) {
	case *sqlparser.ParenExpr:
		return b.predicate(e.Expr)

	case *sqlparser.AndExpr:
		left, err := b.predicate(e.Left)
		if err != nil {
			return nil, err
		}
		right, err := b.predicate(e.Right)
		if err != nil {
			return nil, err
		}
		return func(values []any) (bool, error) {
			ok, err := left(values)
			if err != nil || !ok {
				return false, err
			}
			return right(values)
		}, nil

	case *sqlparser.OrExpr:
		left, err := b.predicate(e.Left)
		if err != nil {
			return nil, err
		}
		right, err := b.predicate(e.Right)
		if err != nil {
			return nil, err
		}
		return func(values []any) (bool, error) {
			ok, err := left(values)
			if err != nil || ok {
				return ok, err
			}
			return right(values)
		}, nil

	case *sqlparser.NotExpr:
		inner, err := b.predicate(e.Expr)
		if err != nil {
			return nil, err
		}
		return func(values []any) (bool, error) {
			ok, err := inner(values)
			return !ok && err == nil, err
		}, nil

	case *sqlparser.IsExpr:
		inner, err := b.operand(e.Expr)
		if err != nil {
			return nil, err
		}
		var wantNull bool
		switch e.Operator {
		case sqlparser.IsNullStr:
			wantNull = true
		case sqlparser.IsNotNullStr:
			wantNull = false
		default:
			return nil, fmt.Errorf("unsupported operator %s", e.Operator)
		}
		return func(values []any) (bool, error) {
			v, err := inner(values)
			if err != nil {
				return false, err
			}
			return (v == nil) == wantNull, nil
		}, nil

	case *sqlparser.ComparisonExpr:
		return b.comparison(e)

	case sqlparser.BoolVal:
		return func([]any) (bool, error) { return bool(e), nil }, nil

	default:
		return nil, fmt.Errorf("unsupported WHERE expression %s", sqlparser.String(expr))
	}
}

// comparison compiles a comparison expression
func (b *binder) comparison(e *sqlparser.ComparisonExpr) (predicate, error) {
	var accept func(c int) bool
	switch e.Operator {
	case sqlparser.EqualStr:
		accept = func(c int) bool { return c == 0 }
	case sqlparser.NotEqualStr:
		accept = func(c int) bool { return c != 0 }
	case sqlparser.LessThanStr:
		accept = func(c int) bool { return c < 0 }
	case sqlparser.LessEqualStr:
		accept = func(c int) bool { return c <= 0 }
	case sqlparser.GreaterThanStr:
		accept = func(c int) bool { return c > 0 }
	case sqlparser.GreaterEqualStr:
		accept = func(c int) bool { return c >= 0 }
	default:
		return nil, fmt.Errorf("unsupported operator %s", e.Operator)
	}

	left, err := b.operand(e.Left)
	if err != nil {
		return nil, err
	}
	right, err := b.operand(e.Right)
	if err != nil {
		return nil, err
	}

	return func(values []any) (bool, error) {
		l, err := left(values)
		if err != nil {
			return false, err
		}
		r, err := right(values)
		if err != nil {
			return false, err
		}
		// comparisons with NULL are never true
		if l == nil || r == nil {
			return false, nil
		}
		c, err := compareValues(l, r)
		if err != nil {
			return false, err
		}
		return accept(c), nil
	}, nil
}

// operand compiles a scalar expression
func (b *binder) operand(expr sqlparser.Expr) (operand, error) {
	switch e := expr.(type) {
	case *sqlparser.ParenExpr:
		return b.operand(e.Expr)

	case *sqlparser.ColName:
		idx, ok := b.table.columnIndex(e.Name.String())
		if !ok {
			return nil, fmt.Errorf("unknown column %s", e.Name.String())
		}
		return func(values []any) (any, error) { return values[idx], nil }, nil

	case *sqlparser.NullVal:
		return func([]any) (any, error) { return nil, nil }, nil

	case sqlparser.BoolVal:
		return func([]any) (any, error) { return bool(e), nil }, nil

	case *sqlparser.UnaryExpr:
		if e.Operator != sqlparser.UMinusStr {
			return nil, fmt.Errorf("unsupported unary operator %s", e.Operator)
		}
		inner, err := b.operand(e.Expr)
		if err != nil {
			return nil, err
		}
		return func(values []any) (any, error) {
			v, err := inner(values)
			if err != nil || v == nil {
				return nil, err
			}
			f, ok := v.(float64)
			if !ok {
				return nil, fmt.Errorf("cannot negate %T", v)
			}
			return -f, nil
		}, nil

	case *sqlparser.SQLVal:
		v, err := b.literal(e)
		if err != nil {
			return nil, err
		}
		return func([]any) (any, error) { return v, nil }, nil

	default:
		return nil, fmt.Errorf("unsupported expression %s", sqlparser.String(expr))
	}
}

// literal resolves a literal value or a bound argument
func (b *binder) literal(v *sqlparser.SQLVal) (any, error) {
	switch v.Type {
	case sqlparser.StrVal:
		return string(v.Val), nil
	case sqlparser.IntVal, sqlparser.FloatVal:
		f, err := strconv.ParseFloat(string(v.Val), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %s: %w", v.Val, err)
		}
		return f, nil
	case sqlparser.ValArg:
		// positional placeholders are numbered :v1, :v2, ...
		name := string(v.Val)
		n, err := strconv.Atoi(strings.TrimPrefix(name, ":v"))
		if err != nil || n < 1 {
			return nil, fmt.Errorf("unsupported bind variable %s", name)
		}
		if n > len(b.args) {
			return nil, fmt.Errorf("missing argument %d (got %d arguments)", n, len(b.args))
		}
		if n > b.maxArg {
			b.maxArg = n
		}
		return b.args[n-1], nil
	default:
		return nil, fmt.Errorf("unsupported literal %s", sqlparser.String(v))
	}
}

// count resolves a LIMIT or OFFSET value
func (b *binder) count(expr sqlparser.Expr) (int, error) {
	val, ok := expr.(*sqlparser.SQLVal)
	if !ok {
		return 0, fmt.Errorf("unsupported LIMIT expression %s", sqlparser.String(expr))
	}
	v, err := b.literal(val)
	if err != nil {
		return 0, err
	}
	f, ok := v.(float64)
	if !ok || f < 0 || f != float64(int(f)) {
		return 0, fmt.Errorf("LIMIT and OFFSET must be non-negative integers, got %v", v)
	}
	return int(f), nil
}

// --------------------------------------------------------------------------
// Value Helpers
// --------------------------------------------------------------------------

// normalize converts numeric values to float64 so that values from JSON,
// literals and Go callers compare consistently
func normalize(v any) any {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int8:
		return float64(n)
	case int16:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case uint:
		return float64(n)
	case uint8:
		return float64(n)
	case uint16:
		return float64(n)
	case uint32:
		return float64(n)
	case uint64:
		return float64(n)
	case float32:
		return float64(n)
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return f
		}
		return n.String()
	default:
		return v
	}
}

func normalizeAll(values []any) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = normalize(v)
	}
	return out
}

// compareValues compares two non-nil values. Numbers compare numerically, strings
// lexically and booleans false < true. A string is compared to a number if it parses as one.
func compareValues(a, b any) (int, error) {
	switch x := a.(type) {
	case float64:
		switch y := b.(type) {
		case float64:
			return compareFloats(x, y), nil
		case string:
			if f, err := strconv.ParseFloat(y, 64); err == nil {
				return compareFloats(x, f), nil
			}
		}
	case string:
		switch y := b.(type) {
		case string:
			return strings.Compare(x, y), nil
		case float64:
			if f, err := strconv.ParseFloat(x, 64); err == nil {
				return compareFloats(f, y), nil
			}
		}
	case bool:
		if y, ok := b.(bool); ok {
			switch {
			case x == y:
				return 0, nil
			case !x:
				return -1, nil
			default:
				return 1, nil
			}
		}
	}
	return 0, fmt.Errorf("cannot compare %T with %T", a, b)
}

func compareFloats(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
