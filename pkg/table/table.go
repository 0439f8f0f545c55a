package table

import (
	"fmt"
	"sort"
	"strconv"
)

// Table is an immutable, column-named grid of cells.
type Table struct {
	columns []string
	index   map[string]int
	rows    [][]any
}

// New creates a table from column names and rows. Every row must have
// exactly one cell per column and every cell must be nil, float64, string
// or bool. Integer cells are widened to float64.
func New(columns []string, rows [][]any) (*Table, error) {
	t := &Table{
		columns: append([]string(nil), columns...),
		index:   make(map[string]int, len(columns)),
		rows:    make([][]any, 0, len(rows)),
	}
	for i, name := range columns {
		if _, dup := t.index[name]; dup {
			return nil, fmt.Errorf("duplicate column %q", name)
		}
		t.index[name] = i
	}
	for r, row := range rows {
		if len(row) != len(columns) {
			return nil, fmt.Errorf("row %d has %d cells, want %d", r, len(row), len(columns))
		}
		out := make([]any, len(row))
		for c, cell := range row {
			v, err := normalize(cell)
			if err != nil {
				return nil, fmt.Errorf("row %d, column %q: %w", r, columns[c], err)
			}
			out[c] = v
		}
		t.rows = append(t.rows, out)
	}
	return t, nil
}

// FromRecords builds a table from a list of records. Columns appear in
// first-seen order; keys missing from a record become nil cells. Nested
// values are rendered to their string form.
func FromRecords(records []map[string]any, order []string) (*Table, error) {
	columns := append([]string(nil), order...)
	seen := make(map[string]bool, len(columns))
	for _, c := range columns {
		seen[c] = true
	}
	for _, rec := range records {
		keys := make([]string, 0, len(rec))
		for k := range rec {
			if !seen[k] {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		for _, k := range keys {
			seen[k] = true
			columns = append(columns, k)
		}
	}

	rows := make([][]any, len(records))
	for i, rec := range records {
		row := make([]any, len(columns))
		for c, name := range columns {
			v, err := normalize(rec[name])
			if err != nil {
				v = fmt.Sprint(rec[name])
			}
			row[c] = v
		}
		rows[i] = row
	}
	return New(columns, rows)
}

// normalize coerces a Go value into one of the supported cell types.
func normalize(v any) (any, error) {
	switch x := v.(type) {
	case nil, float64, string, bool:
		return x, nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case float32:
		return float64(x), nil
	case uint:
		return float64(x), nil
	case uint64:
		return float64(x), nil
	default:
		return nil, fmt.Errorf("unsupported cell type %T", v)
	}
}

// Columns returns a copy of the column names.
func (t *Table) Columns() []string {
	return append([]string(nil), t.columns...)
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.rows) }

// Width returns the number of columns.
func (t *Table) Width() int { return len(t.columns) }

// HasColumn reports whether the table has a column with the given name.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Row returns a copy of row i. It panics if i is out of range.
func (t *Table) Row(i int) []any {
	return append([]any(nil), t.rows[i]...)
}

// Cell returns the cell at row i in the named column.
func (t *Table) Cell(i int, column string) (any, error) {
	c, ok := t.index[column]
	if !ok {
		return nil, unknownColumn(column)
	}
	if i < 0 || i >= len(t.rows) {
		return nil, fmt.Errorf("row %d out of range [0, %d)", i, len(t.rows))
	}
	return t.rows[i][c], nil
}

// Record returns row i as a column-name keyed map.
func (t *Table) Record(i int) map[string]any {
	rec := make(map[string]any, len(t.columns))
	for c, name := range t.columns {
		rec[name] = t.rows[i][c]
	}
	return rec
}

// Records returns every row as a column-name keyed map.
func (t *Table) Records() []map[string]any {
	out := make([]map[string]any, len(t.rows))
	for i := range t.rows {
		out[i] = t.Record(i)
	}
	return out
}

// Column returns a copy of the cells of the named column.
func (t *Table) Column(name string) ([]any, error) {
	c, ok := t.index[name]
	if !ok {
		return nil, unknownColumn(name)
	}
	out := make([]any, len(t.rows))
	for i, row := range t.rows {
		out[i] = row[c]
	}
	return out, nil
}

// Numbers returns the non-missing numeric cells of the named column.
// Bool cells count as 0 or 1; string cells are skipped.
func (t *Table) Numbers(name string) ([]float64, error) {
	cells, err := t.Column(name)
	if err != nil {
		return nil, err
	}
	out := make([]float64, 0, len(cells))
	for _, cell := range cells {
		if f, ok := toFloat(cell); ok {
			out = append(out, f)
		}
	}
	return out, nil
}

// IsNumeric reports whether every non-missing cell of the column is a
// number and at least one such cell exists.
func (t *Table) IsNumeric(name string) bool {
	c, ok := t.index[name]
	if !ok {
		return false
	}
	seen := false
	for _, row := range t.rows {
		switch row[c].(type) {
		case nil:
		case float64:
			seen = true
		default:
			return false
		}
	}
	return seen
}

// NumericColumns returns the names of the numeric columns in table order.
func (t *Table) NumericColumns() []string {
	var out []string
	for _, name := range t.columns {
		if t.IsNumeric(name) {
			out = append(out, name)
		}
	}
	return out
}

// String renders the table as markdown.
func (t *Table) String() string {
	return t.Markdown()
}

func unknownColumn(name string) error {
	return fmt.Errorf("unknown column %q", name)
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// FormatCell renders a cell the way tables print it.
func FormatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return "nan"
	case float64:
		return formatFloat(x)
	case bool:
		if x {
			return "True"
		}
		return "False"
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}

func formatFloat(f float64) string {
	if f != f {
		return "nan"
	}
	if f == float64(int64(f)) && f < 1e15 && f > -1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if len(s) > 12 {
		s = strconv.FormatFloat(f, 'g', 6, 64)
	}
	return s
}
