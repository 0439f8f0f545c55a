package table

import (
	"fmt"
	"sort"
	"strings"
)

// Head returns the first n rows. A negative n keeps all but the last |n| rows.
func (t *Table) Head(n int) *Table {
	if n < 0 {
		n = len(t.rows) + n
	}
	n = clamp(n, 0, len(t.rows))
	return t.withRows(t.rows[:n])
}

// Tail returns the last n rows.
func (t *Table) Tail(n int) *Table {
	if n < 0 {
		n = len(t.rows) + n
	}
	n = clamp(n, 0, len(t.rows))
	return t.withRows(t.rows[len(t.rows)-n:])
}

// Select returns a table restricted to the named columns in the given order.
func (t *Table) Select(names ...string) (*Table, error) {
	idx := make([]int, len(names))
	for i, name := range names {
		c, ok := t.index[name]
		if !ok {
			return nil, unknownColumn(name)
		}
		idx[i] = c
	}
	rows := make([][]any, len(t.rows))
	for r, row := range t.rows {
		out := make([]any, len(idx))
		for i, c := range idx {
			out[i] = row[c]
		}
		rows[r] = out
	}
	return New(names, rows)
}

// Filter keeps the rows for which keep returns true. The first error
// returned by keep aborts the filter.
func (t *Table) Filter(keep func(i int) (bool, error)) (*Table, error) {
	var rows [][]any
	for i, row := range t.rows {
		ok, err := keep(i)
		if err != nil {
			return nil, err
		}
		if ok {
			rows = append(rows, row)
		}
	}
	return t.withRows(rows), nil
}

// SortBy orders rows by the named column. The sort is stable and missing
// cells always sort last.
func (t *Table) SortBy(column string, descending bool) (*Table, error) {
	c, ok := t.index[column]
	if !ok {
		return nil, unknownColumn(column)
	}
	rows := append([][]any(nil), t.rows...)
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i][c], rows[j][c]
		if a == nil || b == nil {
			return b == nil && a != nil
		}
		if descending {
			return compare(a, b) > 0
		}
		return compare(a, b) < 0
	})
	return t.withRows(rows), nil
}

// GroupBy groups rows by the key column and aggregates the value column
// with agg. The result has the columns [key, column] ordered by key. When
// agg is "count", column may be empty to count rows per group.
func (t *Table) GroupBy(key, column string, agg string) (*Table, error) {
	k, ok := t.index[key]
	if !ok {
		return nil, unknownColumn(key)
	}
	fn, err := Aggregator(agg)
	if err != nil {
		return nil, err
	}
	v := -1
	if column != "" {
		if v, ok = t.index[column]; !ok {
			return nil, unknownColumn(column)
		}
	} else if agg != "count" {
		return nil, fmt.Errorf("groupBy with %q needs a value column", agg)
	}

	var keys []any
	groups := make(map[any][]float64)
	counts := make(map[any]int)
	for _, row := range t.rows {
		kv := row[k]
		if kv == nil {
			continue
		}
		if _, seen := counts[kv]; !seen {
			keys = append(keys, kv)
		}
		counts[kv]++
		if v >= 0 {
			if f, ok := toFloat(row[v]); ok {
				groups[kv] = append(groups[kv], f)
			}
		}
	}
	sort.SliceStable(keys, func(i, j int) bool { return compare(keys[i], keys[j]) < 0 })

	valueName := column
	if valueName == "" {
		valueName = "count"
	}
	if valueName == key {
		valueName = key + "_" + agg
	}
	rows := make([][]any, len(keys))
	for i, kv := range keys {
		var val any
		if v < 0 {
			val = float64(counts[kv])
		} else {
			val = nanToNil(fn(groups[kv]))
		}
		rows[i] = []any{kv, val}
	}
	return New([]string{key, valueName}, rows)
}

// Describe summarizes the numeric columns with count, mean, std, min,
// quartiles and max. A table without numeric columns is summarized with
// count, unique, top and freq instead.
func (t *Table) Describe() *Table {
	numeric := t.NumericColumns()
	if len(numeric) == 0 {
		return t.describeText()
	}
	stats := []string{"count", "mean", "std", "min", "25%", "50%", "75%", "max"}
	cols := make([][]float64, len(numeric))
	for i, name := range numeric {
		cols[i], _ = t.Numbers(name)
	}
	rows := make([][]any, len(stats))
	for s, stat := range stats {
		row := []any{stat}
		for _, values := range cols {
			var f float64
			switch stat {
			case "count":
				f = float64(len(values))
			case "mean":
				f = Mean(values)
			case "std":
				f = Std(values)
			case "min":
				f = Min(values)
			case "max":
				f = Max(values)
			case "25%":
				f = Quantile(values, 0.25)
			case "50%":
				f = Quantile(values, 0.5)
			case "75%":
				f = Quantile(values, 0.75)
			}
			row = append(row, nanToNil(f))
		}
		rows[s] = row
	}
	tbl, _ := New(append([]string{""}, numeric...), rows)
	return tbl
}

func (t *Table) describeText() *Table {
	stats := []string{"count", "unique", "top", "freq"}
	rows := make([][]any, len(stats))
	for s := range stats {
		rows[s] = []any{stats[s]}
	}
	for c := range t.columns {
		var count int
		freq := make(map[any]int)
		var order []any
		for _, row := range t.rows {
			v := row[c]
			if v == nil {
				continue
			}
			count++
			if freq[v] == 0 {
				order = append(order, v)
			}
			freq[v]++
		}
		var top any
		best := 0
		for _, v := range order {
			if freq[v] > best {
				top, best = v, freq[v]
			}
		}
		rows[0] = append(rows[0], float64(count))
		rows[1] = append(rows[1], float64(len(order)))
		rows[2] = append(rows[2], top)
		rows[3] = append(rows[3], float64(best))
	}
	tbl, _ := New(append([]string{""}, t.columns...), rows)
	return tbl
}

// Missing reports the number of missing cells per column.
func (t *Table) Missing() *Table {
	rows := make([][]any, len(t.columns))
	for c, name := range t.columns {
		n := 0
		for _, row := range t.rows {
			if row[c] == nil {
				n++
			}
		}
		rows[c] = []any{name, float64(n)}
	}
	tbl, _ := New([]string{"column", "missing"}, rows)
	return tbl
}

// ValueCounts counts the occurrences of each distinct non-missing value of
// the column, most frequent first. Ties keep first-seen order.
func (t *Table) ValueCounts(column string) (*Table, error) {
	c, ok := t.index[column]
	if !ok {
		return nil, unknownColumn(column)
	}
	var order []any
	counts := make(map[any]int)
	for _, row := range t.rows {
		v := row[c]
		if v == nil {
			continue
		}
		if counts[v] == 0 {
			order = append(order, v)
		}
		counts[v]++
	}
	sort.SliceStable(order, func(i, j int) bool { return counts[order[i]] > counts[order[j]] })
	rows := make([][]any, len(order))
	for i, v := range order {
		rows[i] = []any{v, float64(counts[v])}
	}
	name := "count"
	if column == name {
		name = "n"
	}
	return New([]string{column, name}, rows)
}

// Unique returns the distinct non-missing values of the column in
// first-seen order.
func (t *Table) Unique(column string) ([]any, error) {
	c, ok := t.index[column]
	if !ok {
		return nil, unknownColumn(column)
	}
	seen := make(map[any]bool)
	var out []any
	for _, row := range t.rows {
		v := row[c]
		if v == nil || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out, nil
}

// Aggregate applies a named aggregation to the numeric cells of a column.
// The result is nil when the aggregation is undefined, e.g. the mean of an
// empty column.
func (t *Table) Aggregate(column, agg string) (any, error) {
	fn, err := Aggregator(agg)
	if err != nil {
		return nil, err
	}
	if agg == "count" {
		cells, err := t.Column(column)
		if err != nil {
			return nil, err
		}
		n := 0
		for _, v := range cells {
			if v != nil {
				n++
			}
		}
		return float64(n), nil
	}
	values, err := t.Numbers(column)
	if err != nil {
		return nil, err
	}
	return nanToNil(fn(values)), nil
}

// Corr returns the pairwise Pearson correlation matrix of the numeric
// columns. Rows where either cell is missing are ignored per pair.
func (t *Table) Corr() *Table {
	numeric := t.NumericColumns()
	rows := make([][]any, len(numeric))
	for i, a := range numeric {
		row := []any{a}
		for _, b := range numeric {
			row = append(row, nanToNil(t.pearson(a, b)))
		}
		rows[i] = row
	}
	tbl, _ := New(append([]string{""}, numeric...), rows)
	return tbl
}

func (t *Table) pearson(a, b string) float64 {
	ca, cb := t.index[a], t.index[b]
	var xs, ys []float64
	for _, row := range t.rows {
		x, ok1 := row[ca].(float64)
		y, ok2 := row[cb].(float64)
		if ok1 && ok2 {
			xs = append(xs, x)
			ys = append(ys, y)
		}
	}
	return Pearson(xs, ys)
}

func (t *Table) withRows(rows [][]any) *Table {
	return &Table{columns: t.columns, index: t.index, rows: rows}
}

// compare orders cells: numbers before bools before strings, then by value.
func compare(a, b any) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return ra - rb
	}
	switch x := a.(type) {
	case float64:
		y := b.(float64)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	case bool:
		y := b.(bool)
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		}
		return 1
	case string:
		return strings.Compare(x, b.(string))
	}
	return 0
}

func rank(v any) int {
	switch v.(type) {
	case float64:
		return 0
	case bool:
		return 1
	case string:
		return 2
	}
	return 3
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
