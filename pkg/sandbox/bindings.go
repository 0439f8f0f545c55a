package sandbox

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/dop251/goja"

	"github.com/rhuss/tabula/pkg/table"
)

// bind installs the builtins every fragment can use.
func (s *Sandbox) bind() error {
	vm := s.vm

	s.tableProto = s.newTableProto()

	console := vm.NewObject()
	for _, name := range []string{"log", "info", "warn", "error", "debug"} {
		if err := console.Set(name, s.print); err != nil {
			return err
		}
	}

	plot := vm.NewObject()
	for name, fn := range map[string]func(goja.FunctionCall) goja.Value{
		"bar":     s.plotBar,
		"line":    s.plotLine,
		"scatter": s.plotScatter,
		"hist":    s.plotHist,
	} {
		if err := plot.Set(name, fn); err != nil {
			return err
		}
	}

	globals := []struct {
		name  string
		value any
	}{
		{"print", s.print},
		{"console", console},
		{"len", s.length},
		{"DataFrame", s.dataFrame},
		{"readTable", s.readTable},
		{"writeFile", s.writeFile},
		{"readFile", s.readFile},
		{"PLOT_PATH", s.plotPath},
		{"plot", plot},
		{exposeFunc, s.exposeGlobal},
	}
	for _, g := range globals {
		if err := vm.Set(g.name, g.value); err != nil {
			return fmt.Errorf("%s: %w", g.name, err)
		}
	}
	return nil
}

// print writes its arguments separated by spaces and ends the line.
func (s *Sandbox) print(call goja.FunctionCall) goja.Value {
	parts := make([]string, len(call.Arguments))
	for i, arg := range call.Arguments {
		parts[i] = s.format(arg)
	}
	s.out.WriteString(strings.Join(parts, " ") + "\n")
	return goja.Undefined()
}

// format renders a value for printing. Tables print as markdown, arrays
// and plain objects as JSON, everything else in its string form.
func (s *Sandbox) format(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) {
		return "undefined"
	}
	if goja.IsNull(v) {
		return "null"
	}
	if t, ok := s.unwrapTable(v); ok {
		return t.Markdown()
	}
	obj, ok := v.(*goja.Object)
	if !ok {
		return v.String()
	}
	if _, fn := goja.AssertFunction(v); fn {
		return v.String()
	}
	switch obj.ClassName() {
	case "Array", "Object":
		out, err := s.stringify(goja.Undefined(), v)
		if err == nil && !goja.IsUndefined(out) {
			return out.String()
		}
	}
	return v.String()
}

// length mirrors the len builtin: rows of a table, elements of an array,
// characters of a string, keys of an object.
func (s *Sandbox) length(call goja.FunctionCall) goja.Value {
	v := call.Argument(0)
	if t, ok := s.unwrapTable(v); ok {
		return s.vm.ToValue(t.Len())
	}
	switch x := v.Export().(type) {
	case string:
		return s.vm.ToValue(utf8.RuneCountInString(x))
	case []any:
		return s.vm.ToValue(len(x))
	}
	if obj, ok := v.(*goja.Object); ok {
		if l := obj.Get("length"); l != nil && !goja.IsUndefined(l) {
			return l
		}
		return s.vm.ToValue(len(obj.Keys()))
	}
	panic(s.vm.NewTypeError("object of type %s has no len()", typeOf(v)))
}

// dataFrame builds a table from an array of records or from an object
// mapping column names to equally long arrays.
func (s *Sandbox) dataFrame(call goja.FunctionCall) goja.Value {
	arg := call.Argument(0)
	obj, ok := arg.(*goja.Object)
	if !ok {
		panic(s.vm.NewTypeError("DataFrame() expects an array of rows or an object of columns"))
	}

	var (
		t   *table.Table
		err error
	)
	if obj.ClassName() == "Array" {
		t, err = s.tableFromRows(obj)
	} else {
		t, err = s.tableFromColumns(obj)
	}
	if err != nil {
		s.throw(err)
	}
	return s.wrapTable(t)
}

func (s *Sandbox) tableFromRows(arr *goja.Object) (*table.Table, error) {
	n := int(arr.Get("length").ToInteger())
	records := make([]map[string]any, 0, n)
	var order []string
	seen := make(map[string]bool)
	for i := 0; i < n; i++ {
		row, ok := arr.Get(fmt.Sprint(i)).(*goja.Object)
		if !ok {
			return nil, fmt.Errorf("row %d is not an object", i)
		}
		rec := make(map[string]any)
		for _, k := range row.Keys() {
			if !seen[k] {
				seen[k] = true
				order = append(order, k)
			}
			rec[k] = exportCell(row.Get(k))
		}
		records = append(records, rec)
	}
	return table.FromRecords(records, order)
}

func (s *Sandbox) tableFromColumns(obj *goja.Object) (*table.Table, error) {
	names := obj.Keys()
	cols := make([][]any, len(names))
	rows := -1
	for i, name := range names {
		values, ok := obj.Get(name).Export().([]any)
		if !ok {
			return nil, fmt.Errorf("column %q is not an array", name)
		}
		if rows >= 0 && len(values) != rows {
			return nil, errors.New("all columns must have the same length")
		}
		rows = len(values)
		cols[i] = values
	}
	if rows < 0 {
		rows = 0
	}
	grid := make([][]any, rows)
	for r := range grid {
		grid[r] = make([]any, len(names))
		for c := range names {
			grid[r][c] = exportCell(s.vm.ToValue(cols[c][r]))
		}
	}
	return table.New(names, grid)
}

func (s *Sandbox) readTable(call goja.FunctionCall) goja.Value {
	path := call.Argument(0).String()
	t, err := table.ReadFile(s.resolve(path))
	if err != nil {
		s.throw(err)
	}
	return s.wrapTable(t)
}

func (s *Sandbox) writeFile(call goja.FunctionCall) goja.Value {
	path := s.resolve(call.Argument(0).String())
	var text string
	if t, ok := s.unwrapTable(call.Argument(1)); ok {
		text = t.Markdown()
	} else {
		text = call.Argument(1).String()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		s.throw(err)
	}
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		s.throw(err)
	}
	return goja.Undefined()
}

func (s *Sandbox) readFile(call goja.FunctionCall) goja.Value {
	data, err := os.ReadFile(s.resolve(call.Argument(0).String()))
	if err != nil {
		s.throw(err)
	}
	return s.vm.ToValue(string(data))
}

// throw raises err inside the runtime as a catchable exception.
func (s *Sandbox) throw(err error) {
	var exc *goja.Exception
	if errors.As(err, &exc) {
		panic(exc)
	}
	panic(s.vm.NewGoError(err))
}

// exportCell converts a runtime value into a table cell.
func exportCell(v goja.Value) any {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	switch x := v.Export().(type) {
	case int64:
		return float64(x)
	case float64, string, bool:
		return x
	default:
		return v.String()
	}
}

func typeOf(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) {
		return "undefined"
	}
	if goja.IsNull(v) {
		return "null"
	}
	return fmt.Sprintf("%T", v.Export())
}
