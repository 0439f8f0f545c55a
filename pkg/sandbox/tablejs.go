package sandbox

import (
	"github.com/dop251/goja"

	"github.com/rhuss/tabula/pkg/table"
)

// tableKey holds the Go table behind a runtime table object.
const tableKey = "__table"

// wrapTable exposes t to fragments as an object sharing the table
// prototype.
func (s *Sandbox) wrapTable(t *table.Table) *goja.Object {
	obj := s.vm.NewObject()
	_ = obj.SetPrototype(s.tableProto)
	_ = obj.DefineDataProperty(tableKey, s.vm.ToValue(t), goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_FALSE)
	_ = obj.Set("columns", s.stringArray(t.Columns()))
	_ = obj.Set("shape", s.vm.NewArray(t.Len(), t.Width()))
	_ = obj.Set("length", t.Len())
	return obj
}

// unwrapTable returns the table behind v, if any.
func (s *Sandbox) unwrapTable(v goja.Value) (*table.Table, bool) {
	obj, ok := v.(*goja.Object)
	if !ok {
		return nil, false
	}
	inner := obj.Get(tableKey)
	if inner == nil {
		return nil, false
	}
	t, ok := inner.Export().(*table.Table)
	return t, ok
}

// newTableProto builds the prototype carrying the table methods. Methods
// read their table from this.
func (s *Sandbox) newTableProto() *goja.Object {
	proto := s.vm.NewObject()
	method := func(name string, fn func(t *table.Table, call goja.FunctionCall) goja.Value) {
		_ = proto.Set(name, func(call goja.FunctionCall) goja.Value {
			t, ok := s.unwrapTable(call.This)
			if !ok {
				panic(s.vm.NewTypeError("%s called on a non-table value", name))
			}
			return fn(t, call)
		})
	}

	method("head", func(t *table.Table, call goja.FunctionCall) goja.Value {
		return s.wrapTable(t.Head(s.intArg(call, 0, 5)))
	})
	method("tail", func(t *table.Table, call goja.FunctionCall) goja.Value {
		return s.wrapTable(t.Tail(s.intArg(call, 0, 5)))
	})
	method("rows", func(t *table.Table, call goja.FunctionCall) goja.Value {
		items := make([]any, t.Len())
		for i := range items {
			items[i] = s.record(t, i)
		}
		return s.vm.NewArray(items...)
	})
	method("column", func(t *table.Table, call goja.FunctionCall) goja.Value {
		cells, err := t.Column(call.Argument(0).String())
		if err != nil {
			s.throw(err)
		}
		return s.cells(cells)
	})
	method("select", func(t *table.Table, call goja.FunctionCall) goja.Value {
		names := make([]string, 0, len(call.Arguments))
		for _, arg := range call.Arguments {
			if list, ok := arg.Export().([]any); ok {
				for _, n := range list {
					names = append(names, s.vm.ToValue(n).String())
				}
				continue
			}
			names = append(names, arg.String())
		}
		out, err := t.Select(names...)
		if err != nil {
			s.throw(err)
		}
		return s.wrapTable(out)
	})
	method("filter", func(t *table.Table, call goja.FunctionCall) goja.Value {
		fn, ok := goja.AssertFunction(call.Argument(0))
		if !ok {
			panic(s.vm.NewTypeError("filter() expects a function"))
		}
		out, err := t.Filter(func(i int) (bool, error) {
			v, err := fn(goja.Undefined(), s.record(t, i), s.vm.ToValue(i))
			if err != nil {
				return false, err
			}
			return v.ToBoolean(), nil
		})
		if err != nil {
			s.throw(err)
		}
		return s.wrapTable(out)
	})
	method("sortBy", func(t *table.Table, call goja.FunctionCall) goja.Value {
		out, err := t.SortBy(call.Argument(0).String(), call.Argument(1).ToBoolean())
		if err != nil {
			s.throw(err)
		}
		return s.wrapTable(out)
	})
	method("groupBy", func(t *table.Table, call goja.FunctionCall) goja.Value {
		column, agg := s.stringArg(call, 1, ""), s.stringArg(call, 2, "")
		if agg == "" {
			agg = "sum"
			if column == "" {
				agg = "count"
			}
		}
		out, err := t.GroupBy(call.Argument(0).String(), column, agg)
		if err != nil {
			s.throw(err)
		}
		return s.wrapTable(out)
	})
	method("describe", func(t *table.Table, call goja.FunctionCall) goja.Value {
		return s.wrapTable(t.Describe())
	})
	method("missing", func(t *table.Table, call goja.FunctionCall) goja.Value {
		return s.wrapTable(t.Missing())
	})
	method("valueCounts", func(t *table.Table, call goja.FunctionCall) goja.Value {
		out, err := t.ValueCounts(call.Argument(0).String())
		if err != nil {
			s.throw(err)
		}
		return s.wrapTable(out)
	})
	method("unique", func(t *table.Table, call goja.FunctionCall) goja.Value {
		values, err := t.Unique(call.Argument(0).String())
		if err != nil {
			s.throw(err)
		}
		return s.cells(values)
	})
	for _, agg := range []string{"sum", "mean", "min", "max", "median", "std", "count"} {
		method(agg, func(t *table.Table, call goja.FunctionCall) goja.Value {
			v, err := t.Aggregate(call.Argument(0).String(), agg)
			if err != nil {
				s.throw(err)
			}
			return s.cell(v)
		})
	}
	method("corr", func(t *table.Table, call goja.FunctionCall) goja.Value {
		return s.wrapTable(t.Corr())
	})
	method("toMarkdown", func(t *table.Table, call goja.FunctionCall) goja.Value {
		return s.vm.ToValue(t.Markdown())
	})
	method("toString", func(t *table.Table, call goja.FunctionCall) goja.Value {
		return s.vm.ToValue(t.Markdown())
	})
	return proto
}

// record converts row i into a plain object with columns in table order.
func (s *Sandbox) record(t *table.Table, i int) *goja.Object {
	obj := s.vm.NewObject()
	cols := t.Columns()
	row := t.Row(i)
	for c, name := range cols {
		_ = obj.Set(name, s.cell(row[c]))
	}
	return obj
}

func (s *Sandbox) cell(v any) goja.Value {
	if v == nil {
		return goja.Null()
	}
	return s.vm.ToValue(v)
}

func (s *Sandbox) cells(values []any) *goja.Object {
	items := make([]any, len(values))
	for i, v := range values {
		items[i] = s.cell(v)
	}
	return s.vm.NewArray(items...)
}

func (s *Sandbox) stringArray(values []string) *goja.Object {
	items := make([]any, len(values))
	for i, v := range values {
		items[i] = v
	}
	return s.vm.NewArray(items...)
}

func (s *Sandbox) intArg(call goja.FunctionCall, i int, def int) int {
	v := call.Argument(i)
	if goja.IsUndefined(v) || goja.IsNull(v) {
		return def
	}
	return int(v.ToInteger())
}

func (s *Sandbox) stringArg(call goja.FunctionCall, i int, def string) string {
	v := call.Argument(i)
	if goja.IsUndefined(v) || goja.IsNull(v) {
		return def
	}
	return v.String()
}
