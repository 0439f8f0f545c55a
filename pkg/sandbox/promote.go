package sandbox

import (
	"strconv"
	"strings"

	"github.com/dop251/goja"
	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/parser"
)

// exposeFunc is the builtin the compiled fragment calls to publish a block
// binding on the global object.
const exposeFunc = "__exposeGlobal"

// compileFragment parses code once and encloses its statements in a block
// so later fragments may redeclare its let, const and class names. Top
// level names the block would hide are exposed on the global object:
// functions on entry, since they are hoisted, and lexical bindings right
// after the statement that declares them, so a later throw keeps them.
func compileFragment(code string) (*goja.Program, error) {
	prog, err := goja.Parse("cell", code)
	if err != nil {
		return nil, err
	}

	var funcs []string
	lexical := make([][]string, len(prog.Body))
	for i, stmt := range prog.Body {
		switch d := stmt.(type) {
		case *ast.FunctionDeclaration:
			if d.Function != nil && d.Function.Name != nil {
				funcs = append(funcs, d.Function.Name.Name.String())
			}
		case *ast.ClassDeclaration:
			if d.Class != nil && d.Class.Name != nil {
				lexical[i] = append(lexical[i], d.Class.Name.Name.String())
			}
		case *ast.LexicalDeclaration:
			for _, binding := range d.List {
				lexical[i] = bindingNames(binding.Target, lexical[i])
			}
		}
	}

	names := funcs
	for _, l := range lexical {
		names = append(names, l...)
	}
	exposes, err := exposeStatements(names)
	if err != nil {
		return nil, err
	}

	list := make([]ast.Statement, 0, len(prog.Body)+len(exposes))
	list = append(list, exposes[:len(funcs)]...)
	exposes = exposes[len(funcs):]
	for i, stmt := range prog.Body {
		list = append(list, stmt)
		n := len(lexical[i])
		list = append(list, exposes[:n]...)
		exposes = exposes[n:]
	}

	block := &ast.BlockStatement{List: list}
	if len(prog.Body) > 0 {
		block.LeftBrace = prog.Body[0].Idx0()
		block.RightBrace = prog.Body[len(prog.Body)-1].Idx1()
	}
	prog.Body = []ast.Statement{block}
	return goja.CompileAST(prog, false)
}

// exposeStatements returns one statement per name, in order, that calls
// exposeFunc with accessors over the binding of that name.
func exposeStatements(names []string) ([]ast.Statement, error) {
	if len(names) == 0 {
		return nil, nil
	}
	var b strings.Builder
	for _, name := range names {
		b.WriteString(exposeFunc + "(" + strconv.Quote(name) +
			", function () { return " + name + "; }" +
			", function (__v) { " + name + " = __v; });\n")
	}
	prog, err := parser.ParseFile(nil, "cell", b.String(), 0)
	if err != nil {
		return nil, err
	}
	return prog.Body, nil
}

// bindingNames appends the identifiers bound by a declaration target,
// descending into destructuring patterns.
func bindingNames(target ast.Expression, names []string) []string {
	switch t := target.(type) {
	case *ast.Identifier:
		names = append(names, t.Name.String())
	case *ast.AssignExpression:
		names = bindingNames(t.Left, names)
	case *ast.ArrayPattern:
		for _, el := range t.Elements {
			names = bindingNames(el, names)
		}
		names = bindingNames(t.Rest, names)
	case *ast.ObjectPattern:
		for _, prop := range t.Properties {
			switch p := prop.(type) {
			case *ast.PropertyShort:
				names = append(names, p.Name.Name.String())
			case *ast.PropertyKeyed:
				names = bindingNames(p.Value, names)
			}
		}
		names = bindingNames(t.Rest, names)
	}
	return names
}

// exposeGlobal defines a global accessor pair over a block binding, so the
// global always reads and writes the binding's current value. A global
// that cannot be redefined, such as one declared with var, is assigned the
// current value instead.
func (s *Sandbox) exposeGlobal(call goja.FunctionCall) goja.Value {
	name := call.Argument(0).String()
	getter, setter := call.Argument(1), call.Argument(2)
	global := s.vm.GlobalObject()
	if err := global.DefineAccessorProperty(name, getter, setter, goja.FLAG_TRUE, goja.FLAG_TRUE); err == nil {
		return goja.Undefined()
	}
	get, ok := goja.AssertFunction(getter)
	if !ok {
		return goja.Undefined()
	}
	v, err := get(goja.Undefined())
	if err != nil {
		panic(err)
	}
	if err := global.Set(name, v); err != nil {
		panic(err)
	}
	return goja.Undefined()
}
