package sandbox

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/rhuss/tabula/pkg/table"
)

func newTestSandbox(t *testing.T, opts Options) *Sandbox {
	t.Helper()
	if opts.WorkDir == "" {
		opts.WorkDir = t.TempDir()
	}
	s, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func writeCSV(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func mustRun(t *testing.T, s *Sandbox, code string) string {
	t.Helper()
	res := s.Execute(context.Background(), code)
	if !res.OK {
		t.Fatalf("Execute(%q) failed: %s", code, res.Error)
	}
	return res.Output
}

func TestExecute_CapturesOutput(t *testing.T) {
	s := newTestSandbox(t, Options{})

	got := mustRun(t, s, `print("hello", 1 + 1); console.log("second")`)
	if got != "hello 2\nsecond\n" {
		t.Errorf("output = %q", got)
	}

	got = mustRun(t, s, `var x = 1`)
	if got != "" {
		t.Errorf("silent fragment output = %q, want empty", got)
	}

	got = mustRun(t, s, `print([1, 2, 3], {a: 1}, null, undefined)`)
	if got != "[1,2,3] {\"a\":1} null undefined\n" {
		t.Errorf("formatted output = %q", got)
	}
}

func TestExecute_ProcessStdoutUntouched(t *testing.T) {
	s := newTestSandbox(t, Options{})

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	orig := os.Stdout
	os.Stdout = w
	res := s.Execute(context.Background(), `print("captured only")`)
	os.Stdout = orig
	w.Close()

	leaked, _ := io.ReadAll(r)
	if len(leaked) != 0 {
		t.Errorf("process stdout received %q", leaked)
	}
	if !res.OK || res.Output != "captured only\n" {
		t.Errorf("result = %+v", res)
	}
}

func TestExecute_FailuresAreContained(t *testing.T) {
	s := newTestSandbox(t, Options{})

	tests := []struct {
		name string
		code string
		want string
	}{
		{"thrown error", `throw new Error("boom")`, "boom"},
		{"syntax error", `var = ;`, "SyntaxError"},
		{"reference error", `undefinedFunction()`, "ReferenceError"},
		{"type error", `null.foo`, "TypeError"},
		{"builtin error", `readFile("does-not-exist.txt")`, "does-not-exist.txt"},
		{"dataset missing", `print(df.length)`, "df"},
		{"len of number", `len(3)`, "len()"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := s.Execute(context.Background(), tt.code)
			if res.OK {
				t.Fatalf("expected failure, got output %q", res.Output)
			}
			if !strings.Contains(res.Error, tt.want) {
				t.Errorf("error = %q, want it to contain %q", res.Error, tt.want)
			}
			if res.Output != "" {
				t.Errorf("failure carries output %q", res.Output)
			}
		})
	}

	// The runtime is still usable afterwards.
	if got := mustRun(t, s, `print("alive")`); got != "alive\n" {
		t.Errorf("output after failures = %q", got)
	}
}

func TestExecute_StatePersists(t *testing.T) {
	s := newTestSandbox(t, Options{})

	mustRun(t, s, `var total = 41`)
	if got := mustRun(t, s, `total += 1; print(total)`); got != "42\n" {
		t.Errorf("output = %q, want 42", got)
	}

	// Mutations before a failure are kept.
	res := s.Execute(context.Background(), `var partial = "kept"; throw new Error("late")`)
	if res.OK {
		t.Fatal("expected failure")
	}
	if got := mustRun(t, s, `print(partial)`); got != "kept\n" {
		t.Errorf("partial mutation lost, output = %q", got)
	}

	// Block scoped declarations can be repeated across fragments.
	mustRun(t, s, `const answer = 1; print(answer)`)
	mustRun(t, s, `const answer = 2; print(answer)`)
	if got := mustRun(t, s, `print(answer)`); got != "2\n" {
		t.Errorf("redeclared const output = %q, want 2", got)
	}
}

func TestExecute_DeclarationsPersist(t *testing.T) {
	tests := []struct {
		name    string
		declare string
		use     string
		want    string
	}{
		{"function", "function helper(x) { return x * 2 }\nprint(helper(2))", "print(helper(21))", "42\n"},
		{"async function", "async function later() { return 1 }", "print(typeof later)", "function\n"},
		{"const", "const total = 5", "print(total)", "5\n"},
		{"let", "let count = 1; count++", "print(count)", "2\n"},
		{"class", "class Point { constructor(x) { this.x = x } }", "print(new Point(3).x)", "3\n"},
		{"destructuring", "const {a, b: [c, ...rest], d = 4} = {a: 1, b: [2, 3]}", "print(a, c, rest.length, d)", "1 2 1 4\n"},
		{"trailing comment", "const last = 7 // kept", "print(last)", "7\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSandbox(t, Options{})
			mustRun(t, s, tt.declare)
			if got := mustRun(t, s, tt.use); got != tt.want {
				t.Errorf("output = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExecute_FunctionSurvivesLaterFailure(t *testing.T) {
	s := newTestSandbox(t, Options{})

	res := s.Execute(context.Background(), "function twice(x) { return 2 * x }\nthrow new Error('late')")
	if res.OK {
		t.Fatal("expected failure")
	}
	if got := mustRun(t, s, `print(twice(4))`); got != "8\n" {
		t.Errorf("output = %q, want 8", got)
	}
}

func TestExecute_PartialLexicalStateKept(t *testing.T) {
	tests := []struct {
		name    string
		failing string
		wantErr string
		use     string
		want    string
	}{
		{"let before throw", "let q = 1; throw new Error('boom')", "boom", "print(typeof q, q)", "number 1\n"},
		{"mutation after declaration", "let r = 1; r = 2; throw new Error('boom')", "boom", "print(r)", "2\n"},
		{"const before throw", "const k = 'kept'; null.x", "TypeError", "print(k)", "kept\n"},
		{"throw before declaration", "throw new Error('early'); let never = 1", "early", "print(typeof never)", "undefined\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSandbox(t, Options{})
			res := s.Execute(context.Background(), tt.failing)
			if res.OK {
				t.Fatal("expected failure")
			}
			if !strings.Contains(res.Error, tt.wantErr) {
				t.Errorf("error = %q, want it to contain %q", res.Error, tt.wantErr)
			}
			if got := mustRun(t, s, tt.use); got != tt.want {
				t.Errorf("output = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExecute_LexicalGlobalsStayLive(t *testing.T) {
	s := newTestSandbox(t, Options{})

	mustRun(t, s, `let n = 1`)
	if got := mustRun(t, s, `n += 1; print(n)`); got != "2\n" {
		t.Errorf("output = %q, want 2", got)
	}
	if got := s.Variables()["n"]; got != int64(2) {
		t.Errorf("Variables()[n] = %v (%T), want 2", got, got)
	}

	// A name first declared with var can still be redeclared lexically.
	mustRun(t, s, `var shared = 1`)
	mustRun(t, s, `let shared = 5`)
	if got := mustRun(t, s, `print(shared)`); got != "5\n" {
		t.Errorf("output = %q, want 5", got)
	}
}

func TestExecute_SyntaxErrorStillReported(t *testing.T) {
	s := newTestSandbox(t, Options{})

	res := s.Execute(context.Background(), `const = 1`)
	if res.OK {
		t.Fatal("expected syntax error")
	}
	if !strings.Contains(res.Error, "SyntaxError") {
		t.Errorf("error = %q, want SyntaxError", res.Error)
	}
}

func TestLoadData(t *testing.T) {
	dir := t.TempDir()
	s := newTestSandbox(t, Options{WorkDir: dir})
	path := writeCSV(t, dir, "data.csv", "a,b\n1,x\n2,y\n3,z\n")

	res := s.LoadData(path)
	if !res.Loaded {
		t.Fatalf("LoadData failed: %s", res.Message)
	}
	want := "Data loaded! Shape: (3, 2). Columns: [a, b]"
	if res.Message != want {
		t.Errorf("message = %q, want %q", res.Message, want)
	}
	if res.Rows != 3 || res.Columns != 2 {
		t.Errorf("shape = (%d, %d)", res.Rows, res.Columns)
	}

	if got := mustRun(t, s, `print(len(df))`); got != "3\n" {
		t.Errorf("len(df) = %q", got)
	}
	if got := mustRun(t, s, `print(df.shape[0], df.shape[1], df.columns.join("|"))`); got != "3 2 a|b\n" {
		t.Errorf("shape output = %q", got)
	}

	// Relative paths resolve against the work dir and replace df.
	writeCSV(t, dir, "small.csv", "only\n1\n")
	if res := s.LoadData("small.csv"); !res.Loaded {
		t.Fatalf("relative LoadData failed: %s", res.Message)
	}
	if got := mustRun(t, s, `print(len(df))`); got != "1\n" {
		t.Errorf("len(df) after reload = %q", got)
	}
}

func TestLoadData_FailureLeavesStateUnchanged(t *testing.T) {
	dir := t.TempDir()
	s := newTestSandbox(t, Options{WorkDir: dir})
	s.LoadData(writeCSV(t, dir, "data.csv", "a\n1\n2\n3\n"))
	mustRun(t, s, `var marker = "before"`)

	for _, path := range []string{
		filepath.Join(dir, "missing.csv"),
		writeCSV(t, dir, "empty.csv", ""),
		writeCSV(t, dir, "bad.json", "{not json"),
	} {
		res := s.LoadData(path)
		if res.Loaded {
			t.Errorf("LoadData(%s) unexpectedly succeeded", path)
		}
		if !strings.HasPrefix(res.Message, "Error loading CSV: ") {
			t.Errorf("message = %q", res.Message)
		}
	}

	if got := mustRun(t, s, `print(len(df), marker)`); got != "3 before\n" {
		t.Errorf("state after failed loads = %q", got)
	}
}

func TestExecute_Timeout(t *testing.T) {
	s := newTestSandbox(t, Options{Timeout: 50 * time.Millisecond})

	res := s.Execute(context.Background(), `while (true) {}`)
	if res.OK {
		t.Fatal("expected timeout failure")
	}
	if !strings.Contains(res.Error, "timed out") {
		t.Errorf("error = %q", res.Error)
	}

	if got := mustRun(t, s, `print("after")`); got != "after\n" {
		t.Errorf("sandbox unusable after timeout, output = %q", got)
	}
}

func TestExecute_ContextCancel(t *testing.T) {
	s := newTestSandbox(t, Options{})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	res := s.Execute(ctx, `while (true) {}`)
	if res.OK || res.Error != "execution cancelled" {
		t.Errorf("result = %+v", res)
	}

	done, cancelNow := context.WithCancel(context.Background())
	cancelNow()
	if res := s.Execute(done, `print(1)`); res.OK {
		t.Error("expected failure for cancelled context")
	}

	if got := mustRun(t, s, `print(2)`); got != "2\n" {
		t.Errorf("output = %q", got)
	}
}

func TestExecute_OutputCap(t *testing.T) {
	s := newTestSandbox(t, Options{MaxOutputBytes: 10})

	got := mustRun(t, s, `print("x".repeat(100))`)
	want := strings.Repeat("x", 10) + truncatedMarker
	if got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestExecute_OutputCapKeepsRunes(t *testing.T) {
	s := newTestSandbox(t, Options{MaxOutputBytes: 10})

	got := mustRun(t, s, `print("x" + "é".repeat(20))`)
	body := strings.TrimSuffix(got, truncatedMarker)
	if !utf8.ValidString(body) {
		t.Fatalf("truncated output is not valid UTF-8: %q", got)
	}
	if body != "x"+strings.Repeat("é", 4) {
		t.Errorf("output = %q", got)
	}
}

func TestExecute_LateTriggersDoNotLeak(t *testing.T) {
	s := newTestSandbox(t, Options{Timeout: time.Millisecond})

	for i := 0; i < 200; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		go cancel()
		s.Execute(ctx, `var spin = 0; for (var j = 0; j < 2000; j++) { spin += j }`)
		cancel()
		s.timeout = time.Second
		if res := s.Execute(context.Background(), `print("next")`); !res.OK {
			t.Fatalf("iteration %d: fragment after a late trigger failed: %s", i, res.Error)
		}
		s.timeout = time.Millisecond
	}
}

func TestVariables(t *testing.T) {
	dir := t.TempDir()
	s := newTestSandbox(t, Options{WorkDir: dir})
	s.LoadData(writeCSV(t, dir, "d.csv", "a\n1\n"))
	mustRun(t, s, `var n = 3; var label = "x"; var helper = function() {}`)

	vars := s.Variables()
	if _, ok := vars["df"].(*table.Table); !ok {
		t.Errorf("df = %T, want *table.Table", vars["df"])
	}
	if vars["n"] != int64(3) {
		t.Errorf("n = %#v", vars["n"])
	}
	if vars["label"] != "x" {
		t.Errorf("label = %#v", vars["label"])
	}
	for _, name := range []string{"print", "plot", "PLOT_PATH", "helper", exposeFunc} {
		if _, ok := vars[name]; ok {
			t.Errorf("Variables() exposes %q", name)
		}
	}
}

func TestTableBuiltins(t *testing.T) {
	dir := t.TempDir()
	s := newTestSandbox(t, Options{WorkDir: dir})
	s.LoadData(writeCSV(t, dir, "sales.csv", "region,units\nnorth,10\nsouth,4\nnorth,7\n"))

	tests := []struct {
		code string
		want string
	}{
		{`print(df.sum("units"))`, "21\n"},
		{`print(df.mean("units"))`, "7\n"},
		{`print(df.filter(function(r) { return r.units > 5 }).length)`, "2\n"},
		{`print(df.sortBy("units", true).column("units").join(","))`, "10,7,4\n"},
		{`print(df.groupBy("region", "units", "sum").rows()[0].units)`, "17\n"},
		{`print(df.unique("region").length)`, "2\n"},
		{`print(df.head(1).rows()[0].region)`, "north\n"},
		{`print(df.select("units").columns.join(","))`, "units\n"},
		{`print(DataFrame([{k: "a", v: 1}, {k: "b", v: 2}]).max("v"))`, "2\n"},
		{`print(DataFrame({k: ["a", "b"], v: [5, 6]}).shape.join("x"))`, "2x2\n"},
		{`print(df.valueCounts("region").rows()[0].count)`, "2\n"},
	}
	for _, tt := range tests {
		if got := mustRun(t, s, tt.code); got != tt.want {
			t.Errorf("%s = %q, want %q", tt.code, got, tt.want)
		}
	}

	got := mustRun(t, s, `print(df.head(1).toMarkdown())`)
	if !strings.HasPrefix(got, "| region | units |") {
		t.Errorf("markdown = %q", got)
	}
	if got2 := mustRun(t, s, `print(df.head(1))`); got2 != got {
		t.Errorf("printing a table = %q, want markdown %q", got2, got)
	}
}

func TestFiles(t *testing.T) {
	dir := t.TempDir()
	s := newTestSandbox(t, Options{WorkDir: dir})

	mustRun(t, s, `writeFile("out/result.txt", "42")`)
	data, err := os.ReadFile(filepath.Join(dir, "out", "result.txt"))
	if err != nil || string(data) != "42" {
		t.Fatalf("written file = %q, %v", data, err)
	}
	if got := mustRun(t, s, `print(readFile("out/result.txt"))`); got != "42\n" {
		t.Errorf("readFile = %q", got)
	}
}

func TestPlot(t *testing.T) {
	dir := t.TempDir()
	s := newTestSandbox(t, Options{WorkDir: dir})

	if s.PlotPath() != filepath.Join(dir, DefaultPlotFile) {
		t.Errorf("PlotPath = %q", s.PlotPath())
	}
	mustRun(t, s, `plot.bar(["a", "b"], [1, 2], {title: "counts"})`)
	assertPNG(t, s.PlotPath())

	mustRun(t, s, `plot.line([1, 2, 3], [3, 1, 2], {path: "line.png"})`)
	assertPNG(t, filepath.Join(dir, "line.png"))

	mustRun(t, s, `plot.hist([1, 2, 2, 3, 3, 3], {path: PLOT_PATH, bins: 3})`)
	assertPNG(t, s.PlotPath())

	if res := s.Execute(context.Background(), `plot.bar(["a"], [1, 2])`); res.OK {
		t.Error("expected failure for mismatched bar input")
	}
}

func assertPNG(t *testing.T, path string) {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading plot: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("\x89PNG")) {
		t.Errorf("%s is not a PNG", path)
	}
}

func TestClose(t *testing.T) {
	s := newTestSandbox(t, Options{})
	s.Close()

	res := s.Execute(context.Background(), `print(1)`)
	if res.OK || res.Error != ErrClosed.Error() {
		t.Errorf("result after close = %+v", res)
	}
	if lr := s.LoadData("x.csv"); lr.Loaded {
		t.Error("LoadData succeeded after close")
	}
}
