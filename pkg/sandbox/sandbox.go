package sandbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"

	"github.com/rhuss/tabula/pkg/debug"
	"github.com/rhuss/tabula/pkg/table"
)

const (
	// DefaultTimeout is the execution limit applied by callers that do not
	// configure one.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxOutputBytes caps the captured output of one fragment.
	DefaultMaxOutputBytes = 1 << 20

	// DefaultPlotFile is the plot slot file name inside the work directory.
	DefaultPlotFile = "output_plot.png"

	// DatasetVar is the global the loaded dataset is bound to.
	DatasetVar = "df"

	maxCallStackSize = 1024
)

// interrupt reasons passed to goja's Interrupt.
const (
	reasonTimeout   = "timeout"
	reasonCancelled = "cancelled"
)

// ErrClosed is reported when a closed sandbox is used.
var ErrClosed = errors.New("sandbox closed")

// Options configures a Sandbox.
type Options struct {
	// WorkDir is where relative file paths resolve. Created if missing.
	// Defaults to the process working directory.
	WorkDir string

	// PlotFile is the plot slot path exposed as PLOT_PATH. Relative paths
	// resolve against WorkDir. Defaults to DefaultPlotFile.
	PlotFile string

	// Timeout bounds a single Execute call. Zero means no limit.
	Timeout time.Duration

	// MaxOutputBytes caps captured output. Zero means
	// DefaultMaxOutputBytes; negative means unlimited.
	MaxOutputBytes int

	Logger *slog.Logger
}

// Sandbox is a persistent JavaScript runtime. It is safe for concurrent
// use; calls are serialized.
type Sandbox struct {
	mu sync.Mutex

	vm       *goja.Runtime
	builtins map[string]bool

	workDir   string
	plotPath  string
	timeout   time.Duration
	maxOutput int
	logger    *slog.Logger

	tableProto *goja.Object
	stringify  goja.Callable

	// out receives printed text while a fragment runs.
	out *outputBuffer

	closed bool
}

// New creates a sandbox with an empty variable namespace.
func New(opts Options) (*Sandbox, error) {
	workDir := opts.WorkDir
	if workDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolving work dir: %w", err)
		}
		workDir = wd
	}
	workDir, err := filepath.Abs(workDir)
	if err != nil {
		return nil, fmt.Errorf("resolving work dir: %w", err)
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating work dir: %w", err)
	}

	plotPath := opts.PlotFile
	if plotPath == "" {
		plotPath = DefaultPlotFile
	}
	if !filepath.IsAbs(plotPath) {
		plotPath = filepath.Join(workDir, plotPath)
	}

	maxOutput := opts.MaxOutputBytes
	if maxOutput == 0 {
		maxOutput = DefaultMaxOutputBytes
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Sandbox{
		vm:        goja.New(),
		workDir:   workDir,
		plotPath:  plotPath,
		timeout:   opts.Timeout,
		maxOutput: maxOutput,
		logger:    logger,
		out:       newOutputBuffer(maxOutput),
	}
	s.vm.SetMaxCallStackSize(maxCallStackSize)

	stringify, ok := goja.AssertFunction(s.vm.Get("JSON").ToObject(s.vm).Get("stringify"))
	if !ok {
		return nil, errors.New("runtime has no JSON.stringify")
	}
	s.stringify = stringify

	if err := s.bind(); err != nil {
		return nil, fmt.Errorf("binding builtins: %w", err)
	}
	s.builtins = make(map[string]bool)
	for _, k := range s.vm.GlobalObject().Keys() {
		s.builtins[k] = true
	}
	return s, nil
}

// WorkDir returns the absolute directory relative paths resolve against.
func (s *Sandbox) WorkDir() string { return s.workDir }

// PlotPath returns the absolute plot slot path.
func (s *Sandbox) PlotPath() string { return s.plotPath }

// Execute runs code against the persistent namespace and captures what it
// prints. Failures of any kind are returned as a failed Result.
func (s *Sandbox) Execute(ctx context.Context, code string) (res Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	defer func() {
		res.Duration = time.Since(start)
		debug.Log("sandbox", "fragment executed",
			"ok", res.OK, "duration", res.Duration, "output_bytes", len(res.Output))
	}()

	if s.closed {
		return Failure(ErrClosed.Error())
	}
	if err := ctx.Err(); err != nil {
		return Failure("execution cancelled")
	}

	s.out = newOutputBuffer(s.maxOutput)

	var (
		armMu sync.Mutex
		armed = true
	)
	interrupt := func(reason string) func() {
		return func() {
			armMu.Lock()
			defer armMu.Unlock()
			if armed {
				s.vm.Interrupt(reason)
			}
		}
	}

	var timer *time.Timer
	if s.timeout > 0 {
		timer = time.AfterFunc(s.timeout, interrupt(reasonTimeout))
	}
	stop := context.AfterFunc(ctx, interrupt(reasonCancelled))

	err := s.run(code)

	// A trigger already running when disarmed has either interrupted by
	// now or will see armed unset, so the clear below is final.
	armMu.Lock()
	armed = false
	armMu.Unlock()
	if timer != nil {
		timer.Stop()
	}
	stop()
	s.vm.ClearInterrupt()
	if err != nil {
		return Failure(s.describe(err))
	}
	return Success(s.out.String())
}

// run compiles and executes one fragment against the global namespace.
func (s *Sandbox) run(code string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("sandbox builtin panicked", "panic", r)
			if e, ok := r.(error); ok {
				err = e
				return
			}
			err = fmt.Errorf("%v", r)
		}
	}()

	prog, err := compileFragment(code)
	if err != nil {
		return err
	}
	_, err = s.vm.RunProgram(prog)
	return err
}

// describe turns a runtime error into the message reported to callers.
func (s *Sandbox) describe(err error) string {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		switch interrupted.Value() {
		case reasonTimeout:
			return fmt.Sprintf("execution timed out after %s", s.timeout)
		case reasonCancelled:
			return "execution cancelled"
		}
	}
	var exc *goja.Exception
	if errors.As(err, &exc) {
		return exc.Error()
	}
	msg := err.Error()
	if !strings.Contains(msg, "Error") {
		msg = "Error: " + msg
	}
	return msg
}

// LoadData parses the file at path and binds it to df, replacing any
// previous dataset. Failures leave the namespace unchanged.
func (s *Sandbox) LoadData(path string) LoadResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return LoadResult{Message: "Error loading CSV: " + ErrClosed.Error()}
	}

	t, err := table.ReadFile(s.resolve(path))
	if err != nil {
		s.logger.Debug("dataset load failed", "path", path, "error", err)
		return LoadResult{Message: "Error loading CSV: " + err.Error()}
	}
	if err := s.vm.Set(DatasetVar, s.wrapTable(t)); err != nil {
		return LoadResult{Message: "Error loading CSV: " + err.Error()}
	}

	return LoadResult{
		Loaded:  true,
		Rows:    t.Len(),
		Columns: t.Width(),
		Message: fmt.Sprintf("Data loaded! Shape: (%d, %d). Columns: [%s]",
			t.Len(), t.Width(), strings.Join(t.Columns(), ", ")),
	}
}

// Variables returns a snapshot of the user visible globals. Tables are
// returned as *table.Table; other values as exported by the runtime.
func (s *Sandbox) Variables() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	vars := make(map[string]any)
	if s.closed {
		return vars
	}
	global := s.vm.GlobalObject()
	for _, k := range global.Keys() {
		if s.builtins[k] {
			continue
		}
		v := global.Get(k)
		if t, ok := s.unwrapTable(v); ok {
			vars[k] = t
			continue
		}
		if _, fn := goja.AssertFunction(v); fn {
			continue
		}
		vars[k] = v.Export()
	}
	return vars
}

// Close releases the runtime. Later calls report ErrClosed.
func (s *Sandbox) Close() error {
	s.vm.Interrupt(reasonCancelled)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.vm.ClearInterrupt()
	return nil
}

// Resolve maps a path to an absolute one, relative paths resolving
// against the work directory.
func (s *Sandbox) Resolve(path string) string {
	return s.resolve(path)
}

func (s *Sandbox) resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(s.workDir, path)
}
