package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rhuss/tabula/pkg/api"
	"github.com/rhuss/tabula/pkg/debug"
	"github.com/rhuss/tabula/pkg/engine"
	"github.com/rhuss/tabula/pkg/observability"
	"github.com/rhuss/tabula/pkg/sandbox"
	"github.com/rhuss/tabula/pkg/storage"
	"github.com/rhuss/tabula/pkg/storage/memory"
)

// Defaults for Options fields left zero.
const (
	DefaultIdleTTL     = time.Hour
	DefaultMaxSessions = 100
)

// Runner runs one turn. *engine.Engine implements it.
type Runner interface {
	RunTurn(ctx context.Context, req engine.TurnRequest) (*engine.TurnResult, error)
}

var _ Runner = (*engine.Engine)(nil)

// Options configures a Manager.
type Options struct {
	// WorkDir holds one subdirectory per session for uploads, files
	// written by code and the plot slot.
	WorkDir string

	// ArtifactsDir holds one subdirectory per session with the plots
	// moved out of the slot after each turn.
	ArtifactsDir string

	// IdleTTL is how long an unused session survives. Zero means
	// DefaultIdleTTL.
	IdleTTL time.Duration

	// MaxSessions caps live sessions. Zero means DefaultMaxSessions.
	MaxSessions int

	// Sandbox is the template for each session's sandbox. WorkDir is
	// overridden per session.
	Sandbox sandbox.Options

	// Store records turns. Nil uses an unbounded in-memory store.
	Store storage.TurnStore

	Logger *slog.Logger
}

// Manager owns live sessions. It is safe for concurrent use.
type Manager struct {
	runner Runner
	store  storage.TurnStore
	opts   Options
	logger *slog.Logger

	// now is replaced in tests.
	now func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a Manager. The work and artifacts directories are
// created if missing.
func NewManager(runner Runner, opts Options) (*Manager, error) {
	if runner == nil {
		return nil, fmt.Errorf("session: runner must not be nil")
	}
	if opts.WorkDir == "" || opts.ArtifactsDir == "" {
		return nil, fmt.Errorf("session: work and artifacts directories are required")
	}
	for _, dir := range []*string{&opts.WorkDir, &opts.ArtifactsDir} {
		abs, err := filepath.Abs(*dir)
		if err != nil {
			return nil, fmt.Errorf("session: %w", err)
		}
		if err := os.MkdirAll(abs, 0o755); err != nil {
			return nil, fmt.Errorf("session: creating %s: %w", abs, err)
		}
		*dir = abs
	}
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = DefaultIdleTTL
	}
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = DefaultMaxSessions
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	store := opts.Store
	if store == nil {
		store = memory.New(0)
	}
	return &Manager{
		runner:   runner,
		store:    store,
		opts:     opts,
		logger:   opts.Logger,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}, nil
}

// Create starts a new session with an empty sandbox.
func (m *Manager) Create() (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.sessions) >= m.opts.MaxSessions {
		return nil, ErrTooManySessions
	}

	id := api.NewSessionID()
	workDir := filepath.Join(m.opts.WorkDir, id)

	sbOpts := m.opts.Sandbox
	sbOpts.WorkDir = workDir
	if sbOpts.Logger == nil {
		sbOpts.Logger = m.logger.With("session_id", id)
	}
	sb, err := sandbox.New(sbOpts)
	if err != nil {
		return nil, fmt.Errorf("creating sandbox: %w", err)
	}

	s := newSession(id, workDir, sb, m.now())
	m.sessions[id] = s
	observability.ActiveSessions.Inc()
	m.logger.Info("session created", "session_id", id)
	return s, nil
}

// Get returns a live session and marks it used.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	s.touch(m.now())
	return s, nil
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Delete ends a session, closing its sandbox and removing its work
// directory. A running turn is cancelled and Delete waits for it to
// finish. Turn records and artifacts are kept.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if !ok {
		return ErrNotFound
	}
	m.shutdown(s, "deleted")
	return nil
}

// CancelTurn cancels the turn running in a session. It reports false when
// the session is idle or busy with something other than a turn.
func (m *Manager) CancelTurn(id string) (bool, error) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return false, ErrNotFound
	}
	return s.cancelTurn(), nil
}

// shutdown ends a session already removed from the map once its running
// operation, if any, has stopped.
func (m *Manager) shutdown(s *Session, reason string) {
	s.end()
	s.sem <- struct{}{}
	m.destroy(s, reason)
	s.release()
}

func (m *Manager) destroy(s *Session, reason string) {
	observability.ActiveSessions.Dec()
	if err := s.sb.Close(); err != nil {
		m.logger.Warn("closing sandbox", "session_id", s.ID, "error", err)
	}
	if err := os.RemoveAll(s.workDir); err != nil {
		m.logger.Warn("removing session work dir", "session_id", s.ID, "error", err)
	}
	m.logger.Info("session ended", "session_id", s.ID, "reason", reason)
}

// UploadPath returns where an uploaded file named name should be written
// for the session. Only the base name is used.
func (m *Manager) UploadPath(id, name string) (string, error) {
	s, err := m.Get(id)
	if err != nil {
		return "", err
	}
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "." || base == ".." || base == "/" || base == "" {
		return "", ErrInvalidFilename
	}
	if err := os.MkdirAll(s.workDir, 0o755); err != nil {
		return "", fmt.Errorf("creating session work dir: %w", err)
	}
	return filepath.Join(s.workDir, base), nil
}

// LoadDataset parses path into the session's df. A failed load leaves the
// session unchanged and is reported in the result, not as an error.
func (m *Manager) LoadDataset(ctx context.Context, id, path string) (sandbox.LoadResult, error) {
	return m.installDataset(ctx, id, path, path)
}

// InstallDataset loads a staged file and, once it parses, renames it to
// path. A staged file that fails to load is removed and the file at path
// is left as it was.
func (m *Manager) InstallDataset(ctx context.Context, id, staged, path string) (sandbox.LoadResult, error) {
	res, err := m.installDataset(ctx, id, staged, path)
	if err != nil || !res.Loaded {
		os.Remove(staged)
	}
	return res, err
}

func (m *Manager) installDataset(ctx context.Context, id, src, dst string) (sandbox.LoadResult, error) {
	s, err := m.Get(id)
	if err != nil {
		return sandbox.LoadResult{}, err
	}
	_, finish, err := s.begin(ctx, false)
	if err != nil {
		return sandbox.LoadResult{}, err
	}
	defer finish()

	res := s.sb.LoadData(src)
	if res.Loaded {
		dst = s.sb.Resolve(dst)
		if src != dst {
			if err := os.Rename(s.sb.Resolve(src), dst); err != nil {
				return sandbox.LoadResult{}, fmt.Errorf("installing dataset: %w", err)
			}
		}
		s.mu.Lock()
		s.datasetPath = dst
		s.mu.Unlock()
	}
	m.logger.Info("dataset load", "session_id", id, "path", dst, "loaded", res.Loaded, "rows", res.Rows, "columns", res.Columns)
	return res, nil
}

// Execute runs code directly in the session's sandbox, bypassing the
// oracle.
func (m *Manager) Execute(ctx context.Context, id, code string) (sandbox.Result, error) {
	s, err := m.Get(id)
	if err != nil {
		return sandbox.Result{}, err
	}
	ctx, finish, err := s.begin(ctx, false)
	if err != nil {
		return sandbox.Result{}, err
	}
	defer finish()

	res := s.sb.Execute(ctx, code)
	debug.Log("session", "direct execution", "session_id", id, "ok", res.OK)
	return res, nil
}

// Answer is the outcome of Ask.
type Answer struct {
	Record *api.TurnRecord

	// ImagePath is the artifact file of the turn's plot, if any.
	ImagePath string
}

// Ask runs one turn. Turns of a session run one at a time; a second Ask
// waits for the first or gives up when ctx ends. Every turn, including a
// failed one, is recorded. Oracle failures are returned as errors
// wrapping engine.ErrOracle; a turn stopped by CancelTurn or Delete
// returns its record with an error wrapping context.Canceled.
func (m *Manager) Ask(ctx context.Context, id, question string) (*Answer, error) {
	s, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	ctx, finish, err := s.begin(ctx, true)
	if err != nil {
		return nil, err
	}
	defer finish()
	defer s.touch(m.now())

	datasetPath := s.DatasetPath()
	if datasetPath == "" {
		return nil, ErrNoDataset
	}

	s.mu.Lock()
	s.turns++
	index := s.turns
	s.mu.Unlock()

	turnID := api.NewTurnID()
	logger := m.logger.With("session_id", id, "turn_id", turnID)
	logger.Info("turn started", "index", index)

	res, runErr := m.runner.RunTurn(ctx, engine.TurnRequest{
		Question:    question,
		DatasetPath: datasetPath,
		PlotPath:    s.sb.PlotPath(),
		Sandbox:     s.sb,
		Logger:      logger,
	})

	record := &api.TurnRecord{
		ID:        turnID,
		SessionID: id,
		Index:     index,
		Question:  question,
		CreatedAt: m.now().Unix(),
	}
	if runErr != nil {
		record.Status = api.TurnStatusFailed
		record.Answer = runErr.Error()
		record.Transcript = []api.Message{api.UserMessage(question)}
	} else {
		record.Status = res.Status
		record.Answer = res.Answer
		record.Attempts = res.Attempts
		record.Transcript = res.Transcript
	}

	answer := &Answer{Record: record}
	imagePath, err := m.collectPlot(s, index)
	if err != nil {
		logger.Warn("could not move plot", "error", err)
	}
	if imagePath != "" {
		answer.ImagePath = imagePath
		record.Image = filepath.Base(imagePath)
	}

	// Recording uses its own context so a cancelled turn is still kept.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := m.store.SaveTurn(saveCtx, record); err != nil {
		logger.Error("could not record turn", "error", err)
	}

	if runErr != nil {
		return answer, runErr
	}
	return answer, nil
}

// collectPlot moves the plot slot's file to the session's artifact
// directory as plot_<index>.png. It returns "" when no plot was made.
func (m *Manager) collectPlot(s *Session, index int) (string, error) {
	src := s.sb.PlotPath()
	if _, err := os.Stat(src); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", err
	}

	dir := filepath.Join(m.opts.ArtifactsDir, s.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	dst := filepath.Join(dir, fmt.Sprintf("plot_%d.png", index))
	if err := moveFile(src, dst); err != nil {
		return "", err
	}
	debug.Log("session", "plot collected", "session_id", s.ID, "path", dst)
	return dst, nil
}

// ArtifactPath returns the file behind an artifact name of a session.
func (m *Manager) ArtifactPath(id, name string) (string, error) {
	if !api.ValidateSessionID(id) {
		return "", ErrNotFound
	}
	base := filepath.Base(name)
	if base != name || base == "." || base == ".." {
		return "", ErrInvalidFilename
	}
	return filepath.Join(m.opts.ArtifactsDir, id, base), nil
}

// History lists recorded turns of a session. Records outlive the session.
func (m *Manager) History(ctx context.Context, id string, opts storage.ListOptions) (*api.TurnList, error) {
	return m.store.ListTurns(ctx, id, opts)
}

// Turn returns one recorded turn.
func (m *Manager) Turn(ctx context.Context, id string) (*api.TurnRecord, error) {
	return m.store.GetTurn(ctx, id)
}

// HealthCheck verifies the turn store.
func (m *Manager) HealthCheck(ctx context.Context) error {
	return m.store.HealthCheck(ctx)
}

// StartReaper removes idle sessions every interval until ctx ends.
func (m *Manager) StartReaper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := m.ReapIdle(); n > 0 {
					m.logger.Info("reaped idle sessions", "count", n)
				}
			}
		}
	}()
}

// ReapIdle removes sessions unused for longer than the idle TTL. Sessions
// with a turn in progress are skipped.
func (m *Manager) ReapIdle() int {
	cutoff := m.now().Add(-m.opts.IdleTTL)

	m.mu.Lock()
	var expired []*Session
	for id, s := range m.sessions {
		if !s.idleSince().Before(cutoff) {
			continue
		}
		if !s.tryAcquire() {
			continue
		}
		delete(m.sessions, id)
		expired = append(expired, s)
	}
	m.mu.Unlock()

	for _, s := range expired {
		s.end()
		m.destroy(s, "idle")
		s.release()
	}
	return len(expired)
}

// Close ends every session. The store is left to its owner.
func (m *Manager) Close() error {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		m.shutdown(s, "shutdown")
	}
	return nil
}

// moveFile renames src to dst, copying when they sit on different file
// systems.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
