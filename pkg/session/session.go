package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rhuss/tabula/pkg/api"
	"github.com/rhuss/tabula/pkg/sandbox"
)

// Session is one user's analysis state.
type Session struct {
	ID string

	sb        *sandbox.Sandbox
	workDir   string
	createdAt time.Time
	lastUsed  atomic.Int64 // unix nanoseconds

	// sem admits one turn, load or execution at a time.
	sem chan struct{}

	mu          sync.Mutex
	datasetPath string
	turns       int

	// cancel stops the operation holding the slot; nil when idle.
	cancel context.CancelFunc
	asking bool
	ended  bool
}

func newSession(id, workDir string, sb *sandbox.Sandbox, now time.Time) *Session {
	s := &Session{
		ID:        id,
		sb:        sb,
		workDir:   workDir,
		createdAt: now,
		sem:       make(chan struct{}, 1),
	}
	s.touch(now)
	return s
}

// acquire waits for the session's turn slot.
func (s *Session) acquire(ctx context.Context) error {
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// tryAcquire takes the slot only if it is free.
func (s *Session) tryAcquire() bool {
	select {
	case s.sem <- struct{}{}:
		return true
	default:
		return false
	}
}

func (s *Session) release() {
	<-s.sem
}

// begin takes the slot for one operation. The returned context is
// cancelled by CancelTurn (when asking) or when the session ends; finish
// releases the slot. An ended session reports ErrNotFound.
func (s *Session) begin(ctx context.Context, asking bool) (context.Context, func(), error) {
	if err := s.acquire(ctx); err != nil {
		return nil, nil, err
	}
	ctx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		cancel()
		s.release()
		return nil, nil, ErrNotFound
	}
	s.cancel = cancel
	s.asking = asking
	s.mu.Unlock()

	finish := func() {
		s.mu.Lock()
		s.cancel = nil
		s.asking = false
		s.mu.Unlock()
		cancel()
		s.release()
	}
	return ctx, finish, nil
}

// cancelTurn cancels the running turn. It reports false when no turn runs.
func (s *Session) cancelTurn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.asking || s.cancel == nil {
		return false
	}
	s.cancel()
	return true
}

// end marks the session ended and cancels whatever holds the slot. Later
// operations fail with ErrNotFound.
func (s *Session) end() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ended = true
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Session) touch(now time.Time) {
	s.lastUsed.Store(now.UnixNano())
}

func (s *Session) idleSince() time.Time {
	return time.Unix(0, s.lastUsed.Load())
}

// Sandbox returns the session's sandbox.
func (s *Session) Sandbox() *sandbox.Sandbox {
	return s.sb
}

// DatasetPath returns the loaded dataset path, or "" before the first
// successful load.
func (s *Session) DatasetPath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.datasetPath
}

// Info returns the session's public description.
func (s *Session) Info() api.SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return api.SessionInfo{
		ID:          s.ID,
		Object:      "session",
		DatasetPath: s.datasetPath,
		Turns:       s.turns,
		CreatedAt:   s.createdAt.Unix(),
		LastUsedAt:  s.idleSince().Unix(),
	}
}
