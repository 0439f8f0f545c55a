package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rhuss/tabula/pkg/api"
	"github.com/rhuss/tabula/pkg/oracle"
	"github.com/rhuss/tabula/pkg/provider"
	"github.com/rhuss/tabula/pkg/sandbox"
)

// ErrOracle marks a turn that ended because the oracle could not produce
// a reply.
var ErrOracle = errors.New("oracle failure")

// OracleError reports an oracle failure. It matches both ErrOracle and the
// underlying cause with errors.Is and errors.As.
type OracleError struct {
	// Attempt is the 1-based oracle call that failed.
	Attempt int
	Err     error
}

func (e *OracleError) Error() string {
	return fmt.Sprintf("oracle failed on attempt %d: %v", e.Attempt, e.Err)
}

func (e *OracleError) Unwrap() []error {
	return []error{ErrOracle, e.Err}
}

// Executor runs code against a session's persistent state.
// *sandbox.Sandbox implements it.
type Executor interface {
	Execute(ctx context.Context, code string) sandbox.Result
}

var _ Executor = (*sandbox.Sandbox)(nil)

// TurnRequest is one user question to answer.
type TurnRequest struct {
	Question string

	// DatasetPath is passed to the oracle so its instructions can name the
	// file behind df.
	DatasetPath string

	// PlotPath is the session's plot slot. A stale plot is removed when
	// the turn starts and TurnResult.PlotPath reports a fresh one.
	PlotPath string

	Sandbox Executor

	// Logger carries session and turn attributes. Nil uses the engine's.
	Logger *slog.Logger
}

// TurnResult is the outcome of a turn that reached a terminal state.
type TurnResult struct {
	Status api.TurnStatus

	// Answer is the last transcript entry: the successful output, or the
	// last execution error when retries were exhausted.
	Answer string

	// Attempts counts oracle calls.
	Attempts int

	// Transcript holds the turn's messages in order, starting with the
	// question.
	Transcript []api.Message

	// Code is the last fragment executed.
	Code string

	// PlotPath is set when the turn left a plot in the slot.
	PlotPath string

	Usage    provider.Usage
	Duration time.Duration
}

// Engine runs turns. It is stateless between turns and safe for
// concurrent use; per-session serialization is the caller's job.
type Engine struct {
	oracle oracle.Oracle
	cfg    Config
	logger *slog.Logger
}

// New creates a new Engine. The oracle must not be nil.
func New(o oracle.Oracle, cfg Config, logger *slog.Logger) (*Engine, error) {
	if o == nil {
		return nil, fmt.Errorf("engine: oracle must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{oracle: o, cfg: cfg, logger: logger}, nil
}

// MaxRetries returns the effective retry ceiling.
func (e *Engine) MaxRetries() int {
	return e.cfg.maxRetries()
}
