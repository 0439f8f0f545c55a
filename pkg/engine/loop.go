package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/rhuss/tabula/pkg/api"
	"github.com/rhuss/tabula/pkg/debug"
	"github.com/rhuss/tabula/pkg/observability"
	"github.com/rhuss/tabula/pkg/oracle"
	"github.com/rhuss/tabula/pkg/sandbox"
)

// State is a controller state within one turn.
type State int

const (
	StateReasoning State = iota
	StateExecuting
	StateDoneSuccess
	StateDoneExhausted
)

func (s State) String() string {
	switch s {
	case StateReasoning:
		return "reasoning"
	case StateExecuting:
		return "executing"
	case StateDoneSuccess:
		return "done_success"
	case StateDoneExhausted:
		return "done_exhausted"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// turn is the mutable state of one RunTurn call.
type turn struct {
	state      State
	retryCount int
	code       string
	transcript []api.Message
	attempts   int
}

func (t *turn) append(m api.Message) {
	t.transcript = append(t.transcript, m)
}

// RunTurn answers one question. It returns a TurnResult for both terminal
// states; retry exhaustion is not an error. An oracle failure ends the turn
// with an *OracleError and no result.
func (e *Engine) RunTurn(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	if strings.TrimSpace(req.Question) == "" {
		return nil, api.NewInvalidRequestError("message", "question must not be empty")
	}
	if req.Sandbox == nil {
		return nil, fmt.Errorf("engine: sandbox must not be nil")
	}
	logger := req.Logger
	if logger == nil {
		logger = e.logger
	}
	if err := clearPlot(req.PlotPath); err != nil {
		logger.Warn("could not clear plot slot", "path", req.PlotPath, "error", err)
	}

	observability.ActiveTurns.Inc()
	defer observability.ActiveTurns.Dec()

	start := time.Now()
	ceiling := e.cfg.maxRetries()
	t := &turn{
		state:      StateReasoning,
		transcript: []api.Message{api.UserMessage(req.Question)},
	}
	result := &TurnResult{}

	for t.state == StateReasoning || t.state == StateExecuting {
		switch t.state {
		case StateReasoning:
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("turn cancelled: %w", err)
			}
			if t.retryCount > 0 {
				t.append(api.UserMessage(FailureNotice))
			}
			t.attempts++
			gen, err := e.generate(ctx, t.transcript, req.DatasetPath)
			if err != nil {
				logger.Error("oracle failed", "attempt", t.attempts, "error", err)
				observability.TurnsTotal.WithLabelValues(string(api.TurnStatusFailed)).Inc()
				return nil, &OracleError{Attempt: t.attempts, Err: err}
			}
			result.Usage.InputTokens += gen.Usage.InputTokens
			result.Usage.OutputTokens += gen.Usage.OutputTokens
			result.Usage.TotalTokens += gen.Usage.TotalTokens
			t.append(api.AssistantMessage(gen.Text))
			t.code = gen.Code
			e.transition(t, StateExecuting)

		case StateExecuting:
			res := e.execute(ctx, req.Sandbox, t.code)
			if res.OK {
				t.append(api.UserMessage("Output:\n" + res.Output))
				t.retryCount = 0
				e.transition(t, StateDoneSuccess)
			} else {
				t.append(api.UserMessage("Error: " + res.Error))
				t.retryCount++
				logger.Info("execution failed", "attempt", t.attempts, "retry_count", t.retryCount, "error", res.Error)
				if t.retryCount < ceiling {
					e.transition(t, StateReasoning)
				} else {
					e.transition(t, StateDoneExhausted)
				}
			}
		}
	}

	result.Status = api.TurnStatusSuccess
	if t.state == StateDoneExhausted {
		result.Status = api.TurnStatusExhausted
	}
	result.Answer = t.transcript[len(t.transcript)-1].Content
	result.Attempts = t.attempts
	result.Transcript = t.transcript
	result.Code = t.code
	result.Duration = time.Since(start)
	if plotExists(req.PlotPath) {
		result.PlotPath = req.PlotPath
	}

	observability.TurnsTotal.WithLabelValues(string(result.Status)).Inc()
	observability.TurnAttempts.Observe(float64(result.Attempts))

	level := slog.LevelInfo
	if result.Status == api.TurnStatusExhausted {
		level = slog.LevelWarn
	}
	logger.Log(ctx, level, "turn finished",
		"status", result.Status,
		"attempts", result.Attempts,
		"plot", result.PlotPath != "",
		"duration", result.Duration,
	)
	return result, nil
}

func (e *Engine) transition(t *turn, next State) {
	debug.Log("engine", "transition", "from", t.state.String(), "to", next.String(), "retry_count", t.retryCount)
	t.state = next
}

func (e *Engine) generate(ctx context.Context, transcript []api.Message, datasetPath string) (*oracle.Generation, error) {
	start := time.Now()
	gen, err := e.oracle.Generate(ctx, transcript, datasetPath)
	observability.OracleLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		observability.OracleRequestsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	observability.OracleRequestsTotal.WithLabelValues("success").Inc()
	model := gen.Model
	if model == "" {
		model = "unknown"
	}
	observability.OracleTokensTotal.WithLabelValues(model, "input").Add(float64(gen.Usage.InputTokens))
	observability.OracleTokensTotal.WithLabelValues(model, "output").Add(float64(gen.Usage.OutputTokens))
	debug.Trace("engine", "oracle reply", "text", debug.Truncate(gen.Text, 2000))
	return gen, nil
}

func (e *Engine) execute(ctx context.Context, ex Executor, code string) sandbox.Result {
	start := time.Now()
	res := ex.Execute(ctx, code)
	observability.ExecutionDuration.Observe(time.Since(start).Seconds())
	outcome := "success"
	if !res.OK {
		outcome = "failure"
	}
	observability.ExecutionsTotal.WithLabelValues(outcome).Inc()
	debug.Log("engine", "executed", "ok", res.OK, "output_bytes", len(res.Output), "duration", time.Since(start))
	return res
}

func clearPlot(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func plotExists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
