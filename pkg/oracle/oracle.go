package oracle

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"text/template"

	"github.com/rhuss/tabula/pkg/api"
	"github.com/rhuss/tabula/pkg/debug"
	"github.com/rhuss/tabula/pkg/provider"
)

// Oracle produces code for the current transcript.
type Oracle interface {
	// Generate returns the oracle's reply to transcript. datasetPath names
	// the file bound to df in the sandbox.
	Generate(ctx context.Context, transcript []api.Message, datasetPath string) (*Generation, error)
}

// Generation is one oracle reply.
type Generation struct {
	// Text is the raw reply, appended to the transcript verbatim.
	Text string

	// Code is the fragment extracted from Text.
	Code string

	Model string
	Usage provider.Usage
}

// Config configures a CodeOracle.
type Config struct {
	Model       string
	Temperature float64

	// MaxTokens caps the reply length. Zero leaves it to the provider.
	MaxTokens int

	// SystemPrompt replaces the built-in instructions. It is a
	// text/template executed with .DatasetPath.
	SystemPrompt string
}

// CodeOracle is an Oracle backed by a provider.Provider.
type CodeOracle struct {
	p      provider.Provider
	cfg    Config
	prompt *template.Template
	logger *slog.Logger
}

var _ Oracle = (*CodeOracle)(nil)

// New creates a CodeOracle. A custom system prompt that fails to parse is
// reported here rather than on the first turn.
func New(p provider.Provider, cfg Config, logger *slog.Logger) (*CodeOracle, error) {
	if p == nil {
		return nil, fmt.Errorf("oracle: provider is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("oracle: model is required")
	}
	text := cfg.SystemPrompt
	if text == "" {
		text = defaultSystemPrompt
	}
	tmpl, err := template.New("system").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("oracle: parsing system prompt: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CodeOracle{p: p, cfg: cfg, prompt: tmpl, logger: logger}, nil
}

// SystemPrompt renders the instructions for a dataset.
func (o *CodeOracle) SystemPrompt(datasetPath string) (string, error) {
	var buf bytes.Buffer
	if err := o.prompt.Execute(&buf, struct{ DatasetPath string }{datasetPath}); err != nil {
		return "", fmt.Errorf("rendering system prompt: %w", err)
	}
	return buf.String(), nil
}

// Generate sends the instructions followed by the transcript to the
// provider and extracts the code from its reply.
func (o *CodeOracle) Generate(ctx context.Context, transcript []api.Message, datasetPath string) (*Generation, error) {
	sys, err := o.SystemPrompt(datasetPath)
	if err != nil {
		return nil, err
	}

	msgs := make([]provider.Message, 0, len(transcript)+1)
	msgs = append(msgs, provider.Message{Role: provider.RoleSystem, Content: sys})
	for _, m := range transcript {
		msgs = append(msgs, provider.Message{Role: string(m.Role), Content: m.Content})
	}

	temp := o.cfg.Temperature
	req := &provider.Request{Model: o.cfg.Model, Messages: msgs, Temperature: &temp}
	if o.cfg.MaxTokens > 0 {
		maxTokens := o.cfg.MaxTokens
		req.MaxTokens = &maxTokens
	}
	if apiErr := provider.ValidateRequest(o.p.Capabilities(), req); apiErr != nil {
		return nil, apiErr
	}

	debug.Log("oracle", "generating", "provider", o.p.Name(), "model", o.cfg.Model, "messages", len(msgs))
	resp, err := o.p.Complete(ctx, req)
	if err != nil {
		o.logger.Warn("oracle request failed", "provider", o.p.Name(), "model", o.cfg.Model, "error", err)
		return nil, fmt.Errorf("%s: %w", o.p.Name(), err)
	}

	gen := &Generation{
		Text:  resp.Content,
		Code:  ExtractCode(resp.Content),
		Model: resp.Model,
		Usage: resp.Usage,
	}
	debug.Trace("oracle", "generated code", "code", gen.Code)
	return gen, nil
}
