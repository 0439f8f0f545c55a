// Package anthropic implements provider.Provider on top of the Claude
// Messages API using github.com/anthropics/anthropic-sdk-go.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/rhuss/tabula/pkg/api"
	"github.com/rhuss/tabula/pkg/debug"
	"github.com/rhuss/tabula/pkg/provider"
)

// DefaultMaxTokens is the completion cap used when a request sets none.
// The Messages API requires one.
const DefaultMaxTokens = 4096

// MessagesClient is the subset of the SDK used by the adapter. It is
// satisfied by *sdk.MessageService so tests can pass a stub.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// Config holds configuration for the Anthropic adapter.
type Config struct {
	APIKey string

	// BaseURL overrides the API endpoint.
	BaseURL string

	// Models lists the model identifiers exposed by ListModels.
	Models []string
}

// Provider talks to the Claude Messages API.
type Provider struct {
	msg    MessagesClient
	models []string
}

var _ provider.Provider = (*Provider)(nil)

// New creates a Provider backed by the default SDK HTTP client.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic: APIKey is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	ac := sdk.NewClient(opts...)
	return NewWithClient(&ac.Messages, cfg.Models)
}

// NewWithClient creates a Provider around an existing messages client.
func NewWithClient(msg MessagesClient, models []string) (*Provider, error) {
	if msg == nil {
		return nil, errors.New("anthropic: messages client is required")
	}
	return &Provider{msg: msg, models: models}, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string { return "anthropic" }

// Capabilities returns what this provider supports. System prompts travel
// separately from the conversation, so system messages are folded.
func (p *Provider) Capabilities() provider.Capabilities {
	return provider.Capabilities{SupportedModels: p.models}
}

// Complete issues a Messages.New request and joins the text blocks of the
// reply.
func (p *Provider) Complete(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	params, err := buildParams(req)
	if err != nil {
		return nil, err
	}

	debug.Log("oracle", "anthropic request", "model", req.Model, "messages", len(params.Messages))
	msg, err := p.msg.New(ctx, params)
	if err != nil {
		return nil, mapError(err)
	}
	if msg == nil {
		return nil, api.NewOracleError("anthropic returned an empty response")
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	debug.Log("oracle", "anthropic response", "stop_reason", msg.StopReason)
	return &provider.Response{
		Content:      text.String(),
		Model:        string(msg.Model),
		FinishReason: string(msg.StopReason),
		Usage: provider.Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
			TotalTokens:  int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
	}, nil
}

// ListModels returns the configured model identifiers.
func (p *Provider) ListModels(ctx context.Context) ([]provider.ModelInfo, error) {
	out := make([]provider.ModelInfo, 0, len(p.models))
	for _, m := range p.models {
		out = append(out, provider.ModelInfo{ID: m, Object: "model", OwnedBy: "anthropic"})
	}
	return out, nil
}

// Close is a no-op; the SDK client holds no resources that need release.
func (p *Provider) Close() error { return nil }

// buildParams converts a provider.Request into Messages API parameters.
// The conversation must start with a user turn, so a leading assistant
// message is preceded by an empty user turn.
func buildParams(req *provider.Request) (sdk.MessageNewParams, error) {
	system, rest := provider.SplitSystem(req.Messages)
	if len(rest) == 0 {
		return sdk.MessageNewParams{}, api.NewInvalidRequestError("messages", "at least one non-system message is required")
	}

	msgs := make([]sdk.MessageParam, 0, len(rest)+1)
	if rest[0].Role == provider.RoleAssistant {
		msgs = append(msgs, sdk.NewUserMessage(sdk.NewTextBlock("(continue)")))
	}
	for _, m := range rest {
		block := sdk.NewTextBlock(m.Content)
		if m.Role == provider.RoleAssistant {
			msgs = append(msgs, sdk.NewAssistantMessage(block))
		} else {
			msgs = append(msgs, sdk.NewUserMessage(block))
		}
	}

	maxTokens := DefaultMaxTokens
	if req.MaxTokens != nil && *req.MaxTokens > 0 {
		maxTokens = *req.MaxTokens
	}
	params := sdk.MessageNewParams{
		MaxTokens: int64(maxTokens),
		Messages:  msgs,
		Model:     sdk.Model(req.Model),
	}
	if system != "" {
		params.System = []sdk.TextBlockParam{{Text: system}}
	}
	if req.Temperature != nil {
		params.Temperature = sdk.Float(*req.Temperature)
	}
	if len(req.Stop) > 0 {
		params.StopSequences = req.Stop
	}
	return params, nil
}

func mapError(err error) error {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusTooManyRequests:
			return api.NewTooManyRequestsError("anthropic rate limit exceeded")
		case http.StatusBadRequest:
			return api.NewInvalidRequestError("", fmt.Sprintf("anthropic rejected the request: %s", err.Error()))
		}
		return api.NewOracleError(fmt.Sprintf("anthropic API error (HTTP %d)", apiErr.StatusCode))
	}
	return api.NewOracleError(fmt.Sprintf("anthropic messages.new: %s", err.Error()))
}
