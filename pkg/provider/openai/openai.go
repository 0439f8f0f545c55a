// Package openai implements provider.Provider on top of the
// github.com/sashabaranov/go-openai SDK for the hosted OpenAI API and
// Azure-style deployments that the SDK understands.
package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/rhuss/tabula/pkg/api"
	"github.com/rhuss/tabula/pkg/debug"
	"github.com/rhuss/tabula/pkg/provider"
)

// Config holds configuration for the OpenAI adapter.
type Config struct {
	APIKey string

	// BaseURL overrides the API endpoint, including the /v1 suffix.
	BaseURL string

	// Timeout for individual HTTP requests. Defaults to 120s.
	Timeout time.Duration
}

// Provider talks to the OpenAI API through the go-openai client.
type Provider struct {
	client *goopenai.Client
	http   *http.Client
}

var _ provider.Provider = (*Provider)(nil)

// New creates a Provider. An API key is required.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: APIKey is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}

	hc := &http.Client{Timeout: cfg.Timeout}
	clientCfg := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	clientCfg.HTTPClient = hc

	slog.Debug("initializing OpenAI client", "base_url", clientCfg.BaseURL)
	return &Provider{client: goopenai.NewClientWithConfig(clientCfg), http: hc}, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string { return "openai" }

// Capabilities returns what this provider supports.
func (p *Provider) Capabilities() provider.Capabilities {
	return provider.Capabilities{SystemMessages: true}
}

// Complete performs a chat completion.
func (p *Provider) Complete(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	chatReq := goopenai.ChatCompletionRequest{
		Model: req.Model,
		Stop:  req.Stop,
	}
	for _, m := range req.Messages {
		chatReq.Messages = append(chatReq.Messages, goopenai.ChatCompletionMessage{
			Role:    roleFor(m.Role),
			Content: m.Content,
		})
	}
	if req.Temperature != nil {
		chatReq.Temperature = float32(*req.Temperature)
	}
	if req.MaxTokens != nil {
		chatReq.MaxCompletionTokens = *req.MaxTokens
	}

	debug.Log("oracle", "openai request", "model", req.Model, "messages", len(chatReq.Messages))
	resp, err := p.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, mapError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, api.NewOracleError("OpenAI returned no choices")
	}

	choice := resp.Choices[0]
	debug.Log("oracle", "openai response", "finish_reason", choice.FinishReason)
	return &provider.Response{
		Content:      choice.Message.Content,
		Model:        resp.Model,
		FinishReason: string(choice.FinishReason),
		Usage: provider.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		},
	}, nil
}

// ListModels returns the models visible to the API key.
func (p *Provider) ListModels(ctx context.Context) ([]provider.ModelInfo, error) {
	list, err := p.client.ListModels(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	models := make([]provider.ModelInfo, 0, len(list.Models))
	for _, m := range list.Models {
		models = append(models, provider.ModelInfo{ID: m.ID, Object: m.Object, OwnedBy: m.OwnedBy})
	}
	return models, nil
}

// Close releases idle connections.
func (p *Provider) Close() error {
	p.http.CloseIdleConnections()
	return nil
}

func roleFor(role string) string {
	switch role {
	case provider.RoleSystem:
		return goopenai.ChatMessageRoleSystem
	case provider.RoleAssistant:
		return goopenai.ChatMessageRoleAssistant
	default:
		return goopenai.ChatMessageRoleUser
	}
}

// mapError converts SDK errors into APIErrors.
func mapError(err error) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusTooManyRequests:
			return api.NewTooManyRequestsError(apiErr.Message)
		case http.StatusBadRequest:
			return api.NewInvalidRequestError("", apiErr.Message)
		}
		return api.NewOracleError(fmt.Sprintf("OpenAI API error (HTTP %d): %s", apiErr.HTTPStatusCode, apiErr.Message))
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return api.NewOracleError(fmt.Sprintf("OpenAI request failed (HTTP %d)", reqErr.HTTPStatusCode))
	}
	return api.NewOracleError(fmt.Sprintf("OpenAI API call failed: %s", err.Error()))
}
