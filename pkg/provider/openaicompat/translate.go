package openaicompat

import (
	"strings"

	"github.com/rhuss/tabula/pkg/api"
	"github.com/rhuss/tabula/pkg/provider"
)

// TranslateToChat converts a provider.Request into a ChatCompletionRequest
// for the given backend model name.
func TranslateToChat(req *provider.Request, model string) ChatCompletionRequest {
	cr := ChatCompletionRequest{
		Model:       model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stop:        req.Stop,
		N:           1,
	}
	for _, m := range req.Messages {
		cr.Messages = append(cr.Messages, ChatMessage{Role: m.Role, Content: m.Content})
	}
	return cr
}

// TranslateResponse converts a ChatCompletionResponse into a
// provider.Response. Only choices[0] is used.
func TranslateResponse(resp *ChatCompletionResponse) (*provider.Response, error) {
	pr := &provider.Response{Model: resp.Model}
	if resp.Usage != nil {
		pr.Usage = provider.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		}
	}

	// Empty choices means the backend produced no output.
	if len(resp.Choices) == 0 {
		return nil, api.NewServerError("backend returned no choices")
	}
	choice := resp.Choices[0]
	if choice.FinishReason == "content_filter" {
		return nil, api.NewServerError("backend response was blocked by a content filter")
	}

	pr.FinishReason = choice.FinishReason
	pr.Content = ExtractContentString(choice.Message.Content)
	return pr, nil
}

// ExtractContentString gets plain text from message content, which may be
// a string, nil, or an array of content parts.
func ExtractContentString(content any) string {
	switch v := content.(type) {
	case string:
		return v
	case []any:
		var b strings.Builder
		for _, part := range v {
			p, ok := part.(map[string]any)
			if !ok {
				continue
			}
			if text, ok := p["text"].(string); ok {
				b.WriteString(text)
			}
		}
		return b.String()
	default:
		return ""
	}
}
