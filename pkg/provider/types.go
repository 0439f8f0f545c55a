package provider

// Message roles understood by every adapter.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Capabilities declares what the backend supports. Used for early request
// validation.
type Capabilities struct {
	// SystemMessages reports whether system messages may appear anywhere
	// in the conversation. Adapters without it fold them into a single
	// leading instruction block.
	SystemMessages bool

	// MaxContextWindow is the maximum token count (0 = unknown/unlimited).
	MaxContextWindow int

	// SupportedModels lists models this provider can serve.
	// Empty means any model is accepted.
	SupportedModels []string
}

// Request is the backend-facing chat request.
type Request struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
	Stop        []string  `json:"stop,omitempty"`
}

// Message is one entry in the conversation sent to the backend.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Response is the backend's complete reply.
type Response struct {
	Content      string `json:"content"`
	Model        string `json:"model"`
	FinishReason string `json:"finish_reason,omitempty"`
	Usage        Usage  `json:"usage"`
}

// Usage reports token consumption for one completion.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// ModelInfo holds information about a model served by the provider.
type ModelInfo struct {
	ID      string `json:"id"`
	Object  string `json:"object,omitempty"`
	OwnedBy string `json:"owned_by,omitempty"`
}
