package provider

import (
	"fmt"
	"slices"

	"github.com/rhuss/tabula/pkg/api"
)

// ValidateRequest checks whether req can be sent to a provider with the
// given capabilities. Returns an APIError identifying the problem, or nil.
func ValidateRequest(caps Capabilities, req *Request) *api.APIError {
	if req.Model == "" {
		return api.NewInvalidRequestError("model", "model is required")
	}
	if len(caps.SupportedModels) > 0 && !slices.Contains(caps.SupportedModels, req.Model) {
		return api.NewInvalidRequestError("model",
			fmt.Sprintf("model %q is not served by the configured provider", req.Model))
	}
	if len(req.Messages) == 0 {
		return api.NewInvalidRequestError("messages", "at least one message is required")
	}
	for i, m := range req.Messages {
		switch m.Role {
		case RoleSystem, RoleUser, RoleAssistant:
		default:
			return api.NewInvalidRequestError(fmt.Sprintf("messages[%d].role", i),
				fmt.Sprintf("unsupported role %q", m.Role))
		}
	}
	return nil
}

// SplitSystem separates system messages from the conversation. The system
// texts are joined with blank lines; consecutive messages with the same
// role are merged so that backends requiring strict alternation accept
// the result.
func SplitSystem(msgs []Message) (system string, rest []Message) {
	var sys []string
	for _, m := range msgs {
		if m.Role == RoleSystem {
			sys = append(sys, m.Content)
			continue
		}
		if n := len(rest); n > 0 && rest[n-1].Role == m.Role {
			rest[n-1].Content += "\n\n" + m.Content
			continue
		}
		rest = append(rest, m)
	}
	for i, s := range sys {
		if i > 0 {
			system += "\n\n"
		}
		system += s
	}
	return system, rest
}
