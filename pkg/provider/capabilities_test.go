package provider

import (
	"testing"
)

func TestValidateRequest(t *testing.T) {
	user := []Message{{Role: RoleUser, Content: "hello"}}

	tests := []struct {
		name      string
		caps      Capabilities
		req       *Request
		wantErr   bool
		wantParam string
	}{
		{
			name: "minimal valid request",
			caps: Capabilities{},
			req:  &Request{Model: "test", Messages: user},
		},
		{
			name:      "missing model",
			caps:      Capabilities{},
			req:       &Request{Messages: user},
			wantErr:   true,
			wantParam: "model",
		},
		{
			name: "model in supported list",
			caps: Capabilities{SupportedModels: []string{"a", "b"}},
			req:  &Request{Model: "b", Messages: user},
		},
		{
			name:      "model not in supported list",
			caps:      Capabilities{SupportedModels: []string{"a"}},
			req:       &Request{Model: "c", Messages: user},
			wantErr:   true,
			wantParam: "model",
		},
		{
			name:      "no messages",
			caps:      Capabilities{},
			req:       &Request{Model: "test"},
			wantErr:   true,
			wantParam: "messages",
		},
		{
			name:      "unknown role",
			caps:      Capabilities{},
			req:       &Request{Model: "test", Messages: []Message{{Role: "tool", Content: "x"}}},
			wantErr:   true,
			wantParam: "messages[0].role",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRequest(tt.caps, tt.req)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if err.Param != tt.wantParam {
					t.Errorf("param = %q, want %q", err.Param, tt.wantParam)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestSplitSystem(t *testing.T) {
	msgs := []Message{
		{Role: RoleSystem, Content: "rules"},
		{Role: RoleUser, Content: "question"},
		{Role: RoleAssistant, Content: "code"},
		{Role: RoleUser, Content: "Error: boom"},
		{Role: RoleUser, Content: "please fix"},
		{Role: RoleSystem, Content: "more rules"},
	}

	system, rest := SplitSystem(msgs)
	if system != "rules\n\nmore rules" {
		t.Errorf("system = %q", system)
	}
	if len(rest) != 3 {
		t.Fatalf("rest has %d messages, want 3: %+v", len(rest), rest)
	}
	if rest[2].Content != "Error: boom\n\nplease fix" {
		t.Errorf("merged content = %q", rest[2].Content)
	}
	if msgs[3].Content != "Error: boom" {
		t.Error("SplitSystem modified its input")
	}
}
