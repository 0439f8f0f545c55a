package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/rhuss/tabula/pkg/engine"
)

// --- Request types ---

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// --- Response types ---

type chatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

const (
	codeRows    = "print(df.length)"
	codeColumns = "print(df.columns)"
	codePlot    = "var c = df.columns;\nplot.bar(df.column(c[0]), df.column(c[1]), {title: c[1] + ' by ' + c[0]});\nprint('Plot saved.')"
	codeBroken  = "print(undefinedColumn.total)"
	codeFail    = "throw new Error('this question always fails')"
	codeDefault = "print(df.head().toMarkdown())"
)

func newMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat/completions", handleChatCompletions)
	mux.HandleFunc("GET /v1/models", handleModels)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})
	return mux
}

func handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"invalid request","type":"invalid_request_error"}}`))
		return
	}

	code := chooseCode(&req)
	content := fmt.Sprintf("Here is the code:\n```javascript\n%s\n```", code)

	model := req.Model
	if model == "" {
		model = "mock-model"
	}
	resp := chatResponse{
		ID:     "chatcmpl-mock",
		Object: "chat.completion",
		Model:  model,
		Choices: []chatChoice{{
			Message:      chatMessage{Role: "assistant", Content: content},
			FinishReason: "stop",
		}},
		Usage: chatUsage{PromptTokens: 10, CompletionTokens: len(code) / 4, TotalTokens: 10 + len(code)/4},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// chooseCode picks the reply from the question, which is the first user
// message after the system prompt. Retries are recognised by the failure
// notice being the last message.
func chooseCode(req *chatRequest) string {
	question := strings.ToLower(firstUserMessage(req))
	retry := len(req.Messages) > 0 && req.Messages[len(req.Messages)-1].Content == engine.FailureNotice

	switch {
	case strings.Contains(question, "fail"):
		return codeFail
	case strings.Contains(question, "flaky"):
		if retry {
			return codeRows
		}
		return codeBroken
	case strings.Contains(question, "plot"), strings.Contains(question, "chart"):
		return codePlot
	case strings.Contains(question, "column"):
		return codeColumns
	case strings.Contains(question, "rows"), strings.Contains(question, "how many"):
		return codeRows
	default:
		return codeDefault
	}
}

func firstUserMessage(req *chatRequest) string {
	for _, m := range req.Messages {
		if m.Role == "user" {
			return m.Content
		}
	}
	return ""
}

func handleModels(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"object": "list",
		"data": []map[string]any{
			{"id": "mock-model", "object": "model", "owned_by": "tabula-mock"},
		},
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
