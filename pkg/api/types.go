package api

// Role tags a transcript message with its author.
type Role string

const (
	// RoleSystem carries the oracle instructions.
	RoleSystem Role = "system"

	// RoleUser carries the user's question, synthetic retry notices and
	// execution results fed back to the oracle.
	RoleUser Role = "user"

	// RoleAssistant carries the oracle's raw responses.
	RoleAssistant Role = "assistant"
)

// Message is a single transcript entry.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// SystemMessage creates a system-role message.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// UserMessage creates a user-role message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage creates an assistant-role message.
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// TurnStatus is the terminal outcome of a turn.
type TurnStatus string

const (
	// TurnStatusSuccess means a generated fragment executed successfully.
	TurnStatusSuccess TurnStatus = "success"

	// TurnStatusExhausted means every attempt failed and the retry
	// ceiling was reached.
	TurnStatusExhausted TurnStatus = "exhausted"

	// TurnStatusFailed means the turn aborted on an operational error
	// (oracle failure, cancellation).
	TurnStatusFailed TurnStatus = "failed"
)

// TurnRecord is the persisted audit trail of one user question.
type TurnRecord struct {
	ID         string     `json:"id"`
	SessionID  string     `json:"session_id"`
	Index      int        `json:"index"`
	Question   string     `json:"question"`
	Answer     string     `json:"answer"`
	Status     TurnStatus `json:"status"`
	Attempts   int        `json:"attempts"`
	Image      string     `json:"image,omitempty"`
	Transcript []Message  `json:"transcript"`
	CreatedAt  int64      `json:"created_at"`
}

// SessionInfo describes a live analysis session.
type SessionInfo struct {
	ID          string `json:"id"`
	Object      string `json:"object"`
	DatasetPath string `json:"dataset_path,omitempty"`
	Turns       int    `json:"turns"`
	CreatedAt   int64  `json:"created_at"`
	LastUsedAt  int64  `json:"last_used_at"`
}

// UploadResponse is returned after a dataset upload.
type UploadResponse struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	Filename string `json:"filename"`
}

// ChatRequest is the body of a chat call.
type ChatRequest struct {
	Message string `json:"message"`
}

// ChatResponse is the reply to a chat call. Image is the URL of the plot
// produced during the turn, if any.
type ChatResponse struct {
	TurnID   string     `json:"turn_id"`
	Response string     `json:"response"`
	Image    *string    `json:"image"`
	Status   TurnStatus `json:"status"`
	Attempts int        `json:"attempts"`
}

// TurnList holds a paginated list of turn records.
type TurnList struct {
	Object  string        `json:"object"`
	Data    []*TurnRecord `json:"data"`
	HasMore bool          `json:"has_more"`
	FirstID string        `json:"first_id"`
	LastID  string        `json:"last_id"`
}
