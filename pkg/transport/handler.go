package transport

import (
	"context"
	"io"

	"github.com/rhuss/tabula/pkg/api"
	"github.com/rhuss/tabula/pkg/storage"
)

// Asker answers one question within a session. Implementations return an
// *api.APIError for failures the client should see verbatim.
type Asker interface {
	Ask(ctx context.Context, sessionID string, req *api.ChatRequest) (*api.ChatResponse, error)
}

// AskerFunc is an adapter that allows using an ordinary function as an Asker.
type AskerFunc func(ctx context.Context, sessionID string, req *api.ChatRequest) (*api.ChatResponse, error)

// Ask calls f(ctx, sessionID, req).
func (f AskerFunc) Ask(ctx context.Context, sessionID string, req *api.ChatRequest) (*api.ChatResponse, error) {
	return f(ctx, sessionID, req)
}

// SessionService handles everything around a session except the chat
// itself.
type SessionService interface {
	// CreateSession starts an empty session.
	CreateSession(ctx context.Context) (*api.SessionInfo, error)

	// GetSession describes a live session.
	GetSession(ctx context.Context, id string) (*api.SessionInfo, error)

	// DeleteSession ends a session. Recorded turns and artifacts are kept.
	DeleteSession(ctx context.Context, id string) error

	// Upload stores a dataset file in the session and loads it as df.
	// A file that cannot be parsed yields Status "error", not an error.
	Upload(ctx context.Context, id, filename string, r io.Reader) (*api.UploadResponse, error)

	// CancelTurn aborts the turn running in a session. A session with no
	// running turn yields a not found error.
	CancelTurn(ctx context.Context, id string) error

	// ListTurns returns recorded turns of a session, live or not.
	ListTurns(ctx context.Context, id string, opts storage.ListOptions) (*api.TurnList, error)

	// ArtifactPath resolves an artifact name to a file on disk.
	ArtifactPath(id, name string) (string, error)

	// HealthCheck verifies the backing store.
	HealthCheck(ctx context.Context) error
}
