package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rhuss/tabula/pkg/api"
	"github.com/rhuss/tabula/pkg/engine"
	"github.com/rhuss/tabula/pkg/storage"
	"github.com/rhuss/tabula/pkg/transport"
)

// ArtifactURLPrefix is the URL path under which plots are served.
const ArtifactURLPrefix = "/v1/artifacts/"

// Service exposes a Manager through the transport interfaces, translating
// domain errors into *api.APIError values.
type Service struct {
	m          *Manager
	validation api.ValidationConfig
}

var (
	_ transport.Asker          = (*Service)(nil)
	_ transport.SessionService = (*Service)(nil)
)

// NewService wraps m.
func NewService(m *Manager, validation api.ValidationConfig) *Service {
	return &Service{m: m, validation: validation}
}

// Manager returns the wrapped manager.
func (s *Service) Manager() *Manager { return s.m }

// CreateSession starts an empty session.
func (s *Service) CreateSession(_ context.Context) (*api.SessionInfo, error) {
	sess, err := s.m.Create()
	if err != nil {
		return nil, toAPIError(err, "")
	}
	info := sess.Info()
	return &info, nil
}

// GetSession describes a live session.
func (s *Service) GetSession(_ context.Context, id string) (*api.SessionInfo, error) {
	sess, err := s.m.Get(id)
	if err != nil {
		return nil, toAPIError(err, id)
	}
	info := sess.Info()
	return &info, nil
}

// DeleteSession ends a session.
func (s *Service) DeleteSession(_ context.Context, id string) error {
	if err := s.m.Delete(id); err != nil {
		return toAPIError(err, id)
	}
	return nil
}

// Upload writes r into the session's work directory and loads it as df.
// A file that does not parse is discarded and reported with status
// "error"; the previous dataset and its file stay in place.
func (s *Service) Upload(ctx context.Context, id, filename string, r io.Reader) (*api.UploadResponse, error) {
	path, err := s.m.UploadPath(id, filename)
	if err != nil {
		return nil, toAPIError(err, id)
	}
	staged, err := stageFile(path, r)
	if err != nil {
		return nil, err
	}

	res, err := s.m.InstallDataset(ctx, id, staged, path)
	if err != nil {
		return nil, toAPIError(err, id)
	}

	resp := &api.UploadResponse{
		Status:   "success",
		Message:  res.Message,
		Filename: filepath.Base(path),
	}
	if !res.Loaded {
		resp.Status = "error"
	}
	return resp, nil
}

// Ask runs one turn. A turn that ends in exhaustion or cancellation is
// still a reply; only oracle and lookup failures are errors.
func (s *Service) Ask(ctx context.Context, id string, req *api.ChatRequest) (*api.ChatResponse, error) {
	if apiErr := api.ValidateChatRequest(req, s.validation); apiErr != nil {
		return nil, apiErr
	}

	ans, err := s.m.Ask(ctx, id, req.Message)
	if err != nil && ans != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return ChatResponse(ans.Record), nil
	}
	if err != nil && (ans == nil || errors.Is(err, engine.ErrOracle)) {
		return nil, toAPIError(err, id)
	}
	return ChatResponse(ans.Record), nil
}

// CancelTurn aborts the turn running in a session.
func (s *Service) CancelTurn(_ context.Context, id string) error {
	ok, err := s.m.CancelTurn(id)
	if err != nil {
		return toAPIError(err, id)
	}
	if !ok {
		return api.NewNotFoundError("no turn in progress for session " + id)
	}
	return nil
}

// ListTurns returns recorded turns of a session.
func (s *Service) ListTurns(ctx context.Context, id string, opts storage.ListOptions) (*api.TurnList, error) {
	if !api.ValidateSessionID(id) {
		return nil, api.NewInvalidRequestError("id", "malformed session ID")
	}
	list, err := s.m.History(ctx, id, opts)
	if err != nil {
		return nil, toAPIError(err, id)
	}
	return list, nil
}

// ArtifactPath resolves an artifact to an existing file.
func (s *Service) ArtifactPath(id, name string) (string, error) {
	path, err := s.m.ArtifactPath(id, name)
	if err != nil {
		return "", toAPIError(err, id)
	}
	if _, err := os.Stat(path); err != nil {
		return "", api.NewNotFoundError("artifact " + name + " not found")
	}
	return path, nil
}

// HealthCheck verifies the turn store.
func (s *Service) HealthCheck(ctx context.Context) error {
	return s.m.HealthCheck(ctx)
}

// ChatResponse builds the client reply for a recorded turn.
func ChatResponse(rec *api.TurnRecord) *api.ChatResponse {
	resp := &api.ChatResponse{
		TurnID:   rec.ID,
		Response: rec.Answer,
		Status:   rec.Status,
		Attempts: rec.Attempts,
	}
	if rec.Image != "" {
		url := ArtifactURLPrefix + rec.SessionID + "/" + rec.Image
		resp.Image = &url
	}
	return resp
}

func toAPIError(err error, id string) error {
	var apiErr *api.APIError
	if errors.Is(err, engine.ErrOracle) {
		// Backend messages are not passed through.
		if errors.As(err, &apiErr) && apiErr.Type == api.ErrorTypeTooManyRequests {
			return api.NewTooManyRequestsError("the code generation backend is rate limited; try again later")
		}
		return api.NewOracleError("the code generation backend failed; try again later")
	}
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, ErrNotFound), errors.Is(err, storage.ErrNotFound):
		if id == "" {
			return api.NewNotFoundError(err.Error())
		}
		return api.NewNotFoundError("session " + id + " not found")
	case errors.Is(err, ErrNoDataset):
		return api.NewInvalidRequestError("file", "no dataset loaded; upload a file first")
	case errors.Is(err, ErrInvalidFilename):
		return api.NewInvalidRequestError("file", err.Error())
	case errors.Is(err, ErrTooManySessions):
		return api.NewTooManyRequestsError("session limit reached")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return api.NewConflictError("request cancelled before the turn started")
	}
	return fmt.Errorf("session %s: %w", id, err)
}

// stageFile writes r to a temporary file next to path, keeping its
// extension so the loader picks the same format.
func stageFile(path string, r io.Reader) (string, error) {
	f, err := os.CreateTemp(filepath.Dir(path), ".upload-*"+filepath.Ext(path))
	if err != nil {
		return "", fmt.Errorf("creating upload: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("writing upload: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("writing upload: %w", err)
	}
	return f.Name(), nil
}
