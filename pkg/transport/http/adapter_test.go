package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rhuss/tabula/pkg/api"
	"github.com/rhuss/tabula/pkg/storage"
	"github.com/rhuss/tabula/pkg/transport"
)

const testSession = "sess_abcdefghijklmnopqrstuvwx"

// mockSessions is a configurable SessionService for testing.
type mockSessions struct {
	mu        sync.Mutex
	sessions  map[string]*api.SessionInfo
	uploads   map[string]string
	loadError string
	listOpts  storage.ListOptions
	turns     *api.TurnList
	artifacts string
	healthErr error
	running   map[string]context.CancelFunc
}

func newMockSessions() *mockSessions {
	return &mockSessions{
		sessions: map[string]*api.SessionInfo{
			testSession: {ID: testSession, Object: "session"},
		},
		uploads: make(map[string]string),
		running: make(map[string]context.CancelFunc),
		turns:   &api.TurnList{Object: "list", Data: []*api.TurnRecord{}},
	}
}

func (m *mockSessions) CreateSession(context.Context) (*api.SessionInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	info := &api.SessionInfo{ID: api.NewSessionID(), Object: "session"}
	m.sessions[info.ID] = info
	return info, nil
}

func (m *mockSessions) GetSession(_ context.Context, id string) (*api.SessionInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, ok := m.sessions[id]
	if !ok {
		return nil, api.NewNotFoundError("session " + id + " not found")
	}
	return info, nil
}

func (m *mockSessions) DeleteSession(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return api.NewNotFoundError("session " + id + " not found")
	}
	delete(m.sessions, id)
	return nil
}

func (m *mockSessions) Upload(_ context.Context, id, filename string, r io.Reader) (*api.UploadResponse, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploads[filename] = string(data)
	if m.loadError != "" {
		return &api.UploadResponse{Status: "error", Message: m.loadError, Filename: filename}, nil
	}
	return &api.UploadResponse{Status: "success", Message: "Data loaded!", Filename: filename}, nil
}

func (m *mockSessions) CancelTurn(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cancel, ok := m.running[id]
	if !ok {
		return api.NewNotFoundError("no turn in progress for session " + id)
	}
	cancel()
	delete(m.running, id)
	return nil
}

func (m *mockSessions) ListTurns(_ context.Context, _ string, opts storage.ListOptions) (*api.TurnList, error) {
	m.listOpts = opts
	return m.turns, nil
}

func (m *mockSessions) ArtifactPath(id, name string) (string, error) {
	path := filepath.Join(m.artifacts, id, name)
	if _, err := os.Stat(path); err != nil {
		return "", api.NewNotFoundError("artifact " + name + " not found")
	}
	return path, nil
}

func (m *mockSessions) HealthCheck(context.Context) error { return m.healthErr }

// fixedAsker returns the same reply or error for every question.
func fixedAsker(resp *api.ChatResponse, err error) transport.Asker {
	return transport.AskerFunc(func(context.Context, string, *api.ChatRequest) (*api.ChatResponse, error) {
		return resp, err
	})
}

func newTestServer(t *testing.T, asker transport.Asker, sessions transport.SessionService, cfg Config) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewAdapter(asker, sessions, cfg).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func postChat(t *testing.T, srv *httptest.Server, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(srv.URL+"/v1/sessions/"+testSession+"/chat", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST error: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeError(t *testing.T, resp *http.Response) *api.APIError {
	t.Helper()
	var errResp api.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if errResp.Error == nil {
		t.Fatal("error envelope is empty")
	}
	return errResp.Error
}

func doRequest(t *testing.T, method, url string, body io.Reader) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

// --- Sessions ---

func TestCreateSessionReturns201(t *testing.T) {
	srv := newTestServer(t, fixedAsker(nil, nil), newMockSessions(), DefaultConfig())

	resp, err := http.Post(srv.URL+"/v1/sessions", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusCreated)
	}
	var info api.SessionInfo
	json.NewDecoder(resp.Body).Decode(&info)
	if !api.ValidateSessionID(info.ID) || info.Object != "session" {
		t.Errorf("info = %+v", info)
	}
}

func TestGetSession(t *testing.T) {
	srv := newTestServer(t, fixedAsker(nil, nil), newMockSessions(), DefaultConfig())

	tests := []struct {
		name       string
		id         string
		wantStatus int
	}{
		{"existing", testSession, http.StatusOK},
		{"unknown", "sess_zzzzzzzzzzzzzzzzzzzzzzzz", http.StatusNotFound},
		{"malformed", "not-a-session", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doRequest(t, http.MethodGet, srv.URL+"/v1/sessions/"+tt.id, nil)
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
		})
	}
}

func TestDeleteSessionReturns204(t *testing.T) {
	sessions := newMockSessions()
	srv := newTestServer(t, fixedAsker(nil, nil), sessions, DefaultConfig())

	resp := doRequest(t, http.MethodDelete, srv.URL+"/v1/sessions/"+testSession, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusNoContent)
	}

	resp = doRequest(t, http.MethodDelete, srv.URL+"/v1/sessions/"+testSession, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("second delete status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
}

// --- Upload ---

func multipartBody(t *testing.T, field, filename, content string) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatal(err)
	}
	fw.Write([]byte(content))
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func TestUploadStoresFile(t *testing.T) {
	sessions := newMockSessions()
	srv := newTestServer(t, fixedAsker(nil, nil), sessions, DefaultConfig())

	body, ct := multipartBody(t, "file", "sales.csv", "region,amount\nnorth,10\n")
	resp, err := http.Post(srv.URL+"/v1/sessions/"+testSession+"/upload", ct, body)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	var up api.UploadResponse
	json.NewDecoder(resp.Body).Decode(&up)
	if up.Status != "success" || up.Filename != "sales.csv" {
		t.Errorf("upload = %+v", up)
	}
	if sessions.uploads["sales.csv"] != "region,amount\nnorth,10\n" {
		t.Errorf("stored content = %q", sessions.uploads["sales.csv"])
	}
}

func TestUploadLoadErrorReturns422(t *testing.T) {
	sessions := newMockSessions()
	sessions.loadError = "Error loading CSV: empty file"
	srv := newTestServer(t, fixedAsker(nil, nil), sessions, DefaultConfig())

	body, ct := multipartBody(t, "file", "empty.csv", "")
	resp, err := http.Post(srv.URL+"/v1/sessions/"+testSession+"/upload", ct, body)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusUnprocessableEntity)
	}
	var up api.UploadResponse
	json.NewDecoder(resp.Body).Decode(&up)
	if up.Status != "error" || !strings.Contains(up.Message, "empty file") {
		t.Errorf("upload = %+v", up)
	}
}

func TestUploadMissingFileReturns400(t *testing.T) {
	srv := newTestServer(t, fixedAsker(nil, nil), newMockSessions(), DefaultConfig())

	body, ct := multipartBody(t, "data", "sales.csv", "a\n1\n")
	resp, err := http.Post(srv.URL+"/v1/sessions/"+testSession+"/upload", ct, body)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
	if apiErr := decodeError(t, resp); apiErr.Param != "file" {
		t.Errorf("param = %q, want file", apiErr.Param)
	}
}

func TestUploadTooLargeReturns413(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxUploadBytes = 64
	srv := newTestServer(t, fixedAsker(nil, nil), newMockSessions(), cfg)

	body, ct := multipartBody(t, "file", "big.csv", strings.Repeat("x,y\n", 100))
	resp, err := http.Post(srv.URL+"/v1/sessions/"+testSession+"/upload", ct, body)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusRequestEntityTooLarge)
	}
}

// --- Chat ---

func TestChatReturnsJSON(t *testing.T) {
	image := "/v1/artifacts/" + testSession + "/plot_1.png"
	asker := fixedAsker(&api.ChatResponse{
		TurnID:   "turn_abc",
		Response: "Output:\n42\n",
		Image:    &image,
		Status:   api.TurnStatusSuccess,
		Attempts: 2,
	}, nil)
	srv := newTestServer(t, asker, newMockSessions(), DefaultConfig())

	resp := postChat(t, srv, `{"message": "what is the answer?"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var got map[string]any
	json.NewDecoder(resp.Body).Decode(&got)
	if got["response"] != "Output:\n42\n" || got["image"] != image || got["status"] != "success" {
		t.Errorf("body = %v", got)
	}
	if got["attempts"] != float64(2) {
		t.Errorf("attempts = %v", got["attempts"])
	}
}

func TestChatWithoutImageEncodesNull(t *testing.T) {
	asker := fixedAsker(&api.ChatResponse{Response: "Output:\n1\n", Status: api.TurnStatusSuccess, Attempts: 1}, nil)
	srv := newTestServer(t, asker, newMockSessions(), DefaultConfig())

	resp := postChat(t, srv, `{"message": "x"}`)
	raw, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(raw), `"image":null`) {
		t.Errorf("body = %s, want image null", raw)
	}
}

func TestChatPassesSessionAndMessage(t *testing.T) {
	var gotSession, gotMessage string
	asker := transport.AskerFunc(func(_ context.Context, id string, req *api.ChatRequest) (*api.ChatResponse, error) {
		gotSession, gotMessage = id, req.Message
		return &api.ChatResponse{Status: api.TurnStatusSuccess}, nil
	})
	srv := newTestServer(t, asker, newMockSessions(), DefaultConfig())

	postChat(t, srv, `{"message": "mean price by region"}`)
	if gotSession != testSession || gotMessage != "mean price by region" {
		t.Errorf("got (%q, %q)", gotSession, gotMessage)
	}
}

func TestChatInvalidJSONReturns400(t *testing.T) {
	srv := newTestServer(t, fixedAsker(nil, nil), newMockSessions(), DefaultConfig())

	resp := postChat(t, srv, "{invalid")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
	if apiErr := decodeError(t, resp); apiErr.Type != api.ErrorTypeInvalidRequest {
		t.Errorf("error type = %q", apiErr.Type)
	}
}

func TestChatOversizedBodyReturns413(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxBodySize = 10
	srv := newTestServer(t, fixedAsker(nil, nil), newMockSessions(), cfg)

	resp := postChat(t, srv, `{"message": "a question that is far too long"}`)
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusRequestEntityTooLarge)
	}
}

func TestChatWrongContentTypeReturns415(t *testing.T) {
	srv := newTestServer(t, fixedAsker(nil, nil), newMockSessions(), DefaultConfig())

	resp, err := http.Post(srv.URL+"/v1/sessions/"+testSession+"/chat", "text/plain", strings.NewReader("{}"))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnsupportedMediaType {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusUnsupportedMediaType)
	}
}

func TestChatAcceptsContentTypeWithCharset(t *testing.T) {
	asker := fixedAsker(&api.ChatResponse{Status: api.TurnStatusSuccess}, nil)
	srv := newTestServer(t, asker, newMockSessions(), DefaultConfig())

	resp, err := http.Post(srv.URL+"/v1/sessions/"+testSession+"/chat", "application/json; charset=utf-8", strings.NewReader(`{"message":"x"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
}

func TestChatErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   api.ErrorType
	}{
		{"oracle failure", api.NewOracleError("the code generation backend failed"), http.StatusBadGateway, api.ErrorTypeOracleError},
		{"no dataset", api.NewInvalidRequestError("file", "no dataset loaded"), http.StatusBadRequest, api.ErrorTypeInvalidRequest},
		{"unknown session", api.NewNotFoundError("session not found"), http.StatusNotFound, api.ErrorTypeNotFound},
		{"session limit", api.NewTooManyRequestsError("session limit reached"), http.StatusTooManyRequests, api.ErrorTypeTooManyRequests},
		{"plain error", errors.New("boom"), http.StatusInternalServerError, api.ErrorTypeServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, fixedAsker(nil, tt.err), newMockSessions(), DefaultConfig())

			resp := postChat(t, srv, `{"message": "x"}`)
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if apiErr := decodeError(t, resp); apiErr.Type != tt.wantType {
				t.Errorf("error type = %q, want %q", apiErr.Type, tt.wantType)
			}
		})
	}
}

func TestChatExplicitCancellation(t *testing.T) {
	sessions := newMockSessions()
	started := make(chan struct{})
	asker := transport.AskerFunc(func(ctx context.Context, id string, _ *api.ChatRequest) (*api.ChatResponse, error) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		sessions.mu.Lock()
		sessions.running[id] = cancel
		sessions.mu.Unlock()
		close(started)
		select {
		case <-ctx.Done():
			return &api.ChatResponse{Response: "turn cancelled: " + ctx.Err().Error(), Status: api.TurnStatusFailed}, nil
		case <-time.After(5 * time.Second):
			return &api.ChatResponse{Status: api.TurnStatusSuccess}, nil
		}
	})
	srv := newTestServer(t, asker, sessions, DefaultConfig())

	type result struct {
		status int
		body   api.ChatResponse
	}
	done := make(chan result, 1)
	go func() {
		resp, err := http.Post(srv.URL+"/v1/sessions/"+testSession+"/chat", "application/json", strings.NewReader(`{"message":"slow"}`))
		if err != nil {
			done <- result{}
			return
		}
		defer resp.Body.Close()
		var r result
		r.status = resp.StatusCode
		json.NewDecoder(resp.Body).Decode(&r.body)
		done <- r
	}()

	<-started
	resp := doRequest(t, http.MethodDelete, srv.URL+"/v1/sessions/"+testSession+"/chat", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("cancel status = %d, want %d", resp.StatusCode, http.StatusNoContent)
	}

	select {
	case r := <-done:
		if r.status != http.StatusOK || r.body.Status != api.TurnStatusFailed {
			t.Errorf("chat = %d %+v", r.status, r.body)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("chat did not return after cancellation")
	}
}

func TestCancelWithoutTurnReturns404(t *testing.T) {
	srv := newTestServer(t, fixedAsker(nil, nil), newMockSessions(), DefaultConfig())

	resp := doRequest(t, http.MethodDelete, srv.URL+"/v1/sessions/"+testSession+"/chat", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
}

// --- Turns and artifacts ---

func TestListTurnsParsesOptions(t *testing.T) {
	sessions := newMockSessions()
	srv := newTestServer(t, fixedAsker(nil, nil), sessions, DefaultConfig())

	resp := doRequest(t, http.MethodGet, srv.URL+"/v1/sessions/"+testSession+"/turns?limit=5&order=desc&after=turn_x", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	want := storage.ListOptions{Limit: 5, Order: "desc", After: "turn_x"}
	if sessions.listOpts != want {
		t.Errorf("opts = %+v, want %+v", sessions.listOpts, want)
	}
}

func TestListTurnsRejectsBadOptions(t *testing.T) {
	srv := newTestServer(t, fixedAsker(nil, nil), newMockSessions(), DefaultConfig())

	for _, query := range []string{"limit=0", "limit=abc", "order=sideways"} {
		t.Run(query, func(t *testing.T) {
			resp := doRequest(t, http.MethodGet, srv.URL+"/v1/sessions/"+testSession+"/turns?"+query, nil)
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
			}
		})
	}
}

func TestArtifactServesFile(t *testing.T) {
	sessions := newMockSessions()
	sessions.artifacts = t.TempDir()
	dir := filepath.Join(sessions.artifacts, testSession)
	os.MkdirAll(dir, 0o755)
	png := []byte("\x89PNG\r\n\x1a\nfake")
	os.WriteFile(filepath.Join(dir, "plot_1.png"), png, 0o644)

	srv := newTestServer(t, fixedAsker(nil, nil), sessions, DefaultConfig())

	resp := doRequest(t, http.MethodGet, srv.URL+"/v1/artifacts/"+testSession+"/plot_1.png", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q, want image/png", ct)
	}
	got, _ := io.ReadAll(resp.Body)
	if !bytes.Equal(got, png) {
		t.Errorf("body = %q", got)
	}

	resp = doRequest(t, http.MethodGet, srv.URL+"/v1/artifacts/"+testSession+"/plot_9.png", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing artifact status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
}

// --- Plumbing ---

func TestHealthz(t *testing.T) {
	sessions := newMockSessions()
	srv := newTestServer(t, fixedAsker(nil, nil), sessions, DefaultConfig())

	resp := doRequest(t, http.MethodGet, srv.URL+"/healthz", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	sessions.healthErr = errors.New("connection refused")
	resp = doRequest(t, http.MethodGet, srv.URL+"/healthz", nil)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("unhealthy status = %d, want %d", resp.StatusCode, http.StatusServiceUnavailable)
	}
}

func TestRequestIDHeaderEchoed(t *testing.T) {
	srv := newTestServer(t, fixedAsker(nil, nil), newMockSessions(), DefaultConfig())

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/v1/sessions/"+testSession, nil)
	req.Header.Set("X-Request-ID", "req-123")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if got := resp.Header.Get("X-Request-ID"); got != "req-123" {
		t.Errorf("X-Request-ID = %q, want %q", got, "req-123")
	}
}

func TestExtraHandlerMounted(t *testing.T) {
	adapter := NewAdapter(fixedAsker(nil, nil), newMockSessions(), DefaultConfig())
	adapter.Handle("GET /metrics", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("# metrics\n"))
	}))
	srv := httptest.NewServer(adapter.Handler())
	defer srv.Close()

	resp := doRequest(t, http.MethodGet, srv.URL+"/metrics", nil)
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(body) != "# metrics\n" {
		t.Errorf("status = %d, body = %q", resp.StatusCode, body)
	}
}

func TestUnknownPathReturns404(t *testing.T) {
	srv := newTestServer(t, fixedAsker(nil, nil), newMockSessions(), DefaultConfig())

	resp := doRequest(t, http.MethodGet, srv.URL+"/v1/nonexistent", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv := newTestServer(t, fixedAsker(nil, nil), newMockSessions(), DefaultConfig())

	resp := doRequest(t, http.MethodPut, srv.URL+"/v1/sessions/"+testSession+"/chat", nil)
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusMethodNotAllowed)
	}
}
