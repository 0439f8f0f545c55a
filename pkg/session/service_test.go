package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rhuss/tabula/pkg/api"
	"github.com/rhuss/tabula/pkg/storage"
)

func newService(t *testing.T, o *queueOracle) *Service {
	t.Helper()
	m := newManager(t, newEngineRunner(t, o), Options{})
	return NewService(m, api.DefaultValidationConfig())
}

func apiErrorType(t *testing.T, err error) api.ErrorType {
	t.Helper()
	var apiErr *api.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *api.APIError, got %T: %v", err, err)
	}
	return apiErr.Type
}

func TestService_UploadAndAsk(t *testing.T) {
	svc := newService(t, &queueOracle{codes: []string{
		"var total = df.sum('amount'); print(total)",
	}})
	ctx := context.Background()

	info, err := svc.CreateSession(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if info.Object != "session" || !api.ValidateSessionID(info.ID) {
		t.Errorf("info = %+v", info)
	}

	up, err := svc.Upload(ctx, info.ID, "../../sales.csv", strings.NewReader("region,amount\nnorth,10\nsouth,20\n"))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if up.Status != "success" || up.Filename != "sales.csv" {
		t.Errorf("upload = %+v", up)
	}

	resp, err := svc.Ask(ctx, info.ID, &api.ChatRequest{Message: "total amount?"})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if resp.Response != "Output:\n30\n" || resp.Status != api.TurnStatusSuccess || resp.Attempts != 1 {
		t.Errorf("resp = %+v", resp)
	}
	if resp.Image != nil {
		t.Errorf("image = %q, want nil", *resp.Image)
	}

	list, err := svc.ListTurns(ctx, info.ID, storage.ListOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(list.Data) != 1 || list.Data[0].ID != resp.TurnID {
		t.Errorf("turns = %+v", list.Data)
	}
}

func TestService_UploadUnparseableKeepsPreviousDataset(t *testing.T) {
	svc := newService(t, &queueOracle{codes: []string{"print(df.length)"}})
	ctx := context.Background()
	info, _ := svc.CreateSession(ctx)

	if _, err := svc.Upload(ctx, info.ID, "a.csv", strings.NewReader("x\n1\n2\n")); err != nil {
		t.Fatal(err)
	}
	up, err := svc.Upload(ctx, info.ID, "broken.json", strings.NewReader("{not json"))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if up.Status != "error" || up.Message == "" {
		t.Errorf("upload = %+v", up)
	}

	resp, err := svc.Ask(ctx, info.ID, &api.ChatRequest{Message: "rows?"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Response != "Output:\n2\n" {
		t.Errorf("response = %q, want previous dataset", resp.Response)
	}
}

func TestService_FailedUploadKeepsDatasetFile(t *testing.T) {
	svc := newService(t, &queueOracle{codes: []string{"print(df.length)"}})
	ctx := context.Background()
	info, _ := svc.CreateSession(ctx)

	const good = "x\n1\n2\n"
	if up, err := svc.Upload(ctx, info.ID, "data.csv", strings.NewReader(good)); err != nil || up.Status != "success" {
		t.Fatalf("Upload = %+v, %v", up, err)
	}
	up, err := svc.Upload(ctx, info.ID, "data.csv", strings.NewReader(""))
	if err != nil {
		t.Fatal(err)
	}
	if up.Status != "error" {
		t.Fatalf("upload of an empty file = %+v", up)
	}

	sess, _ := svc.GetSession(ctx, info.ID)
	data, err := os.ReadFile(sess.DatasetPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != good {
		t.Errorf("dataset file = %q, want the previous upload", data)
	}
	entries, _ := os.ReadDir(filepath.Dir(sess.DatasetPath))
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".upload-") {
			t.Errorf("staged file %s left behind", e.Name())
		}
	}
}

func TestService_CancelTurn(t *testing.T) {
	runner := &blockingRunner{started: make(chan struct{}, 1), release: make(chan struct{})}
	svc := NewService(newManager(t, runner, Options{}), api.DefaultValidationConfig())
	ctx := context.Background()
	info, _ := svc.CreateSession(ctx)
	svc.Upload(ctx, info.ID, "a.csv", strings.NewReader("x\n1\n"))

	if err := svc.CancelTurn(ctx, info.ID); apiErrorType(t, err) != api.ErrorTypeNotFound {
		t.Errorf("cancel while idle: %v", err)
	}

	type result struct {
		resp *api.ChatResponse
		err  error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := svc.Ask(ctx, info.ID, &api.ChatRequest{Message: "rows?"})
		done <- result{resp, err}
	}()
	<-runner.started

	if err := svc.CancelTurn(ctx, info.ID); err != nil {
		t.Fatalf("CancelTurn: %v", err)
	}
	res := <-done
	if res.err != nil {
		t.Fatalf("Ask: %v", res.err)
	}
	if res.resp.Status != api.TurnStatusFailed {
		t.Errorf("status = %s, want failed", res.resp.Status)
	}
}

func TestService_PlotImageURL(t *testing.T) {
	svc := newService(t, &queueOracle{codes: []string{"plot.line([1, 2, 3], [3, 1, 2])"}})
	ctx := context.Background()
	info, _ := svc.CreateSession(ctx)
	svc.Upload(ctx, info.ID, "a.csv", strings.NewReader("x\n1\n"))

	resp, err := svc.Ask(ctx, info.ID, &api.ChatRequest{Message: "plot"})
	if err != nil {
		t.Fatal(err)
	}
	want := ArtifactURLPrefix + info.ID + "/plot_1.png"
	if resp.Image == nil || *resp.Image != want {
		t.Fatalf("image = %v, want %q", resp.Image, want)
	}

	path, err := svc.ArtifactPath(info.ID, "plot_1.png")
	if err != nil {
		t.Fatalf("ArtifactPath: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("artifact missing: %v", err)
	}
	if _, err := svc.ArtifactPath(info.ID, "plot_2.png"); apiErrorType(t, err) != api.ErrorTypeNotFound {
		t.Errorf("missing artifact: %v", err)
	}
	if _, err := svc.ArtifactPath(info.ID, "../work"); apiErrorType(t, err) != api.ErrorTypeInvalidRequest {
		t.Errorf("traversal: %v", err)
	}
}

func TestService_ErrorMapping(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown session", func(t *testing.T) {
		svc := newService(t, &queueOracle{codes: []string{"print(1)"}})
		_, err := svc.GetSession(ctx, "sess_missing")
		if apiErrorType(t, err) != api.ErrorTypeNotFound {
			t.Errorf("err = %v", err)
		}
		if err := svc.DeleteSession(ctx, "sess_missing"); apiErrorType(t, err) != api.ErrorTypeNotFound {
			t.Errorf("delete err = %v", err)
		}
	})

	t.Run("empty message", func(t *testing.T) {
		svc := newService(t, &queueOracle{codes: []string{"print(1)"}})
		info, _ := svc.CreateSession(ctx)
		_, err := svc.Ask(ctx, info.ID, &api.ChatRequest{Message: "   "})
		if apiErrorType(t, err) != api.ErrorTypeInvalidRequest {
			t.Errorf("err = %v", err)
		}
	})

	t.Run("no dataset", func(t *testing.T) {
		svc := newService(t, &queueOracle{codes: []string{"print(1)"}})
		info, _ := svc.CreateSession(ctx)
		_, err := svc.Ask(ctx, info.ID, &api.ChatRequest{Message: "rows?"})
		if apiErrorType(t, err) != api.ErrorTypeInvalidRequest {
			t.Errorf("err = %v", err)
		}
	})

	t.Run("oracle failure is generic", func(t *testing.T) {
		svc := newService(t, &queueOracle{err: errors.New("401 invalid api key sk-secret")})
		info, _ := svc.CreateSession(ctx)
		svc.Upload(ctx, info.ID, "a.csv", strings.NewReader("x\n1\n"))

		_, err := svc.Ask(ctx, info.ID, &api.ChatRequest{Message: "rows?"})
		if apiErrorType(t, err) != api.ErrorTypeOracleError {
			t.Errorf("err = %v", err)
		}
		if strings.Contains(err.Error(), "sk-secret") {
			t.Errorf("oracle cause leaked: %v", err)
		}
	})

	t.Run("session limit", func(t *testing.T) {
		m := newManager(t, newEngineRunner(t, &queueOracle{codes: []string{"print(1)"}}), Options{MaxSessions: 1})
		svc := NewService(m, api.DefaultValidationConfig())
		svc.CreateSession(ctx)
		_, err := svc.CreateSession(ctx)
		if apiErrorType(t, err) != api.ErrorTypeTooManyRequests {
			t.Errorf("err = %v", err)
		}
	})

	t.Run("malformed id in history", func(t *testing.T) {
		svc := newService(t, &queueOracle{codes: []string{"print(1)"}})
		_, err := svc.ListTurns(ctx, "not-a-session", storage.ListOptions{})
		if apiErrorType(t, err) != api.ErrorTypeInvalidRequest {
			t.Errorf("err = %v", err)
		}
	})
}

func TestService_ExhaustedTurnIsAReply(t *testing.T) {
	svc := newService(t, &queueOracle{codes: []string{"undefinedThing()"}})
	ctx := context.Background()
	info, _ := svc.CreateSession(ctx)
	svc.Upload(ctx, info.ID, "a.csv", strings.NewReader("x\n1\n"))

	resp, err := svc.Ask(ctx, info.ID, &api.ChatRequest{Message: "rows?"})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if resp.Status != api.TurnStatusExhausted || resp.Attempts != 3 {
		t.Errorf("resp = %+v", resp)
	}
	if !strings.HasPrefix(resp.Response, "Error: ") {
		t.Errorf("response = %q, want raw error", resp.Response)
	}
}

func TestService_BackendRateLimitIsGeneric(t *testing.T) {
	svc := newService(t, &queueOracle{err: api.NewTooManyRequestsError("quota for key sk-secret exceeded")})
	ctx := context.Background()
	info, _ := svc.CreateSession(ctx)
	svc.Upload(ctx, info.ID, "a.csv", strings.NewReader("x\n1\n"))

	_, err := svc.Ask(ctx, info.ID, &api.ChatRequest{Message: "rows?"})
	if apiErrorType(t, err) != api.ErrorTypeTooManyRequests {
		t.Errorf("err = %v", err)
	}
	if strings.Contains(err.Error(), "sk-secret") {
		t.Errorf("error leaks backend message: %v", err)
	}
}

func TestService_CancelledTurnIsAReply(t *testing.T) {
	runner := &blockingRunner{started: make(chan struct{}, 1), release: make(chan struct{})}
	svc := NewService(newManager(t, runner, Options{}), api.DefaultValidationConfig())
	info, _ := svc.CreateSession(context.Background())
	svc.Upload(context.Background(), info.ID, "a.csv", strings.NewReader("x\n1\n"))

	ctx, cancel := context.WithCancel(context.Background())
	type result struct {
		resp *api.ChatResponse
		err  error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := svc.Ask(ctx, info.ID, &api.ChatRequest{Message: "rows?"})
		done <- result{resp, err}
	}()

	<-runner.started
	cancel()
	res := <-done
	if res.err != nil {
		t.Fatalf("Ask: %v", res.err)
	}
	if res.resp.Status != api.TurnStatusFailed {
		t.Errorf("status = %s, want failed", res.resp.Status)
	}
}
