package chat

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"parley/backend"
	"parley/config"
	"parley/domain"
	"parley/store"
	"parley/workspace"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHandle struct {
	name    string
	reply   string
	errs    []error
	calls   int
	lastReq backend.InvokeRequest
}

func (h *fakeHandle) Name() string { return h.name }

func (h *fakeHandle) Invoke(ctx context.Context, req backend.InvokeRequest) (backend.InvokeResult, error) {
	h.calls++
	h.lastReq = req
	if len(h.errs) > 0 {
		err := h.errs[0]
		h.errs = h.errs[1:]
		if err != nil {
			return backend.InvokeResult{}, err
		}
	}
	return backend.InvokeResult{Content: h.reply}, nil
}

type fakeUploaderHandle struct {
	fakeHandle
	uploads   int
	uploadErr error
}

func (h *fakeUploaderHandle) UploadImage(ctx context.Context, jpgData []byte) (string, error) {
	h.uploads++
	if h.uploadErr != nil {
		return "", h.uploadErr
	}
	return "https://img.example/blob/1", nil
}

type fakeResolver struct {
	handle backend.Handle
	err    error
}

func (r *fakeResolver) Resolve(cfg domain.Config, ws domain.Workspace, name string) (backend.Handle, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.handle, nil
}

type fixture struct {
	config     *config.Manager
	workspaces *workspace.Manager
	handle     *fakeHandle
	resolver   *fakeResolver
	orch       *AskOrchestrator
	ws         domain.Workspace
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	docStore := store.NewFileStore(filepath.Join(t.TempDir(), "config.json"))
	configManager := config.NewManager(docStore)
	require.NoError(t, configManager.Load(context.Background()))

	workspaces := workspace.NewManager(configManager)
	ws, err := workspaces.Create(context.Background(), "test")
	require.NoError(t, err)

	handle := &fakeHandle{name: "fake", reply: "Hello from the bot."}
	resolver := &fakeResolver{handle: handle}
	orch := NewAskOrchestrator(configManager, workspaces, resolver, 5*time.Second)
	orch.newBackoff = func() backoff.BackOff {
		return backoff.NewConstantBackOff(time.Millisecond)
	}
	return &fixture{
		config:     configManager,
		workspaces: workspaces,
		handle:     handle,
		resolver:   resolver,
		orch:       orch,
		ws:         ws,
	}
}

func TestAskSuccessAppendsContext(t *testing.T) {
	f := newFixture(t)

	result, err := f.orch.Ask(context.Background(), f.ws.Id, domain.AskOptions{
		Type:   domain.AskTypeOpenAI,
		Prompt: "What is Go?",
	})
	require.NoError(t, err)
	assert.True(t, result.Success)

	ws, err := f.workspaces.Get(f.ws.Id)
	require.NoError(t, err)
	assert.Contains(t, ws.Context, "[user](#message)\nWhat is Go?")
	assert.Contains(t, ws.Context, "[assistant](#message)\nHello from the bot.")
	assert.Equal(t, domain.WorkspaceStatusIdle, f.workspaces.Status(f.ws.Id))
}

func TestAskUnreachableBackend(t *testing.T) {
	f := newFixture(t)
	f.handle.errs = []error{fmt.Errorf("%w: connection refused", backend.ErrUnavailable)}

	result, err := f.orch.Ask(context.Background(), f.ws.Id, domain.AskOptions{Prompt: "hi"})
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, domain.ErrTypeBackendUnavailable, result.ErrType)
	assert.NotEmpty(t, result.ErrMsg)

	// failed asks never touch the conversation context, and the workspace
	// settles back to idle with the failure on record
	ws, err := f.workspaces.Get(f.ws.Id)
	require.NoError(t, err)
	assert.NotContains(t, ws.Context, "hi")
	assert.Equal(t, domain.WorkspaceStatusIdle, f.workspaces.Status(f.ws.Id))
	lastErr, ok := f.workspaces.LastError(f.ws.Id)
	require.True(t, ok)
	assert.Equal(t, domain.ErrTypeBackendUnavailable, lastErr.ErrType)

	// the workspace accepts a new ask after the failure
	result, err = f.orch.Ask(context.Background(), f.ws.Id, domain.AskOptions{Prompt: "again"})
	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestAskRetriesOnRateLimit(t *testing.T) {
	f := newFixture(t)
	f.handle.errs = []error{
		fmt.Errorf("%w: slow down", backend.ErrRateLimited),
		fmt.Errorf("%w: slow down", backend.ErrRateLimited),
	}

	result, err := f.orch.Ask(context.Background(), f.ws.Id, domain.AskOptions{Prompt: "hi"})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 3, f.handle.calls)
}

func TestAskRateLimitRetriesAreBounded(t *testing.T) {
	f := newFixture(t)
	f.handle.errs = []error{
		fmt.Errorf("%w", backend.ErrRateLimited),
		fmt.Errorf("%w", backend.ErrRateLimited),
		fmt.Errorf("%w", backend.ErrRateLimited),
		fmt.Errorf("%w", backend.ErrRateLimited),
	}

	result, err := f.orch.Ask(context.Background(), f.ws.Id, domain.AskOptions{Prompt: "hi"})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, domain.ErrTypeRateLimited, result.ErrType)
	assert.Equal(t, 1+maxRateLimitRetries, f.handle.calls)
}

func TestAskDoesNotRetryAuthFailures(t *testing.T) {
	f := newFixture(t)
	f.handle.errs = []error{fmt.Errorf("%w: bad key", backend.ErrAuthFailure)}

	result, err := f.orch.Ask(context.Background(), f.ws.Id, domain.AskOptions{Prompt: "hi"})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, domain.ErrTypeAuthFailure, result.ErrType)
	assert.Equal(t, 1, f.handle.calls)
}

func TestAskCanceled(t *testing.T) {
	f := newFixture(t)
	f.handle.errs = []error{context.Canceled}

	result, err := f.orch.Ask(context.Background(), f.ws.Id, domain.AskOptions{Prompt: "hi"})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, domain.ErrTypeCanceled, result.ErrType)
	// cancellation leaves the workspace idle, not errored
	assert.Equal(t, domain.WorkspaceStatusIdle, f.workspaces.Status(f.ws.Id))
}

func TestAskInFlightRejected(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.workspaces.BeginAsk(f.ws.Id))

	_, err := f.orch.Ask(context.Background(), f.ws.Id, domain.AskOptions{Prompt: "hi"})
	assert.ErrorIs(t, err, workspace.ErrAskInFlight)
}

func TestAskUnknownBackend(t *testing.T) {
	f := newFixture(t)
	f.resolver.err = backend.ErrBackendNotFound

	result, err := f.orch.Ask(context.Background(), f.ws.Id, domain.AskOptions{Prompt: "hi"})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, domain.ErrTypeBackendUnavailable, result.ErrType)
}

func TestAskMergesDataReferences(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.workspaces.Update(ctx, f.ws.Id, func(ws *domain.Workspace) error {
		ws.DataReferences = []domain.DataReference{
			{UUID: "1", Type: domain.DataReferenceTypeDocument, Data: domain.DocumentPayload{Text: `"doc body"`, Ext: ".txt"}},
			{UUID: "2", Type: domain.DataReferenceTypeWebpage, Data: domain.WebpagePayload{URL: "https://example.com", Content: "page body"}},
			{UUID: "3", Type: domain.DataReferenceTypeImage, Data: domain.ImagePayload{Base64URL: "data:image/jpeg;base64,xx", RemoteURL: "https://img.example/b"}},
		}
		return nil
	})
	require.NoError(t, err)

	result, err := f.orch.Ask(ctx, f.ws.Id, domain.AskOptions{Prompt: "summarize"})
	require.NoError(t, err)
	require.True(t, result.Success)

	req := f.handle.lastReq
	var types []string
	for _, msg := range req.Messages {
		types = append(types, msg.Type)
	}
	assert.Contains(t, types, "document_context")
	assert.Contains(t, types, "webpage_context")
	assert.Equal(t, "https://img.example/b", req.ImageURL)
}

func TestAskCleansUpAttachments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	attach := func() {
		err := f.workspaces.Update(ctx, f.ws.Id, func(ws *domain.Workspace) error {
			ws.Input = "typed text"
			ws.DataReferences = []domain.DataReference{
				{UUID: "1", Type: domain.DataReferenceTypeDocument, Data: domain.DocumentPayload{Text: "d"}},
				{UUID: "2", Type: domain.DataReferenceTypeImage, Data: domain.ImagePayload{Base64URL: "b64"}},
			}
			return nil
		})
		require.NoError(t, err)
	}

	attach()
	result, err := f.orch.Ask(ctx, f.ws.Id, domain.AskOptions{Prompt: "go"})
	require.NoError(t, err)
	require.True(t, result.Success)

	ws, err := f.workspaces.Get(f.ws.Id)
	require.NoError(t, err)
	assert.Empty(t, ws.DataReferences)
	assert.Empty(t, ws.Input)

	// retention flags keep attachments across asks
	require.NoError(t, f.config.Update(ctx, func(cfg *domain.Config) error {
		cfg.NoImageRemovalAfterChat = true
		cfg.NoFileRemovalAfterChat = true
		return nil
	}))
	attach()
	result, err = f.orch.Ask(ctx, f.ws.Id, domain.AskOptions{Prompt: "go"})
	require.NoError(t, err)
	require.True(t, result.Success)

	ws, err = f.workspaces.Get(f.ws.Id)
	require.NoError(t, err)
	assert.Len(t, ws.DataReferences, 2)
}

func writeTestImage(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))))
	path := filepath.Join(t.TempDir(), "pic.png")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
	return path
}

func TestAskUploadsFileAttachment(t *testing.T) {
	f := newFixture(t)
	uploader := &fakeUploaderHandle{fakeHandle: fakeHandle{name: "fake", reply: "I see a picture."}}
	f.resolver.handle = uploader

	result, err := f.orch.Ask(context.Background(), f.ws.Id, domain.AskOptions{
		Prompt:         "what is this?",
		UploadFilePath: writeTestImage(t),
	})
	require.NoError(t, err)
	require.True(t, result.Success)

	assert.Equal(t, 1, uploader.uploads)
	assert.Equal(t, "https://img.example/blob/1", uploader.lastReq.ImageURL)
}

func TestAskUploadRejectedWithoutUploader(t *testing.T) {
	f := newFixture(t)

	result, err := f.orch.Ask(context.Background(), f.ws.Id, domain.AskOptions{
		Prompt:         "what is this?",
		UploadFilePath: writeTestImage(t),
	})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, domain.ErrTypeContentRejected, result.ErrType)
	assert.Equal(t, 0, f.handle.calls, "the chat turn never dispatches")
}

func TestAskUploadKeepsExplicitImageURL(t *testing.T) {
	f := newFixture(t)
	uploader := &fakeUploaderHandle{fakeHandle: fakeHandle{name: "fake", reply: "ok"}}
	f.resolver.handle = uploader

	result, err := f.orch.Ask(context.Background(), f.ws.Id, domain.AskOptions{
		Prompt:         "look",
		ImageURL:       "https://img.example/given",
		UploadFilePath: writeTestImage(t),
	})
	require.NoError(t, err)
	require.True(t, result.Success)

	assert.Equal(t, 0, uploader.uploads)
	assert.Equal(t, "https://img.example/given", uploader.lastReq.ImageURL)
}

func TestAskPersistentInputKept(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.workspaces.Update(ctx, f.ws.Id, func(ws *domain.Workspace) error {
		ws.PersistentInput = true
		ws.Input = "keep me"
		return nil
	})
	require.NoError(t, err)

	result, err := f.orch.Ask(ctx, f.ws.Id, domain.AskOptions{Prompt: "go"})
	require.NoError(t, err)
	require.True(t, result.Success)

	ws, err := f.workspaces.Get(f.ws.Id)
	require.NoError(t, err)
	assert.Equal(t, "keep me", ws.Input)
}
