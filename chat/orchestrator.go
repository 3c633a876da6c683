package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"parley/backend"
	"parley/common"
	"parley/config"
	"parley/domain"
	"parley/reference"
	"parley/workspace"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
)

// BackendResolver resolves a backend name against a config snapshot.
type BackendResolver interface {
	Resolve(cfg domain.Config, ws domain.Workspace, name string) (backend.Handle, error)
}

const maxRateLimitRetries = 2

// AskOrchestrator runs the full ask lifecycle: state transition, reference
// merging, backend dispatch with bounded retry, context append and attachment
// cleanup. Every backend fault is reduced to a ChatFinishResult; the only
// errors returned directly are pre-dispatch ones the caller must handle
// (unknown workspace, ask already in flight).
type AskOrchestrator struct {
	config     *config.Manager
	workspaces *workspace.Manager
	resolver   BackendResolver
	askTimeout time.Duration

	newBackoff func() backoff.BackOff
}

func NewAskOrchestrator(configManager *config.Manager, workspaces *workspace.Manager, resolver BackendResolver, askTimeout time.Duration) *AskOrchestrator {
	return &AskOrchestrator{
		config:     configManager,
		workspaces: workspaces,
		resolver:   resolver,
		askTimeout: askTimeout,
		newBackoff: func() backoff.BackOff { return backoff.NewExponentialBackOff() },
	}
}

// Ask runs one conversation turn on the given workspace.
func (o *AskOrchestrator) Ask(ctx context.Context, workspaceId string, options domain.AskOptions) (domain.ChatFinishResult, error) {
	if err := o.workspaces.BeginAsk(workspaceId); err != nil {
		return domain.ChatFinishResult{}, err
	}

	result := o.ask(ctx, workspaceId, options)
	o.workspaces.FinishAsk(workspaceId, result)

	if result.Success {
		log.Info().Str("workspaceId", workspaceId).Msg("Ask finished")
	} else {
		log.Warn().Str("workspaceId", workspaceId).
			Str("errType", string(result.ErrType)).Str("errMsg", result.ErrMsg).
			Msg("Ask failed")
	}
	return result, nil
}

func (o *AskOrchestrator) ask(ctx context.Context, workspaceId string, options domain.AskOptions) domain.ChatFinishResult {
	cfg := o.config.Snapshot()
	ws, ok := cfg.GetWorkspace(workspaceId)
	if !ok {
		return domain.FailedChatFinishResult(domain.ErrTypeBackendUnavailable,
			fmt.Errorf("workspace %s: %w", workspaceId, common.ErrNotFound))
	}

	backendName := o.backendName(*ws, options)
	handle, err := o.resolver.Resolve(cfg, *ws, backendName)
	if err != nil {
		return domain.FailedChatFinishResult(domain.ErrTypeBackendUnavailable, err)
	}

	req := o.buildRequest(*ws, options)

	askCtx := ctx
	var cancel context.CancelFunc
	if o.askTimeout > 0 {
		askCtx, cancel = context.WithTimeout(ctx, o.askTimeout)
		defer cancel()
	}

	if result, failed := o.resolveFileUpload(askCtx, handle, &req); failed {
		return result
	}

	invokeResult, err := o.invokeWithRetry(askCtx, handle, req)
	if err != nil {
		errType := backend.Classify(err)
		if errType == domain.ErrTypeTimeout && ctx.Err() == context.Canceled {
			errType = domain.ErrTypeCanceled
		}
		return domain.FailedChatFinishResult(errType, err)
	}

	if err := o.commitTurn(ctx, cfg, workspaceId, req.Prompt, invokeResult.Content); err != nil {
		return domain.FailedChatFinishResult(domain.ErrTypeBackendUnavailable, err)
	}
	return domain.SuccessChatFinishResult()
}

func (o *AskOrchestrator) backendName(ws domain.Workspace, options domain.AskOptions) string {
	if options.Type == domain.AskTypeSydney {
		return domain.BackendNameSydney
	}
	if options.OpenaiBackend != "" {
		return options.OpenaiBackend
	}
	return ws.Backend
}

// buildRequest assembles the invoke request: parsed chat context, attached
// data references rendered as context blocks, then the new prompt. An
// attached image rides along as the request image URL rather than text.
func (o *AskOrchestrator) buildRequest(ws domain.Workspace, options domain.AskOptions) backend.InvokeRequest {
	chatContext := ws.Context
	if options.ChatContext != "" {
		chatContext = options.ChatContext
	}
	messages := common.ParseChatContext(chatContext)

	imageURL := options.ImageURL
	for _, ref := range ws.DataReferences {
		switch payload := ref.Data.(type) {
		case domain.DocumentPayload:
			messages = append(messages, common.ChatMessage{
				Role: "user", Type: "document_context", Content: payload.Text,
			})
		case domain.WebpagePayload:
			messages = append(messages, common.ChatMessage{
				Role: "user", Type: "webpage_context",
				Content: payload.URL + "\n" + payload.Content,
			})
		case domain.VideoTranscriptPayload:
			messages = append(messages, common.ChatMessage{
				Role: "user", Type: "video_transcript", Content: renderTranscript(payload),
			})
		case domain.ImagePayload:
			if imageURL == "" {
				if payload.RemoteURL != "" {
					imageURL = payload.RemoteURL
				} else {
					imageURL = payload.Base64URL
				}
			}
		}
	}

	return backend.InvokeRequest{
		Messages:       messages,
		Prompt:         options.Prompt,
		ImageURL:       imageURL,
		UploadFilePath: options.UploadFilePath,
		Model:          firstNonEmpty(options.Model, ws.Model),
	}
}

// resolveFileUpload turns an upload_file_path ask option into the request
// image URL by pushing the file through the backend's image uploader before
// the chat turn. Backends without an uploader reject the option rather than
// silently dropping it. An already-set image URL wins.
func (o *AskOrchestrator) resolveFileUpload(ctx context.Context, handle backend.Handle, req *backend.InvokeRequest) (domain.ChatFinishResult, bool) {
	if req.UploadFilePath == "" || req.ImageURL != "" {
		return domain.ChatFinishResult{}, false
	}

	uploader, ok := handle.(reference.ImageUploader)
	if !ok {
		return domain.FailedChatFinishResult(domain.ErrTypeContentRejected,
			fmt.Errorf("backend %s does not accept file uploads", handle.Name())), true
	}

	upload, err := reference.IngestImageFile(ctx, req.UploadFilePath, uploader)
	if err != nil {
		return domain.FailedChatFinishResult(backend.Classify(err), err), true
	}
	req.ImageURL = firstNonEmpty(upload.BingURL, upload.Base64URL)
	return domain.ChatFinishResult{}, false
}

func renderTranscript(payload domain.VideoTranscriptPayload) string {
	var sb strings.Builder
	sb.WriteString(payload.VideoTitle + " (" + payload.CaptionName + ")\n")
	for _, seg := range payload.Segments {
		sb.WriteString(fmt.Sprintf("%.2f: %s\n", seg.Start, seg.Value))
	}
	return sb.String()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// invokeWithRetry dispatches the request, retrying with exponential backoff
// only on rate limiting. Every other fault surfaces immediately.
func (o *AskOrchestrator) invokeWithRetry(ctx context.Context, handle backend.Handle, req backend.InvokeRequest) (backend.InvokeResult, error) {
	policy := backoff.WithContext(backoff.WithMaxRetries(o.newBackoff(), maxRateLimitRetries), ctx)

	var result backend.InvokeResult
	operation := func() error {
		var err error
		result, err = handle.Invoke(ctx, req)
		if err == nil {
			return nil
		}
		if backend.Classify(err) == domain.ErrTypeRateLimited {
			log.Debug().Str("backend", handle.Name()).Msg("Rate limited, backing off")
			return err
		}
		return backoff.Permanent(err)
	}
	err := backoff.Retry(operation, policy)
	return result, err
}

// commitTurn appends the exchanged messages to the workspace context and
// applies the post-ask cleanup rules for input and attachments.
func (o *AskOrchestrator) commitTurn(ctx context.Context, cfg domain.Config, workspaceId, prompt, reply string) error {
	return o.workspaces.Update(ctx, workspaceId, func(ws *domain.Workspace) error {
		ws.Context += common.FormatChatMessage(common.ChatMessage{Role: "user", Type: "message", Content: prompt})
		ws.Context += common.FormatChatMessage(common.ChatMessage{Role: "assistant", Type: "message", Content: reply})

		if !ws.PersistentInput {
			ws.Input = ""
		}

		kept := ws.DataReferences[:0]
		for _, ref := range ws.DataReferences {
			switch ref.Type {
			case domain.DataReferenceTypeImage:
				if cfg.NoImageRemovalAfterChat {
					kept = append(kept, ref)
				}
			default:
				if cfg.NoFileRemovalAfterChat {
					kept = append(kept, ref)
				}
			}
		}
		ws.DataReferences = kept
		return nil
	})
}
