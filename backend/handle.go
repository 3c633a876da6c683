package backend

import (
	"context"

	"parley/common"
)

// InvokeRequest carries one fully-resolved ask to a backend. Messages is the
// parsed chat context in conversation order; Prompt is the new user turn.
type InvokeRequest struct {
	Messages       []common.ChatMessage
	Prompt         string
	ImageURL       string
	UploadFilePath string
	Model          string
}

// InvokeResult is the terminal output of a successful backend call.
type InvokeResult struct {
	Content string
	Model   string
}

// Handle is a resolved, invocable backend. Handles are constructed per ask
// from the current config snapshot, so profile edits take effect on the next
// ask without restart.
type Handle interface {
	Name() string
	Invoke(ctx context.Context, req InvokeRequest) (InvokeResult, error)
}
