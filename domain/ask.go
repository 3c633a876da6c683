package domain

import "fmt"

// AskType selects the request flavor of an ask, which in turn selects the
// backend family handling it.
type AskType int

const (
	AskTypeSydney AskType = iota + 1
	AskTypeOpenAI
)

func (t AskType) String() string {
	switch t {
	case AskTypeSydney:
		return "sydney"
	case AskTypeOpenAI:
		return "openai"
	default:
		return fmt.Sprintf("unknown(%d)", int(t))
	}
}

// AskOptions is a transient per-request value, constructed by the caller and
// discarded after dispatch. It is never persisted.
type AskOptions struct {
	Type           AskType `json:"type"`
	OpenaiBackend  string  `json:"openai_backend"`
	ChatContext    string  `json:"chat_context"`
	Prompt         string  `json:"prompt"`
	ImageURL       string  `json:"image_url"`
	UploadFilePath string  `json:"upload_file_path"`
	Model          string  `json:"model"`
}

// ErrType is the closed error taxonomy surfaced in ChatFinishResult.
type ErrType string

const (
	// ErrTypeBackendUnavailable: resolution or connection failure, recoverable
	// by retry or backend switch.
	ErrTypeBackendUnavailable ErrType = "BackendUnavailable"
	// ErrTypeAuthFailure: invalid or expired credentials, surfaced for user
	// correction, never retried automatically.
	ErrTypeAuthFailure ErrType = "AuthFailure"
	// ErrTypeRateLimited: provider-side throttling, eligible for bounded
	// automatic retry with backoff.
	ErrTypeRateLimited ErrType = "RateLimited"
	// ErrTypeContentRejected: provider refused the request content, not
	// retried.
	ErrTypeContentRejected ErrType = "ContentRejected"
	// ErrTypeTimeout: call exceeded its deadline.
	ErrTypeTimeout ErrType = "Timeout"
	// ErrTypeMalformedResponse: backend returned data that cannot be parsed
	// into a result.
	ErrTypeMalformedResponse ErrType = "MalformedResponse"
	// ErrTypeCanceled: user-initiated cancellation. Not an error for UI
	// purposes, but always success=false so callers can distinguish it.
	ErrTypeCanceled ErrType = "Canceled"
)

// ChatFinishResult is the uniform terminal outcome of an ask. Every backend
// fault, timeout or cancellation is reduced to this shape; callers never need
// backend-specific error handling.
type ChatFinishResult struct {
	Success bool    `json:"success"`
	ErrType ErrType `json:"err_type,omitempty"`
	ErrMsg  string  `json:"err_msg,omitempty"`
}

func SuccessChatFinishResult() ChatFinishResult {
	return ChatFinishResult{Success: true}
}

func FailedChatFinishResult(errType ErrType, err error) ChatFinishResult {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return ChatFinishResult{Success: false, ErrType: errType, ErrMsg: msg}
}
