package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net"

	"parley/domain"

	openai "github.com/sashabaranov/go-openai"
)

// Sentinel faults for backends that do not speak HTTP status codes. Handles
// wrap these so Classify can map wire-level outcomes onto the error taxonomy.
var (
	ErrAuthFailure       = errors.New("backend rejected credentials")
	ErrRateLimited       = errors.New("backend throttled the request")
	ErrContentRejected   = errors.New("backend rejected the request content")
	ErrMalformedResponse = errors.New("backend returned an unparseable response")
	ErrUnavailable       = errors.New("backend unavailable")
)

// Classify maps an error from a backend invocation onto the closed ErrType
// taxonomy. Unknown errors default to BackendUnavailable, the only category
// that invites a plain retry.
func Classify(err error) domain.ErrType {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, context.Canceled):
		return domain.ErrTypeCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return domain.ErrTypeTimeout
	case errors.Is(err, ErrAuthFailure):
		return domain.ErrTypeAuthFailure
	case errors.Is(err, ErrRateLimited):
		return domain.ErrTypeRateLimited
	case errors.Is(err, ErrContentRejected):
		return domain.ErrTypeContentRejected
	case errors.Is(err, ErrMalformedResponse):
		return domain.ErrTypeMalformedResponse
	case errors.Is(err, ErrUnavailable):
		return domain.ErrTypeBackendUnavailable
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.ErrTypeTimeout
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return classifyStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return classifyStatus(reqErr.HTTPStatusCode)
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return domain.ErrTypeMalformedResponse
	}

	return domain.ErrTypeBackendUnavailable
}

func classifyStatus(status int) domain.ErrType {
	switch {
	case status == 401 || status == 403:
		return domain.ErrTypeAuthFailure
	case status == 429:
		return domain.ErrTypeRateLimited
	case status == 400 || status == 422:
		return domain.ErrTypeContentRejected
	default:
		return domain.ErrTypeBackendUnavailable
	}
}
