package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"parley/common"
	"parley/domain"
	"parley/secrets"

	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAIHandle invokes an OpenAI-compatible chat completion endpoint described
// by a named backend profile. The response is streamed but reduced to a single
// terminal result.
type OpenAIHandle struct {
	profile     domain.OpenAIBackend
	secretStore secrets.SecretStore
}

func NewOpenAIHandle(profile domain.OpenAIBackend, secretStore secrets.SecretStore) *OpenAIHandle {
	return &OpenAIHandle{profile: profile, secretStore: secretStore}
}

func (h *OpenAIHandle) Name() string {
	return h.profile.Name
}

// SelectModel picks the model for a request: an explicit request model wins,
// otherwise the estimated token count of the conversation decides between the
// profile's short and long model at the configured threshold.
func (h *OpenAIHandle) SelectModel(req InvokeRequest) string {
	if req.Model != "" {
		return req.Model
	}
	tokens := common.EstimateTokens(req.Prompt)
	for _, msg := range req.Messages {
		tokens += common.EstimateTokens(msg.Content)
	}
	if h.profile.OpenaiThreshold > 0 && tokens > h.profile.OpenaiThreshold && h.profile.OpenaiLongModel != "" {
		return h.profile.OpenaiLongModel
	}
	return h.profile.OpenaiShortModel
}

func (h *OpenAIHandle) resolveKey() (string, error) {
	if h.profile.OpenaiKey != "" {
		return h.profile.OpenaiKey, nil
	}
	key, err := h.secretStore.GetSecret(h.profile.Name)
	if err != nil {
		return "", fmt.Errorf("%w: no api key for backend %q: %v", ErrAuthFailure, h.profile.Name, err)
	}
	return key, nil
}

func (h *OpenAIHandle) Invoke(ctx context.Context, req InvokeRequest) (InvokeResult, error) {
	key, err := h.resolveKey()
	if err != nil {
		return InvokeResult{}, err
	}

	config := openai.DefaultConfig(key)
	if h.profile.OpenaiEndpoint != "" {
		config.BaseURL = h.profile.OpenaiEndpoint
	}
	client := openai.NewClientWithConfig(config)

	model := h.SelectModel(req)
	completionReq := openai.ChatCompletionRequest{
		Model:            model,
		Messages:         h.buildMessages(req),
		Stream:           true,
		Temperature:      h.profile.OpenaiTemperature,
		FrequencyPenalty: h.profile.FrequencyPenalty,
		PresencePenalty:  h.profile.PresencePenalty,
	}
	if h.profile.MaxTokens > 0 {
		completionReq.MaxTokens = h.profile.MaxTokens
	}

	log.Debug().Str("backend", h.profile.Name).Str("model", model).
		Int("messages", len(completionReq.Messages)).Msg("Invoking openai backend")

	stream, err := client.CreateChatCompletionStream(ctx, completionReq)
	if err != nil {
		return InvokeResult{}, err
	}
	defer stream.Close()

	var sb strings.Builder
	for {
		res, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return InvokeResult{}, err
		}
		if len(res.Choices) == 0 {
			continue
		}
		choice := res.Choices[0]
		sb.WriteString(choice.Delta.Content)
		if choice.FinishReason == openai.FinishReasonContentFilter {
			return InvokeResult{}, fmt.Errorf("%w: completion stopped by content filter", ErrContentRejected)
		}
	}

	return InvokeResult{Content: sb.String(), Model: model}, nil
}

// buildMessages converts the role-tagged context into completion messages.
// Only message-typed context blocks are sent; instruction blocks become system
// messages regardless of their tagged role.
func (h *OpenAIHandle) buildMessages(req InvokeRequest) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	for _, msg := range req.Messages {
		role := msg.Role
		if msg.Type == "instructions" || msg.Type == "system" {
			role = openai.ChatMessageRoleSystem
		}
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    role,
			Content: msg.Content,
		})
	}

	userMsg := openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Prompt,
	}
	if req.ImageURL != "" {
		userMsg.Content = ""
		userMsg.MultiContent = []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: req.Prompt},
			{
				Type:     openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{URL: req.ImageURL},
			},
		}
	}
	return append(messages, userMsg)
}
