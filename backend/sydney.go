package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"parley/domain"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	defaultWssDomain             = "sydney.bing.com"
	defaultCreateConversationURL = "https://edgeservices.bing.com/edgesvc/turing/conversation/create?bundleVersion=1.1573.4"
	imageUploadURL               = "https://www.bing.com/images/kblob"
	imageBlobURLPrefix           = "https://www.bing.com/images/blob?bcid="

	// websocket frames are delimited by the record separator character
	wsDelimiter = "\x1e"
)

// SydneyOptions configures the built-in websocket backend from the config
// document. Zero values fall back to the public endpoints.
type SydneyOptions struct {
	WssDomain             string
	CreateConversationURL string
	BypassServer          string
	ConversationStyle     string
	Locale                string
	NoSearch              bool
	GPT4Turbo             bool
	Cookies               map[string]string
}

// SydneyHandle speaks the conversation websocket protocol: create a
// conversation over HTTP, then stream the chat turn over a delimited
// JSON-frame websocket until a terminal frame arrives.
type SydneyHandle struct {
	opts       SydneyOptions
	httpClient *http.Client
}

func NewSydneyHandle(opts SydneyOptions) *SydneyHandle {
	if opts.WssDomain == "" {
		opts.WssDomain = defaultWssDomain
	}
	if opts.CreateConversationURL == "" {
		opts.CreateConversationURL = defaultCreateConversationURL
	}
	if opts.ConversationStyle == "" {
		opts.ConversationStyle = "Creative"
	}
	if opts.Locale == "" {
		opts.Locale = "en-US"
	}
	return &SydneyHandle{
		opts:       opts,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (h *SydneyHandle) Name() string {
	return domain.BackendNameSydney
}

type conversation struct {
	ConversationId        string `json:"conversationId"`
	ClientId              string `json:"clientId"`
	ConversationSignature string `json:"conversationSignature"`
	Result                struct {
		Value   string `json:"value"`
		Message string `json:"message"`
	} `json:"result"`
}

func (h *SydneyHandle) createConversation(ctx context.Context) (conversation, error) {
	var conv conversation
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.opts.CreateConversationURL, nil)
	if err != nil {
		return conv, err
	}
	h.applyCookies(req)

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return conv, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return conv, fmt.Errorf("%w: create conversation returned %d", ErrAuthFailure, resp.StatusCode)
	case http.StatusTooManyRequests:
		return conv, fmt.Errorf("%w: create conversation returned 429", ErrRateLimited)
	default:
		return conv, fmt.Errorf("%w: create conversation returned %d", ErrUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return conv, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := json.Unmarshal(body, &conv); err != nil {
		return conv, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if conv.Result.Value != "" && conv.Result.Value != "Success" {
		if conv.Result.Value == "UnauthorizedRequest" {
			return conv, fmt.Errorf("%w: %s", ErrAuthFailure, conv.Result.Message)
		}
		return conv, fmt.Errorf("%w: %s: %s", ErrUnavailable, conv.Result.Value, conv.Result.Message)
	}
	if conv.ConversationSignature == "" && resp.Header.Get("X-Sydney-Conversationsignature") != "" {
		conv.ConversationSignature = resp.Header.Get("X-Sydney-Conversationsignature")
	}
	return conv, nil
}

func (h *SydneyHandle) applyCookies(req *http.Request) {
	for name, value := range h.opts.Cookies {
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}
}

func (h *SydneyHandle) Invoke(ctx context.Context, req InvokeRequest) (InvokeResult, error) {
	conv, err := h.createConversation(ctx)
	if err != nil {
		return InvokeResult{}, err
	}
	log.Debug().Str("conversationId", conv.ConversationId).Msg("Created conversation")

	wsURL := url.URL{
		Scheme:   "wss",
		Host:     h.opts.WssDomain,
		Path:     "/sydney/ChatHub",
		RawQuery: "sec_access_token=" + url.QueryEscape(conv.ConversationSignature),
	}

	header := http.Header{}
	for name, value := range h.opts.Cookies {
		header.Add("Cookie", name+"="+value)
	}

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 20 * time.Second
	conn, _, err := dialer.DialContext(ctx, wsURL.String(), header)
	if err != nil {
		return InvokeResult{}, fmt.Errorf("%w: websocket dial: %v", ErrUnavailable, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetReadDeadline(deadline)
		conn.SetWriteDeadline(deadline)
	}

	if err := writeFrame(conn, map[string]any{"protocol": "json", "version": 1}); err != nil {
		return InvokeResult{}, fmt.Errorf("%w: handshake: %v", ErrUnavailable, err)
	}
	// handshake ack frame, contents are irrelevant
	if _, err := readFrames(conn); err != nil {
		return InvokeResult{}, fmt.Errorf("%w: handshake ack: %v", ErrUnavailable, err)
	}

	if err := writeFrame(conn, h.buildChatArguments(conv, req)); err != nil {
		return InvokeResult{}, fmt.Errorf("%w: send chat: %v", ErrUnavailable, err)
	}

	// stop blocked reads when the caller gives up
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.SetReadDeadline(time.Now())
		case <-done:
		}
	}()

	return h.readChat(ctx, conn)
}

func (h *SydneyHandle) buildChatArguments(conv conversation, req InvokeRequest) map[string]any {
	optionsSets := []string{
		"fluxsydney", "iyxapbing", "iycapbing", "clgalileo", "gencontentv3",
	}
	if h.opts.GPT4Turbo {
		optionsSets = append(optionsSets, "dlgpt4t")
	}
	if h.opts.NoSearch {
		optionsSets = append(optionsSets, "nosearchall")
	}

	var context strings.Builder
	for _, msg := range req.Messages {
		context.WriteString(fmt.Sprintf("[%s](#%s)\n%s\n\n", msg.Role, msg.Type, msg.Content))
	}

	message := map[string]any{
		"author":      "user",
		"inputMethod": "Keyboard",
		"text":        req.Prompt,
		"messageType": "Chat",
		"requestId":   uuid.NewString(),
		"locale":      h.opts.Locale,
	}
	if req.ImageURL != "" {
		message["imageUrl"] = req.ImageURL
	}

	return map[string]any{
		"type":   4,
		"target": "chat",
		"arguments": []any{map[string]any{
			"source":                "cib",
			"optionsSets":           optionsSets,
			"tone":                  h.opts.ConversationStyle,
			"conversationId":        conv.ConversationId,
			"participant":           map[string]any{"id": conv.ClientId},
			"spokenTextMode":        "None",
			"previousMessages":      h.previousMessages(context.String()),
			"message":               message,
			"conversationSignature": conv.ConversationSignature,
		}},
		"invocationId": "0",
	}
}

func (h *SydneyHandle) previousMessages(context string) []any {
	if context == "" {
		return nil
	}
	return []any{map[string]any{
		"author":      "user",
		"description": context,
		"contextType": "WebPage",
		"messageType": "Context",
	}}
}

type chatItemMessage struct {
	Author      string `json:"author"`
	Text        string `json:"text"`
	MessageType string `json:"messageType"`
	HiddenText  string `json:"hiddenText"`
}

type chatItem struct {
	Messages []chatItemMessage `json:"messages"`
	Result   struct {
		Value   string `json:"value"`
		Message string `json:"message"`
	} `json:"result"`
}

func (h *SydneyHandle) readChat(ctx context.Context, conn *websocket.Conn) (InvokeResult, error) {
	var lastText string
	for {
		frames, err := readFrames(conn)
		if err != nil {
			if ctx.Err() != nil {
				return InvokeResult{}, ctx.Err()
			}
			return InvokeResult{}, fmt.Errorf("%w: read: %v", ErrUnavailable, err)
		}
		for _, raw := range frames {
			var frame struct {
				Type      int       `json:"type"`
				Item      *chatItem `json:"item"`
				Arguments []struct {
					Messages []struct {
						Author string `json:"author"`
						Text   string `json:"text"`
					} `json:"messages"`
				} `json:"arguments"`
			}
			if err := json.Unmarshal(raw, &frame); err != nil {
				return InvokeResult{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
			}
			switch frame.Type {
			case 1:
				// update frames carry partial bot text; remember the latest in
				// case the terminal frame omits the transcript
				for _, arg := range frame.Arguments {
					for _, msg := range arg.Messages {
						if msg.Author == "bot" && msg.Text != "" {
							lastText = msg.Text
						}
					}
				}
				continue
			case 2:
				if frame.Item == nil {
					return InvokeResult{}, fmt.Errorf("%w: terminal frame without item", ErrMalformedResponse)
				}
				return h.finishChat(*frame.Item, lastText)
			case 6:
				// ping, reply with pong
				if err := writeFrame(conn, map[string]any{"type": 6}); err != nil {
					return InvokeResult{}, fmt.Errorf("%w: pong: %v", ErrUnavailable, err)
				}
			case 7:
				return InvokeResult{}, fmt.Errorf("%w: connection closed by server", ErrUnavailable)
			}
		}
	}
}

func (h *SydneyHandle) finishChat(item chatItem, fallback string) (InvokeResult, error) {
	switch item.Result.Value {
	case "", "Success":
	case "ApologyError", "ProcessingMessage":
		return InvokeResult{}, fmt.Errorf("%w: %s", ErrContentRejected, item.Result.Message)
	case "Throttled":
		return InvokeResult{}, fmt.Errorf("%w: %s", ErrRateLimited, item.Result.Message)
	case "UnauthorizedRequest", "CaptchaChallenge":
		return InvokeResult{}, fmt.Errorf("%w: %s: %s", ErrAuthFailure, item.Result.Value, item.Result.Message)
	default:
		return InvokeResult{}, fmt.Errorf("%w: %s: %s", ErrUnavailable, item.Result.Value, item.Result.Message)
	}

	var sb strings.Builder
	for _, msg := range item.Messages {
		if msg.Author != "bot" {
			continue
		}
		if msg.MessageType != "" && msg.MessageType != "Chat" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(msg.Text)
	}
	text := sb.String()
	if text == "" {
		text = fallback
	}
	if text == "" {
		return InvokeResult{}, fmt.Errorf("%w: terminal frame carried no bot message", ErrMalformedResponse)
	}
	return InvokeResult{Content: text}, nil
}

func writeFrame(conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, append(data, wsDelimiter...))
}

func readFrames(conn *websocket.Conn) ([][]byte, error) {
	_, data, err := conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	parts := bytes.Split(data, []byte(wsDelimiter))
	frames := make([][]byte, 0, len(parts))
	for _, part := range parts {
		if len(bytes.TrimSpace(part)) == 0 {
			continue
		}
		frames = append(frames, part)
	}
	return frames, nil
}

// UploadImage uploads jpeg data to the image blob store and returns the
// hosted blob URL for use as an ask attachment.
func (h *SydneyHandle) UploadImage(ctx context.Context, jpgData []byte) (string, error) {
	knowledgeRequest := map[string]any{
		"imageInfo": map[string]any{},
		"knowledgeRequest": map[string]any{
			"invokedSkills":  []string{"ImageById"},
			"subscriptionId": "Bing.Chat.Multimodal",
			"invokedSkillsRequestData": map[string]any{
				"enableFaceBlur": true,
			},
			"convoData": map[string]any{
				"convoid":   "",
				"convotone": h.opts.ConversationStyle,
			},
		},
	}
	knowledgeJSON, err := json.Marshal(knowledgeRequest)
	if err != nil {
		return "", err
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if err := writer.WriteField("knowledgeRequest", string(knowledgeJSON)); err != nil {
		return "", err
	}
	part, err := writer.CreateFormFile("imageBase64", "")
	if err != nil {
		return "", err
	}
	if _, err := part.Write(jpgData); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, imageUploadURL, &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	h.applyCookies(req)

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: image upload returned %d", ErrUnavailable, resp.StatusCode)
	}

	var result struct {
		BlobId          string `json:"blobId"`
		ProcessedBlobId string `json:"processedBlobId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	blobId := result.ProcessedBlobId
	if blobId == "" {
		blobId = result.BlobId
	}
	if blobId == "" {
		return "", fmt.Errorf("%w: image upload returned no blob id", ErrMalformedResponse)
	}
	return imageBlobURLPrefix + blobId, nil
}

// GenerateImage resolves a creative image request by polling the async render
// endpoint until image URLs appear.
func (h *SydneyHandle) GenerateImage(ctx context.Context, generative domain.GenerativeImage) (domain.GenerateImageResult, error) {
	empty := domain.GenerateImageResult{}
	start := time.Now()

	pollURL := generative.URL
	ticker := time.NewTicker(3 * time.Second)
	defer ticker.Stop()

	for {
		urls, done, err := h.pollGeneratedImages(ctx, pollURL)
		if err != nil {
			return empty, err
		}
		if done {
			return domain.GenerateImageResult{
				Text:      generative.Text,
				URL:       generative.URL,
				ImageURLs: urls,
				Duration:  time.Since(start).Seconds(),
			}, nil
		}
		select {
		case <-ctx.Done():
			return empty, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (h *SydneyHandle) pollGeneratedImages(ctx context.Context, pollURL string) ([]string, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pollURL, nil)
	if err != nil {
		return nil, false, err
	}
	h.applyCookies(req)

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("%w: image poll returned %d", ErrUnavailable, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	content := string(body)
	if strings.Contains(content, "Pending") || strings.TrimSpace(content) == "" {
		return nil, false, nil
	}
	urls := extractImageSrcURLs(content)
	if len(urls) == 0 {
		return nil, false, fmt.Errorf("%w: image poll returned no results", ErrMalformedResponse)
	}
	return urls, true, nil
}

// extractImageSrcURLs pulls the rendered image URLs out of the result markup,
// dropping tracking query parameters.
func extractImageSrcURLs(content string) []string {
	var urls []string
	chunks := strings.Split(content, `src="`)
	for _, chunk := range chunks[1:] {
		end := strings.IndexByte(chunk, '"')
		if end < 0 {
			continue
		}
		raw := chunk[:end]
		if !strings.HasPrefix(raw, "https://") {
			continue
		}
		if idx := strings.IndexByte(raw, '?'); idx >= 0 {
			raw = raw[:idx]
		}
		urls = append(urls, raw)
	}
	return urls
}

// GenerateMusic resolves a generative music request by polling the suno
// integration endpoint until the track metadata is available.
func (h *SydneyHandle) GenerateMusic(ctx context.Context, generative domain.GenerativeMusic) (domain.GenerateMusicResult, error) {
	empty := domain.GenerateMusicResult{}
	start := time.Now()

	pollURL := fmt.Sprintf(
		"https://www.bing.com/videos/music?vdpp=suno&kseed=8500&SFX=3&iframeid=%s&requestid=%s",
		url.QueryEscape(generative.IframeID), url.QueryEscape(generative.RequestID))

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, pollURL, nil)
		if err != nil {
			return empty, err
		}
		h.applyCookies(req)
		resp, err := h.httpClient.Do(req)
		if err != nil {
			return empty, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return empty, fmt.Errorf("%w: %v", ErrUnavailable, readErr)
		}

		var payload struct {
			RawMusicDTO struct {
				CoverImgURL  string  `json:"coverImgUrl"`
				MusicURL     string  `json:"musicUrl"`
				VideoURL     string  `json:"videoUrl"`
				Duration     float64 `json:"duration"`
				MusicalStyle string  `json:"musicalStyle"`
				Title        string  `json:"title"`
				Lyrics       string  `json:"lyrics"`
				Status       string  `json:"status"`
			} `json:"RawMusicDTO"`
		}
		if err := json.Unmarshal(body, &payload); err == nil && payload.RawMusicDTO.MusicURL != "" {
			dto := payload.RawMusicDTO
			return domain.GenerateMusicResult{
				IframeID:     generative.IframeID,
				RequestID:    generative.RequestID,
				Text:         generative.Text,
				CoverImgURL:  dto.CoverImgURL,
				MusicURL:     dto.MusicURL,
				VideoURL:     dto.VideoURL,
				Duration:     dto.Duration,
				MusicalStyle: dto.MusicalStyle,
				Title:        dto.Title,
				Lyrics:       dto.Lyrics,
				TimeElapsed:  time.Since(start).Seconds(),
			}, nil
		}

		select {
		case <-ctx.Done():
			return empty, ctx.Err()
		case <-ticker.C:
		}
	}
}
