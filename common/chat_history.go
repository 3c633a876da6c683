package common

import (
	"fmt"
	"regexp"
	"strings"
)

// ChatMessage is one entry of a workspace's role-tagged conversation context.
// The persisted context format is a sequence of blocks, each opened by a
// "[role](#type)" header line followed by the message content.
type ChatMessage struct {
	Role    string `json:"role"`
	Type    string `json:"type"`
	Content string `json:"content"`
}

func (m ChatMessage) GetRole() string {
	return m.Role
}

func (m ChatMessage) GetContentString() string {
	return m.Content
}

var chatMessageHeaderRe = regexp.MustCompile(`(?m)^\[(system|user|assistant)\]\(#([a-zA-Z_-]+)\)\s*$`)

// ParseChatContext splits a workspace context string into its chat messages.
// Text before the first header is ignored; a context without headers yields no
// messages.
func ParseChatContext(context string) []ChatMessage {
	headers := chatMessageHeaderRe.FindAllStringSubmatchIndex(context, -1)
	messages := make([]ChatMessage, 0, len(headers))
	for i, header := range headers {
		contentStart := header[1]
		contentEnd := len(context)
		if i+1 < len(headers) {
			contentEnd = headers[i+1][0]
		}
		messages = append(messages, ChatMessage{
			Role:    context[header[2]:header[3]],
			Type:    context[header[4]:header[5]],
			Content: strings.TrimSpace(context[contentStart:contentEnd]),
		})
	}
	return messages
}

// FormatChatMessage renders a single message in the persisted context format.
func FormatChatMessage(msg ChatMessage) string {
	return fmt.Sprintf("[%s](#%s)\n%s\n\n", msg.Role, msg.Type, msg.Content)
}
