package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseChatContext(t *testing.T) {
	context := "[system](#instructions)\nYou are a helpful assistant.\n\n" +
		"[user](#message)\nhello\n\n" +
		"[assistant](#message)\nhi there\n\n"

	messages := ParseChatContext(context)
	assert.Len(t, messages, 3)
	assert.Equal(t, ChatMessage{Role: "system", Type: "instructions", Content: "You are a helpful assistant."}, messages[0])
	assert.Equal(t, ChatMessage{Role: "user", Type: "message", Content: "hello"}, messages[1])
	assert.Equal(t, ChatMessage{Role: "assistant", Type: "message", Content: "hi there"}, messages[2])
}

func TestParseChatContextNoHeaders(t *testing.T) {
	assert.Empty(t, ParseChatContext("just some plain text"))
	assert.Empty(t, ParseChatContext(""))
}

func TestParseChatContextIgnoresLeadingText(t *testing.T) {
	messages := ParseChatContext("preamble\n[user](#message)\nquestion")
	assert.Len(t, messages, 1)
	assert.Equal(t, "question", messages[0].Content)
}

func TestFormatChatMessageRoundTrip(t *testing.T) {
	msg := ChatMessage{Role: "user", Type: "message", Content: "does it round trip?"}
	parsed := ParseChatContext(FormatChatMessage(msg))
	assert.Len(t, parsed, 1)
	assert.Equal(t, msg, parsed[0])
}
