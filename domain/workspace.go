package domain

import (
	"fmt"
	"time"
)

// BackendNameSydney is the reserved backend name of the built-in
// conversational backend. It is always resolvable and never appears in
// Config.OpenAIBackends.
const BackendNameSydney = "Sydney"

// Workspace is one persistent chat session: its own backend selection,
// conversation context, pending input and attachments. Workspaces are
// exclusively owned by the Config workspace collection and only mutated
// through the workspace manager's update path.
type Workspace struct {
	Id                string          `json:"id"`
	Title             string          `json:"title"`
	Context           string          `json:"context"`
	Input             string          `json:"input"`
	Backend           string          `json:"backend"`
	Locale            string          `json:"locale"`
	Preset            string          `json:"preset"`
	ConversationStyle string          `json:"conversation_style"`
	NoSearch          bool            `json:"no_search"`
	CreatedAt         time.Time       `json:"created_at"`
	UseClassic        bool            `json:"use_classic"`
	GPT4Turbo         bool            `json:"gpt_4_turbo"`
	PersistentInput   bool            `json:"persistent_input"`
	Plugins           []string        `json:"plugins"`
	DataReferences    []DataReference `json:"data_references"`
	Model             string          `json:"model"`
}

// WorkspaceStatus is the runtime ask state of a workspace. It is not
// persisted; every workspace starts Idle on load.
type WorkspaceStatus string

const (
	WorkspaceStatusIdle   WorkspaceStatus = "idle"
	WorkspaceStatusAsking WorkspaceStatus = "asking"
	WorkspaceStatusError  WorkspaceStatus = "error"
)

func StringToWorkspaceStatus(s string) (WorkspaceStatus, error) {
	switch s {
	case "idle":
		return WorkspaceStatusIdle, nil
	case "asking":
		return WorkspaceStatusAsking, nil
	case "error":
		return WorkspaceStatusError, nil
	default:
		return "", fmt.Errorf("invalid WorkspaceStatus: %q", s)
	}
}
