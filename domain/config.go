package domain

import (
	"fmt"
	"slices"
)

// Preset is a named reusable prompt template applied as a workspace's system
// context.
type Preset struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// OpenAIBackend is a named OpenAI-compatible backend profile. It is referenced
// from workspaces by name, never embedded by value, so edits take effect on
// the next ask.
type OpenAIBackend struct {
	Name              string  `json:"name"`
	OpenaiKey         string  `json:"openai_key"`
	OpenaiEndpoint    string  `json:"openai_endpoint"`
	OpenaiShortModel  string  `json:"openai_short_model"`
	OpenaiLongModel   string  `json:"openai_long_model"`
	OpenaiThreshold   int     `json:"openai_threshold"`
	OpenaiTemperature float32 `json:"openai_temperature"`
	FrequencyPenalty  float32 `json:"frequency_penalty"`
	PresencePenalty   float32 `json:"presence_penalty"`
	MaxTokens         int     `json:"max_tokens"`
}

// MigrationRecord tracks which structural config migrations have been applied.
// Applied is an ordered, append-only list of migration identifiers; identifiers
// unknown to this build (written by a newer version) are preserved and
// ignored. The legacy boolean flags remain only to decode documents written
// before the applied list existed.
type MigrationRecord struct {
	Applied []string `json:"applied,omitempty"`

	LegacySydneyPreset20240304 bool `json:"sydney_preset_20240304,omitempty"`
	LegacyThemeColor20240304   bool `json:"theme_color_20240304,omitempty"`
	LegacyQuick20240326        bool `json:"quick_20240326,omitempty"`
	LegacyQuick20240405        bool `json:"quick_20240405,omitempty"`
}

func (m MigrationRecord) Has(id string) bool {
	return slices.Contains(m.Applied, id)
}

// MarkApplied appends id to the applied list if not already present. Entries
// are never removed.
func (m *MigrationRecord) MarkApplied(id string) {
	if !m.Has(id) {
		m.Applied = append(m.Applied, id)
	}
}

// Config is the process-wide root of persisted state. It is explicitly owned
// by a config.Manager instance and passed by reference; there is no ambient
// global.
type Config struct {
	Debug                         bool            `json:"debug"`
	Presets                       []Preset        `json:"presets"`
	EnterMode                     string          `json:"enter_mode"`
	Proxy                         string          `json:"proxy"`
	NoSuggestion                  bool            `json:"no_suggestion"`
	FontFamily                    string          `json:"font_family"`
	FontSize                      int             `json:"font_size"`
	StretchFactor                 int             `json:"stretch_factor"`
	RevokeReplyText               string          `json:"revoke_reply_text"`
	RevokeReplyCount              int             `json:"revoke_reply_count"`
	Workspaces                    []Workspace     `json:"workspaces"`
	CurrentWorkspaceId            string          `json:"current_workspace_id"`
	Quick                         []string        `json:"quick"`
	DisableDirectQuick            bool            `json:"disable_direct_quick"`
	OpenAIBackends                []OpenAIBackend `json:"open_ai_backends"`
	WssDomain                     string          `json:"wss_domain"`
	DarkMode                      bool            `json:"dark_mode"`
	NoImageRemovalAfterChat       bool            `json:"no_image_removal_after_chat"`
	NoFileRemovalAfterChat        bool            `json:"no_file_removal_after_chat"`
	CreateConversationURL         string          `json:"create_conversation_url"`
	ThemeColor                    string          `json:"theme_color"`
	DisableNoSearchLoader         bool            `json:"disable_no_search_loader"`
	BypassServer                  string          `json:"bypass_server"`
	DisableSummaryTitleGeneration bool            `json:"disable_summary_title_generation"`
	Migration                     MigrationRecord `json:"migration"`
}

// GetWorkspace returns the workspace with the given id, if present.
func (c *Config) GetWorkspace(id string) (*Workspace, bool) {
	for i := range c.Workspaces {
		if c.Workspaces[i].Id == id {
			return &c.Workspaces[i], true
		}
	}
	return nil, false
}

// GetOpenAIBackend returns the backend profile with the given name, if present.
func (c *Config) GetOpenAIBackend(name string) (OpenAIBackend, bool) {
	for _, b := range c.OpenAIBackends {
		if b.Name == name {
			return b, true
		}
	}
	return OpenAIBackend{}, false
}

// Validate checks the structural invariants of the config document: preset and
// backend names are unique, and current_workspace_id references an existing
// workspace or is unset.
func (c *Config) Validate() error {
	presetNames := make(map[string]bool, len(c.Presets))
	for _, p := range c.Presets {
		if presetNames[p.Name] {
			return fmt.Errorf("duplicate preset name: %q", p.Name)
		}
		presetNames[p.Name] = true
	}

	backendNames := make(map[string]bool, len(c.OpenAIBackends))
	for _, b := range c.OpenAIBackends {
		if backendNames[b.Name] {
			return fmt.Errorf("duplicate backend name: %q", b.Name)
		}
		backendNames[b.Name] = true
	}

	if c.CurrentWorkspaceId != "" {
		if _, ok := c.GetWorkspace(c.CurrentWorkspaceId); !ok {
			return fmt.Errorf("current_workspace_id %q does not reference an existing workspace", c.CurrentWorkspaceId)
		}
	}

	return nil
}

// DefaultConfig returns the config used when no document has been persisted
// yet.
func DefaultConfig() Config {
	return Config{
		Presets: []Preset{
			{Name: "Sydney", Content: "[system](#instructions)\nYou're an AI assistant named Sydney."},
		},
		EnterMode:        "Enter",
		FontSize:         16,
		StretchFactor:    20,
		RevokeReplyText:  "Continue from where you stopped.",
		RevokeReplyCount: 0,
		Quick:            []string{"Continue from where you stopped.", "Translate the text above into English."},
		WssDomain:        "sydney.bing.com",
		ThemeColor:       "#FF9800",
	}
}
