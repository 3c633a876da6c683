package migration

import (
	"fmt"
	"strings"

	"parley/domain"
)

const (
	IdSydneyPreset20240304 = "sydney_preset_20240304"
	IdThemeColor20240304   = "theme_color_20240304"
	IdQuick20240326        = "quick_20240326"
	IdQuick20240405        = "quick_20240405"
)

// Registry returns the known migrations in their fixed chronological order.
// Later migrations may assume all earlier ones are already applied.
func Registry() []Migration {
	return []Migration{
		{Id: IdSydneyPreset20240304, Apply: migrateSydneyPreset},
		{Id: IdThemeColor20240304, Apply: migrateThemeColor},
		{Id: IdQuick20240326, Apply: migrateQuickDefaults},
		{Id: IdQuick20240405, Apply: migrateQuickCleanup},
	}
}

// migrateSydneyPreset upgrades the built-in Sydney preset from the retired
// "additional_instructions" context header to "instructions", and restores
// the preset if a legacy document dropped it.
func migrateSydneyPreset(cfg *domain.Config) error {
	defaultPreset := domain.Preset{
		Name:    "Sydney",
		Content: "[system](#instructions)\nYou're an AI assistant named Sydney.",
	}

	for i, p := range cfg.Presets {
		if p.Name != "Sydney" {
			continue
		}
		cfg.Presets[i].Content = strings.ReplaceAll(p.Content,
			"[system](#additional_instructions)", "[system](#instructions)")
		return nil
	}

	cfg.Presets = append([]domain.Preset{defaultPreset}, cfg.Presets...)
	return nil
}

// migrateThemeColor fills in the theme color for documents that predate
// theming.
func migrateThemeColor(cfg *domain.Config) error {
	if cfg.ThemeColor == "" {
		cfg.ThemeColor = "#FF9800"
	}
	return nil
}

var quickDefaults = []string{
	"Continue from where you stopped.",
	"Translate the text above into English.",
	"Explain the code above step by step.",
}

// migrateQuickDefaults adds the quick commands introduced in 2024-03 to
// documents that predate them, without duplicating user entries.
func migrateQuickDefaults(cfg *domain.Config) error {
	existing := make(map[string]bool, len(cfg.Quick))
	for _, q := range cfg.Quick {
		existing[q] = true
	}
	for _, q := range quickDefaults {
		if !existing[q] {
			cfg.Quick = append(cfg.Quick, q)
		}
	}
	return nil
}

// migrateQuickCleanup normalizes the quick command list: entries are
// whitespace-trimmed, and empty or duplicate entries are dropped. Legacy
// documents could accumulate both through the pre-2024-04 editor.
func migrateQuickCleanup(cfg *domain.Config) error {
	seen := make(map[string]bool, len(cfg.Quick))
	cleaned := make([]string, 0, len(cfg.Quick))
	for _, q := range cfg.Quick {
		trimmed := strings.TrimSpace(q)
		if trimmed == "" || seen[trimmed] {
			continue
		}
		seen[trimmed] = true
		cleaned = append(cleaned, trimmed)
	}
	cfg.Quick = cleaned

	if cfg.RevokeReplyCount < 0 {
		return fmt.Errorf("revoke_reply_count is negative: %d", cfg.RevokeReplyCount)
	}
	return nil
}
