package migration

import (
	"errors"
	"testing"

	"parley/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyIsIdempotent(t *testing.T) {
	engine := NewEngine()

	cfg := domain.Config{
		Presets: []domain.Preset{
			{Name: "Sydney", Content: "[system](#additional_instructions)\nold header"},
		},
		Quick: []string{"  Continue from where you stopped.  ", ""},
	}

	once, err := engine.Apply(cfg)
	require.NoError(t, err)
	twice, err := engine.Apply(once)
	require.NoError(t, err)
	assert.Equal(t, once, twice)
}

func TestApplySkipsAlreadyApplied(t *testing.T) {
	engine := NewEngine()

	cfg := domain.Config{ThemeColor: ""}
	for _, id := range engine.KnownIds() {
		cfg.Migration.MarkApplied(id)
	}

	migrated, err := engine.Apply(cfg)
	require.NoError(t, err)

	// every migration was flagged as applied, so nothing may change
	assert.Equal(t, cfg, migrated)
	assert.Empty(t, migrated.ThemeColor)
}

func TestApplyRunsPendingMigrations(t *testing.T) {
	engine := NewEngine()

	migrated, err := engine.Apply(domain.Config{})
	require.NoError(t, err)

	assert.Equal(t, "#FF9800", migrated.ThemeColor)
	require.NotEmpty(t, migrated.Presets)
	assert.Equal(t, "Sydney", migrated.Presets[0].Name)
	assert.Contains(t, migrated.Quick, "Translate the text above into English.")
	assert.Equal(t, engine.KnownIds(), migrated.Migration.Applied)
}

func TestApplyFoldsLegacyBooleanFlags(t *testing.T) {
	engine := NewEngine()

	cfg := domain.Config{
		ThemeColor: "#123456",
		Migration: domain.MigrationRecord{
			LegacySydneyPreset20240304: true,
			LegacyThemeColor20240304:   true,
			LegacyQuick20240326:        true,
			LegacyQuick20240405:        true,
		},
	}

	migrated, err := engine.Apply(cfg)
	require.NoError(t, err)

	// legacy flags mean every migration already ran, so the theme color is
	// untouched and no Sydney preset is injected
	assert.Equal(t, "#123456", migrated.ThemeColor)
	assert.Empty(t, migrated.Presets)
	assert.ElementsMatch(t, engine.KnownIds(), migrated.Migration.Applied)
	assert.True(t, migrated.Migration.LegacyQuick20240405)
}

func TestApplyPreservesUnknownAppliedIds(t *testing.T) {
	engine := NewEngine()

	cfg := domain.Config{}
	cfg.Migration.MarkApplied("future_feature_20990101")

	migrated, err := engine.Apply(cfg)
	require.NoError(t, err)
	assert.Contains(t, migrated.Migration.Applied, "future_feature_20990101")
}

func TestApplyFailureLeavesConfigUntouched(t *testing.T) {
	boom := errors.New("malformed legacy data")
	engine := newEngine([]Migration{
		{Id: "mutate_20240101", Apply: func(cfg *domain.Config) error {
			cfg.ThemeColor = "#000000"
			return nil
		}},
		{Id: "fail_20240102", Apply: func(cfg *domain.Config) error {
			return boom
		}},
	})

	cfg := domain.Config{ThemeColor: "#FFFFFF"}
	result, err := engine.Apply(cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	// no partial mutation: even the first migration's effect is discarded
	assert.Equal(t, cfg, result)
	assert.Empty(t, result.Migration.Applied)
}

func TestQuickCleanupDropsDuplicatesAndBlanks(t *testing.T) {
	cfg := domain.Config{Quick: []string{" a ", "a", "", "b"}}
	require.NoError(t, migrateQuickCleanup(&cfg))
	assert.Equal(t, []string{"a", "b"}, cfg.Quick)
}
