package migration

import (
	"encoding/json"
	"fmt"

	"parley/domain"

	"github.com/rs/zerolog/log"
)

// Migration is a one-time structural transformation of the config document.
// Ids are date-coded, fixed and never reused. Apply must be idempotent:
// running it against an already-transformed config produces the same config.
type Migration struct {
	Id    string
	Apply func(cfg *domain.Config) error
}

// Engine applies pending migrations in their fixed chronological order. It is
// the sole writer of the applied-migrations record and runs exactly once per
// config load, before any other component reads the config.
type Engine struct {
	migrations []Migration
}

func NewEngine() *Engine {
	return &Engine{migrations: Registry()}
}

func newEngine(migrations []Migration) *Engine {
	return &Engine{migrations: migrations}
}

// KnownIds returns the migration identifiers this build knows about, in
// execution order.
func (e *Engine) KnownIds() []string {
	ids := make([]string, len(e.migrations))
	for i, m := range e.migrations {
		ids[i] = m.Id
	}
	return ids
}

// Apply runs all pending migrations against a working copy of cfg and returns
// the transformed config. On any failure the input config is returned
// unchanged along with the error: partial migration is disallowed because it
// would corrupt the applied record. Applied ids unknown to this build are
// preserved untouched.
func (e *Engine) Apply(cfg domain.Config) (domain.Config, error) {
	work, err := cloneConfig(cfg)
	if err != nil {
		return cfg, fmt.Errorf("failed to clone config for migration: %w", err)
	}

	foldLegacyFlags(&work.Migration)

	applied := 0
	for _, m := range e.migrations {
		if work.Migration.Has(m.Id) {
			continue
		}
		if err := m.Apply(&work); err != nil {
			return cfg, fmt.Errorf("migration %s failed: %w", m.Id, err)
		}
		work.Migration.MarkApplied(m.Id)
		applied++
		log.Info().Str("migration", m.Id).Msg("Applied config migration")
	}

	if applied > 0 {
		log.Info().Int("count", applied).Msg("Config migrations complete")
	}
	return work, nil
}

func cloneConfig(cfg domain.Config) (domain.Config, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return domain.Config{}, err
	}
	var clone domain.Config
	if err := json.Unmarshal(data, &clone); err != nil {
		return domain.Config{}, err
	}
	return clone, nil
}

// foldLegacyFlags records pre-applied-list boolean markers in the applied
// list. The booleans themselves are left set: once true, a marker is never
// reset.
func foldLegacyFlags(record *domain.MigrationRecord) {
	if record.LegacySydneyPreset20240304 {
		record.MarkApplied(IdSydneyPreset20240304)
	}
	if record.LegacyThemeColor20240304 {
		record.MarkApplied(IdThemeColor20240304)
	}
	if record.LegacyQuick20240326 {
		record.MarkApplied(IdQuick20240326)
	}
	if record.LegacyQuick20240405 {
		record.MarkApplied(IdQuick20240405)
	}
}
