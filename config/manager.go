package config

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"parley/domain"
	"parley/migration"
	"parley/store"

	"github.com/rs/zerolog/log"
)

// Manager owns the loaded Config instance and its persistence lifecycle.
// There is no ambient global: every component that needs config state holds a
// reference to the Manager. The config document is a single-writer resource;
// all mutations are serialized through Update and persisted before the call
// returns.
type Manager struct {
	docStore store.DocumentStore
	engine   *migration.Engine

	mu     sync.RWMutex
	cfg    domain.Config
	loaded bool
}

func NewManager(docStore store.DocumentStore) *Manager {
	return &Manager{
		docStore: docStore,
		engine:   migration.NewEngine(),
	}
}

// Load reads the persisted document, applies pending migrations and validates
// the result. It must complete before any workspace mutation is accepted; a
// migration failure is fatal to the load. A missing document yields the
// default config.
func (m *Manager) Load(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var cfg domain.Config
	doc, err := m.docStore.LoadDocument(ctx)
	if err == store.ErrNoDocument {
		log.Info().Msg("No config document found, starting from defaults")
		cfg = domain.DefaultConfig()
	} else if err != nil {
		return fmt.Errorf("failed to load config document: %w", err)
	} else {
		if err := json.Unmarshal(doc, &cfg); err != nil {
			return fmt.Errorf("failed to parse config document: %w", err)
		}
	}

	migrated, err := m.engine.Apply(cfg)
	if err != nil {
		return fmt.Errorf("config migration failed: %w", err)
	}

	if err := migrated.Validate(); err != nil {
		return fmt.Errorf("config document is invalid: %w", err)
	}

	m.cfg = migrated
	m.loaded = true

	if err := m.saveLocked(ctx); err != nil {
		return fmt.Errorf("failed to persist migrated config: %w", err)
	}
	return nil
}

// Snapshot returns a deep copy of the current config. Callers may read it
// freely; writes to the copy never reach persisted state.
func (m *Manager) Snapshot() domain.Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	clone, err := cloneConfig(m.cfg)
	if err != nil {
		// a config that marshaled on save cannot fail to re-marshal
		log.Panic().Err(err).Msg("failed to clone config")
	}
	return clone
}

// Update applies fn to the config under the write lock, validates the result
// and persists it. If fn or validation fails, the in-memory config is left
// unchanged.
func (m *Manager) Update(ctx context.Context, fn func(cfg *domain.Config) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.loaded {
		return fmt.Errorf("config not loaded")
	}

	work, err := cloneConfig(m.cfg)
	if err != nil {
		return fmt.Errorf("failed to clone config: %w", err)
	}

	if err := fn(&work); err != nil {
		return err
	}
	if err := work.Validate(); err != nil {
		return fmt.Errorf("config update rejected: %w", err)
	}

	m.cfg = work
	return m.saveLocked(ctx)
}

func (m *Manager) saveLocked(ctx context.Context) error {
	doc, err := json.MarshalIndent(m.cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := m.docStore.SaveDocument(ctx, doc); err != nil {
		return fmt.Errorf("failed to save config document: %w", err)
	}
	return nil
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
