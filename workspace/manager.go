package workspace

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"parley/common"
	"parley/config"
	"parley/domain"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/ksuid"
)

var (
	ErrAskInFlight = errors.New("workspace already has an ask in flight")
)

// Manager owns the workspace collection and the per-workspace runtime ask
// state. Persistent workspace fields live in the config document and are only
// mutated through the config manager's update path; ask status is runtime
// state, reset to idle on every process start.
type Manager struct {
	config *config.Manager

	mu        sync.Mutex
	status    map[string]domain.WorkspaceStatus
	lastError map[string]domain.ChatFinishResult
}

func NewManager(configManager *config.Manager) *Manager {
	return &Manager{
		config:    configManager,
		status:    make(map[string]domain.WorkspaceStatus),
		lastError: make(map[string]domain.ChatFinishResult),
	}
}

func newWorkspaceId() string {
	return "ws_" + ksuid.New().String()
}

// Create adds a workspace with the given title and makes it current. Defaults
// mirror a fresh chat: the built-in backend, creative tone, the standard
// preset.
func (m *Manager) Create(ctx context.Context, title string) (domain.Workspace, error) {
	if title == "" {
		title = "New Chat"
	}
	ws := domain.Workspace{
		Id:                newWorkspaceId(),
		Title:             title,
		Backend:           domain.BackendNameSydney,
		Locale:            "en-US",
		Preset:            "Sydney",
		ConversationStyle: "Creative",
		CreatedAt:         time.Now(),
	}

	err := m.config.Update(ctx, func(cfg *domain.Config) error {
		if preset, ok := findPreset(cfg.Presets, ws.Preset); ok {
			ws.Context = preset.Content
		}
		cfg.Workspaces = append(cfg.Workspaces, ws)
		cfg.CurrentWorkspaceId = ws.Id
		return nil
	})
	if err != nil {
		return domain.Workspace{}, err
	}

	log.Info().Str("workspaceId", ws.Id).Msg("Created workspace")
	return ws, nil
}

func findPreset(presets []domain.Preset, name string) (domain.Preset, bool) {
	for _, p := range presets {
		if p.Name == name {
			return p, true
		}
	}
	return domain.Preset{}, false
}

// List returns all workspaces in creation order.
func (m *Manager) List() []domain.Workspace {
	return m.config.Snapshot().Workspaces
}

// Get returns the workspace with the given id.
func (m *Manager) Get(id string) (domain.Workspace, error) {
	cfg := m.config.Snapshot()
	if ws, ok := cfg.GetWorkspace(id); ok {
		return *ws, nil
	}
	return domain.Workspace{}, fmt.Errorf("workspace %s: %w", id, common.ErrNotFound)
}

// Current returns the currently selected workspace, if any.
func (m *Manager) Current() (domain.Workspace, bool) {
	cfg := m.config.Snapshot()
	if cfg.CurrentWorkspaceId == "" {
		return domain.Workspace{}, false
	}
	ws, ok := cfg.GetWorkspace(cfg.CurrentWorkspaceId)
	if !ok {
		return domain.Workspace{}, false
	}
	return *ws, true
}

// SwitchTo makes the given workspace current.
func (m *Manager) SwitchTo(ctx context.Context, id string) error {
	return m.config.Update(ctx, func(cfg *domain.Config) error {
		if _, ok := cfg.GetWorkspace(id); !ok {
			return fmt.Errorf("workspace %s: %w", id, common.ErrNotFound)
		}
		cfg.CurrentWorkspaceId = id
		return nil
	})
}

// Update applies fn to the workspace under the config write path.
func (m *Manager) Update(ctx context.Context, id string, fn func(ws *domain.Workspace) error) error {
	return m.config.Update(ctx, func(cfg *domain.Config) error {
		ws, ok := cfg.GetWorkspace(id)
		if !ok {
			return fmt.Errorf("workspace %s: %w", id, common.ErrNotFound)
		}
		return fn(ws)
	})
}

// Delete removes a workspace. Deleting the current workspace atomically
// reselects the first remaining one, or clears the selection when none
// remain. A workspace with an ask in flight cannot be deleted.
func (m *Manager) Delete(ctx context.Context, id string) error {
	if m.Status(id) == domain.WorkspaceStatusAsking {
		return ErrAskInFlight
	}

	err := m.config.Update(ctx, func(cfg *domain.Config) error {
		idx := -1
		for i := range cfg.Workspaces {
			if cfg.Workspaces[i].Id == id {
				idx = i
				break
			}
		}
		if idx < 0 {
			return fmt.Errorf("workspace %s: %w", id, common.ErrNotFound)
		}
		cfg.Workspaces = append(cfg.Workspaces[:idx], cfg.Workspaces[idx+1:]...)

		if cfg.CurrentWorkspaceId == id {
			if len(cfg.Workspaces) > 0 {
				cfg.CurrentWorkspaceId = cfg.Workspaces[0].Id
			} else {
				cfg.CurrentWorkspaceId = ""
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.status, id)
	delete(m.lastError, id)
	m.mu.Unlock()

	log.Info().Str("workspaceId", id).Msg("Deleted workspace")
	return nil
}

// Status reports the runtime ask state of a workspace. Unknown ids are idle.
func (m *Manager) Status(id string) domain.WorkspaceStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	if status, ok := m.status[id]; ok {
		return status
	}
	return domain.WorkspaceStatusIdle
}

// BeginAsk transitions a workspace into the asking state. At most one ask per
// workspace may be in flight; concurrent attempts fail with ErrAskInFlight.
func (m *Manager) BeginAsk(id string) error {
	if _, err := m.Get(id); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status[id] == domain.WorkspaceStatusAsking {
		return ErrAskInFlight
	}
	m.status[id] = domain.WorkspaceStatusAsking
	return nil
}

// FinishAsk settles a workspace back to idle once its ask result has been
// delivered: the failure travels in the result itself, so the workspace must
// not stay parked in an error state. Failed asks are recorded for inspection
// via LastError; cancellation counts as a clean finish.
func (m *Manager) FinishAsk(id string, result domain.ChatFinishResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status[id] = domain.WorkspaceStatusIdle
	if result.Success || result.ErrType == domain.ErrTypeCanceled {
		delete(m.lastError, id)
	} else {
		m.lastError[id] = result
	}
}

// LastError reports the failure of the workspace's most recent ask. The
// record clears on the next successful or canceled ask.
func (m *Manager) LastError(id string) (domain.ChatFinishResult, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result, ok := m.lastError[id]
	return result, ok
}

// ExportMarkdown renders a workspace's conversation as a markdown document.
func (m *Manager) ExportMarkdown(id string) (string, error) {
	ws, err := m.Get(id)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString("# " + ws.Title + "\n\n")
	for _, msg := range common.ParseChatContext(ws.Context) {
		sb.WriteString(fmt.Sprintf("**%s** (%s):\n\n%s\n\n", msg.Role, msg.Type, msg.Content))
	}
	return sb.String(), nil
}

// ExportFilename derives a filesystem-safe markdown filename from the
// workspace title.
func ExportFilename(title string) string {
	sanitized := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		default:
			return r
		}
	}, strings.TrimSpace(title))
	if sanitized == "" {
		sanitized = "workspace"
	}
	return sanitized + ".md"
}
