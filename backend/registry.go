package backend

import (
	"errors"
	"fmt"

	"parley/domain"
	"parley/secrets"
)

var ErrBackendNotFound = errors.New("backend not found")

// Registry resolves backend names to invocable handles. The built-in Sydney
// backend always resolves; every other name must match an OpenAI backend
// profile in the config document. Handles are built fresh from the given
// snapshot, never cached, so profile edits apply on the next ask.
type Registry struct {
	secretStore secrets.SecretStore
}

func NewRegistry(secretStore secrets.SecretStore) *Registry {
	return &Registry{secretStore: secretStore}
}

// Resolve returns the handle for the named backend. The workspace supplies
// the per-conversation Sydney options.
func (r *Registry) Resolve(cfg domain.Config, ws domain.Workspace, name string) (Handle, error) {
	if name == "" || name == domain.BackendNameSydney {
		return NewSydneyHandle(SydneyOptions{
			WssDomain:             cfg.WssDomain,
			CreateConversationURL: cfg.CreateConversationURL,
			BypassServer:          cfg.BypassServer,
			ConversationStyle:     ws.ConversationStyle,
			Locale:                ws.Locale,
			NoSearch:              ws.NoSearch,
			GPT4Turbo:             ws.GPT4Turbo,
		}), nil
	}

	profile, ok := cfg.GetOpenAIBackend(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrBackendNotFound, name)
	}
	return NewOpenAIHandle(profile, r.secretStore), nil
}

// List returns the resolvable backend names, the built-in first.
func (r *Registry) List(cfg domain.Config) []string {
	names := make([]string, 0, len(cfg.OpenAIBackends)+1)
	names = append(names, domain.BackendNameSydney)
	for _, b := range cfg.OpenAIBackends {
		names = append(names, b.Name)
	}
	return names
}
