package backend

import (
	"strings"
	"testing"

	"parley/common"
	"parley/domain"
	"parley/secrets"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() domain.Config {
	return domain.Config{
		OpenAIBackends: []domain.OpenAIBackend{
			{
				Name:             "OpenAI",
				OpenaiKey:        "sk-test",
				OpenaiShortModel: "gpt-3.5-turbo",
				OpenaiLongModel:  "gpt-3.5-turbo-16k",
				OpenaiThreshold:  4000,
			},
		},
	}
}

func TestResolveSydneyIsAlwaysAvailable(t *testing.T) {
	registry := NewRegistry(&secrets.MockSecretStore{})

	handle, err := registry.Resolve(domain.Config{}, domain.Workspace{}, domain.BackendNameSydney)
	require.NoError(t, err)
	assert.Equal(t, domain.BackendNameSydney, handle.Name())

	// an empty backend name falls back to the built-in
	handle, err = registry.Resolve(domain.Config{}, domain.Workspace{}, "")
	require.NoError(t, err)
	assert.Equal(t, domain.BackendNameSydney, handle.Name())
}

func TestResolveOpenAIBackendByName(t *testing.T) {
	registry := NewRegistry(&secrets.MockSecretStore{})

	handle, err := registry.Resolve(testConfig(), domain.Workspace{}, "OpenAI")
	require.NoError(t, err)
	assert.Equal(t, "OpenAI", handle.Name())
}

func TestResolveUnknownBackendFails(t *testing.T) {
	registry := NewRegistry(&secrets.MockSecretStore{})

	_, err := registry.Resolve(testConfig(), domain.Workspace{}, "Claude")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBackendNotFound)
}

func TestListPutsBuiltinFirst(t *testing.T) {
	registry := NewRegistry(&secrets.MockSecretStore{})
	names := registry.List(testConfig())
	assert.Equal(t, []string{domain.BackendNameSydney, "OpenAI"}, names)
}

func TestSelectModelThresholdRouting(t *testing.T) {
	profile := testConfig().OpenAIBackends[0]
	handle := NewOpenAIHandle(profile, &secrets.MockSecretStore{})

	short := InvokeRequest{Prompt: strings.Repeat("word ", 2400)}
	require.LessOrEqual(t, common.EstimateTokens(short.Prompt), 4000)
	assert.Equal(t, "gpt-3.5-turbo", handle.SelectModel(short))

	long := InvokeRequest{Prompt: strings.Repeat("word ", 4000)}
	require.Greater(t, common.EstimateTokens(long.Prompt), 4000)
	assert.Equal(t, "gpt-3.5-turbo-16k", handle.SelectModel(long))
}

func TestSelectModelCountsContextMessages(t *testing.T) {
	profile := testConfig().OpenAIBackends[0]
	handle := NewOpenAIHandle(profile, &secrets.MockSecretStore{})

	req := InvokeRequest{
		Prompt: "short prompt",
		Messages: []common.ChatMessage{
			{Role: "user", Type: "message", Content: strings.Repeat("word ", 4000)},
		},
	}
	assert.Equal(t, "gpt-3.5-turbo-16k", handle.SelectModel(req))
}

func TestSelectModelExplicitOverrideWins(t *testing.T) {
	profile := testConfig().OpenAIBackends[0]
	handle := NewOpenAIHandle(profile, &secrets.MockSecretStore{})

	req := InvokeRequest{Prompt: strings.Repeat("word ", 4000), Model: "gpt-4o"}
	assert.Equal(t, "gpt-4o", handle.SelectModel(req))
}

func TestResolveKeyFallsBackToSecretStore(t *testing.T) {
	store := &secrets.MockSecretStore{}
	require.NoError(t, store.SetSecret("OpenAI", "sk-from-store"))

	profile := testConfig().OpenAIBackends[0]
	profile.OpenaiKey = ""
	handle := NewOpenAIHandle(profile, store)

	key, err := handle.resolveKey()
	require.NoError(t, err)
	assert.Equal(t, "sk-from-store", key)
}

func TestResolveKeyMissingIsAuthFailure(t *testing.T) {
	profile := testConfig().OpenAIBackends[0]
	profile.OpenaiKey = ""
	handle := NewOpenAIHandle(profile, &secrets.MockSecretStore{})

	_, err := handle.resolveKey()
	require.Error(t, err)
	assert.Equal(t, domain.ErrTypeAuthFailure, Classify(err))
}
