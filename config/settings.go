package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"parley/common"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// ValidStoreBackends are the supported config document store kinds.
var ValidStoreBackends = []string{"file", "sqlite", "redis"}

// Settings is the local runtime settings file, distinct from the config
// document itself: it decides where the document lives and how asks are
// dispatched. Read once at startup from settings.json in the data home.
type Settings struct {
	StoreBackend      string `koanf:"store_backend"`
	RedisAddr         string `koanf:"redis_addr"`
	AskTimeoutSeconds int    `koanf:"ask_timeout_seconds"`
}

func DefaultSettings() Settings {
	return Settings{
		StoreBackend:      "file",
		RedisAddr:         "localhost:6379",
		AskTimeoutSeconds: 120,
	}
}

// Validate ensures the Settings are usable.
func (s Settings) Validate() error {
	if !slices.Contains(ValidStoreBackends, s.StoreBackend) {
		return fmt.Errorf("invalid store_backend: %s", s.StoreBackend)
	}
	if s.StoreBackend == "redis" && s.RedisAddr == "" {
		return fmt.Errorf("redis_addr is required for the redis store backend")
	}
	if s.AskTimeoutSeconds <= 0 {
		return fmt.Errorf("ask_timeout_seconds must be positive")
	}
	return nil
}

// LoadSettings reads settings.json from the parley data home, falling back to
// defaults when the file does not exist. Unknown keys are ignored.
func LoadSettings() (Settings, error) {
	settings := DefaultSettings()

	dataHome, err := common.GetParleyDataHome()
	if err != nil {
		return settings, fmt.Errorf("failed to locate data home: %w", err)
	}

	path := filepath.Join(dataHome, "settings.json")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return settings, nil
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), json.Parser()); err != nil {
		return settings, fmt.Errorf("failed to load settings file: %w", err)
	}
	if err := k.UnmarshalWithConf("", &settings, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return settings, fmt.Errorf("failed to unmarshal settings: %w", err)
	}

	if err := settings.Validate(); err != nil {
		return settings, err
	}
	return settings, nil
}
