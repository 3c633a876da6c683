package common

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

// GetParleyDataHome returns a directory path for storing user-specific parley
// data, including the persisted configuration document. If needed, it also
// creates the necessary directories according to the XDG spec. Can be
// overridden by setting the PARLEY_DATA_HOME environment variable.
func GetParleyDataHome() (string, error) {
	parleyDataDir := os.Getenv("PARLEY_DATA_HOME")
	if parleyDataDir != "" {
		err := os.MkdirAll(parleyDataDir, 0755)
		if err != nil {
			return "", fmt.Errorf("failed to create parley data directory from PARLEY_DATA_HOME: %w", err)
		}
		return parleyDataDir, nil
	}

	parleyDataDir = filepath.Join(xdg.DataHome, "parley")
	err := os.MkdirAll(parleyDataDir, 0755)
	if err != nil {
		return "", fmt.Errorf("failed to create parley data directory: %w", err)
	}
	return parleyDataDir, nil
}

// GetParleyStateHome returns a directory path for storing user-specific parley
// state data (logs, traces, etc). If needed, it also creates the necessary
// directories according to the XDG spec. Can be overridden by setting the
// PARLEY_STATE_HOME environment variable.
func GetParleyStateHome() (string, error) {
	parleyStateDir := os.Getenv("PARLEY_STATE_HOME")
	if parleyStateDir != "" {
		err := os.MkdirAll(parleyStateDir, 0755)
		if err != nil {
			return "", fmt.Errorf("failed to create parley state directory from PARLEY_STATE_HOME: %w", err)
		}
		return parleyStateDir, nil
	}

	parleyStateDir = filepath.Join(xdg.StateHome, "parley")
	err := os.MkdirAll(parleyStateDir, 0755)
	if err != nil {
		return "", fmt.Errorf("failed to create parley state directory: %w", err)
	}
	return parleyStateDir, nil
}
