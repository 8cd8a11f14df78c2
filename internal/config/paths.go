package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// DataDir returns the directory holding the ledger and its key.
// VERUM_DATA_DIR overrides the platform default.
//
// Platform paths:
//   - macOS:   ~/Library/Application Support/verum/
//   - Linux:   $XDG_DATA_HOME/verum/ or ~/.local/share/verum/
//   - Windows: %APPDATA%\verum\
func DataDir() string {
	if dir := os.Getenv("VERUM_DATA_DIR"); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "verum")
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "verum")
		}
		return filepath.Join(home, "AppData", "Roaming", "verum")
	default:
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			return filepath.Join(xdg, "verum")
		}
		return filepath.Join(home, ".local", "share", "verum")
	}
}

// ConfigDir returns the platform configuration directory.
func ConfigDir() string {
	switch runtime.GOOS {
	case "darwin", "windows":
		return DataDir()
	default:
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, "verum")
		}
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "verum")
	}
}

// LogDir returns the platform log directory.
func LogDir() string {
	switch runtime.GOOS {
	case "darwin":
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "Library", "Logs", "verum")
	default:
		return filepath.Join(DataDir(), "logs")
	}
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.toml")
}

// SupportedConfigFormats lists the recognized configuration extensions.
func SupportedConfigFormats() []string {
	return []string{"toml", "yaml", "yml", "json"}
}

// FindConfigFile returns the first config.<ext> in the working directory
// or the configuration directory, or "" when there is none.
func FindConfigFile() string {
	for _, dir := range []string{".", ConfigDir()} {
		for _, ext := range SupportedConfigFormats() {
			path := filepath.Join(dir, "config."+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}
