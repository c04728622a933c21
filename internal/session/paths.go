package session

import (
	"os"
	"path/filepath"
)

// BaseDir returns ~/.memegram.
func BaseDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".memegram")
}

// ConfigPath returns the config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// TokenPath returns the stored session token file path.
func TokenPath() string {
	return filepath.Join(BaseDir(), "session.json")
}

// LogDir returns the log directory.
func LogDir() string {
	return filepath.Join(BaseDir(), "logs")
}

// LogPath returns the app log file path.
func LogPath() string {
	return filepath.Join(LogDir(), "memegram.log")
}

// EnsureDirs creates the app directory tree with proper permissions.
func EnsureDirs() error {
	for _, d := range []string{BaseDir(), LogDir()} {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
