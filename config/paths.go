package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// GetConfigDir returns the platform-specific configuration directory
// Linux/Mac: ~/.config/anvil
// Windows: C:\Users\username\.config\anvil
func GetConfigDir() string {
	if runtime.GOOS == "windows" {
		userProfile := os.Getenv("USERPROFILE")
		return filepath.Join(userProfile, ".config", "anvil")
	}

	home := os.Getenv("HOME")
	return filepath.Join(home, ".config", "anvil")
}

// GetDefaultDataDir returns the platform-specific default data directory
// Linux/Mac: ~/.local/share/anvil
// Windows: C:\Users\username\AppData\Local\anvil
func GetDefaultDataDir() string {
	if runtime.GOOS == "windows" {
		localAppData := os.Getenv("LOCALAPPDATA")
		if localAppData == "" {
			userProfile := os.Getenv("USERPROFILE")
			localAppData = filepath.Join(userProfile, "AppData", "Local")
		}
		return filepath.Join(localAppData, "anvil")
	}

	home := os.Getenv("HOME")
	return filepath.Join(home, ".local", "share", "anvil")
}

// GetCacheDir returns the platform-specific cache directory.
// Temporary files live here, never in the data directory (to avoid cloud sync).
// Linux/Mac: ~/.cache/anvil
// Windows: C:\Users\username\AppData\Local\anvil
func GetCacheDir() string {
	if runtime.GOOS == "windows" {
		localAppData := os.Getenv("LOCALAPPDATA")
		if localAppData == "" {
			userProfile := os.Getenv("USERPROFILE")
			localAppData = filepath.Join(userProfile, "AppData", "Local")
		}
		return filepath.Join(localAppData, "anvil")
	}

	home := os.Getenv("HOME")
	return filepath.Join(home, ".cache", "anvil")
}

// GetSettingsFilePath returns the path to settings.toml
func GetSettingsFilePath() string {
	return filepath.Join(GetConfigDir(), "settings.toml")
}

// GetHomeDir returns the user's home directory across platforms
func GetHomeDir() string {
	if runtime.GOOS == "windows" {
		home := os.Getenv("USERPROFILE")
		if home == "" {
			home = os.Getenv("HOMEDRIVE") + os.Getenv("HOMEPATH")
		}
		if home == "" {
			home = "C:\\"
		}
		return home
	}
	home := os.Getenv("HOME")
	if home == "" {
		home = "/"
	}
	return home
}

// ExpandPath expands ~ and environment variables in a path
func ExpandPath(path string) string {
	if path == "" {
		return path
	}

	if strings.HasPrefix(path, "~/") {
		home := GetHomeDir()
		path = filepath.Join(home, path[2:])
	}

	path = os.ExpandEnv(path)

	return filepath.Clean(path)
}

// EnsureDir creates a directory if it doesn't exist (0700 - user-only access)
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0700)
}

// FileExists checks if a file exists
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// GetTempDir returns the path to the secure temp directory
func GetTempDir() string {
	return filepath.Join(GetCacheDir(), "tmp")
}

// CreateTempDir creates the secure temp directory with 0700 permissions
func CreateTempDir() error {
	return os.MkdirAll(GetTempDir(), 0700)
}

// CleanupTempDir removes the temp directory if it exists
func CleanupTempDir() error {
	tmpDir := GetTempDir()
	if _, err := os.Stat(tmpDir); err == nil {
		return os.RemoveAll(tmpDir)
	}
	return nil
}

// EnsureDataDirPermissions ensures data directory has 0700 permissions
func EnsureDataDirPermissions(dataDir string) error {
	info, err := os.Stat(dataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return os.MkdirAll(dataDir, 0700)
		}
		return err
	}

	currentPerms := info.Mode().Perm()
	if currentPerms != 0700 {
		return os.Chmod(dataDir, 0700)
	}
	return nil
}
