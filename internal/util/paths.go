package util

import (
	"os"
	"path/filepath"
	"strings"
)

// HomeEnv overrides the padsync home directory.
const HomeEnv = "PADSYNC_HOME"

// HomeDir returns the user's home directory
func HomeDir() string {
	home, _ := os.UserHomeDir()
	return home
}

// PadsyncConfigPath returns the padsync home directory (~/.padsync unless
// PADSYNC_HOME is set)
func PadsyncConfigPath() string {
	if v := os.Getenv(HomeEnv); v != "" {
		return v
	}
	return filepath.Join(HomeDir(), ".padsync")
}

// PadsyncDatabasePath returns the default local store path
func PadsyncDatabasePath() string {
	return filepath.Join(PadsyncConfigPath(), "padsync.db")
}

// PadsyncBackupsPath returns the default backup directory
func PadsyncBackupsPath() string {
	return filepath.Join(PadsyncConfigPath(), "backups")
}

// PadsyncLogPath returns the default log file path
func PadsyncLogPath() string {
	return filepath.Join(PadsyncConfigPath(), "logs", "padsync.log")
}

// PadsyncTokenPath returns the default OAuth token file
func PadsyncTokenPath() string {
	return filepath.Join(PadsyncConfigPath(), "token.json")
}

// PadsyncCredentialsPath returns the default OAuth client credentials file
func PadsyncCredentialsPath() string {
	return filepath.Join(PadsyncConfigPath(), "credentials.json")
}

// ExpandPath expands a leading ~ to the home directory and resolves
// relative paths against baseDir. An empty path stays empty.
func ExpandPath(path, baseDir string) string {
	switch {
	case path == "":
		return ""
	case path == "~":
		return HomeDir()
	case strings.HasPrefix(path, "~/"):
		return filepath.Join(HomeDir(), path[2:])
	case filepath.IsAbs(path) || baseDir == "":
		return filepath.Clean(path)
	default:
		return filepath.Join(baseDir, path)
	}
}
