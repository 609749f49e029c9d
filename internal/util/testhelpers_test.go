//nolint:revive // var-naming - package name is meaningful
package util

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCreateTempDir(t *testing.T) {
	dir := CreateTempDir(t)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		t.Errorf("CreateTempDir() did not create directory: %s", dir)
	}
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(CreateTempDir(t), "subdir", "test.txt")
	WriteFile(t, path, "test content")

	got, err := os.ReadFile(path) //nolint:gosec // G304 - safe in test code using temp directory
	AssertNoError(t, err)
	AssertEqual(t, string(got), "test content")
}

func TestIsolateHome(t *testing.T) {
	home := IsolateHome(t)
	AssertEqual(t, os.Getenv(HomeEnv), home)
	AssertEqual(t, PadsyncConfigPath(), home)
	AssertEqual(t, PadsyncDatabasePath(), filepath.Join(home, "padsync.db"))
}

func TestAssertions(t *testing.T) {
	AssertNoError(t, nil)
	AssertEqual(t, 42, 42)
	AssertEqual(t, "hello", "hello")
	AssertContains(t, "Synced Show at noon", "Synced", "Show")
}
