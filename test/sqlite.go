package test

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
)

// SqliteURL returns a shared-cache in-memory sqlite url unique to the test.
func SqliteURL(t *testing.T) string {
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	return fmt.Sprintf("sqlite://file:%s_%s?mode=memory&cache=shared", name, strings.ReplaceAll(uuid.NewString(), "-", ""))
}

// SqliteFileURL returns a sqlite url backed by a file in the test temp dir.
func SqliteFileURL(t *testing.T) string {
	return "sqlite://" + filepath.Join(t.TempDir(), "test.db")
}

// WriteFile writes content to name inside the test temp dir and returns the path.
func WriteFile(t *testing.T, name string, content string) string {
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
	return path
}
