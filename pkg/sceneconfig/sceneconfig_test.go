package sceneconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pgblock/core/pkg/xerr"
)

func writeScenario(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.json")
	if err := os.WriteFile(path, []byte(content), 0o640); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeScenario(t, `{
		"repo_root": "/tmp/repo",
		"files": [{"source_path": "/tmp/a", "repo_path": "base/a"}]
	}`)

	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.BlockSize != defaultBlockSize {
		t.Fatalf("BlockSize = %d, want default", s.BlockSize)
	}
	if s.Workers != defaultWorkers {
		t.Fatalf("Workers = %d, want default", s.Workers)
	}
}

func TestLoadRejectsMissingRepoRoot(t *testing.T) {
	path := writeScenario(t, `{"files": [{"source_path": "/tmp/a", "repo_path": "base/a"}]}`)

	_, err := Load(path)
	if xerr.KindOf(err) != xerr.KindFormat {
		t.Fatalf("expected FormatError, got %v", err)
	}
}

func TestLoadRejectsEmptyFileList(t *testing.T) {
	path := writeScenario(t, `{"repo_root": "/tmp/repo", "files": []}`)

	_, err := Load(path)
	if xerr.KindOf(err) != xerr.KindFormat {
		t.Fatalf("expected FormatError, got %v", err)
	}
}

func TestLoadRejectsMalformedJSON(t *testing.T) {
	path := writeScenario(t, `{not json`)

	_, err := Load(path)
	if xerr.KindOf(err) != xerr.KindFormat {
		t.Fatalf("expected FormatError, got %v", err)
	}
}
