package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestCompressionKindRecognizesAliases(t *testing.T) {
	cases := map[string]bool{
		"gzip": true, "gz": true, "zstd": true, "zst": true,
		"lz4": true, "bz2": true, "bzip2": true, "none": false, "": false,
	}
	for name, want := range cases {
		if _, ok := compressionKind(name); ok != want {
			t.Errorf("compressionKind(%q) ok = %v, want %v", name, ok, want)
		}
	}
}

func writeScenarioFile(t *testing.T, repoRoot, sourcePath, compression, passphrase string) string {
	t.Helper()
	content := `{
		"repo_root": "` + repoRoot + `",
		"compression": "` + compression + `",
		"passphrase": "` + passphrase + `",
		"workers": 2,
		"files": [{"source_path": "` + sourcePath + `", "repo_path": "base/1"}]
	}`
	path := filepath.Join(t.TempDir(), "scenario.json")
	if err := os.WriteFile(path, []byte(content), 0o640); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func runCLI(t *testing.T, args ...string) string {
	t.Helper()
	rootCmd.SetArgs(args)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("Execute(%v): %v", args, err)
	}
	return out.String()
}

func TestBackupThenRestoreRoundTrip(t *testing.T) {
	repoRoot := t.TempDir()
	srcPath := filepath.Join(t.TempDir(), "source.dat")
	content := []byte("content that survives a round trip through the repository")
	if err := os.WriteFile(srcPath, content, 0o640); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	scenario := writeScenarioFile(t, repoRoot, srcPath, "gzip", "correct horse battery staple")

	runCLI(t, "backup", scenario)

	if err := os.Remove(srcPath); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	runCLI(t, "restore", scenario)

	got, err := os.ReadFile(srcPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Fatalf("restored content = %q, want %q", got, content)
	}
}
