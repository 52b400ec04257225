package backup

import (
	"bytes"
	"context"
	"crypto/sha256"
	"os"
	"path/filepath"
	"testing"

	"github.com/pgblock/core/pkg/storage"
)

func writeTempFile(t *testing.T, content []byte) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "source")
	if err := os.WriteFile(path, content, 0o640); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestCopyNewFile(t *testing.T) {
	content := []byte("hello, world")
	src := writeTempFile(t, content)
	repo := storage.NewMemory()
	o := NewLocalOrchestrator(repo)

	out, err := o.Run(FileInput{SourcePath: src, RepoPath: "base/1"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Result != ResultCopy {
		t.Fatalf("Result = %v, want copy", out.Result)
	}
	want := sha256.Sum256(content)
	if !bytes.Equal(out.Checksum, want[:]) {
		t.Fatalf("Checksum = %x, want %x", out.Checksum, want)
	}

	r, err := repo.NewReader("base/1")
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer r.Close()
	got := make([]byte, len(content))
	if _, err := r.Read(got); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Fatalf("stored content = %q, want %q", got, content)
	}
}

func TestNoOpWhenUnchangedAndReferenced(t *testing.T) {
	content := []byte("unchanged content")
	src := writeTempFile(t, content)
	sum := sha256.Sum256(content)
	repo := storage.NewMemory()
	o := NewLocalOrchestrator(repo)

	out, err := o.Run(FileInput{
		SourcePath:    src,
		RepoPath:      "base/1",
		KnownSize:     int64(len(content)),
		KnownChecksum: sum[:],
		Referenced:    true,
		Delta:         true,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Result != ResultNoOp {
		t.Fatalf("Result = %v, want no_op", out.Result)
	}
	if _, err := repo.Stat("base/1"); err == nil {
		t.Fatalf("no_op should not have written any repository bytes")
	}
}

func TestSkippedWhenSourceMissing(t *testing.T) {
	repo := storage.NewMemory()
	o := NewLocalOrchestrator(repo)

	out, err := o.Run(FileInput{SourcePath: "/does/not/exist", RepoPath: "base/1"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Result != ResultSkipped {
		t.Fatalf("Result = %v, want skipped", out.Result)
	}
}

func TestCopyWhenChangedAndReferenced(t *testing.T) {
	content := []byte("changed content")
	src := writeTempFile(t, content)
	staleSum := sha256.Sum256([]byte("old content"))
	repo := storage.NewMemory()
	o := NewLocalOrchestrator(repo)

	out, err := o.Run(FileInput{
		SourcePath:    src,
		RepoPath:      "base/1",
		KnownSize:     11,
		KnownChecksum: staleSum[:],
		Referenced:    true,
		Delta:         true,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Result != ResultCopy {
		t.Fatalf("Result = %v, want copy", out.Result)
	}
}

func TestDriverRunsConcurrentlyAndPreservesOrder(t *testing.T) {
	repo := storage.NewMemory()
	o := NewLocalOrchestrator(repo)
	d := NewDriver(o, 4)

	var entries []ManifestEntry
	for i := 0; i < 10; i++ {
		src := writeTempFile(t, []byte{byte(i)})
		entries = append(entries, ManifestEntry{
			Index: i,
			Input: FileInput{SourcePath: src, RepoPath: filepath.Join("base", string(rune('a'+i)))},
		})
	}

	results, err := d.Run(context.Background(), entries)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 10 {
		t.Fatalf("results len = %d", len(results))
	}
	for i, r := range results {
		if r.Result != ResultCopy {
			t.Fatalf("result %d = %v, want copy", i, r.Result)
		}
	}
}
