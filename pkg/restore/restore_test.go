package restore

import (
	"crypto/sha256"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pgblock/core/pkg/storage"
	"github.com/pgblock/core/pkg/xerr"
)

func TestCopyRegularFile(t *testing.T) {
	content := []byte("repository bytes")
	repo := storage.NewMemory()
	w, _ := repo.NewWriter("base/1")
	w.Write(content)
	w.Close()

	sum := sha256.Sum256(content)
	dest := filepath.Join(t.TempDir(), "out")
	o := NewOrchestrator(repo)

	out, err := o.Run(FileInput{
		RepoPath:         "base/1",
		DestPath:         dest,
		ExpectedChecksum: sum[:],
		TargetMode:       0o640,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Result != ResultCopied {
		t.Fatalf("Result = %v, want copied", out.Result)
	}
	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != string(content) {
		t.Fatalf("got %q, want %q", got, content)
	}
}

func TestChecksumMismatchIsChecksumError(t *testing.T) {
	content := []byte("repository bytes")
	repo := storage.NewMemory()
	w, _ := repo.NewWriter("base/1")
	w.Write(content)
	w.Close()

	dest := filepath.Join(t.TempDir(), "out")
	o := NewOrchestrator(repo)

	_, err := o.Run(FileInput{
		RepoPath:         "base/1",
		DestPath:         dest,
		ExpectedChecksum: []byte("wrong checksum entirely!"),
		TargetMode:       0o640,
	})
	if xerr.KindOf(err) != xerr.KindChecksum {
		t.Fatalf("expected ChecksumError, got %v", err)
	}
}

func TestZeroFileMarkerTruncatesSparse(t *testing.T) {
	repo := storage.NewMemory()
	dest := filepath.Join(t.TempDir(), "out")
	o := NewOrchestrator(repo)

	out, err := o.Run(FileInput{
		DestPath:   dest,
		ZeroFile:   true,
		TargetSize: 4096,
		TargetMode: 0o640,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Result != ResultZeroed {
		t.Fatalf("Result = %v, want zeroed", out.Result)
	}
	fi, err := os.Stat(dest)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if fi.Size() != 4096 {
		t.Fatalf("size = %d, want 4096", fi.Size())
	}
}

func TestDeltaSkipsMatchingDestination(t *testing.T) {
	content := []byte("same content")
	sum := sha256.Sum256(content)
	dest := filepath.Join(t.TempDir(), "out")
	if err := os.WriteFile(dest, content, 0o640); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	repo := storage.NewMemory()
	o := NewOrchestrator(repo)

	out, err := o.Run(FileInput{
		RepoPath:         "base/1",
		DestPath:         dest,
		ExpectedChecksum: sum[:],
		TargetSize:       int64(len(content)),
		TargetMTime:      time.Now(),
		Delta:            true,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Result != ResultSkippedDelta {
		t.Fatalf("Result = %v, want skipped_delta", out.Result)
	}
}
