package group

import (
	"testing"

	"github.com/pgblock/core/pkg/filter"
)

// TestDoneCompletesWithoutDonerMembers guards against a hang: a chain
// of filters that implement only Transformer (no Doner) must still
// report Done once the group has been flushed, or a `for !g.Done()`
// drive loop spins forever.
func TestDoneCompletesWithoutDonerMembers(t *testing.T) {
	g := New()
	g.Add(filter.NewHashSHA256())
	g.Add(filter.NewSize())
	g.Open()

	out := filter.NewBuffer(1 << 16)
	if err := g.Process([]byte("some file bytes"), out); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if g.Done() {
		t.Fatalf("Done() = true before end of stream")
	}

	if err := g.Process(nil, out); err != nil {
		t.Fatalf("Process (flush): %v", err)
	}
	if !g.Done() {
		t.Fatalf("Done() = false after flush, chain should be drained")
	}
}

func TestProcessPassesBytesThroughUnchanged(t *testing.T) {
	g := New()
	g.Add(filter.NewSize())
	g.Open()

	content := []byte("identical in and out")
	out := filter.NewBuffer(1 << 16)
	if err := g.Process(content, out); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if err := g.Process(nil, out); err != nil {
		t.Fatalf("Process (flush): %v", err)
	}
	if string(out.Bytes()) != string(content) {
		t.Fatalf("output = %q, want %q", out.Bytes(), content)
	}
}
