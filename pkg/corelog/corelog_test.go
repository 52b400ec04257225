package corelog

import (
	"bytes"
	"strings"
	"testing"
)

func TestPrintfTagsComponent(t *testing.T) {
	var buf bytes.Buffer
	lg := New("backup", &buf)
	lg.Printf("copied %d files", 3)

	out := buf.String()
	if !strings.HasPrefix(out, "backup: ") || !strings.Contains(out, "copied 3 files") {
		t.Fatalf("output = %q, want component prefix and message", out)
	}
}
