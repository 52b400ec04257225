package stringid

import "testing"

func TestRoundTrip(t *testing.T) {
	cases := []string{"a", "backup", "block-map", "restore", "checksum", "co-py", "1", "a1b2c3", "abcdefghijkl"}
	for _, s := range cases {
		id, err := New(s)
		if err != nil {
			t.Fatalf("New(%q): %v", s, err)
		}
		if got := id.Decode(); got != s {
			t.Fatalf("round trip %q: got %q", s, got)
		}
	}
}

func TestSixBitAlphabet(t *testing.T) {
	s := "MixedCase9"
	id, err := New(s)
	if err != nil {
		t.Fatalf("New(%q): %v", s, err)
	}
	if got := id.Decode(); got != s {
		t.Fatalf("round trip %q: got %q", s, got)
	}
}

func TestRejectsEmptyAndTooLong(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatalf("expected error for empty string")
	}
	if _, err := New("this-string-is-definitely-too-long-for-either-alphabet"); err == nil {
		t.Fatalf("expected error for over-length string")
	}
}

func TestRejectsOutOfAlphabet(t *testing.T) {
	if _, err := New("has a space"); err == nil {
		t.Fatalf("expected error for out-of-alphabet character")
	}
}
