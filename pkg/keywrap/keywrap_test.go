package keywrap

import (
	"bytes"
	"testing"

	"github.com/pgblock/core/pkg/xerr"
)

func TestWrapUnwrapRoundTrip(t *testing.T) {
	key, err := GenerateDataKey()
	if err != nil {
		t.Fatalf("GenerateDataKey: %v", err)
	}

	wrapped, err := Wrap("correct horse battery staple", key)
	if err != nil {
		t.Fatalf("Wrap: %v", err)
	}

	got, err := Unwrap("correct horse battery staple", wrapped)
	if err != nil {
		t.Fatalf("Unwrap: %v", err)
	}
	if !bytes.Equal(got, key) {
		t.Fatalf("Unwrap = %x, want %x", got, key)
	}
}

func TestUnwrapWrongPassphraseFails(t *testing.T) {
	key, err := GenerateDataKey()
	if err != nil {
		t.Fatalf("GenerateDataKey: %v", err)
	}
	wrapped, err := Wrap("right passphrase", key)
	if err != nil {
		t.Fatalf("Wrap: %v", err)
	}

	if _, err := Unwrap("wrong passphrase", wrapped); xerr.KindOf(err) != xerr.KindCrypto {
		t.Fatalf("expected CryptoError, got %v", err)
	}
}

func TestGenerateDataKeyIsRandom(t *testing.T) {
	a, err := GenerateDataKey()
	if err != nil {
		t.Fatalf("GenerateDataKey: %v", err)
	}
	b, err := GenerateDataKey()
	if err != nil {
		t.Fatalf("GenerateDataKey: %v", err)
	}
	if bytes.Equal(a, b) {
		t.Fatalf("two generated keys were identical")
	}
}
