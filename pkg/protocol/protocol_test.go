package protocol

import (
	"context"
	"strings"
	"testing"

	"github.com/pgblock/core/pkg/stringid"
	"github.com/pgblock/core/pkg/xerr"
)

func TestLocalSessionDispatchesToRegisteredHandler(t *testing.T) {
	s := NewLocalSession("repo-host")
	ping := stringid.MustNew("ping")
	s.Register(ping, func(ctx context.Context, req []byte) ([]byte, error) {
		return append([]byte("pong:"), req...), nil
	})

	resp, err := s.Call(context.Background(), ping, []byte("hi"))
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if string(resp) != "pong:hi" {
		t.Fatalf("resp = %q", resp)
	}
}

func TestLocalSessionUnregisteredCommandIsAssertError(t *testing.T) {
	s := NewLocalSession("repo-host")
	_, err := s.Call(context.Background(), stringid.MustNew("missing"), nil)
	if xerr.KindOf(err) != xerr.KindAssert {
		t.Fatalf("expected AssertError, got %v", err)
	}
}

func TestCallErrorIsTaggedWithSessionName(t *testing.T) {
	s := NewLocalSession("pg-primary")
	cmd := stringid.MustNew("fail")
	s.Register(cmd, func(ctx context.Context, req []byte) ([]byte, error) {
		return nil, xerr.New(xerr.KindFileRead, "disk error")
	})
	_, err := s.Call(context.Background(), cmd, nil)
	if err == nil || !strings.Contains(err.Error(), "pg-primary") {
		t.Fatalf("expected error to name the session, got %v", err)
	}
}
