/*
Copyright 2024 The pgblock Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

     http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package protocol defines a typed request/response session contract
// for reaching a repository or PostgreSQL host, and an in-process
// implementation. The backup and restore drivers do not use it; they
// call storage.Repository directly. A real remote transport (SSH,
// TLS) is out of scope for this core — see SPEC_FULL.md's non-goals —
// but the session abstraction is the seam where one would attach.
package protocol

import (
	"context"

	"github.com/pgblock/core/pkg/stringid"
	"github.com/pgblock/core/pkg/xerr"
)

// Handler processes one command's request pack and returns a response
// pack.
type Handler func(ctx context.Context, request []byte) (response []byte, err error)

// Session is a named peer a driver issues commands to. Requests and
// responses are pack-codec byte strings; callers define their own
// object layout per command.
type Session interface {
	// Name identifies this session for error messages ("raised from
	// <session-name>: ...", per the core's error taxonomy).
	Name() string
	// Call invokes cmd with request and returns its response, or an
	// error already wrapped with xerr.RaisedFrom(Name(), ...) if the
	// command itself failed.
	Call(ctx context.Context, cmd stringid.ID, request []byte) ([]byte, error)
	// Close releases any resources the session holds.
	Close() error
}

// LocalSession dispatches commands to in-process handlers instead of a
// real remote peer.
type LocalSession struct {
	name     string
	handlers map[stringid.ID]Handler
}

// NewLocalSession returns a session named name with no registered
// handlers.
func NewLocalSession(name string) *LocalSession {
	return &LocalSession{name: name, handlers: make(map[stringid.ID]Handler)}
}

// Register attaches a handler for cmd. Registering the same command
// twice replaces the prior handler.
func (s *LocalSession) Register(cmd stringid.ID, h Handler) {
	s.handlers[cmd] = h
}

func (s *LocalSession) Name() string { return s.name }

func (s *LocalSession) Call(ctx context.Context, cmd stringid.ID, request []byte) ([]byte, error) {
	h, ok := s.handlers[cmd]
	if !ok {
		return nil, xerr.RaisedFrom(s.name, xerr.Newf(xerr.KindAssert, "no handler registered for command %s", cmd))
	}
	resp, err := h(ctx, request)
	if err != nil {
		return nil, xerr.RaisedFrom(s.name, err)
	}
	return resp, nil
}

func (s *LocalSession) Close() error { return nil }
