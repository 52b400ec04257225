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

package storage

import (
	"bytes"
	"io"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/pgblock/core/pkg/xerr"
)

// Memory is an in-memory Repository, for tests.
type Memory struct {
	mu    sync.Mutex
	files map[string][]byte
}

// NewMemory returns an empty in-memory repository.
func NewMemory() *Memory { return &Memory{files: make(map[string][]byte)} }

type memoryWriter struct {
	m    *Memory
	path string
	buf  bytes.Buffer
}

func (m *Memory) NewWriter(p string) (io.WriteCloser, error) {
	return &memoryWriter{m: m, path: path.Clean(p)}, nil
}

func (w *memoryWriter) Write(p []byte) (int, error) { return w.buf.Write(p) }

func (w *memoryWriter) Close() error {
	w.m.mu.Lock()
	defer w.m.mu.Unlock()
	w.m.files[w.path] = append([]byte{}, w.buf.Bytes()...)
	return nil
}

func (m *Memory) NewReader(p string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p = path.Clean(p)
	data, ok := m.files[p]
	if !ok {
		return nil, xerr.Newf(xerr.KindFileOpen, "repository file %q does not exist", p)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *Memory) Stat(p string) (Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p = path.Clean(p)
	data, ok := m.files[p]
	if !ok {
		return Info{}, xerr.Newf(xerr.KindFileInfo, "repository file %q does not exist", p)
	}
	return Info{Path: p, Size: int64(len(data))}, nil
}

func (m *Memory) List(p string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := path.Clean(p) + "/"
	var names []string
	seen := make(map[string]bool)
	for f := range m.files {
		if !strings.HasPrefix(f, prefix) {
			continue
		}
		rest := strings.TrimPrefix(f, prefix)
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			rest = rest[:i]
		}
		if !seen[rest] {
			seen[rest] = true
			names = append(names, rest)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (m *Memory) Remove(p string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, path.Clean(p))
	return nil
}
