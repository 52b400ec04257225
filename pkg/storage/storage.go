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

// Package storage defines the repository storage interface the backup
// and restore orchestrators write to and read from, plus a POSIX
// filesystem implementation and an in-memory one for tests.
package storage

import (
	"io"
)

// Info describes one stored object without opening it.
type Info struct {
	Path    string
	Size    int64
	ModTime int64 // unix seconds
}

// Repository is the storage contract the core needs: create/open a
// path for streaming read or write, list a directory, stat, and
// remove. Paths are repository-relative, '/'-separated regardless of
// the underlying storage's native separator.
type Repository interface {
	// NewWriter opens path for writing, creating parent directories as
	// needed. The write is not guaranteed durable until the returned
	// WriteCloser's Close returns nil.
	NewWriter(path string) (io.WriteCloser, error)
	// NewReader opens path for reading.
	NewReader(path string) (io.ReadCloser, error)
	// Stat returns Info for path, or an error satisfying
	// xerr.Is(err, xerr.KindFileInfo) if it does not exist.
	Stat(path string) (Info, error)
	// List returns the base names of path's immediate children.
	List(path string) ([]string, error)
	// Remove deletes path. Removing a path that doesn't exist is not
	// an error.
	Remove(path string) error
}
