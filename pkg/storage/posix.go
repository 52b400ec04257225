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
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"time"

	"golang.org/x/sys/unix"

	"github.com/pgblock/core/pkg/xerr"
)

// Posix stores the repository as a plain directory tree rooted at
// root, writing through a temp file plus fsync-then-rename so a reader
// never observes a partially written object.
type Posix struct {
	root string
}

// NewPosix returns a Posix repository rooted at root, which must
// already exist.
func NewPosix(root string) (*Posix, error) {
	fi, err := os.Stat(root)
	if err != nil {
		return nil, xerr.Wrap(xerr.KindFileOpen, err, "repository root does not exist")
	}
	if !fi.IsDir() {
		return nil, xerr.Newf(xerr.KindFileOpen, "repository root %q is not a directory", root)
	}
	return &Posix{root: root}, nil
}

func (p *Posix) native(path string) string {
	return filepath.Join(p.root, filepath.FromSlash(path))
}

type posixWriter struct {
	f       *os.File
	tmpPath string
	finalPath string
}

func (p *Posix) NewWriter(path string) (io.WriteCloser, error) {
	full := p.native(path)
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return nil, xerr.Wrap(xerr.KindFileOpen, err, "unable to create repository directory")
	}
	tmp := full + tempSuffix()
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		return nil, xerr.Wrap(xerr.KindFileOpen, err, "unable to create repository temp file")
	}
	return &posixWriter{f: f, tmpPath: tmp, finalPath: full}, nil
}

func tempSuffix() string {
	return ".tmp." + time.Now().UTC().Format("20060102150405") + "." + randHex()
}

func randHex() string {
	var b [4]byte
	rand.Read(b[:])
	const hex = "0123456789abcdef"
	out := make([]byte, 8)
	for i, c := range b {
		out[i*2] = hex[c>>4]
		out[i*2+1] = hex[c&0xF]
	}
	return string(out)
}

func (w *posixWriter) Write(p []byte) (int, error) { return w.f.Write(p) }

func (w *posixWriter) Close() error {
	if err := w.f.Sync(); err != nil {
		w.f.Close()
		os.Remove(w.tmpPath)
		return xerr.Wrap(xerr.KindFileWrite, err, "unable to sync repository file")
	}
	if err := w.f.Close(); err != nil {
		os.Remove(w.tmpPath)
		return xerr.Wrap(xerr.KindFileWrite, err, "unable to close repository file")
	}
	if err := os.Rename(w.tmpPath, w.finalPath); err != nil {
		os.Remove(w.tmpPath)
		return xerr.Wrap(xerr.KindFileWrite, err, "unable to install repository file")
	}
	return syncDir(filepath.Dir(w.finalPath))
}

// syncDir fsyncs a directory so a renamed-in file survives a crash,
// the same durability step dittofs's WAL takes before trusting a write.
func syncDir(dir string) error {
	fd, err := unix.Open(dir, unix.O_RDONLY, 0)
	if err != nil {
		return nil // best effort: some filesystems reject opening directories
	}
	defer unix.Close(fd)
	return unix.Fsync(fd)
}

func (p *Posix) NewReader(path string) (io.ReadCloser, error) {
	f, err := os.Open(p.native(path))
	if err != nil {
		return nil, xerr.Wrap(xerr.KindFileOpen, err, "unable to open repository file")
	}
	return f, nil
}

func (p *Posix) Stat(path string) (Info, error) {
	fi, err := os.Stat(p.native(path))
	if err != nil {
		return Info{}, xerr.Wrap(xerr.KindFileInfo, err, "unable to stat repository file")
	}
	return Info{Path: path, Size: fi.Size(), ModTime: fi.ModTime().Unix()}, nil
}

func (p *Posix) List(path string) ([]string, error) {
	entries, err := os.ReadDir(p.native(path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, xerr.Wrap(xerr.KindFileInfo, err, "unable to list repository directory")
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

func (p *Posix) Remove(path string) error {
	if err := os.Remove(p.native(path)); err != nil && !os.IsNotExist(err) {
		return xerr.Wrap(xerr.KindFileWrite, err, "unable to remove repository file")
	}
	return nil
}
