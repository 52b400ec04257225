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

// Package restore implements the per-file restore decision tree and a
// concurrent driver that runs it across a whole manifest.
package restore

import (
	"bytes"
	"crypto/sha256"
	"io"
	"os"
	"time"

	"github.com/pgblock/core/pkg/filter"
	"github.com/pgblock/core/pkg/filter/group"
	"github.com/pgblock/core/pkg/storage"
	"github.com/pgblock/core/pkg/xerr"
)

// Result names the outcome of restoring one file.
type Result string

const (
	ResultAlreadyCorrect Result = "already_correct"
	ResultSkippedDelta   Result = "skipped_delta"
	ResultZeroed         Result = "zeroed"
	ResultCopied         Result = "copied"
)

// FileInput describes one manifest file to restore.
type FileInput struct {
	RepoPath         string
	DestPath         string
	ExpectedChecksum []byte // SHA-256
	ZeroFile         bool
	TargetSize       int64
	TargetMTime      time.Time
	TargetMode       os.FileMode
	Delta            bool
	DeltaForce       bool
	CopyStartTime    time.Time
	Decrypt          func() []filter.Filter
	Decompress       func() []filter.Filter
}

// FileOutput reports what actually happened.
type FileOutput struct {
	Result Result
}

// Orchestrator runs the per-file restore decision tree against a
// repository and the local filesystem destination.
type Orchestrator struct {
	Repo storage.Repository
}

// NewOrchestrator returns an Orchestrator reading from repo.
func NewOrchestrator(repo storage.Repository) *Orchestrator {
	return &Orchestrator{Repo: repo}
}

// Run executes the decision tree for one file.
func (o *Orchestrator) Run(in FileInput) (FileOutput, error) {
	if in.Delta && !in.ZeroFile {
		if fi, err := os.Stat(in.DestPath); err == nil {
			if in.DeltaForce && fi.Size() == in.TargetSize && fi.ModTime().Equal(in.TargetMTime) && fi.ModTime().Before(in.CopyStartTime) {
				return FileOutput{Result: ResultAlreadyCorrect}, nil
			}
			if fi.Size() == in.TargetSize {
				match, err := fileChecksumMatches(in.DestPath, in.ExpectedChecksum)
				if err != nil {
					return FileOutput{}, err
				}
				if match {
					if !fi.ModTime().Equal(in.TargetMTime) {
						if err := os.Chtimes(in.DestPath, in.TargetMTime, in.TargetMTime); err != nil {
							return FileOutput{}, xerr.Wrap(xerr.KindFileWrite, err, "unable to reset destination mtime")
						}
					}
					return FileOutput{Result: ResultSkippedDelta}, nil
				}
			}
		}
	}

	if in.ZeroFile {
		if err := createSparseZeroFile(in.DestPath, in.TargetSize, in.TargetMode); err != nil {
			return FileOutput{}, err
		}
		return FileOutput{Result: ResultZeroed}, nil
	}

	sum, err := o.copy(in)
	if err != nil {
		return FileOutput{}, err
	}
	if !bytes.Equal(sum, in.ExpectedChecksum) {
		return FileOutput{}, xerr.Newf(xerr.KindChecksum, "restored file %q does not match its expected checksum", in.DestPath)
	}
	return FileOutput{Result: ResultCopied}, nil
}

func fileChecksumMatches(path string, expected []byte) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, xerr.Wrap(xerr.KindFileOpen, err, "unable to open destination file")
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return false, xerr.Wrap(xerr.KindFileRead, err, "unable to read destination file")
	}
	return bytes.Equal(h.Sum(nil), expected), nil
}

func createSparseZeroFile(path string, size int64, mode os.FileMode) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
	if err != nil {
		return xerr.Wrap(xerr.KindFileOpen, err, "unable to create zero-file marker destination")
	}
	defer f.Close()
	if err := f.Truncate(size); err != nil {
		return xerr.Wrap(xerr.KindFileWrite, err, "unable to truncate zero-file marker destination")
	}
	return nil
}

// copy streams the repository object through (decrypt, decompress,
// hash) into the destination file, returning the computed checksum.
func (o *Orchestrator) copy(in FileInput) ([]byte, error) {
	r, err := o.Repo.NewReader(in.RepoPath)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	w, err := os.OpenFile(in.DestPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, in.TargetMode)
	if err != nil {
		return nil, xerr.Wrap(xerr.KindFileOpen, err, "unable to create restore destination")
	}

	g := group.New()
	if in.Decrypt != nil {
		for _, f := range in.Decrypt() {
			g.Add(f)
		}
	}
	if in.Decompress != nil {
		for _, f := range in.Decompress() {
			g.Add(f)
		}
	}
	hash := filter.NewHashSHA256()
	g.Add(hash)
	g.Open()

	if err := driveGroupToWriter(g, r, w); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, xerr.Wrap(xerr.KindFileWrite, err, "unable to close restore destination")
	}
	if !in.TargetMTime.IsZero() {
		if err := os.Chtimes(in.DestPath, in.TargetMTime, in.TargetMTime); err != nil {
			return nil, xerr.Wrap(xerr.KindFileWrite, err, "unable to set restore destination mtime")
		}
	}
	results, err := g.Close()
	if err != nil {
		return nil, err
	}
	return filter.HashResult(results[hash.FilterType()][0])
}

const driveChunkSize = 64 * 1024

func driveGroupToWriter(g *group.Group, r io.Reader, w io.Writer) error {
	buf := make([]byte, driveChunkSize)
	out := filter.NewBuffer(driveChunkSize * 2)
	for {
		n, rerr := r.Read(buf)
		if n > 0 {
			if err := g.Process(buf[:n], out); err != nil {
				return err
			}
			if err := drainOutput(out, w); err != nil {
				return err
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return xerr.Wrap(xerr.KindFileRead, rerr, "unable to read repository file")
		}
	}
	for !g.Done() {
		if err := g.Process(nil, out); err != nil {
			return err
		}
		if err := drainOutput(out, w); err != nil {
			return err
		}
	}
	return nil
}

func drainOutput(out *filter.Buffer, w io.Writer) error {
	if out.Used() == 0 {
		return nil
	}
	if _, err := w.Write(out.Bytes()); err != nil {
		return xerr.Wrap(xerr.KindFileWrite, err, "unable to write restore destination")
	}
	out.Reset()
	return nil
}
