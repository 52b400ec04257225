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

// Package backup implements the per-file backup decision tree and a
// concurrent driver that runs it across a whole manifest.
package backup

import (
	"bytes"
	"io"
	"os"

	"github.com/pgblock/core/pkg/filter"
	"github.com/pgblock/core/pkg/filter/group"
	"github.com/pgblock/core/pkg/storage"
	"github.com/pgblock/core/pkg/xerr"
)

// Result names the outcome of backing up one file.
type Result string

const (
	ResultNoOp          Result = "no_op"
	ResultSkipped       Result = "skipped"
	ResultChecksumMatch Result = "checksum_match"
	ResultCopy          Result = "copy"
	ResultReCopy        Result = "re_copy"
)

// FileInput describes one manifest file to back up.
type FileInput struct {
	SourcePath      string
	RepoPath        string
	KnownSize       int64
	KnownChecksum   []byte // SHA-256 from a prior manifest, nil if unknown
	Referenced      bool   // already has a reference in this backup set
	Delta           bool
	IsDataFile      bool // eligible for page-checksum verification
	Compress        func() []filter.Filter
	Decompress      func() []filter.Filter
	Encrypt         func() []filter.Filter
	Decrypt         func() []filter.Filter
}

// FileOutput reports what actually happened.
type FileOutput struct {
	Result       Result
	SizeOnDisk   int64
	Checksum     []byte
	InvalidPages []uint32
}

// Orchestrator runs the per-file decision tree against a repository
// and a source file opener (a thin seam over the local filesystem or a
// remote PostgreSQL host session).
type Orchestrator struct {
	Repo       storage.Repository
	OpenSource func(path string) (io.ReadCloser, error)
}

// NewLocalOrchestrator returns an Orchestrator whose source files are
// read directly off the local filesystem (the common case for a
// single-host demo or test).
func NewLocalOrchestrator(repo storage.Repository) *Orchestrator {
	return &Orchestrator{Repo: repo, OpenSource: func(path string) (io.ReadCloser, error) {
		f, err := os.Open(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, xerr.Wrap(xerr.KindFileOpen, err, "source file is missing")
			}
			return nil, xerr.Wrap(xerr.KindFileOpen, err, "unable to open source file")
		}
		return f, nil
	}}
}

func isMissing(err error) bool { return xerr.KindOf(err) == xerr.KindFileOpen }

// Run executes the decision tree for one file.
func (o *Orchestrator) Run(in FileInput) (FileOutput, error) {
	if in.KnownChecksum != nil && in.Delta {
		matchSize, matchSum, err := o.streamHashSize(in.SourcePath)
		if err != nil {
			if isMissing(err) {
				return FileOutput{Result: ResultSkipped}, o.Repo.Remove(in.RepoPath)
			}
			return FileOutput{}, err
		}
		if matchSize == in.KnownSize && bytes.Equal(matchSum, in.KnownChecksum) && in.Referenced {
			return FileOutput{Result: ResultNoOp, SizeOnDisk: matchSize, Checksum: matchSum}, nil
		}
	}

	result := ResultCopy
	if in.KnownChecksum != nil && (!in.Delta || !in.Referenced) {
		repoOK, err := o.verifyRepoCopy(in)
		if err != nil {
			return FileOutput{}, err
		}
		if repoOK {
			return FileOutput{Result: ResultChecksumMatch}, nil
		}
		result = ResultReCopy
	}

	out, err := o.copy(in)
	if err != nil {
		if isMissing(err) {
			return FileOutput{Result: ResultSkipped}, nil
		}
		return FileOutput{}, err
	}
	out.Result = result
	return out, nil
}

// streamHashSize streams the source through (hash, size) filters. A
// missing source surfaces as an error satisfying isMissing.
func (o *Orchestrator) streamHashSize(path string) (size int64, sum []byte, err error) {
	src, err := o.OpenSource(path)
	if err != nil {
		return 0, nil, err
	}
	defer src.Close()

	g := group.New()
	hash := filter.NewHashSHA256()
	sizeF := filter.NewSize()
	g.Add(hash)
	g.Add(sizeF)
	g.Open()

	if err := driveGroup(g, src); err != nil {
		return 0, nil, err
	}
	results, err := g.Close()
	if err != nil {
		return 0, nil, err
	}
	sum, err = filter.HashResult(results[hash.FilterType()][0])
	if err != nil {
		return 0, nil, err
	}
	total, err := filter.SizeResult(results[sizeF.FilterType()][0])
	if err != nil {
		return 0, nil, err
	}
	return int64(total), sum, nil
}

// verifyRepoCopy streams the existing repository object through
// (decrypt, decompress, hash, size) and compares against what the
// manifest expects.
func (o *Orchestrator) verifyRepoCopy(in FileInput) (bool, error) {
	r, err := o.Repo.NewReader(in.RepoPath)
	if err != nil {
		if xerr.KindOf(err) == xerr.KindFileOpen {
			return false, nil
		}
		return false, err
	}
	defer r.Close()

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
	sizeF := filter.NewSize()
	g.Add(hash)
	g.Add(sizeF)
	g.Open()

	if err := driveGroup(g, r); err != nil {
		return false, nil // a corrupt repository copy downgrades to re_copy, not a hard failure
	}
	results, err := g.Close()
	if err != nil {
		return false, nil
	}
	sum, err := filter.HashResult(results[hash.FilterType()][0])
	if err != nil {
		return false, nil
	}
	total, err := filter.SizeResult(results[sizeF.FilterType()][0])
	if err != nil {
		return false, nil
	}
	return int64(total) == in.KnownSize && bytes.Equal(sum, in.KnownChecksum), nil
}

// copy streams the source through (hash, size, [page-checksum],
// [compress], [encrypt]) into a new repository object.
func (o *Orchestrator) copy(in FileInput) (FileOutput, error) {
	src, err := o.OpenSource(in.SourcePath)
	if err != nil {
		return FileOutput{}, err
	}
	defer src.Close()

	w, err := o.Repo.NewWriter(in.RepoPath)
	if err != nil {
		return FileOutput{}, err
	}

	g := group.New()
	hash := filter.NewHashSHA256()
	sizeF := filter.NewSize()
	g.Add(hash)
	g.Add(sizeF)
	var pageCheck *filter.PageChecksum
	if in.IsDataFile {
		pageCheck = filter.NewPageChecksum(0)
		g.Add(pageCheck)
	}
	if in.Compress != nil {
		for _, f := range in.Compress() {
			g.Add(f)
		}
	}
	if in.Encrypt != nil {
		for _, f := range in.Encrypt() {
			g.Add(f)
		}
	}
	g.Open()

	if err := driveGroupToWriter(g, src, w); err != nil {
		w.Close()
		o.Repo.Remove(in.RepoPath)
		return FileOutput{}, err
	}
	if err := w.Close(); err != nil {
		return FileOutput{}, err
	}
	results, err := g.Close()
	if err != nil {
		return FileOutput{}, err
	}
	sum, err := filter.HashResult(results[hash.FilterType()][0])
	if err != nil {
		return FileOutput{}, err
	}
	if _, err := filter.SizeResult(results[sizeF.FilterType()][0]); err != nil {
		return FileOutput{}, err
	}
	info, err := o.Repo.Stat(in.RepoPath)
	if err != nil {
		return FileOutput{}, err
	}
	out := FileOutput{SizeOnDisk: info.Size, Checksum: sum}
	if pageCheck != nil {
		out.InvalidPages = pageCheck.InvalidPages()
	}
	return out, nil
}

const driveChunkSize = 64 * 1024

// driveGroup runs a filter group to completion over r, discarding its
// output — used when the group's only purpose is to compute results
// (hash, size) from a verification pass.
func driveGroup(g *group.Group, r io.Reader) error {
	return driveGroupToWriter(g, r, discardWriter{})
}

// driveGroupToWriter runs a filter group to completion over r, writing
// its output to w.
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
			return xerr.Wrap(xerr.KindFileRead, rerr, "unable to read source")
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
		return xerr.Wrap(xerr.KindFileWrite, err, "unable to write repository file")
	}
	out.Reset()
	return nil
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
