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

// Package sceneconfig reads the JSON scenario files the cmd/pgblock
// demonstration binary runs, in the same spirit as perkeep's
// pkg/jsonconfig: a thin, explicit wrapper around encoding/json, no
// schema or validation framework.
package sceneconfig

import (
	"encoding/json"
	"os"

	"github.com/pgblock/core/pkg/xerr"
)

// FileEntry names one source file to include in a scenario backup and
// the options that apply to it.
type FileEntry struct {
	SourcePath string `json:"source_path"`
	RepoPath   string `json:"repo_path"`
	IsDataFile bool   `json:"is_data_file"`
}

// Scenario describes one end-to-end demonstration run: a repository
// root, a block size, and the files to back up.
type Scenario struct {
	RepoRoot        string      `json:"repo_root"`
	BlockSize       uint32      `json:"block_size"`
	SuperBlockSize  uint32      `json:"super_block_size"`
	ChecksumSize    int         `json:"checksum_size"`
	Compression     string      `json:"compression"`
	Passphrase      string      `json:"passphrase"`
	Workers         int         `json:"workers"`
	Files           []FileEntry `json:"files"`
}

// defaults applied when a scenario file omits the field.
const (
	defaultBlockSize      = 1 << 20
	defaultSuperBlockSize = 4 * (1 << 20)
	defaultChecksumSize   = 20
	defaultWorkers        = 4
)

// Load reads and validates a scenario file at path.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, xerr.Wrap(xerr.KindFileOpen, err, "unable to read scenario file")
	}

	var s Scenario
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, xerr.Wrap(xerr.KindFormat, err, "unable to parse scenario file")
	}

	if s.RepoRoot == "" {
		return nil, xerr.Newf(xerr.KindFormat, "scenario file %q is missing required key %q", path, "repo_root")
	}
	if len(s.Files) == 0 {
		return nil, xerr.Newf(xerr.KindFormat, "scenario file %q names no files", path)
	}
	if s.BlockSize == 0 {
		s.BlockSize = defaultBlockSize
	}
	if s.SuperBlockSize == 0 {
		s.SuperBlockSize = defaultSuperBlockSize
	}
	if s.ChecksumSize == 0 {
		s.ChecksumSize = defaultChecksumSize
	}
	if s.Workers == 0 {
		s.Workers = defaultWorkers
	}
	return &s, nil
}
