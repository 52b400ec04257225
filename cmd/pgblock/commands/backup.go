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

package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/pgblock/core/pkg/backup"
	"github.com/pgblock/core/pkg/corelog"
	"github.com/pgblock/core/pkg/filter"
	"github.com/pgblock/core/pkg/keywrap"
	"github.com/pgblock/core/pkg/sceneconfig"
	"github.com/pgblock/core/pkg/storage"
	"github.com/pgblock/core/pkg/xerr"
)

const keyRepoPath = "pgblock.key"

var backupCmd = &cobra.Command{
	Use:   "backup SCENARIO_FILE",
	Short: "Back up the files named in a scenario file",
	Args:  cobra.ExactArgs(1),
	RunE:  runBackup,
}

func runBackup(cmd *cobra.Command, args []string) error {
	log := corelog.New("backup", cmd.ErrOrStderr())

	scene, err := sceneconfig.Load(args[0])
	if err != nil {
		return err
	}

	repo, err := storage.NewPosix(scene.RepoRoot)
	if err != nil {
		return err
	}

	compress, _ := compressionFactories(scene.Compression)
	encrypt, _, err := encryptionFactories(repo, scene.Passphrase, true)
	if err != nil {
		return err
	}

	orch := backup.NewLocalOrchestrator(repo)
	driver := backup.NewDriver(orch, scene.Workers)

	entries := make([]backup.ManifestEntry, len(scene.Files))
	for i, f := range scene.Files {
		entries[i] = backup.ManifestEntry{
			Index: i,
			Input: backup.FileInput{
				SourcePath: f.SourcePath,
				RepoPath:   f.RepoPath,
				IsDataFile: f.IsDataFile,
				Compress:   compress,
				Encrypt:    encrypt,
			},
		}
	}

	results, err := driver.Run(context.Background(), entries)
	if err != nil {
		return err
	}
	for i, r := range results {
		log.Printf("%s -> %s (%s, %d bytes on disk)", scene.Files[i].SourcePath, scene.Files[i].RepoPath, r.Result, r.SizeOnDisk)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "backed up %d files\n", len(results))
	return nil
}

func compressionFactories(name string) (compress, decompress func() []filter.Filter) {
	kind, ok := compressionKind(name)
	if !ok {
		return nil, nil
	}
	return func() []filter.Filter { return []filter.Filter{filter.NewCompress(kind, 0)} },
		func() []filter.Filter { return []filter.Filter{filter.NewDecompress(kind)} }
}

func compressionKind(name string) (filter.Compression, bool) {
	switch name {
	case "gzip", "gz":
		return filter.CompressionGZ, true
	case "zstd", "zst":
		return filter.CompressionZST, true
	case "lz4":
		return filter.CompressionLZ4, true
	case "bz2", "bzip2":
		return filter.CompressionBZ2, true
	default:
		return 0, false
	}
}

// encryptionFactories returns Encrypt/Decrypt filter factories backed
// by a data key wrapped under scene.Passphrase. On backup (generate
// true) a fresh key is generated and its wrapped form written to the
// repository's key file; on restore it is read back and unwrapped.
func encryptionFactories(repo storage.Repository, passphrase string, generate bool) (encrypt, decrypt func() []filter.Filter, err error) {
	if passphrase == "" {
		return nil, nil, nil
	}

	var key []byte
	if generate {
		key, err = keywrap.GenerateDataKey()
		if err != nil {
			return nil, nil, err
		}
		wrapped, err := keywrap.Wrap(passphrase, key)
		if err != nil {
			return nil, nil, err
		}
		w, err := repo.NewWriter(keyRepoPath)
		if err != nil {
			return nil, nil, err
		}
		if _, err := w.Write(wrapped); err != nil {
			return nil, nil, err
		}
		if err := w.Close(); err != nil {
			return nil, nil, err
		}
	} else {
		r, err := repo.NewReader(keyRepoPath)
		if err != nil {
			return nil, nil, err
		}
		defer r.Close()
		wrapped, err := io.ReadAll(r)
		if err != nil {
			return nil, nil, xerr.Wrap(xerr.KindFileRead, err, "unable to read key file")
		}
		key, err = keywrap.Unwrap(passphrase, wrapped)
		if err != nil {
			return nil, nil, err
		}
	}

	return func() []filter.Filter { return []filter.Filter{filter.NewCipherBlockEncrypt(key)} },
		func() []filter.Filter { return []filter.Filter{filter.NewCipherBlockDecrypt(key)} }, nil
}
