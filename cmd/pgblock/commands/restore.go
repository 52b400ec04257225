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
	"os"

	"github.com/spf13/cobra"

	"github.com/pgblock/core/pkg/corelog"
	"github.com/pgblock/core/pkg/restore"
	"github.com/pgblock/core/pkg/sceneconfig"
	"github.com/pgblock/core/pkg/storage"
)

var restoreCmd = &cobra.Command{
	Use:   "restore SCENARIO_FILE",
	Short: "Restore the files named in a scenario file back to their source paths",
	Args:  cobra.ExactArgs(1),
	RunE:  runRestore,
}

func runRestore(cmd *cobra.Command, args []string) error {
	log := corelog.New("restore", cmd.ErrOrStderr())

	scene, err := sceneconfig.Load(args[0])
	if err != nil {
		return err
	}

	repo, err := storage.NewPosix(scene.RepoRoot)
	if err != nil {
		return err
	}

	_, decompress := compressionFactories(scene.Compression)
	_, decrypt, err := encryptionFactories(repo, scene.Passphrase, false)
	if err != nil {
		return err
	}

	orch := restore.NewOrchestrator(repo)
	driver := restore.NewDriver(orch, scene.Workers)

	entries := make([]restore.ManifestEntry, len(scene.Files))
	for i, f := range scene.Files {
		entries[i] = restore.ManifestEntry{
			Index: i,
			Input: restore.FileInput{
				RepoPath:   f.RepoPath,
				DestPath:   f.SourcePath,
				TargetMode: os.FileMode(0o640),
				Decompress: decompress,
				Decrypt:    decrypt,
			},
		}
	}

	results, err := driver.Run(context.Background(), entries)
	if err != nil {
		return err
	}
	for i, r := range results {
		log.Printf("%s -> %s (%s)", scene.Files[i].RepoPath, scene.Files[i].SourcePath, r.Result)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "restored %d files\n", len(results))
	return nil
}
