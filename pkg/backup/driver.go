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

package backup

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ManifestEntry pairs a FileInput with the index it should report its
// FileOutput back at, so results line up with the caller's manifest
// order even though files complete out of order.
type ManifestEntry struct {
	Index int
	Input FileInput
}

// Driver runs an Orchestrator across many files concurrently, bounded
// by a worker count (pgbackrest calls this "process-max").
type Driver struct {
	Orchestrator *Orchestrator
	Workers      int
}

// NewDriver returns a Driver with the given worker bound (at least 1).
func NewDriver(o *Orchestrator, workers int) *Driver {
	if workers < 1 {
		workers = 1
	}
	return &Driver{Orchestrator: o, Workers: workers}
}

// Run backs up every entry, stopping at the first error (the core
// never retries internally; a failed file aborts the whole backup).
// Results are returned in the same order as entries regardless of
// completion order.
func (d *Driver) Run(ctx context.Context, entries []ManifestEntry) ([]FileOutput, error) {
	results := make([]FileOutput, len(entries))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(d.Workers)

	for _, entry := range entries {
		entry := entry
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			out, err := d.Orchestrator.Run(entry.Input)
			if err != nil {
				return err
			}
			mu.Lock()
			results[entry.Index] = out
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
