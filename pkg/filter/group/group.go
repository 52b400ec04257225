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

// Package group composes individual filters into one virtual stream:
// add filters in source-to-destination order, open the group once all
// are added, then drive it exactly like any single filter.
package group

import (
	"github.com/pgblock/core/pkg/filter"
	"github.com/pgblock/core/pkg/stringid"
	"github.com/pgblock/core/pkg/xerr"
)

const intermediateBufferSize = 64 * 1024

type member struct {
	f   filter.Filter
	out *filter.Buffer // nil for the last member, which writes the caller's output
	// flushed records whether this member has been driven once with a
	// nil (end-of-stream) input. Filters that don't implement Doner
	// have no other way to report exhaustion, so one flush call is
	// taken as their whole completion signal.
	flushed bool
}

// Group chains filters into a single virtual stream.
type Group struct {
	members []member
	opened  bool
	results map[stringid.ID][][]byte
}

// New returns an empty, unopened Group.
func New() *Group { return &Group{} }

// Add appends a filter to the end of the chain. Filters must be added
// in source-to-destination order, before Open.
func (g *Group) Add(f filter.Filter) {
	if g.opened {
		panic("group: Add called after Open")
	}
	g.members = append(g.members, member{f: f})
}

// Open finalizes the chain, allocating the intermediate buffers
// between adjacent filters. If the last filter does not produce
// output (a Sink), an identity buffer filter is appended so the group
// always has something to write the caller's output buffer with.
func (g *Group) Open() {
	if g.opened {
		return
	}
	if len(g.members) == 0 {
		g.members = append(g.members, member{f: filter.NewIdentity()})
	} else if _, ok := g.members[len(g.members)-1].f.(filter.Transformer); !ok {
		g.members = append(g.members, member{f: filter.NewIdentity()})
	}
	for i := range g.members[:len(g.members)-1] {
		g.members[i].out = filter.NewBuffer(intermediateBufferSize)
	}
	g.opened = true
}

func (m *member) isDone() bool {
	if d, ok := m.f.(filter.Doner); ok {
		return d.Done()
	}
	return m.flushed
}

func (m *member) wantsSameInput() bool {
	if s, ok := m.f.(filter.SameInputer); ok {
		return s.InputSame()
	}
	return false
}

// rightmostSameInput returns the index of the right-most filter that
// declared InputSame, or -1 if none did.
func (g *Group) rightmostSameInput() int {
	for i := len(g.members) - 1; i >= 0; i-- {
		if g.members[i].wantsSameInput() {
			return i
		}
	}
	return -1
}

// Process drives the chain with one slice of caller input, appending
// produced bytes to the caller's output buffer. input == nil signals
// end of stream (flush); callers keep calling Process(nil, output)
// until Done returns true.
func (g *Group) Process(input []byte, output *filter.Buffer) error {
	if !g.opened {
		panic("group: Process called before Open")
	}
	flushing := input == nil
	for {
		start := g.rightmostSameInput()
		if start < 0 {
			start = 0
		}
		for i := start; i < len(g.members); i++ {
			m := &g.members[i]
			if m.isDone() {
				continue
			}
			in := g.inputFor(i, input)
			priorDrained := i == 0 || g.members[i-1].isDone() && (g.members[i-1].out == nil || g.members[i-1].out.Empty())
			// Call this filter if it has real input, or if we are
			// flushing and its predecessor is done and fully drained (so
			// NULL correctly signals "no more input, ever" rather than
			// "nothing produced yet this round").
			shouldCall := in != nil || (flushing && priorDrained)
			if !shouldCall {
				continue
			}
			if t, ok := m.f.(filter.Transformer); ok {
				out := m.out
				if out == nil {
					out = output
				}
				if err := t.ProcessInOut(in, out); err != nil {
					return err
				}
				if in == nil {
					m.flushed = true
				}
				continue
			}
			if s, ok := m.f.(filter.Sink); ok {
				if err := s.ProcessIn(in); err != nil {
					return err
				}
				if in == nil {
					m.flushed = true
				}
			}
		}
		input = nil // the caller's raw input is only ever consumed by filter 0, once

		if output.Full() || !g.anyWantsSameInput() {
			return nil
		}
	}
}

// inputFor computes what filter i should consume on this pass: the
// caller's input if i == 0, otherwise whatever its predecessor has
// produced into the intermediate buffer between them.
func (g *Group) inputFor(i int, callerInput []byte) []byte {
	if i == 0 {
		return callerInput
	}
	prev := g.members[i-1].out
	if prev == nil || prev.Empty() {
		return nil
	}
	b := prev.Bytes()
	prev.Reset()
	return b
}

func (g *Group) anyWantsSameInput() bool {
	for i := range g.members {
		if g.members[i].wantsSameInput() {
			return true
		}
	}
	return false
}

// Done reports whether every filter in the chain has permanently
// finished producing output.
func (g *Group) Done() bool {
	for i := range g.members {
		if !g.members[i].isDone() {
			return false
		}
	}
	return true
}

// InputSame reports whether some filter still has undrained
// intermediate output and must be revisited before new caller input is
// accepted.
func (g *Group) InputSame() bool { return g.anyWantsSameInput() }

// Close calls Result on every filter that has one, keyed by filter
// type; multiple filters sharing a type are indexed positionally
// within that type's slice.
func (g *Group) Close() (map[stringid.ID][][]byte, error) {
	g.results = make(map[stringid.ID][][]byte)
	for i := range g.members {
		r, ok := g.members[i].f.(filter.Resulter)
		if !ok {
			continue
		}
		packed, err := r.Result()
		if err != nil {
			return nil, xerr.Wrap(xerr.KindAssert, err, "filter result failed")
		}
		typ := g.members[i].f.FilterType()
		g.results[typ] = append(g.results[typ], packed)
	}
	return g.results, nil
}

// Result returns the idx'th result recorded for filter type typ
// (0-based, in chain order), as produced by the most recent Close.
func (g *Group) Result(typ stringid.ID, idx int) ([]byte, error) {
	list := g.results[typ]
	if idx < 0 || idx >= len(list) {
		return nil, xerr.Newf(xerr.KindAssert, "no result recorded for filter type at index %d", idx)
	}
	return list[idx], nil
}
