// Copyright 2020 Grail Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package pileup

import (
	"math/rand"

	"github.com/grailbio/grups/genome"
)

// Pair is one requested ordered comparison between two sample columns of the
// pileup input (column indices into Record.Samples).
type Pair struct {
	Label      string
	LeftCol    int
	RightCol   int
	LeftDepth  int // --min-depth for the left column
	RightDepth int // --min-depth for the right column
}

// IsSelf reports whether this is a self-comparison (spec §4.4's "(S,S)"
// case), which needs depth >= 2 on the shared column to draw two
// independent alleles.
func (p Pair) IsSelf() bool { return p.LeftCol == p.RightCol }

// CorrectedFilter reports whether a site should count towards the
// "corrected" PWD (spec §4.4): present in the reference store, with
// population allele frequency >= --maf on the pedigree's chosen population.
// The pileup engine is reference-store agnostic; refstore-backed callers
// supply this hook.
type CorrectedFilter func(c genome.Coordinate) bool

// Opts configures one PWD-engine run over a single pileup stream.
type Opts struct {
	Pairs               []Pair
	MinQual             byte // PHRED-scaled minimum base quality
	IncludeDeletions    bool // include '*' calls; default false
	Targets             *Targets
	ExcludeTransitions  bool
	BlockSize           int64
	CorrectedFilter     CorrectedFilter
	Rand                *rand.Rand // nil => rand.New(rand.NewSource(1))
}

// PositionDepth is one (position, effective depth) tuple recorded per pair,
// consumed by the simulation engine (spec §2's data-flow: "pileup + targets
// -> observed PWDs and a per-pair list of (position, effective-depth)
// tuples").
type PositionDepth struct {
	Coord      genome.Coordinate
	Ref        byte
	LeftDepth  int
	RightDepth int
}

// PairResult is one pair's engine output: raw and corrected accumulators,
// plus the position/depth list the simulation engine replays.
type PairResult struct {
	Pair       Pair
	Raw        *Accumulator
	Corrected  *Accumulator
	Positions  []PositionDepth
}

// Engine streams a Reader once and produces one PairResult per requested
// Pair.
type Engine struct {
	opts    Opts
	rng     *rand.Rand
	results map[string]*PairResult // keyed by Pair.Label
	order   []string
}

// NewEngine returns an Engine ready to consume one pileup stream.
func NewEngine(opts Opts) *Engine {
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	e := &Engine{opts: opts, rng: rng, results: map[string]*PairResult{}}
	for _, p := range opts.Pairs {
		e.results[p.Label] = &PairResult{
			Pair:      p,
			Raw:       NewAccumulator(opts.BlockSize),
			Corrected: NewAccumulator(opts.BlockSize),
		}
		e.order = append(e.order, p.Label)
	}
	return e
}

// Run consumes every record from r, accumulating into each pair's result.
func (e *Engine) Run(r *Reader) error {
	for {
		rec, ok := r.Next()
		if !ok {
			break
		}
		if e.opts.Targets != nil && !e.opts.Targets.Contains(rec.Coord) {
			continue
		}
		e.processRecord(rec)
	}
	return r.Err()
}

func (e *Engine) processRecord(rec Record) {
	filtered := make([][]Call, len(rec.Samples))
	for i, s := range rec.Samples {
		filtered[i] = e.filterCalls(s.Calls)
	}
	// Transition exclusion is a per-site decision on {ref,alt}, not a
	// per-draw one: it must not depend on which of a site's remaining
	// bases happens to get drawn (spec §4.4).
	if e.opts.ExcludeTransitions && recordIsTransition(rec.Ref, filtered) {
		return
	}
	for _, label := range e.order {
		res := e.results[label]
		p := res.Pair
		minLeft, minRight := p.LeftDepth, p.RightDepth
		if p.IsSelf() {
			if minLeft < 2 {
				minLeft = 2
			}
			minRight = minLeft
		}
		left := filtered[p.LeftCol]
		right := filtered[p.RightCol]

		if p.IsSelf() {
			// Self-comparison draws two independent alleles from the same
			// column, per spec §4.4/§4.6's self-comparison rule.
			if len(left) < minLeft || len(left) < 2 {
				continue
			}
			res.Positions = append(res.Positions, PositionDepth{
				Coord:      rec.Coord,
				Ref:        rec.Ref,
				LeftDepth:  len(left),
				RightDepth: len(left),
			})
			i, j := drawTwoDistinctIndices(e.rng, len(left))
			e.accumulate(res, rec.Coord, left[i], left[j])
			continue
		}
		if len(left) < minLeft || len(right) < minRight {
			continue
		}
		if len(left) == 0 || len(right) == 0 {
			continue
		}
		res.Positions = append(res.Positions, PositionDepth{
			Coord:      rec.Coord,
			Ref:        rec.Ref,
			LeftDepth:  len(left),
			RightDepth: len(right),
		})
		l := left[e.rng.Intn(len(left))]
		rr := right[e.rng.Intn(len(right))]
		e.accumulate(res, rec.Coord, l, rr)
	}
}

// recordIsTransition reports whether this site's alt allele — the first
// base among every sample's filtered calls that differs from ref — forms a
// transition substitution with ref. A site with no non-ref base observed
// (monomorphic in this pileup) is never excluded.
func recordIsTransition(ref byte, filtered [][]Call) bool {
	for _, calls := range filtered {
		for _, c := range calls {
			if c.Base != '*' && upper(c.Base) != upper(ref) {
				return IsTransition(ref, c.Base)
			}
		}
	}
	return false
}

func (e *Engine) accumulate(res *PairResult, c genome.Coordinate, left, right Call) {
	mismatch := left.Base != right.Base
	res.Raw.add(c, left.Base, right.Base, left.Qual, right.Qual, mismatch)
	if e.opts.CorrectedFilter == nil || e.opts.CorrectedFilter(c) {
		res.Corrected.add(c, left.Base, right.Base, left.Qual, right.Qual, mismatch)
	}
}

// filterCalls applies the base-quality filter and optional deletion
// inclusion to one sample's expanded calls, per spec §4.4. 'N' calls never
// reach this stage (dropped during expansion).
func (e *Engine) filterCalls(calls []Call) []Call {
	out := make([]Call, 0, len(calls))
	for _, c := range calls {
		if c.Base == '*' && !e.opts.IncludeDeletions {
			continue
		}
		if c.Qual < e.opts.MinQual {
			continue
		}
		out = append(out, c)
	}
	return out
}

// drawTwoDistinctIndices picks two distinct indices uniformly from [0,n).
func drawTwoDistinctIndices(rng *rand.Rand, n int) (int, int) {
	i := rng.Intn(n)
	j := rng.Intn(n - 1)
	if j >= i {
		j++
	}
	return i, j
}

// Results returns every pair's accumulated result, in the order Pairs was
// given.
func (e *Engine) Results() []*PairResult {
	out := make([]*PairResult, len(e.order))
	for i, label := range e.order {
		out[i] = e.results[label]
	}
	return out
}
