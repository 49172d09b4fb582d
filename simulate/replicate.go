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
package simulate

import (
	"math/rand"

	"github.com/grailbio/grups/genome"
	"github.com/grailbio/grups/panel"
	"github.com/grailbio/grups/pedigree"
	"github.com/grailbio/grups/pileup"
	"github.com/grailbio/grups/refstore"
)

// ReplicateResult is one comparison label's overlap/mismatch tally from a
// single replicate (spec §4.6's "Accumulate" step). RunPair rolls many of
// these, per label, into its map of per-replicate avg-PWD values.
type ReplicateResult struct {
	Label    string
	Overlap  int64
	Mismatch int64
	Founders map[string]string // founder individual ID -> chosen reference sample ID
}

// ReplicateOpts bundles the configuration that stays constant across every
// replicate of one pair (only the RNG and the draws it makes vary).
type ReplicateOpts struct {
	FounderPop  []panel.Sample
	SexSpecific bool
	XChromMode  bool
	PKeep       float64 // AF-downsampling keep-probability
	Store       refstore.Store
	Map         *genome.GeneticMap
	Emit        EmitOpts
	LeftParams  SideParams
	RightParams SideParams
}

// RunReplicate executes the full AssignFounders -> PropagateMeiosis ->
// EmitObservations -> Accumulate state machine once, over every comparison
// declared in pd, replaying the real pair's observed positions/depths.
// A FounderShortage error is fatal for the run (spec §4.6); any other
// error is a lookup failure from the reference store.
func RunReplicate(pd *pedigree.Pedigree, positions []pileup.PositionDepth, opts ReplicateOpts, rng *rand.Rand) ([]ReplicateResult, error) {
	founders, err := AssignFounders(pd, opts.FounderPop, opts.SexSpecific, rng)
	if err != nil {
		return nil, err
	}
	genomes, err := PropagateMeiosis(pd, founders, opts.Store, opts.Map, positions, opts.XChromMode, opts.PKeep, rng)
	if err != nil {
		return nil, err
	}

	var contam ContaminantSet
	if opts.Emit.ContamNumInd > 0 && len(opts.Emit.ContamPop) > 0 {
		contam = DrawContaminants(opts.Emit.ContamPop, opts.Emit.ContamNumInd, rng)
	}

	siteKept := make([]bool, len(positions))
	for pi := range siteKept {
		siteKept[pi] = rng.Float64() < opts.Emit.SNPKeepProb
	}

	founderIDs := make(map[string]string, len(founders))
	for idx, sample := range founders {
		founderIDs[pd.Individual(idx).ID] = sample.ID
	}

	results := make([]ReplicateResult, 0, len(pd.Comparisons))
	for _, cmp := range pd.Comparisons {
		leftIdx, lok := pd.Lookup(cmp.Left)
		rightIdx, rok := pd.Lookup(cmp.Right)
		if !lok || !rok {
			continue // validated at pd.Finalize time; defensive only.
		}
		var rc *readCounter
		if len(contam.Samples) > 0 {
			rc = &readCounter{set: contam}
		}

		var overlap, mismatch int64
		for pi, pos := range positions {
			if !genomes.Valid[pi] || !siteKept[pi] {
				continue
			}
			leftCalls := simulateReads(genomes, leftIdx, pi, pos.LeftDepth, opts.LeftParams, rc, opts.Store, rng)
			rightCalls := simulateReads(genomes, rightIdx, pi, pos.RightDepth, opts.RightParams, rc, opts.Store, rng)
			if len(leftCalls) == 0 || len(rightCalls) == 0 {
				continue
			}
			l := leftCalls[rng.Intn(len(leftCalls))]
			r := rightCalls[rng.Intn(len(rightCalls))]
			overlap++
			if l != r {
				mismatch++
			}
		}
		results = append(results, ReplicateResult{Label: cmp.Label, Overlap: overlap, Mismatch: mismatch, Founders: founderIDs})
	}
	return results, nil
}

func simulateReads(g *Genomes, individualIdx, pi, depth int, params SideParams, contam *readCounter, store refstore.Store, rng *rand.Rand) []byte {
	calls := make([]byte, 0, depth)
	for i := 0; i < depth; i++ {
		if b, ok := simulateRead(g, individualIdx, pi, params, contam, store, rng); ok {
			calls = append(calls, b)
		}
	}
	return calls
}
